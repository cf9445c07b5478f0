// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках и выполняемых запросах.
package sl

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// maxQueryLen ограничивает длину текста запроса в логах.
const maxQueryLen = 256

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Удобно использовать в логировании для единообразного вывода ошибок.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op возвращает slog.Attr с именем операции.
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// Query возвращает slog.Attr с текстом SQL-запроса, схлопывая пробелы
// и обрезая слишком длинные запросы.
func Query(query string) slog.Attr {
	return slog.String("query", Normalize(query))
}

// Normalize схлопывает пробелы в запросе и обрезает его до maxQueryLen байт
// по границе символа.
func Normalize(query string) string {
	q := strings.Join(strings.Fields(query), " ")
	if len(q) > maxQueryLen {
		n := maxQueryLen
		for n > 0 && !utf8.RuneStart(q[n]) {
			n--
		}
		q = q[:n] + "..."
	}
	return q
}
