package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// KeySeparator разделяет сегменты ключа.
const KeySeparator = "::"

// Key строит ключ кеша из нормализованного текста запроса и упорядоченного
// списка параметров. Каждый параметр помечается типом, поэтому 1 и "1" дают
// разные ключи. Пробелы внутри строковых литералов сохраняются.
func Key(query string, args []any) string {
	var b strings.Builder
	b.WriteString(normalizeQuery(query))
	for _, arg := range args {
		b.WriteString(KeySeparator)
		b.WriteString(serializeArg(arg))
	}
	return b.String()
}

// normalizeQuery схлопывает пробельные символы вне кавычек в один пробел.
func normalizeQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	var quote rune
	space := false
	for _, r := range strings.TrimSpace(query) {
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		if r == '\'' || r == '"' {
			quote = r
		}
		b.WriteRune(r)
	}
	return b.String()
}

func serializeArg(v any) string {
	switch a := v.(type) {
	case nil:
		return "nil"
	case string:
		return "s:" + strconv.Quote(a)
	case []byte:
		return "b:" + strconv.Quote(string(a))
	case bool:
		return "t:" + strconv.FormatBool(a)
	case int:
		return "i:" + strconv.FormatInt(int64(a), 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(a), 10)
	case int64:
		return "i:" + strconv.FormatInt(a, 10)
	case uint64:
		return "u:" + strconv.FormatUint(a, 10)
	case float64:
		return "f:" + strconv.FormatFloat(a, 'g', -1, 64)
	case time.Time:
		return "tm:" + a.UTC().Format(time.RFC3339Nano)
	case *string:
		if a == nil {
			return "nil"
		}
		return serializeArg(*a)
	case fmt.Stringer:
		return fmt.Sprintf("%T:%s", v, a.String())
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
