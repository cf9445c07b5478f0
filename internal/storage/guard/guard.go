// Package guard отклоняет опасный SQL-текст до того, как запрос попадёт в пул.
//
// Проверяется только литеральный текст запроса: значения параметров передаются
// через плейсхолдеры и не анализируются. Это грубая эвристика, а не парсер,
// ложные срабатывания на легитимном тексте допустимы.
package guard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrSecurityViolation базовая ошибка для заблокированных запросов.
var ErrSecurityViolation = errors.New("sql injection attempt blocked")

// DefaultPatterns шаблоны, блокируемые по умолчанию (без учёта регистра).
var DefaultPatterns = []string{
	`--`,
	`#`,
	`;`,
	`OR\s+1=1`,
	`UNION\s+SELECT`,
	`DROP\s+TABLE`,
	`DELETE\s+FROM`,
}

// ViolationError описывает заблокированный запрос.
type ViolationError struct {
	Pattern string
	Query   string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: pattern %q matched in %q", ErrSecurityViolation, e.Pattern, e.Query)
}

func (e *ViolationError) Unwrap() error {
	return ErrSecurityViolation
}

// Filter проверяет текст запросов. Безопасен для конкурентного использования.
type Filter struct {
	patterns []*regexp.Regexp

	mu      sync.RWMutex
	allowed map[string]struct{}
}

// New создаёт Filter с DefaultPatterns.
func New() *Filter {
	f, err := NewWithPatterns(DefaultPatterns...)
	if err != nil {
		panic(err)
	}
	return f
}

// NewWithPatterns создаёт Filter с произвольным набором регулярных выражений.
func NewWithPatterns(patterns ...string) (*Filter, error) {
	const op = "storage.guard.NewWithPatterns"
	f := &Filter{allowed: make(map[string]struct{})}
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Allow добавляет точный текст запроса в список доверенных. Предназначено
// только для константных запросов самого слоя доступа к данным.
func (f *Filter) Allow(queries ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range queries {
		f.allowed[normalize(q)] = struct{}{}
	}
}

// Check возвращает *ViolationError, если текст совпал с одним из шаблонов.
func (f *Filter) Check(query string) error {
	f.mu.RLock()
	_, ok := f.allowed[normalize(query)]
	f.mu.RUnlock()
	if ok {
		return nil
	}

	for _, re := range f.patterns {
		if re.MatchString(query) {
			return &ViolationError{Pattern: re.String(), Query: query}
		}
	}
	return nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
