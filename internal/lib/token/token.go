// Package token генерирует случайные URL-безопасные токены для сессий
// и сброса пароля.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultSize количество случайных байт в токене по умолчанию.
const DefaultSize = 32

// Generate возвращает base64url-строку из n случайных байт без паддинга.
func Generate(n int) (string, error) {
	const op = "token.Generate"
	if n <= 0 {
		return "", fmt.Errorf("%s: size must be positive, got %d", op, n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// New возвращает токен размера DefaultSize.
func New() (string, error) {
	return Generate(DefaultSize)
}
