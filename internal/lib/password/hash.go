// Package password реализует функции для безопасного хеширования и проверки паролей.
//
// Hasher описывает одностороннюю функцию, которую слою доступа к данным передаёт вызывающий код.
// Bcrypt реализация по умолчанию поверх golang.org/x/crypto/bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch возвращается, когда пароль не соответствует хэшу.
var ErrMismatch = errors.New("password does not match hash")

// Hasher описывает одностороннюю функцию хеширования паролей.
type Hasher interface {
	// Hash возвращает хэш пароля для хранения в базе.
	Hash(plain string) (string, error)
	// Compare возвращает nil, если plain соответствует hash.
	Compare(hash, plain string) error
}

// Bcrypt реализует Hasher на основе bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt создаёт Hasher с заданной стоимостью. Значения вне допустимого
// диапазона заменяются на bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash принимает пароль пользователя и возвращает его bcrypt‑хэш.
func (b *Bcrypt) Hash(plain string) (string, error) {
	const op = "password.Hash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Compare сравнивает bcrypt‑хэш с введённым паролем.
func (b *Bcrypt) Compare(hash, plain string) error {
	const op = "password.Compare"
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
