// Package models содержит доменные структуры слоя доступа к данным:
// пользователя, сессию, токен сброса пароля и подписку.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID            int64
	Email         string    // Электронная почта, уникальна
	PasswordHash  string    // Хэш пароля, открытый пароль не хранится
	FullName      *string   // Имя пользователя, может отсутствовать
	CreatedAt     time.Time // Дата регистрации
	IsActive      bool      // Неактивный пользователь не может войти
	EmailVerified bool
}
