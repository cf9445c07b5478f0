package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/datagate/internal/models"
	"github.com/magabrotheeeer/datagate/internal/storage"
)

// Форматы времени, в которых значения приходят из SQLite и из JSON-кеша.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// rowReader читает колонки строки с приведением типов. Первая ошибка
// запоминается, последующие чтения возвращают нулевые значения.
type rowReader struct {
	row storage.Row
	err error
}

func (r *rowReader) fail(col string, v any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("column %q: cannot convert %T to %s", col, v, want)
	}
}

func (r *rowReader) integer(col string) int64 {
	v := r.row[col]
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		return int64(x)
	case json.Number:
		n, err := x.Int64()
		if err == nil {
			return n
		}
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err == nil {
			return n
		}
	}
	r.fail(col, v, "int64")
	return 0
}

func (r *rowReader) text(col string) string {
	v := r.row[col]
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	r.fail(col, v, "string")
	return ""
}

func (r *rowReader) nullText(col string) *string {
	if r.row[col] == nil {
		return nil
	}
	s := r.text(col)
	return &s
}

func (r *rowReader) boolean(col string) bool {
	v := r.row[col]
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case json.Number:
		return x.String() != "0"
	case string:
		b, err := strconv.ParseBool(strings.ToLower(x))
		if err == nil {
			return b
		}
	}
	r.fail(col, v, "bool")
	return false
}

func (r *rowReader) timestamp(col string) time.Time {
	v := r.row[col]
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC()
			}
		}
	}
	r.fail(col, v, "time.Time")
	return time.Time{}
}

func scanUser(row storage.Row) (*models.User, error) {
	r := rowReader{row: row}
	u := &models.User{
		ID:            r.integer("id"),
		Email:         r.text("email"),
		PasswordHash:  r.text("password_hash"),
		FullName:      r.nullText("full_name"),
		CreatedAt:     r.timestamp("created_at"),
		IsActive:      r.boolean("is_active"),
		EmailVerified: r.boolean("email_verified"),
	}
	return u, r.err
}

func scanSession(row storage.Row) (*models.Session, error) {
	r := rowReader{row: row}
	s := &models.Session{
		ID:        r.integer("id"),
		UserID:    r.integer("user_id"),
		Token:     r.text("session_token"),
		CreatedAt: r.timestamp("created_at"),
		ExpiresAt: r.timestamp("expires_at"),
	}
	return s, r.err
}

func scanResetToken(row storage.Row) (*models.PasswordResetToken, error) {
	r := rowReader{row: row}
	t := &models.PasswordResetToken{
		ID:        r.integer("id"),
		UserID:    r.integer("user_id"),
		Token:     r.text("token"),
		CreatedAt: r.timestamp("created_at"),
		ExpiresAt: r.timestamp("expires_at"),
		Used:      r.boolean("used"),
	}
	return t, r.err
}

func scanSubscription(row storage.Row) (*models.Subscription, error) {
	r := rowReader{row: row}
	s := &models.Subscription{
		ID:        r.integer("id"),
		UserID:    r.integer("user_id"),
		PlanType:  r.text("plan_type"),
		Status:    r.text("status"),
		StartDate: r.timestamp("start_date"),
		EndDate:   r.timestamp("end_date"),
	}
	return s, r.err
}
