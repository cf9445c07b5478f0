package repository

const queryUserColumns = `SELECT id, email, password_hash, full_name, created_at, is_active, email_verified FROM users`

const (
	queryInsertUser = `INSERT INTO users (email, password_hash, full_name, created_at, is_active, email_verified)
		VALUES (?, ?, ?, ?, TRUE, FALSE)`

	queryUserByEmail = queryUserColumns + ` WHERE email = ?`

	queryUserByID = queryUserColumns + ` WHERE id = ?`

	queryUpdatePassword = `UPDATE users SET password_hash = ? WHERE id = ?`

	querySetUserActive = `UPDATE users SET is_active = ? WHERE id = ?`

	queryVerifyEmail = `UPDATE users SET email_verified = TRUE WHERE id = ?`
)

const (
	queryInsertSession = `INSERT INTO sessions (user_id, session_token, created_at, expires_at) VALUES (?, ?, ?, ?)`

	querySessionByToken = `SELECT id, user_id, session_token, created_at, expires_at
		FROM sessions WHERE session_token = ?`

	queryDeleteSession = `DELETE FROM sessions WHERE session_token = ?`
)

const (
	queryInsertResetToken = `INSERT INTO password_reset_tokens (user_id, token, created_at, expires_at, used)
		VALUES (?, ?, ?, ?, FALSE)`

	queryResetTokenByToken = `SELECT id, user_id, token, created_at, expires_at, used
		FROM password_reset_tokens WHERE token = ? AND used = FALSE`

	// Проверка и пометка в одном запросе: из двух конкурентных погашений успешно только одно.
	queryMarkTokenUsed = `UPDATE password_reset_tokens SET used = TRUE
		WHERE token = ? AND used = FALSE AND expires_at > ?`
)

const (
	queryInsertSubscription = `INSERT INTO subscriptions (user_id, plan_type, status, start_date, end_date)
		VALUES (?, ?, ?, ?, ?)`

	queryActiveSubscription = `SELECT id, user_id, plan_type, status, start_date, end_date
		FROM subscriptions WHERE user_id = ? AND status = ?
		ORDER BY end_date DESC, id DESC LIMIT 1`

	queryCancelSubscription = `UPDATE subscriptions SET status = ? WHERE id = ? AND status = ?`
)

// trustedQueries константные запросы, совпадающие с шаблонами фильтра.
var trustedQueries = []string{queryDeleteSession}
