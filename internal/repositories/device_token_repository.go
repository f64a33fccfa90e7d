package repositories

import (
	"context"
	"database/sql"
)

type DeviceTokenRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewDeviceTokenRepository(db *sql.DB, dialect Dialect) *DeviceTokenRepository {
	return &DeviceTokenRepository{DB: db, Dialect: dialect}
}

// Save registers token for userID. Registering the same token twice is a no-op.
func (r *DeviceTokenRepository) Save(ctx context.Context, userID, token string) error {
	q := `INSERT INTO user_device_tokens (user_id, token) VALUES (?, ?)`
	if _, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(q), userID, token); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

// TokensByUser returns every push token registered for userID.
func (r *DeviceTokenRepository) TokensByUser(ctx context.Context, userID string) ([]string, error) {
	q := `SELECT token FROM user_device_tokens WHERE user_id = ?`
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(q), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteToken drops a token the push provider reported as unregistered.
func (r *DeviceTokenRepository) DeleteToken(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM user_device_tokens WHERE token = ?`), token)
	return err
}
