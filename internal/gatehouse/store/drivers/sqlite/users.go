package sqlite

import (
	"context"
	"time"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
)

const userColumns = `id, username, email, password_hash, enabled, display_name,
	failed_logins, throttled_until, last_seen, last_ip,
	shadow_password_hash, shadow_token, shadow_valid_until,
	created_at, updated_at`

type usersRepo struct {
	q querier
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (
			id, username, email, password_hash, enabled, display_name,
			failed_logins, throttled_until, last_seen, last_ip,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Enabled, u.DisplayName,
		int64(u.FailedLogins), mapOptionalTime(u.ThrottledUntil), u.LastSeen, u.LastIP,
	)
	return err
}

func (r *usersRepo) UpdateLoginState(ctx context.Context, userID string, failedLogins uint, throttledUntil *time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET failed_logins = ?, throttled_until = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		int64(failedLogins), mapOptionalTime(throttledUntil), userID,
	)
	return err
}

func (r *usersRepo) UpdateSeen(ctx context.Context, userID string, lastSeen time.Time, lastIP string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET last_seen = ?, last_ip = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		lastSeen, lastIP, userID,
	)
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		newHash, userID,
	)
	return err
}

func (r *usersRepo) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		enabled, userID,
	)
	return err
}

func (r *usersRepo) SetShadowCredentials(ctx context.Context, userID string, passwordHash, token string, validUntil time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET shadow_password_hash = ?, shadow_token = ?, shadow_valid_until = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		passwordHash, token, validUntil, userID,
	)
	return err
}

func (r *usersRepo) GetUserByShadowToken(ctx context.Context, token string, now time.Time) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE shadow_token = ? AND shadow_valid_until > ?`,
		token, now,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

// RedeemShadowCredentials promotes the shadow hash and clears the shadow
// fields in a single statement, so the token cannot be redeemed twice.
func (r *usersRepo) RedeemShadowCredentials(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET password_hash = shadow_password_hash,
		    shadow_password_hash = NULL,
		    shadow_token = NULL,
		    shadow_valid_until = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND shadow_password_hash IS NOT NULL`,
		userID,
	)
	return err
}

func (r *usersRepo) ClearExpiredShadowCredentials(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET shadow_password_hash = NULL,
		    shadow_token = NULL,
		    shadow_valid_until = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE shadow_valid_until IS NOT NULL AND shadow_valid_until <= ?`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
