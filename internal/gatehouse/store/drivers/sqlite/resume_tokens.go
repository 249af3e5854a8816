package sqlite

import (
	"context"
	"time"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
)

const resumeTokenColumns = `id, username, token, salt, valid_until,
	ip, user_agent, last_seen, created_at, updated_at`

type resumeTokensRepo struct {
	q querier
}

// UpsertResumeToken relies on the UNIQUE(username, ip, user_agent) index so
// concurrent issues for the same device collapse into one row.
func (r *resumeTokensRepo) UpsertResumeToken(ctx context.Context, t domain.ResumeToken) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO resume_tokens (
			id, username, token, salt, valid_until, ip, user_agent,
			last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (username, ip, user_agent) DO UPDATE SET
			token = excluded.token,
			salt = excluded.salt,
			valid_until = excluded.valid_until,
			last_seen = excluded.last_seen,
			updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.Username, t.Token, t.Salt, t.ValidUntil, t.IP, t.UserAgent,
		t.LastSeen,
	)
	return err
}

func (r *resumeTokensRepo) GetResumeToken(ctx context.Context, token, ip, userAgent string, now time.Time) (domain.ResumeToken, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+resumeTokenColumns+` FROM resume_tokens
		WHERE token = ? AND ip = ? AND user_agent = ? AND valid_until > ?`,
		token, ip, userAgent, now,
	)
	t, err := scanResumeToken(row)
	if err != nil {
		return domain.ResumeToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *resumeTokensRepo) TouchResumeToken(ctx context.Context, id string, lastSeen time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE resume_tokens
		SET last_seen = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		lastSeen, id,
	)
	return err
}

func (r *resumeTokensRepo) DeleteUserResumeTokens(ctx context.Context, username string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM resume_tokens WHERE username = ?`, username)
	return err
}

func (r *resumeTokensRepo) DeleteExpiredResumeTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM resume_tokens WHERE valid_until <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *resumeTokensRepo) ListResumeTokens(ctx context.Context) ([]domain.ResumeToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+resumeTokenColumns+` FROM resume_tokens
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ResumeToken
	for rows.Next() {
		t, err := scanResumeToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
