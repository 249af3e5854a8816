package store

import (
	"context"
	"errors"
	"time"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to stop callers from accidentally nesting transactions.
type Store interface {
	Users() Users
	ResumeTokens() ResumeTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and
	// rolling back on error. Preferred over Tx for multi-step operations
	// that must be atomic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID re-fetches a user during session validation.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is the primary login lookup.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByEmail is the fallback login and reset-request lookup.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateLoginState sets the failed-attempt counter and cooldown
	// deadline together; pass nil to clear the deadline.
	UpdateLoginState(ctx context.Context, userID string, failedLogins uint, throttledUntil *time.Time) error

	// UpdateSeen records activity: last_seen and last_ip.
	UpdateSeen(ctx context.Context, userID string, lastSeen time.Time, lastIP string) error

	// UpdatePasswordHash replaces the credential digest.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetEnabled flips the account's enabled flag.
	SetEnabled(ctx context.Context, userID string, enabled bool) error

	// SetShadowCredentials stores the reset-flow working fields as a unit.
	// This write is on the security-critical path; its error must not be
	// swallowed.
	SetShadowCredentials(ctx context.Context, userID string, passwordHash, token string, validUntil time.Time) error

	// GetUserByShadowToken finds the user whose unexpired shadow token
	// matches exactly. Expired tokens never match.
	GetUserByShadowToken(ctx context.Context, token string, now time.Time) (domain.User, error)

	// RedeemShadowCredentials promotes the shadow password hash into the
	// real credential and clears all three shadow fields in one statement.
	RedeemShadowCredentials(ctx context.Context, userID string) error

	// ClearExpiredShadowCredentials drops stale shadow fields
	// (housekeeping). Returns the number of users touched.
	ClearExpiredShadowCredentials(ctx context.Context, now time.Time) (int64, error)
}

type ResumeTokens interface {
	// UpsertResumeToken writes a token row, replacing any existing row for
	// the same (username, ip, user_agent) triple atomically.
	UpsertResumeToken(ctx context.Context, t domain.ResumeToken) error

	// GetResumeToken returns a non-expired row matching the presented
	// token value and fingerprint attributes.
	GetResumeToken(ctx context.Context, token, ip, userAgent string, now time.Time) (domain.ResumeToken, error)

	// TouchResumeToken bumps last_seen after a successful redemption.
	TouchResumeToken(ctx context.Context, id string, lastSeen time.Time) error

	// DeleteUserResumeTokens removes all tokens for a username (logout).
	DeleteUserResumeTokens(ctx context.Context, username string) error

	// DeleteExpiredResumeTokens removes rows past their validity window.
	// Runs before every lookup so stale rows never satisfy a match.
	DeleteExpiredResumeTokens(ctx context.Context, now time.Time) (int64, error)

	// ListResumeTokens returns all rows, newest first. Admin/diagnostic use.
	ListResumeTokens(ctx context.Context) ([]domain.ResumeToken, error)
}
