package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store"
	"github.com/tokablelabs/gatehouse/pkg/cryptox"
	"github.com/tokablelabs/gatehouse/pkg/idx"
	"github.com/tokablelabs/gatehouse/pkg/slogx"
)

// DefaultResumeTokenTTL is how long a resume token stays redeemable unless
// configured otherwise.
const DefaultResumeTokenTTL = 30 * 24 * time.Hour

// ResumeService issues and redeems device-bound resume tokens. One logical
// row exists per (username, ip, user agent) triple; issuing again for the
// same triple rotates the salt and token in place.
type ResumeService struct {
	Store       store.Store
	Fingerprint FingerprintOptions
	TTL         time.Duration

	// Now overrides the clock; nil means time.Now. Tests use this.
	Now func() time.Time
}

func (s *ResumeService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ResumeService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultResumeTokenTTL
}

// Issue creates (or rotates) the resume token for this user and device.
// Expired rows are purged first so the upsert never revives a stale triple.
func (s *ResumeService) Issue(ctx context.Context, username string, req RequestInfo) (domain.ResumeToken, error) {
	now := s.now()

	if _, err := s.Store.ResumeTokens().DeleteExpiredResumeTokens(ctx, now); err != nil {
		return domain.ResumeToken{}, err
	}

	salt, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.ResumeToken{}, err
	}

	token := domain.ResumeToken{
		ID:         idx.New().String(),
		Username:   username,
		Token:      deriveToken(username, salt, s.Fingerprint.Seed(req)),
		Salt:       salt,
		ValidUntil: now.Add(s.ttl()),
		IP:         req.RemoteAddr,
		UserAgent:  req.UserAgent,
		LastSeen:   now,
	}

	if err := s.Store.ResumeTokens().UpsertResumeToken(ctx, token); err != nil {
		return domain.ResumeToken{}, err
	}

	return token, nil
}

// Redeem exchanges a presented token for the user it belongs to. The row
// must match the token value and the request's ip/user agent, be unexpired,
// and the derivation recomputed from the stored salt must match exactly.
// Every failure collapses into ErrNoSession; a mismatch on an existing row
// is additionally logged as a security event. On success the caller is
// expected to call Issue again to rotate the token.
func (s *ResumeService) Redeem(ctx context.Context, presented string, req RequestInfo) (domain.User, domain.ResumeToken, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	if _, err := s.Store.ResumeTokens().DeleteExpiredResumeTokens(ctx, now); err != nil {
		return domain.User{}, domain.ResumeToken{}, err
	}

	row, err := s.Store.ResumeTokens().GetResumeToken(ctx, presented, req.RemoteAddr, req.UserAgent, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.ResumeToken{}, ErrNoSession
		}
		return domain.User{}, domain.ResumeToken{}, err
	}

	expected := deriveToken(row.Username, row.Salt, s.Fingerprint.Seed(req))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(row.Token)) != 1 {
		l.Warn("resume token derivation mismatch",
			"username", row.Username,
			"ip", req.RemoteAddr,
		)
		return domain.User{}, domain.ResumeToken{}, ErrNoSession
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, row.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.ResumeToken{}, ErrNoSession
		}
		return domain.User{}, domain.ResumeToken{}, err
	}
	if !user.Enabled {
		return domain.User{}, domain.ResumeToken{}, ErrNoSession
	}

	// Best effort; redemption already succeeded.
	if err := s.Store.ResumeTokens().TouchResumeToken(ctx, row.ID, now); err != nil {
		l.Warn("failed to touch resume token", "error", err)
	}

	return user, row, nil
}

// PurgeExpired deletes rows past their validity window and reports how many
// were removed. The housekeeping worker calls this on a timer; Issue and
// Redeem run it inline before their lookups.
func (s *ResumeService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.Store.ResumeTokens().DeleteExpiredResumeTokens(ctx, s.now())
}
