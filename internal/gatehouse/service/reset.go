package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/notify"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store"
	"github.com/tokablelabs/gatehouse/pkg/cryptox"
	"github.com/tokablelabs/gatehouse/pkg/slogx"
)

// DefaultResetTokenTTL is the redemption window for a reset token.
const DefaultResetTokenTTL = 2 * time.Hour

// ResetService runs the password-reset side channel. It is keyed by its own
// single-use token, never by the session. The stored token is bound to the
// requester's network so a leaked link is not redeemable elsewhere.
type ResetService struct {
	Store    store.Store
	Notifier notify.Notifier

	// ResetURL is the base link mailed to the user; the token is appended
	// as a query parameter.
	ResetURL string
	TTL      time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// ResetReceipt reports the internal outcome of a reset request to the
// calling layer. The end-user message must be identical no matter what the
// receipt says.
type ResetReceipt struct {
	// Delivered is false when no account matched or the mail could not be
	// sent. Never shown to the end user.
	Delivered bool
}

func (s *ResetService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ResetService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultResetTokenTTL
}

// Request starts a reset for the account matching identifier (username or
// email). An unknown identifier still succeeds with Delivered=false, so the
// response cannot be used to enumerate accounts. Storing the shadow fields
// is the one security-critical write in this core: its failure is returned,
// not swallowed.
func (s *ResetService) Request(ctx context.Context, identifier, remoteIP string) (ResetReceipt, error) {
	l := slogx.FromContext(ctx)

	user, found, err := s.lookup(ctx, identifier)
	if err != nil {
		return ResetReceipt{}, err
	}
	if !found {
		return ResetReceipt{Delivered: false}, nil
	}

	tempPassword, err := cryptox.GeneratePassword()
	if err != nil {
		return ResetReceipt{}, err
	}
	shadowHash, err := cryptox.HashPassword(tempPassword)
	if err != nil {
		return ResetReceipt{}, err
	}
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return ResetReceipt{}, err
	}

	stored := token + "-" + normalizeIP(remoteIP)
	validUntil := s.now().Add(s.ttl())

	if err := s.Store.Users().SetShadowCredentials(ctx, user.ID, shadowHash, stored, validUntil); err != nil {
		return ResetReceipt{}, err
	}

	delivered := s.Notifier.SendPasswordReset(ctx, user, tempPassword, s.resetLink(token))
	if !delivered {
		l.Warn("reset mail not delivered", "user_id", user.ID)
	}

	return ResetReceipt{Delivered: delivered}, nil
}

// Confirm redeems a reset token presented from the given network. On match
// the shadow password becomes the real one and the shadow fields are
// cleared, making the token single-use. On any miss nothing is mutated and
// the caller gets one neutral error.
func (s *ResetService) Confirm(ctx context.Context, token, remoteIP string) error {
	l := slogx.FromContext(ctx)

	candidate := token + "-" + normalizeIP(remoteIP)

	user, err := s.Store.Users().GetUserByShadowToken(ctx, candidate, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Warn("reset confirmation with invalid token", "ip", remoteIP)
			return ErrInvalidResetToken
		}
		return err
	}

	if err := s.Store.Users().RedeemShadowCredentials(ctx, user.ID); err != nil {
		return err
	}

	l.Info("password reset confirmed", "user_id", user.ID)
	return nil
}

func (s *ResetService) lookup(ctx context.Context, identifier string) (domain.User, bool, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, identifier)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, false, err
	}

	user, err = s.Store.Users().GetUserByEmail(ctx, identifier)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, false, err
	}

	return domain.User{}, false, nil
}

func (s *ResetService) resetLink(token string) string {
	return s.ResetURL + "?token=" + url.QueryEscape(token)
}

// normalizeIP strips ports and zones so the stored binding survives
// ephemeral port changes between the request and the confirmation.
func normalizeIP(remoteAddr string) string {
	return hostOnly(remoteAddr)
}
