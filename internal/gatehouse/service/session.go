package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"time"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store"
	"github.com/tokablelabs/gatehouse/pkg/cryptox"
	"github.com/tokablelabs/gatehouse/pkg/slogx"
)

// dummyPasswordHash is verified against when a user does not exist, so login
// takes the same time whether or not the username matched. It is a
// syntactically valid digest that no password hashes to.
//
//nolint:gosec // G101: intentionally fake digest, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SessionService is the top-level authentication check run on every request.
// It composes the resume-token store, the credential store and the throttle.
// All state it needs is passed in per call; it keeps no per-request state
// and caches nothing across requests.
type SessionService struct {
	Store       store.Store
	Resume      *ResumeService
	Fingerprint FingerprintOptions
	Throttle    *Throttle

	// Allowed is an external authorization predicate checked on every
	// validation pass. Nil means always allowed.
	Allowed func(ctx context.Context, user domain.User) bool

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Validate decides whether the request carries a valid authenticated
// identity. A session that fails any check is cleared in place. If a resume
// token should be written back to the client (silent re-authentication, or a
// valid session arriving without a resume cookie), the fresh token is
// returned for the transport layer to set.
//
// Expected "not authenticated" outcomes are reported through the boolean,
// never as an error; store failures degrade to not-authenticated and are
// logged.
func (s *SessionService) Validate(ctx context.Context, sess *domain.Session, req RequestInfo, resumeToken string) (*domain.ResumeToken, bool) {
	l := slogx.FromContext(ctx)

	if !sess.Authenticated() {
		if resumeToken == "" {
			return nil, false
		}

		user, _, err := s.Resume.Redeem(ctx, resumeToken, req)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				l.Error("resume redemption failed", "error", err)
			}
			return nil, false
		}

		// Rotate the token on successful silent re-authentication.
		issued := s.Establish(ctx, sess, user, req)
		return issued, true
	}

	user, err := s.Store.Users().GetUserByID(ctx, sess.User.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.Error("session user re-fetch failed", "error", err)
		}
		// Stale session: the claimed user no longer exists.
		s.Logout(ctx, sess)
		return nil, false
	}

	if !user.Enabled {
		s.Logout(ctx, sess)
		return nil, false
	}

	expectedKey := deriveToken(user.Username, "", s.Fingerprint.Seed(req))
	if subtle.ConstantTimeCompare([]byte(expectedKey), []byte(sess.Key)) != 1 {
		l.Warn("session key mismatch, possible tampering",
			"user_id", user.ID,
			"username", user.Username,
			"ip", req.RemoteAddr,
		)
		s.Logout(ctx, sess)
		return nil, false
	}

	if s.Allowed != nil && !s.Allowed(ctx, user) {
		s.Logout(ctx, sess)
		return nil, false
	}

	// Keep the session snapshot current.
	sess.User = user

	if resumeToken == "" {
		issued, err := s.Resume.Issue(ctx, user.Username, req)
		if err != nil {
			l.Warn("failed to issue resume token", "error", err)
			return nil, true
		}
		return &issued, true
	}

	return nil, true
}

// Login authenticates a username-or-email and password pair. On success the
// session is established and a fresh resume token is returned for the client
// cookie. All expected failures surface as ErrInvalidCredentials, except an
// enforced cooldown which surfaces as ErrThrottled.
func (s *SessionService) Login(ctx context.Context, sess *domain.Session, identifier, password string, req RequestInfo) (*domain.ResumeToken, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	if s.Throttle != nil && !s.Throttle.Allow(req.RemoteAddr, identifier) {
		return nil, ErrThrottled
	}

	user, exists, err := s.lookupUser(ctx, identifier)
	if err != nil {
		return nil, err
	}

	targetHash := dummyPasswordHash
	if exists {
		targetHash = user.PasswordHash
	}

	// Always verify, so a missing user costs the same as a wrong password.
	verifyErr := cryptox.VerifyPassword(password, targetHash)

	if !exists || verifyErr != nil {
		if exists {
			s.LoginFailed(ctx, user)
		}
		return nil, ErrInvalidCredentials
	}

	// Cooldown is checked after verification to keep response time uniform.
	if s.Throttle != nil && s.Throttle.Enforce &&
		user.ThrottledUntil != nil && now.Before(*user.ThrottledUntil) {
		l.Info("login rejected during cooldown",
			"username", user.Username,
			"throttled_until", *user.ThrottledUntil,
		)
		return nil, ErrThrottled
	}

	if !user.Enabled {
		return nil, ErrInvalidCredentials
	}

	issued := s.Establish(ctx, sess, user, req)
	return issued, nil
}

// Establish installs the user into the session: computes the session key,
// records activity, resets the failure counter and issues a resume token.
// Persistence here is best effort; a store hiccup must not undo a login that
// already succeeded.
func (s *SessionService) Establish(ctx context.Context, sess *domain.Session, user domain.User, req RequestInfo) *domain.ResumeToken {
	l := slogx.FromContext(ctx)
	now := s.now()

	user.FailedLogins = 0
	user.ThrottledUntil = nil
	user.LastSeen = now
	user.LastIP = hostOnly(req.RemoteAddr)

	sess.User = user
	sess.Key = deriveToken(user.Username, "", s.Fingerprint.Seed(req))

	if err := s.Store.Users().UpdateLoginState(ctx, user.ID, 0, nil); err != nil {
		l.Warn("failed to reset failed-login counter", "error", err, "user_id", user.ID)
	}
	if err := s.Store.Users().UpdateSeen(ctx, user.ID, now, user.LastIP); err != nil {
		l.Warn("failed to update last seen", "error", err, "user_id", user.ID)
	}

	issued, err := s.Resume.Issue(ctx, user.Username, req)
	if err != nil {
		l.Warn("failed to issue resume token", "error", err, "user_id", user.ID)
		return nil
	}
	return &issued
}

// LoginFailed bumps the failure counter and recomputes the cooldown
// deadline. Best effort: an unreachable store must not change the login
// outcome the caller already decided on.
func (s *SessionService) LoginFailed(ctx context.Context, user domain.User) {
	attempts := user.FailedLogins + 1
	until := CooldownFor(attempts, s.now())

	if err := s.Store.Users().UpdateLoginState(ctx, user.ID, attempts, until); err != nil {
		slogx.FromContext(ctx).Warn("failed to record login failure",
			"error", err, "user_id", user.ID)
	}
}

// Logout clears the session and invalidates the user's resume tokens so a
// captured cookie cannot re-establish it.
func (s *SessionService) Logout(ctx context.Context, sess *domain.Session) {
	if !sess.Authenticated() {
		sess.Clear()
		return
	}

	username := sess.User.Username
	sess.Clear()

	if err := s.Store.ResumeTokens().DeleteUserResumeTokens(ctx, username); err != nil {
		slogx.FromContext(ctx).Warn("failed to delete resume tokens on logout",
			"error", err, "username", username)
	}
}

// lookupUser resolves the login identifier: username first, email as a
// fallback. Absence is not an error, it folds into the uniform
// invalid-credentials outcome.
func (s *SessionService) lookupUser(ctx context.Context, identifier string) (domain.User, bool, error) {
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

// hostOnly strips a port from host:port forms, leaving bare hosts alone.
func hostOnly(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
