package service

import "errors"

var (
	// ErrInvalidCredentials covers every expected login failure: unknown
	// username or email, wrong password, disabled account. Callers must not
	// be able to tell these apart.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrThrottled is returned when cooldown enforcement is on and the
	// account is inside its cooldown window.
	ErrThrottled = errors.New("too_many_attempts")

	// ErrNoSession covers every expected resume failure: missing row, wrong
	// device, expired or tampered token.
	ErrNoSession = errors.New("no_resumable_session")

	// ErrInvalidResetToken covers every expected reset-confirmation
	// failure: unknown, expired, or wrong-network token.
	ErrInvalidResetToken = errors.New("invalid_reset_token")
)
