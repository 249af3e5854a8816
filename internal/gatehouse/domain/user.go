package domain

import "time"

// User is the persistent account record. The shadow fields belong to the
// password-reset flow and are always set and cleared together.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2id PHC encoded
	Enabled      bool
	DisplayName  string

	FailedLogins   uint
	ThrottledUntil *time.Time

	LastSeen time.Time
	LastIP   string

	// Reset-flow working state. ShadowToken is set iff ShadowValidUntil is
	// set, and the token is redeemable only while now < ShadowValidUntil.
	ShadowPasswordHash *string
	ShadowToken        *string
	ShadowValidUntil   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPendingReset reports whether an unredeemed reset token exists,
// regardless of expiry.
func (u User) HasPendingReset() bool {
	return u.ShadowToken != nil && u.ShadowValidUntil != nil
}
