package domain

import "time"

// ResumeToken is a device-bound "remember me" credential. At most one
// non-expired row exists per (username, ip, user agent) triple; issuing for
// an existing triple replaces the row in place.
type ResumeToken struct {
	ID         string
	Username   string
	Token      string // derived, opaque to clients
	Salt       string
	ValidUntil time.Time
	IP         string
	UserAgent  string
	LastSeen   time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the token is past its validity window at now.
func (t ResumeToken) Expired(now time.Time) bool {
	return !now.Before(t.ValidUntil)
}
