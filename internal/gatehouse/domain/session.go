package domain

// Session is the transient per-request view of an authenticated identity.
// It is held by the request-handling layer, never persisted here. Key is a
// derived value computed at establishment time; a mismatch on a later
// request is a tamper signal.
type Session struct {
	User User
	Key  string
}

// Authenticated reports whether the session claims an identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.User.ID != ""
}

// Clear wipes the session in place, returning it to the unauthenticated
// state.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.User = User{}
	s.Key = ""
}
