package service

import (
	"strings"

	"github.com/tokablelabs/gatehouse/pkg/cryptox"
)

// FingerprintOptions selects which request attributes feed the device
// fingerprint. Resume tokens and CSRF tokens share one set of options, so
// changing them invalidates all outstanding tokens and CSRF values at once.
type FingerprintOptions struct {
	UseRemoteAddr bool
	UseUserAgent  bool
	UseHost       bool
}

// RequestInfo carries the attributes the fingerprint can draw from. The
// transport layer fills this in; the core never reads ambient request state.
type RequestInfo struct {
	RemoteAddr string
	UserAgent  string
	Host       string
}

// Seed builds the fingerprint seed: each enabled attribute is appended in a
// fixed order. Stable for the same device/network/browser combination.
func (o FingerprintOptions) Seed(r RequestInfo) string {
	var b strings.Builder
	if o.UseRemoteAddr {
		b.WriteString(r.RemoteAddr)
	}
	if o.UseUserAgent {
		b.WriteString(r.UserAgent)
	}
	if o.UseHost {
		b.WriteString(r.Host)
	}
	return b.String()
}

// deriveToken is the shared one-way derivation behind resume tokens and
// session keys: SHA-256 over username, salt, and the fingerprint seed. The
// session key variant passes an empty salt. A fast hash is enough here
// because the salt is random and never leaves the server.
func deriveToken(username, salt, seed string) string {
	return cryptox.FingerprintToken(username + "-" + salt + seed)
}
