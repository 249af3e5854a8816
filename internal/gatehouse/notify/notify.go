// Package notify delivers password-reset messages. Delivery is fire and
// forget: implementations report success as a boolean and must never block
// an authentication flow on failure.
package notify

import (
	"context"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
)

// Notifier sends the password-reset message carrying the temporary password
// and the reset link.
type Notifier interface {
	SendPasswordReset(ctx context.Context, user domain.User, tempPassword, resetLink string) bool
}
