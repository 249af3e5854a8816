package notify

import (
	"context"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
	"github.com/tokablelabs/gatehouse/pkg/slogx"
)

// LogMailer writes the reset message to the log instead of sending mail.
// For dev environments without an SMTP relay. The temporary password is
// deliberately not logged.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, user domain.User, tempPassword, resetLink string) bool {
	slogx.FromContext(ctx).Info("password reset mail (log only)",
		"user_id", user.ID,
		"email", user.Email,
		"reset_link", resetLink,
	)
	return true
}
