package notify

import (
	"context"
	"fmt"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
	"github.com/tokablelabs/gatehouse/pkg/slogx"

	"github.com/wneessen/go-mail"
)

// SMTPMailer delivers reset messages over SMTP.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, user domain.User, tempPassword, resetLink string) bool {
	l := slogx.FromContext(ctx)

	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		l.Error("invalid sender address", "error", err)
		return false
	}
	if err := msg.To(user.Email); err != nil {
		l.Error("invalid recipient address", "error", err, "user_id", user.ID)
		return false
	}

	msg.Subject("Password reset")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hello %s,\n\n"+
			"A password reset was requested for your account.\n\n"+
			"Temporary password: %s\n\n"+
			"Confirm the reset from the same network you requested it:\n%s\n\n"+
			"The link is valid for two hours and can be used once. If you did\n"+
			"not request this, you can ignore this message.\n",
		user.DisplayName, tempPassword, resetLink,
	))

	opts := []mail.Option{mail.WithPort(m.Port)}
	if m.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.Username),
			mail.WithPassword(m.Password),
		)
	}

	client, err := mail.NewClient(m.Host, opts...)
	if err != nil {
		l.Error("failed to create smtp client", "error", err)
		return false
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		l.Error("failed to send reset mail", "error", err, "user_id", user.ID)
		return false
	}

	return true
}
