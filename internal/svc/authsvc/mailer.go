package authsvc

import (
	"context"

	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendResetLink(ctx context.Context, email, link string) error
}

// LogMailer writes reset links to the log instead of sending them.
type LogMailer struct {
	Log logging.Logger
}

// SendResetLink implements Mailer.
func (m LogMailer) SendResetLink(ctx context.Context, email, link string) error {
	log := m.Log
	if log == nil {
		log = logging.GetLogger("svc.authsvc.mailer")
	}

	log.InfoContext(ctx, "password reset link", "email", email, "link", link)

	return nil
}
