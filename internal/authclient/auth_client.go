// Package authclient is the uniform client of the remote auth service. Every
// operation returns a *domain.AuthError for expected failures; the live session
// is exposed through SessionStream.
package authclient

import (
	"context"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// AuthClient defines the operations of the remote auth service as seen by the app.
type AuthClient interface {
	// SignUp creates an account and signs it in.
	SignUp(ctx context.Context, req SignUpRequest) (domain.Session, error)

	// SignInEmail signs in with email and password.
	SignInEmail(ctx context.Context, email, password string) (domain.Session, error)

	// SignInSocial starts the provider flow and resolves once the host reports
	// the return to callbackURL. Returns domain.ErrNavigatedAway if the host
	// left the app instead.
	SignInSocial(ctx context.Context, provider, callbackURL string) (domain.Session, error)

	// SignOut ends the session. The local credential is always removed, even
	// when the remote call fails; the remote failure is still returned.
	SignOut(ctx context.Context) error

	// ForgetPassword requests a reset link. The result never reveals whether
	// the email belongs to an account.
	ForgetPassword(ctx context.Context, req ForgetPasswordRequest) error

	// ResetPassword sets a new password using a reset token.
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error

	// GetSession resolves the current session with at most one round trip.
	GetSession(ctx context.Context) (domain.Session, error)

	// Session returns the live, subscribable session view.
	Session() *SessionStream
}

// SignUpRequest holds the sign-up form.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ForgetPasswordRequest holds the forgotten-password form.
type ForgetPasswordRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// ResetPasswordRequest holds the reset-password form.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
