package authclient

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/mkrupp/apptemplate/internal/domain"
)

const maxPasswordLength = 128

func validationError(message string) *domain.AuthError {
	return domain.NewAuthError(domain.CodeValidation, message)
}

// validateEmail accepts a bare address; display names and surrounding
// whitespace are rejected.
func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return validationError("email is malformed")
	}

	return nil
}

func validatePassword(password string, minLength int) error {
	if minLength <= 0 {
		minLength = 8
	}

	switch {
	case len(password) < minLength:
		return validationError(fmt.Sprintf("password must be at least %d characters", minLength))
	case len(password) > maxPasswordLength:
		return validationError(fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	}

	return nil
}

func validateProvider(provider string) error {
	if strings.TrimSpace(provider) == "" {
		return validationError("provider is required")
	}

	return nil
}
