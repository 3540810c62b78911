package cli

import (
	"errors"
	"fmt"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// Process exit codes.
const (
	ExitFailure       = 1
	ExitConfig        = 2
	ExitAuthFailed    = 3
	ExitInvalidInput  = 4
	ExitUnavailable   = 5
	ExitNotSignedIn   = 6
	ExitNavigatedAway = 7
)

// ExitError is an error that carries a specific process exit code.
// Commands return it to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, err error, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// authFailure translates an auth client error into an ExitError.
func authFailure(op string, err error) error {
	if errors.Is(err, domain.ErrNavigatedAway) {
		return exitError(ExitNavigatedAway, err, "%s: continue in the browser", op)
	}

	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	code := ExitFailure

	switch authErr.Code {
	case domain.CodeInvalidCredentials, domain.CodeUnauthorized, domain.CodeInvalidToken, domain.CodeUserAlreadyExists:
		code = ExitAuthFailed
	case domain.CodeValidation:
		code = ExitInvalidInput
	case domain.CodeNetwork, domain.CodeRateLimited:
		code = ExitUnavailable
	case domain.CodeUnknown:
	}

	return exitError(code, err, "%s failed: %s", op, authErr.Error())
}
