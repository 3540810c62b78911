package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a machine-readable failure cause UI code can branch on.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNetwork            ErrorCode = "NETWORK_ERROR"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeValidation         ErrorCode = "VALIDATION_FAILED"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeUserAlreadyExists  ErrorCode = "USER_ALREADY_EXISTS"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
)

var (
	// ErrValidation is returned when input is malformed (bad email, weak password).
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited is returned when the remote refuses further attempts for now.
	ErrRateLimited = errors.New("rate limited")
	// ErrNetwork is returned when the remote could not be reached or timed out.
	ErrNetwork = errors.New("network error")
)

//nolint:gochecknoglobals
var codeSentinels = map[ErrorCode]error{
	CodeNetwork:            ErrNetwork,
	CodeInvalidCredentials: ErrInvalidCredentials,
	CodeValidation:         ErrValidation,
	CodeRateLimited:        ErrRateLimited,
	CodeUnauthorized:       ErrUnauthorized,
	CodeUserAlreadyExists:  ErrUserAlreadyExists,
	CodeInvalidToken:       ErrInvalidAuthToken,
}

// AuthError is the uniform error surface of every auth operation. Expected
// failures are always returned as *AuthError, never raised as panics.
type AuthError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Status  int       `json:"-"`
	Err     error     `json:"-"`
}

// NewAuthError creates an AuthError with the given code and message.
func NewAuthError(code ErrorCode, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error that corresponds to the error code, so callers
// can use errors.Is(err, domain.ErrInvalidCredentials) regardless of origin.
func (e *AuthError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]

	return ok && sentinel == target
}

// CodeOf extracts the ErrorCode from err, or CodeUnknown if err is not an AuthError.
func CodeOf(err error) ErrorCode {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}

	return CodeUnknown
}
