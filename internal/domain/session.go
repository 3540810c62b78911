package domain

import (
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrNoAuthToken is returned when a credential is required but not provided.
	ErrNoAuthToken = errors.New("no auth token")
	// ErrInvalidAuthToken is returned when a credential's signature is invalid, it was
	// revoked, or it has expired.
	ErrInvalidAuthToken = errors.New("invalid auth token")
	// ErrUnauthorized is returned when an operation requires a session and none is present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNavigatedAway is returned by flows that hand control to another page and
	// never resume in the current process.
	ErrNavigatedAway = errors.New("navigated away")
)

// Session associates a user identity with a currently valid credential.
// A zero Session (nil User) means "signed out".
type Session struct {
	ID        string     `json:"id,omitempty"`
	User      *User      `json:"user"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.User != nil
}

// Expired reports whether the session has an expiry that lies before now.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Credential is the opaque secret (token or cookie value) that proves a session
// to the remote auth service.
type Credential string

// String returns the raw credential value.
func (c Credential) String() string {
	return string(c)
}

// LogValue implements slog.LogValuer so credentials never reach log output.
func (c Credential) LogValue() slog.Value {
	if c == "" {
		return slog.StringValue("")
	}

	return slog.StringValue("[redacted]")
}
