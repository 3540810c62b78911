// Package session persists the server-side sessions issued by the auth service.
package session

import (
	"context"
	"time"
)

// Record is one issued session. Deleting it revokes every credential that
// names its id.
type Record struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Repository defines the interface for session persistence.
type Repository interface {
	CreateSession(ctx context.Context, rec Record) error
	// GetSession returns ErrInvalidAuthToken for unknown or expired sessions.
	GetSession(ctx context.Context, id string, now time.Time) (Record, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func() (Repository, error)
