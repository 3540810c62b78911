package user

import (
	"context"
	"time"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// Repository defines the interface for account persistence.
type Repository interface {
	// CreateUser adds a new account.
	// Returns ErrUserAlreadyExists if the email is already taken.
	CreateUser(ctx context.Context, account domain.Account) error

	// GetUserByEmail retrieves an account by its email address.
	// Returns ErrUserNotFound if there is none.
	GetUserByEmail(ctx context.Context, email string) (domain.Account, error)

	// GetUserByID retrieves an account by its id.
	// Returns ErrUserNotFound if there is none.
	GetUserByID(ctx context.Context, id string) (domain.Account, error)

	// UpdatePassword replaces the password hash of an account.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// CreateResetToken stores a single-use password reset token for an account.
	CreateResetToken(ctx context.Context, token, userID string, expiresAt time.Time) error

	// ConsumeResetToken deletes a reset token and returns the account id it
	// belonged to. Expired or unknown tokens return ErrInvalidAuthToken.
	ConsumeResetToken(ctx context.Context, token string, now time.Time) (string, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func() (Repository, error)
