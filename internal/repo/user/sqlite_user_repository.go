package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

// SQLiteUserRepositoryConfig holds configuration for the SQLite user repository.
type SQLiteUserRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"var/storage/authsvc.db"`
}

// SQLiteUserRepository implements Repository using SQLite as the storage backend.
type SQLiteUserRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteUserRepository)(nil)

// SQLiteUserRepositoryFactory creates a factory function that returns a new SQLiteUserRepository.
func SQLiteUserRepositoryFactory(cfg SQLiteUserRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLiteUserRepository(cfg)
	}
}

// NewSQLiteUserRepository opens the database and creates the schema if needed.
func NewSQLiteUserRepository(cfg SQLiteUserRepositoryConfig) (*SQLiteUserRepository, error) {
	log := logging.GetLogger("repo.user.sqlite_user_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	db, err := sql.Open("sqlite", dsn(cfg.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	return &SQLiteUserRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

// dsn sets the busy timeout on every pooled connection, not just the first.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func initializeDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT    PRIMARY KEY,
			email          TEXT    UNIQUE NOT NULL,
			name           TEXT    NOT NULL DEFAULT '',
			email_verified INTEGER NOT NULL DEFAULT 0,
			image          TEXT    NOT NULL DEFAULT '',
			password_hash  TEXT    NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS reset_tokens (
			token      TEXT    PRIMARY KEY,
			user_id    TEXT    NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// CreateUser implements Repository.CreateUser using SQLite.
func (r *SQLiteUserRepository) CreateUser(ctx context.Context, account domain.Account) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, email_verified, image, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		strings.ToLower(account.Email),
		account.Name,
		account.EmailVerified,
		account.Image,
		account.PasswordHash,
		account.CreatedAt.UnixMilli(),
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) {
			switch liteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				err = errors.Join(domain.ErrUserAlreadyExists, err)
			default:
			}
		}

		return fmt.Errorf("insert user: %w", err)
	}

	r.log.DebugContext(ctx, "user created", "id", account.ID)

	return nil
}

const selectAccount = `SELECT id, email, name, email_verified, image, password_hash, created_at FROM users`

func scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		account   domain.Account
		createdAt int64
	)

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.EmailVerified,
		&account.Image,
		&account.PasswordHash,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return domain.Account{}, fmt.Errorf("query user: %w", err)
	}

	account.CreatedAt = time.UnixMilli(createdAt).UTC()

	return account, nil
}

// GetUserByEmail implements Repository.GetUserByEmail using SQLite.
func (r *SQLiteUserRepository) GetUserByEmail(ctx context.Context, email string) (domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, selectAccount+" WHERE email = ?", strings.ToLower(email)))
}

// GetUserByID implements Repository.GetUserByID using SQLite.
func (r *SQLiteUserRepository) GetUserByID(ctx context.Context, id string) (domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, selectAccount+" WHERE id = ?", id))
}

// UpdatePassword implements Repository.UpdatePassword using SQLite.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	res, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update password: %w", domain.ErrUserNotFound)
	}

	return nil
}

// CreateResetToken implements Repository.CreateResetToken using SQLite.
func (r *SQLiteUserRepository) CreateResetToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO reset_tokens (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	return nil
}

// ConsumeResetToken implements Repository.ConsumeResetToken using SQLite.
func (r *SQLiteUserRepository) ConsumeResetToken(ctx context.Context, token string, now time.Time) (string, error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	var (
		userID    string
		expiresAt int64
	)

	err := r.db.QueryRowContext(ctx,
		"DELETE FROM reset_tokens WHERE token = ? RETURNING user_id, expires_at", token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrInvalidAuthToken, err)
		}

		return "", fmt.Errorf("consume reset token: %w", err)
	}

	if !now.Before(time.UnixMilli(expiresAt)) {
		return "", fmt.Errorf("consume reset token: %w", domain.ErrInvalidAuthToken)
	}

	return userID, nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteUserRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
