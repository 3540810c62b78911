package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

// SQLiteSessionRepositoryConfig holds configuration for the SQLite session repository.
type SQLiteSessionRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"var/storage/authsvc.db"`
}

// SQLiteSessionRepository implements Repository using SQLite as the storage backend.
type SQLiteSessionRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock sync.Mutex
}

var _ Repository = (*SQLiteSessionRepository)(nil)

// SQLiteSessionRepositoryFactory creates a factory function that returns a new SQLiteSessionRepository.
func SQLiteSessionRepositoryFactory(cfg SQLiteSessionRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLiteSessionRepository(cfg)
	}
}

// NewSQLiteSessionRepository opens the database and creates the schema if needed.
func NewSQLiteSessionRepository(cfg SQLiteSessionRepositoryConfig) (*SQLiteSessionRepository, error) {
	db, err := sql.Open("sqlite", "file:"+cfg.DatabasePath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT    PRIMARY KEY,
			user_id    TEXT    NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteSessionRepository{
		db: db,
		log: logging.GetLogger("repo.session.sqlite_session_repository").With(
			logging.Group("db", "path", cfg.DatabasePath),
		),
	}, nil
}

// CreateSession implements Repository.CreateSession.
func (r *SQLiteSessionRepository) CreateSession(ctx context.Context, rec Record) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		rec.ID, rec.UserID, rec.ExpiresAt.UnixMilli(), rec.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetSession implements Repository.GetSession.
func (r *SQLiteSessionRepository) GetSession(ctx context.Context, id string, now time.Time) (Record, error) {
	var (
		rec                  = Record{ID: id}
		expiresAt, createdAt int64
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at, created_at FROM sessions WHERE id = ?", id,
	).Scan(&rec.UserID, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrInvalidAuthToken, err)
		}

		return Record{}, fmt.Errorf("query session: %w", err)
	}

	rec.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()

	if !now.Before(rec.ExpiresAt) {
		return Record{}, fmt.Errorf("query session: %w", domain.ErrInvalidAuthToken)
	}

	return rec, nil
}

// DeleteSession implements Repository.DeleteSession. Deleting an unknown
// session is not an error.
func (r *SQLiteSessionRepository) DeleteSession(ctx context.Context, id string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	r.log.DebugContext(ctx, "session deleted", "id", id)

	return nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteSessionRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
