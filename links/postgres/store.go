// Package postgres keeps consumed download links in PostgreSQL, where every
// gateway instance in front of the same drive sees them.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store implements links.UsedStore using PostgreSQL
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore connects to dsn and applies pending migrations
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// MarkUsed inserts id unless another instance already did
func (s *Store) MarkUsed(ctx context.Context, id string, expires time.Time, usedBy string) (bool, error) {
	query := `
		INSERT INTO used_links (id, expires_at, used_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query, id, expires.UTC(), sql.NullString{String: usedBy, Valid: usedBy != ""})
	if err != nil {
		return false, fmt.Errorf("failed to record used link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// Purge removes links that expired before now
func (s *Store) Purge(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM used_links WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge used links: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Debug("Purged used links",
		zap.Int64("count", rowsAffected),
		zap.Time("before", now))

	return int(rowsAffected), nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
