// Package sqlite persists consumed download links so that a link stays spent
// across gateway restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS used_links (
    id TEXT PRIMARY KEY,
    expires_at INTEGER NOT NULL,
    used_at INTEGER NOT NULL,
    used_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_used_links_expires_at ON used_links(expires_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

// MarkUsed inserts id unless it is already present
func (s *Store) MarkUsed(ctx context.Context, id string, expires time.Time, usedBy string) (bool, error) {
	result, err := s.db.ExecContext(
		ctx,
		`INSERT INTO used_links (id, expires_at, used_at, used_by) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id,
		expires.Unix(),
		time.Now().Unix(),
		nullString(usedBy),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record used link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *Store) Purge(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM used_links WHERE expires_at < ?`, now.Unix())
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

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
