// ABOUTME: SQLite implementation of the result store using modernc.org/sqlite
// ABOUTME: Keeps one row per request ID with automatic schema creation

package results

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/research-gateway/internal/step"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "results", "backend", "sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite result store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_results (
			request_id TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	return err
}

// Store upserts the result row for requestID.
func (s *SQLiteStore) Store(ctx context.Context, requestID string, result step.Action) error {
	if !ValidID(requestID) {
		return fmt.Errorf("invalid request id %q", requestID)
	}
	data, err := encode(result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_results (request_id, action, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			action = excluded.action,
			payload = excluded.payload,
			created_at = excluded.created_at
	`,
		requestID,
		string(result.Kind()),
		string(data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}

	s.logger.Debug("stored result", "request_id", requestID, "action", result.Kind())
	return nil
}

// Fetch returns the stored payload for requestID.
func (s *SQLiteStore) Fetch(ctx context.Context, requestID string) ([]byte, error) {
	if !ValidID(requestID) {
		return nil, ErrNotFound
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM task_results WHERE request_id = ?`, requestID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying result: %w", err)
	}
	return []byte(payload), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite result store")
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
