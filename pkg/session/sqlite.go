package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteBackend keeps session identifiers in a small key/value table.
type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = &SQLiteBackend{}

func NewSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	if dsn == "" {
		return nil, errors.New("sqlite session backend: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteBackend{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteBackendForFile opens (and creates) the database file at path.
func NewSQLiteBackendForFile(path string) (*SQLiteBackend, error) {
	path = strings.TrimSpace(path)
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create session db dir")
		}
	}
	dsn, err := SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteBackend(dsn)
}

// SQLiteDSNForFile returns a DSN tuned for one writer and concurrent readers.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite session backend: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (s *SQLiteBackend) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session backend: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS widget_sessions (
		  storage_key TEXT PRIMARY KEY,
		  session_id TEXT NOT NULL,
		  updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite session backend: migrate")
		}
	}
	return nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("sqlite session backend: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id FROM widget_sessions WHERE storage_key = ?
	`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "sqlite session backend: get")
	}
	return id, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session backend: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO widget_sessions (storage_key, session_id, updated_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at_ms = excluded.updated_at_ms
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite session backend: set")
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session backend: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM widget_sessions WHERE storage_key = ?`, key); err != nil {
		return errors.Wrap(err, "sqlite session backend: delete")
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
