package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/paguro/pkg/reply"
	"github.com/go-go-golems/paguro/pkg/transcript"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteTranscriptStore struct {
	db *sql.DB
}

var _ TranscriptStore = &SQLiteTranscriptStore{}

func NewSQLiteTranscriptStore(dsn string) (*SQLiteTranscriptStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite transcript store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteTranscriptStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteTranscriptStoreForFile opens (and creates) the history database
// at path.
func NewSQLiteTranscriptStoreForFile(path string) (*SQLiteTranscriptStore, error) {
	dsn, err := SQLiteTranscriptDSNForFile(path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: create dir")
		}
	}
	return NewSQLiteTranscriptStore(dsn)
}

func SQLiteTranscriptDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite transcript store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteTranscriptStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteTranscriptStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_conversations (
		  conv_id TEXT PRIMARY KEY,
		  widget TEXT NOT NULL DEFAULT '',
		  session_id TEXT NOT NULL DEFAULT '',
		  created_at_ms INTEGER NOT NULL,
		  last_activity_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS transcript_conversations_by_last_activity
		  ON transcript_conversations(last_activity_ms DESC, conv_id ASC);`,
		`CREATE TABLE IF NOT EXISTS transcript_entries (
		  conv_id TEXT NOT NULL,
		  seq INTEGER NOT NULL,
		  sender TEXT NOT NULL,
		  kind TEXT NOT NULL,
		  source TEXT NOT NULL,
		  html TEXT NOT NULL,
		  actions_json TEXT NOT NULL DEFAULT '[]',
		  link TEXT NOT NULL DEFAULT '',
		  at_ms INTEGER NOT NULL,
		  PRIMARY KEY (conv_id, seq)
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite transcript store: migrate")
		}
	}
	return nil
}

func (s *SQLiteTranscriptStore) AppendEntry(ctx context.Context, convID string, e transcript.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return errors.New("sqlite transcript store: convID is empty")
	}
	if e.Seq <= 0 {
		return errors.New("sqlite transcript store: entry has no sequence number")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	actions := e.Actions
	if actions == nil {
		actions = []reply.QuickAction{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: marshal actions")
	}
	at := e.At.UnixMilli()
	if e.At.IsZero() {
		at = time.Now().UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcript_entries(conv_id, seq, sender, kind, source, html, actions_json, link, at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_id, seq) DO UPDATE SET
		  sender = excluded.sender,
		  kind = excluded.kind,
		  source = excluded.source,
		  html = excluded.html,
		  actions_json = excluded.actions_json,
		  link = excluded.link,
		  at_ms = excluded.at_ms
	`, convID, e.Seq, string(e.Sender), string(e.Kind), e.Source, e.HTML, string(actionsJSON), e.Link, at); err != nil {
		return errors.Wrap(err, "sqlite transcript store: upsert entry")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcript_conversations(conv_id, widget, session_id, created_at_ms, last_activity_ms)
		VALUES(?, '', '', ?, ?)
		ON CONFLICT(conv_id) DO UPDATE SET
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > transcript_conversations.last_activity_ms THEN excluded.last_activity_ms
				ELSE transcript_conversations.last_activity_ms
			END
	`, convID, at, at); err != nil {
		return errors.Wrap(err, "sqlite transcript store: touch conversation")
	}

	return tx.Commit()
}

func (s *SQLiteTranscriptStore) Entries(ctx context.Context, convID string, limit int) ([]transcript.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	if convID == "" {
		return nil, errors.New("sqlite transcript store: convID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 5000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, sender, kind, source, html, actions_json, link, at_ms
		FROM transcript_entries
		WHERE conv_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`, convID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: query entries")
	}
	defer func() { _ = rows.Close() }()

	var out []transcript.Entry
	for rows.Next() {
		var (
			e           transcript.Entry
			sender      string
			kind        string
			actionsJSON string
			atMs        int64
		)
		if err := rows.Scan(&e.Seq, &sender, &kind, &e.Source, &e.HTML, &actionsJSON, &e.Link, &atMs); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: scan entry")
		}
		e.Sender = transcript.Sender(sender)
		e.Kind = transcript.Kind(kind)
		e.At = time.UnixMilli(atMs)
		if err := json.Unmarshal([]byte(actionsJSON), &e.Actions); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: decode actions")
		}
		if len(e.Actions) == 0 {
			e.Actions = nil
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: iterate entries")
	}
	return out, nil
}

func (s *SQLiteTranscriptStore) UpsertConversation(ctx context.Context, record ConversationRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	record = normalizeConversationRecord(record, time.Now().UnixMilli())
	if record.ConvID == "" {
		return errors.New("sqlite transcript store: convID is empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_conversations (conv_id, widget, session_id, created_at_ms, last_activity_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conv_id) DO UPDATE SET
			widget = CASE
				WHEN excluded.widget <> '' THEN excluded.widget
				ELSE transcript_conversations.widget
			END,
			session_id = CASE
				WHEN excluded.session_id <> '' THEN excluded.session_id
				ELSE transcript_conversations.session_id
			END,
			created_at_ms = CASE
				WHEN excluded.created_at_ms < transcript_conversations.created_at_ms THEN excluded.created_at_ms
				ELSE transcript_conversations.created_at_ms
			END,
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > transcript_conversations.last_activity_ms THEN excluded.last_activity_ms
				ELSE transcript_conversations.last_activity_ms
			END
	`, record.ConvID, record.Widget, record.SessionID, record.CreatedAtMs, record.LastActivityMs)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: upsert conversation")
	}
	return nil
}

const conversationColumns = `
	c.conv_id, c.widget, c.session_id, c.created_at_ms, c.last_activity_ms,
	(SELECT COUNT(*) FROM transcript_entries e WHERE e.conv_id = c.conv_id)
`

func (s *SQLiteTranscriptStore) GetConversation(ctx context.Context, convID string) (ConversationRecord, bool, error) {
	if s == nil || s.db == nil {
		return ConversationRecord{}, false, errors.New("sqlite transcript store: db is nil")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return ConversationRecord{}, false, errors.New("sqlite transcript store: convID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var r ConversationRecord
	err := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM transcript_conversations c WHERE c.conv_id = ?`, convID).
		Scan(&r.ConvID, &r.Widget, &r.SessionID, &r.CreatedAtMs, &r.LastActivityMs, &r.Entries)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationRecord{}, false, nil
	}
	if err != nil {
		return ConversationRecord{}, false, errors.Wrap(err, "sqlite transcript store: get conversation")
	}
	return r, true, nil
}

func (s *SQLiteTranscriptStore) ListConversations(ctx context.Context, limit int, sinceMs int64) ([]ConversationRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT ` + conversationColumns + ` FROM transcript_conversations c`
	args := make([]any, 0, 2)
	if sinceMs > 0 {
		query += ` WHERE c.last_activity_ms >= ?`
		args = append(args, sinceMs)
	}
	query += ` ORDER BY c.last_activity_ms DESC, c.conv_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: list conversations")
	}
	defer func() { _ = rows.Close() }()

	records := make([]ConversationRecord, 0)
	for rows.Next() {
		var r ConversationRecord
		if err := rows.Scan(&r.ConvID, &r.Widget, &r.SessionID, &r.CreatedAtMs, &r.LastActivityMs, &r.Entries); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: scan conversation")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: iterate conversations")
	}
	return records, nil
}
