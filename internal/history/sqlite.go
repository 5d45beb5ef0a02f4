package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps anomaly history across monitor runs
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the history database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore uses an already opened database
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS anomalies (
			id TEXT PRIMARY KEY,
			ts_unix_ns INTEGER NOT NULL,
			tool TEXT NOT NULL,
			query TEXT NOT NULL,
			confidence REAL NOT NULL,
			severity TEXT NOT NULL,
			new_topics_json TEXT NOT NULL,
			reason TEXT NOT NULL,
			session TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_ts ON anomalies(ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_tool_ts ON anomalies(tool, ts_unix_ns);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// Append stores entries in one transaction. Entries already present are skipped.
func (s *SQLiteStore) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO anomalies
		(id, ts_unix_ns, tool, query, confidence, severity, new_topics_json, reason, session)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("anomaly entry missing id")
		}
		topics := e.NewTopics
		if topics == nil {
			topics = []string{}
		}
		b, err := json.Marshal(topics)
		if err != nil {
			return fmt.Errorf("marshal topics: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Timestamp.UnixNano(), e.Tool, e.Query, e.Confidence, e.Severity, string(b), e.Reason, e.Session); err != nil {
			return fmt.Errorf("insert anomaly: %w", err)
		}
	}
	return tx.Commit()
}

// List returns the most recent entries, newest first. limit <= 0 returns all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT id, ts_unix_ns, tool, query, confidence, severity, new_topics_json, reason, COALESCE(session, '')
		FROM anomalies ORDER BY ts_unix_ns DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			ts     int64
			topics string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Tool, &e.Query, &e.Confidence, &e.Severity, &topics, &e.Reason, &e.Session); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		if err := json.Unmarshal([]byte(topics), &e.NewTopics); err != nil {
			return nil, fmt.Errorf("decode topics of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByTool returns the number of stored anomalies per tool
func (s *SQLiteStore) CountByTool(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tool, COUNT(*) FROM anomalies GROUP BY tool`)
	if err != nil {
		return nil, fmt.Errorf("count anomalies: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var tool string
		var n int
		if err := rows.Scan(&tool, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[tool] = n
	}
	return out, rows.Err()
}
