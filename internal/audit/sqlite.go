package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteSink keeps entries in a private in-memory SQLite database. The pool is
// pinned to one connection: the database lives and dies with it, and every
// statement is serialized through it.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite creates the in-memory database and its schema.
func OpenSQLite(ctx context.Context) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
	  id          TEXT PRIMARY KEY,
	  trace_id    TEXT NOT NULL,
	  input_text  TEXT NOT NULL,
	  state_json  TEXT NOT NULL,
	  status      TEXT NOT NULL,
	  timestamp   TEXT NOT NULL,
	  error       TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_trace_id ON audit_log(trace_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Close releases the database; all entries are lost.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Save implements Sink.
func (s *SQLiteSink) Save(ctx context.Context, e Entry) error {
	state := e.State
	if state == nil {
		state = []string{}
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode audit state: %w", err)
	}

	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, trace_id, input_text, state_json, status, timestamp, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ulid.Make().String(), e.TraceID, e.InputText, string(stateJSON), string(e.Status), e.Timestamp, errText)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Last implements Sink.
func (s *SQLiteSink) Last(ctx context.Context) (*Entry, error) {
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Recent implements Sink.
func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, input_text, state_json, status, timestamp, error
		FROM audit_log
		ORDER BY rowid DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, n)
	for rows.Next() {
		var (
			e         Entry
			stateJSON string
			status    string
			errText   sql.NullString
		)
		if err := rows.Scan(&e.TraceID, &e.InputText, &stateJSON, &status, &e.Timestamp, &errText); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &e.State); err != nil {
			return nil, fmt.Errorf("decode audit state: %w", err)
		}
		e.Status = Status(status)
		e.Error = errText.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

// Count returns the number of stored entries.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}
