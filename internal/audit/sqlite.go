package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/clawsync/clawsync/internal/store"
)

// SQLiteStore persists records in an audit_records table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens a dedicated audit database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing database handle and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_records (
			id TEXT PRIMARY KEY,
			skill_name TEXT NOT NULL,
			skill_type TEXT NOT NULL,
			input TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			security_check_result TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			mcp_server TEXT NOT NULL DEFAULT '',
			trace_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_skill ON audit_records(skill_name);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
	`)
	if err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, skill_name, skill_type, input, output, success, error_message,
			security_check_result, duration_ms, timestamp, channel, mcp_server, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.SkillName, r.SkillType, r.Input, r.Output, r.Success, r.ErrorMessage,
		r.SecurityCheckResult, r.DurationMs, r.Timestamp.UnixNano(), r.Channel, r.MCPServer, r.TraceID,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.SkillName != "" {
		where = append(where, "skill_name = ?")
		args = append(args, f.SkillName)
	}
	if f.SecurityCheckResult != "" {
		where = append(where, "security_check_result = ?")
		args = append(args, f.SecurityCheckResult)
	}
	if f.Success != nil {
		where = append(where, "success = ?")
		args = append(args, *f.Success)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `SELECT id, skill_name, skill_type, input, output, success, error_message,
		security_check_result, duration_ms, timestamp, channel, mcp_server, trace_id FROM audit_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// newest first so LIMIT keeps the tail, reversed below
	query += " ORDER BY timestamp DESC, rowid DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r  Record
			ts int64
		)
		if err := rows.Scan(&r.ID, &r.SkillName, &r.SkillType, &r.Input, &r.Output, &r.Success,
			&r.ErrorMessage, &r.SecurityCheckResult, &r.DurationMs, &ts, &r.Channel, &r.MCPServer, &r.TraceID); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
