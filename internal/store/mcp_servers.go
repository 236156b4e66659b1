package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/skill"

	"github.com/oklog/ulid/v2"
)

const serverColumns = `id, name, url, enabled, approved, rate_limit_per_minute, health_status, tool_count, last_health_check, created_at`

// AddServer registers a new MCP server. New servers start disabled and
// unapproved regardless of the fields passed in.
func (s *SQLiteStore) AddServer(ctx context.Context, m skill.MCPServer) (skill.MCPServer, error) {
	m.Enabled = false
	m.Approved = false
	return s.UpsertServer(ctx, m)
}

// UpsertServer inserts or replaces a server by name, keeping the given flags.
func (s *SQLiteStore) UpsertServer(ctx context.Context, m skill.MCPServer) (skill.MCPServer, error) {
	if strings.TrimSpace(m.Name) == "" {
		return m, clawErrors.InvalidInput("mcp server name is required")
	}
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.RateLimitPerMinute <= 0 {
		m.RateLimitPerMinute = config.DefaultMCPRateLimitPerMinute
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_servers (`+serverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			enabled = excluded.enabled,
			approved = excluded.approved,
			rate_limit_per_minute = excluded.rate_limit_per_minute
	`,
		m.ID, m.Name, m.URL, m.Enabled, m.Approved, m.RateLimitPerMinute,
		m.HealthStatus, m.ToolCount, toMillis(m.LastHealthCheck), toMillis(m.CreatedAt),
	)
	if err != nil {
		return m, clawErrors.WrapWithCategory(err, "upsert mcp server "+m.Name, clawErrors.ErrRegistry)
	}
	return m, nil
}

// GetEnabledApproved returns at most maxServers enabled, approved servers.
func (s *SQLiteStore) GetEnabledApproved(ctx context.Context) ([]skill.MCPServer, error) {
	limit := config.IntOrDefault(s.maxServers, config.DefaultMCPMaxServers)
	return s.queryServers(ctx,
		`SELECT `+serverColumns+` FROM mcp_servers WHERE enabled = 1 AND approved = 1 ORDER BY created_at, rowid LIMIT ?`, limit)
}

func (s *SQLiteStore) ListServers(ctx context.Context) ([]skill.MCPServer, error) {
	return s.queryServers(ctx, `SELECT `+serverColumns+` FROM mcp_servers ORDER BY name`)
}

func (s *SQLiteStore) GetServerByName(ctx context.Context, name string) (*skill.MCPServer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM mcp_servers WHERE name = ?`, name)
	m, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, clawErrors.NotFound(fmt.Sprintf("mcp server %q", name))
	}
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "get mcp server "+name, clawErrors.ErrRegistry)
	}
	return &m, nil
}

// SetServerState toggles enablement and approval.
func (s *SQLiteStore) SetServerState(ctx context.Context, name string, enabled, approved bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE mcp_servers SET enabled = ?, approved = ? WHERE name = ?`, enabled, approved, name)
	if err != nil {
		return clawErrors.WrapWithCategory(err, "update mcp server "+name, clawErrors.ErrRegistry)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clawErrors.NotFound(fmt.Sprintf("mcp server %q", name))
	}
	return nil
}

func (s *SQLiteStore) RecordHealth(ctx context.Context, serverID, status string, toolCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers SET health_status = ?, tool_count = ?, last_health_check = ? WHERE id = ?`,
		status, toolCount, toMillis(s.now()), serverID)
	if err != nil {
		return clawErrors.WrapWithCategory(err, "record mcp health", clawErrors.ErrRegistry)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clawErrors.NotFound(fmt.Sprintf("mcp server %q", serverID))
	}
	return nil
}

func (s *SQLiteStore) queryServers(ctx context.Context, query string, args ...any) ([]skill.MCPServer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "query mcp servers", clawErrors.ErrRegistry)
	}
	defer rows.Close()

	var out []skill.MCPServer
	for rows.Next() {
		m, err := scanServer(rows)
		if err != nil {
			return nil, clawErrors.WrapWithCategory(err, "scan mcp server", clawErrors.ErrRegistry)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, clawErrors.WrapWithCategory(err, "iterate mcp servers", clawErrors.ErrRegistry)
	}
	return out, nil
}

func scanServer(row scanner) (skill.MCPServer, error) {
	var (
		m                    skill.MCPServer
		lastCheck, createdAt int64
	)
	if err := row.Scan(&m.ID, &m.Name, &m.URL, &m.Enabled, &m.Approved, &m.RateLimitPerMinute,
		&m.HealthStatus, &m.ToolCount, &lastCheck, &createdAt); err != nil {
		return m, err
	}
	m.LastHealthCheck = fromMillis(lastCheck)
	m.CreatedAt = fromMillis(createdAt)
	return m, nil
}
