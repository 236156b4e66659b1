package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"text/template"

	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/skill"

	"github.com/oklog/ulid/v2"
)

// UpsertTemplate stores a template after checking that its body parses.
func (s *SQLiteStore) UpsertTemplate(ctx context.Context, t skill.Template) (skill.Template, error) {
	if strings.TrimSpace(t.Body) == "" {
		return t, clawErrors.InvalidInput("template body is required")
	}
	if _, err := template.New(t.Name).Parse(t.Body); err != nil {
		return t, clawErrors.WrapWithCategory(err, "parse template "+t.Name, clawErrors.ErrInvalidInput)
	}
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, description, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			body = excluded.body
	`, t.ID, t.Name, t.Description, t.Body, toMillis(t.CreatedAt))
	if err != nil {
		return t, clawErrors.WrapWithCategory(err, "upsert template "+t.ID, clawErrors.ErrRegistry)
	}
	return t, nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*skill.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, body, created_at FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, clawErrors.NotFound(fmt.Sprintf("template %q", id))
	}
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "get template "+id, clawErrors.ErrRegistry)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]skill.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, body, created_at FROM templates ORDER BY name`)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "query templates", clawErrors.ErrRegistry)
	}
	defer rows.Close()

	var out []skill.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, clawErrors.WrapWithCategory(err, "scan template", clawErrors.ErrRegistry)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(row scanner) (skill.Template, error) {
	var (
		t         skill.Template
		createdAt int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Body, &createdAt); err != nil {
		return t, err
	}
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}
