package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/skill"

	"github.com/oklog/ulid/v2"
)

const skillColumns = `id, name, description, skill_type, config, template_id, status, approved, created_at, updated_at`

// UpsertSkill inserts a skill or updates the existing row with the same name.
func (s *SQLiteStore) UpsertSkill(ctx context.Context, sk skill.Skill) (skill.Skill, error) {
	if err := skill.Validate(sk); err != nil {
		return sk, err
	}

	now := s.now()
	if sk.ID == "" {
		sk.ID = ulid.Make().String()
	}
	if sk.Status == "" {
		sk.Status = skill.StatusPending
	}
	if sk.CreatedAt.IsZero() {
		sk.CreatedAt = now
	}
	sk.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (`+skillColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			skill_type = excluded.skill_type,
			config = excluded.config,
			template_id = excluded.template_id,
			status = excluded.status,
			approved = excluded.approved,
			updated_at = excluded.updated_at
	`,
		sk.ID, sk.Name, sk.Description, string(sk.Type), string(sk.Config), sk.TemplateID,
		string(sk.Status), sk.Approved, toMillis(sk.CreatedAt), toMillis(sk.UpdatedAt),
	)
	if err != nil {
		return sk, clawErrors.WrapWithCategory(err, "upsert skill "+sk.Name, clawErrors.ErrRegistry)
	}
	return sk, nil
}

// GetActiveApproved returns active, approved skills in creation order.
func (s *SQLiteStore) GetActiveApproved(ctx context.Context) ([]skill.Skill, error) {
	return s.querySkills(ctx, `SELECT `+skillColumns+` FROM skills WHERE status = ? AND approved = 1 ORDER BY created_at, rowid`, string(skill.StatusActive))
}

func (s *SQLiteStore) ListSkills(ctx context.Context) ([]skill.Skill, error) {
	return s.querySkills(ctx, `SELECT `+skillColumns+` FROM skills ORDER BY name`)
}

func (s *SQLiteStore) GetSkillByName(ctx context.Context, name string) (*skill.Skill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+skillColumns+` FROM skills WHERE name = ?`, name)
	sk, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, clawErrors.NotFound(fmt.Sprintf("skill %q", name))
	}
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "get skill "+name, clawErrors.ErrRegistry)
	}
	return &sk, nil
}

// SetSkillState changes status and approval of an existing skill.
func (s *SQLiteStore) SetSkillState(ctx context.Context, name string, status skill.Status, approved bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE skills SET status = ?, approved = ?, updated_at = ? WHERE name = ?`,
		string(status), approved, toMillis(s.now()), name)
	if err != nil {
		return clawErrors.WrapWithCategory(err, "update skill "+name, clawErrors.ErrRegistry)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return clawErrors.NotFound(fmt.Sprintf("skill %q", name))
	}
	return nil
}

func (s *SQLiteStore) DeleteSkill(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE name = ?`, name)
	if err != nil {
		return clawErrors.WrapWithCategory(err, "delete skill "+name, clawErrors.ErrRegistry)
	}
	return nil
}

func (s *SQLiteStore) querySkills(ctx context.Context, query string, args ...any) ([]skill.Skill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "query skills", clawErrors.ErrRegistry)
	}
	defer rows.Close()

	var out []skill.Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, clawErrors.WrapWithCategory(err, "scan skill", clawErrors.ErrRegistry)
		}
		out = append(out, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, clawErrors.WrapWithCategory(err, "iterate skills", clawErrors.ErrRegistry)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSkill(row scanner) (skill.Skill, error) {
	var (
		sk                   skill.Skill
		skillType, status    string
		cfg                  string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&sk.ID, &sk.Name, &sk.Description, &skillType, &cfg, &sk.TemplateID,
		&status, &sk.Approved, &createdAt, &updatedAt); err != nil {
		return sk, err
	}
	sk.Type = skill.Type(skillType)
	sk.Status = skill.Status(status)
	if strings.TrimSpace(cfg) != "" {
		// Stored verbatim; malformed JSON is rejected later by the security gate.
		sk.Config = json.RawMessage(cfg)
	}
	sk.CreatedAt = fromMillis(createdAt)
	sk.UpdatedAt = fromMillis(updatedAt)
	return sk, nil
}
