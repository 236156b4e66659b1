// Package audit records one entry per tool invocation attempt.
package audit

import (
	"context"
	"time"
)

// Record is the persisted form of an invocation attempt. Input, Output and
// ErrorMessage are already truncated and redacted.
type Record struct {
	ID                  string    `json:"id"`
	SkillName           string    `json:"skillName"`
	SkillType           string    `json:"skillType"`
	Input               string    `json:"input"`
	Output              string    `json:"output,omitempty"`
	Success             bool      `json:"success"`
	ErrorMessage        string    `json:"errorMessage,omitempty"`
	SecurityCheckResult string    `json:"securityCheckResult"`
	DurationMs          int64     `json:"durationMs"`
	Timestamp           time.Time `json:"timestamp"`
	Channel             string    `json:"channel,omitempty"`
	MCPServer           string    `json:"mcpServer,omitempty"`
	TraceID             string    `json:"traceId,omitempty"`
}

type Filter struct {
	SkillName           string
	SecurityCheckResult string
	Success             *bool
	Since               time.Time
	// Limit keeps the newest N matches. Zero returns everything.
	Limit int
}

func (f Filter) matches(r Record) bool {
	if f.SkillName != "" && r.SkillName != f.SkillName {
		return false
	}
	if f.SecurityCheckResult != "" && r.SecurityCheckResult != f.SecurityCheckResult {
		return false
	}
	if f.Success != nil && r.Success != *f.Success {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func applyLimit(records []Record, limit int) []Record {
	if limit > 0 && len(records) > limit {
		return records[len(records)-limit:]
	}
	return records
}

// Store is the append-only sink for records. Retry policy, if any, belongs to
// the implementation.
type Store interface {
	Append(ctx context.Context, r Record) error
	Query(ctx context.Context, f Filter) ([]Record, error)
	Close() error
}
