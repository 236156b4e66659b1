package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/logger"

	"github.com/oklog/ulid/v2"
)

// Entry is what the tool pipeline hands to Logger.Log once an attempt has concluded.
type Entry struct {
	SkillName    string
	SkillType    string
	MCPServer    string
	Input        json.RawMessage
	Output       json.RawMessage
	Success      bool
	ErrorMessage string
	SecurityCode string
	Start        time.Time
}

// Logger turns entries into bounded records and appends them to a Store.
type Logger struct {
	store    Store
	maxChars int
	redact   []*regexp.Regexp
	now      func() time.Time
}

func NewLogger(store Store, cfg config.AuditConfig) (*Logger, error) {
	redact := make([]*regexp.Regexp, 0, len(cfg.RedactPatterns))
	for _, p := range cfg.RedactPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		redact = append(redact, re)
	}

	return &Logger{
		store:    store,
		maxChars: config.IntOrDefault(cfg.MaxPayloadChars, config.DefaultAuditMaxPayloadChars),
		redact:   redact,
		now:      time.Now,
	}, nil
}

// Log appends one record and returns it. A store failure is logged and
// swallowed so it never replaces the invocation's own result.
func (l *Logger) Log(ctx context.Context, e Entry) Record {
	// A cancelled turn still gets its record.
	ctx = context.WithoutCancel(ctx)
	now := l.now()
	duration := now.Sub(e.Start).Milliseconds()
	if e.Start.IsZero() || duration < 0 {
		duration = 0
	}

	rec := Record{
		ID:                  ulid.Make().String(),
		SkillName:           e.SkillName,
		SkillType:           e.SkillType,
		Input:               l.bound(string(e.Input)),
		Output:              l.bound(string(e.Output)),
		Success:             e.Success,
		ErrorMessage:        l.bound(e.ErrorMessage),
		SecurityCheckResult: e.SecurityCode,
		DurationMs:          duration,
		Timestamp:           now.UTC(),
		Channel:             logger.GetChannel(ctx),
		MCPServer:           e.MCPServer,
		TraceID:             logger.GetTraceID(ctx),
	}

	if err := l.store.Append(ctx, rec); err != nil {
		slog.Error("Failed to append invocation record",
			append([]any{"skill", rec.SkillName, "error", err}, logger.Attrs(ctx)...)...)
		return rec
	}

	slog.Debug("Invocation logged",
		"skill", rec.SkillName,
		"success", rec.Success,
		"security", rec.SecurityCheckResult,
		"duration_ms", rec.DurationMs,
	)
	return rec
}

func (l *Logger) Query(ctx context.Context, f Filter) ([]Record, error) {
	return l.store.Query(ctx, f)
}

func (l *Logger) bound(s string) string {
	for _, re := range l.redact {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return Truncate(s, l.maxChars)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
