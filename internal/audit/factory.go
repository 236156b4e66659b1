package audit

import (
	"fmt"
	"strings"

	"github.com/clawsync/clawsync/internal/config"
)

// NewStore builds the backend named by cfg.Backend.
func NewStore(cfg config.AuditConfig, lockTimeout string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		return OpenSQLiteStore(cfg.Path)
	case "jsonl":
		timeout, err := config.DurationOrDefault(lockTimeout, config.DefaultStoreLockTimeout)
		if err != nil {
			return nil, fmt.Errorf("audit lock timeout: %w", err)
		}
		return NewJSONLStore(cfg.Path, timeout)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
