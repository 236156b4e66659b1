package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/clawsync/clawsync/internal/pathutil"

	"github.com/gofrs/flock"
)

// JSONLStore appends one JSON object per line. Writers in other processes are
// serialized through a sibling ".lock" file.
type JSONLStore struct {
	mu          sync.RWMutex
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
}

func NewJSONLStore(path string, lockTimeout time.Duration) (*JSONLStore, error) {
	p, err := pathutil.EnsureParent(path)
	if err != nil {
		return nil, err
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &JSONLStore{
		path:        p,
		lock:        flock.New(p + ".lock"),
		lockTimeout: lockTimeout,
	}, nil
}

func (s *JSONLStore) Append(ctx context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	if !locked {
		return fmt.Errorf("audit log %s is locked", s.path)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("Failed to release audit log lock", "path", s.path, "error", err)
		}
	}()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

func (s *JSONLStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			slog.Warn("Skipping malformed audit line", "path", s.path, "error", err)
			continue
		}
		if f.matches(r) {
			out = append(out, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return applyLimit(out, f.Limit), nil
}

func (s *JSONLStore) Close() error { return nil }
