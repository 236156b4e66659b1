package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clawsync/clawsync/internal/pathutil"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 100 * time.Millisecond

// InstanceLock guards a registry database against a second server process.
type InstanceLock struct {
	mu         sync.Mutex
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
}

// AcquireInstanceLock takes an exclusive lock next to dbPath, retrying until timeout.
func AcquireInstanceLock(ctx context.Context, dbPath string, timeout time.Duration) (*InstanceLock, error) {
	lockPath, err := pathutil.EnsureParent(dbPath + ".lock")
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("registry %s is locked by another instance (timeout after %v): %w", dbPath, timeout, err)
	}
	if !locked {
		return nil, fmt.Errorf("registry %s is locked by another instance", dbPath)
	}

	l := &InstanceLock{fileLock: fileLock, lockPath: lockPath, acquiredAt: time.Now()}
	slog.Info("Instance lock acquired", "path", lockPath)
	return l, nil
}

func (l *InstanceLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLock == nil {
		return
	}

	if err := l.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release instance lock", "path", l.lockPath, "error", err)
	} else {
		slog.Info("Instance lock released", "path", l.lockPath, "held_duration_ms", time.Since(l.acquiredAt).Milliseconds())
	}
	l.fileLock = nil
}

func (l *InstanceLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fileLock != nil
}
