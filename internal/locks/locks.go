package locks

import (
	"context"
	"sync"
	"time"

	"coitrack-backend/internal/pkg/apperrors"

	"github.com/redis/go-redis/v9"
)

const lockPrefix = "coi:transition:"
const lockTTL = 30 * time.Second

// COILock guarantees at most one in-flight transition per COI id. A second
// concurrent request against the same COI is rejected with a ConflictError
// rather than interleaved. Backed by Redis SET NX EX when a client is
// configured, otherwise by an in-process table (single-instance deployments
// and tests).
type COILock struct {
	Rdb *redis.Client

	mu   sync.Mutex
	held map[string]bool
}

// Acquire takes the lock for the given COI id or returns a ConflictError.
func (l *COILock) Acquire(ctx context.Context, coiID string) error {
	if l.Rdb != nil {
		ok, err := l.Rdb.SetNX(ctx, lockPrefix+coiID, "1", lockTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict("Another update to this COI is in progress, reload and retry")
		}
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[coiID] {
		return apperrors.Conflict("Another update to this COI is in progress, reload and retry")
	}
	l.held[coiID] = true
	return nil
}

// Release frees the lock. Safe to call after a failed operation.
func (l *COILock) Release(ctx context.Context, coiID string) {
	if l.Rdb != nil {
		l.Rdb.Del(ctx, lockPrefix+coiID)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, coiID)
}
