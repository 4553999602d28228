package locks

import (
	"context"
	"testing"

	"coitrack-backend/internal/pkg/apperrors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInProcessLock_Conflict: a second acquire on the same COI is a conflict
// until the first is released.
func TestInProcessLock_Conflict(t *testing.T) {
	l := &COILock{}
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "coi-1"))

	err := l.Acquire(ctx, "coi-1")
	assert.True(t, apperrors.IsConflict(err))

	// A different COI is unaffected.
	require.NoError(t, l.Acquire(ctx, "coi-2"))

	l.Release(ctx, "coi-1")
	require.NoError(t, l.Acquire(ctx, "coi-1"))
}

// TestRedisLock_Conflict exercises the Redis SET NX path.
func TestRedisLock_Conflict(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := &COILock{Rdb: rdb}
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "coi-1"))
	assert.True(t, mr.Exists("coi:transition:coi-1"))

	err := l.Acquire(ctx, "coi-1")
	assert.True(t, apperrors.IsConflict(err))

	l.Release(ctx, "coi-1")
	assert.False(t, mr.Exists("coi:transition:coi-1"))
	require.NoError(t, l.Acquire(ctx, "coi-1"))
}

// TestRedisLock_TTLExpiry: a crashed holder's lock frees itself after the
// TTL.
func TestRedisLock_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := &COILock{Rdb: rdb}
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "coi-1"))
	mr.FastForward(lockTTL)
	require.NoError(t, l.Acquire(ctx, "coi-1"))
}
