package lock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKey(t *testing.T) {
	assert.Equal(t, "slot:42:lock", LockKey(42))
}

func TestLockValue(t *testing.T) {
	value := LockValue(7)
	parts := strings.SplitN(value, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "7", parts[0])
	assert.Len(t, parts[1], 8)

	// Token part must differ between calls.
	assert.NotEqual(t, value, LockValue(7))
}

func TestRedisSlotLockerFailsOpenWithoutClient(t *testing.T) {
	locker := NewRedisSlotLocker(nil, time.Second)

	// No lock store at all still lets the booking proceed.
	assert.True(t, locker.Acquire(context.Background(), 1, 10))
	assert.True(t, locker.Acquire(context.Background(), 1, 11))

	// Release must be a harmless no-op.
	locker.Release(context.Background(), 1)
}

func TestNewRedisSlotLockerDefaultTTL(t *testing.T) {
	locker := NewRedisSlotLocker(nil, 0)
	assert.Equal(t, DefaultTTL, locker.ttl)
}
