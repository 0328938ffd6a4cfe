// Package lock provides the short-TTL per-slot mutex that serializes the
// reservation decision. The lock is never the system of record; the booking
// row is. If Redis is unreachable the lock fails open so bookings stay
// available, and the storage-level uniqueness check on non-terminal bookings
// catches the races that slip through.
package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 60 * time.Second

type SlotLocker interface {
	// Acquire attempts a single atomic set-if-absent with expiry. It never
	// blocks or retries; false means another request holds the slot.
	Acquire(ctx context.Context, slotID int, holderID int) bool
	// Release best-effort deletes the lock. Failures are logged only; the
	// TTL is the fallback cleanup.
	Release(ctx context.Context, slotID int)
}

type RedisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *RedisSlotLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisSlotLocker{client: client, ttl: ttl}
}

// LockKey returns the Redis key guarding one slot.
func LockKey(slotID int) string {
	return fmt.Sprintf("slot:%d:lock", slotID)
}

// LockValue identifies the holder: "{holderId}:{randomToken}".
func LockValue(holderID int) string {
	return fmt.Sprintf("%d:%s", holderID, uuid.NewString()[:8])
}

func (l *RedisSlotLocker) Acquire(ctx context.Context, slotID int, holderID int) bool {
	if l.client == nil {
		log.Printf("SlotLocker: Redis not configured, proceeding without lock for slot %d", slotID)
		return true
	}

	ok, err := l.client.SetNX(ctx, LockKey(slotID), LockValue(holderID), l.ttl).Result()
	if err != nil {
		// Fail open: under a store outage, availability wins over strict
		// exclusivity. The booking uniqueness constraint is the second
		// line of defense.
		log.Printf("SlotLocker: error acquiring lock for slot %d: %v, proceeding without lock", slotID, err)
		return true
	}
	return ok
}

func (l *RedisSlotLocker) Release(ctx context.Context, slotID int) {
	if l.client == nil {
		return
	}
	if err := l.client.Del(ctx, LockKey(slotID)).Err(); err != nil {
		log.Printf("SlotLocker: error releasing lock for slot %d: %v", slotID, err)
	}
}
