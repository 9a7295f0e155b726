package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

var _ ports.SessionLocker = (*Lock)(nil)

// Lock keys live next to the session keys so they share the same keyspace
// conventions ("summary:<session>" becomes "chat_lock_v2:summary:<session>").
const lockPrefix = "chat_lock_v2:"

// ErrLockNotHeld is returned by Release when the lock expired or was taken
// over before the holder released it.
var ErrLockNotHeld = errors.New("lock not held by this instance")

// Lock serializes per-session work across API replicas with SET NX PX.
// Each instance writes its own owner id as the value, so only the holder can
// release the key.
type Lock struct {
	client  *redis.Client
	ownerID string
}

// NewLock returns a lock bound to client with a fresh owner id.
func NewLock(client *redis.Client) *Lock {
	return &Lock{
		client:  client,
		ownerID: newOwnerID(),
	}
}

// newOwnerID identifies this process in lock values: hostname/pid/uuid.
func newOwnerID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s/%d/%s", hostname, os.Getpid(), uuid.NewString())
}

// Acquire tries once to take the named lock for ttl. It does not wait: false
// means another instance holds it and the caller should skip the work.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, domain.WrapError(domain.ErrSessionStore, "acquire lock "+name, err)
	}
	return acquired, nil
}

// compareAndDelete removes KEYS[1] only when it still holds ARGV[1] and
// returns the number of keys removed.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// Release drops the named lock if this instance still owns it. When the TTL
// ran out first (or another instance took the key over) nothing is deleted
// and ErrLockNotHeld is returned, so callers can log that the critical
// section outlived its lease.
func (l *Lock) Release(ctx context.Context, name string) error {
	removed, err := compareAndDelete.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID).Int64()
	if err != nil {
		return domain.WrapError(domain.ErrSessionStore, "release lock "+name, err)
	}
	if removed == 0 {
		return fmt.Errorf("release lock %s: %w", name, ErrLockNotHeld)
	}
	return nil
}
