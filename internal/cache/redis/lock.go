package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

//go:embed scripts/unlock.lua
var unlockLua string

// releaseTimeout bounds the unlock round trip, which runs detached from the
// caller's context.
const releaseTimeout = 5 * time.Second

// LockManager hands out per-pair locks so two schedulers sharing a
// database never evaluate the same pair at once.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying(), unlock: redis.NewScript(unlockLua)}
}

func lockKey(key string) string { return "lock:" + key }

// Acquire takes key for ttl. It returns domain.ErrLockHeld when another
// owner holds it. The returned release func is idempotent and only deletes
// the key while this owner's token is still stored.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k, token := lockKey(key), uuid.NewString()

	ok, err := m.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			m.unlock.Run(ctx, m.rdb, []string{k}, token)
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
