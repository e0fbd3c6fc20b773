// Package slotlock provides short-lived Redis locks that serialize booking
// creation for the same team member and day across API replicas.
package slotlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

const (
	keyPrefix  = "booking:slot:"
	defaultTTL = 30 * time.Second
)

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker holds one Redis key per locked slot. The TTL frees locks left by a
// crashed process.
type Locker struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// New creates a Locker. ttl <= 0 uses the default.
func New(client *redis.Client, ttl time.Duration, logger *logging.Logger) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Locker{redis: client, ttl: ttl, logger: logger}
}

var _ booking.SlotLocker = (*Locker)(nil)

// Acquire takes the lock for key. The returned release is safe to call once
// the lock has expired or been taken over.
func (l *Locker) Acquire(ctx context.Context, key string) (bool, func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("slotlock: acquire %s: %w", key, err)
	}
	if !ok {
		return false, func() {}, nil
	}
	release := func() {
		// The request context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.redis, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("slotlock: release failed", "key", key, "error", err)
		}
	}
	return true, release, nil
}
