// Package settings holds runtime business policy: string-typed settings in a
// Redis hash and the opening hours derived from them.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis hash holding all settings.
const DefaultKey = "booking:settings"

// Keys read by the hours resolver. Engine policy keys live in the booking package.
const (
	KeyBusinessHours     = "business_hours"
	KeyClosedDates       = "closed_dates"
	KeyEmergencyBlockers = "emergency_blockers"
)

// Store keeps settings in one Redis hash.
type Store struct {
	redis *redis.Client
	key   string
}

// NewStore creates a settings store on the default hash.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient, key: DefaultKey}
}

// Get returns the value and whether it was set.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.redis.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores a single value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.redis.HSet(ctx, s.key, key, value).Err(); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// All returns every stored setting.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	values, err := s.redis.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("settings: get all: %w", err)
	}
	return values, nil
}

// SetMany stores several values at once; an empty value deletes the key.
func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	set := make(map[string]any, len(values))
	var del []string
	for k, v := range values {
		if v == "" {
			del = append(del, k)
			continue
		}
		set[k] = v
	}
	pipe := s.redis.TxPipeline()
	if len(set) > 0 {
		pipe.HSet(ctx, s.key, set)
	}
	if len(del) > 0 {
		pipe.HDel(ctx, s.key, del...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("settings: set many: %w", err)
	}
	return nil
}
