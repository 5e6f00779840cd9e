package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Anonymous sessions are hashes of event id → order code.

// GetOrderCode returns the order code remembered for the event, or "".
func (r *Redis) GetOrderCode(ctx context.Context, session, eventID string) (string, error) {
	code, err := r.Client.HGet(ctx, sessionKeyPrefix+session, eventID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session %s: %w", session, err)
	}
	return code, nil
}

// SetOrderCode remembers the order code and refreshes the session TTL.
func (r *Redis) SetOrderCode(ctx context.Context, session, eventID, code string) error {
	key := sessionKeyPrefix + session
	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, key, eventID, code)
	pipe.Expire(ctx, key, r.options.SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session %s: %w", session, err)
	}
	return nil
}

func (r *Redis) ForgetOrderCode(ctx context.Context, session, eventID string) error {
	return r.Client.HDel(ctx, sessionKeyPrefix+session, eventID).Err()
}
