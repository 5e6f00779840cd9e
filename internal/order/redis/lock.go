package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	orderLockPrefix   = "order_lock:"
	refundLockPrefix  = "refund_lock:"
	sessionLockPrefix = "session_lock:"
	sessionKeyPrefix  = "ledger_session:"
)

// ErrLockTimeout is returned when a waiting lock could not be acquired in time.
var ErrLockTimeout = fmt.Errorf("lock wait timed out: %w", models.ErrConflict)

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	LockTTL    time.Duration
	LockWait   time.Duration
	LockRetry  time.Duration
	SessionTTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		LockTTL:    30 * time.Second,
		LockWait:   5 * time.Second,
		LockRetry:  25 * time.Millisecond,
		SessionTTL: 30 * 24 * time.Hour,
	}
}

type Redis struct {
	Client  *redis.Client
	Logger  *logger.Logger
	options Options
}

func NewRedis(client *redis.Client, log *logger.Logger, opts Options) *Redis {
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultOptions().LockTTL
	}
	if opts.LockRetry <= 0 {
		opts.LockRetry = DefaultOptions().LockRetry
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultOptions().SessionTTL
	}
	return &Redis{Client: client, Logger: log, options: opts}
}

// TryLock takes key for token without waiting.
func (r *Redis) TryLock(ctx context.Context, key, token string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, key, token, r.options.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", key, err)
	}
	return ok, nil
}

// Lock waits up to the configured LockWait for key.
func (r *Redis) Lock(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(r.options.LockWait)
	for {
		ok, err := r.TryLock(ctx, key, token)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.options.LockRetry):
		}
	}
}

// Unlock releases key if token still owns it.
func (r *Redis) Unlock(ctx context.Context, key, token string) error {
	err := unlockScript.Run(ctx, r.Client, []string{key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	return nil
}

// IsLocked checks a key without taking it.
func (r *Redis) IsLocked(ctx context.Context, key string) (bool, error) {
	_, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LockOrder guards checkout of one order. Busy orders fail fast.
func (r *Redis) LockOrder(ctx context.Context, orderID, token string) error {
	ok, err := r.TryLock(ctx, orderLockPrefix+orderID, token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checkout already in progress for order %s: %w", orderID, models.ErrConflict)
	}
	return nil
}

// WaitOrderLock takes the same lock as LockOrder but waits up to LockWait.
// Cart edits queue behind a running checkout this way.
func (r *Redis) WaitOrderLock(ctx context.Context, orderID, token string) error {
	return r.Lock(ctx, orderLockPrefix+orderID, token)
}

func (r *Redis) UnlockOrder(ctx context.Context, orderID, token string) error {
	return r.Unlock(ctx, orderLockPrefix+orderID, token)
}

// LockTTL is how long a lock survives without being released.
func (r *Redis) LockTTL() time.Duration {
	return r.options.LockTTL
}

// LockRefund serializes refunds against one original transaction.
func (r *Redis) LockRefund(ctx context.Context, txnID, token string) error {
	return r.Lock(ctx, refundLockPrefix+txnID, token)
}

func (r *Redis) UnlockRefund(ctx context.Context, txnID, token string) error {
	return r.Unlock(ctx, refundLockPrefix+txnID, token)
}

// LockSession serializes order resolution for one (event, session) pair.
func (r *Redis) LockSession(ctx context.Context, eventID, session, token string) error {
	return r.Lock(ctx, sessionLockPrefix+eventID+":"+session, token)
}

func (r *Redis) UnlockSession(ctx context.Context, eventID, session, token string) error {
	return r.Unlock(ctx, sessionLockPrefix+eventID+":"+session, token)
}
