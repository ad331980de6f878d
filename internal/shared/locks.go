package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
)

// IntakeLockKey builds redis keys serialising intake posting per delivery.
func IntakeLockKey(deliveryID int64) string {
	return fmt.Sprintf("intake:delivery:%d:lock", deliveryID)
}

// Locker obtains short-lived redis locks. A nil Locker or client runs
// callbacks unlocked; the database transaction remains the source of truth.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewLocker wraps a redislock client.
func NewLocker(client *redislock.Client, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: client, ttl: ttl, logger: logger}
}

// ErrLockBusy indicates another request holds the lock.
var ErrLockBusy = fmt.Errorf("%w: resource is locked by another request", ErrConflict)

// WithLock runs fn while holding key. Contention, including the caller's
// deadline expiring while retrying, yields ErrLockBusy. Only transport
// failures fall back to running fn unlocked.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	switch {
	case err == nil:
	case errors.Is(err, redislock.ErrNotObtained),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		ctx.Err() != nil:
		return fmt.Errorf("%w: %s", ErrLockBusy, key)
	default:
		l.log().Warn("redis lock unavailable; proceeding without lock", slog.String("key", key), slog.Any("error", err))
		return fn(ctx)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log().Warn("release redis lock", slog.String("key", key), slog.Any("error", err))
		}
	}()
	return fn(ctx)
}

func (l *Locker) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}
