package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker serializes the final overlap-check-and-insert for bookings
// that touch the same calendar days.
type Locker interface {
	WithRangeLock(ctx context.Context, start, end time.Time, fn func(ctx context.Context) error) error
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDayLocker creates a locker that holds one Redis key per UTC
// calendar day covered by the booked interval.
func NewRedisDayLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
	}
}

// WithRangeLock acquires a lock for every day [start, end) touches, in
// sorted order so two overlapping multi-day requests cannot deadlock.
// Losing any acquisition releases what was taken and returns
// ErrLockNotAcquired.
func (l *redisDayLocker) WithRangeLock(ctx context.Context, start, end time.Time, fn func(ctx context.Context) error) error {
	keys := dayKeys(start, end)
	token := uuid.NewString()

	var acquired []string
	release := func() {
		for _, key := range acquired {
			_ = l.release(ctx, key, token)
		}
	}

	for _, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			release()
			return fmt.Errorf("acquire booking lock %s: %w", key, err)
		}
		if !ok {
			release()
			return ErrLockNotAcquired
		}
		acquired = append(acquired, key)
	}

	defer release()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func dayKeys(start, end time.Time) []string {
	seen := map[string]struct{}{}
	day := start.UTC().Truncate(24 * time.Hour)
	for day.Before(end.UTC()) {
		seen[fmt.Sprintf("lock:bookday:%s", day.Format("2006-01-02"))] = struct{}{}
		day = day.Add(24 * time.Hour)
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}
