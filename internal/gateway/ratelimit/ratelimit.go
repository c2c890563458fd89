// Package ratelimit enforces per-client request caps over fixed time
// buckets. Two windows run side by side (per-minute and per-hour), each
// with its own cap. Buckets are fixed, not sliding: a burst straddling a
// bucket boundary can admit up to twice the cap across the boundary.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	DefaultPerMinute = 60
	DefaultPerHour   = 1000
)

// Store counts requests per window key. Keys already embed the bucket
// number, so implementations only need counting with expiry.
type Store interface {
	// Incr increments the counter for key, expiring it after window.
	// Returns the count after incrementing.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Count reads the counter for key; missing keys count as zero.
	Count(ctx context.Context, key string) (int64, error)
}

// Remaining reports how many requests are left in each window.
type Remaining struct {
	Minute int
	Hour   int
}

// Limiter tracks per-minute and per-hour request counts per identifier.
type Limiter struct {
	store     Store
	perMinute int
	perHour   int
	now       func() time.Time
}

// New creates a limiter with the given caps. Non-positive caps fall back
// to the defaults.
func New(store Store, perMinute, perHour int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	return &Limiter{
		store:     store,
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
	}
}

// key builds the fixed-bucket window key: {granularity}:{identifier}:{bucket}.
func (l *Limiter) key(granularity, identifier string, window time.Duration) string {
	bucket := l.now().UnixMilli() / window.Milliseconds()
	return fmt.Sprintf("%s:%s:%d", granularity, identifier, bucket)
}

// IsLimited reports whether the identifier has exhausted either window.
func (l *Limiter) IsLimited(ctx context.Context, identifier string) (bool, error) {
	minuteCount, err := l.store.Count(ctx, l.key("minute", identifier, minuteWindow))
	if err != nil {
		return false, err
	}
	if minuteCount >= int64(l.perMinute) {
		return true, nil
	}

	hourCount, err := l.store.Count(ctx, l.key("hour", identifier, hourWindow))
	if err != nil {
		return false, err
	}
	return hourCount >= int64(l.perHour), nil
}

// Increment consumes one request from both windows.
func (l *Limiter) Increment(ctx context.Context, identifier string) error {
	if _, err := l.store.Incr(ctx, l.key("minute", identifier, minuteWindow), minuteWindow); err != nil {
		return err
	}
	_, err := l.store.Incr(ctx, l.key("hour", identifier, hourWindow), hourWindow)
	return err
}

// GetRemaining reports the requests left in the current minute and hour
// buckets. Never negative.
func (l *Limiter) GetRemaining(ctx context.Context, identifier string) (Remaining, error) {
	minuteCount, err := l.store.Count(ctx, l.key("minute", identifier, minuteWindow))
	if err != nil {
		return Remaining{}, err
	}
	hourCount, err := l.store.Count(ctx, l.key("hour", identifier, hourWindow))
	if err != nil {
		return Remaining{}, err
	}

	rem := Remaining{
		Minute: l.perMinute - int(minuteCount),
		Hour:   l.perHour - int(hourCount),
	}
	if rem.Minute < 0 {
		rem.Minute = 0
	}
	if rem.Hour < 0 {
		rem.Hour = 0
	}
	return rem, nil
}

type memoryEntry struct {
	count    int64
	expireAt time.Time
}

// MemoryStore is a process-local Store. Counters reset on process restart
// and are not shared across instances; use the Redis store when running
// more than one gateway replica.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupLocked(now)

	e, ok := s.entries[key]
	if !ok {
		e = memoryEntry{expireAt: now.Add(window)}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked(s.now())

	return s.entries[key].count, nil
}

// cleanupLocked drops expired entries. Runs on every access rather than on
// a timer, so garbage is bounded by request volume.
func (s *MemoryStore) cleanupLocked(now time.Time) {
	for key, e := range s.entries {
		if now.After(e.expireAt) {
			delete(s.entries, key)
		}
	}
}

// redisCounter is the subset of the shared Redis client the store needs.
type redisCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	GetCount(ctx context.Context, key string) (int64, error)
}

// RedisStore counts windows in Redis so limits hold across gateway
// replicas. Expiry is handled by Redis; no local cleanup needed.
type RedisStore struct {
	client redisCounter
	prefix string
}

// NewRedisStore creates a Store backed by the shared Redis client.
func NewRedisStore(client redisCounter) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return s.client.IncrWindow(ctx, s.prefix+key, window)
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	return s.client.GetCount(ctx, s.prefix+key)
}
