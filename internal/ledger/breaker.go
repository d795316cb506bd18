package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/orkutrevival/backend/internal/cache"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/metrics"
)

// ErrAttemptsExhausted is returned once consecutive remote failures reach
// the configured maximum
var ErrAttemptsExhausted = errors.New("remote ledger attempts exhausted")

// ExhaustedError carries the counter values for the 429 response
type ExhaustedError struct {
	Attempts    int
	MaxAttempts int
	// LocalDataSaved is set when the entry was stored before the breaker
	// tripped, so Sync will still mirror it
	LocalDataSaved bool
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("maximum of %d attempts reached", e.MaxAttempts)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAttemptsExhausted
}

const (
	attemptsKey = "ledger:attempts"
	breakerKey  = "ledger:breaker"
)

// BreakerStatus is a snapshot of the attempt counter
type BreakerStatus struct {
	Attempts        int       `json:"currentAttempts"`
	MaxAttempts     int       `json:"maxAttempts"`
	CanTryAgain     bool      `json:"canTryAgain"`
	LastResetTime   time.Time `json:"lastResetTime"`
	LastAttemptTime time.Time `json:"lastAttemptTime"`
	RedisBacked     bool      `json:"-"`
}

// Breaker counts consecutive failed remote writes. The counter lives in
// Redis so every instance shares it, with an in-process copy used whenever
// Redis is absent or failing.
type Breaker struct {
	redis *cache.RedisClient
	max   int
	now   func() time.Time

	mu          sync.Mutex
	attempts    int
	lastReset   time.Time
	lastAttempt time.Time
}

// NewBreaker creates a breaker allowing max consecutive failures. redis may be nil.
func NewBreaker(redis *cache.RedisClient, max int) *Breaker {
	if max <= 0 {
		max = 5
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Breaker{
		redis:     redis,
		max:       max,
		now:       now,
		lastReset: now(),
	}
}

// Max returns the configured attempt limit
func (b *Breaker) Max() int {
	return b.max
}

func (b *Breaker) redisFailed(err error) {
	logger.WarnWithFields("Ledger breaker falling back to memory", err)
}

// Acquire takes one attempt. It fails with ExhaustedError when the counter
// is already at the limit, leaving the counter unchanged.
func (b *Breaker) Acquire(ctx context.Context) (int, error) {
	now := b.now()

	if b.redis != nil {
		n, err := b.redis.Incr(ctx, attemptsKey)
		if err == nil {
			if int(n) > b.max {
				_, _ = b.redis.Decr(ctx, attemptsKey)
				return b.max, &ExhaustedError{Attempts: b.max, MaxAttempts: b.max}
			}
			_ = b.redis.HSet(ctx, breakerKey, "last_attempt", now.Format(time.RFC3339Nano))
			metrics.Get().LedgerAttempts.Set(float64(n))
			return int(n), nil
		}
		b.redisFailed(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attempts >= b.max {
		return b.attempts, &ExhaustedError{Attempts: b.attempts, MaxAttempts: b.max}
	}
	b.attempts++
	b.lastAttempt = now
	metrics.Get().LedgerAttempts.Set(float64(b.attempts))
	return b.attempts, nil
}

// Open reports whether no attempts are left, without taking one
func (b *Breaker) Open(ctx context.Context) (bool, int) {
	status := b.Status(ctx)
	return status.Attempts >= b.max, status.Attempts
}

// Reset zeroes the counter, after a success or on operator request
func (b *Breaker) Reset(ctx context.Context) time.Time {
	now := b.now()

	if b.redis != nil {
		err := b.redis.Set(ctx, attemptsKey, 0)
		if err == nil {
			err = b.redis.HSet(ctx, breakerKey, "last_reset", now.Format(time.RFC3339Nano))
		}
		if err != nil {
			b.redisFailed(err)
		}
	}

	b.mu.Lock()
	b.attempts = 0
	b.lastReset = now
	b.mu.Unlock()

	metrics.Get().LedgerAttempts.Set(0)
	return now
}

// Status returns the current counter
func (b *Breaker) Status(ctx context.Context) BreakerStatus {
	if b.redis != nil {
		status, err := b.redisStatus(ctx)
		if err == nil {
			return status
		}
		b.redisFailed(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		Attempts:        b.attempts,
		MaxAttempts:     b.max,
		CanTryAgain:     b.attempts < b.max,
		LastResetTime:   b.lastReset,
		LastAttemptTime: b.lastAttempt,
	}
}

func (b *Breaker) redisStatus(ctx context.Context) (BreakerStatus, error) {
	n, err := b.redis.GetInt(ctx, attemptsKey)
	if err != nil {
		return BreakerStatus{}, err
	}
	fields, err := b.redis.HGetAll(ctx, breakerKey)
	if err != nil {
		return BreakerStatus{}, err
	}

	status := BreakerStatus{
		Attempts:    int(n),
		MaxAttempts: b.max,
		CanTryAgain: int(n) < b.max,
		RedisBacked: true,
	}
	status.LastResetTime = parseTime(fields["last_reset"], b.lastReset)
	status.LastAttemptTime = parseTime(fields["last_attempt"], time.Time{})
	return status, nil
}

func parseTime(v string, fallback time.Time) time.Time {
	if v == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	return fallback
}

// Remaining renders the human message shown with the status
func (s BreakerStatus) Remaining() string {
	if !s.CanTryAgain {
		return "Attempt limit exceeded"
	}
	return fmt.Sprintf("%d attempts remaining", s.MaxAttempts-s.Attempts)
}
