// Package sweeper periodically expires lapsed waitlist offers so freed spots
// move down the queue even when nobody touches the event.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Target expires lapsed offers and returns how many it expired.
type Target interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Lease grants one replica at a time the right to sweep.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

// Sweeper runs Target on a fixed interval.
type Sweeper struct {
	target   Target
	lease    Lease
	interval time.Duration
	logger   *slog.Logger
}

// New returns a Sweeper. With a nil lease every replica sweeps.
func New(target Target, interval time.Duration, lease Lease, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{target: target, lease: lease, interval: interval, logger: logger.With("component", "sweeper")}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval.String())
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep if the lease allows it.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx, s.interval)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !ok {
			s.logger.Debug("sweep lease held elsewhere")
			return 0, nil
		}
		defer release(context.WithoutCancel(ctx))
	}

	start := time.Now()
	n, err := s.target.SweepExpired(ctx)
	if n > 0 {
		s.logger.Info("expired offers swept", "expired", n, "duration_ms", time.Since(start).Milliseconds())
	}
	return n, err
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLease is a Lease backed by a Redis key set with NX and a TTL.
type RedisLease struct {
	client *redis.Client
	key    string
}

// NewRedisLease returns a lease stored under key.
func NewRedisLease(client *redis.Client, key string) *RedisLease {
	return &RedisLease{client: client, key: key}
}

// Acquire takes the lease for ttl. Release deletes the key only while this
// holder still owns it.
func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
