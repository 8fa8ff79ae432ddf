package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type countingTarget struct {
	calls atomic.Int32
	err   error
}

func (c *countingTarget) SweepExpired(context.Context) (int, error) {
	c.calls.Add(1)
	return 2, c.err
}

type fakeLease struct {
	grant    bool
	released atomic.Int32
}

func (f *fakeLease) Acquire(context.Context, time.Duration) (func(context.Context), bool, error) {
	if !f.grant {
		return nil, false, nil
	}
	return func(context.Context) { f.released.Add(1) }, true, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	t.Run("without a lease", func(t *testing.T) {
		t.Parallel()
		target := &countingTarget{}
		n, err := New(target, time.Minute, nil, discard()).RunOnce(context.Background())
		if err != nil || n != 2 || target.calls.Load() != 1 {
			t.Fatalf("n=%d err=%v calls=%d", n, err, target.calls.Load())
		}
	})

	t.Run("lease held elsewhere skips the sweep", func(t *testing.T) {
		t.Parallel()
		target := &countingTarget{}
		n, err := New(target, time.Minute, &fakeLease{}, discard()).RunOnce(context.Background())
		if err != nil || n != 0 || target.calls.Load() != 0 {
			t.Fatalf("n=%d err=%v calls=%d", n, err, target.calls.Load())
		}
	})

	t.Run("lease is released after a failed sweep", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("db down")
		target := &countingTarget{err: boom}
		lease := &fakeLease{grant: true}
		if _, err := New(target, time.Minute, lease, discard()).RunOnce(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
		if lease.released.Load() != 1 {
			t.Fatal("lease not released")
		}
	})
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	target := &countingTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(target, 10*time.Millisecond, nil, discard()).Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for target.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d sweeps ran", target.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestRedisLease needs a Redis server; set TEST_REDIS_ADDR to run it.
func TestRedisLease(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "test:sweep-lease:" + t.Name()
	_ = client.Del(ctx, key).Err()

	first, second := NewRedisLease(client, key), NewRedisLease(client, key)
	release, ok, err := first.Acquire(ctx, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire ok=%v err=%v", ok, err)
	}
	if _, ok, err := second.Acquire(ctx, time.Minute); err != nil || ok {
		t.Fatalf("second Acquire ok=%v err=%v, want denied", ok, err)
	}

	release(ctx)
	release2, ok, err := second.Acquire(ctx, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire after release ok=%v err=%v", ok, err)
	}
	release2(ctx)
}
