package ticket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryGuard_SingleConsume(t *testing.T) {
	g := NewMemoryReplayGuard()
	ctx := context.Background()

	if err := g.Issue(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	first, err := g.Consume(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if !first {
		t.Fatalf("first consumption must succeed")
	}

	again, err := g.Consume(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if again {
		t.Fatalf("second consumption must report already consumed")
	}
}

func TestMemoryGuard_ConcurrentConsume_ExactlyOneWinner(t *testing.T) {
	g := NewMemoryReplayGuard()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := g.Consume(ctx, "jti-contended", time.Minute)
			if err != nil {
				t.Errorf("Consume error: %v", err)
				return
			}
			if first {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	if n := len(wins); n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}

func TestMemoryGuard_ExpiredEntriesPruned(t *testing.T) {
	g := NewMemoryReplayGuard()
	ctx := context.Background()

	if _, err := g.Consume(ctx, "jti-short", -time.Second); err != nil {
		t.Fatalf("Consume error: %v", err)
	}

	// Entry is already past its deadline; the next call prunes it and the
	// jti becomes consumable again. Real tickets are expired by then anyway.
	first, err := g.Consume(ctx, "jti-short", time.Minute)
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if !first {
		t.Fatalf("expected pruned jti to be consumable")
	}
}

// --- Redis guard ---

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]struct{}
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]struct{})}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.keys[key] = struct{}{}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = struct{}{}
	return redis.NewBoolResult(true, nil)
}

func TestRedisGuard_SingleConsume(t *testing.T) {
	rdb := newFakeRedis()
	g := &RedisReplayGuard{rdb: rdb}
	ctx := context.Background()

	if err := g.Issue(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	first, err := g.Consume(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if !first {
		t.Fatalf("first consumption must succeed")
	}

	again, err := g.Consume(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if again {
		t.Fatalf("second consumption must report already consumed")
	}
}

func TestRedisGuard_BackendError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	g := &RedisReplayGuard{rdb: rdb}

	if err := g.Issue(context.Background(), "jti-1", time.Minute); err == nil {
		t.Fatalf("expected Issue error")
	}
	if _, err := g.Consume(context.Background(), "jti-1", time.Minute); err == nil {
		t.Fatalf("expected Consume error")
	}
}
