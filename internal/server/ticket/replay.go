package ticket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard is the shared, linearizable consumed-set behind single-use
// enforcement. Consume must be atomic across all workers: for one jti,
// exactly one caller ever sees first=true.
type ReplayGuard interface {
	// Issue records a jti as issued-but-not-yet-consumed. The ttl should
	// outlive the ticket expiry; after that a replay is rejected by the
	// expiry check alone.
	Issue(ctx context.Context, jti string, ttl time.Duration) error

	// Consume marks a jti consumed. Returns first=false when the jti was
	// already consumed.
	Consume(ctx context.Context, jti string, ttl time.Duration) (first bool, err error)
}

// --- Redis implementation ---

// redisAPI is the subset of the go-redis client used by the guard.
type redisAPI interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisReplayGuard keeps the consumed-set in Redis so redemption is
// linearized across all server instances.
type RedisReplayGuard struct {
	rdb redisAPI
}

func NewRedisReplayGuard(rdb *redis.Client) *RedisReplayGuard {
	return &RedisReplayGuard{rdb: rdb}
}

func (g *RedisReplayGuard) Issue(ctx context.Context, jti string, ttl time.Duration) error {
	if err := g.rdb.Set(ctx, "ticket:issued:"+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("replay guard: %w", err)
	}
	return nil
}

func (g *RedisReplayGuard) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	first, err := g.rdb.SetNX(ctx, "ticket:consumed:"+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard: %w", err)
	}
	return first, nil
}

// --- in-process implementation ---

// MemoryReplayGuard is a process-local guard for tests and single-node
// deployments.
type MemoryReplayGuard struct {
	mu       sync.Mutex
	issued   map[string]time.Time
	consumed map[string]time.Time
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{
		issued:   make(map[string]time.Time),
		consumed: make(map[string]time.Time),
	}
}

func (g *MemoryReplayGuard) Issue(ctx context.Context, jti string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune()
	g.issued[jti] = time.Now().Add(ttl)
	return nil
}

func (g *MemoryReplayGuard) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune()
	if _, ok := g.consumed[jti]; ok {
		return false, nil
	}
	g.consumed[jti] = time.Now().Add(ttl)
	return true, nil
}

// prune drops expired entries; called with the lock held.
func (g *MemoryReplayGuard) prune() {
	now := time.Now()
	for jti, deadline := range g.issued {
		if deadline.Before(now) {
			delete(g.issued, jti)
		}
	}
	for jti, deadline := range g.consumed {
		if deadline.Before(now) {
			delete(g.consumed, jti)
		}
	}
}
