package cooldown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Memory es un limitador por key en proceso.
type Memory struct {
	mu   sync.Mutex
	next map[string]time.Time
	now  func() time.Time
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{next: map[string]time.Time{}, now: now}
}

func (m *Memory) Allow(_ context.Context, key string, window time.Duration) (bool, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, ok := m.next[key]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}
	m.next[key] = now.Add(window)
	if len(m.next) > 4096 {
		m.gc(now)
	}
	return true, 0, nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.next, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) gc(now time.Time) {
	for k, until := range m.next {
		if !now.Before(until) {
			delete(m.next, k)
		}
	}
}

// Redis comparte los cooldowns entre réplicas del bot (SET NX PX).
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "cooldown:"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// Dial parsea REDIS_URL y verifica la conexión.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *Redis) Allow(ctx context.Context, key string, window time.Duration) (bool, time.Duration, error) {
	k := r.prefix + key
	ok, err := r.rdb.SetNX(ctx, k, 1, window).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis setnx %s: %w", k, err)
	}
	if ok {
		return true, 0, nil
	}
	ttl, err := r.rdb.PTTL(ctx, k).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, fmt.Errorf("redis pttl %s: %w", k, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return false, ttl, nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	k := r.prefix + key
	if err := r.rdb.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", k, err)
	}
	return nil
}
