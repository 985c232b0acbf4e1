package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/playforge/warehouse/internal/ports"
)

// opTimeout bounds every remote call. The redis client has its own dial
// timeouts but individual commands inherit only the caller's context.
const opTimeout = 2 * time.Second

// RedisTransport implements ports.Transport over a single redis client.
type RedisTransport struct {
	cli *redis.Client
}

// NewRedisTransport parses a redis URL and connects.
func NewRedisTransport(url string) (*RedisTransport, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	return &RedisTransport{cli: redis.NewClient(opt)}, nil
}

func (r *RedisTransport) Close() error { return r.cli.Close() }

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func (r *RedisTransport) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	v, err := r.cli.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ports.ErrCacheMiss
	}
	return v, err
}

func (r *RedisTransport) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.cli.Set(ctx, key, value, ttl).Err()
}

func (r *RedisTransport) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.cli.Del(ctx, keys...).Err()
}

func (r *RedisTransport) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.cli.Expire(ctx, key, ttl).Err()
}

func (r *RedisTransport) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	args := make([]any, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	return r.cli.SAdd(ctx, key, args...).Err()
}

func (r *RedisTransport) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	args := make([]any, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	return r.cli.SRem(ctx, key, args...).Err()
}

func (r *RedisTransport) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.cli.SMembers(ctx, key).Result()
}

func (r *RedisTransport) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.cli.SIsMember(ctx, key, member).Result()
}

var _ ports.Transport = (*RedisTransport)(nil)
