package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisPublisher appends to one redis stream per topic. Payloads go into a
// single 'data' field as JSON for schema flexibility.
type redisPublisher struct {
	cli          *redis.Client
	maxLen       int64
	maxLenApprox bool
}

// NewRedisStreams builds a redis-streams publisher from a redis URL.
func NewRedisStreams(url string, maxLen int64, approx bool) (*redisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	return &redisPublisher{cli: redis.NewClient(opt), maxLen: maxLen, maxLenApprox: approx}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	args := &redis.XAddArgs{Stream: topic, Values: map[string]any{"key": key, "data": string(b)}}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = p.maxLenApprox
	}
	return p.cli.XAdd(ctx, args).Err()
}

func (p *redisPublisher) Close() error { return p.cli.Close() }
