package mq

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/playforge/warehouse/internal/ports"
)

// Topics the warehouse core publishes on.
const (
	TopicSegmentChanges   = "warehouse.segment-changes"
	TopicElementSnapshots = "warehouse.element-snapshots"
)

// Config selects the publisher backend.
type Config struct {
	Type         string   `mapstructure:"type"` // kafka|redis|noop
	Brokers      []string `mapstructure:"brokers"`
	RedisURL     string   `mapstructure:"redis_url"`
	MaxLen       int64    `mapstructure:"max_len"`
	MaxLenApprox bool     `mapstructure:"max_len_approx"`
}

// New builds a Publisher from config; unknown or empty types get the noop.
func New(cfg Config) (ports.Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "kafka":
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("mq: kafka selected but no brokers configured")
		}
		return NewKafka(cfg.Brokers), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("mq: redis selected but no redis_url configured")
		}
		p, err := NewRedisStreams(cfg.RedisURL, cfg.MaxLen, cfg.MaxLenApprox)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "", "noop":
		slog.Info("mq: publisher disabled, using noop")
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("mq: unsupported type %q", cfg.Type)
	}
}
