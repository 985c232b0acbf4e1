package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/playforge/warehouse/internal/ports"
	"github.com/playforge/warehouse/internal/telemetry"
)

// Cache is the two-tier player-data cache: an in-process map in front of a
// redis-shaped transport. The cache is strictly an optimization; every read
// and write failure on the remote tier degrades to a miss or a no-op and is
// logged, never propagated.
type Cache struct {
	local   *local
	remote  ports.Transport
	log     *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.log = l } }

// WithMetrics attaches warehouse instruments.
func WithMetrics(m *telemetry.Metrics) Option { return func(c *Cache) { c.metrics = m } }

// New builds a Cache over the given remote transport.
func New(remote ports.Transport, opts ...Option) *Cache {
	c := &Cache{local: newLocal(), remote: remote, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	if c.metrics != nil {
		m := c.metrics
		c.local.evicted = func(n int64) { m.CacheEvictions.Add(context.Background(), n) }
	}
	return c
}

// Run owns the local-tier eviction sweep; it blocks until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) { c.local.run(ctx) }

// SetOption tunes a single Set call.
type SetOption func(*setConfig)

type setConfig struct {
	ttl      time.Duration
	useLocal bool
}

// WithTTL expires the remote entry after d. Zero means no expiry.
func WithTTL(d time.Duration) SetOption { return func(s *setConfig) { s.ttl = d } }

// WithoutLocal writes to the remote tier only.
func WithoutLocal() SetOption { return func(s *setConfig) { s.useLocal = false } }

// Get reads key, preferring the local tier. A remote hit repopulates the
// local tier with a fresh expiry. A payload the remote returns but the caller
// cannot use is the caller's concern; a transport failure is logged and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	now := time.Now()
	if v, ok := c.local.get(key, now); ok {
		c.count(ctx, func(m *telemetry.Metrics) { m.CacheLocalHits.Add(ctx, 1) })
		return v, true
	}
	v, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			c.log.Warn("cache remote get", "key", key, "err", err)
		}
		c.count(ctx, func(m *telemetry.Metrics) { m.CacheMisses.Add(ctx, 1) })
		return "", false
	}
	c.local.set(key, v, now)
	c.count(ctx, func(m *telemetry.Metrics) { m.CacheRemoteHits.Add(ctx, 1) })
	return v, true
}

// Set writes key to the remote tier (with TTL if configured) and, by
// default, to the local tier. Remote failure is logged; the local tier is
// still updated so the process keeps serving its own writes.
func (c *Cache) Set(ctx context.Context, key, value string, opts ...SetOption) {
	cfg := setConfig{useLocal: true}
	for _, o := range opts {
		o(&cfg)
	}
	if err := c.remote.Set(ctx, key, value, cfg.ttl); err != nil {
		c.log.Warn("cache remote set", "key", key, "err", err)
	}
	if cfg.useLocal {
		c.local.set(key, value, time.Now())
	} else {
		c.local.delete(key)
	}
}

// Delete removes key from both tiers, best-effort.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.local.delete(key)
	if err := c.remote.Del(ctx, key); err != nil {
		c.log.Warn("cache remote del", "key", key, "err", err)
	}
}

// MarkDirty adds or removes key from the named table's dirty set. A key in
// the dirty set has cache state not yet persisted durably; it leaves the set
// only after a successful persist.
func (c *Cache) MarkDirty(ctx context.Context, table, key string, dirty bool) {
	set := DirtySetKey(table)
	var err error
	if dirty {
		err = c.remote.SAdd(ctx, set, key)
	} else {
		err = c.remote.SRem(ctx, set, key)
	}
	if err != nil {
		c.log.Warn("cache mark dirty", "table", table, "key", key, "dirty", dirty, "err", err)
	}
}

// DirtyKeys lists the keys currently pending write-behind for table.
func (c *Cache) DirtyKeys(ctx context.Context, table string) []string {
	keys, err := c.remote.SMembers(ctx, DirtySetKey(table))
	if err != nil {
		c.log.Warn("cache dirty keys", "table", table, "err", err)
		return nil
	}
	return keys
}

// IsDirty reports whether key is pending write-behind for table.
func (c *Cache) IsDirty(ctx context.Context, table, key string) bool {
	ok, err := c.remote.SIsMember(ctx, DirtySetKey(table), key)
	if err != nil {
		c.log.Warn("cache is dirty", "table", table, "key", key, "err", err)
		return false
	}
	return ok
}

// Stats describes the local tier for the ops surface.
type Stats struct {
	LocalEntries int `json:"local_entries"`
}

func (c *Cache) Stats() Stats { return Stats{LocalEntries: c.local.len()} }

func (c *Cache) count(ctx context.Context, f func(*telemetry.Metrics)) {
	if c.metrics != nil {
		f(c.metrics)
	}
}
