package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by warehouse instruments.
const (
	GameIDKey    = attribute.Key("game.id")
	BranchKey    = attribute.Key("game.branch")
	TableKey     = attribute.Key("warehouse.table")
	TimeframeKey = attribute.Key("leaderboard.timeframe")
)

// Metrics is the warehouse instrument set.
type Metrics struct {
	CacheLocalHits  metric.Int64Counter
	CacheRemoteHits metric.Int64Counter
	CacheMisses     metric.Int64Counter
	CacheEvictions  metric.Int64Counter

	DirtyFlushed    metric.Int64Counter
	DirtyFlushFails metric.Int64Counter

	SyncCycles       metric.Int64Counter
	SyncCycleSeconds metric.Float64Histogram

	LeaderboardRollovers metric.Int64Counter
	SegmentJoins         metric.Int64Counter
	SegmentLeaves        metric.Int64Counter
}

// NewMetrics registers all warehouse instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	if m.CacheLocalHits, err = meter.Int64Counter("warehouse.cache.local.hits.total",
		metric.WithDescription("Local tier cache hits")); err != nil {
		return nil, err
	}
	if m.CacheRemoteHits, err = meter.Int64Counter("warehouse.cache.remote.hits.total",
		metric.WithDescription("Remote tier cache hits")); err != nil {
		return nil, err
	}
	if m.CacheMisses, err = meter.Int64Counter("warehouse.cache.misses.total",
		metric.WithDescription("Cache misses across both tiers")); err != nil {
		return nil, err
	}
	if m.CacheEvictions, err = meter.Int64Counter("warehouse.cache.evictions.total",
		metric.WithDescription("Local tier evictions (idle or renewal cap)")); err != nil {
		return nil, err
	}
	if m.DirtyFlushed, err = meter.Int64Counter("warehouse.dirty.flushed.total",
		metric.WithDescription("Dirty keys persisted by write-behind")); err != nil {
		return nil, err
	}
	if m.DirtyFlushFails, err = meter.Int64Counter("warehouse.dirty.flush_failures.total",
		metric.WithDescription("Dirty keys whose persist attempt failed")); err != nil {
		return nil, err
	}
	if m.SyncCycles, err = meter.Int64Counter("warehouse.sync.cycles.total",
		metric.WithDescription("Completed write-behind sync cycles")); err != nil {
		return nil, err
	}
	if m.SyncCycleSeconds, err = meter.Float64Histogram("warehouse.sync.cycle.seconds",
		metric.WithDescription("Sync cycle duration")); err != nil {
		return nil, err
	}
	if m.LeaderboardRollovers, err = meter.Int64Counter("warehouse.leaderboard.rollovers.total",
		metric.WithDescription("Timeframe window rollovers")); err != nil {
		return nil, err
	}
	if m.SegmentJoins, err = meter.Int64Counter("warehouse.segment.joins.total",
		metric.WithDescription("Players joining segments")); err != nil {
		return nil, err
	}
	if m.SegmentLeaves, err = meter.Int64Counter("warehouse.segment.leaves.total",
		metric.WithDescription("Players leaving segments")); err != nil {
		return nil, err
	}
	return &m, nil
}
