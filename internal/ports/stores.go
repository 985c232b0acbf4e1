package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrCacheMiss is returned by Transport.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// TemplateProvider resolves element templates by (game, branch, element).
type TemplateProvider interface {
	Template(ctx context.Context, gameID, branch, elementID string) (*Template, error)
}

// PlayerStore persists element rows. AddWithinRange must be an atomic
// conditional increment at the store level: it applies the delta only if the
// resulting value stays inside the optional [min,max] bounds and reports
// whether the update was applied. That conditional update is the only
// cross-request concurrency guard for statistics.
type PlayerStore interface {
	GetElement(ctx context.Context, p Player, elementID string) (*Element, error)
	CreateElement(ctx context.Context, el *Element) error
	SetValue(ctx context.Context, p Player, elementID string, v Value) error
	SetHistory(ctx context.Context, p Player, elementID string, v Value, hist []HistoryEntry) error
	AddWithinRange(ctx context.Context, p Player, elementID string, delta float64, min, max *float64) (bool, error)
	ListElements(ctx context.Context, p Player) ([]*Element, error)
	ListPlayers(ctx context.Context, gameID, env string, offset, limit int) ([]Player, error)
}

// InventoryStore persists whole inventories. Save replaces the player's
// inventory atomically with the given items.
type InventoryStore interface {
	Load(ctx context.Context, p Player) ([]InventoryItem, error)
	Save(ctx context.Context, p Player, items []InventoryItem) error
}

// LeaderboardStore persists leaderboard configuration and windowed rows.
type LeaderboardStore interface {
	ListBoards(ctx context.Context, gameID, branch string) ([]*Leaderboard, error)
	BoardsByElement(ctx context.Context, gameID, branch, elementID string) ([]*Leaderboard, error)

	GetRow(ctx context.Context, p Player, timeframeKey string) (*Row, error)
	UpsertRow(ctx context.Context, row *Row) error
	TopRows(ctx context.Context, gameID, env, timeframeKey string, limit int) ([]Row, error)
	RowsInTimeframe(ctx context.Context, gameID, env, timeframeKey string) ([]Row, error)
	DeleteRowsBefore(ctx context.Context, gameID, env, timeframeKey string, cutoff time.Time) (int64, error)
	DeleteRowsForTimeframes(ctx context.Context, gameID string, keys []string) (int64, error)
	ListRowTimeframeKeys(ctx context.Context, gameID string) ([]string, error)

	GetState(ctx context.Context, gameID, env, timeframeKey string) (*TimeframeState, error)
	SetState(ctx context.Context, st *TimeframeState) error
}

// SegmentStore persists segment definitions and their incrementally
// maintained player counts.
type SegmentStore interface {
	Get(ctx context.Context, id string) (*Segment, error)
	List(ctx context.Context, gameID, branch string) ([]*Segment, error)
	ListByElement(ctx context.Context, gameID, branch, elementID string) ([]*Segment, error)
	Save(ctx context.Context, s *Segment) error
	AdjustPlayerCount(ctx context.Context, id string, delta int64) error
	SetPlayerCount(ctx context.Context, id string, count int64) error
}

// Publisher is the fire-and-forget event outlet toward the streaming
// transport. Implementations must never block callers beyond a short
// internal timeout.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

// Transport is the redis-shaped remote cache surface the tiered cache sits
// on: plain keys with optional TTL plus set membership for dirty tracking.
type Transport interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
}
