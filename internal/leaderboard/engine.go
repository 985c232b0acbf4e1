package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/ports"
	"github.com/playforge/warehouse/internal/telemetry"
)

const (
	// topCacheTTL bounds staleness of a cached top snapshot between
	// recalculation cycles.
	topCacheTTL = time.Minute
	// Rollover re-check thresholds: hourly timeframes are rechecked more
	// aggressively than longer ones.
	hourlyThreshold  = 5 * time.Minute
	defaultThreshold = 60 * time.Minute
)

// Engine maintains timeframe-windowed leaderboards: incremental score
// updates on element changes, cached top-N reads, and periodic window
// rollover with side-column refresh.
type Engine struct {
	store   ports.LeaderboardStore
	players ports.PlayerStore
	cache   *cache.Cache

	log     *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }
func WithMetrics(m *telemetry.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine wires the leaderboard engine.
func NewEngine(store ports.LeaderboardStore, players ports.PlayerStore, c *cache.Cache, opts ...Option) *Engine {
	e := &Engine{store: store, players: players, cache: c, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ElementChanged folds an element mutation into every board referencing it:
// the aggregate element accumulates the delta into the score, additional
// elements overwrite their side column with the absolute value.
func (e *Engine) ElementChanged(ctx context.Context, p ports.Player, branch, elementID string, delta, absolute float64) error {
	boards, err := e.store.BoardsByElement(ctx, p.GameID, branch, elementID)
	if err != nil {
		return err
	}
	for _, b := range boards {
		if b.AggregateElementID == "" || len(b.Timeframes) == 0 {
			continue
		}
		for _, tf := range b.Timeframes {
			row, err := e.store.GetRow(ctx, p, tf.Key)
			if errors.Is(err, ports.ErrNotFound) {
				row = &ports.Row{Player: p, TimeframeKey: tf.Key}
			} else if err != nil {
				e.log.Error("leaderboard row read", "timeframe", tf.Key, "err", err)
				continue
			}
			if elementID == b.AggregateElementID {
				row.Score += delta
			}
			if contains(b.AdditionalElementIDs, elementID) {
				if row.Additional == nil {
					row.Additional = map[string]float64{}
				}
				row.Additional[elementID] = absolute
			}
			if err := e.store.UpsertRow(ctx, row); err != nil {
				e.log.Error("leaderboard row upsert", "timeframe", tf.Key, "err", err)
			}
		}
	}
	return nil
}

// Top returns the timeframe's top-N with the requesting player's own row
// appended when it did not make the cut. The cached snapshot never contains
// the requester's row; it is recomputed per call.
func (e *Engine) Top(ctx context.Context, b *ports.Leaderboard, tf ports.Timeframe, env string, requester *ports.Player) ([]ports.Row, error) {
	rows, err := e.top(ctx, b, tf, env)
	if err != nil {
		return nil, err
	}
	if requester != nil && !containsPlayer(rows, requester.ClientID) {
		own, err := e.store.GetRow(ctx, *requester, tf.Key)
		if err == nil {
			rows = append(rows, *own)
		} else if !errors.Is(err, ports.ErrNotFound) {
			e.log.Warn("requester row read", "timeframe", tf.Key, "err", err)
		}
	}
	return rows, nil
}

func (e *Engine) top(ctx context.Context, b *ports.Leaderboard, tf ports.Timeframe, env string) ([]ports.Row, error) {
	key := cache.LeaderboardTopKey(b.GameID, b.Branch, tf.Key, env)
	if raw, ok := e.cache.Get(ctx, key); ok {
		var rows []ports.Row
		if err := json.Unmarshal([]byte(raw), &rows); err == nil {
			return rows, nil
		}
		e.log.Warn("leaderboard cache payload corrupt", "key", key)
	}

	if b.AlternativeCalculation {
		// Alternative-calculation boards are served from a precomputed
		// snapshot; absence means nothing has been published yet.
		altKey := cache.LeaderboardAltKey(b.GameID, b.Branch, tf.Key, env)
		raw, ok := e.cache.Get(ctx, altKey)
		if !ok {
			return nil, nil
		}
		var rows []ports.Row
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			e.log.Warn("leaderboard alt snapshot corrupt", "key", altKey)
			return nil, nil
		}
		return trim(rows, tf.TopLength), nil
	}

	full, err := e.store.TopRows(ctx, b.GameID, env, tf.Key, 0)
	if err != nil {
		return nil, err
	}
	top := trim(full, tf.TopLength)
	// Both the unsliced result and the trimmed top are cached; the full set
	// feeds rank lookups without another durable query.
	if raw, err := json.Marshal(full); err == nil {
		e.cache.Set(ctx, key+":full", string(raw), cache.WithTTL(topCacheTTL))
	}
	if raw, err := json.Marshal(top); err == nil {
		e.cache.Set(ctx, key, string(raw), cache.WithTTL(topCacheTTL))
	}
	return top, nil
}

// Recalculate walks every board of a (game, branch, env) and rolls over the
// timeframes whose window has moved since their last rebuild. Per-timeframe
// failures are isolated. Finishes with orphaned-row garbage collection.
func (e *Engine) Recalculate(ctx context.Context, gameID, branch, env string) error {
	boards, err := e.store.ListBoards(ctx, gameID, branch)
	if err != nil {
		return err
	}
	live := map[string]struct{}{}
	for _, b := range boards {
		for _, tf := range b.Timeframes {
			live[tf.Key] = struct{}{}
		}
		if b.AggregateElementID == "" || len(b.Timeframes) == 0 {
			continue
		}
		for _, tf := range b.Timeframes {
			if err := e.maybeRollover(ctx, b, tf, env); err != nil {
				e.log.Error("timeframe rollover", "board", b.ID, "timeframe", tf.Key, "err", err)
			}
		}
	}
	e.collectOrphans(ctx, gameID, live)
	return nil
}

func (e *Engine) maybeRollover(ctx context.Context, b *ports.Leaderboard, tf ports.Timeframe, env string) error {
	now := e.now()
	start, _ := Window(tf, now)

	threshold := defaultThreshold
	if tf.PeriodUnit == "hour" || tf.PeriodUnit == "minute" {
		threshold = hourlyThreshold
	}
	st, err := e.store.GetState(ctx, b.GameID, env, tf.Key)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return err
	}
	if st != nil {
		if !st.LastUpdate.Before(start) {
			return nil // current window already built
		}
		if now.Sub(st.LastUpdate) < threshold {
			return nil // rolled over, but rechecked too recently
		}
	}
	if err := e.updateTop(ctx, b, tf, env, start); err != nil {
		return err
	}
	return e.store.SetState(ctx, &ports.TimeframeState{GameID: b.GameID, Env: env, TimeframeKey: tf.Key, LastUpdate: now})
}

// updateTop purges rows that fell outside the new window, clears the cached
// snapshots and refreshes the surviving rows' side columns from live element
// values. Scores are deliberately left accumulating across windows while side
// columns always reflect current absolute values.
func (e *Engine) updateTop(ctx context.Context, b *ports.Leaderboard, tf ports.Timeframe, env string, windowStart time.Time) error {
	if _, err := e.store.DeleteRowsBefore(ctx, b.GameID, env, tf.Key, windowStart); err != nil {
		return err
	}
	key := cache.LeaderboardTopKey(b.GameID, b.Branch, tf.Key, env)
	e.cache.Delete(ctx, key)
	e.cache.Delete(ctx, key+":full")

	if len(b.AdditionalElementIDs) > 0 {
		rows, err := e.store.RowsInTimeframe(ctx, b.GameID, env, tf.Key)
		if err != nil {
			return err
		}
		for i := range rows {
			row := rows[i]
			changed := false
			for _, el := range b.AdditionalElementIDs {
				cur, err := e.players.GetElement(ctx, row.Player, el)
				if err != nil {
					continue // no row yet for this element
				}
				if num, ok := cur.Value.Numeric(); ok {
					if row.Additional == nil {
						row.Additional = map[string]float64{}
					}
					if row.Additional[el] != num {
						row.Additional[el] = num
						changed = true
					}
				}
			}
			if changed {
				if err := e.store.UpsertRow(ctx, &row); err != nil {
					e.log.Error("side column refresh", "timeframe", tf.Key, "player", row.Player.ClientID, "err", err)
				}
			}
		}
	}
	if e.metrics != nil {
		e.metrics.LeaderboardRollovers.Add(ctx, 1)
	}
	return nil
}

// collectOrphans removes rows whose timeframe no longer exists on any board.
func (e *Engine) collectOrphans(ctx context.Context, gameID string, live map[string]struct{}) {
	keys, err := e.store.ListRowTimeframeKeys(ctx, gameID)
	if err != nil {
		e.log.Error("orphan scan", "game", gameID, "err", err)
		return
	}
	var orphans []string
	for _, k := range keys {
		if _, ok := live[k]; !ok {
			orphans = append(orphans, k)
		}
	}
	if len(orphans) == 0 {
		return
	}
	n, err := e.store.DeleteRowsForTimeframes(ctx, gameID, orphans)
	if err != nil {
		e.log.Error("orphan purge", "game", gameID, "err", err)
		return
	}
	e.log.Info("orphaned leaderboard rows purged", "game", gameID, "timeframes", len(orphans), "rows", n)
}

func trim(rows []ports.Row, n int) []ports.Row {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPlayer(rows []ports.Row, clientID string) bool {
	for _, r := range rows {
		if r.Player.ClientID == clientID {
			return true
		}
	}
	return false
}
