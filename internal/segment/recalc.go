package segment

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/mq"
	"github.com/playforge/warehouse/internal/ports"
	"github.com/playforge/warehouse/internal/telemetry"
)

const (
	// forceBatchSize bounds how many players a forced recalculation pulls
	// per durable query.
	forceBatchSize = 10000
	// forceBatchPause paces batches so a forced recalculation never
	// saturates the durable store.
	forceBatchPause = 200 * time.Millisecond
)

// InventoryReader exposes a player's current inventory so item quantities can
// participate in segment conditions as numeric pseudo-elements.
type InventoryReader interface {
	Items(ctx context.Context, p ports.Player, branch string) ([]ports.InventoryItem, error)
}

// Evaluator maintains segment membership: incremental re-evaluation after an
// element change and forced full recalculation. Player counts are adjusted
// incrementally on join/leave and recomputed by counting only during a forced
// pass.
type Evaluator struct {
	segments  ports.SegmentStore
	players   ports.PlayerStore
	inventory InventoryReader
	cache     *cache.Cache
	publisher ports.Publisher

	log       *slog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
	batchSize int
	pause     time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

func WithInventory(r InventoryReader) Option { return func(e *Evaluator) { e.inventory = r } }
func WithPublisher(p ports.Publisher) Option { return func(e *Evaluator) { e.publisher = p } }
func WithLogger(l *slog.Logger) Option { return func(e *Evaluator) { e.log = l } }
func WithMetrics(m *telemetry.Metrics) Option { return func(e *Evaluator) { e.metrics = m } }
func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

// WithBatching tunes the forced-recalculation batch size and pacing.
func WithBatching(size int, pause time.Duration) Option {
	return func(e *Evaluator) {
		if size > 0 {
			e.batchSize = size
		}
		e.pause = pause
	}
}

// NewEvaluator wires the segment evaluator.
func NewEvaluator(segments ports.SegmentStore, players ports.PlayerStore, c *cache.Cache, opts ...Option) *Evaluator {
	e := &Evaluator{
		segments:  segments,
		players:   players,
		cache:     c,
		log:       slog.Default(),
		now:       time.Now,
		batchSize: forceBatchSize,
		pause:     forceBatchPause,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Save validates a segment definition against the document schema and
// persists it. The durable player count is untouched; membership converges
// through subsequent recalculation.
func (e *Evaluator) Save(ctx context.Context, s *ports.Segment) error {
	if err := ValidateNode(s.Root); err != nil {
		return err
	}
	return e.segments.Save(ctx, s)
}

// Recalculate re-evaluates every segment referencing the changed element for
// one player and applies join/leave transitions: durable player-count
// adjustment, segment-set cache update and a change event. Per-segment
// failures are logged and skipped.
func (e *Evaluator) Recalculate(ctx context.Context, p ports.Player, branch, elementID string) error {
	segs, err := e.segments.ListByElement(ctx, p.GameID, branch, elementID)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return nil
	}
	snap, err := e.snapshot(ctx, p, branch)
	if err != nil {
		return err
	}

	changed := false
	for _, s := range segs {
		member := Evaluate(s.Root, snap)
		_, has := snap.Segments[s.ID]
		if member == has {
			continue
		}
		delta := int64(1)
		if !member {
			delta = -1
		}
		if err := e.segments.AdjustPlayerCount(ctx, s.ID, delta); err != nil {
			e.log.Error("segment count adjust", "segment", s.ID, "player", p.ClientID, "err", err)
			continue
		}
		if member {
			snap.Segments[s.ID] = struct{}{}
		} else {
			delete(snap.Segments, s.ID)
		}
		changed = true
		e.notify(ctx, p, s.ID, member)
	}
	if changed {
		e.saveMemberSet(ctx, p, branch, snap.Segments)
	}
	return nil
}

// ForceRecalculate rebuilds one segment's membership across every player of
// the game, in paced batches. Per-player failures are tolerated; the durable
// player count is overwritten with the exact tally at the end.
func (e *Evaluator) ForceRecalculate(ctx context.Context, segmentID, env string) error {
	s, err := e.segments.Get(ctx, segmentID)
	if err != nil {
		return err
	}

	var matched int64
	for offset := 0; ; offset += e.batchSize {
		batch, err := e.players.ListPlayers(ctx, s.GameID, env, offset, e.batchSize)
		if err != nil {
			return err
		}
		for _, p := range batch {
			member, err := e.applyOne(ctx, p, s)
			if err != nil {
				e.log.Warn("force recalc player", "segment", s.ID, "player", p.ClientID, "err", err)
				continue
			}
			if member {
				matched++
			}
		}
		if len(batch) < e.batchSize {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.pause):
		}
	}
	return e.segments.SetPlayerCount(ctx, s.ID, matched)
}

// applyOne re-evaluates a single segment for one player and updates the
// player's cached segment set, reporting the resulting membership.
func (e *Evaluator) applyOne(ctx context.Context, p ports.Player, s *ports.Segment) (bool, error) {
	snap, err := e.snapshot(ctx, p, s.Branch)
	if err != nil {
		return false, err
	}
	member := Evaluate(s.Root, snap)
	_, has := snap.Segments[s.ID]
	if member != has {
		if member {
			snap.Segments[s.ID] = struct{}{}
		} else {
			delete(snap.Segments, s.ID)
		}
		e.saveMemberSet(ctx, p, s.Branch, snap.Segments)
		e.notify(ctx, p, s.ID, member)
	}
	return member, nil
}

// snapshot assembles the evaluation input: the player's elements, inventory
// totals folded in as numeric pseudo-elements, and the cached segment set.
func (e *Evaluator) snapshot(ctx context.Context, p ports.Player, branch string) (*Snapshot, error) {
	els, err := e.loadElements(ctx, p, branch)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Elements: make(map[string]*ports.Element, len(els)),
		Segments: e.memberSet(ctx, p, branch),
	}
	for _, el := range els {
		snap.Elements[el.ElementID] = el
	}
	if e.inventory != nil {
		items, err := e.inventory.Items(ctx, p, branch)
		if err != nil {
			return nil, err
		}
		totals := map[string]*big.Int{}
		for _, it := range items {
			q, ok := new(big.Int).SetString(it.Quantity, 10)
			if !ok {
				continue
			}
			if t := totals[it.NodeID]; t != nil {
				t.Add(t, q)
			} else {
				totals[it.NodeID] = q
			}
		}
		for node, q := range totals {
			if _, exists := snap.Elements[node]; exists {
				continue // a real element wins over an inventory total
			}
			f, _ := new(big.Float).SetInt(q).Float64()
			snap.Elements[node] = &ports.Element{Player: p, ElementID: node, Value: ports.FloatValue(f)}
		}
	}
	return snap, nil
}

// loadElements reads the player's aggregate element snapshot, cache-first.
// The element store invalidates this entry on every mutation before
// triggering recalculation, so a cache hit is never stale here.
func (e *Evaluator) loadElements(ctx context.Context, p ports.Player, branch string) ([]*ports.Element, error) {
	key := cache.ElementsKey(p.GameID, branch, p.ClientID, p.Env)
	if raw, ok := e.cache.Get(ctx, key); ok {
		var els []*ports.Element
		if err := json.Unmarshal([]byte(raw), &els); err == nil {
			return els, nil
		}
		e.log.Warn("elements cache payload corrupt", "key", key)
	}
	els, err := e.players.ListElements(ctx, p)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(els); err == nil {
		e.cache.Set(ctx, key, string(raw))
	}
	return els, nil
}

// memberSet reads the player's cached segment set. Absence or a corrupt
// payload yields an empty set; membership re-converges on recalculation.
func (e *Evaluator) memberSet(ctx context.Context, p ports.Player, branch string) map[string]struct{} {
	set := map[string]struct{}{}
	key := cache.SegmentsKey(p.GameID, branch, p.ClientID, p.Env)
	raw, ok := e.cache.Get(ctx, key)
	if !ok {
		return set
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		e.log.Warn("segment set payload corrupt", "key", key)
		return set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (e *Evaluator) saveMemberSet(ctx context.Context, p ports.Player, branch string, set map[string]struct{}) {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	raw, _ := json.Marshal(ids)
	e.cache.Set(ctx, cache.SegmentsKey(p.GameID, branch, p.ClientID, p.Env), string(raw))
}

func (e *Evaluator) notify(ctx context.Context, p ports.Player, segmentID string, joined bool) {
	if e.metrics != nil {
		if joined {
			e.metrics.SegmentJoins.Add(ctx, 1)
		} else {
			e.metrics.SegmentLeaves.Add(ctx, 1)
		}
	}
	if e.publisher == nil {
		return
	}
	action := "leave"
	if joined {
		action = "join"
	}
	evt := map[string]any{
		"gameId":    p.GameID,
		"clientId":  p.ClientID,
		"env":       p.Env,
		"segmentId": segmentID,
		"action":    action,
		"at":        e.now().UTC().Format(time.RFC3339Nano),
	}
	if err := e.publisher.Publish(ctx, mq.TopicSegmentChanges, p.ClientID, evt); err != nil {
		e.log.Warn("publish segment change", "segment", segmentID, "player", p.ClientID, "err", err)
	}
}
