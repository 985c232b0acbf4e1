package element

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/mq"
	"github.com/playforge/warehouse/internal/ports"
)

// Validation failures surfaced to callers. These are expected business-rule
// violations, not logged as errors.
var (
	ErrOutOfRange = errors.New("element: value out of template range")
	ErrNotNumeric = errors.New("element: operation requires a numeric element")
	ErrUnknownOp  = errors.New("element: unknown operation")
)

// StatOp is a statistic mutation kind.
type StatOp string

const (
	StatAdd      StatOp = "add"
	StatSubtract StatOp = "subtract"
	StatSet      StatOp = "set"
	StatGet      StatOp = "get"
)

// AnalyticOp is an analytic mutation kind.
type AnalyticOp string

const (
	AnalyticSet       AnalyticOp = "set"
	AnalyticAdd       AnalyticOp = "add"
	AnalyticIncrement AnalyticOp = "increment"
	AnalyticArray     AnalyticOp = "array"
)

// SegmentRecalculator re-evaluates segment membership after an element of a
// player changed.
type SegmentRecalculator interface {
	Recalculate(ctx context.Context, p ports.Player, branch, elementID string) error
}

// LeaderboardUpdater folds an element change into any leaderboard referencing
// the element.
type LeaderboardUpdater interface {
	ElementChanged(ctx context.Context, p ports.Player, branch, elementID string, delta, absolute float64) error
}

// Recorder receives element-mutation snapshots for analytics ingestion.
// Implementations must not block.
type Recorder interface {
	RecordMutation(p ports.Player, elementID string, value float64, at time.Time)
}

// Store mutates player statistic and analytic elements. Mutations are
// durable-store-first; the player's aggregate cache entry is invalidated on
// every successful write and downstream consumers (segments, leaderboards,
// analytics) are triggered afterwards. Reads are cache-first: the aggregate
// snapshot is populated on the first read after an invalidation.
type Store struct {
	templates ports.TemplateProvider
	players   ports.PlayerStore
	cache     *cache.Cache
	segments  SegmentRecalculator
	boards    LeaderboardUpdater
	publisher ports.Publisher
	recorder  Recorder

	log *slog.Logger
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

func WithSegments(s SegmentRecalculator) Option { return func(st *Store) { st.segments = s } }
func WithLeaderboards(l LeaderboardUpdater) Option { return func(st *Store) { st.boards = l } }
func WithPublisher(p ports.Publisher) Option { return func(st *Store) { st.publisher = p } }
func WithRecorder(r Recorder) Option { return func(st *Store) { st.recorder = r } }
func WithLogger(l *slog.Logger) Option { return func(st *Store) { st.log = l } }
func WithClock(now func() time.Time) Option { return func(st *Store) { st.now = now } }

// NewStore wires the element store. templates, players and cache are
// required; the rest default to no-ops.
func NewStore(templates ports.TemplateProvider, players ports.PlayerStore, c *cache.Cache, opts ...Option) *Store {
	s := &Store{templates: templates, players: players, cache: c, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Statistic applies a bounded numeric operation. Get never mutates; the other
// kinds seed from the template default when the player has no row yet, and
// are range-guarded: an operation whose result would leave [min,max] is
// rejected with ErrOutOfRange and the stored value is unchanged.
func (s *Store) Statistic(ctx context.Context, op StatOp, p ports.Player, branch, elementID string, value float64) (ports.Value, error) {
	tpl, err := s.templates.Template(ctx, p.GameID, branch, elementID)
	if err != nil {
		return ports.Value{}, fmt.Errorf("template %s: %w", elementID, err)
	}
	if tpl.ValueKind != ports.KindInt && tpl.ValueKind != ports.KindFloat {
		return ports.Value{}, ErrNotNumeric
	}

	el, err := s.players.GetElement(ctx, p, elementID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return ports.Value{}, err
	}

	if el == nil {
		seed, _ := tpl.Default.Numeric()
		var result float64
		switch op {
		case StatGet:
			return numValue(tpl.ValueKind, seed), nil
		case StatAdd:
			result = seed + value
		case StatSubtract:
			result = seed - value
		case StatSet:
			result = value
		default:
			return ports.Value{}, ErrUnknownOp
		}
		if !tpl.InRange(result) {
			return ports.Value{}, ErrOutOfRange
		}
		nv := numValue(tpl.ValueKind, result)
		if err := s.players.CreateElement(ctx, &ports.Element{Player: p, ElementID: elementID, Value: nv}); err != nil {
			return ports.Value{}, err
		}
		s.afterMutation(ctx, p, branch, elementID, result, result)
		return nv, nil
	}

	cur, ok := el.Value.Numeric()
	if !ok {
		return ports.Value{}, ErrNotNumeric
	}

	switch op {
	case StatGet:
		return el.Value, nil
	case StatAdd, StatSubtract:
		delta := value
		if op == StatSubtract {
			delta = -value
		}
		applied, err := s.players.AddWithinRange(ctx, p, elementID, delta, tpl.RangeMin, tpl.RangeMax)
		if err != nil {
			return ports.Value{}, err
		}
		if !applied {
			return ports.Value{}, ErrOutOfRange
		}
		// Re-read: a concurrent mutation may have landed between the
		// conditional update and here; downstream consumers want the
		// stored value, not our local arithmetic.
		after, err := s.players.GetElement(ctx, p, elementID)
		if err != nil {
			return ports.Value{}, err
		}
		result, _ := after.Value.Numeric()
		s.afterMutation(ctx, p, branch, elementID, delta, result)
		return after.Value, nil
	case StatSet:
		if !tpl.InRange(value) {
			return ports.Value{}, ErrOutOfRange
		}
		nv := numValue(tpl.ValueKind, value)
		if err := s.players.SetValue(ctx, p, elementID, nv); err != nil {
			return ports.Value{}, err
		}
		s.afterMutation(ctx, p, branch, elementID, value-cur, value)
		return nv, nil
	}
	return ports.Value{}, ErrUnknownOp
}

// Analytic applies an unbounded mutation. Array mode appends to the value
// history and re-derives the current value with the template's method.
func (s *Store) Analytic(ctx context.Context, op AnalyticOp, p ports.Player, branch, elementID string, value ports.Value) (ports.Value, error) {
	tpl, err := s.templates.Template(ctx, p.GameID, branch, elementID)
	if err != nil {
		return ports.Value{}, fmt.Errorf("template %s: %w", elementID, err)
	}

	el, err := s.players.GetElement(ctx, p, elementID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return ports.Value{}, err
	}
	if el == nil {
		el = &ports.Element{Player: p, ElementID: elementID, Value: tpl.Default}
		if err := s.players.CreateElement(ctx, el); err != nil {
			return ports.Value{}, err
		}
	}

	switch op {
	case AnalyticSet:
		if err := s.players.SetValue(ctx, p, elementID, value); err != nil {
			return ports.Value{}, err
		}
		num, _ := value.Numeric()
		cur, _ := el.Value.Numeric()
		s.afterMutation(ctx, p, branch, elementID, num-cur, num)
		return value, nil
	case AnalyticAdd, AnalyticIncrement:
		delta := 1.0
		if op == AnalyticAdd {
			var ok bool
			if delta, ok = value.Numeric(); !ok {
				return ports.Value{}, ErrNotNumeric
			}
		}
		cur, ok := el.Value.Numeric()
		if !ok {
			return ports.Value{}, ErrNotNumeric
		}
		nv := numValue(tpl.ValueKind, cur+delta)
		if err := s.players.SetValue(ctx, p, elementID, nv); err != nil {
			return ports.Value{}, err
		}
		s.afterMutation(ctx, p, branch, elementID, delta, cur+delta)
		return nv, nil
	case AnalyticArray:
		sample, ok := value.Numeric()
		if !ok {
			return ports.Value{}, ErrNotNumeric
		}
		now := s.now()
		hist := append(el.History, ports.HistoryEntry{Value: sample, At: now})
		derived := derive(tpl.Method, tpl.WindowDays, hist, now)
		cur, _ := el.Value.Numeric()
		nv := ports.FloatValue(derived)
		if err := s.players.SetHistory(ctx, p, elementID, nv, hist); err != nil {
			return ports.Value{}, err
		}
		s.afterMutation(ctx, p, branch, elementID, derived-cur, derived)
		return nv, nil
	}
	return ports.Value{}, ErrUnknownOp
}

// Get returns the element's current value, or the template default when the
// player has no row. Never mutates. Served from the aggregate snapshot, so a
// read between two mutations never touches the durable store.
func (s *Store) Get(ctx context.Context, p ports.Player, branch, elementID string) (ports.Value, error) {
	els, err := s.loadElements(ctx, p, branch)
	if err != nil {
		return ports.Value{}, err
	}
	for _, el := range els {
		if el.ElementID == elementID {
			return el.Value, nil
		}
	}
	tpl, terr := s.templates.Template(ctx, p.GameID, branch, elementID)
	if terr != nil {
		return ports.Value{}, fmt.Errorf("template %s: %w", elementID, terr)
	}
	return tpl.Default, nil
}

// loadElements returns the player's full element snapshot, cache-first. A
// corrupt cache payload is treated as a miss; a durable load repopulates the
// aggregate entry that afterMutation invalidates.
func (s *Store) loadElements(ctx context.Context, p ports.Player, branch string) ([]*ports.Element, error) {
	key := cache.ElementsKey(p.GameID, branch, p.ClientID, p.Env)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var els []*ports.Element
		if err := json.Unmarshal([]byte(raw), &els); err == nil {
			return els, nil
		}
		s.log.Warn("elements cache payload corrupt", "key", key)
	}
	els, err := s.players.ListElements(ctx, p)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(els); err == nil {
		s.cache.Set(ctx, key, string(raw))
	}
	return els, nil
}

// afterMutation runs the post-write fanout: cache invalidation, segment
// recalculation, leaderboard propagation, analytics. Fanout failures are
// logged and never fail the mutation that already landed.
func (s *Store) afterMutation(ctx context.Context, p ports.Player, branch, elementID string, delta, absolute float64) {
	s.cache.Delete(ctx, cache.ElementsKey(p.GameID, branch, p.ClientID, p.Env))
	if s.segments != nil {
		if err := s.segments.Recalculate(ctx, p, branch, elementID); err != nil {
			s.log.Warn("segment recalc", "player", p.ClientID, "element", elementID, "err", err)
		}
	}
	if s.boards != nil {
		if err := s.boards.ElementChanged(ctx, p, branch, elementID, delta, absolute); err != nil {
			s.log.Warn("leaderboard propagate", "player", p.ClientID, "element", elementID, "err", err)
		}
	}
	if s.recorder != nil {
		s.recorder.RecordMutation(p, elementID, absolute, s.now())
	}
	if s.publisher != nil {
		evt := map[string]any{
			"gameId":    p.GameID,
			"clientId":  p.ClientID,
			"env":       p.Env,
			"elementId": elementID,
			"value":     absolute,
			"at":        s.now().UTC().Format(time.RFC3339Nano),
		}
		if err := s.publisher.Publish(ctx, mq.TopicElementSnapshots, p.ClientID, evt); err != nil {
			s.log.Warn("publish element snapshot", "player", p.ClientID, "err", err)
		}
	}
}

func numValue(kind ports.ValueKind, v float64) ports.Value {
	if kind == ports.KindInt {
		return ports.IntValue(int64(v))
	}
	return ports.FloatValue(v)
}
