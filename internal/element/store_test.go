package element

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/ports"
	repoplayers "github.com/playforge/warehouse/internal/repo/gorm/players"
)

type fakeTemplates map[string]*ports.Template

func (f fakeTemplates) Template(ctx context.Context, gameID, branch, elementID string) (*ports.Template, error) {
	if t, ok := f[elementID]; ok {
		return t, nil
	}
	return nil, ports.ErrNotFound
}

type captureSegments struct{ calls []string }

func (c *captureSegments) Recalculate(ctx context.Context, p ports.Player, branch, elementID string) error {
	c.calls = append(c.calls, elementID)
	return nil
}

type captureBoards struct {
	elements []string
	absolute []float64
}

func (c *captureBoards) ElementChanged(ctx context.Context, p ports.Player, branch, elementID string, delta, absolute float64) error {
	c.elements = append(c.elements, elementID)
	c.absolute = append(c.absolute, absolute)
	return nil
}

func fptr(v float64) *float64 { return &v }

func newTestStore(t *testing.T) (*Store, *captureSegments, *captureBoards, ports.PlayerStore, *cache.Cache) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repoplayers.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	players := repoplayers.NewRepo(db)
	c := cache.New(cache.NewMemTransport())
	tpls := fakeTemplates{
		"gold": {ID: "gold", Kind: ports.TemplateStatistic, ValueKind: ports.KindInt,
			Default: ports.IntValue(10), RangeMin: fptr(0), RangeMax: fptr(100)},
		"score": {ID: "score", Kind: ports.TemplateAnalytic, ValueKind: ports.KindFloat,
			Default: ports.FloatValue(0), Method: ports.MethodMean},
		"title": {ID: "title", Kind: ports.TemplateAnalytic, ValueKind: ports.KindString,
			Default: ports.StringValue("novice")},
	}
	segs := &captureSegments{}
	boards := &captureBoards{}
	st := NewStore(tpls, players, c,
		WithSegments(segs), WithLeaderboards(boards),
		WithClock(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }))
	return st, segs, boards, players, c
}

var testPlayer = ports.Player{GameID: "g1", ClientID: "p1", Env: "prod"}

func TestStatisticSeedsFromTemplateDefault(t *testing.T) {
	st, _, _, _, _ := newTestStore(t)
	ctx := context.Background()

	v, err := st.Statistic(ctx, StatAdd, testPlayer, "main", "gold", 5)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if v.Int != 15 { // default 10 + 5
		t.Fatalf("seeded add: got %d, want 15", v.Int)
	}
}

func TestStatisticGetDoesNotMutate(t *testing.T) {
	st, segs, _, players, _ := newTestStore(t)
	ctx := context.Background()

	v, err := st.Statistic(ctx, StatGet, testPlayer, "main", "gold", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Int != 10 {
		t.Fatalf("get default: got %d, want 10", v.Int)
	}
	if _, err := players.GetElement(ctx, testPlayer, "gold"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatal("get must not create a row")
	}
	if len(segs.calls) != 0 {
		t.Fatal("get must not trigger segment recalculation")
	}
}

func TestStatisticRangeGuard(t *testing.T) {
	st, _, _, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Statistic(ctx, StatAdd, testPlayer, "main", "gold", 50); err != nil {
		t.Fatalf("add: %v", err)
	}
	// 60 + 50 = 110 > max 100: rejected, value unchanged.
	if _, err := st.Statistic(ctx, StatAdd, testPlayer, "main", "gold", 50); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	v, err := st.Statistic(ctx, StatGet, testPlayer, "main", "gold", 0)
	if err != nil {
		t.Fatal(err)
	}
	if v.Int != 60 {
		t.Fatalf("value changed by rejected op: got %d, want 60", v.Int)
	}
	// Subtract below min 0: rejected too.
	if _, err := st.Statistic(ctx, StatSubtract, testPlayer, "main", "gold", 61); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestStatisticSetValidatesRange(t *testing.T) {
	st, _, _, _, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := st.Statistic(ctx, StatSet, testPlayer, "main", "gold", 101); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	v, err := st.Statistic(ctx, StatSet, testPlayer, "main", "gold", 42)
	if err != nil {
		t.Fatal(err)
	}
	if v.Int != 42 {
		t.Fatalf("set: got %d, want 42", v.Int)
	}
}

func TestStatisticMissingTemplate(t *testing.T) {
	st, _, _, _, _ := newTestStore(t)
	if _, err := st.Statistic(context.Background(), StatAdd, testPlayer, "main", "nope", 1); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMutationTriggersFanout(t *testing.T) {
	st, segs, boards, _, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := st.Statistic(ctx, StatAdd, testPlayer, "main", "gold", 3); err != nil {
		t.Fatal(err)
	}
	if len(segs.calls) != 1 || segs.calls[0] != "gold" {
		t.Fatalf("segment fanout: %v", segs.calls)
	}
	if len(boards.elements) != 1 || boards.absolute[0] != 13 {
		t.Fatalf("leaderboard fanout: %v %v", boards.elements, boards.absolute)
	}
}

func TestAnalyticArrayDerivesMedian(t *testing.T) {
	st, _, _, _, _ := newTestStore(t)
	ctx := context.Background()
	for _, v := range []float64{5, 1, 3} {
		if _, err := st.Analytic(ctx, AnalyticArray, testPlayer, "main", "score", ports.FloatValue(v)); err != nil {
			t.Fatal(err)
		}
	}
	v, err := st.Analytic(ctx, AnalyticArray, testPlayer, "main", "score", ports.FloatValue(7))
	if err != nil {
		t.Fatal(err)
	}
	if v.Float != 4 { // sorted [1,3,5,7] -> (3+5)/2
		t.Fatalf("derived median: got %v, want 4", v.Float)
	}
}

func TestAnalyticIncrementAndAdd(t *testing.T) {
	st, _, _, _, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := st.Analytic(ctx, AnalyticIncrement, testPlayer, "main", "score", ports.Value{}); err != nil {
		t.Fatal(err)
	}
	v, err := st.Analytic(ctx, AnalyticAdd, testPlayer, "main", "score", ports.FloatValue(2.5))
	if err != nil {
		t.Fatal(err)
	}
	if v.Float != 3.5 {
		t.Fatalf("analytic add: got %v, want 3.5", v.Float)
	}
}

func TestGetPopulatesAggregateSnapshot(t *testing.T) {
	st, _, _, players, c := newTestStore(t)
	ctx := context.Background()
	if _, err := st.Statistic(ctx, StatAdd, testPlayer, "main", "gold", 5); err != nil {
		t.Fatal(err)
	}

	v, err := st.Get(ctx, testPlayer, "main", "gold")
	if err != nil || v.Int != 15 {
		t.Fatalf("first read: %v %v", v, err)
	}
	if _, ok := c.Get(ctx, cache.ElementsKey("g1", "main", "p1", "prod")); !ok {
		t.Fatal("aggregate snapshot not cached after read")
	}

	// A durable write that bypasses the store stays invisible: the second
	// read is served from the cached snapshot.
	if err := players.SetValue(ctx, testPlayer, "gold", ports.IntValue(70)); err != nil {
		t.Fatal(err)
	}
	if v, _ := st.Get(ctx, testPlayer, "main", "gold"); v.Int != 15 {
		t.Fatalf("second read bypassed the snapshot: %d", v.Int)
	}

	// A store mutation invalidates; the next read reflects durable state.
	if _, err := st.Statistic(ctx, StatAdd, testPlayer, "main", "gold", 5); err != nil {
		t.Fatal(err)
	}
	if v, _ := st.Get(ctx, testPlayer, "main", "gold"); v.Int != 75 {
		t.Fatalf("read after invalidation: %d", v.Int)
	}
}

func TestAnalyticSetString(t *testing.T) {
	st, _, _, _, _ := newTestStore(t)
	ctx := context.Background()
	v, err := st.Analytic(ctx, AnalyticSet, testPlayer, "main", "title", ports.StringValue("veteran"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Str != "veteran" {
		t.Fatalf("analytic set: got %q", v.Str)
	}
	got, err := st.Get(ctx, testPlayer, "main", "title")
	if err != nil {
		t.Fatal(err)
	}
	if got.Str != "veteran" {
		t.Fatalf("get after set: got %q", got.Str)
	}
}
