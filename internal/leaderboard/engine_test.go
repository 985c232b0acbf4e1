package leaderboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/ports"
	repolb "github.com/playforge/warehouse/internal/repo/gorm/leaderboards"
	repopl "github.com/playforge/warehouse/internal/repo/gorm/players"
)

type fixture struct {
	db      *gorm.DB
	repo    *repolb.Repo
	players *repopl.Repo
	cache   *cache.Cache
	engine  *Engine
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repolb.AutoMigrate(db); err != nil {
		t.Fatalf("migrate leaderboards: %v", err)
	}
	if err := repopl.AutoMigrate(db); err != nil {
		t.Fatalf("migrate players: %v", err)
	}
	f := &fixture{
		db:      db,
		repo:    repolb.NewRepo(db),
		players: repopl.NewRepo(db),
		cache:   cache.New(cache.NewMemTransport()),
		now:     time.Now().UTC(),
	}
	f.engine = NewEngine(f.repo, f.players, f.cache, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) saveBoard(t *testing.T, b *ports.Leaderboard) {
	t.Helper()
	if err := f.repo.SaveBoard(context.Background(), b); err != nil {
		t.Fatalf("save board: %v", err)
	}
}

// backdate rewrites a row's updated_at directly, bypassing GORM's
// auto-timestamping, to simulate a row written in an earlier window.
func (f *fixture) backdate(t *testing.T, clientID string, to time.Time) {
	t.Helper()
	err := f.db.Model(&repolb.BoardRow{}).
		Where("client_id = ?", clientID).
		UpdateColumn("updated_at", to).Error
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func dailyBoard(id string) *ports.Leaderboard {
	return &ports.Leaderboard{
		ID:                 id,
		GameID:             "g1",
		Branch:             "main",
		AggregateElementID: "score",
		Timeframes: []ports.Timeframe{{
			Key:         id + "-daily",
			PeriodUnit:  "day",
			PeriodCount: 1,
			StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			TopLength:   10,
		}},
	}
}

func pl(clientID string) ports.Player {
	return ports.Player{GameID: "g1", ClientID: clientID, Env: "prod"}
}

func TestElementChangedAccumulatesScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.saveBoard(t, dailyBoard("b1"))

	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "score", 5, 5); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "score", 3, 8); err != nil {
		t.Fatal(err)
	}
	row, err := f.repo.GetRow(ctx, pl("p1"), "b1-daily")
	if err != nil {
		t.Fatal(err)
	}
	if row.Score != 8 {
		t.Fatalf("score: got %v, want 8", row.Score)
	}
}

func TestElementChangedAdditionalIsAbsolute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := dailyBoard("b1")
	b.AdditionalElementIDs = []string{"level"}
	f.saveBoard(t, b)

	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "level", 1, 4); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "level", 1, 5); err != nil {
		t.Fatal(err)
	}
	row, err := f.repo.GetRow(ctx, pl("p1"), "b1-daily")
	if err != nil {
		t.Fatal(err)
	}
	if row.Score != 0 {
		t.Fatalf("side element must not touch the score, got %v", row.Score)
	}
	if row.Additional["level"] != 5 {
		t.Fatalf("side column holds the latest absolute, got %v", row.Additional["level"])
	}
}

func TestElementChangedIgnoresUnreferencedElement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.saveBoard(t, dailyBoard("b1"))

	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "unrelated", 5, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.GetRow(ctx, pl("p1"), "b1-daily"); err != ports.ErrNotFound {
		t.Fatalf("expected no row, got %v", err)
	}
}

func TestTopTieBreakIsDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := dailyBoard("b1")
	f.saveBoard(t, b)

	// Insert out of order; equal scores must come back client_id ascending.
	for _, id := range []string{"zed", "amy", "mia"} {
		if err := f.engine.ElementChanged(ctx, pl(id), "main", "score", 10, 10); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := f.engine.Top(ctx, b, b.Timeframes[0], "prod", nil)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{}
	for _, r := range rows {
		got = append(got, r.Player.ClientID)
	}
	want := []string{"amy", "mia", "zed"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v, want %v", got, want)
		}
	}
}

func TestTopAppendsRequesterOutsideTop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := dailyBoard("b1")
	b.Timeframes[0].TopLength = 2
	f.saveBoard(t, b)

	scores := map[string]float64{"p1": 30, "p2": 20, "p3": 10}
	for id, s := range scores {
		if err := f.engine.ElementChanged(ctx, pl(id), "main", "score", s, s); err != nil {
			t.Fatal(err)
		}
	}
	requester := pl("p3")
	rows, err := f.engine.Top(ctx, b, b.Timeframes[0], "prod", &requester)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected top 2 plus requester, got %d rows", len(rows))
	}
	if rows[2].Player.ClientID != "p3" || rows[2].Score != 10 {
		t.Fatalf("requester row: %+v", rows[2])
	}

	// A requester already inside the top is not duplicated.
	requester = pl("p1")
	rows, err = f.engine.Top(ctx, b, b.Timeframes[0], "prod", &requester)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected plain top 2, got %d rows", len(rows))
	}
}

func TestTopServedFromCacheSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := dailyBoard("b1")
	f.saveBoard(t, b)

	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "score", 5, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Top(ctx, b, b.Timeframes[0], "prod", nil); err != nil {
		t.Fatal(err)
	}
	// Mutate durable state behind the cache; the snapshot keeps serving
	// until its TTL lapses or a rollover clears it.
	if err := f.repo.UpsertRow(ctx, &ports.Row{Player: pl("p1"), TimeframeKey: "b1-daily", Score: 99}); err != nil {
		t.Fatal(err)
	}
	rows, err := f.engine.Top(ctx, b, b.Timeframes[0], "prod", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Score != 5 {
		t.Fatalf("expected cached score 5, got %+v", rows)
	}
}

func TestTopAlternativeCalculationSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := dailyBoard("b1")
	b.AlternativeCalculation = true
	b.Timeframes[0].TopLength = 1
	f.saveBoard(t, b)

	// Durable rows exist but must be ignored for alt boards.
	if err := f.repo.UpsertRow(ctx, &ports.Row{Player: pl("px"), TimeframeKey: "b1-daily", Score: 999}); err != nil {
		t.Fatal(err)
	}

	snapshot := []ports.Row{
		{Player: pl("p1"), TimeframeKey: "b1-daily", Score: 7},
		{Player: pl("p2"), TimeframeKey: "b1-daily", Score: 3},
	}
	raw, _ := json.Marshal(snapshot)
	f.cache.Set(ctx, cache.LeaderboardAltKey("g1", "main", "b1-daily", "prod"), string(raw))

	rows, err := f.engine.Top(ctx, b, b.Timeframes[0], "prod", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Player.ClientID != "p1" || rows[0].Score != 7 {
		t.Fatalf("alt snapshot top: %+v", rows)
	}
}

func TestRecalculatePurgesRowsOutsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.saveBoard(t, dailyBoard("b1"))

	for _, id := range []string{"old", "fresh"} {
		if err := f.engine.ElementChanged(ctx, pl(id), "main", "score", 5, 5); err != nil {
			t.Fatal(err)
		}
	}
	f.backdate(t, "old", f.now.Add(-48*time.Hour))

	if err := f.engine.Recalculate(ctx, "g1", "main", "prod"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.GetRow(ctx, pl("old"), "b1-daily"); err != ports.ErrNotFound {
		t.Fatalf("stale row should be purged, got %v", err)
	}
	if _, err := f.repo.GetRow(ctx, pl("fresh"), "b1-daily"); err != nil {
		t.Fatalf("current-window row should survive: %v", err)
	}
	st, err := f.repo.GetState(ctx, "g1", "prod", "b1-daily")
	if err != nil {
		t.Fatal(err)
	}
	if !st.LastUpdate.Equal(f.now) {
		t.Fatalf("state: %v", st.LastUpdate)
	}
}

func TestRecalculateSkipsFreshState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.saveBoard(t, dailyBoard("b1"))

	if err := f.engine.Recalculate(ctx, "g1", "main", "prod"); err != nil {
		t.Fatal(err)
	}
	// A stale row appearing after the rebuild stays until the next window
	// actually opens; Recalculate must not purge on every cycle.
	if err := f.engine.ElementChanged(ctx, pl("late"), "main", "score", 5, 5); err != nil {
		t.Fatal(err)
	}
	f.backdate(t, "late", f.now.Add(-48*time.Hour))
	if err := f.engine.Recalculate(ctx, "g1", "main", "prod"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.GetRow(ctx, pl("late"), "b1-daily"); err != nil {
		t.Fatalf("row purged by a skipped rollover: %v", err)
	}
}

func TestRecalculateRefreshesSideColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := dailyBoard("b1")
	b.AdditionalElementIDs = []string{"level"}
	f.saveBoard(t, b)

	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "score", 5, 5); err != nil {
		t.Fatal(err)
	}
	// The live element moved since the row was written.
	el := &ports.Element{Player: pl("p1"), ElementID: "level", Value: ports.IntValue(12)}
	if err := f.players.CreateElement(ctx, el); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.Recalculate(ctx, "g1", "main", "prod"); err != nil {
		t.Fatal(err)
	}
	row, err := f.repo.GetRow(ctx, pl("p1"), "b1-daily")
	if err != nil {
		t.Fatal(err)
	}
	if row.Additional["level"] != 12 {
		t.Fatalf("side column not refreshed: %+v", row.Additional)
	}
	if row.Score != 5 {
		t.Fatalf("score must survive the refresh, got %v", row.Score)
	}
}

func TestRecalculateCollectsOrphanedTimeframes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.saveBoard(t, dailyBoard("b1"))

	if err := f.engine.ElementChanged(ctx, pl("p1"), "main", "score", 5, 5); err != nil {
		t.Fatal(err)
	}
	// A row whose timeframe no longer exists on any board.
	orphan := &ports.Row{Player: pl("p1"), TimeframeKey: "removed-tf", Score: 3}
	if err := f.repo.UpsertRow(ctx, orphan); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.Recalculate(ctx, "g1", "main", "prod"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.GetRow(ctx, pl("p1"), "removed-tf"); err != ports.ErrNotFound {
		t.Fatalf("orphaned row should be purged, got %v", err)
	}
	if _, err := f.repo.GetRow(ctx, pl("p1"), "b1-daily"); err != nil {
		t.Fatalf("live row should survive: %v", err)
	}
}
