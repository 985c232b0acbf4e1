package warehouse

import (
	"context"
	"log/slog"
	"time"

	"github.com/playforge/warehouse/internal/telemetry"
)

// defaultInterval paces the write-behind sync cycle.
const defaultInterval = 30 * time.Second

// Flusher drains one dirty set into durable storage.
type Flusher interface {
	FlushDirty(ctx context.Context) (flushed, failed int)
}

// BoardRecalculator rolls leaderboard windows for one (game, branch, env).
type BoardRecalculator interface {
	Recalculate(ctx context.Context, gameID, branch, env string) error
}

// Scope is one (game, branch) the sync cycle maintains, across its
// environments.
type Scope struct {
	GameID string
	Branch string
	Envs   []string
}

type stage struct {
	name string
	f    Flusher
}

// Syncer runs the periodic background cycle: write-behind flush stages
// followed by leaderboard recalculation per configured scope. Every stage and
// every scope is isolated; one failure never stops the cycle.
type Syncer struct {
	stages []stage
	boards BoardRecalculator
	scopes []Scope

	interval time.Duration
	log      *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBoards(b BoardRecalculator) Option { return func(s *Syncer) { s.boards = b } }
func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.log = l } }
func WithMetrics(m *telemetry.Metrics) Option { return func(s *Syncer) { s.metrics = m } }

// NewSyncer wires the background cycle over the given scopes.
func NewSyncer(scopes []Scope, opts ...Option) *Syncer {
	s := &Syncer{
		scopes:   scopes,
		interval: defaultInterval,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddStage registers a named write-behind flush stage; stages run in
// registration order.
func (s *Syncer) AddStage(name string, f Flusher) {
	s.stages = append(s.stages, stage{name: name, f: f})
}

// Run executes a cycle every interval until ctx is cancelled. A final cycle
// drains pending writes on shutdown.
func (s *Syncer) Run(ctx context.Context) error {
	tk := time.NewTicker(s.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Cycle(context.Background())
			return ctx.Err()
		case <-tk.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle runs one full pass: every flush stage, then leaderboard
// recalculation for every scope and environment.
func (s *Syncer) Cycle(ctx context.Context) {
	started := s.now()

	for _, st := range s.stages {
		flushed, failed := st.f.FlushDirty(ctx)
		if flushed > 0 || failed > 0 {
			s.log.Info("write-behind flush", "stage", st.name, "flushed", flushed, "failed", failed)
		}
		if s.metrics != nil {
			s.metrics.DirtyFlushed.Add(ctx, int64(flushed))
			s.metrics.DirtyFlushFails.Add(ctx, int64(failed))
		}
	}

	if s.boards != nil {
		for _, sc := range s.scopes {
			for _, env := range sc.Envs {
				if err := s.boards.Recalculate(ctx, sc.GameID, sc.Branch, env); err != nil {
					s.log.Error("leaderboard recalc", "game", sc.GameID, "branch", sc.Branch, "env", env, "err", err)
				}
			}
		}
	}

	if s.metrics != nil {
		s.metrics.SyncCycles.Add(ctx, 1)
		s.metrics.SyncCycleSeconds.Record(ctx, s.now().Sub(started).Seconds())
	}
}
