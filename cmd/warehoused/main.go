package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/playforge/warehouse/internal/analytics"
	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/config"
	"github.com/playforge/warehouse/internal/db"
	"github.com/playforge/warehouse/internal/element"
	"github.com/playforge/warehouse/internal/inventory"
	"github.com/playforge/warehouse/internal/leaderboard"
	"github.com/playforge/warehouse/internal/mq"
	"github.com/playforge/warehouse/internal/ports"
	repoinv "github.com/playforge/warehouse/internal/repo/gorm/inventories"
	repolb "github.com/playforge/warehouse/internal/repo/gorm/leaderboards"
	repopl "github.com/playforge/warehouse/internal/repo/gorm/players"
	reposg "github.com/playforge/warehouse/internal/repo/gorm/segments"
	repotpl "github.com/playforge/warehouse/internal/repo/gorm/templates"
	"github.com/playforge/warehouse/internal/segment"
	httpserver "github.com/playforge/warehouse/internal/server/http"
	"github.com/playforge/warehouse/internal/telemetry"
	"github.com/playforge/warehouse/internal/templates"
	"github.com/playforge/warehouse/internal/warehouse"
)

func main() {
	var cfgPath string
	var includes []string

	root := &cobra.Command{
		Use:   "warehoused",
		Short: "Player-data warehouse daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath, includes)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "config file")
	root.Flags().StringArrayVar(&includes, "include", nil, "additional config files merged in order")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("warehoused: %v", err)
	}
}

// segmentsHook breaks the construction cycle between the inventory ledger
// (which triggers segment recalculation) and the segment evaluator (which
// reads inventories).
type segmentsHook struct{ e *segment.Evaluator }

func (h *segmentsHook) Recalculate(ctx context.Context, p ports.Player, branch, elementID string) error {
	if h.e == nil {
		return nil
	}
	return h.e.Recalculate(ctx, p, branch, elementID)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tel, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.Background())

	// The durable store is the source of truth; not reaching it at boot is
	// fatal. The cache tier below degrades instead.
	gdb, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	for _, m := range []func(*gorm.DB) error{
		repopl.AutoMigrate, repoinv.AutoMigrate, repolb.AutoMigrate,
		reposg.AutoMigrate, repotpl.AutoMigrate,
	} {
		if err := m(gdb); err != nil {
			return err
		}
	}

	var transport ports.Transport
	if cfg.RedisURL != "" {
		rt, err := cache.NewRedisTransport(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, running on the in-process tier only", "err", err)
			transport = cache.NewMemTransport()
		} else {
			transport = rt
		}
	} else {
		logger.Info("no redis configured, running on the in-process tier only")
		transport = cache.NewMemTransport()
	}
	c := cache.New(transport, cache.WithLogger(logger), cache.WithMetrics(tel.Metrics))
	go c.Run(ctx)

	publisher, err := mq.New(cfg.MQ)
	if err != nil {
		return err
	}
	defer publisher.Close()

	tpls := templates.NewProvider(repotpl.NewRepo(gdb), logger)
	if cfg.TemplateSeed != "" {
		if err := tpls.LoadFile(cfg.TemplateSeed); err != nil {
			return err
		}
		go func() {
			if err := tpls.Watch(ctx, cfg.TemplateSeed); err != nil && ctx.Err() == nil {
				logger.Error("template watch", "err", err)
			}
		}()
	}

	players := repopl.NewRepo(gdb)
	boards := repolb.NewRepo(gdb)

	engine := leaderboard.NewEngine(boards, players, c,
		leaderboard.WithLogger(logger), leaderboard.WithMetrics(tel.Metrics))

	hook := &segmentsHook{}
	ledger := inventory.NewLedger(c, repoinv.NewRepo(gdb),
		inventory.WithSegments(hook), inventory.WithLogger(logger))
	evaluator := segment.NewEvaluator(reposg.NewRepo(gdb), players, c,
		segment.WithInventory(ledger),
		segment.WithPublisher(publisher),
		segment.WithLogger(logger),
		segment.WithMetrics(tel.Metrics))
	hook.e = evaluator

	elementOpts := []element.Option{
		element.WithSegments(evaluator),
		element.WithLeaderboards(engine),
		element.WithPublisher(publisher),
		element.WithLogger(logger),
	}
	if cfg.ClickHouseDSN != "" {
		sink, err := analytics.New(cfg.ClickHouseDSN, analytics.WithLogger(logger))
		if err != nil {
			return err
		}
		go func() {
			if err := sink.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("analytics sink", "err", err)
			}
		}()
		elementOpts = append(elementOpts, element.WithRecorder(sink))
	}
	elements := element.NewStore(tpls, players, c, elementOpts...)

	scopes := make([]warehouse.Scope, 0, len(cfg.Games))
	for _, g := range cfg.Games {
		scopes = append(scopes, warehouse.Scope{GameID: g.ID, Branch: g.Branch, Envs: g.Envs})
	}
	syncer := warehouse.NewSyncer(scopes,
		warehouse.WithInterval(cfg.SyncInterval),
		warehouse.WithBoards(engine),
		warehouse.WithLogger(logger),
		warehouse.WithMetrics(tel.Metrics))
	syncer.AddStage(inventory.DirtyTable, ledger)
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sync loop", "err", err)
		}
	}()

	srv := httpserver.NewServer(c, []string{inventory.DirtyTable},
		httpserver.WithSyncer(syncer),
		httpserver.WithSegments(evaluator),
		httpserver.WithElements(elements),
		httpserver.WithInventory(ledger),
		httpserver.WithLeaderboards(engine, boards),
		httpserver.WithLogger(logger))

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}
	logger.Info("warehoused listening", "addr", cfg.HTTPAddr)
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		// The syncer runs a final drain cycle on cancellation; wait for it
		// so pending write-behind state lands durably before exit.
		<-syncDone
		return nil
	}
}
