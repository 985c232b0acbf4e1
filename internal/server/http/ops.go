package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/playforge/warehouse/internal/cache"
	"github.com/playforge/warehouse/internal/element"
	"github.com/playforge/warehouse/internal/inventory"
	"github.com/playforge/warehouse/internal/leaderboard"
	"github.com/playforge/warehouse/internal/ports"
)

// CycleRunner runs one write-behind sync cycle on demand.
type CycleRunner interface {
	Cycle(ctx context.Context)
}

// SegmentForcer rebuilds one segment's membership across all players.
type SegmentForcer interface {
	ForceRecalculate(ctx context.Context, segmentID, env string) error
}

// Server is the internal ops surface: health, cache/dirty stats and manual
// triggers for the background cycle. It carries no auth; it is meant to be
// reachable from the operations network only.
type Server struct {
	cache       *cache.Cache
	syncer      CycleRunner
	segments    SegmentForcer
	dirtyTables []string

	elements   *element.Store
	ledger     *inventory.Ledger
	boards     *leaderboard.Engine
	boardStore ports.LeaderboardStore

	log *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithSyncer(s CycleRunner) Option { return func(srv *Server) { srv.syncer = s } }
func WithSegments(s SegmentForcer) Option { return func(srv *Server) { srv.segments = s } }
func WithLogger(l *slog.Logger) Option { return func(srv *Server) { srv.log = l } }

// WithElements exposes the element mutation surface.
func WithElements(e *element.Store) Option { return func(srv *Server) { srv.elements = e } }

// WithInventory exposes the inventory mutation surface.
func WithInventory(l *inventory.Ledger) Option { return func(srv *Server) { srv.ledger = l } }

// WithLeaderboards exposes leaderboard reads; the store resolves board
// configuration by ID.
func WithLeaderboards(e *leaderboard.Engine, store ports.LeaderboardStore) Option {
	return func(srv *Server) {
		srv.boards = e
		srv.boardStore = store
	}
}

// NewServer builds the ops server. dirtyTables names the dirty sets exposed
// through the stats endpoint.
func NewServer(c *cache.Cache, dirtyTables []string, opts ...Option) *Server {
	s := &Server{cache: c, dirtyTables: dirtyTables, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router assembles the gin engine with every ops route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/api/ops/stats", func(c *gin.Context) {
		dirty := gin.H{}
		for _, table := range s.dirtyTables {
			dirty[table] = len(s.cache.DirtyKeys(c.Request.Context(), table))
		}
		c.JSON(200, gin.H{"cache": s.cache.Stats(), "dirty": dirty})
	})

	r.POST("/api/ops/flush", func(c *gin.Context) {
		if s.syncer == nil {
			c.JSON(503, gin.H{"code": "unavailable", "message": "sync cycle not wired"})
			return
		}
		s.syncer.Cycle(c.Request.Context())
		c.JSON(200, gin.H{"status": "flushed"})
	})

	r.POST("/api/ops/segments/:id/recalculate", func(c *gin.Context) {
		if s.segments == nil {
			c.JSON(503, gin.H{"code": "unavailable", "message": "segment evaluator not wired"})
			return
		}
		env := c.DefaultQuery("env", "prod")
		if err := s.segments.ForceRecalculate(c.Request.Context(), c.Param("id"), env); err != nil {
			s.log.Error("force recalc", "segment", c.Param("id"), "err", err)
			c.JSON(500, gin.H{"code": "recalc_failed", "message": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "recalculated", "segment": c.Param("id"), "env": env})
	})

	s.addDataRoutes(r)
	return r
}
