package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/playforge/warehouse/internal/ports"
)

const (
	defaultBuffer     = 4096
	defaultMaxBatch   = 500
	defaultFlushEvery = 15 * time.Second

	// Bounded linear retry for table creation and batch inserts.
	retryAttempts = 5
	retryStep     = 500 * time.Millisecond
)

// snapshot is one element mutation headed for the warehouse table.
type snapshot struct {
	GameID    string
	ClientID  string
	Env       string
	ElementID string
	Value     float64
	At        time.Time
}

// inserter is the narrow ClickHouse surface the sink needs; tests swap it out.
type inserter interface {
	exec(ctx context.Context, query string) error
	insert(ctx context.Context, query string, rows [][]any) error
}

// Sink batches element-mutation snapshots into ClickHouse. RecordMutation
// never blocks: when the buffer is full the snapshot is dropped, analytics
// being strictly best-effort.
type Sink struct {
	ins      inserter
	database string

	buf        chan snapshot
	log        *slog.Logger
	flushEvery time.Duration
	maxBatch   int
	retryPause time.Duration
}

// Option configures a Sink.
type Option func(*Sink)

func WithLogger(l *slog.Logger) Option { return func(s *Sink) { s.log = l } }

// WithFlushInterval overrides the periodic flush cadence.
func WithFlushInterval(d time.Duration) Option { return func(s *Sink) { s.flushEvery = d } }

// New connects to ClickHouse. The DSN is clickhouse://host:port/database;
// the database segment defaults to "warehouse".
func New(dsn string, opts ...Option) (*Sink, error) {
	addr, database := splitDSN(dsn)
	conn, err := clickhouse.Open(&clickhouse.Options{Addr: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	s := newSink(&chInserter{conn: conn}, database)
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func newSink(ins inserter, database string) *Sink {
	if database == "" {
		database = "warehouse"
	}
	return &Sink{
		ins:        ins,
		database:   database,
		buf:        make(chan snapshot, defaultBuffer),
		log:        slog.Default(),
		flushEvery: defaultFlushEvery,
		maxBatch:   defaultMaxBatch,
		retryPause: retryStep,
	}
}

// RecordMutation queues one snapshot. Never blocks the mutating request.
func (s *Sink) RecordMutation(p ports.Player, elementID string, value float64, at time.Time) {
	select {
	case s.buf <- snapshot{GameID: p.GameID, ClientID: p.ClientID, Env: p.Env, ElementID: elementID, Value: value, At: at}:
	default:
		// Buffer full; the snapshot is lost, the mutation is not.
	}
}

// Run owns the flush loop; it blocks until ctx is cancelled, then drains what
// is still buffered.
func (s *Sink) Run(ctx context.Context) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	tk := time.NewTicker(s.flushEvery)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return ctx.Err()
		case <-tk.C:
			s.flush(ctx)
		}
	}
}

func (s *Sink) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.element_snapshots (
		at DateTime64(3),
		game_id String,
		client_id String,
		env String,
		element_id String,
		value Float64
	) ENGINE = MergeTree ORDER BY (game_id, element_id, at)`, s.database)
	return s.retried(ctx, "ensure table", func() error { return s.ins.exec(ctx, ddl) })
}

// flush drains the buffer into bounded insert batches.
func (s *Sink) flush(ctx context.Context) {
	for {
		rows := s.drain()
		if len(rows) == 0 {
			return
		}
		query := fmt.Sprintf("INSERT INTO %s.element_snapshots (at, game_id, client_id, env, element_id, value)", s.database)
		err := s.retried(ctx, "insert", func() error { return s.ins.insert(ctx, query, rows) })
		if err != nil {
			s.log.Warn("analytics batch lost", "rows", len(rows), "err", err)
			return
		}
	}
}

func (s *Sink) drain() [][]any {
	rows := make([][]any, 0, s.maxBatch)
	for len(rows) < s.maxBatch {
		select {
		case sn := <-s.buf:
			rows = append(rows, []any{sn.At, sn.GameID, sn.ClientID, sn.Env, sn.ElementID, sn.Value})
		default:
			return rows
		}
	}
	return rows
}

// retried runs op with a fixed attempt count and linear backoff.
func (s *Sink) retried(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		s.log.Warn("analytics "+what, "attempt", attempt, "err", err)
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.retryPause):
		}
	}
	return err
}

// splitDSN reduces clickhouse://host:port/db to its address and database.
func splitDSN(dsn string) (addr, database string) {
	rest := strings.TrimPrefix(strings.TrimPrefix(dsn, "clickhouse://"), "http://")
	addr = rest
	if i := strings.Index(rest, "/"); i >= 0 {
		addr, database = rest[:i], rest[i+1:]
	}
	return addr, database
}

type chInserter struct{ conn clickhouse.Conn }

func (c *chInserter) exec(ctx context.Context, query string) error {
	return c.conn.Exec(ctx, query)
}

func (c *chInserter) insert(ctx context.Context, query string, rows [][]any) error {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			return err
		}
	}
	return batch.Send()
}
