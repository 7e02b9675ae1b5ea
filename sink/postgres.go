package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gr-butler/tiltcompass/data"
	"github.com/gr-butler/tiltcompass/env"
	"github.com/gr-butler/tiltcompass/metrics"
	"github.com/lib/pq"
	logger "github.com/sirupsen/logrus"
)

const postgresTimeout = 5 * time.Second

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type row struct {
	r data.Record
	t time.Time
}

// Postgres inserts one row per record. Inserts run on their own goroutine
// behind a bounded queue; when the queue is full the record is dropped.
type Postgres struct {
	db      execer
	insert  string
	queue   chan row
	done    chan struct{}
	asm     *data.Assembler
	now     func() time.Time
	log     *logger.Entry
	metrics *metrics.Pipeline
	dropped atomic.Uint64
	closer  func() error
	closed  bool
}

func OpenPostgres(cfg env.PostgresConfig, log *logger.Entry, m *metrics.Pipeline) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sink: open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable(cfg.Table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: create table %v: %w", cfg.Table, err)
	}
	log.Infof("Postgres sink into table %v", cfg.Table)
	s := newPostgres(db, cfg.Table, cfg.Queue, log, m)
	s.closer = db.Close
	return s, nil
}

func createTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + pq.QuoteIdentifier(table) + ` (
		id        BIGSERIAL PRIMARY KEY,
		seq       INTEGER NOT NULL,
		direction TEXT NOT NULL,
		code      SMALLINT NOT NULL,
		x         DOUBLE PRECISION NOT NULL,
		y         DOUBLE PRECISION NOT NULL,
		z         DOUBLE PRECISION NOT NULL,
		drained   TIMESTAMPTZ NOT NULL
	)`
}

func insertRow(table string) string {
	return `INSERT INTO ` + pq.QuoteIdentifier(table) +
		` (seq, direction, code, x, y, z, drained) VALUES ($1, $2, $3, $4, $5, $6, $7)`
}

func newPostgres(db execer, table string, queue int, log *logger.Entry, m *metrics.Pipeline) *Postgres {
	s := &Postgres{
		db:      db,
		insert:  insertRow(table),
		queue:   make(chan row, queue),
		done:    make(chan struct{}),
		now:     time.Now,
		log:     log,
		metrics: m,
	}
	s.asm = data.NewAssembler(s.enqueue)
	go s.run()
	return s
}

func (s *Postgres) enqueue(r data.Record) error {
	select {
	case s.queue <- row{r: r, t: s.now()}:
	default:
		s.dropped.Add(1)
		s.metrics.SinkError()
	}
	return nil
}

func (s *Postgres) run() {
	defer close(s.done)
	for w := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), postgresTimeout)
		_, err := s.db.ExecContext(ctx, s.insert,
			int(w.r.Seq), w.r.Direction.String(), int(w.r.Direction.Code()),
			w.r.Unit.X, w.r.Unit.Y, w.r.Unit.Z, w.t)
		cancel()
		if err != nil {
			s.log.WithError(err).Errorf("Failed to insert record %d", w.r.Seq)
			s.metrics.SinkError()
		}
	}
}

// Write reframes p into records and queues them for insert.
func (s *Postgres) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("sink: postgres sink closed")
	}
	return s.asm.Write(p)
}

// Dropped counts records lost to a full queue.
func (s *Postgres) Dropped() uint64 {
	return s.dropped.Load()
}

// Close waits for queued inserts to finish.
func (s *Postgres) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.queue)
	<-s.done
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
