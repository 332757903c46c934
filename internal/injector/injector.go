// Package injector runs the generate-and-insert loop: connect with retry,
// then write one random sale per cycle, replacing the session whenever an
// insert fails.
package injector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bit2swaz/salesflood/internal/checkpoint"
	"github.com/bit2swaz/salesflood/internal/metrics"
	"github.com/bit2swaz/salesflood/internal/retry"
	"github.com/bit2swaz/salesflood/internal/sales"
	"github.com/bit2swaz/salesflood/internal/store"
	"github.com/google/uuid"
)

const DefaultInterval = 500 * time.Millisecond

// Session is one open datastore connection.
type Session interface {
	Insert(ctx context.Context, rec sales.Record) error
	Close() error
}

// Dialer opens a new Session.
type Dialer func(ctx context.Context, cfg store.Config) (Session, error)

func DialStore(ctx context.Context, cfg store.Config) (Session, error) {
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type Config struct {
	Store     store.Config
	Generator *sales.Generator
	Retry     retry.Policy
	// Interval is the pause after every cycle, successful or not. Zero means
	// DefaultInterval.
	Interval time.Duration
	// MaxRecords stops the loop after that many committed inserts; 0 runs
	// until the context is cancelled.
	MaxRecords uint64

	Logger     *slog.Logger
	Checkpoint *checkpoint.Store
	Dial       Dialer
	RunID      string
}

type Stats struct {
	RunID           string            `json:"run_id"`
	Connected       bool              `json:"connected"`
	Inserted        uint64            `json:"inserted"`
	Failed          uint64            `json:"failed"`
	Reconnects      uint64            `json:"reconnects"`
	ConnectAttempts uint64            `json:"connect_attempts"`
	LastInsert      time.Time         `json:"last_insert,omitzero"`
	LastProduct     string            `json:"last_product,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	Totals          checkpoint.Totals `json:"totals"`
}

type Injector struct {
	cfg     Config
	logger  *slog.Logger
	session Session

	mu    sync.RWMutex
	stats Stats
	base  checkpoint.Totals
}

func New(cfg Config) (*Injector, error) {
	if cfg.Generator == nil {
		g, err := sales.NewGenerator(sales.GeneratorConfig{})
		if err != nil {
			return nil, err
		}
		cfg.Generator = g
	}
	if cfg.Retry.Delay <= 0 {
		cfg.Retry.Delay = retry.DefaultDelay
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative: %s", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Checkpoint == nil {
		cfg.Checkpoint = checkpoint.NewMemory()
	}
	if cfg.Dial == nil {
		cfg.Dial = DialStore
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	return &Injector{
		cfg:    cfg,
		logger: cfg.Logger.With("run_id", cfg.RunID),
		stats:  Stats{RunID: cfg.RunID},
	}, nil
}

// Run blocks until ctx is cancelled, MaxRecords inserts have committed, or a
// bounded retry policy gives up. Cancellation is a clean stop and returns nil.
func (inj *Injector) Run(ctx context.Context) error {
	base, err := inj.cfg.Checkpoint.Load()
	if err != nil {
		inj.logger.Warn("failed to load checkpoint, counting from zero", "error", err)
		base = checkpoint.Totals{}
	}
	inj.mu.Lock()
	inj.base = base
	inj.stats.Totals = base
	inj.mu.Unlock()

	defer inj.closeSession()

	if err := inj.connect(ctx); err != nil {
		return inj.stopped(err)
	}
	inj.logger.Info("connection established, starting injection",
		"table", inj.cfg.Store.Table,
		"interval", inj.cfg.Interval)

	for {
		if err := inj.cycle(ctx); err != nil {
			return inj.stopped(err)
		}

		if inj.cfg.MaxRecords > 0 && inj.Stats().Inserted >= inj.cfg.MaxRecords {
			inj.logger.Info("record limit reached", "inserted", inj.cfg.MaxRecords)
			return nil
		}

		if err := retry.Sleep(ctx, inj.cfg.Interval); err != nil {
			return inj.stopped(err)
		}
	}
}

func (inj *Injector) stopped(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		inj.logger.Info("injection stopped", "inserted", inj.Stats().Inserted)
		return nil
	}
	return err
}

// cycle generates one record and tries to commit it. A failed record is
// dropped; only reconnection errors are returned.
func (inj *Injector) cycle(ctx context.Context) error {
	rec := inj.cfg.Generator.Next()

	err := inj.session.Insert(ctx, rec)
	if err == nil {
		inj.recordInsert(rec)
		inj.logger.Info("INSERT", "sold_at", rec.SoldAt, "product", rec.Product)
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	inj.recordFailure(err)
	inj.logger.Error("insert failed, reconnecting",
		"product", rec.Product,
		"category", rec.Category,
		"error", err)

	inj.closeSession()
	if err := inj.connect(ctx); err != nil {
		return err
	}

	inj.mu.Lock()
	inj.stats.Reconnects++
	inj.mu.Unlock()
	metrics.IncReconnect()
	inj.saveCheckpoint()

	inj.logger.Info("reconnected, resuming injection")
	return nil
}

func (inj *Injector) connect(ctx context.Context) error {
	return retry.Do(ctx, inj.cfg.Retry, func(ctx context.Context) error {
		s, err := inj.cfg.Dial(ctx, inj.cfg.Store)

		inj.mu.Lock()
		inj.stats.ConnectAttempts++
		if err == nil {
			inj.stats.Connected = true
		}
		inj.mu.Unlock()
		metrics.IncConnectAttempt(err == nil)

		if err != nil {
			return err
		}
		metrics.SetConnected(true)
		inj.session = s
		return nil
	}, func(attempt int, err error) {
		inj.mu.Lock()
		inj.stats.LastError = err.Error()
		inj.mu.Unlock()
		inj.logger.Warn("connection failed, retrying",
			"attempt", attempt,
			"delay", inj.cfg.Retry.Delay,
			"error", err)
	})
}

func (inj *Injector) closeSession() {
	if inj.session == nil {
		return
	}
	if err := inj.session.Close(); err != nil {
		inj.logger.Debug("error closing session", "error", err)
	}
	inj.session = nil

	inj.mu.Lock()
	inj.stats.Connected = false
	inj.mu.Unlock()
	metrics.SetConnected(false)
}

func (inj *Injector) recordInsert(rec sales.Record) {
	inj.mu.Lock()
	inj.stats.Inserted++
	inj.stats.LastInsert = rec.SoldAt
	inj.stats.LastProduct = rec.Product
	inj.mu.Unlock()

	metrics.RecordInsert(rec.Category, rec.Total(), float64(rec.SoldAt.UnixNano())/1e9)
	inj.saveCheckpoint()
}

func (inj *Injector) recordFailure(err error) {
	inj.mu.Lock()
	inj.stats.Failed++
	inj.stats.LastError = err.Error()
	inj.mu.Unlock()

	metrics.IncInsertFailure()
	inj.saveCheckpoint()
}

func (inj *Injector) saveCheckpoint() {
	inj.mu.Lock()
	inj.stats.Totals = checkpoint.Totals{
		Inserted:   inj.base.Inserted + inj.stats.Inserted,
		Failed:     inj.base.Failed + inj.stats.Failed,
		Reconnects: inj.base.Reconnects + inj.stats.Reconnects,
	}
	totals := inj.stats.Totals
	inj.mu.Unlock()

	if err := inj.cfg.Checkpoint.Save(totals); err != nil {
		inj.logger.Warn("failed to save checkpoint", "error", err)
	}
}

// Stats is safe to call while Run is in progress.
func (inj *Injector) Stats() Stats {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	return inj.stats
}

func (inj *Injector) Connected() bool {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	return inj.stats.Connected
}
