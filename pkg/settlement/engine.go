package settlement

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/internal/metrics"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

// EngineConfig controls the background loops.
type EngineConfig struct {
	// SweepInterval drives the stuck-transfer escalation sweep and the status gauges.
	SweepInterval time.Duration `default:"1m"`
	// SettleInterval is how often EXECUTING transfers are picked up for confirmation.
	SettleInterval time.Duration `default:"5s"`
	// AutoSettle watches confirmations of EXECUTING transfers. When off, completion
	// is only reported through Complete.
	AutoSettle  bool
	MaxWatchers int `default:"16"`
}

// Transfers is the part of the state machine the engine drives.
type Transfers interface {
	List(status transfer.Status) []*transfer.Transfer
	Settle(ctx context.Context, transferID string) (*transfer.Transfer, error)
	Sweep(ctx context.Context) int
	Summary() transfer.Summary
}

// IdleSweeper drops idle rate-limit windows.
type IdleSweeper interface {
	Sweep() int
}

// Engine runs the confirmation watcher and the escalation sweep.
type Engine struct {
	cfg       EngineConfig
	transfers Transfers
	limiter   IdleSweeper
	logger    *zap.Logger

	mu       sync.Mutex
	watching map[string]struct{}
	slots    chan struct{}

	ready    atomic.Bool
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates an engine. limiter may be nil.
func NewEngine(cfg EngineConfig, transfers Transfers, limiter IdleSweeper, logger *zap.Logger) (*Engine, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("engine config defaults: %w", err)
	}
	if cfg.SweepInterval <= 0 || cfg.SettleInterval <= 0 || cfg.MaxWatchers <= 0 {
		return nil, fmt.Errorf("engine intervals and watcher limit must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		transfers: transfers,
		limiter:   limiter,
		logger:    logger,
		watching:  make(map[string]struct{}),
		slots:     make(chan struct{}, cfg.MaxWatchers),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the loops. They run until ctx ends or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting settlement engine",
		zap.Duration("sweep_interval", e.cfg.SweepInterval),
		zap.Bool("auto_settle", e.cfg.AutoSettle))

	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go e.sweepLoop(ctx)

	if e.cfg.AutoSettle {
		e.wg.Add(1)
		go e.settleLoop(ctx)
	}

	e.ready.Store(true)
	e.logger.Info("Settlement engine started")
	return nil
}

// Stop stops the loops and waits for in-flight confirmation watchers. Only the
// first call has an effect.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping settlement engine")
		e.ready.Store(false)
		close(e.stopCh)
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.logger.Info("Settlement engine stopped")
	})
}

// IsReady reports whether the engine is running.
func (e *Engine) IsReady() bool {
	return e.ready.Load()
}

func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.runSweep(ctx)
		}
	}
}

// runSweep escalates overdue transfers, refreshes the status gauges and drops idle
// rate-limit windows.
func (e *Engine) runSweep(ctx context.Context) {
	if n := e.transfers.Sweep(ctx); n > 0 {
		e.logger.Warn("Escalated stuck transfers", zap.Int("count", n))
	}

	summary := e.transfers.Summary()
	for status, count := range summary.ByStatus {
		metrics.TransfersByStatus.WithLabelValues(status).Set(float64(count))
	}

	if e.limiter != nil {
		if n := e.limiter.Sweep(); n > 0 {
			e.logger.Debug("Dropped idle rate limit windows", zap.Int("count", n))
		}
	}
}

func (e *Engine) settleLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SettleInterval)
	defer ticker.Stop()

	e.watchExecuting(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.watchExecuting(ctx)
		}
	}
}

// watchExecuting starts a watcher for every EXECUTING transfer not already watched.
// Escalated transfers are left to manual resolution.
func (e *Engine) watchExecuting(ctx context.Context) {
	for _, t := range e.transfers.List(transfer.StatusExecuting) {
		if t.Escalated || !e.claim(t.ID) {
			continue
		}
		select {
		case e.slots <- struct{}{}:
		default:
			// all watchers busy, pick it up on a later tick
			e.unclaim(t.ID)
			return
		}

		e.wg.Add(1)
		go func(id string) {
			defer e.wg.Done()
			defer func() { <-e.slots }()
			defer e.unclaim(id)
			e.settle(ctx, id)
		}(t.ID)
	}
}

func (e *Engine) settle(ctx context.Context, transferID string) {
	t, err := e.transfers.Settle(ctx, transferID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn("Settlement watch ended without outcome",
			zap.String("transfer_id", transferID),
			zap.Error(err))
		return
	}
	e.logger.Info("Transfer settled",
		zap.String("transfer_id", transferID),
		zap.Stringer("status", t.Status))
}

func (e *Engine) claim(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.watching[id]; ok {
		return false
	}
	e.watching[id] = struct{}{}
	return true
}

func (e *Engine) unclaim(id string) {
	e.mu.Lock()
	delete(e.watching, id)
	e.mu.Unlock()
}
