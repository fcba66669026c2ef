package settlement

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-settlement/internal/metrics"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
)

type fakeTransfers struct {
	mu        sync.Mutex
	executing []*transfer.Transfer
	settled   map[string]int
	release   chan struct{}
	sweeps    atomic.Int32
	summary   transfer.Summary
}

func newFakeTransfers(ts ...*transfer.Transfer) *fakeTransfers {
	return &fakeTransfers{
		executing: ts,
		settled:   make(map[string]int),
		release:   make(chan struct{}),
		summary:   transfer.Summary{Total: 3, ByStatus: map[string]int{"EXECUTING": 2, "COMPLETED": 1}},
	}
}

func (f *fakeTransfers) List(transfer.Status) []*transfer.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*transfer.Transfer(nil), f.executing...)
}

func (f *fakeTransfers) Settle(ctx context.Context, id string) (*transfer.Transfer, error) {
	f.mu.Lock()
	f.settled[id]++
	f.mu.Unlock()
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &transfer.Transfer{ID: id, Status: transfer.StatusCompleted}, nil
}

func (f *fakeTransfers) Sweep(context.Context) int {
	f.sweeps.Add(1)
	return 1
}

func (f *fakeTransfers) Summary() transfer.Summary {
	return f.summary
}

func (f *fakeTransfers) settleCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled[id]
}

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 0
}

func TestEngine_DefaultsApplied(t *testing.T) {
	e, err := NewEngine(EngineConfig{}, newFakeTransfers(), nil, nil)
	require.NoError(t, err)
	if e.cfg.SweepInterval != time.Minute || e.cfg.SettleInterval != 5*time.Second || e.cfg.MaxWatchers != 16 {
		t.Fatalf("unexpected defaults %+v", e.cfg)
	}
	if e.cfg.AutoSettle {
		t.Fatal("auto settle must be opt-in")
	}
}

func TestEngine_WatchesEachTransferOnce(t *testing.T) {
	fake := newFakeTransfers(
		&transfer.Transfer{ID: "x1", Status: transfer.StatusExecuting},
		&transfer.Transfer{ID: "x2", Status: transfer.StatusExecuting, Escalated: true},
	)
	e, err := NewEngine(EngineConfig{}, fake, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.watchExecuting(ctx)
	e.watchExecuting(ctx)
	require.Eventually(t, func() bool { return fake.settleCalls("x1") == 1 }, time.Second, 5*time.Millisecond)

	// still in flight, a further tick must not start a second watcher
	e.watchExecuting(ctx)
	time.Sleep(20 * time.Millisecond)
	if got := fake.settleCalls("x1"); got != 1 {
		t.Fatalf("expected one watcher for x1, got %d", got)
	}
	if got := fake.settleCalls("x2"); got != 0 {
		t.Fatalf("escalated transfer was watched %d times", got)
	}

	close(fake.release)
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.watching) != 0 {
		t.Fatalf("watchers not released: %v", e.watching)
	}
}

func TestEngine_WatcherLimit(t *testing.T) {
	fake := newFakeTransfers(
		&transfer.Transfer{ID: "a", Status: transfer.StatusExecuting},
		&transfer.Transfer{ID: "b", Status: transfer.StatusExecuting},
		&transfer.Transfer{ID: "c", Status: transfer.StatusExecuting},
	)
	e, err := NewEngine(EngineConfig{MaxWatchers: 2}, fake, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	e.watchExecuting(ctx)

	require.Eventually(t, func() bool {
		return fake.settleCalls("a")+fake.settleCalls("b")+fake.settleCalls("c") == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	e.wg.Wait()
}

func TestEngine_RunSweepUpdatesGauges(t *testing.T) {
	fake := newFakeTransfers()
	limiter := &countingSweeper{}
	e, err := NewEngine(EngineConfig{}, fake, limiter, zap.NewNop())
	require.NoError(t, err)

	e.runSweep(context.Background())

	if fake.sweeps.Load() != 1 || limiter.calls.Load() != 1 {
		t.Fatalf("expected one sweep of each, got transfers=%d limiter=%d", fake.sweeps.Load(), limiter.calls.Load())
	}
	if got := testutil.ToFloat64(metrics.TransfersByStatus.WithLabelValues("EXECUTING")); got != 2 {
		t.Fatalf("expected EXECUTING gauge 2, got %v", got)
	}
}

func TestEngine_StartStop(t *testing.T) {
	fake := newFakeTransfers(&transfer.Transfer{ID: "s1", Status: transfer.StatusExecuting})
	e, err := NewEngine(EngineConfig{
		SweepInterval:  10 * time.Millisecond,
		SettleInterval: 10 * time.Millisecond,
		AutoSettle:     true,
	}, fake, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	if !e.IsReady() {
		t.Fatal("engine not ready after Start")
	}
	require.Eventually(t, func() bool { return fake.sweeps.Load() > 0 && fake.settleCalls("s1") == 1 },
		time.Second, 5*time.Millisecond)

	// Stop cancels the blocked watcher
	e.Stop()
	if e.IsReady() {
		t.Fatal("engine still ready after Stop")
	}

	// the server defers Stop after an explicit shutdown
	require.NotPanics(t, e.Stop)
}
