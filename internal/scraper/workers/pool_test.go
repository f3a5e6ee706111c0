package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapinghorse/internal/config"
	"scrapinghorse/internal/scraper"
	"scrapinghorse/internal/window"
	"scrapinghorse/pkg/models"
)

// fakeEngine is an in-memory stand-in for a browser session.
type fakeEngine struct {
	slot window.Slot

	mu       sync.Mutex
	startErr error
	runFunc  func(ctx context.Context, query string) (*models.SearchResult, error)
	resetErr error
	healthy  bool
	starts   int
	resets   int
	stops    int
}

func (f *fakeEngine) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.healthy = true
	return nil
}

func (f *fakeEngine) Run(ctx context.Context, query string) (*models.SearchResult, error) {
	f.mu.Lock()
	runFunc := f.runFunc
	f.mu.Unlock()

	if runFunc != nil {
		return runFunc(ctx, query)
	}
	return &models.SearchResult{
		References: []models.Reference{{Title: "result", Link: "https://example.com", Index: 1}},
	}, nil
}

func (f *fakeEngine) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.healthy = false
	return nil
}

func (f *fakeEngine) IsHealthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeEngine) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeEngine) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// fakeFactory records every engine it builds.
type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	prepare func(e *fakeEngine)
}

func (ff *fakeFactory) factory(slot window.Slot) scraper.Engine {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	engine := &fakeEngine{slot: slot}
	if ff.prepare != nil {
		ff.prepare(engine)
	}
	ff.engines = append(ff.engines, engine)
	return engine
}

func (ff *fakeFactory) engine(i int) *fakeEngine {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.engines[i]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.engines)
}

func poolConfig(t *testing.T, size int) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Workers.PoolSize = size
	cfg.Workers.DefaultMaxWait = time.Second
	cfg.Workers.HardTimeout = 2 * time.Second
	cfg.Workers.StartupTimeout = time.Second
	cfg.Workers.ShutdownGrace = 500 * time.Millisecond
	cfg.Workers.ReplaceBackoff = 5 * time.Millisecond
	cfg.Workers.MaxReplaceDelay = 20 * time.Millisecond
	return cfg
}

func startPool(t *testing.T, size int, prepare func(e *fakeEngine)) (*Pool, *fakeFactory) {
	t.Helper()
	ff := &fakeFactory{prepare: prepare}
	pool := NewPool(poolConfig(t, size), ff.factory)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() {
		pool.Shutdown(context.Background())
	})
	return pool, ff
}

func TestPoolStartLaunchesAllWorkers(t *testing.T) {
	pool, ff := startPool(t, 3, nil)

	assert.Equal(t, 3, pool.WorkerCount())
	assert.Equal(t, 3, pool.IdleCount())
	assert.Equal(t, 3, ff.count())

	// Every engine got its own slot
	seen := make(map[int]bool)
	for i := 0; i < 3; i++ {
		slot := ff.engine(i).slot
		assert.False(t, seen[slot.Index], "slot %d assigned twice", slot.Index)
		seen[slot.Index] = true
	}
}

func TestPoolStartFailsWhenNoWorkerComesUp(t *testing.T) {
	ff := &fakeFactory{prepare: func(e *fakeEngine) {
		e.startErr = errors.New("browser refused to launch")
	}}
	pool := NewPool(poolConfig(t, 2), ff.factory)

	err := pool.Start(context.Background())
	assert.ErrorIs(t, err, ErrPoolStartup)
}

func TestPoolStartFailsWhenAnyWorkerFails(t *testing.T) {
	var buildCount int
	var buildMu sync.Mutex
	ff := &fakeFactory{prepare: func(e *fakeEngine) {
		buildMu.Lock()
		buildCount++
		if buildCount == 2 {
			e.startErr = errors.New("launch failed")
		}
		buildMu.Unlock()
	}}
	pool := NewPool(poolConfig(t, 3), ff.factory)

	err := pool.Start(context.Background())
	require.ErrorIs(t, err, ErrPoolStartup)
	assert.Equal(t, 0, pool.WorkerCount())

	// The workers that did come up were torn down again
	for i := 0; i < ff.count(); i++ {
		engine := ff.engine(i)
		engine.mu.Lock()
		failedLaunch := engine.startErr != nil
		engine.mu.Unlock()
		if !failedLaunch {
			assert.GreaterOrEqual(t, engine.stopCount(), 1, "engine %d should be stopped", i)
		}
	}
}

func TestAcquireExhaustionTimesOut(t *testing.T) {
	pool, _ := startPool(t, 2, nil)

	w1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	w2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, w1.ID, w2.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrWorkerUnavailable)

	pool.Release(w1, true)
	pool.Release(w2, true)
}

func TestReleaseHealthyResetsBeforeIdle(t *testing.T) {
	pool, ff := startPool(t, 1, nil)

	worker, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, pool.IdleCount())

	pool.Release(worker, true)

	require.Eventually(t, func() bool {
		return pool.IdleCount() == 1
	}, time.Second, 5*time.Millisecond, "worker should return to idle after reset")

	assert.Equal(t, 1, ff.engine(0).resetCount())
	assert.Equal(t, WorkerIdle, worker.State())
}

func TestReleaseUnhealthyReplacesWorker(t *testing.T) {
	pool, ff := startPool(t, 1, nil)

	worker, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	pool.Release(worker, false)

	require.Eventually(t, func() bool {
		return pool.WorkerCount() == 1 && pool.IdleCount() == 1
	}, time.Second, 5*time.Millisecond, "replacement should come online")

	assert.Equal(t, 1, ff.engine(0).stopCount(), "dead worker's browser should be stopped")
	assert.Equal(t, 2, ff.count(), "a fresh engine should have been built")
	assert.Equal(t, int64(1), pool.WorkersReplaced())

	// The replacement inherits the only slot
	assert.Equal(t, ff.engine(0).slot.Index, ff.engine(1).slot.Index)
}

func TestResetFailureRecyclesWorker(t *testing.T) {
	pool, ff := startPool(t, 1, nil)

	worker, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ff.engine(0).mu.Lock()
	ff.engine(0).resetErr = errors.New("navigation failed")
	ff.engine(0).mu.Unlock()

	pool.Release(worker, true)

	require.Eventually(t, func() bool {
		return ff.count() == 2 && pool.IdleCount() == 1
	}, time.Second, 5*time.Millisecond, "failed reset should trigger replacement")

	assert.Equal(t, 1, ff.engine(0).stopCount())
}

func TestReplacementRetriesWithBackoff(t *testing.T) {
	var buildCount int
	var buildMu sync.Mutex

	pool, ff := startPool(t, 1, func(e *fakeEngine) {
		buildMu.Lock()
		buildCount++
		// First engine starts fine; the next two replacements fail
		if buildCount == 2 || buildCount == 3 {
			e.startErr = errors.New("launch failed")
		}
		buildMu.Unlock()
	})

	worker, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(worker, false)

	require.Eventually(t, func() bool {
		return pool.WorkerCount() == 1 && pool.IdleCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "replacement should survive failed attempts")

	assert.Equal(t, 4, ff.count(), "two failed attempts before the successful one")
}

func TestAcquireAfterShutdownFails(t *testing.T) {
	pool, _ := startPool(t, 1, nil)
	require.NoError(t, pool.Shutdown(context.Background()))

	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestAcquireDuringShutdownNeverHandsOutStoppedWorker(t *testing.T) {
	pool, _ := startPool(t, 2, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			worker, err := pool.Acquire(ctx)
			cancel()
			if err != nil {
				if errors.Is(err, ErrPoolClosed) {
					return
				}
				continue
			}
			assert.NotEqual(t, WorkerDead, worker.State(),
				"a worker handed out by Acquire must not be torn down")
			pool.Release(worker, true)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pool.Shutdown(context.Background()))
	<-done
}

func TestShutdownStopsAllEngines(t *testing.T) {
	ff := &fakeFactory{}
	pool := NewPool(poolConfig(t, 2), ff.factory)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Shutdown(context.Background()))

	for i := 0; i < ff.count(); i++ {
		assert.GreaterOrEqual(t, ff.engine(i).stopCount(), 1, "engine %d not stopped", i)
	}
	assert.False(t, pool.IsHealthy())
}
