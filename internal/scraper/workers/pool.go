package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scrapinghorse/internal/config"
	"scrapinghorse/internal/logging"
	"scrapinghorse/internal/logging/types"
	"scrapinghorse/internal/scraper"
	"scrapinghorse/internal/window"
)

// Pool owns a fixed-size set of browser workers. Idle workers sit in a
// channel; dead workers are replaced asynchronously so capacity recovers
// without blocking any request.
type Pool struct {
	config    *config.Config
	factory   scraper.EngineFactory
	allocator *window.Allocator
	logger    types.Logger

	idle    chan *Worker
	closeCh chan struct{}

	mu      sync.Mutex
	workers map[int]*Worker
	nextID  int
	closed  bool

	replaceWG sync.WaitGroup

	statsMu          sync.Mutex
	workersReplaced  int64
	startupsFailed   int64
	recycledUnhealth int64
}

// WorkerInfo is a point-in-time view of one worker for introspection.
type WorkerInfo struct {
	ID       int           `json:"id"`
	State    string        `json:"state"`
	Slot     int           `json:"slot"`
	Position string        `json:"position"`
	JobsDone int64         `json:"jobs_done"`
	Uptime   time.Duration `json:"uptime"`
}

// NewPool creates a pool sized from configuration. Workers are not started
// until Start.
func NewPool(cfg *config.Config, factory scraper.EngineFactory) *Pool {
	size := cfg.Workers.PoolSize
	return &Pool{
		config:    cfg,
		factory:   factory,
		allocator: window.NewAllocator(size, cfg),
		logger:    logging.GetGlobalLogger().WithField("component", "worker_pool"),
		idle:      make(chan *Worker, size),
		closeCh:   make(chan struct{}),
		workers:   make(map[int]*Worker),
	}
}

// Start launches all workers concurrently and waits for them. Startup is all
// or nothing: if any worker fails to come up, the ones that did are torn
// down and Start returns an error. Reduced-capacity operation is only
// accepted later in the pool's life, never at startup.
func (p *Pool) Start(ctx context.Context) error {
	size := p.config.Workers.PoolSize
	p.logger.Info("Starting worker pool", map[string]interface{}{
		"pool_size": size,
	})

	var wg sync.WaitGroup
	started := make(chan *Worker, size)
	failed := 0
	var failedMu sync.Mutex

	for i := 0; i < size; i++ {
		slot, ok := p.allocator.Lease()
		if !ok {
			// Allocator is sized to the pool, this cannot happen
			break
		}

		wg.Add(1)
		go func(slot window.Slot) {
			defer wg.Done()

			worker, err := p.startWorker(ctx, slot)
			if err != nil {
				p.logger.Error("Worker failed to start", map[string]interface{}{
					"slot":  slot.Index,
					"error": err.Error(),
				})
				p.allocator.Release(slot)
				failedMu.Lock()
				failed++
				failedMu.Unlock()
				return
			}
			started <- worker
		}(slot)
	}

	wg.Wait()
	close(started)

	if failed > 0 {
		for worker := range started {
			worker.stop()
			p.allocator.Release(worker.Slot)
		}
		return fmt.Errorf("%w: %d of %d workers failed to start", ErrPoolStartup, failed, size)
	}

	for worker := range started {
		p.addWorker(worker)
		p.idle <- worker
	}

	p.logger.Info("Worker pool started", map[string]interface{}{
		"workers": p.WorkerCount(),
	})
	return nil
}

// Acquire hands out an idle worker, blocking until one frees up, the
// caller's context expires or the pool shuts down. The returned worker is
// Busy and must be given back via Release.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	select {
	case worker := <-p.idle:
		// The select can win the idle case even after closeCh is closed;
		// never hand out a worker that Shutdown is tearing down.
		if p.isClosed() {
			return nil, ErrPoolClosed
		}
		worker.setState(WorkerBusy)
		return worker, nil
	case <-ctx.Done():
		return nil, ErrWorkerUnavailable
	case <-p.closeCh:
		return nil, ErrPoolClosed
	}
}

// Release gives a worker back to the pool. A healthy worker is reset off
// the request path and re-enters the idle set only after a clean reset;
// anything else is recycled and replaced.
func (p *Pool) Release(worker *Worker, healthy bool) {
	if p.isClosed() {
		worker.stop()
		p.allocator.Release(worker.Slot)
		return
	}

	if !healthy || !worker.engine.IsHealthy() {
		p.statsMu.Lock()
		p.recycledUnhealth++
		p.statsMu.Unlock()
		p.recycle(worker)
		return
	}

	go func() {
		resetCtx, cancel := context.WithTimeout(context.Background(), p.config.Workers.StartupTimeout)
		defer cancel()

		if err := worker.engine.Reset(resetCtx); err != nil {
			p.logger.Warn("Worker reset failed, recycling", map[string]interface{}{
				"worker_id": worker.ID,
				"error":     err.Error(),
			})
			p.recycle(worker)
			return
		}

		worker.setState(WorkerIdle)
		select {
		case p.idle <- worker:
		case <-p.closeCh:
			worker.stop()
			p.allocator.Release(worker.Slot)
		}
	}()
}

// recycle retires a worker and schedules its replacement. The slot is freed
// only after the old browser is gone so the replacement never shares it.
func (p *Pool) recycle(worker *Worker) {
	p.removeWorker(worker.ID)

	p.logger.Info("Recycling worker", map[string]interface{}{
		"worker_id": worker.ID,
		"slot":      worker.Slot.Index,
		"jobs_done": worker.JobsDone(),
	})

	p.replaceWG.Add(1)
	go func() {
		defer p.replaceWG.Done()

		if err := worker.stop(); err != nil {
			p.logger.Warn("Worker teardown error", map[string]interface{}{
				"worker_id": worker.ID,
				"error":     err.Error(),
			})
		}
		p.allocator.Release(worker.Slot)
		p.replaceLoop()
	}()
}

// replaceLoop keeps trying to bring up one replacement worker with capped
// exponential backoff between attempts, until it succeeds or the pool closes.
func (p *Pool) replaceLoop() {
	delay := p.config.Workers.ReplaceBackoff

	for {
		if p.isClosed() {
			return
		}

		slot, ok := p.allocator.Lease()
		if !ok {
			// Every slot is held by a live worker, nothing to replace
			return
		}

		startCtx, cancel := context.WithTimeout(context.Background(), p.config.Workers.StartupTimeout)
		worker, err := p.startWorker(startCtx, slot)
		cancel()

		if err == nil {
			p.addWorker(worker)
			p.statsMu.Lock()
			p.workersReplaced++
			p.statsMu.Unlock()

			select {
			case p.idle <- worker:
				p.logger.Info("Replacement worker online", map[string]interface{}{
					"worker_id": worker.ID,
					"slot":      slot.Index,
				})
			case <-p.closeCh:
				worker.stop()
				p.allocator.Release(slot)
			}
			return
		}

		p.statsMu.Lock()
		p.startupsFailed++
		p.statsMu.Unlock()
		p.allocator.Release(slot)

		p.logger.Error("Replacement worker failed to start", map[string]interface{}{
			"error":      err.Error(),
			"retry_in":   delay.String(),
			"slot_index": slot.Index,
		})

		select {
		case <-time.After(delay):
		case <-p.closeCh:
			return
		}

		delay *= 2
		if delay > p.config.Workers.MaxReplaceDelay {
			delay = p.config.Workers.MaxReplaceDelay
		}
	}
}

func (p *Pool) startWorker(ctx context.Context, slot window.Slot) (*Worker, error) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	worker := newWorker(id, slot, p.factory(slot))
	if err := worker.start(ctx); err != nil {
		return nil, err
	}
	return worker, nil
}

// Shutdown drains the pool: it stops handing out workers immediately, waits
// up to the grace period for busy workers to finish, then tears everything
// down.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.closeCh)
	p.logger.Info("Worker pool shutting down")

	grace := p.config.Workers.ShutdownGrace
	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

drain:
	for time.Now().Before(deadline) {
		if p.busyCount() == 0 {
			break drain
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			break drain
		}
	}

	// Tear down whatever is left, busy or not
	p.mu.Lock()
	remaining := make([]*Worker, 0, len(p.workers))
	for _, worker := range p.workers {
		remaining = append(remaining, worker)
	}
	p.workers = make(map[int]*Worker)
	p.mu.Unlock()

	for _, worker := range remaining {
		worker.stop()
		p.allocator.Release(worker.Slot)
	}

	p.replaceWG.Wait()
	p.logger.Info("Worker pool shut down")
	return nil
}

// Snapshot returns a point-in-time view of every live worker.
func (p *Pool) Snapshot() []WorkerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]WorkerInfo, 0, len(p.workers))
	for _, worker := range p.workers {
		infos = append(infos, WorkerInfo{
			ID:       worker.ID,
			State:    worker.State().String(),
			Slot:     worker.Slot.Index,
			Position: worker.Slot.PositionFlag(),
			JobsDone: worker.JobsDone(),
			Uptime:   worker.Uptime(),
		})
	}
	return infos
}

// WorkerCount returns the number of live workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IdleCount returns the number of workers ready to take a job.
func (p *Pool) IdleCount() int {
	return len(p.idle)
}

// WorkersReplaced returns how many replacement workers came online.
func (p *Pool) WorkersReplaced() int64 {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.workersReplaced
}

// WorkersRecycled returns how many workers were retired as unhealthy.
func (p *Pool) WorkersRecycled() int64 {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.recycledUnhealth
}

// FailedStartups returns how many worker launch attempts failed.
func (p *Pool) FailedStartups() int64 {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.startupsFailed
}

// IsHealthy reports whether the pool can serve jobs.
func (p *Pool) IsHealthy() bool {
	return !p.isClosed() && p.WorkerCount() > 0
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) busyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, worker := range p.workers {
		if worker.State() == WorkerBusy {
			n++
		}
	}
	return n
}

func (p *Pool) addWorker(worker *Worker) {
	p.mu.Lock()
	p.workers[worker.ID] = worker
	p.mu.Unlock()
}

func (p *Pool) removeWorker(id int) {
	p.mu.Lock()
	delete(p.workers, id)
	p.mu.Unlock()
}
