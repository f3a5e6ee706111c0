package workers

import (
	"context"
	"sync"
	"time"

	"scrapinghorse/internal/scraper"
	"scrapinghorse/internal/window"
	"scrapinghorse/pkg/models"
)

// WorkerState is the lifecycle state of a browser worker.
type WorkerState int32

const (
	WorkerStarting WorkerState = iota
	WorkerIdle
	WorkerBusy
	WorkerDead
)

// String returns the string representation of the worker state
func (s WorkerState) String() string {
	switch s {
	case WorkerStarting:
		return "starting"
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Worker is one browser session plus its window slot. A worker handles one
// job at a time; the pool owns all state transitions except Busy work done
// inside Run.
type Worker struct {
	ID     int
	Slot   window.Slot
	engine scraper.Engine

	mu        sync.Mutex
	state     WorkerState
	jobsDone  int64
	startedAt time.Time
}

func newWorker(id int, slot window.Slot, engine scraper.Engine) *Worker {
	return &Worker{
		ID:     id,
		Slot:   slot,
		engine: engine,
		state:  WorkerStarting,
	}
}

// start launches the browser session. Called once by the pool.
func (w *Worker) start(ctx context.Context) error {
	if err := w.engine.Start(ctx); err != nil {
		w.setState(WorkerDead)
		return err
	}
	w.mu.Lock()
	w.state = WorkerIdle
	w.startedAt = time.Now()
	w.mu.Unlock()
	return nil
}

// Run executes one query on the worker's browser session.
func (w *Worker) Run(ctx context.Context, query string) (*models.SearchResult, error) {
	result, err := w.engine.Run(ctx, query)
	if err == nil {
		w.mu.Lock()
		w.jobsDone++
		w.mu.Unlock()
	}
	return result, err
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// JobsDone returns the number of jobs this worker completed.
func (w *Worker) JobsDone() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobsDone
}

// Uptime returns how long the worker has been running.
func (w *Worker) Uptime() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startedAt.IsZero() {
		return 0
	}
	return time.Since(w.startedAt)
}

// stop tears down the browser session.
func (w *Worker) stop() error {
	w.setState(WorkerDead)
	return w.engine.Stop()
}
