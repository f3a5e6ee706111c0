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
	"scrapinghorse/pkg/models"
)

// PoolManager ties the pool and dispatcher together and owns their
// lifecycle.
type PoolManager struct {
	config     *config.Config
	pool       *Pool
	dispatcher *Dispatcher
	logger     types.Logger

	mu          sync.RWMutex
	initialized bool
}

// PoolManagerStats represents comprehensive statistics for the pool manager
type PoolManagerStats struct {
	Initialized     bool            `json:"initialized"`
	WorkerCount     int             `json:"worker_count"`
	IdleWorkers     int             `json:"idle_workers"`
	WorkersReplaced int64           `json:"workers_replaced"`
	WorkersRecycled int64           `json:"workers_recycled"`
	FailedStartups  int64           `json:"failed_startups"`
	Jobs            DispatcherStats `json:"jobs"`
	Workers         []WorkerInfo    `json:"workers"`
}

// NewPoolManager creates a new worker pool manager
func NewPoolManager(cfg *config.Config, factory scraper.EngineFactory) *PoolManager {
	return &PoolManager{
		config: cfg,
		pool:   NewPool(cfg, factory),
		logger: logging.GetGlobalLogger().WithField("component", "pool_manager"),
	}
}

// Initialize starts the pool and wires the dispatcher.
func (pm *PoolManager) Initialize(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.initialized {
		return fmt.Errorf("worker pool already initialized")
	}

	pm.logger.Info("Initializing worker pool")

	if err := pm.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	pm.dispatcher = NewDispatcher(pm.config, pm.pool)

	pm.initialized = true
	pm.logger.Info("Worker pool initialized successfully")
	return nil
}

// Shutdown gracefully shuts down the worker pool
func (pm *PoolManager) Shutdown(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.initialized {
		return nil
	}

	pm.logger.Info("Shutting down worker pool")

	if err := pm.pool.Shutdown(ctx); err != nil {
		pm.logger.Error("Error stopping worker pool", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	pm.initialized = false
	pm.logger.Info("Worker pool shutdown complete")
	return nil
}

// Submit runs one search job through the dispatcher.
func (pm *PoolManager) Submit(ctx context.Context, query string, maxWait time.Duration) (*models.SearchResult, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.initialized || pm.dispatcher == nil {
		return nil, fmt.Errorf("worker pool not initialized")
	}

	return pm.dispatcher.Submit(ctx, query, maxWait)
}

// GetStats returns worker pool statistics
func (pm *PoolManager) GetStats() (*PoolManagerStats, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.initialized || pm.dispatcher == nil {
		return nil, fmt.Errorf("worker pool not initialized")
	}

	return &PoolManagerStats{
		Initialized:     pm.initialized,
		WorkerCount:     pm.pool.WorkerCount(),
		IdleWorkers:     pm.pool.IdleCount(),
		WorkersReplaced: pm.pool.WorkersReplaced(),
		WorkersRecycled: pm.pool.WorkersRecycled(),
		FailedStartups:  pm.pool.FailedStartups(),
		Jobs:            pm.dispatcher.Stats(),
		Workers:         pm.pool.Snapshot(),
	}, nil
}

// IsHealthy returns true if the worker pool is healthy
func (pm *PoolManager) IsHealthy() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.initialized && pm.pool.IsHealthy()
}
