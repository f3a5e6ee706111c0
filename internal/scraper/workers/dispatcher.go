package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"scrapinghorse/internal/config"
	"scrapinghorse/internal/logging"
	"scrapinghorse/internal/logging/types"
	"scrapinghorse/internal/scraper"
	"scrapinghorse/pkg/models"
)

// Dispatcher runs one search job end to end: it borrows a worker, drives
// the extraction under a single deadline and decides whether the worker
// survives the job.
type Dispatcher struct {
	config *config.Config
	pool   *Pool
	logger types.Logger

	statsMu             sync.Mutex
	jobsProcessed       int64
	jobsSuccessful      int64
	jobsFailed          int64
	totalProcessingTime time.Duration
}

// DispatcherStats is a snapshot of job counters.
type DispatcherStats struct {
	JobsProcessed         int64         `json:"jobs_processed"`
	JobsSuccessful        int64         `json:"jobs_successful"`
	JobsFailed            int64         `json:"jobs_failed"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
}

// NewDispatcher creates a dispatcher over the given pool.
func NewDispatcher(cfg *config.Config, pool *Pool) *Dispatcher {
	return &Dispatcher{
		config: cfg,
		pool:   pool,
		logger: logging.GetGlobalLogger().WithField("component", "dispatcher"),
	}
}

// Submit runs one query. maxWait bounds the whole job, waiting for a worker
// included; zero means the configured default. The budget is capped by the
// hard timeout regardless of what the caller asks for.
func (d *Dispatcher) Submit(ctx context.Context, query string, maxWait time.Duration) (*models.SearchResult, error) {
	budget := maxWait
	if budget <= 0 {
		budget = d.config.Workers.DefaultMaxWait
	}
	if budget > d.config.Workers.HardTimeout {
		budget = d.config.Workers.HardTimeout
	}

	jobCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	startTime := time.Now()

	worker, err := d.pool.Acquire(jobCtx)
	if err != nil {
		d.recordJob(startTime, false)
		d.logger.Warn("No worker available for job", map[string]interface{}{
			"query":  query,
			"budget": budget.String(),
			"error":  err.Error(),
		})
		return nil, err
	}

	d.logger.Debug("Job assigned", map[string]interface{}{
		"worker_id": worker.ID,
		"query":     query,
	})

	result, runErr := worker.Run(jobCtx, query)

	// A clean run or a content-level extraction failure leaves the browser
	// session intact. A timeout means the render pipeline never settled and
	// the session state is unknown, so the worker gets recycled like any
	// other failure.
	healthy := runErr == nil || errors.Is(runErr, scraper.ErrExtractionFailure)
	d.pool.Release(worker, healthy)

	d.recordJob(startTime, runErr == nil)

	if runErr != nil {
		d.logger.Warn("Job failed", map[string]interface{}{
			"worker_id": worker.ID,
			"query":     query,
			"duration":  time.Since(startTime).String(),
			"error":     runErr.Error(),
		})
		return nil, runErr
	}

	d.logger.Info("Job completed", map[string]interface{}{
		"worker_id":   worker.ID,
		"query":       query,
		"duration":    time.Since(startTime).String(),
		"references":  len(result.References),
		"text_blocks": len(result.TextBlocks),
	})
	return result, nil
}

// Stats returns a snapshot of job counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	stats := DispatcherStats{
		JobsProcessed:  d.jobsProcessed,
		JobsSuccessful: d.jobsSuccessful,
		JobsFailed:     d.jobsFailed,
	}
	if d.jobsProcessed > 0 {
		stats.AverageProcessingTime = d.totalProcessingTime / time.Duration(d.jobsProcessed)
	}
	return stats
}

func (d *Dispatcher) recordJob(startTime time.Time, success bool) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.jobsProcessed++
	if success {
		d.jobsSuccessful++
	} else {
		d.jobsFailed++
	}
	d.totalProcessingTime += time.Since(startTime)
}
