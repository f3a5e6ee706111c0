package scraper

import (
	"context"
	"errors"

	"scrapinghorse/internal/window"
	"scrapinghorse/pkg/models"
)

// Typed extraction errors. Engines return these so the dispatcher can map
// outcomes to caller-facing errors and decide whether the worker survives.
var (
	// ErrExtractionTimeout means the deadline passed before any usable
	// content appeared on the page.
	ErrExtractionTimeout = errors.New("extraction timed out before results appeared")

	// ErrExtractionFailure means the page rendered but no structured
	// content could be derived from it.
	ErrExtractionFailure = errors.New("no structured content could be extracted")
)

// Engine drives one browser session pinned to a window slot.
type Engine interface {
	// Start launches the browser, applies the slot geometry and brings the
	// session to the ready state on the search page.
	Start(ctx context.Context) error

	// Run executes one query end to end and returns the extracted result.
	// Run honors ctx cancellation; when the deadline passes with partial
	// text content already extracted, it returns that partial result with
	// no error.
	Run(ctx context.Context, query string) (*models.SearchResult, error)

	// Reset returns the session to the ready state so the next Run starts
	// from a clean page.
	Reset(ctx context.Context) error

	// Stop tears the browser session down. Safe to call more than once.
	Stop() error

	// IsHealthy reports whether the browser session is still usable.
	IsHealthy() bool
}

// EngineFactory builds one engine bound to a window slot. The pool calls it
// for every worker it starts, including replacements.
type EngineFactory func(slot window.Slot) Engine
