package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapinghorse/internal/config"
	"scrapinghorse/internal/scraper"
	"scrapinghorse/internal/scraper/workers"
	"scrapinghorse/internal/window"
	"scrapinghorse/pkg/models"
)

type stubEngine struct {
	result *models.SearchResult
	runErr error
}

func (e *stubEngine) Start(ctx context.Context) error { return nil }

func (e *stubEngine) Run(ctx context.Context, query string) (*models.SearchResult, error) {
	if e.runErr != nil {
		return nil, e.runErr
	}
	return e.result, nil
}

func (e *stubEngine) Reset(ctx context.Context) error { return nil }
func (e *stubEngine) Stop() error                     { return nil }
func (e *stubEngine) IsHealthy() bool                 { return true }

func handlerConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	cfg.Server.APIKey = ""
	cfg.Workers.PoolSize = 1
	cfg.Workers.DefaultMaxWait = time.Second
	cfg.Workers.HardTimeout = 2 * time.Second
	cfg.Workers.ShutdownGrace = 500 * time.Millisecond
	cfg.Workers.ReplaceBackoff = 5 * time.Millisecond
	cfg.Workers.MaxReplaceDelay = 20 * time.Millisecond
	return cfg
}

func newPoolManager(t *testing.T, cfg *config.Config, engine scraper.Engine) *workers.PoolManager {
	t.Helper()

	factory := scraper.EngineFactory(func(slot window.Slot) scraper.Engine {
		return engine
	})
	pm := workers.NewPoolManager(cfg, factory)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pm.Initialize(ctx))

	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = pm.Shutdown(shutdownCtx)
	})
	return pm
}

func performSearch(t *testing.T, cfg *config.Config, pm *workers.PoolManager, target string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, SearchHandler(cfg, pm, nil)(c))
	return rec
}

func TestSearchHandlerReturnsStructuredResult(t *testing.T) {
	cfg := handlerConfig(t)
	engine := &stubEngine{
		result: &models.SearchResult{
			TextBlocks: []models.TextBlock{
				{Type: models.BlockTypeParagraph, Snippet: "Paris is the capital of France."},
			},
			References: []models.Reference{
				{Title: "Paris", Link: "https://en.wikipedia.org/wiki/Paris", Source: "en.wikipedia.org", Index: 0},
			},
		},
	}
	pm := newPoolManager(t, cfg, engine)

	rec := performSearch(t, cfg, pm, "/search?query=capital+of+france")
	require.Equal(t, http.StatusOK, rec.Code)

	var response models.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Len(t, response.TextBlocks, 1)
	assert.Len(t, response.References, 1)
	assert.Equal(t, "en.wikipedia.org", response.References[0].Source)
	assert.Equal(t, 1, response.Metadata.CreditsUsed)
}

func TestSearchHandlerMissingQuery(t *testing.T) {
	cfg := handlerConfig(t)
	pm := newPoolManager(t, cfg, &stubEngine{result: &models.SearchResult{}})

	rec := performSearch(t, cfg, pm, "/search")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var response models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "missing_query", response.Error)
}

func TestSearchHandlerInvalidMaxWait(t *testing.T) {
	cfg := handlerConfig(t)
	pm := newPoolManager(t, cfg, &stubEngine{result: &models.SearchResult{}})

	for _, target := range []string{
		"/search?query=test&max_wait_seconds=-5",
		"/search?query=test&max_wait_seconds=0",
		"/search?query=test&max_wait_seconds=oops",
	} {
		rec := performSearch(t, cfg, pm, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)

		var response models.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "invalid_max_wait", response.Error, target)
	}
}

func TestSearchHandlerExtractionTimeout(t *testing.T) {
	cfg := handlerConfig(t)
	pm := newPoolManager(t, cfg, &stubEngine{runErr: scraper.ErrExtractionTimeout})

	rec := performSearch(t, cfg, pm, "/search?query=test")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var response models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "extraction_timeout", response.Error)
}

func TestSearchHandlerExtractionFailure(t *testing.T) {
	cfg := handlerConfig(t)
	pm := newPoolManager(t, cfg, &stubEngine{runErr: scraper.ErrExtractionFailure})

	rec := performSearch(t, cfg, pm, "/search?query=test")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var response models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "extraction_failure", response.Error)
}

func TestSearchHandlerEmptyArraysStayArrays(t *testing.T) {
	cfg := handlerConfig(t)
	pm := newPoolManager(t, cfg, &stubEngine{result: &models.SearchResult{}})

	rec := performSearch(t, cfg, pm, "/search?query=test")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, field := range []string{"text_blocks", "references", "inline_images"} {
		value, ok := raw[field]
		require.True(t, ok, field)
		assert.IsType(t, []interface{}{}, value, field)
	}
}
