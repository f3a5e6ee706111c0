package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"scrapinghorse/internal/api/middleware"
	"scrapinghorse/internal/config"
	"scrapinghorse/internal/logging"
	"scrapinghorse/internal/scraper"
	"scrapinghorse/internal/scraper/workers"
	"scrapinghorse/internal/usage"
	"scrapinghorse/pkg/models"
	"scrapinghorse/pkg/utils"
)

const searchCredits = 1

var validate = validator.New()

// SearchHandler runs one search query through the worker pool and returns
// the structured answer content.
func SearchHandler(cfg *config.Config, poolManager *workers.PoolManager, tracker *usage.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := middleware.RequestID(c)
		logger := logging.LogWithRequestID(requestID)

		req := new(models.SearchRequest)
		if err := c.Bind(req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "invalid_max_wait",
				Message:   "max_wait_seconds must be a positive integer",
				RequestID: requestID,
				Timestamp: time.Now(),
			})
		}
		if err := validate.Struct(req); err != nil {
			return validationError(c, requestID, err)
		}
		if strings.TrimSpace(req.Query) == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "missing_query",
				Message:   "Query parameter 'query' is required",
				RequestID: requestID,
				Timestamp: time.Now(),
			})
		}
		query := utils.DecodeQuery(req.Query)
		maxWait := time.Duration(req.MaxWaitSeconds) * time.Second

		logger.Info("Search request received", map[string]interface{}{
			"query":    query,
			"max_wait": maxWait.String(),
		})

		startTime := time.Now()
		result, err := poolManager.Submit(c.Request().Context(), query, maxWait)
		if err != nil {
			return searchError(c, requestID, err)
		}

		if tracker != nil {
			tracker.Record(c.Request().Context(), c.Request().Header.Get("X-API-Key"), searchCredits)
		}

		logger.Info("Search request completed", map[string]interface{}{
			"query":      query,
			"duration":   utils.FormatDuration(time.Since(startTime)),
			"references": len(result.References),
		})

		return c.JSON(http.StatusOK, buildSearchResponse(result))
	}
}

// buildSearchResponse keeps the JSON arrays non-null even when empty.
func buildSearchResponse(result *models.SearchResult) models.SearchResponse {
	response := models.SearchResponse{
		TextBlocks:   result.TextBlocks,
		References:   result.References,
		InlineImages: result.InlineImages,
		Metadata: models.Metadata{
			CreditsUsed: searchCredits,
			Version:     serviceVersion,
		},
	}
	if response.TextBlocks == nil {
		response.TextBlocks = []models.TextBlock{}
	}
	if response.References == nil {
		response.References = []models.Reference{}
	}
	if response.InlineImages == nil {
		response.InlineImages = []models.InlineImage{}
	}
	return response
}

func validationError(c echo.Context, requestID string, err error) error {
	timestamp := time.Now()

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			if fe.Field() == "Query" {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error:     "missing_query",
					Message:   "Query parameter 'query' is required",
					RequestID: requestID,
					Timestamp: timestamp,
				})
			}
		}
	}

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:     "invalid_max_wait",
		Message:   "max_wait_seconds must be a positive integer between 1 and 300",
		RequestID: requestID,
		Timestamp: timestamp,
	})
}

func searchError(c echo.Context, requestID string, err error) error {
	timestamp := time.Now()

	switch {
	case errors.Is(err, workers.ErrWorkerUnavailable), errors.Is(err, workers.ErrPoolClosed):
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:     "worker_unavailable",
			Message:   "No worker became available within the wait budget",
			RequestID: requestID,
			Timestamp: timestamp,
		})
	case errors.Is(err, scraper.ErrExtractionTimeout):
		return c.JSON(http.StatusGatewayTimeout, models.ErrorResponse{
			Error:     "extraction_timeout",
			Message:   "No results appeared before the deadline",
			RequestID: requestID,
			Timestamp: timestamp,
		})
	case errors.Is(err, scraper.ErrExtractionFailure):
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:     "extraction_failure",
			Message:   "The page rendered but no structured content could be extracted",
			RequestID: requestID,
			Timestamp: timestamp,
		})
	default:
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:     "internal_error",
			Message:   "Search failed",
			RequestID: requestID,
			Timestamp: timestamp,
		})
	}
}
