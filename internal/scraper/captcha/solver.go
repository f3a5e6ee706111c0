package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	api2captcha "github.com/2captcha/2captcha-go"

	"scrapinghorse/internal/config"
	"scrapinghorse/internal/logging"
	"scrapinghorse/internal/logging/types"
	"scrapinghorse/pkg/utils"
)

// Solver solves interactive challenges that block the search page.
type Solver interface {
	SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error)
	IsHealthy() bool
}

// TwoCaptchaSolver implements 2CAPTCHA service integration using the
// official library.
type TwoCaptchaSolver struct {
	config *config.Config
	client *api2captcha.Client
	solve  func(req api2captcha.Request) (string, error)
	logger types.Logger
}

// NewTwoCaptchaSolver creates a new 2CAPTCHA solver instance
func NewTwoCaptchaSolver(cfg *config.Config) *TwoCaptchaSolver {
	logger := logging.GetGlobalLogger().WithField("component", "2captcha")

	if cfg.Scraper.Captcha.APIKey == "" {
		logger.Debug("2CAPTCHA API key not configured, captcha solving disabled")
	}

	client := api2captcha.NewClient(cfg.Scraper.Captcha.APIKey)
	client.DefaultTimeout = int(cfg.Scraper.Captcha.Timeout.Seconds())
	client.RecaptchaTimeout = int(cfg.Scraper.Captcha.Timeout.Seconds())
	client.PollingInterval = 5

	return &TwoCaptchaSolver{
		config: cfg,
		client: client,
		solve: func(req api2captcha.Request) (string, error) {
			code, _, err := client.Solve(req)
			return code, err
		},
		logger: logger,
	}
}

// SolveRecaptcha solves a reCAPTCHA challenge using the 2CAPTCHA service
func (tcs *TwoCaptchaSolver) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	if !tcs.config.Scraper.Captcha.EnableAutoSolve {
		return "", fmt.Errorf("captcha auto-solve is disabled")
	}
	if tcs.config.Scraper.Captcha.APIKey == "" {
		return "", fmt.Errorf("2CAPTCHA API key not configured")
	}

	tcs.logger.Info("Starting reCAPTCHA solving", map[string]interface{}{
		"site_key": siteKey,
		"page_url": pageURL,
	})

	startTime := time.Now()

	captcha := api2captcha.ReCaptcha{
		SiteKey: siteKey,
		Url:     pageURL,
	}

	// The 2captcha client polls synchronously against its own wall-clock
	// timeout, so the call runs in a goroutine and the job's ctx stays in
	// charge. An abandoned solve finishes in the background and its result
	// is discarded.
	type solveResult struct {
		code string
		err  error
	}
	resultCh := make(chan solveResult, 1)
	go func() {
		code, err := tcs.solve(captcha.ToRequest())
		resultCh <- solveResult{code: code, err: err}
	}()

	var code string
	select {
	case res := <-resultCh:
		code = res.code
		if res.err != nil {
			tcs.logger.Error("Failed to solve reCAPTCHA", map[string]interface{}{
				"site_key": siteKey,
				"error":    res.err.Error(),
			})
			return "", fmt.Errorf("failed to solve reCAPTCHA: %w", res.err)
		}
	case <-ctx.Done():
		tcs.logger.Warn("Abandoning reCAPTCHA solve", map[string]interface{}{
			"site_key": siteKey,
			"elapsed":  time.Since(startTime).String(),
		})
		return "", fmt.Errorf("captcha solving abandoned: %w", ctx.Err())
	}

	tcs.logger.Info("Successfully solved reCAPTCHA", map[string]interface{}{
		"site_key":     siteKey,
		"solving_time": time.Since(startTime).String(),
	})

	return code, nil
}

// IsHealthy checks if the 2CAPTCHA service is available
func (tcs *TwoCaptchaSolver) IsHealthy() bool {
	if tcs.config.Scraper.Captcha.APIKey == "" {
		return false
	}

	balance, err := tcs.client.GetBalance()
	if err != nil {
		tcs.logger.Error("2CAPTCHA health check failed", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}

	return balance >= 0
}

// Detect reports whether the page is blocked by a challenge and returns the
// reCAPTCHA site key when one can be extracted.
func Detect(pageContent string) (bool, string) {
	pageContentLower := strings.ToLower(pageContent)

	// The sorry page shown when the search frontend flags automated traffic
	blockIndicators := []string{
		"our systems have detected unusual traffic",
		"/sorry/index",
		"g-recaptcha",
	}

	blocked := false
	for _, indicator := range blockIndicators {
		if strings.Contains(pageContentLower, indicator) {
			blocked = true
			break
		}
	}
	if !blocked {
		return false, ""
	}

	return true, extractRecaptchaSiteKey(pageContent)
}

// extractRecaptchaSiteKey extracts the reCAPTCHA site key from HTML content
func extractRecaptchaSiteKey(html string) string {
	patterns := []string{
		`data-sitekey="([^"]+)"`,
		`data-sitekey='([^']+)'`,
		`"sitekey"\s*:\s*"([^"]+)"`,
		`'sitekey'\s*:\s*'([^']+)'`,
	}

	for _, pattern := range patterns {
		if matches := utils.FindRegexMatch(html, pattern); len(matches) > 1 {
			return matches[1]
		}
	}

	return ""
}
