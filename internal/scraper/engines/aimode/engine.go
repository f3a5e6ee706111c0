package aimode

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"scrapinghorse/internal/config"
	"scrapinghorse/internal/extract"
	"scrapinghorse/internal/logging"
	"scrapinghorse/internal/logging/types"
	"scrapinghorse/internal/scraper"
	"scrapinghorse/internal/scraper/captcha"
	"scrapinghorse/internal/window"
	"scrapinghorse/pkg/models"
)

// Engine drives one headed Chrome session against the AI answer search page.
// Each engine owns exactly one browser pinned to its window slot.
type Engine struct {
	config   *config.Config
	slot     window.Slot
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	solver   *captcha.TwoCaptchaSolver
	logger   types.Logger

	mu      sync.Mutex
	stopped bool
}

// NewEngine creates an engine bound to the given window slot. The browser is
// not launched until Start.
func NewEngine(cfg *config.Config, slot window.Slot) *Engine {
	return &Engine{
		config: cfg,
		slot:   slot,
		solver: captcha.NewTwoCaptchaSolver(cfg),
		logger: logging.GetGlobalLogger().WithField("slot", slot.Index),
	}
}

// Start launches Chrome at the slot's position, applies stealth and brings
// the session to the ready state on the search page.
func (e *Engine) Start(ctx context.Context) error {
	l := launcher.New().
		Headless(e.config.Scraper.HeadlessMode).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("window-position", e.slot.PositionFlag()).
		Set("window-size", e.slot.SizeFlag())

	if chromePath := systemChromePath(); chromePath != "" {
		l = l.Bin(chromePath)
	}

	if e.config.Scraper.UserAgent != "" {
		l = l.Set("user-agent", e.config.Scraper.UserAgent)
	}

	if e.config.ProxyEnabled() {
		l = l.Set("proxy-server", e.config.ProxyServerFlag())
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	e.launcher = l

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		e.launcher.Cleanup()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	e.browser = browser

	if e.config.ProxyEnabled() && e.config.Proxy.Username != "" {
		go browser.MustHandleAuth(e.config.Proxy.Username, e.config.Proxy.Password)()
	}

	page, err := e.createStealthPage()
	if err != nil {
		e.teardown()
		return fmt.Errorf("failed to create stealth page: %w", err)
	}
	e.page = page

	if err := e.navigateToStart(ctx); err != nil {
		e.teardown()
		return err
	}

	e.logger.Info("Browser session started", map[string]interface{}{
		"position": e.slot.PositionFlag(),
		"headless": e.config.Scraper.HeadlessMode,
	})
	return nil
}

// Run types the query into the search box and polls the page until
// references appear or the deadline passes. On deadline with partial text
// content already extracted, the partial result is returned without error.
func (e *Engine) Run(ctx context.Context, query string) (*models.SearchResult, error) {
	if err := e.submitQuery(ctx, query); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(e.config.Scraper.PollInterval)
	defer ticker.Stop()

	var partial *models.SearchResult

	for {
		select {
		case <-ctx.Done():
			if partial != nil && !partial.Empty() {
				e.logger.Warn("Deadline reached, returning partial content", map[string]interface{}{
					"text_blocks": len(partial.TextBlocks),
				})
				return partial, nil
			}
			return nil, scraper.ErrExtractionTimeout
		case <-ticker.C:
		}

		html, err := e.pageHTML(ctx)
		if err != nil {
			// A deadline hitting mid-read is still just a timeout, not a
			// broken session
			if ctx.Err() != nil {
				if partial != nil && !partial.Empty() {
					return partial, nil
				}
				return nil, scraper.ErrExtractionTimeout
			}
			return nil, fmt.Errorf("failed to read page content: %w", err)
		}

		if found, siteKey := captcha.Detect(html); found {
			if err := e.handleCaptcha(ctx, siteKey); err != nil {
				e.logger.Warn("Captcha handling failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			continue
		}

		result, err := extract.Structured(html)
		if err != nil {
			return nil, scraper.ErrExtractionFailure
		}

		if result.HasReferences() {
			return result, nil
		}
		if !result.Empty() {
			partial = result
		}
	}
}

// Reset navigates back to the search page so the next Run starts clean.
func (e *Engine) Reset(ctx context.Context) error {
	return e.navigateToStart(ctx)
}

// Stop tears the browser session down. Safe to call more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil
	}
	e.stopped = true
	e.teardown()

	e.logger.Info("Browser session stopped")
	return nil
}

// IsHealthy reports whether the browser session still answers.
func (e *Engine) IsHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.browser == nil {
		return false
	}
	return rod.Try(func() { e.browser.MustPages() }) == nil
}

func (e *Engine) teardown() {
	if e.page != nil {
		_ = rod.Try(func() { e.page.MustClose() })
		e.page = nil
	}
	if e.browser != nil {
		_ = rod.Try(func() { e.browser.MustClose() })
		e.browser = nil
	}
	if e.launcher != nil {
		e.launcher.Cleanup()
		e.launcher = nil
	}
}

// navigateToStart loads the search page and waits for the search box.
func (e *Engine) navigateToStart(ctx context.Context) error {
	startURL := e.startPageURL()

	navCtx, cancel := context.WithTimeout(ctx, e.config.Workers.StartupTimeout)
	defer cancel()

	if err := rod.Try(func() {
		e.page.Context(navCtx).MustNavigate(startURL).MustWaitLoad()
	}); err != nil {
		return fmt.Errorf("failed to navigate to start page: %w", err)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, e.config.Scraper.ReadyTimeout)
	defer cancelReady()

	if err := rod.Try(func() {
		e.page.Context(readyCtx).MustElement(e.config.Scraper.SearchBoxSelector)
	}); err != nil {
		return fmt.Errorf("search box did not appear: %w", err)
	}

	return nil
}

// startPageURL primes the page with a throwaway query so the answer UI and
// its search box are present before the first real job arrives.
func (e *Engine) startPageURL() string {
	return e.config.Scraper.StartURL + url.QueryEscape("hello")
}

func (e *Engine) submitQuery(ctx context.Context, query string) error {
	err := rod.Try(func() {
		box := e.page.Context(ctx).MustElement(e.config.Scraper.SearchBoxSelector)
		box.MustSelectAllText().MustInput("")
		box.MustInput(query)
		box.MustType(input.Enter)
	})
	if err != nil {
		return fmt.Errorf("failed to submit query: %w", err)
	}

	e.logger.Debug("Query submitted", map[string]interface{}{
		"query": query,
	})
	return nil
}

func (e *Engine) pageHTML(ctx context.Context) (string, error) {
	var html string
	err := rod.Try(func() {
		html = e.page.Context(ctx).MustHTML()
	})
	return html, err
}

func (e *Engine) handleCaptcha(ctx context.Context, siteKey string) error {
	if !e.config.Scraper.Captcha.EnableAutoSolve {
		return fmt.Errorf("captcha encountered and auto-solve is disabled")
	}

	var pageURL string
	if err := rod.Try(func() { pageURL = e.page.MustInfo().URL }); err != nil {
		return fmt.Errorf("failed to read page url: %w", err)
	}

	solution, err := e.solver.SolveRecaptcha(ctx, siteKey, pageURL)
	if err != nil {
		return err
	}

	return e.injectCaptchaSolution(solution)
}

// injectCaptchaSolution writes the token into the response field and fires
// the widget callback.
func (e *Engine) injectCaptchaSolution(solution string) error {
	js := fmt.Sprintf(`() => {
		let responseElements = document.querySelectorAll('[name="g-recaptcha-response"]');
		for (let element of responseElements) {
			element.value = '%s';
			element.innerHTML = '%s';
		}

		let recaptchaElement = document.querySelector('.g-recaptcha');
		if (recaptchaElement) {
			let callback = recaptchaElement.getAttribute('data-callback');
			if (callback && typeof window[callback] === 'function') {
				window[callback]('%s');
			}
		}

		let forms = document.querySelectorAll('form');
		for (let form of forms) {
			if (form.querySelector('[name="g-recaptcha-response"]')) {
				form.submit();
				break;
			}
		}
	}`, solution, solution, solution)

	if err := rod.Try(func() { e.page.MustEval(js) }); err != nil {
		return fmt.Errorf("failed to inject captcha solution: %w", err)
	}

	e.logger.Debug("Captcha solution injected")
	return nil
}

// createStealthPage opens a page with automation markers masked and the
// viewport matched to the slot geometry.
func (e *Engine) createStealthPage() (*rod.Page, error) {
	page, err := stealth.Page(e.browser)
	if err != nil {
		return nil, err
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             e.slot.Width,
		Height:            e.slot.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		e.logger.Warn("Failed to set viewport", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if e.config.Scraper.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: e.config.Scraper.UserAgent,
		}); err != nil {
			e.logger.Warn("Failed to set user agent", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if err := rod.Try(func() {
		page.MustEval(`() => {
			Object.defineProperty(navigator, 'webdriver', {
				get: () => undefined,
			});
			Object.defineProperty(navigator, 'languages', {
				get: () => ['en-US', 'en'],
			});
			window.chrome = { runtime: {} };
		}`)
	}); err != nil {
		e.logger.Warn("Failed to inject stealth JavaScript", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return page, nil
}

// systemChromePath finds the system-installed Chrome/Chromium browser.
func systemChromePath() string {
	if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		if _, err := os.Stat(chromeBin); err == nil {
			return chromeBin
		}
	}

	commonPaths := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
