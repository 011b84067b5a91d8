package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"coursewatch/internal/catalog"
	"coursewatch/internal/logging"
)

// BrowserConfig configures the headless-browser strategy.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty means launch a local Chrome via the rod launcher.
	RemoteURL string
	// Headless controls the launch mode for a locally launched Chrome.
	Headless bool
	// NavTimeout bounds navigation and page load. Zero means 30s.
	NavTimeout time.Duration
	Logger     *slog.Logger
}

// BrowserStrategy renders the listing page in a stealth Chrome tab and
// scrapes the resulting DOM. It exists for sources that serve their catalog
// behind client-side rendering or bot checks the plain HTTP path cannot
// pass. Chrome is launched lazily on first use and reused across cycles.
type BrowserStrategy struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserStrategy builds the browser strategy. No Chrome process is
// started until the first Fetch.
func NewBrowserStrategy(cfg BrowserConfig) *BrowserStrategy {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &BrowserStrategy{cfg: cfg}
}

func (s *BrowserStrategy) Name() string { return "browser" }

// Fetch renders the listing page and parses the settled DOM. Launch and
// navigation failures are transient; a challenge page in the rendered DOM
// means this strategy is blocked too.
func (s *BrowserStrategy) Fetch(ctx context.Context, source Source) ([]catalog.Item, error) {
	b, err := s.ensureBrowser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		s.dropBrowser()
		return nil, fmt.Errorf("%w: open tab: %v", ErrTransient, err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(source.ListingURL); err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", ErrTransient, source.ListingURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.cfg.Logger.Warn("page load wait timed out",
			logging.String(logging.FieldComponent, "fetch"),
			logging.String("url", source.ListingURL),
			logging.Error(err))
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("%w: read DOM: %v", ErrTransient, err)
	}
	body := []byte(res.Value.Str())

	if looksBlocked(body) {
		return nil, fmt.Errorf("%w: challenge page rendered", ErrBlocked)
	}
	items, issues, err := catalog.ParseListingHTML(source.ListingURL, body, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	for _, issue := range issues {
		s.cfg.Logger.Debug("skipped listing fragment",
			logging.String(logging.FieldComponent, "fetch"),
			logging.String("fragment", issue.Fragment),
			logging.String("reason", issue.Reason))
	}
	return items, nil
}

// Close shuts down the Chrome instance if one was launched.
func (s *BrowserStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	return nil
}

func (s *BrowserStrategy) ensureBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	var wsURL string
	if s.cfg.RemoteURL != "" {
		wsURL = s.cfg.RemoteURL
		s.cfg.Logger.Info("connecting to remote browser",
			logging.String(logging.FieldComponent, "fetch"),
			logging.String("url", wsURL))
	} else {
		l := launcher.New().
			Headless(s.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		wsURL = u
		s.lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.cleanupLocked()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	s.browser = b
	return b, nil
}

// dropBrowser discards the current Chrome so the next attempt relaunches.
func (s *BrowserStrategy) dropBrowser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *BrowserStrategy) cleanupLocked() {
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}
