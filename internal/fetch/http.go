package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coursewatch/internal/catalog"
	"coursewatch/internal/logging"
)

const (
	// maxBodyBytes caps listing downloads to prevent runaway reads.
	maxBodyBytes = 10 << 20

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// HTTPStrategy fetches the listing over plain HTTP. When the source has an
// API endpoint configured it is tried first; the rendered page is the
// fallback within the same attempt.
type HTTPStrategy struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// HTTPOption configures an HTTPStrategy.
type HTTPOption func(*HTTPStrategy)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(s *HTTPStrategy) { s.client = c }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(s *HTTPStrategy) { s.userAgent = ua }
}

// WithLogger sets the strategy logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(s *HTTPStrategy) { s.logger = l }
}

// NewHTTPStrategy builds the HTTP strategy with browser-like defaults.
func NewHTTPStrategy(opts ...HTTPOption) *HTTPStrategy {
	s := &HTTPStrategy{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: defaultUserAgent,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPStrategy) Name() string { return "http" }

// Fetch retrieves and parses the listing. API JSON is preferred because it
// carries stable catalog ids; a blocked or malformed API response falls
// back to scraping the rendered page before the attempt is declared failed.
func (s *HTTPStrategy) Fetch(ctx context.Context, source Source) ([]catalog.Item, error) {
	var apiErr error
	if source.APIURL != "" {
		items, err := s.fetchAPI(ctx, source)
		if err == nil {
			return items, nil
		}
		apiErr = err
		s.logger.Debug("api fetch failed, falling back to listing page",
			logging.String(logging.FieldComponent, "fetch"),
			logging.Error(err))
	}

	items, err := s.fetchListing(ctx, source)
	if err != nil {
		if apiErr != nil {
			return nil, fmt.Errorf("%w (api: %v)", err, apiErr)
		}
		return nil, err
	}
	return items, nil
}

func (s *HTTPStrategy) fetchAPI(ctx context.Context, source Source) ([]catalog.Item, error) {
	apiURL := source.APIURL
	if source.Category != "" {
		apiURL = appendQuery(apiURL, "category", source.Category)
	}
	body, err := s.get(ctx, apiURL, "application/json, text/plain, */*")
	if err != nil {
		return nil, err
	}
	items, issues, err := catalog.ParseListingJSON(apiURL, body, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	s.logIssues(apiURL, issues)
	return items, nil
}

func (s *HTTPStrategy) fetchListing(ctx context.Context, source Source) ([]catalog.Item, error) {
	body, err := s.get(ctx, source.ListingURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	if looksBlocked(body) {
		return nil, fmt.Errorf("%w: challenge page returned", ErrBlocked)
	}
	items, issues, err := catalog.ParseListingHTML(source.ListingURL, body, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	s.logIssues(source.ListingURL, issues)
	return items, nil
}

func (s *HTTPStrategy) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransient, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Referer", "https://www.udemy.com/")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d from %s", ErrBlocked, resp.StatusCode, rawURL)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d from %s", ErrTransient, resp.StatusCode, rawURL)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrTransient, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	return body, nil
}

func (s *HTTPStrategy) logIssues(sourceURL string, issues []catalog.ParseIssue) {
	for _, issue := range issues {
		s.logger.Debug("skipped listing fragment",
			logging.String(logging.FieldComponent, "fetch"),
			logging.String("source", sourceURL),
			logging.String("fragment", issue.Fragment),
			logging.String("reason", issue.Reason))
	}
}

// looksBlocked detects common bot-challenge interstitials in an otherwise
// successful response.
func looksBlocked(body []byte) bool {
	probe := strings.ToLower(string(body[:min(len(body), 4096)]))
	for _, marker := range []string{"captcha", "access denied", "are you a robot", "cf-challenge"} {
		if strings.Contains(probe, marker) {
			return true
		}
	}
	return false
}

func appendQuery(rawURL, key, value string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := parsed.Query()
	q.Set(key, value)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
