package elements

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultSourceURL is the Celestrak GP query endpoint.
const DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php"

const (
	// maxBodyBytes caps a single response to guard against runaway sources.
	maxBodyBytes = 50 << 20

	defaultTimeout    = 30 * time.Second
	defaultRateLimit  = 2 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// Fetch errors.
var (
	ErrNotFound     = errors.New("no element data for group")
	ErrRateLimited  = errors.New("rate limited by element source")
	ErrUnknownGroup = errors.New("unknown satellite group")
)

// Fetcher retrieves raw group element data (OMM JSON) from Celestrak.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     *slog.Logger
	rateLimit  time.Duration
	maxRetries int
	backoff    time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithRateLimit sets the minimum interval between requests.
func WithRateLimit(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.rateLimit = d }
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) FetcherOption {
	return func(f *Fetcher) { f.maxRetries = n }
}

// WithBackoff sets the delay before the first retry. Each further retry
// doubles it.
func WithBackoff(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.backoff = d }
}

// NewFetcher creates a Fetcher for the given source URL.
func NewFetcher(sourceURL string, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	f := &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger:     logger,
		rateLimit:  defaultRateLimit,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// GroupURL returns the request URL for a group.
func (f *Fetcher) GroupURL(group string) string {
	q := url.Values{}
	q.Set("GROUP", group)
	q.Set("FORMAT", "json")
	return f.sourceURL + "?" + q.Encode()
}

// FetchGroup retrieves the raw element data for group, retrying transient
// failures with exponential backoff. 404 and "no data" responses are not
// retried.
func (f *Fetcher) FetchGroup(ctx context.Context, group string) ([]byte, error) {
	if !IsKnownGroup(group) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}

	target := f.GroupURL(group)

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.backoff << uint(attempt-1)
			f.logger.Debug("retrying element fetch", "group", group, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := f.waitForRateLimit(ctx); err != nil {
			return nil, err
		}

		body, err := f.do(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return nil, fmt.Errorf("fetching group %s: %w", group, err)
		}
	}

	return nil, fmt.Errorf("fetching group %s after %d retries: %w", group, f.maxRetries, lastErr)
}

// waitForRateLimit blocks until the minimum request interval has passed.
func (f *Fetcher) waitForRateLimit(ctx context.Context) error {
	f.mu.Lock()
	wait := f.rateLimit - time.Since(f.lastRequest)
	if wait < 0 {
		wait = 0
	}
	f.lastRequest = time.Now().Add(wait)
	f.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (f *Fetcher) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching element data: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}

	// Celestrak answers unknown or empty groups with a plain-text marker.
	if string(body) == "No GP data found" {
		return nil, ErrNotFound
	}

	return body, nil
}
