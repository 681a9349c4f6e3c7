package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
)

// RestyFetcher downloads media over HTTP.
type RestyFetcher struct {
	client *resty.Client
}

// RestyFetcherOptions tunes the HTTP client. Zero values keep resty defaults.
type RestyFetcherOptions struct {
	Timeout    time.Duration
	UserAgent  string
	RetryCount int
}

// NewRestyFetcher creates a fetcher with its own resty client.
func NewRestyFetcher(opts RestyFetcherOptions) *RestyFetcher {
	c := resty.New()
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		c.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.RetryCount > 0 {
		c.SetRetryCount(opts.RetryCount)
	}
	return &RestyFetcher{client: c}
}

// Fetch GETs url. Non-2xx responses are errors.
func (f *RestyFetcher) Fetch(ctx context.Context, url string) (*ports.FetchResult, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	// Error pages are not attached as media; the reference stays text.
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", url, resp.Status())
	}
	return &ports.FetchResult{Header: resp.Header(), Body: resp.Body()}, nil
}

var _ ports.Fetcher = (*RestyFetcher)(nil)
