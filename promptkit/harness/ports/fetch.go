package harnessports

import (
	"context"
	"net/http"
)

// FetchResult is a fetched resource.
type FetchResult struct {
	Header http.Header
	Body   []byte
}

// ContentType returns the Content-Type header, or "" when absent.
func (r *FetchResult) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// Fetcher retrieves the media a prompt references. Any error means the
// reference could not be resolved.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}
