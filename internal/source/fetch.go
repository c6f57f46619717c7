package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hermannm.dev/wrap"
)

// Fetcher downloads http(s) sources with a consistent timeout policy.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a Fetcher. If client is nil, http.DefaultClient is used.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, timeout: timeout}
}

// Open issues a GET and returns the response body. The body is buffered
// in memory so the timeout only covers the download.
//
// On non-2xx responses the error includes the status code and up to 4KB of
// the response body.
func (f *Fetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, wrap.Error(err, "failed to build request")
	}
	req.Header.Set("User-Agent", "tabload/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, wrap.Error(err, "http get failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrap.Error(err, "failed to read response body")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
