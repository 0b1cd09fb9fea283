package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const maxAssetBytes = 25 << 20

// Fetcher downloads the raw bytes behind a media URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads assets over HTTP, paced so a build with many
// attachments does not hammer the storage provider.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher builds a fetcher with a per-request timeout.
func NewHTTPFetcher(client *http.Client, timeout time.Duration, perSecond float64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	return &HTTPFetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 2),
	}
}

// Fetch returns the body of a 2xx response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("download: unexpected status %s", res.Status)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxAssetBytes {
		return nil, fmt.Errorf("download: asset larger than %d bytes", maxAssetBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download: empty body")
	}
	return data, nil
}
