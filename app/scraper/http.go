package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/lysyi3m/curio/app/ratelimit"
)

const maxBodyBytes = 10 << 20

// fetcher performs vendor requests through the marketplace queue.
type fetcher struct {
	client    *http.Client
	queue     *ratelimit.Queue
	userAgent string
}

func (f *fetcher) get(ctx context.Context, vendor, rawURL string, headers map[string]string) ([]byte, error) {
	return ratelimit.Submit(ctx, f.queue, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", vendor, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Vendor: vendor, StatusCode: resp.StatusCode}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return data, nil
	})
}
