package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	ProcessPath     = "/api/crawl/process"
	dispatchTimeout = 5 * time.Minute
)

// HTTPDispatcher posts page requests to the service's own process endpoint
// from a background goroutine, so each page runs in its own request.
type HTTPDispatcher struct {
	client   *http.Client
	endpoint string
	secret   string
	wg       sync.WaitGroup
}

func NewHTTPDispatcher(client *http.Client, baseURL, secret string) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{Timeout: dispatchTimeout}
	}
	return &HTTPDispatcher{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + ProcessPath,
		secret:   secret,
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, req PageRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode page request: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()

		if err := d.post(postCtx, body); err != nil {
			slog.Error("Crawl page dispatch failed", "run", req.RunID, "cursor", req.Cursor, "error", err)
		}
	}()

	return nil
}

func (d *HTTPDispatcher) post(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.secret)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Duplicate delivery for a finished run.
		slog.Debug("Crawl run already finished, dispatch ignored", "endpoint", d.endpoint)
		return nil
	}
	return fmt.Errorf("process endpoint returned HTTP %d", resp.StatusCode)
}

// Wait blocks until every in-flight dispatch has finished.
func (d *HTTPDispatcher) Wait() {
	d.wg.Wait()
}
