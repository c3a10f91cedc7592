package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient is the JSON-over-HTTP plumbing shared by the vendor backends.
type httpClient struct {
	name    string
	client  *http.Client
	retries int
	backoff time.Duration
}

func newHTTPClient(name string, opts Options) httpClient {
	return httpClient{
		name:    name,
		client:  &http.Client{Timeout: opts.Timeout},
		retries: opts.MaxRetries,
		backoff: opts.RetryBackoff,
	}
}

// postJSON sends body to url and decodes a 200 answer into out. Rate limits
// and server errors are retried with exponential backoff; other statuses fail
// immediately with an *APIError.
func (c httpClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("%s: create request: %w", c.name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%s: request failed: %w", c.name, err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%s: read response: %w", c.name, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = &APIError{Backend: c.name, StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{Backend: c.name, StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: parse response: %w", c.name, err)
		}
		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", c.name, lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
