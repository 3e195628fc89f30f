// Package webhook delivers run completion events over HTTP POST with
// bounded retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/duelbench/duelbench/adapter"
	"github.com/duelbench/duelbench/iox"
)

const (
	// DefaultTimeout bounds each individual POST.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is how many times a failed POST is retried.
	DefaultRetries = 3

	baseBackoff = 500 * time.Millisecond
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the endpoint receiving the event (required).
	URL string
	// Headers are added to every request, e.g. an Authorization bearer.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the retry count after the first attempt (default 3).
	Retries int
}

// Adapter posts run completion events as JSON.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// StatusError reports a non-2xx response. The code lets Publish separate
// retriable 5xx responses from permanent 4xx rejections.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Publish posts the event, retrying with exponential backoff on network
// errors and 5xx responses. A 4xx response ends the attempt loop at once:
// the receiver has rejected the payload and repeating it cannot help.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	attempts := 1 + a.cfg.Retries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: context canceled during backoff: %w", ctx.Err())
			case <-time.After(baseBackoff << (attempt - 1)):
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("webhook: context canceled: %w", err)
		}

		if lastErr = a.post(ctx, body); lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && se.Code >= 400 && se.Code < 500 {
			return fmt.Errorf("webhook: non-retriable error: %w", lastErr)
		}
	}
	return fmt.Errorf("webhook: failed after %d attempts: %w", attempts, lastErr)
}

func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
