// Package redis delivers run completion events over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/duelbench/duelbench/adapter"
)

const (
	// DefaultChannel receives events when no channel is configured.
	DefaultChannel = "duelbench:run_completed"
	// DefaultTimeout bounds each individual PUBLISH.
	DefaultTimeout = 5 * time.Second
	// DefaultRetries is how many times a failed PUBLISH is retried.
	DefaultRetries = 3

	baseBackoff = 500 * time.Millisecond
)

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the connection URL, redis://[:password@]host:port[/db] (required).
	URL string
	// Channel is the pub/sub channel (default duelbench:run_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the retry count after the first attempt (default 3).
	Retries int
}

// Adapter publishes run completion events with PUBLISH.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends the event as JSON to the configured channel, retrying
// with exponential backoff on connection failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	attempts := 1 + a.cfg.Retries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("redis: context canceled during backoff: %w", ctx.Err())
			case <-time.After(baseBackoff << (attempt - 1)):
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		pctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		lastErr = a.client.Publish(pctx, a.cfg.Channel, body).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
