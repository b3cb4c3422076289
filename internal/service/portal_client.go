package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRetries   = 3
	initialBackoff   = 2 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// StatusError is returned for a non-2xx response that was not retried away
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.URL)
}

// IsNotFound reports whether err is an HTTP 404 from the portal
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// PortalClientConfig tunes the HTTP behaviour of a PortalClient
type PortalClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	UserAgent      string
}

// PortalClient fetches transparency portal pages and linked documents
type PortalClient struct {
	client    *http.Client
	retries   int
	backoff   time.Duration
	userAgent string
}

// NewPortalClient creates a new portal client. Zero config fields take defaults.
func NewPortalClient(cfg PortalClientConfig) *PortalClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &PortalClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		retries:   cfg.MaxRetries,
		backoff:   cfg.InitialBackoff,
		userAgent: cfg.UserAgent,
	}
}

// Fetch retrieves a page body
func (c *PortalClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := c.doWithRetry(ctx, url, func(resp *http.Response) error {
		var err error
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Download streams url into dest. The file only appears once the body has
// been fully written.
func (c *PortalClient) Download(ctx context.Context, url, dest string) error {
	return c.doWithRetry(ctx, url, func(resp *http.Response) error {
		tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, resp.Body); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		return os.Rename(tmp.Name(), dest)
	})
}

// doWithRetry performs an HTTP GET with exponential backoff retry.
// Transport errors, 429 and 5xx are retried; other statuses fail at once.
func (c *PortalClient) doWithRetry(ctx context.Context, url string, handle func(*http.Response) error) error {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &StatusError{URL: url, Code: resp.StatusCode}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return &StatusError{URL: url, Code: resp.StatusCode}
		}

		err = handle(resp)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", c.retries, lastErr)
}
