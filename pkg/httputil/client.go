package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis-signals/pkg/config"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/redis"
)

// UserAgent is sent on every upstream request
const UserAgent = "aegis-signals/1.0"

// Client is the outbound HTTP client for market data providers.
// Requests are paced locally (x/time/rate), optionally against a shared Redis
// budget, and 5xx/transport failures are retried with exponential backoff.
// ⭐ SSOT: every outbound HTTP request goes through this client
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	retry      RetryConfig

	pacer  *rate.Limiter
	shared *redis.RateLimiter
	budget redis.RateLimitConfig
}

// RetryConfig controls in-place retries of one request
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Enabled      bool
}

// New builds the client. The provider rate from cfg becomes the local pacer.
// ⭐ SSOT: http.Client instances are created here only
func New(cfg *config.Config, log *logger.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Module("httputil"),
		retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Enabled:      true,
		},
	}
	if cfg != nil && cfg.Provider.RequestsPerSec > 0 {
		c.WithPacer(cfg.Provider.RequestsPerSec, cfg.Provider.Burst)
	}
	return c
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retry.MaxRetries = maxRetries
	c.retry.InitialDelay = initialDelay
	c.retry.Enabled = true
	return c
}

// DisableRetry hands every failure straight back (the gateway retries on its own schedule)
func (c *Client) DisableRetry() *Client {
	c.retry.Enabled = false
	return c
}

// WithPacer limits this process to rps requests per second
func (c *Client) WithPacer(rps float64, burst int) *Client {
	if burst < 1 {
		burst = 1
	}
	c.pacer = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithRateLimiter makes every request also wait for the shared Redis budget
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, budget redis.RateLimitConfig) *Client {
	c.shared = limiter
	c.budget = budget
	return c
}

func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.GetWithHeaders(ctx, url, nil)
}

// GetWithHeaders issues a GET. Non-2xx responses are returned, not turned into errors.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

// wait blocks on the local pacer and then on the shared budget
func (c *Client) wait(ctx context.Context) error {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("pacer: %w", err)
		}
	}
	if c.shared != nil {
		if err := c.shared.Wait(ctx, c.budget); err != nil {
			return fmt.Errorf("shared rate limit: %w", err)
		}
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.wait(req.Context()); err != nil {
		return nil, err
	}

	// path only: query strings may carry credentials
	log := c.logger.WithFields(map[string]interface{}{
		"method": req.Method,
		"host":   req.URL.Host,
		"path":   req.URL.Path,
	})

	start := time.Now()
	var resp *http.Response
	var err error
	if c.retry.Enabled {
		resp, err = c.doWithRetry(req, log)
	} else {
		resp, err = c.httpClient.Do(req)
	}
	elapsed := time.Since(start)

	if err != nil {
		log.WithError(err).WithField("duration", elapsed.String()).Warn("HTTP request failed")
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"status":   resp.StatusCode,
		"duration": elapsed.String(),
	}).Debug("HTTP request completed")
	return resp, nil
}

// doWithRetry retries transport errors and 5xx responses in place.
// A 429 is handed back so the caller can apply its own, longer, pause.
func (c *Client) doWithRetry(req *http.Request, log *logger.Logger) (*http.Response, error) {
	delay := c.retry.InitialDelay

	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err == nil && !IsRetryableError(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= c.retry.MaxRetries || req.Context().Err() != nil {
			return resp, err
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warn("Retrying HTTP request")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
}

// IsRetryableError reports whether a status is worth retrying in place
func IsRetryableError(statusCode int) bool {
	return statusCode >= 500
}
