package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/config"
	"github.com/wonny/aegis-signals/pkg/httputil"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Client talks to the upstream market-data provider
// ⭐ SSOT: provider HTTP calls are made from this package only
//
// Quotes come from a JSON endpoint, balance-sheet fields from an HTML
// company page. Every failure is mapped onto the contracts error taxonomy.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	name       string
	baseURL    string
	apiKey     string
}

// NewClient creates a provider client
func NewClient(httpClient *httputil.Client, cfg config.ProviderConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Module("marketdata"),
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// Name identifies the provider (breaker and metric label)
func (c *Client) Name() string {
	return c.name
}

// get performs a GET and returns the body of a 200 response
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	headers := map[string]string{"Accept": "application/json, text/html"}
	if c.apiKey != "" {
		headers["X-API-Key"] = c.apiKey
	}

	resp, err := c.httpClient.GetWithHeaders(ctx, fullURL, headers)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, path); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(fmt.Errorf("read response body: %w", err))
	}
	return body, nil
}

// statusError maps an HTTP status onto the provider error taxonomy
func statusError(code int, path string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", contracts.ErrNotFound, path)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", contracts.ErrRateLimited, path)
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: status %d for %s", contracts.ErrTimeout, code, path)
	default:
		return fmt.Errorf("%w: status %d for %s", contracts.ErrProviderUnavailable, code, path)
	}
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", contracts.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", contracts.ErrProviderUnavailable, err)
}
