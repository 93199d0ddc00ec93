// Package woocommerce fetches catalog pages from the WooCommerce REST API.
package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RemoteTransport = (*Client)(nil)

const apiPath = "/wp-json/wc/v3"

// Config contains configuration for the REST client.
type Config struct {
	// BaseURL is the store root, e.g. https://shop.example.com
	BaseURL string

	// ConsumerKey and ConsumerSecret are the REST API credentials,
	// sent with HTTP basic auth.
	ConsumerKey    string
	ConsumerSecret string

	// Timeout bounds each HTTP attempt. Default 30s.
	Timeout time.Duration

	// MaxRetries is the number of retries after a 5xx or 429 response.
	MaxRetries int

	// Backoff is the base delay between retries, growing linearly.
	Backoff time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements driven.RemoteTransport over the WooCommerce REST API
type Client struct {
	baseURL    string
	key        string
	secret     string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient creates a new REST client
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: store base url %q", domain.ErrInvalidInput, cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(base.String(), "/"),
		key:        cfg.ConsumerKey,
		secret:     cfg.ConsumerSecret,
		httpClient: httpClient,
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    backoff,
		logger:     logger.With("component", "woocommerce"),
	}, nil
}

func endpoint(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.EntityKindProduct:
		return "/products", nil
	case domain.EntityKindOrder:
		return "/orders", nil
	case domain.EntityKindRefund:
		return "/refunds", nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, kind)
}

// FetchPage fetches one page of a collection and maps it into records
func (c *Client) FetchPage(ctx context.Context, req driven.RemotePageRequest) ([]*domain.Record, error) {
	path, err := endpoint(req.Kind)
	if err != nil {
		return nil, err
	}
	if req.Page < 1 || req.PageSize < 1 {
		return nil, fmt.Errorf("%w: page %d of size %d", domain.ErrInvalidInput, req.Page, req.PageSize)
	}

	query := url.Values{}
	for k, v := range req.Filters {
		query.Set(k, v)
	}
	query.Set("page", strconv.Itoa(req.Page))
	query.Set("per_page", strconv.Itoa(req.PageSize))
	// Stable remote order so pages do not overlap
	if req.Kind == domain.EntityKindProduct {
		query.Set("orderby", "menu_order")
		query.Set("order", "asc")
	} else {
		query.Set("orderby", "date")
		query.Set("order", "desc")
	}

	body, err := c.get(ctx, path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	records, err := decodePage(req.Kind, req.SiteID, body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s page %d: %w", domain.ErrTransport, req.Kind, req.Page, err)
	}

	c.logger.Debug("fetched page", "kind", req.Kind, "site_id", req.SiteID, "page", req.Page, "count", len(records))
	return records, nil
}

func (c *Client) get(ctx context.Context, pathAndQuery string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+pathAndQuery, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(c.key, c.secret)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("store API error %d", resp.StatusCode)
			c.logger.Warn("retryable store response", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("store API error %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		if readErr != nil {
			return nil, fmt.Errorf("read body: %w", readErr)
		}
		return body, nil
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", c.maxRetries+1, lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func decodePage(kind domain.EntityKind, siteID int64, body []byte) ([]*domain.Record, error) {
	switch kind {
	case domain.EntityKindProduct:
		var page []productDTO
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		records := make([]*domain.Record, len(page))
		for i := range page {
			p := page[i].toDomain()
			records[i] = p.ToRecord(siteID)
		}
		return records, nil

	case domain.EntityKindOrder:
		var page []orderDTO
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		records := make([]*domain.Record, len(page))
		for i := range page {
			o := page[i].toDomain()
			records[i] = o.ToRecord(siteID)
		}
		return records, nil

	case domain.EntityKindRefund:
		var page []refundDTO
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		records := make([]*domain.Record, len(page))
		for i := range page {
			r := page[i].toDomain()
			records[i] = r.ToRecord(siteID)
		}
		return records, nil
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}
