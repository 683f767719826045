// Package lsx talks to the LS-X web site: the live trade feed, the trading calendar and the
// published Kursblatt reports.
package lsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/FACorreiaa/lsx-collector/pkg/config"
)

// Paths below the site base URL.
const (
	TradesTodayPath     = "/_rpc/json/.lstc/instrument/list/lsxtradestoday"
	TradesYesterdayPath = "/_rpc/json/.lstc/instrument/list/lsxtradesyesterday"
	ReportsPath         = "/de/kursblatt"
	CalendarPath        = "/de/wissen"
)

// ErrUnexpectedStatus is returned for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Client performs throttled requests against the LS-X site.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient creates a client from the sources configuration.
func NewClient(cfg config.SourcesConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}, nil
}

// URL resolves ref against the base URL.
func (c *Client) URL(ref string) string {
	u, err := c.baseURL.Parse(ref)
	if err != nil {
		return c.baseURL.String() + ref
	}
	return u.String()
}

// Wait blocks until the rate limiter admits one request.
func (c *Client) Wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// Get fetches rawURL. The caller closes the body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	c.logger.Debug("fetched",
		slog.String("url", rawURL),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, rawURL)
	}
	return resp, nil
}
