// Package venue is the single outbound boundary to the exchange. Every call
// funnels through the shared rate limiter and the venue circuit breaker, in
// that order, so an open breaker never burns rate-limit tokens.
package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/tradegate/tradegate/internal/cache"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/logging"
	"github.com/tradegate/tradegate/internal/monitoring"
	"github.com/tradegate/tradegate/internal/ratelimit"
	"github.com/tradegate/tradegate/internal/resilience"
)

// BreakerName identifies the venue dependency in the breaker registry.
const BreakerName = "venue"

// Request weights per endpoint, in limiter units.
const (
	weightPing         = 1
	weightServerTime   = 1
	weightTicker       = 2
	weightKlines       = 2
	weightOrder        = 1
	weightOpenOrders   = 3
	weightExchangeInfo = 10
)

const tickerCacheName = "venue.ticker"

// Client wraps resty with the shared limiter, breaker registry, and a short
// TTL price cache.
type Client struct {
	http     *resty.Client
	limiter  *ratelimit.Limiter
	breakers *resilience.Registry
	caches   *cache.Manager
	metrics  *monitoring.Metrics
	logger   *logging.Logger

	apiKey         string
	apiSecret      string
	tickerTTL      time.Duration
	acquireTimeout time.Duration

	// Offset between venue server clock and ours, in milliseconds.
	timeOffset atomic.Int64
}

// NewClient builds a production HTTP client for the venue. Transport-level
// retries come from retryablehttp; admission control and fault isolation sit
// above it.
func NewClient(
	cfg config.VenueConfig,
	tickerTTL time.Duration,
	acquireTimeout time.Duration,
	limiter *ratelimit.Limiter,
	breakers *resilience.Registry,
	caches *cache.Manager,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("User-Agent", "tradegate/1.0").
		SetTransport(retryClient.HTTPClient.Transport)
	if cfg.APIKey != "" {
		httpClient.SetHeader("X-MBX-APIKEY", cfg.APIKey)
	}

	return &Client{
		http:           httpClient,
		limiter:        limiter,
		breakers:       breakers,
		caches:         caches,
		metrics:        metrics,
		logger:         logger.Named("venue"),
		apiKey:         cfg.APIKey,
		apiSecret:      cfg.APISecret,
		tickerTTL:      tickerTTL,
		acquireTimeout: acquireTimeout,
	}
}

// Invoke runs one venue operation under full admission control: tokens are
// acquired for every ceiling first, then the call goes through the breaker.
// The acquire wait is bounded even when the caller's context carries no
// deadline; a starved acquire fails with a rate-limit error instead of
// blocking indefinitely.
func (c *Client) Invoke(ctx context.Context, operation string, weight int, op func() error) error {
	acquireCtx := ctx
	if c.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, c.acquireTimeout)
		defer cancel()
	}
	if err := c.limiter.Acquire(acquireCtx, weight); err != nil {
		c.record(operation, "rate_limited", 0)
		return err
	}

	start := time.Now()
	err := c.breakers.Get(BreakerName).Do(op)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		c.record(operation, "ok", elapsed)
	case resilience.IsOpen(err):
		c.record(operation, "breaker_open", elapsed)
	default:
		c.record(operation, "error", elapsed)
	}
	return err
}

func (c *Client) record(operation, status string, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordVenueCall(operation, status, elapsed)
	}
}

// Ping checks venue connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.Invoke(ctx, "ping", weightPing, func() error {
		resp, err := c.http.R().SetContext(ctx).Get("/api/v3/ping")
		return c.checkResponse(resp, err)
	})
}

// SyncTime refreshes the server clock offset used to timestamp signed
// requests.
func (c *Client) SyncTime(ctx context.Context) error {
	var body struct {
		ServerTime int64 `json:"serverTime"`
	}
	err := c.Invoke(ctx, "time", weightServerTime, func() error {
		resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/api/v3/time")
		return c.checkResponse(resp, err)
	})
	if err != nil {
		return err
	}
	offset := body.ServerTime - time.Now().UnixMilli()
	c.timeOffset.Store(offset)
	c.logger.Debug("synced venue clock", zap.Int64("offset_ms", offset))
	return nil
}

// TickerPrice returns the latest price for a symbol. Results are cached for
// a short TTL so bursts of decisions do not hammer the ticker endpoint.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	prices := c.caches.Get(tickerCacheName)
	if v, ok := prices.Get(symbol); ok {
		return v.(float64), nil
	}

	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	err := c.Invoke(ctx, "ticker", weightTicker, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("symbol", symbol).
			SetResult(&body).
			Get("/api/v3/ticker/price")
		return c.checkResponse(resp, err)
	})
	if err != nil {
		return 0, err
	}

	price, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", body.Price, err)
	}
	prices.Set(symbol, price, c.tickerTTL)
	return price, nil
}

// ExchangeInfo fetches venue trading rules. Heavy endpoint, cached under the
// default TTL.
func (c *Client) ExchangeInfo(ctx context.Context) (map[string]any, error) {
	info := c.caches.Get("venue.exchangeinfo")
	if v, ok := info.Get("all"); ok {
		return v.(map[string]any), nil
	}

	body := make(map[string]any)
	err := c.Invoke(ctx, "exchange_info", weightExchangeInfo, func() error {
		resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/api/v3/exchangeInfo")
		return c.checkResponse(resp, err)
	})
	if err != nil {
		return nil, err
	}
	info.Set("all", body, 0)
	return body, nil
}

// signedParams stamps and signs request parameters for authenticated
// endpoints.
func (c *Client) signedParams(params url.Values) url.Values {
	ts := time.Now().UnixMilli() + c.timeOffset.Load()
	params.Set("timestamp", strconv.FormatInt(ts, 10))
	params.Set("recvWindow", "5000")

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return params
}

func (c *Client) checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("venue returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
