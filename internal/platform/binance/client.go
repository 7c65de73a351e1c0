// Package binance is a minimal REST client for Binance spot market data.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// maxKlineLimit is the largest page the klines endpoint serves.
const maxKlineLimit = 1000

// ClientConfig holds the parameters for New.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// Client fetches candles from the Binance spot REST API. Requests are paced
// by a token bucket so concurrent pair evaluations stay under the exchange
// weight limits.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Client.
func New(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// GetCandles returns up to count most recent candles for symbol (either
// "ATOM/USDT" or "ATOMUSDT") at the given interval, oldest first. An unknown
// symbol yields domain.ErrNotFound.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, count int) ([]domain.Candle, error) {
	if count <= 0 || count > maxKlineLimit {
		return nil, fmt.Errorf("binance: klines limit %d out of range 1-%d", count, maxKlineLimit)
	}
	params := url.Values{}
	params.Set("symbol", Symbol(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(count))

	body, err := c.doGet(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines %s: %w", symbol, err)
	}
	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance: kline %s[%d]: %w", symbol, i, err)
		}
		candles = append(candles, k)
	}
	return candles, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doGet(ctx, "/api/v3/ping", nil)
	return err
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr APIError
	_ = json.Unmarshal(body, &apiErr)

	bodyStr := string(body)
	switch {
	case apiErr.Code == codeInvalidSymbol, statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests, statusCode == 418:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
