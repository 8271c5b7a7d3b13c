package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mtfbot/internal/indicator"
)

// RejectedError is a venue response whose application code was not the
// success code. The HTTP exchange itself succeeded.
type RejectedError struct {
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("exchange rejected request: code=%d message=%q", e.Code, e.Message)
}

// Config holds the REST client settings. Durations are milliseconds, as
// elsewhere in the app config.
type Config struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutMS      int    `yaml:"timeout_ms"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryBackoffMS int    `yaml:"retry_backoff_ms"`
}

// Client talks to the futures venue over REST. Transient transport
// failures (network errors, 5xx) are retried with exponential backoff up
// to MaxAttempts; application-level rejections are never retried.
type Client struct {
	log         zerolog.Logger
	client      *http.Client
	baseURL     string
	apiKey      string
	maxAttempts int
	backoff     time.Duration
}

// NewClient constructs a REST client with sane defaults for anything unset.
func NewClient(log zerolog.Logger, cfg Config) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := time.Duration(cfg.RetryBackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		log:         log,
		client:      &http.Client{Timeout: timeout},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		maxAttempts: attempts,
		backoff:     backoff,
	}
}

// FetchKlines returns up to count bars for symbol/timeframe, oldest first.
// The venue already orders them oldest to newest; unclosed-bar handling is
// the caller's concern (indicator.DropUnclosed).
func (c *Client) FetchKlines(ctx context.Context, symbol, timeframe string, count int) ([]indicator.Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("granularity", timeframe)
	q.Set("limit", strconv.Itoa(count))

	var raw []wireKline
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/market/candles?"+q.Encode(), nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, timeframe, err)
	}

	klines := make([]indicator.Kline, 0, len(raw))
	for _, wk := range raw {
		k, err := wk.toKline()
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("skipping malformed kline")
			continue
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// Instrument fetches the contract spec for one symbol.
func (c *Client) Instrument(ctx context.Context, symbol string) (Instrument, error) {
	var inst Instrument
	path := "/api/v1/market/instrument?symbol=" + url.QueryEscape(symbol)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &inst); err != nil {
		return Instrument{}, fmt.Errorf("fetch instrument %s: %w", symbol, err)
	}
	return inst, nil
}

// MarkPrice fetches the current mark price for symbol.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	var tk wireTicker
	path := "/api/v1/market/ticker?symbol=" + url.QueryEscape(symbol)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &tk); err != nil {
		return 0, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	px, err := strconv.ParseFloat(tk.MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mark price %q for %s: %w", tk.MarkPrice, symbol, err)
	}
	return px, nil
}

// Positions returns the open positions for symbol (empty slice when flat).
func (c *Client) Positions(ctx context.Context, symbol string) ([]Position, error) {
	var positions []Position
	path := "/api/v1/account/positions?symbol=" + url.QueryEscape(symbol)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &positions); err != nil {
		return nil, fmt.Errorf("fetch positions %s: %w", symbol, err)
	}
	return positions, nil
}

// OpenOrders returns the resting orders for symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	var orders []OpenOrder
	path := "/api/v1/trade/orders/open?symbol=" + url.QueryEscape(symbol)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, fmt.Errorf("fetch open orders %s: %w", symbol, err)
	}
	return orders, nil
}

// SubmitOrder submits req and returns the venue ack. A response whose
// application code differs from the success code comes back as
// *RejectedError even when HTTP said 200.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	var ack OrderAck
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/trade/orders", req, &ack); err != nil {
		return OrderAck{}, err
	}
	return ack, nil
}

// CancelOrder cancels an order by client order id.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	body := map[string]string{"symbol": symbol, "client_oid": clientOrderID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/trade/orders/cancel", body, nil); err != nil {
		return fmt.Errorf("cancel order %s %s: %w", symbol, clientOrderID, err)
	}
	return nil
}

// doJSON performs one REST call with bounded retries. Only transport
// failures and 5xx responses are retried; 4xx and non-success application
// codes fail immediately.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		retryable, err := c.once(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("transient exchange error, retrying")
	}
	return fmt.Errorf("exchange request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out interface{}) (retryable bool, err error) {
	var reader *bytes.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return true, fmt.Errorf("decode response: %w", err)
	}
	if env.Code != successCode {
		return false, &RejectedError{Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("decode response data: %w", err)
		}
	}
	return false, nil
}

func (wk wireKline) toKline() (indicator.Kline, error) {
	open, err := strconv.ParseFloat(wk.Open, 64)
	if err != nil {
		return indicator.Kline{}, fmt.Errorf("open %q: %w", wk.Open, err)
	}
	high, err := strconv.ParseFloat(wk.High, 64)
	if err != nil {
		return indicator.Kline{}, fmt.Errorf("high %q: %w", wk.High, err)
	}
	low, err := strconv.ParseFloat(wk.Low, 64)
	if err != nil {
		return indicator.Kline{}, fmt.Errorf("low %q: %w", wk.Low, err)
	}
	closePx, err := strconv.ParseFloat(wk.Close, 64)
	if err != nil {
		return indicator.Kline{}, fmt.Errorf("close %q: %w", wk.Close, err)
	}
	vol, err := strconv.ParseFloat(wk.Volume, 64)
	if err != nil {
		return indicator.Kline{}, fmt.Errorf("volume %q: %w", wk.Volume, err)
	}
	return indicator.Kline{
		Timestamp: time.UnixMilli(wk.Ts),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    vol,
	}, nil
}
