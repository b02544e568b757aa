package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTickerURL        = "https://contract.mexc.com/api/v1/contract/ticker"
	defaultSpotKlineURL     = "https://api.mexc.com/api/v3/klines"
	defaultContractKlineURL = "https://contract.mexc.com/api/v1/contract/kline"
)

// ClientOptions parameterise the MEXC market-data client.
type ClientOptions struct {
	TickerURL        string
	SpotKlineURL     string
	ContractKlineURL string
	RequestTimeout   time.Duration
	CandleTimeout    time.Duration
	UserAgent        string
	HTTPClient       *http.Client
}

// Client talks to the public MEXC spot and contract endpoints.
type Client struct {
	opts   ClientOptions
	logger zerolog.Logger
	client *http.Client
}

// NewClient constructs a market-data client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.CandleTimeout <= 0 {
		opts.CandleTimeout = 5 * time.Second
	}
	if opts.TickerURL == "" {
		opts.TickerURL = defaultTickerURL
	}
	if opts.SpotKlineURL == "" {
		opts.SpotKlineURL = defaultSpotKlineURL
	}
	if opts.ContractKlineURL == "" {
		opts.ContractKlineURL = defaultContractKlineURL
	}
	opts.ContractKlineURL = strings.TrimRight(opts.ContractKlineURL, "/")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "market_client").Logger(),
		client: client,
	}
}

type tickerEnvelope struct {
	Success bool              `json:"success"`
	Code    int               `json:"code"`
	Data    []json.RawMessage `json:"data"`
}

// ListTickers fetches every contract ticker in one request. A response with
// success=false yields an empty list rather than an error.
func (c *Client) ListTickers(ctx context.Context) ([]Ticker, error) {
	body, status, err := c.get(ctx, c.opts.TickerURL, c.opts.RequestTimeout)
	if err != nil {
		return nil, &FetchError{URL: c.opts.TickerURL, Err: err}
	}
	if status != http.StatusOK {
		return nil, &FetchError{URL: c.opts.TickerURL, Err: fmt.Errorf("unexpected status %d", status)}
	}

	var envelope tickerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ParseError{What: "ticker envelope", Err: err}
	}
	if !envelope.Success {
		c.logger.Warn().Int("code", envelope.Code).Msg("ticker endpoint returned success=false")
		return []Ticker{}, nil
	}

	tickers := make([]Ticker, 0, len(envelope.Data))
	skipped := 0
	for _, item := range envelope.Data {
		var t Ticker
		if err := json.Unmarshal(item, &t); err != nil || t.Symbol == "" {
			skipped++
			continue
		}
		tickers = append(tickers, t)
	}
	if skipped > 0 {
		c.logger.Debug().Int("skipped", skipped).Msg("ignored malformed ticker records")
	}

	return tickers, nil
}

// CandleRequest is one attempt in the candle fallback chain.
type CandleRequest struct {
	Source string
	URL    string
	// Envelope marks responses wrapped as {success, code, data}.
	Envelope bool
}

// CandleRequests lists, in order, the requests GetCandles tries for symbol.
func (c *Client) CandleRequests(symbol, interval string, limit int) []CandleRequest {
	base := BaseAsset(symbol)
	variants := []string{
		base + "USDT",
		base + "USDC",
		base,
		strings.ReplaceAll(symbol, "_", ""),
	}

	requests := make([]CandleRequest, 0, len(variants)+1)
	seen := make(map[string]bool, len(variants))
	for _, variant := range variants {
		if variant == "" || seen[variant] {
			continue
		}
		seen[variant] = true

		q := url.Values{}
		q.Set("symbol", variant)
		q.Set("interval", interval)
		q.Set("limit", strconv.Itoa(limit))
		requests = append(requests, CandleRequest{
			Source: "spot:" + variant,
			URL:    c.opts.SpotKlineURL + "?" + q.Encode(),
		})
	}

	q := url.Values{}
	q.Set("interval", ContractInterval(interval))
	q.Set("limit", strconv.Itoa(limit))
	contract := base + "_USDT"
	requests = append(requests, CandleRequest{
		Source:   "contract:" + contract,
		URL:      c.opts.ContractKlineURL + "/" + url.PathEscape(contract) + "?" + q.Encode(),
		Envelope: true,
	})

	return requests
}

// GetCandles tries each candle request in order and returns the first
// non-empty result. Failures of individual attempts are not reported; if all
// fail ErrNoCandles is returned.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	for _, req := range c.CandleRequests(symbol, interval, limit) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candles, err := c.tryCandles(ctx, req)
		if err != nil {
			c.logger.Debug().Err(err).Str("symbol", symbol).Str("source", req.Source).Msg("candle attempt failed")
			continue
		}

		if limit > 0 && len(candles) > limit {
			candles = candles[len(candles)-limit:]
		}
		c.logger.Debug().Str("symbol", symbol).Str("source", req.Source).Int("candles", len(candles)).Msg("candles fetched")
		return candles, nil
	}
	return nil, fmt.Errorf("%s: %w", symbol, ErrNoCandles)
}

type klineEnvelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) tryCandles(ctx context.Context, req CandleRequest) ([]Candle, error) {
	body, status, err := c.get(ctx, req.URL, c.opts.CandleTimeout)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	if status != http.StatusOK {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("unexpected status %d", status)}
	}

	payload := json.RawMessage(body)
	if req.Envelope {
		var envelope klineEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, &ParseError{What: "kline envelope", Err: err}
		}
		if !envelope.Success || envelope.Code != 0 {
			return nil, fmt.Errorf("kline envelope success=%t code=%d", envelope.Success, envelope.Code)
		}
		payload = envelope.Data
	}

	candles, err := ParseCandles(payload)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, errors.New("empty candle list")
	}
	return candles, nil
}

func (c *Client) get(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// ContractInterval maps spot-style intervals to the contract API's names.
func ContractInterval(interval string) string {
	switch strings.ToLower(interval) {
	case "1m":
		return "Min1"
	case "5m":
		return "Min5"
	case "15m":
		return "Min15"
	case "30m":
		return "Min30"
	case "60m", "1h":
		return "Min60"
	case "4h":
		return "Hour4"
	case "8h":
		return "Hour8"
	case "1d":
		return "Day1"
	case "1w":
		return "Week1"
	default:
		return interval
	}
}

var (
	_ TickerSource = (*Client)(nil)
	_ CandleSource = (*Client)(nil)
)
