// exchange/client.go
package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"apex_hunter_go/logs"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ensure APIClient struct implements Feed and TickerSource
var (
	_ Feed         = (*APIClient)(nil)
	_ TickerSource = (*APIClient)(nil)
)

// DefaultBaseURL is the Binance USD-M futures REST endpoint.
const DefaultBaseURL = "https://fapi.binance.com"

// APIClient reads public market data from the Binance futures REST API.
type APIClient struct {
	ApiKey  string
	BaseURL string
	Http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// Binance API error response struct
type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type ticker24hr struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

// NewAPIClient creates a new API client instance paced at requestsPerSecond.
func NewAPIClient(apiKey, baseURL string, timeoutSeconds int, requestsPerSecond float64, burst int) *APIClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &APIClient{
		ApiKey:  apiKey,
		BaseURL: baseURL,
		Http:    &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		now:     time.Now,
	}
}

// sendRequest waits for the limiter, performs a GET and decodes the JSON body into target.
func (c *APIClient) sendRequest(ctx context.Context, endpoint string, params url.Values, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	fullURL := c.BaseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.ApiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.ApiKey)
	}

	resp, err := c.Http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp binanceError
		if json.Unmarshal(body, &errResp) == nil && errResp.Msg != "" {
			return fmt.Errorf("API error: %s (code: %d)", errResp.Msg, errResp.Code)
		}
		return fmt.Errorf("API error: HTTP %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode JSON: %w, body: %s", err, string(body))
	}
	return nil
}

// GetLatestPrice gets the latest price for a trading pair.
func (c *APIClient) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var tp tickerPrice
	if err := c.sendRequest(ctx, "/fapi/v1/ticker/price", params, &tp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price '%s' for %s: %w", tp.Price, symbol, err)
	}
	if !ValidPrice(price) {
		return 0, fmt.Errorf("%s: %w: %v", symbol, ErrInvalidPrice, price)
	}
	return price, nil
}

// GetCandles fetches klines. Each kline is a positional array:
// [openTime, open, high, low, close, volume, closeTime, ...].
// The bar still forming is dropped, so one extra bar is requested.
func (c *APIClient) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit+1))

	var raw [][]interface{}
	if err := c.sendRequest(ctx, "/fapi/v1/klines", params, &raw); err != nil {
		return nil, err
	}

	now := c.now()
	candles := make([]Candle, 0, len(raw))
	for i, k := range raw {
		if len(k) < 7 {
			return nil, fmt.Errorf("kline %d for %s has %d fields, want at least 7", i, symbol, len(k))
		}
		openMs, ok := k[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d for %s: open time is %T", i, symbol, k[0])
		}
		closeMs, ok := k[6].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d for %s: close time is %T", i, symbol, k[6])
		}
		if time.UnixMilli(int64(closeMs)).After(now) {
			continue
		}
		var vals [5]float64
		for j := 0; j < 5; j++ {
			v, err := parseNumber(k[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d for %s field %d: %w", i, symbol, j+1, err)
			}
			vals[j] = v
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(int64(openMs)).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	logs.Debugf("[API Client] Fetched %d closed candles for %s (%s)", len(candles), symbol, timeframe)
	return candles, nil
}

// Get24hTickers returns the rolling 24h summary for every futures symbol.
func (c *APIClient) Get24hTickers(ctx context.Context) ([]Ticker24h, error) {
	var raw []ticker24hr
	if err := c.sendRequest(ctx, "/fapi/v1/ticker/24hr", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Ticker24h, 0, len(raw))
	for _, r := range raw {
		last, err := strconv.ParseFloat(r.LastPrice, 64)
		if err != nil {
			logs.Debugf("[API Client] Skipping 24h ticker %s: bad last price '%s'", r.Symbol, r.LastPrice)
			continue
		}
		vol, err := strconv.ParseFloat(r.QuoteVolume, 64)
		if err != nil {
			logs.Debugf("[API Client] Skipping 24h ticker %s: bad quote volume '%s'", r.Symbol, r.QuoteVolume)
			continue
		}
		change, _ := strconv.ParseFloat(r.PriceChangePercent, 64)
		out = append(out, Ticker24h{Symbol: r.Symbol, LastPrice: last, PriceChangePercent: change, QuoteVolume: vol})
	}
	return out, nil
}

func parseNumber(v interface{}) (float64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseFloat(n, 64)
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
