package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"apex_hunter_go/logs"
)

//
// Random-walk market used in simulation mode and in tests
//

// Ensure MockClient implements Feed and TickerSource
var (
	_ Feed         = (*MockClient)(nil)
	_ TickerSource = (*MockClient)(nil)
)

// DefaultMockUniverse is what the simulator lists in its 24h tickers unless SetUniverse is called.
var DefaultMockUniverse = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT",
	"DOGEUSDT", "ADAUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT",
}

type simSymbol struct {
	price   float64
	steps   int
	candles []Candle
}

// MockClient is a seeded random-walk price simulator.
// A symbol starts with warmup closed candles ending at its start price, and every
// GetLatestPrice call advances it by one step and closes another candle.
type MockClient struct {
	mu           sync.Mutex
	rng          *rand.Rand
	symbols      map[string]*simSymbol
	universe     []string
	volatility   float64 // standard deviation of one step, as a fraction
	drift        float64
	step         time.Duration
	start        time.Time
	defaultPrice float64
	warmup       int
	historyLimit int
}

// NewMockClient creates a simulator. Unknown symbols start at defaultPrice.
func NewMockClient(seed int64, defaultPrice, volatility float64) *MockClient {
	return &MockClient{
		rng:          rand.New(rand.NewSource(seed)),
		symbols:      make(map[string]*simSymbol),
		universe:     append([]string(nil), DefaultMockUniverse...),
		volatility:   volatility,
		step:         time.Minute,
		start:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		defaultPrice: defaultPrice,
		warmup:       500,
		historyLimit: 1000,
	}
}

// SetPrice moves a symbol to price. Its history is rescaled so the last close matches.
func (c *MockClient) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.symbolLocked(symbol)
	rescale(s.candles, price/s.price)
	s.price = price
}

// SetDrift sets a per-step drift, e.g. 0.001 for a steady 0.1% climb.
func (c *MockClient) SetDrift(drift float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drift = drift
}

// SetUniverse replaces the symbols reported by Get24hTickers.
func (c *MockClient) SetUniverse(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.universe = append([]string(nil), symbols...)
}

// symbolLocked returns the symbol, walking its warm-up history on first use.
func (c *MockClient) symbolLocked(symbol string) *simSymbol {
	s, ok := c.symbols[symbol]
	if ok {
		return s
	}
	s = &simSymbol{price: c.defaultPrice}
	for i := 0; i < c.warmup; i++ {
		c.advanceLocked(s)
	}
	// Pin the last close back to the start price so callers see no jump.
	rescale(s.candles, c.defaultPrice/s.price)
	s.price = c.defaultPrice
	c.symbols[symbol] = s
	logs.Debugf("[Mock Client] Simulating %s from %.4f with %d warm-up candles", symbol, c.defaultPrice, len(s.candles))
	return s
}

func rescale(candles []Candle, k float64) {
	for i := range candles {
		candles[i].Open *= k
		candles[i].High *= k
		candles[i].Low *= k
		candles[i].Close *= k
	}
}

func (c *MockClient) advanceLocked(s *simSymbol) {
	open := s.price
	ret := c.drift + c.volatility*c.rng.NormFloat64()
	closePrice := math.Max(open*(1+ret), open*0.5)
	s.price = closePrice

	high := math.Max(open, closePrice) * (1 + math.Abs(c.rng.NormFloat64())*c.volatility/2)
	low := math.Min(open, closePrice) * (1 - math.Abs(c.rng.NormFloat64())*c.volatility/2)
	s.candles = append(s.candles, Candle{
		OpenTime: c.start.Add(time.Duration(s.steps) * c.step),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   1000 * (1 + c.rng.Float64()),
	})
	s.steps++
	if len(s.candles) > c.historyLimit {
		s.candles = s.candles[len(s.candles)-c.historyLimit:]
	}
}

// GetLatestPrice advances the walk one step and returns the new price.
func (c *MockClient) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.symbolLocked(symbol)
	c.advanceLocked(s)
	if !ValidPrice(s.price) {
		return 0, fmt.Errorf("%s: %w: %v", symbol, ErrInvalidPrice, s.price)
	}
	return s.price, nil
}

// GetCandles returns the last limit simulated candles.
func (c *MockClient) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.symbolLocked(symbol)
	n := limit
	if n > len(s.candles) {
		n = len(s.candles)
	}
	out := make([]Candle, n)
	copy(out, s.candles[len(s.candles)-n:])
	return out, nil
}

// Get24hTickers summarises the last day of simulated candles for every universe symbol.
// Quote volume is close times volume summed over the window.
func (c *MockClient) Get24hTickers(ctx context.Context) ([]Ticker24h, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	window := int(24 * time.Hour / c.step)
	out := make([]Ticker24h, 0, len(c.universe))
	for _, symbol := range c.universe {
		s := c.symbolLocked(symbol)
		bars := s.candles
		if len(bars) > window {
			bars = bars[len(bars)-window:]
		}
		t := Ticker24h{Symbol: symbol, LastPrice: s.price}
		for _, b := range bars {
			t.QuoteVolume += b.Close * b.Volume
		}
		if len(bars) > 0 && bars[0].Open > 0 {
			t.PriceChangePercent = (s.price - bars[0].Open) / bars[0].Open * 100
		}
		out = append(out, t)
	}
	return out, nil
}
