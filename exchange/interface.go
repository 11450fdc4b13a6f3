package exchange

import (
	"context"
	"errors"
	"math"
	"time"
)

// PositionSide defines the position direction.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Valid reports whether the side is Long or Short.
func (s PositionSide) Valid() bool {
	return s == Long || s == Short
}

// Direction is +1 for long and -1 for short.
func (s PositionSide) Direction() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// ErrInvalidPrice is returned when a feed produces a price that must not reach P&L math.
var ErrInvalidPrice = errors.New("invalid price")

// ValidPrice rejects zero, negative, NaN and infinite prices.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Feed is the market data surface the engine consumes.
type Feed interface {
	// GetLatestPrice returns the last traded price for a symbol.
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)

	// GetCandles returns up to limit closed bars, oldest first.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// Ticker24h is the rolling 24 hour summary of one symbol.
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// TickerSource lists 24 hour tickers for every symbol the venue trades.
type TickerSource interface {
	Get24hTickers(ctx context.Context) ([]Ticker24h, error)
}
