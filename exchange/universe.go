package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"apex_hunter_go/logs"
)

// TopVolume picks the most traded symbols quoted in one asset. The list is cached for
// refresh; when a fetch fails the last good list is kept, or fallback if there is none.
type TopVolume struct {
	mu        sync.Mutex
	source    TickerSource
	topN      int
	minVolume float64
	quote     string
	refresh   time.Duration
	fallback  []string
	now       func() time.Time

	cached    []string
	fetchedAt time.Time
}

func NewTopVolume(source TickerSource, topN int, minQuoteVolume float64, quoteAsset string, refresh time.Duration, fallback []string) *TopVolume {
	return &TopVolume{
		source:    source,
		topN:      topN,
		minVolume: minQuoteVolume,
		quote:     strings.ToUpper(quoteAsset),
		refresh:   refresh,
		fallback:  append([]string(nil), fallback...),
		now:       time.Now,
	}
}

// Symbols returns the current selection, refreshing it when the cache has expired.
func (u *TopVolume) Symbols(ctx context.Context) []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cached != nil && u.now().Sub(u.fetchedAt) < u.refresh {
		return append([]string(nil), u.cached...)
	}

	logs.Infof("[Universe] Fetching top %d %s pairs by 24h volume...", u.topN, u.quote)
	tickers, err := u.source.Get24hTickers(ctx)
	if err != nil {
		if u.cached != nil {
			logs.Errorf("[Universe] Ticker fetch failed, keeping previous %d pairs: %v", len(u.cached), err)
			return append([]string(nil), u.cached...)
		}
		logs.Errorf("[Universe] Ticker fetch failed, using fallback pairs %v: %v", u.fallback, err)
		return append([]string(nil), u.fallback...)
	}

	picked := rankByVolume(tickers, u.quote, u.minVolume, u.topN)
	if len(picked) == 0 {
		logs.Warnf("[Universe] No %s pair above $%.0f volume, using fallback pairs %v", u.quote, u.minVolume, u.fallback)
		return append([]string(nil), u.fallback...)
	}
	u.cached = picked
	u.fetchedAt = u.now()
	logs.Infof("[Universe] Selected %d pairs (min volume $%.0f): %s", len(picked), u.minVolume, strings.Join(picked, ", "))
	return append([]string(nil), picked...)
}

func rankByVolume(tickers []Ticker24h, quote string, minVolume float64, topN int) []string {
	eligible := make([]Ticker24h, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, quote) || t.QuoteVolume <= 0 || t.QuoteVolume < minVolume {
			continue
		}
		eligible = append(eligible, t)
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].QuoteVolume > eligible[j].QuoteVolume })
	if len(eligible) > topN {
		eligible = eligible[:topN]
	}
	out := make([]string, len(eligible))
	for i, t := range eligible {
		out[i] = t.Symbol
	}
	return out
}
