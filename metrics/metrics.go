package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Risk chain ============

// RiskRejections counts vetoes by the layer that issued them.
var RiskRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Trade proposals rejected by the risk chain",
	},
	[]string{"strategy", "layer"},
)

var RiskApprovals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "risk",
		Name:      "approvals_total",
		Help:      "Trade proposals approved by the risk chain",
	},
	[]string{"strategy"},
)

var BreakerHalts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "risk",
		Name:      "breaker_halts_total",
		Help:      "Circuit breaker halts",
	},
	[]string{"strategy"},
)

var Halted = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "apex",
		Subsystem: "risk",
		Name:      "halted",
		Help:      "1 while the strategy's circuit breaker is halting new entries",
	},
	[]string{"strategy"},
)

// ============ Positions ============

var TradesClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "trading",
		Name:      "trades_closed_total",
		Help:      "Closed positions by exit reason and result",
	},
	[]string{"strategy", "reason", "result"},
)

var TrailingUpdates = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "trading",
		Name:      "trailing_updates_total",
		Help:      "Trailing stop and take-profit activations and moves",
	},
	[]string{"strategy", "kind"},
)

var OpenPositions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "apex",
		Subsystem: "trading",
		Name:      "open_positions",
		Help:      "Currently open positions",
	},
	[]string{"strategy"},
)

// ============ Capital ============

var Balance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "apex",
		Subsystem: "capital",
		Name:      "balance_usd",
		Help:      "Strategy account balance",
	},
	[]string{"strategy"},
)

var DrawdownPercent = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "apex",
		Subsystem: "capital",
		Name:      "drawdown_percent",
		Help:      "Drawdown from the strategy's peak balance",
	},
	[]string{"strategy"},
)

// ============ Engine ============

// CycleDuration observes one full RunCycle, in seconds.
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "apex",
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one trade cycle",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

var FeedErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apex",
		Subsystem: "engine",
		Name:      "feed_errors_total",
		Help:      "Price or candle fetches that failed or returned invalid data",
	},
	[]string{"symbol", "kind"},
)

// ============ Helpers ============

func RecordRejection(strategy, layer string) {
	RiskRejections.WithLabelValues(strategy, layer).Inc()
}

func RecordTrade(strategy, reason string, win bool) {
	result := "loss"
	if win {
		result = "win"
	}
	TradesClosed.WithLabelValues(strategy, reason, result).Inc()
}

func UpdateAccount(strategy string, balance, drawdown float64, open int, halted bool) {
	Balance.WithLabelValues(strategy).Set(balance)
	DrawdownPercent.WithLabelValues(strategy).Set(drawdown)
	OpenPositions.WithLabelValues(strategy).Set(float64(open))
	h := 0.0
	if halted {
		h = 1
	}
	Halted.WithLabelValues(strategy).Set(h)
}
