package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"apex_hunter_go/exchange"
	"apex_hunter_go/logs"
	"apex_hunter_go/metrics"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"
	"apex_hunter_go/strategy"
)

// processDesk is one (strategy, symbol) tick: update trailing, check exit, then evaluate a new entry.
func (e *Engine) processDesk(ctx context.Context, d *desk, symbol string, price float64, candles *candleCache) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, open := e.book.Get(d.id, symbol); open {
		e.manageOpen(d, symbol, price)
		return
	}
	if ctx.Err() != nil {
		return
	}
	e.evaluateEntry(d, symbol, price, candles)
}

// manageOpen applies trailing rules and closes the position if a level was hit.
// A position closed on this tick is not replaced until the next tick.
func (e *Engine) manageOpen(d *desk, symbol string, price float64) {
	now := e.now()
	var (
		updates []position.TrailingUpdate
		trade   position.Trade
		exited  bool
	)
	e.book.Do(d.id, symbol, func(p *position.Position) {
		updates = e.trailer.Update(p, price, now)
		var reason position.ExitReason
		if reason, exited = position.CheckExit(p, price); exited {
			trade = position.Close(p, price, reason, now)
		}
	})

	for _, u := range updates {
		e.emitTrailing(u)
	}
	if !exited {
		return
	}
	e.book.Remove(d.id, symbol)
	e.settle(d, trade)
}

// settle books a closed trade into the account and feeds the risk state.
func (e *Engine) settle(d *desk, trade position.Trade) {
	applied := d.account.ApplyOutcome(trade.PnLUSD)
	if applied != trade.PnLUSD {
		logs.Warnf("[Engine] %s %s loss of $%.4f capped at remaining balance $%.4f",
			d.id, trade.Symbol, -trade.PnLUSD, -applied)
		trade.PnLUSD = applied
	}
	trade.BalanceAfter = d.account.Balance()

	d.risk.RecordTradeResult(trade.IsWin(), trade.PnLUSD)
	d.risk.UpdatePeakBalance(d.account.PeakBalance())

	logs.WithFields(logs.Fields{
		"strategy": d.id,
		"symbol":   trade.Symbol,
		"side":     trade.Side,
		"reason":   trade.ExitReason,
		"exit":     trade.ExitPrice,
		"pnl_usd":  trade.PnLUSD,
		"pnl_pct":  trade.PnLPercent,
		"balance":  trade.BalanceAfter,
	}).Info("[Engine] Position closed")
	metrics.RecordTrade(d.id, string(trade.ExitReason), trade.IsWin())

	e.safely("journal trade", func() {
		if e.journal != nil {
			if err := e.journal.RecordTrade(trade); err != nil {
				logs.Errorf("[Journal] %v", err)
			}
		}
	})
	e.safely("notify exit", func() {
		if e.notifier != nil {
			e.notifier.NotifyExit(trade)
		}
	})
	e.publish(Event{Type: EventExit, At: trade.ExitTime, StrategyID: d.id, Symbol: trade.Symbol, Data: trade})
}

func (e *Engine) emitTrailing(u position.TrailingUpdate) {
	logs.Infof("[Trailing] %s %s %s at %.4f: %.4f -> %.4f", u.StrategyID, u.Symbol, u.Kind, u.Price, u.OldValue, u.NewValue)
	metrics.TrailingUpdates.WithLabelValues(u.StrategyID, string(u.Kind)).Inc()
	e.safely("journal trailing update", func() {
		if e.journal != nil {
			if err := e.journal.RecordTrailingUpdate(u); err != nil {
				logs.Errorf("[Journal] %v", err)
			}
		}
	})
	e.safely("notify trailing update", func() {
		if e.notifier != nil {
			e.notifier.NotifyTrailingUpdate(u)
		}
	})
	e.publish(Event{Type: EventTrailing, At: u.At, StrategyID: u.StrategyID, Symbol: u.Symbol, Data: u})
}

// evaluateEntry asks the producer for a signal and pushes it through the risk chain.
func (e *Engine) evaluateEntry(d *desk, symbol string, price float64, candles *candleCache) {
	history, err := candles.get()
	if err != nil {
		logs.Warnf("[Engine] %s: candle fetch for %s failed: %v", d.id, symbol, err)
		metrics.FeedErrors.WithLabelValues(symbol, "candles").Inc()
		return
	}

	var sig *strategy.Signal
	e.safely("signal producer "+d.id, func() {
		sig, err = d.producer.GenerateSignal(history)
	})
	if err != nil {
		logs.Warnf("[Engine] %s: signal producer failed for %s: %v", d.id, symbol, err)
		return
	}
	if sig == nil {
		return
	}
	if err := e.checkSignal(sig); err != nil {
		logs.Warnf("[Engine] %s: discarding malformed signal for %s: %v", d.id, symbol, err)
		return
	}

	acct := d.accountState(e.book.SymbolsForStrategy(d.id))
	proposal := risk.Proposal{
		Symbol:       symbol,
		Side:         sig.Side,
		EntryPrice:   sig.EntryPrice,
		CurrentPrice: price,
		Leverage:     d.risk.Leverage(sig.Confidence, acct.DrawdownPercent),
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
		StrategyID:   d.id,
		Confidence:   sig.Confidence,
	}

	approved, rej := d.risk.Evaluate(proposal, acct)
	if rej != nil {
		e.reject(*rej)
		return
	}
	metrics.RiskApprovals.WithLabelValues(d.id).Inc()

	pos, err := e.book.Open(*approved, e.now())
	if err != nil {
		if errors.Is(err, position.ErrInvariant) {
			logs.Errorf("[Engine] %s: approved proposal for %s violates position invariants: %v", d.id, symbol, err)
			d.risk.RecordCriticalFailure(fmt.Sprintf("invariant violation on %s", symbol))
			return
		}
		logs.Warnf("[Engine] %s: %v", d.id, err)
		return
	}
	d.entries++
	d.leverageSum += pos.Leverage

	logs.WithFields(logs.Fields{
		"strategy":    d.id,
		"symbol":      symbol,
		"side":        pos.Side,
		"entry":       pos.EntryPrice,
		"size_usd":    pos.SizeUSD,
		"leverage":    pos.Leverage,
		"stop_loss":   pos.StopLoss,
		"take_profit": pos.TakeProfit,
	}).Info("[Engine] Position opened")

	e.safely("notify entry", func() {
		if e.notifier != nil {
			e.notifier.NotifyEntry(pos)
		}
	})
	e.publish(Event{Type: EventEntry, At: pos.EntryTime, StrategyID: d.id, Symbol: symbol, Data: pos})
}

func (e *Engine) reject(r risk.Rejection) {
	metrics.RecordRejection(r.StrategyID, r.Layer)
	e.safely("journal rejection", func() {
		if e.journal != nil {
			if err := e.journal.RecordRejection(r); err != nil {
				logs.Errorf("[Journal] %v", err)
			}
		}
	})
	e.publish(Event{Type: EventRejection, At: e.now(), StrategyID: r.StrategyID, Symbol: r.Symbol, Message: r.String(), Data: r})
}

// checkSignal rejects untrusted producer output before it reaches the chain.
// A zero take-profit is filled from the configured percent.
func (e *Engine) checkSignal(sig *strategy.Signal) error {
	if !sig.Side.Valid() {
		return fmt.Errorf("invalid side '%s'", sig.Side)
	}
	if !exchange.ValidPrice(sig.EntryPrice) {
		return fmt.Errorf("invalid entry price %v", sig.EntryPrice)
	}
	if math.IsNaN(sig.Confidence) || sig.Confidence < 0 || sig.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", sig.Confidence)
	}
	dir := sig.Side.Direction()
	if sig.TakeProfit == 0 {
		sig.TakeProfit = sig.EntryPrice * (1 + dir*e.cfg.Risk.TakeProfitPercent/100)
	}
	if !exchange.ValidPrice(sig.TakeProfit) || dir*(sig.TakeProfit-sig.EntryPrice) <= 0 {
		return fmt.Errorf("take profit %v is not beyond entry %v for %s", sig.TakeProfit, sig.EntryPrice, sig.Side)
	}
	return nil
}

// accountState is the read-only view the risk chain evaluates against. Caller holds d.mu.
func (d *desk) accountState(open []string) risk.AccountState {
	snap := d.account.Snapshot()
	return risk.AccountState{
		StrategyID:        d.id,
		Balance:           snap.Balance,
		PeakBalance:       snap.PeakBalance,
		InitialCapital:    snap.InitialCapital,
		DrawdownPercent:   snap.DrawdownPercent,
		OpenPositions:     open,
		ConsecutiveLosses: snap.ConsecutiveLosses,
		RecentTrades:      snap.RecentTrades,
	}
}
