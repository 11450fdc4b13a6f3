package notify

import (
	"fmt"
	"sync"
	"time"

	"apex_hunter_go/logs"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"
)

// Embed colours, also used to pick an emoji for plain-text channels.
const (
	ColorInfo    = 0x3498db
	ColorSuccess = 0x2ecc71
	ColorWarning = 0xf1c40f
	ColorDanger  = 0xe74c3c
)

// Message is one rendered notification.
type Message struct {
	Title string
	Body  string
	Color int
	At    time.Time
}

// Notifier receives lifecycle events. Implementations must not block the caller.
type Notifier interface {
	NotifyEntry(pos position.Position)
	NotifyExit(trade position.Trade)
	NotifyTrailingUpdate(u position.TrailingUpdate)
	NotifyRiskEvent(ev risk.Event)
}

// queueSize bounds the messages waiting for one channel. Beyond it new messages are dropped.
const queueSize = 256

// Channel renders events into messages and delivers them in order on one background worker.
type Channel struct {
	name    string
	deliver func(Message) error
	queue   chan Message
	wg      sync.WaitGroup
}

var _ Notifier = (*Channel)(nil)

func newChannel(name string, deliver func(Message) error) *Channel {
	c := &Channel{name: name, deliver: deliver, queue: make(chan Message, queueSize)}
	go c.run()
	return c
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) NotifyEntry(pos position.Position) { c.dispatch(EntryMessage(pos)) }
func (c *Channel) NotifyExit(trade position.Trade)   { c.dispatch(ExitMessage(trade)) }
func (c *Channel) NotifyTrailingUpdate(u position.TrailingUpdate) {
	c.dispatch(TrailingMessage(u))
}
func (c *Channel) NotifyRiskEvent(ev risk.Event) { c.dispatch(RiskMessage(ev)) }

// Wait blocks until every queued message has been delivered. Used on shutdown and in tests.
func (c *Channel) Wait() { c.wg.Wait() }

func (c *Channel) dispatch(msg Message) {
	c.wg.Add(1)
	select {
	case c.queue <- msg:
	default:
		c.wg.Done()
		logs.Warnf("[Notify] %s queue full, dropping %q", c.name, msg.Title)
	}
}

func (c *Channel) run() {
	for msg := range c.queue {
		c.send(msg)
	}
}

func (c *Channel) send(msg Message) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("[Notify] %s delivery panicked: %v", c.name, r)
		}
	}()
	if err := c.deliver(msg); err != nil {
		logs.Warnf("[Notify] %s delivery failed: %v", c.name, err)
	}
}

func EntryMessage(pos position.Position) Message {
	return Message{
		Title: fmt.Sprintf("📈 %s opened %s %s", pos.StrategyID, pos.Side, pos.Symbol),
		Body: fmt.Sprintf("Entry %.4f | Size $%.2f | Leverage %dx\nStop %.4f | Take profit %.4f | Confidence %.2f",
			pos.EntryPrice, pos.SizeUSD, pos.Leverage, pos.StopLoss, pos.TakeProfit, pos.Confidence),
		Color: ColorInfo,
		At:    pos.EntryTime,
	}
}

func ExitMessage(t position.Trade) Message {
	color, verdict := ColorSuccess, "WIN"
	if !t.IsWin() {
		color, verdict = ColorDanger, "LOSS"
	}
	return Message{
		Title: fmt.Sprintf("%s %s closed %s %s (%s)", verdict, t.StrategyID, t.Side, t.Symbol, t.ExitReason),
		Body: fmt.Sprintf("Entry %.4f -> Exit %.4f | Leverage %dx\nPnL $%.4f (%.2f%%) | Balance $%.2f\nHeld %s",
			t.EntryPrice, t.ExitPrice, t.Leverage, t.PnLUSD, t.PnLPercent, t.BalanceAfter,
			t.ExitTime.Sub(t.EntryTime).Round(time.Second)),
		Color: color,
		At:    t.ExitTime,
	}
}

func TrailingMessage(u position.TrailingUpdate) Message {
	return Message{
		Title: fmt.Sprintf("🎯 %s %s %s", u.StrategyID, u.Symbol, u.Kind),
		Body: fmt.Sprintf("%s at %.4f (profit %.2f%%): %.4f -> %.4f",
			u.Side, u.Price, u.ProfitPercent, u.OldValue, u.NewValue),
		Color: ColorInfo,
		At:    u.At,
	}
}

func RiskMessage(ev risk.Event) Message {
	msg := Message{Title: "⚠️ Risk event", Body: ev.Description(), Color: ColorWarning, At: time.Now()}
	switch ev.(type) {
	case *risk.HaltEvent:
		msg.Title = "🛑 Circuit breaker halt"
		msg.Color = ColorDanger
	case *risk.ResumeEvent:
		msg.Title = "✅ Trading resumed"
		msg.Color = ColorSuccess
	case *risk.DrawdownLimitEvent:
		msg.Title = "🛑 Drawdown limit"
		msg.Color = ColorDanger
	}
	return msg
}

// Fanout forwards every event to each notifier in order.
type Fanout []Notifier

func NewFanout(ns ...Notifier) Fanout {
	out := make(Fanout, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (f Fanout) NotifyEntry(pos position.Position) {
	for _, n := range f {
		n.NotifyEntry(pos)
	}
}

func (f Fanout) NotifyExit(trade position.Trade) {
	for _, n := range f {
		n.NotifyExit(trade)
	}
}

func (f Fanout) NotifyTrailingUpdate(u position.TrailingUpdate) {
	for _, n := range f {
		n.NotifyTrailingUpdate(u)
	}
}

func (f Fanout) NotifyRiskEvent(ev risk.Event) {
	for _, n := range f {
		n.NotifyRiskEvent(ev)
	}
}

// Wait waits on every member that tracks in-flight deliveries.
func (f Fanout) Wait() {
	for _, n := range f {
		if w, ok := n.(interface{ Wait() }); ok {
			w.Wait()
		}
	}
}

// LogNotifier writes events to the application log. It is always part of the fan-out.
type LogNotifier struct{}

func (LogNotifier) NotifyEntry(pos position.Position) {
	logs.WithFields(logs.Fields{
		"strategy": pos.StrategyID, "symbol": pos.Symbol, "side": pos.Side,
		"entry": pos.EntryPrice, "size_usd": pos.SizeUSD, "leverage": pos.Leverage,
		"stop_loss": pos.StopLoss, "take_profit": pos.TakeProfit,
	}).Info("[Notify] Position opened")
}

func (LogNotifier) NotifyExit(t position.Trade) {
	logs.WithFields(logs.Fields{
		"strategy": t.StrategyID, "symbol": t.Symbol, "side": t.Side, "reason": t.ExitReason,
		"exit": t.ExitPrice, "pnl_usd": t.PnLUSD, "pnl_percent": t.PnLPercent, "balance": t.BalanceAfter,
	}).Info("[Notify] Position closed")
}

func (LogNotifier) NotifyTrailingUpdate(u position.TrailingUpdate) {
	logs.WithFields(logs.Fields{
		"strategy": u.StrategyID, "symbol": u.Symbol, "kind": u.Kind,
		"price": u.Price, "old": u.OldValue, "new": u.NewValue,
	}).Info("[Trailing] Level moved")
}

func (LogNotifier) NotifyRiskEvent(ev risk.Event) {
	logs.Warnf("[Notify] %s", ev.Description())
}
