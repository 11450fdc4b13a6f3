package risk

import (
	"apex_hunter_go/logs"
)

// Chain runs layers in order and stops at the first rejection.
type Chain struct {
	layers []Layer
}

// NewChain builds a chain. The order of layers is part of the contract:
// later layers read fields set by earlier ones.
func NewChain(layers ...Layer) *Chain {
	return &Chain{layers: layers}
}

// Names returns the layer names in evaluation order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.layers))
	for i, l := range c.layers {
		names[i] = l.Name()
	}
	return names
}

// Evaluate passes p through every layer. It returns the approved proposal,
// or nil and the rejection of the first layer that refused it.
func (c *Chain) Evaluate(p Proposal, acct AccountState) (*Proposal, *Rejection) {
	approved := p
	for _, layer := range c.layers {
		next, rej := layer.Evaluate(approved, acct)
		if rej != nil {
			rej.Symbol = p.Symbol
			rej.StrategyID = p.StrategyID
			rej.Layer = layer.Name()
			logs.WithFields(logs.Fields{
				"strategy": rej.StrategyID,
				"symbol":   rej.Symbol,
				"layer":    rej.Layer,
				"reason":   rej.Reason,
				"details":  rej.Details,
			}).Warn("[RiskChain] Trade blocked")
			return nil, rej
		}
		logs.Debugf("[RiskChain] %s approved %s for %s", layer.Name(), p.Symbol, p.StrategyID)
		approved = next
	}
	logs.Debugf("[RiskChain] %s approved through all %d layers for %s", p.Symbol, len(c.layers), p.StrategyID)
	return &approved, nil
}
