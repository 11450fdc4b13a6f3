package position

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"apex_hunter_go/risk"

	"github.com/google/uuid"
)

// Book holds every open position, at most one per (strategy, symbol) key.
// Positions are only mutated through Do so readers always see consistent copies.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Open materializes an approved proposal. An occupied key returns ErrPositionExists
// and leaves the existing position untouched; an inconsistent proposal returns ErrInvariant.
func (b *Book) Open(p risk.Proposal, entryTime time.Time) (Position, error) {
	pos := &Position{
		ID:                uuid.NewString(),
		StrategyID:        p.StrategyID,
		Symbol:            p.Symbol,
		Side:              p.Side,
		EntryTime:         entryTime,
		EntryPrice:        p.EntryPrice,
		Leverage:          p.Leverage,
		SizeUSD:           p.SizeUSD,
		StopLoss:          p.StopLoss,
		TakeProfit:        p.TakeProfit,
		InitialStopLoss:   p.StopLoss,
		InitialTakeProfit: p.TakeProfit,
		HighestPrice:      p.EntryPrice,
		LowestPrice:       p.EntryPrice,
		TrailingTPExtreme: p.EntryPrice,
		Confidence:        p.Confidence,
		State:             StateOpened,
	}
	if err := pos.validate(true); err != nil {
		return Position{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.positions[pos.Key()]; exists {
		return Position{}, fmt.Errorf("%s: %w", pos.Key(), ErrPositionExists)
	}
	b.positions[pos.Key()] = pos
	return *pos, nil
}

// Get returns a copy of the position for a key.
func (b *Book) Get(strategyID, symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[Key(strategyID, symbol)]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Do runs fn on the live position under the book lock. It reports whether the key was open.
func (b *Book) Do(strategyID, symbol string, fn func(p *Position)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[Key(strategyID, symbol)]
	if !ok {
		return false
	}
	fn(pos)
	return true
}

// Remove deletes the position and returns its final copy.
func (b *Book) Remove(strategyID, symbol string) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := Key(strategyID, symbol)
	pos, ok := b.positions[key]
	if !ok {
		return Position{}, false
	}
	delete(b.positions, key)
	return *pos, true
}

// SymbolsForStrategy lists the symbols a strategy currently holds, sorted.
func (b *Book) SymbolsForStrategy(strategyID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for _, pos := range b.positions {
		if pos.StrategyID == strategyID {
			out = append(out, pos.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// All returns copies of every open position ordered by key.
func (b *Book) All() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// Restore loads persisted positions. Invalid or duplicate entries are skipped and reported.
func (b *Book) Restore(positions []Position) []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for i := range positions {
		pos := positions[i]
		if err := pos.validate(false); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, exists := b.positions[pos.Key()]; exists {
			errs = append(errs, fmt.Errorf("%s: %w", pos.Key(), ErrPositionExists))
			continue
		}
		if pos.ID == "" {
			pos.ID = uuid.NewString()
		}
		b.positions[pos.Key()] = &pos
	}
	return errs
}
