// Package position is the in-memory materialization of executed fills
// into symbol-level positions and day-volume counters that feed the
// risk engine (spec §4.2). It is the only component allowed to mutate
// positions; all mutations happen in response to an EXECUTION_COMPLETED
// event.
package position

import (
	"sync"
	"time"

	"github.com/ksred/tradecore/internal/events"
)

// Store holds one mutex-protected row per symbol, plus a coarse lock for
// consistent snapshots, matching the locking discipline in spec §5.
type Store struct {
	mu   sync.RWMutex // guards the map itself and provides the coarse snapshot lock
	rows map[string]*symbolLock
}

type symbolLock struct {
	mu  sync.Mutex
	pos events.Position
}

// NewStore builds an empty position store.
func NewStore() *Store {
	return &Store{rows: make(map[string]*symbolLock)}
}

func (s *Store) lockFor(symbol string) *symbolLock {
	s.mu.RLock()
	row, ok := s.rows[symbol]
	s.mu.RUnlock()
	if ok {
		return row
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[symbol]; ok {
		return row
	}
	row = &symbolLock{pos: events.Position{Symbol: symbol}}
	s.rows[symbol] = row
	return row
}

// ApplyFill updates the symbol's position under an exclusive section
// over that symbol, implementing the reversal rules of spec §4.2.
func (s *Store) ApplyFill(symbol string, side events.Side, quantity, price float64, at time.Time) events.Position {
	row := s.lockFor(symbol)

	row.mu.Lock()
	defer row.mu.Unlock()

	delta := quantity
	if side == events.Sell {
		delta = -quantity
	}

	switch {
	case row.pos.Quantity == 0:
		// New position (including re-opening after a flat row).
		row.pos.Quantity = delta
		row.pos.AveragePrice = price

	case sameSign(row.pos.Quantity, delta):
		// Same-direction add: weighted average by absolute quantity.
		absExisting := abs(row.pos.Quantity)
		row.pos.AveragePrice = (absExisting*row.pos.AveragePrice + quantity*price) / (absExisting + quantity)
		row.pos.Quantity += delta

	default:
		// Opposite-direction: reduce, and if the fill overshoots the
		// existing quantity, the residual opens a new position on the
		// other side at the fill price. Average price is unchanged by
		// a pure reduction; it only resets when the position flips or
		// lands exactly at zero.
		newQty := row.pos.Quantity + delta
		switch {
		case newQty == 0:
			row.pos.Quantity = 0
			row.pos.AveragePrice = price
		case sameSign(newQty, row.pos.Quantity):
			// Partial reduction, same side as before: average unchanged.
			row.pos.Quantity = newQty
		default:
			// Sign crossed: residual opens fresh on the other side.
			row.pos.Quantity = newQty
			row.pos.AveragePrice = price
		}
	}

	// The exposure reference price is always the most recent fill price
	// (spec §3), independent of the weighted-average bookkeeping above.
	row.pos.LastFillPrice = price
	row.pos.LastUpdate = at
	return row.pos
}

// Position returns the current row for symbol, or the zero value and
// false if the symbol has never traded.
func (s *Store) Position(symbol string) (events.Position, bool) {
	s.mu.RLock()
	row, ok := s.rows[symbol]
	s.mu.RUnlock()
	if !ok {
		return events.Position{}, false
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return row.pos, true
}

// Snapshot takes a coarse lock across all symbols and returns a
// consistent point-in-time copy.
func (s *Store) Snapshot() map[string]events.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]events.Position, len(s.rows))
	for symbol, row := range s.rows {
		row.mu.Lock()
		out[symbol] = row.pos
		row.mu.Unlock()
	}
	return out
}

// Projected returns what the symbol's position would become if an order
// of the given side/quantity filled at price, without mutating state.
// The risk engine uses this for pre-trade exposure projection.
func (s *Store) Projected(symbol string, side events.Side, quantity, price float64) events.Position {
	current, _ := s.Position(symbol)
	delta := quantity
	if side == events.Sell {
		delta = -quantity
	}

	projected := current
	projected.Symbol = symbol
	switch {
	case current.Quantity == 0:
		projected.Quantity = delta
		projected.AveragePrice = price
	case sameSign(current.Quantity, delta):
		absExisting := abs(current.Quantity)
		projected.AveragePrice = (absExisting*current.AveragePrice + quantity*price) / (absExisting + quantity)
		projected.Quantity = current.Quantity + delta
	default:
		newQty := current.Quantity + delta
		projected.Quantity = newQty
		if newQty == 0 || !sameSign(newQty, current.Quantity) {
			projected.AveragePrice = price
		}
	}
	// The hypothetical fill sets the reference price used for exposure
	// projection (spec §4.3 projects using the order's limit price as
	// the hypothetical fill price).
	projected.LastFillPrice = price
	return projected
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
