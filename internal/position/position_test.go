package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/tradecore/internal/events"
)

func TestApplyFillOpensNewPosition(t *testing.T) {
	s := NewStore()
	pos := s.ApplyFill("AAPL", events.Buy, 10, 100, time.Now())

	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AveragePrice)
}

func TestApplyFillSameDirectionWeightedAverages(t *testing.T) {
	s := NewStore()
	s.ApplyFill("AAPL", events.Buy, 10, 100, time.Now())
	pos := s.ApplyFill("AAPL", events.Buy, 10, 200, time.Now())

	assert.Equal(t, 20.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.AveragePrice)
}

func TestApplyFillPartialReductionKeepsAveragePrice(t *testing.T) {
	s := NewStore()
	s.ApplyFill("AAPL", events.Buy, 10, 100, time.Now())
	pos := s.ApplyFill("AAPL", events.Sell, 4, 150, time.Now())

	assert.Equal(t, 6.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AveragePrice, "a reduction must not move the average price")
}

func TestApplyFillExactZeroResetsAveragePrice(t *testing.T) {
	s := NewStore()
	s.ApplyFill("AAPL", events.Buy, 10, 100, time.Now())
	pos := s.ApplyFill("AAPL", events.Sell, 10, 150, time.Now())

	assert.Equal(t, 0.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.AveragePrice)
}

func TestApplyFillSignCrossReopensAtFillPrice(t *testing.T) {
	s := NewStore()
	s.ApplyFill("AAPL", events.Buy, 10, 100, time.Now())
	pos := s.ApplyFill("AAPL", events.Sell, 15, 150, time.Now())

	assert.Equal(t, -5.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.AveragePrice, "the residual opening on the new side prices at the fill")
}

func TestProjectedDoesNotMutateState(t *testing.T) {
	s := NewStore()
	s.ApplyFill("AAPL", events.Buy, 10, 100, time.Now())

	projected := s.Projected("AAPL", events.Buy, 5, 200)
	assert.Equal(t, 15.0, projected.Quantity)

	pos, ok := s.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity, "Projected must not mutate the stored position")
}

func TestNotionalUsesLastFillPriceNotAveragePrice(t *testing.T) {
	s := NewStore()
	s.ApplyFill("AAPL", events.Buy, 100, 100, time.Now())
	pos := s.ApplyFill("AAPL", events.Buy, 100, 200, time.Now())

	assert.Equal(t, 150.0, pos.AveragePrice, "weighted average of the two fills")
	assert.Equal(t, 200.0, pos.LastFillPrice, "exposure reference price is the most recent fill")
	assert.Equal(t, 40000.0, pos.Notional(), "notional must use the last fill price, not the average")
}

func TestSnapshotIsConsistentAcrossSymbols(t *testing.T) {
	s := NewStore()
	s.ApplyFill("AAPL", events.Buy, 10, 100, time.Now())
	s.ApplyFill("MSFT", events.Sell, 5, 50, time.Now())

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 10.0, snap["AAPL"].Quantity)
	assert.Equal(t, -5.0, snap["MSFT"].Quantity)
}
