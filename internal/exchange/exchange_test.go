package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/tradecore/internal/coreerr"
	"github.com/ksred/tradecore/internal/events"
)

func TestExecuteRespectsContextTimeout(t *testing.T) {
	s := NewSimulated()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	_, err := s.Execute(ctx, &events.Order{OrderID: "o1", Symbol: "AAPL", Quantity: 1, LimitPrice: 100})
	require.Error(t, err)
	var transient *coreerr.TransientExecutionError
	assert.ErrorAs(t, err, &transient)
}

func TestExecuteForcedFailureIsTransient(t *testing.T) {
	s := &Simulated{FailureOverride: true}
	_, err := s.Execute(context.Background(), &events.Order{OrderID: "o1", Symbol: "AAPL", Quantity: 1, LimitPrice: 100})
	require.Error(t, err)
	var transient *coreerr.TransientExecutionError
	assert.ErrorAs(t, err, &transient)
}

func TestExecuteSuccessReturnsFillNearLimitPrice(t *testing.T) {
	s := NewSimulated()
	var fill events.Fill
	var err error
	for i := 0; i < 20; i++ {
		fill, err = s.Execute(context.Background(), &events.Order{OrderID: "o1", Symbol: "AAPL", Quantity: 10, LimitPrice: 100})
		if err == nil {
			break
		}
	}
	require.NoError(t, err)
	assert.InDelta(t, 100, fill.Price, 3)
	assert.Greater(t, fill.Quantity, 0.0)
}
