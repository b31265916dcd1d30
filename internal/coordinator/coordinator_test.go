package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/tradecore/internal/breaker"
	"github.com/ksred/tradecore/internal/coreerr"
	"github.com/ksred/tradecore/internal/events"
	"github.com/ksred/tradecore/internal/eventlog"
	"github.com/ksred/tradecore/internal/execution"
	"github.com/ksred/tradecore/internal/idempotency"
	"github.com/ksred/tradecore/internal/position"
	"github.com/ksred/tradecore/internal/risk"
)

// alwaysFillExecutor fills every order instantly at the limit price.
type alwaysFillExecutor struct{}

func (alwaysFillExecutor) Execute(ctx context.Context, order *events.Order) (events.Fill, error) {
	return events.Fill{Price: order.LimitPrice, Quantity: order.Quantity, Timestamp: time.Now()}, nil
}

// alwaysPermanentExecutor rejects every order with a terminal error.
type alwaysPermanentExecutor struct{}

func (alwaysPermanentExecutor) Execute(ctx context.Context, order *events.Order) (events.Fill, error) {
	return events.Fill{}, &coreerr.PermanentExecutionError{Reason: "rejected"}
}

func newTestCoordinator(t *testing.T, executor execution.Executor, cfg events.RiskConfig) (*Coordinator, *eventlog.MemoryStore) {
	t.Helper()
	log := eventlog.NewMemoryStore(0)
	positions := position.NewStore()
	riskEngine := risk.NewEngine(cfg, positions, log)
	idem := idempotency.NewIndex()
	coord := New(idem, riskEngine, log)
	b := breaker.New(5, time.Minute)
	pipeline := execution.New(executor, b, positions, log, coord, execution.Config{
		MaxAttempts:    1,
		AttemptTimeout: time.Second,
		BackoffBase:    time.Millisecond,
	})
	coord.SetPipeline(pipeline)
	return coord, log
}

func permissiveConfig() events.RiskConfig {
	return events.RiskConfig{
		MaxPositionSize:  1_000_000,
		MaxDailyVolume:   1_000_000,
		MaxNetExposure:   1_000_000,
		MaxGrossExposure: 1_000_000,
	}
}

func TestSubmitApprovedOrderEventuallyExecutes(t *testing.T) {
	coord, _ := newTestCoordinator(t, alwaysFillExecutor{}, permissiveConfig())

	order, err := coord.Submit(Submission{Symbol: "AAPL", Side: events.Buy, Quantity: 10, LimitPrice: 100, UserID: "trader1"})
	require.NoError(t, err)
	assert.Equal(t, events.StatusApproved, order.Status)

	require.Eventually(t, func() bool {
		got, ok := coord.Get(order.OrderID)
		return ok && got.Status == events.StatusExecuted
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitRiskRejectionNeverReachesExecution(t *testing.T) {
	coord, log := newTestCoordinator(t, alwaysFillExecutor{}, events.RiskConfig{MaxPositionSize: 1})

	order, err := coord.Submit(Submission{Symbol: "AAPL", Side: events.Buy, Quantity: 10, LimitPrice: 100, UserID: "trader1"})
	require.Error(t, err)
	assert.Equal(t, events.StatusRejected, order.Status)

	time.Sleep(20 * time.Millisecond)
	byOrder, _ := log.ByOrder(order.OrderID)
	for _, e := range byOrder {
		assert.NotEqual(t, events.ExecutionStarted, e.EventType)
	}
}

func TestSubmitMalformedOrderRejectedBeforeRiskCheck(t *testing.T) {
	coord, log := newTestCoordinator(t, alwaysFillExecutor{}, permissiveConfig())

	_, err := coord.Submit(Submission{Symbol: "AAPL", Side: events.Buy, Quantity: -10, LimitPrice: 100, UserID: "trader1"})
	require.Error(t, err)
	var validation *coreerr.ValidationError
	assert.ErrorAs(t, err, &validation)

	// A validation failure must never reach the idempotency index or the
	// event log — nothing to look up, since no order was ever created.
	recent, recentErr := log.Recent(10)
	require.NoError(t, recentErr)
	assert.Empty(t, recent)
}

func TestSubmitDuplicateClientOrderIDRejected(t *testing.T) {
	coord, _ := newTestCoordinator(t, alwaysFillExecutor{}, permissiveConfig())

	sub := Submission{ClientOrderID: "dup-1", Symbol: "AAPL", Side: events.Buy, Quantity: 10, LimitPrice: 100, UserID: "trader1"}
	_, err := coord.Submit(sub)
	require.NoError(t, err)

	_, err = coord.Submit(sub)
	require.Error(t, err)
	var dup *coreerr.Duplicate
	assert.ErrorAs(t, err, &dup)
}

func TestSubmitPermanentExecutionFailureMarksOrderFailed(t *testing.T) {
	coord, _ := newTestCoordinator(t, alwaysPermanentExecutor{}, permissiveConfig())

	order, err := coord.Submit(Submission{Symbol: "AAPL", Side: events.Buy, Quantity: 10, LimitPrice: 100, UserID: "trader1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := coord.Get(order.OrderID)
		return ok && got.Status == events.StatusFailed
	}, time.Second, 5*time.Millisecond)
}
