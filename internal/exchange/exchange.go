// Package exchange is the default executor adapter described in spec
// §6: one operation, Execute, that simulates a small latency and a
// configurable failure probability. Adapted from the teacher's
// multi-exchange mock router (internal/exchange/exchange.go in
// ksred-klear-api), generalized to satisfy the execution pipeline's
// Executor interface and to classify failures as transient or
// permanent instead of returning one flat error.
package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/tradecore/internal/coreerr"
	"github.com/ksred/tradecore/internal/events"
)

// venue models one simulated trading venue, the way the teacher's
// mockExchanges table did.
type venue struct {
	id              string
	name            string
	minLatency      time.Duration
	maxLatency      time.Duration
	liquidityFactor float64 // 0-1
	successRate     float64 // 0-1
	permanentShare  float64 // of the failure probability, the fraction that is a business rejection
}

var venues = []venue{
	{id: "EXCH1", name: "Primary Exchange", minLatency: 5 * time.Millisecond, maxLatency: 30 * time.Millisecond, liquidityFactor: 0.9, successRate: 0.95, permanentShare: 0.2},
	{id: "EXCH2", name: "Secondary Exchange", minLatency: 10 * time.Millisecond, maxLatency: 50 * time.Millisecond, liquidityFactor: 0.7, successRate: 0.90, permanentShare: 0.3},
	{id: "EXCH3", name: "Regional Exchange", minLatency: 15 * time.Millisecond, maxLatency: 70 * time.Millisecond, liquidityFactor: 0.5, successRate: 0.85, permanentShare: 0.3},
	{id: "EXCH4", name: "Dark Pool", minLatency: 20 * time.Millisecond, maxLatency: 100 * time.Millisecond, liquidityFactor: 0.3, successRate: 0.75, permanentShare: 0.4},
}

func bestVenue() venue {
	total := 0.0
	for _, v := range venues {
		total += v.liquidityFactor * v.successRate
	}
	choice := rand.Float64() * total
	running := 0.0
	for _, v := range venues {
		running += v.liquidityFactor * v.successRate
		if running >= choice {
			return v
		}
	}
	return venues[0]
}

// Simulated is the default Executor: it picks a weighted venue, sleeps
// for a simulated latency (honoring ctx cancellation as a timeout), and
// succeeds or fails per that venue's success rate.
type Simulated struct {
	// FailureOverride, when non-nil, forces every attempt to fail
	// transiently — used by load-test/breaker-trip scenarios.
	FailureOverride bool
}

// NewSimulated builds the default simulated executor.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Execute(ctx context.Context, order *events.Order) (events.Fill, error) {
	v := bestVenue()
	logger := log.With().
		Str("venue", v.id).
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Logger()

	latency := v.minLatency + time.Duration(rand.Int63n(int64(v.maxLatency-v.minLatency+1)))
	select {
	case <-ctx.Done():
		logger.Warn().Msg("execution attempt timed out")
		return events.Fill{}, &coreerr.TransientExecutionError{Reason: "attempt timeout"}
	case <-time.After(latency):
	}

	if s.FailureOverride {
		return events.Fill{}, &coreerr.TransientExecutionError{Reason: "forced failure"}
	}

	if rand.Float64() > v.successRate {
		if rand.Float64() < v.permanentShare {
			logger.Warn().Msg("venue rejected order")
			return events.Fill{}, &coreerr.PermanentExecutionError{Reason: fmt.Sprintf("rejected by %s", v.id)}
		}
		logger.Warn().Msg("venue temporarily unavailable")
		return events.Fill{}, &coreerr.TransientExecutionError{Reason: fmt.Sprintf("%s temporarily unavailable", v.id)}
	}

	executedQty := order.Quantity
	if rand.Float64() > v.liquidityFactor {
		executedQty = order.Quantity * v.liquidityFactor
		if executedQty <= 0 {
			return events.Fill{}, &coreerr.TransientExecutionError{Reason: "insufficient liquidity"}
		}
	}

	priceVariance := order.LimitPrice * (1 + (rand.Float64()*0.04 - 0.02))

	logger.Info().
		Float64("fill_price", priceVariance).
		Float64("fill_quantity", executedQty).
		Msg("order executed")

	return events.Fill{
		Price:     priceVariance,
		Quantity:  executedQty,
		Timestamp: time.Now(),
	}, nil
}
