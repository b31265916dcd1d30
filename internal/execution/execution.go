// Package execution is the asynchronous stage that wraps a fallible
// downstream call in idempotency, bounded retries with exponential
// backoff, and a circuit breaker (spec §4.6). It MUST NOT hold any
// exclusive lock across an executor call — order data crosses into the
// pipeline by value (a Request snapshot), never by shared pointer, so
// the pipeline's retry loop and the coordinator's status bookkeeping
// never contend on the same mutex.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/tradecore/internal/coreerr"
	"github.com/ksred/tradecore/internal/breaker"
	"github.com/ksred/tradecore/internal/events"
	"github.com/ksred/tradecore/internal/eventlog"
	"github.com/ksred/tradecore/internal/idempotency"
	"github.com/ksred/tradecore/internal/position"
)

// Executor is the downstream market adapter seam from spec §6.
type Executor interface {
	Execute(ctx context.Context, order *events.Order) (events.Fill, error)
}

// StatusUpdater lets the pipeline report terminal execution outcomes
// back to the component that exclusively owns order status (the
// coordinator), without handing it a shared, concurrently-mutated
// *Order.
type StatusUpdater interface {
	MarkExecuting(orderID string)
	MarkExecuted(orderID string, fill events.Fill)
	MarkFailed(orderID string, reason string)
}

// Request is the by-value snapshot of an approved order handed to the
// pipeline; it carries only what execution needs.
type Request struct {
	OrderID       string
	CorrelationID string
	UserID        string
	Symbol        string
	Side          events.Side
	Quantity      float64
	LimitPrice    float64
}

// Config tunes the pipeline's resilience parameters. Zero values fall
// back to the spec §4.6 defaults.
type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	return c
}

// Pipeline orchestrates retries, timeouts, and fill emission for
// approved orders.
type Pipeline struct {
	executor  Executor
	breaker   *breaker.Breaker
	positions *position.Store
	log       eventlog.Store
	status    StatusUpdater
	execGuard *idempotency.Index // per-order-id claim, protects against double-dispatch
	cfg       Config
}

// New builds an execution pipeline.
func New(executor Executor, b *breaker.Breaker, positions *position.Store, log eventlog.Store, status StatusUpdater, cfg Config) *Pipeline {
	return &Pipeline{
		executor:  executor,
		breaker:   b,
		positions: positions,
		log:       log,
		status:    status,
		execGuard: idempotency.NewIndex(),
		cfg:       cfg.withDefaults(),
	}
}

// Submit hands req to a new goroutine for asynchronous processing. The
// synchronous caller (the coordinator) has already returned its response
// by the time any of this runs.
func (p *Pipeline) Submit(req Request) {
	go p.run(req)
}

func (p *Pipeline) run(req Request) {
	logger := log.With().Str("order_id", req.OrderID).Str("correlation_id", req.CorrelationID).Logger()

	if accepted, prior := p.execGuard.Claim(req.OrderID, req.OrderID); !accepted {
		logger.Warn().Str("prior", prior).Msg("duplicate execution dispatch suppressed")
		return
	}

	if !p.breaker.Allow() {
		logger.Warn().Msg("circuit breaker open, rejecting execution")
		p.fail(req, &coreerr.BreakerOpen{}, 0)
		return
	}

	p.status.MarkExecuting(req.OrderID)
	p.appendEvent(req, events.ExecutionStarted, events.ExecutionStartedPayload{Attempt: 1})

	order := &events.Order{
		OrderID:    req.OrderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AttemptTimeout)
		fill, err := p.executor.Execute(ctx, order)
		cancel()

		if err == nil {
			p.breaker.Record(true)
			p.complete(req, fill, attempt)
			return
		}

		var transient *coreerr.TransientExecutionError
		if errors.As(err, &transient) && attempt < p.cfg.MaxAttempts {
			logger.Warn().Int("attempt", attempt).Err(err).Msg("transient execution failure, retrying")
			time.Sleep(backoff(p.cfg.BackoffBase, attempt))
			continue
		}

		p.breaker.Record(false)
		p.fail(req, err, attempt)
		return
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt-1))
}

func (p *Pipeline) complete(req Request, fill events.Fill, attempt int) {
	p.appendEvent(req, events.ExecutionCompleted, events.ExecutionCompletedPayload{
		FillPrice:    fill.Price,
		FillQuantity: fill.Quantity,
		Attempt:      attempt,
	})

	pos := p.positions.ApplyFill(req.Symbol, req.Side, fill.Quantity, fill.Price, fill.Timestamp)
	p.appendEvent(req, events.PositionUpdated, events.PositionUpdatedPayload{
		Symbol:       pos.Symbol,
		Quantity:     pos.Quantity,
		AveragePrice: pos.AveragePrice,
	})

	p.status.MarkExecuted(req.OrderID, fill)
}

func (p *Pipeline) fail(req Request, cause error, attempts int) {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	p.appendEvent(req, events.ExecutionFailed, events.ExecutionFailedPayload{
		Reason:   reason,
		Attempts: attempts,
	})
	p.status.MarkFailed(req.OrderID, reason)
}

func (p *Pipeline) appendEvent(req Request, t events.Type, payload events.Payload) {
	if _, err := p.log.Append(events.Event{
		EventType:     t,
		CorrelationID: req.CorrelationID,
		OrderID:       req.OrderID,
		Payload:       payload,
		UserID:        req.UserID,
	}); err != nil {
		log.Error().Err(fmt.Errorf("execution: append %s: %w", t, err)).Msg("event log append failed")
	}
}
