// Package coordinator implements the Order Coordinator (spec §4.7): the
// single writer for an order's lifecycle, from submission through the
// synchronous risk decision, and the component that exclusively owns
// order status thereafter as execution reports back asynchronously.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ksred/tradecore/internal/coreerr"
	"github.com/ksred/tradecore/internal/events"
	"github.com/ksred/tradecore/internal/eventlog"
	"github.com/ksred/tradecore/internal/execution"
	"github.com/ksred/tradecore/internal/idempotency"
	"github.com/ksred/tradecore/internal/risk"
)

// Submission is the caller-supplied order request.
type Submission struct {
	ClientOrderID string
	Symbol        string
	Side          events.Side
	Quantity      float64
	LimitPrice    float64
	UserID        string
	Strategy      string
}

// record is the coordinator's private view of one order. Every mutation
// to status happens with orderMu held, per spec §4.7's serialization
// requirement ("the same order_id never has two outstanding
// transitions").
type record struct {
	order events.Order
}

// Projector mirrors completed status transitions into a derived,
// query-only store (internal/ordermat). It is never consulted for
// authority — Get always answers from the in-memory map.
type Projector interface {
	Upsert(order events.Order) error
}

// Coordinator owns order identity, status, and the synchronous
// risk-check handoff into asynchronous execution.
type Coordinator struct {
	mu      sync.RWMutex
	orders  map[string]*record
	orderMu sync.Mutex // serializes status transitions across all orders

	idem      *idempotency.Index
	risk      *risk.Engine
	log       eventlog.Store
	pipeline  *execution.Pipeline
	projector Projector // optional
}

// New builds a coordinator. pipeline is wired in separately via
// SetPipeline to break the coordinator<->execution construction cycle
// (the pipeline needs a StatusUpdater, which is the coordinator).
func New(idem *idempotency.Index, riskEngine *risk.Engine, log eventlog.Store) *Coordinator {
	return &Coordinator{
		orders: make(map[string]*record),
		idem:   idem,
		risk:   riskEngine,
		log:    log,
	}
}

// SetPipeline completes wiring; must be called once before Submit.
func (c *Coordinator) SetPipeline(p *execution.Pipeline) {
	c.pipeline = p
}

// SetProjector attaches the optional order materialization store. When
// set, every status transition is mirrored into it after the in-memory
// map is updated.
func (c *Coordinator) SetProjector(p Projector) {
	c.projector = p
}

// Submit runs the synchronous portion of an order's life: identifier
// assignment, idempotency dedup, risk evaluation, and — on approval —
// asynchronous handoff to the execution pipeline. It returns once the
// risk decision is known; it does not wait for execution.
func (c *Coordinator) Submit(s Submission) (events.Order, error) {
	now := time.Now()
	order := events.Order{
		ClientOrderID: s.ClientOrderID,
		Symbol:        s.Symbol,
		Side:          s.Side,
		Quantity:      s.Quantity,
		LimitPrice:    s.LimitPrice,
		UserID:        s.UserID,
		Strategy:      s.Strategy,
	}
	if err := order.Validate(); err != nil {
		return events.Order{}, err
	}

	fingerprint := idempotency.Fingerprint(s.UserID, s.Symbol, s.Side, s.Quantity, s.LimitPrice, s.ClientOrderID)

	orderID := uuid.New().String()
	correlationID := uuid.New().String()

	if accepted, prior := c.idem.Claim(fingerprint, orderID); !accepted {
		return events.Order{}, &coreerr.Duplicate{PriorOrderID: prior}
	}

	order.OrderID = orderID
	order.CorrelationID = correlationID
	order.Status = events.StatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	c.mu.Lock()
	c.orders[orderID] = &record{order: order}
	c.mu.Unlock()

	c.appendEvent(order, events.OrderCreated, events.OrderCreatedPayload{
		Symbol:        s.Symbol,
		Side:          s.Side,
		Quantity:      s.Quantity,
		LimitPrice:    s.LimitPrice,
		Strategy:      s.Strategy,
		ClientOrderID: s.ClientOrderID,
	})

	c.setStatus(orderID, events.StatusRiskCheck)
	c.appendEvent(order, events.RiskCheckStarted, events.RiskCheckStartedPayload{})

	result := c.risk.Check(&order)
	if !result.Passed {
		c.setStatus(orderID, events.StatusRejected)
		c.appendEvent(order, events.RiskCheckFailed, events.RiskCheckFailedPayload{Violations: result.Violations})
		return c.snapshot(orderID), &coreerr.RiskViolation{Violations: result.Violations}
	}

	c.appendEvent(order, events.RiskCheckPassed, events.RiskCheckPassedPayload{DailyVolume: c.risk.Metrics().DailyVolume})
	c.setStatus(orderID, events.StatusApproved)

	c.pipeline.Submit(execution.Request{
		OrderID:       orderID,
		CorrelationID: correlationID,
		UserID:        s.UserID,
		Symbol:        s.Symbol,
		Side:          s.Side,
		Quantity:      s.Quantity,
		LimitPrice:    s.LimitPrice,
	})

	return c.snapshot(orderID), nil
}

// Get returns the current snapshot of an order by ID.
func (c *Coordinator) Get(orderID string) (events.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.orders[orderID]
	if !ok {
		return events.Order{}, false
	}
	return rec.order, true
}

// MarkExecuting implements execution.StatusUpdater.
func (c *Coordinator) MarkExecuting(orderID string) {
	c.setStatus(orderID, events.StatusExecuting)
}

// MarkExecuted implements execution.StatusUpdater.
func (c *Coordinator) MarkExecuted(orderID string, fill events.Fill) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	c.mu.Lock()
	rec, ok := c.orders[orderID]
	var snapshot events.Order
	if ok {
		rec.order.Status = events.StatusExecuted
		rec.order.FilledPrice = fill.Price
		rec.order.UpdatedAt = time.Now()
		snapshot = rec.order
	}
	c.mu.Unlock()

	if !ok {
		log.Error().Str("order_id", orderID).Msg("execution completed for unknown order")
		return
	}
	c.project(snapshot)
}

// MarkFailed implements execution.StatusUpdater.
func (c *Coordinator) MarkFailed(orderID string, reason string) {
	c.setStatus(orderID, events.StatusFailed)
	log.Warn().Str("order_id", orderID).Str("reason", reason).Msg("order execution failed terminally")
}

func (c *Coordinator) setStatus(orderID string, status events.OrderStatus) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	c.mu.Lock()
	rec, ok := c.orders[orderID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if rec.order.Status.Terminal() {
		// No backward transition out of a terminal state (spec §3).
		c.mu.Unlock()
		return
	}
	rec.order.Status = status
	rec.order.UpdatedAt = time.Now()
	snapshot := rec.order
	c.mu.Unlock()

	c.project(snapshot)
}

// project mirrors a snapshot into the optional order materialization
// store. Called with no coordinator lock held, since it may block on
// database I/O.
func (c *Coordinator) project(order events.Order) {
	if c.projector == nil {
		return
	}
	if err := c.projector.Upsert(order); err != nil {
		log.Error().Err(err).Str("order_id", order.OrderID).Msg("order projection failed")
	}
}

func (c *Coordinator) snapshot(orderID string) events.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orders[orderID].order
}

func (c *Coordinator) appendEvent(order events.Order, t events.Type, payload events.Payload) {
	if _, err := c.log.Append(events.Event{
		EventType:     t,
		CorrelationID: order.CorrelationID,
		OrderID:       order.OrderID,
		Payload:       payload,
		UserID:        order.UserID,
	}); err != nil {
		log.Error().Err(fmt.Errorf("coordinator: append %s: %w", t, err)).Msg("event log append failed")
	}
}
