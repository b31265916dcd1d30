// Package events holds the domain types shared by every core component:
// the order and position records, the risk configuration, and the
// append-only event sum type that the event log persists.
package events

import (
	"time"

	"github.com/ksred/tradecore/internal/coreerr"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderStatus is the order's position in the linear, monotone state
// machine described in spec §3. No backward transition is legal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusRiskCheck OrderStatus = "RISK_CHECK"
	StatusApproved  OrderStatus = "APPROVED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusExecuting OrderStatus = "EXECUTING"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether status is one of the three terminal states.
func (s OrderStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// Order is created once; every field except Status, UpdatedAt, and
// FilledPrice is immutable after Create.
type Order struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id,omitempty"` // optional, used for idempotency
	CorrelationID string      `json:"correlation_id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Quantity      float64     `json:"quantity"`
	LimitPrice    float64     `json:"limit_price"`
	UserID        string      `json:"user_id"`
	Strategy      string      `json:"strategy,omitempty"`
	Status        OrderStatus `json:"status"`
	FilledPrice   float64     `json:"filled_price,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Notional is quantity x limit price, the value the risk engine projects
// limits against.
func (o *Order) Notional() float64 {
	return o.Quantity * o.LimitPrice
}

// Validate checks the malformed-order conditions from spec §7's
// ValidationError case: non-positive quantity, unknown side, negative
// price. This runs before the order is admitted to risk checking — a
// validation failure is terminal and never reaches the risk engine or
// execution pipeline.
func (o *Order) Validate() error {
	switch {
	case o.Quantity <= 0:
		return &coreerr.ValidationError{Field: "quantity", Message: "must be positive"}
	case o.Side != Buy && o.Side != Sell:
		return &coreerr.ValidationError{Field: "side", Message: "must be BUY or SELL"}
	case o.LimitPrice < 0:
		return &coreerr.ValidationError{Field: "limit_price", Message: "must be non-negative"}
	}
	return nil
}

// Position is the in-memory materialization of fills for one symbol.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"` // signed: long positive, short negative
	AveragePrice  float64   `json:"average_price"`
	LastFillPrice float64   `json:"last_fill_price"`
	LastUpdate    time.Time `json:"last_update"`
}

// Notional is the signed exposure contribution of the position. Spec §3
// defines the reference price for exposure as the last fill price of the
// symbol, not the weighted average price used for P&L (§4.2) — these
// diverge once a symbol accumulates same-direction fills at different
// prices.
func (p Position) Notional() float64 {
	return p.Quantity * p.LastFillPrice
}

// RiskConfig is the single process-wide risk-limit record. Mutated only
// through the risk engine's configuration API.
type RiskConfig struct {
	MaxPositionSize   float64 `json:"max_position_size"`
	MaxDailyVolume    float64 `json:"max_daily_volume"`
	MaxNetExposure    float64 `json:"max_net_exposure"`
	MaxGrossExposure  float64 `json:"max_gross_exposure"`
	KillSwitchEnabled bool    `json:"kill_switch_enabled"`
}

// Validate checks the non-negativity invariant the risk engine enforces
// on every configuration update.
func (c RiskConfig) Validate() error {
	switch {
	case c.MaxPositionSize < 0:
		return fieldErr("max_position_size")
	case c.MaxDailyVolume < 0:
		return fieldErr("max_daily_volume")
	case c.MaxNetExposure < 0:
		return fieldErr("max_net_exposure")
	case c.MaxGrossExposure < 0:
		return fieldErr("max_gross_exposure")
	}
	return nil
}

func fieldErr(field string) error {
	return &negativeLimitError{field: field}
}

type negativeLimitError struct{ field string }

func (e *negativeLimitError) Error() string {
	return "limit must be >= 0: " + e.field
}

// RiskMetrics is the read-only snapshot returned by Engine.Metrics.
type RiskMetrics struct {
	NetExposure       float64 `json:"net_exposure"`
	GrossExposure     float64 `json:"gross_exposure"`
	DailyVolume       float64 `json:"daily_volume"`
	TotalPositions    int     `json:"total_positions"`
	LargestPosition   float64 `json:"largest_position"`
	KillSwitchEnabled bool    `json:"kill_switch_enabled"`
}

// Risk violation codes, the closed set from spec §4.3.
const (
	ViolationKillSwitch    = "KILL_SWITCH_ACTIVE"
	ViolationPositionLimit = "POSITION_LIMIT"
	ViolationDailyVolume   = "DAILY_VOLUME_LIMIT"
	ViolationNetExposure   = "NET_EXPOSURE_LIMIT"
	ViolationGrossExposure = "GROSS_EXPOSURE_LIMIT"
)

// Fill is the result of a successful executor call.
type Fill struct {
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// Type is the closed set of event kinds from spec §6.
type Type string

const (
	OrderCreated       Type = "ORDER_CREATED"
	RiskCheckStarted   Type = "RISK_CHECK_STARTED"
	RiskCheckPassed    Type = "RISK_CHECK_PASSED"
	RiskCheckFailed    Type = "RISK_CHECK_FAILED"
	ExecutionStarted   Type = "EXECUTION_STARTED"
	ExecutionCompleted Type = "EXECUTION_COMPLETED"
	ExecutionFailed    Type = "EXECUTION_FAILED"
	RiskConfigUpdated  Type = "RISK_CONFIG_UPDATED"
	KillSwitchToggled  Type = "KILL_SWITCH_TOGGLED"
	PositionUpdated    Type = "POSITION_UPDATED"
)

// Payload is the sum type spec §9's "Untyped event payloads" redesign
// flag asks for: one variant struct per event kind, dispatched on
// Event.EventType rather than an untyped map.
type Payload interface {
	isPayload()
}

type OrderCreatedPayload struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`
	LimitPrice    float64 `json:"limit_price"`
	Strategy      string  `json:"strategy"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

func (OrderCreatedPayload) isPayload() {}

type RiskCheckStartedPayload struct{}

func (RiskCheckStartedPayload) isPayload() {}

type RiskCheckPassedPayload struct {
	DailyVolume float64 `json:"daily_volume"`
}

func (RiskCheckPassedPayload) isPayload() {}

type RiskCheckFailedPayload struct {
	Violations []string `json:"violations"`
}

func (RiskCheckFailedPayload) isPayload() {}

type ExecutionStartedPayload struct {
	Attempt int `json:"attempt"`
}

func (ExecutionStartedPayload) isPayload() {}

type ExecutionCompletedPayload struct {
	FillPrice    float64 `json:"fill_price"`
	FillQuantity float64 `json:"fill_quantity"`
	Attempt      int     `json:"attempt"`
}

func (ExecutionCompletedPayload) isPayload() {}

type ExecutionFailedPayload struct {
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

func (ExecutionFailedPayload) isPayload() {}

type RiskConfigUpdatedPayload struct {
	Config RiskConfig `json:"config"`
	Actor  string     `json:"actor"`
}

func (RiskConfigUpdatedPayload) isPayload() {}

type KillSwitchToggledPayload struct {
	Enabled bool   `json:"enabled"`
	Actor   string `json:"actor"`
}

func (KillSwitchToggledPayload) isPayload() {}

type PositionUpdatedPayload struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
}

func (PositionUpdatedPayload) isPayload() {}

// Event is the immutable record the event log appends. Order of append
// establishes the canonical causal order within a correlation chain.
type Event struct {
	EventID       string    `json:"event_id"`
	EventType     Type      `json:"event_type"`
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       Payload   `json:"payload"`
	UserID        string    `json:"user_id"`
}
