// Package risk implements the pre-trade gate that evaluates quantitative
// limits atomically against live position state, with an override kill
// switch (spec §4.3).
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ksred/tradecore/internal/coreerr"
	"github.com/ksred/tradecore/internal/events"
	"github.com/ksred/tradecore/internal/eventlog"
	"github.com/ksred/tradecore/internal/position"
)

// Engine evaluates limits in the fixed, documented order from spec §4.3
// and exclusively owns risk configuration and the kill switch.
//
// Concurrency note: config, kill switch, and the daily volume counter
// share one mutex. The race window described in spec §5 ("two concurrent
// approvals may each see the pre-increment counter") is closed by
// performing the daily-volume increment inside the same critical section
// as the check itself — Check only returns passed=true after the
// increment has already been applied.
type Engine struct {
	mu          sync.Mutex
	config      events.RiskConfig
	dailyVolume float64
	lastReset   time.Time // UTC date of the last rollover

	positions *position.Store
	log       eventlog.Store
}

// NewEngine builds a risk engine with the given initial configuration.
func NewEngine(config events.RiskConfig, positions *position.Store, log eventlog.Store) *Engine {
	return &Engine{
		config:    config,
		positions: positions,
		log:       log,
		lastReset: time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// CheckResult is the outcome of a pre-trade risk evaluation.
type CheckResult struct {
	Passed     bool
	Violations []string
}

// Check evaluates order against the current risk configuration and
// position state, accumulating every violation encountered — except the
// kill switch, which short-circuits and reports itself alone.
func (e *Engine) Check(order *events.Order) CheckResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetDailyVolumeIfNeeded()

	if e.config.KillSwitchEnabled {
		return CheckResult{Passed: false, Violations: []string{events.ViolationKillSwitch}}
	}

	var violations []string

	projectedSymbol := e.positions.Projected(order.Symbol, order.Side, order.Quantity, order.LimitPrice)
	if abs(projectedSymbol.Notional()) > e.config.MaxPositionSize {
		violations = append(violations, events.ViolationPositionLimit)
	}

	notional := order.Notional()
	if e.dailyVolume+notional > e.config.MaxDailyVolume {
		violations = append(violations, events.ViolationDailyVolume)
	}

	snapshot := e.positions.Snapshot()
	snapshot[order.Symbol] = projectedSymbol

	var net, gross float64
	for _, p := range snapshot {
		n := p.Notional()
		net += n
		gross += abs(n)
	}

	if abs(net) > e.config.MaxNetExposure {
		violations = append(violations, events.ViolationNetExposure)
	}
	if gross > e.config.MaxGrossExposure {
		violations = append(violations, events.ViolationGrossExposure)
	}

	passed := len(violations) == 0
	if passed {
		// Increment inside the same critical section as the check —
		// spec §5's minimum requirement to close the approval race
		// window.
		e.dailyVolume += notional
	}

	return CheckResult{Passed: passed, Violations: violations}
}

// UpdateLimits validates the new configuration, atomically replaces it,
// and appends a RISK_CONFIG_UPDATED event.
func (e *Engine) UpdateLimits(newConfig events.RiskConfig, actor string) error {
	if actor == "" {
		return &coreerr.ConfigError{Field: "actor", Message: "attribution required"}
	}
	if err := newConfig.Validate(); err != nil {
		return &coreerr.ConfigError{Field: "limits", Message: err.Error()}
	}

	e.mu.Lock()
	e.config = newConfig
	e.mu.Unlock()

	_, err := e.log.Append(events.Event{
		EventType:     events.RiskConfigUpdated,
		CorrelationID: uuid.New().String(),
		Payload:       events.RiskConfigUpdatedPayload{Config: newConfig, Actor: actor},
		UserID:        actor,
	})
	if err != nil {
		return fmt.Errorf("risk: append config update event: %w", err)
	}

	log.Info().Str("actor", actor).Msg("risk limits updated")
	return nil
}

// SetKillSwitch atomically toggles the kill switch and appends a
// KILL_SWITCH_TOGGLED event on every call, even if the logical state is
// unchanged (spec: "one logical state but one event per call").
func (e *Engine) SetKillSwitch(enabled bool, actor string) error {
	if actor == "" {
		return &coreerr.ConfigError{Field: "actor", Message: "attribution required"}
	}

	e.mu.Lock()
	e.config.KillSwitchEnabled = enabled
	e.mu.Unlock()

	_, err := e.log.Append(events.Event{
		EventType:     events.KillSwitchToggled,
		CorrelationID: uuid.New().String(),
		Payload:       events.KillSwitchToggledPayload{Enabled: enabled, Actor: actor},
		UserID:        actor,
	})
	if err != nil {
		return fmt.Errorf("risk: append kill switch event: %w", err)
	}

	log.Warn().Bool("enabled", enabled).Str("actor", actor).Msg("kill switch toggled")
	return nil
}

// Metrics returns the current exposure and volume figures.
func (e *Engine) Metrics() events.RiskMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyVolumeIfNeeded()

	snapshot := e.positions.Snapshot()
	var net, gross, largest float64
	for _, p := range snapshot {
		n := p.Notional()
		net += n
		g := abs(n)
		gross += g
		if g > largest {
			largest = g
		}
	}

	return events.RiskMetrics{
		NetExposure:       net,
		GrossExposure:     gross,
		DailyVolume:       e.dailyVolume,
		TotalPositions:    len(snapshot),
		LargestPosition:   largest,
		KillSwitchEnabled: e.config.KillSwitchEnabled,
	}
}

// Config returns a copy of the current risk configuration.
func (e *Engine) Config() events.RiskConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

func (e *Engine) resetDailyVolumeIfNeeded() {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if e.lastReset.Before(today) {
		e.dailyVolume = 0
		e.lastReset = today
		log.Info().Msg("daily volume counter reset")
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
