// Package coreerr defines the error taxonomy shared by every core
// component, so adapters (HTTP, CLI) can dispatch on error kind with
// errors.As/errors.Is instead of string matching.
package coreerr

import "fmt"

// ValidationError wraps a malformed order: non-positive quantity,
// unknown side, negative price. Always permanent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// RiskViolation wraps one or more risk limit breaches. Always permanent.
type RiskViolation struct {
	Violations []string
}

func (e *RiskViolation) Error() string {
	return fmt.Sprintf("risk violation: %v", e.Violations)
}

// Duplicate is returned when an idempotency fingerprint was already
// claimed by a prior submission.
type Duplicate struct {
	PriorOrderID string
}

func (e *Duplicate) Error() string {
	return fmt.Sprintf("duplicate submission, prior order %s", e.PriorOrderID)
}

// TransientExecutionError is a retry-eligible execution failure: timeout,
// temporary unavailability, rate limiting.
type TransientExecutionError struct {
	Reason string
}

func (e *TransientExecutionError) Error() string {
	return fmt.Sprintf("transient execution error: %s", e.Reason)
}

// PermanentExecutionError is a business rejection from the downstream
// venue. Never retried.
type PermanentExecutionError struct {
	Reason string
}

func (e *PermanentExecutionError) Error() string {
	return fmt.Sprintf("permanent execution error: %s", e.Reason)
}

// BreakerOpen is returned when the circuit breaker rejects an attempt
// without invoking the executor.
type BreakerOpen struct{}

func (e *BreakerOpen) Error() string {
	return "circuit breaker open"
}

// ConfigError wraps an invalid risk-limit update (e.g. a negative value).
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}
