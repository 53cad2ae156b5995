package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	ErrInvalidAmount     = errors.New("invalid order amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrIndicatorUnready  = errors.New("indicator unready")
	ErrStoreMonotonicity = errors.New("bar timestamp older than stored series")
)

// TransientError wraps network, 5xx and timeout failures from the exchange.
// The orchestrator skips the cycle and continues.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient exchange error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient for the given operation.
func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is a transient exchange error.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ConfigError is fatal at startup; the service refuses to start.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// InvariantViolation marks a broken engine invariant, e.g. an unexpected
// short position or a monotonicity break in the store. The orchestrator
// enters defensive mode: no new opens, close-only reductions.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

// IsInvariantViolation reports whether err is an invariant violation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
