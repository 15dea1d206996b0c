package domain

import (
	"errors"
	"fmt"
	"time"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// TransientError is a timeout, rate-limit or transport failure talking to the venue or market data.
type TransientError struct {
	Op  string // Operation that failed (e.g., "submit", "replace", "quote")
	Err error  // Underlying error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) IsRetriable() bool {
	return true
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retriable failure of op.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// RejectionError is the venue refusing a request (bad price, buying power, market closed).
type RejectionError struct {
	Op     string
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Op + " rejected: " + e.Reason
}

func (e *RejectionError) IsRetriable() bool {
	return false
}

// StaleDataError means no fresh quote exists for Symbol.
type StaleDataError struct {
	Symbol string
	Age    time.Duration // zero when the source had nothing at all
}

func (e *StaleDataError) Error() string {
	if e.Age > 0 {
		return fmt.Sprintf("stale quote for %s (age %s)", e.Symbol, e.Age)
	}
	return "no quote available for " + e.Symbol
}

func (e *StaleDataError) Is(target error) bool {
	return target == ErrStaleQuote
}

// InvariantViolation is a hard error: the manager halts the order when it sees one.
type InvariantViolation struct {
	Handle string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation [" + e.Handle + "]: " + e.Detail
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrStaleQuote matches every *StaleDataError.
	ErrStaleQuote = errors.New("stale quote")

	// ErrInvalidQuote is returned for non-positive or crossed quotes.
	ErrInvalidQuote = errors.New("invalid quote")

	// ErrAlreadyTerminal is returned when the order already finished at the venue. Not an error for stop();
	// on replace it triggers a status re-query.
	ErrAlreadyTerminal = errors.New("order already terminal")

	// ErrIllegalTransition is returned for control calls that are not valid in the current state.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrInvalidOrder is returned when an order request fails validation.
	ErrInvalidOrder = errors.New("invalid order request")

	// ErrUnknownHandle is returned when no manager exists for a handle.
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrOrderNotFound is returned by venues for unknown venue order ids.
	ErrOrderNotFound = errors.New("order not found")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
