package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/pawclicker/server/internal/domain/resource"
)

// Op names a purchase operation.
type Op string

const (
	OpUnlock  Op = "unlock"
	OpUpgrade Op = "upgrade"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("invalid resource state")
	ErrUnknownResource   = errors.New("unknown resource")
	ErrUnknownGate       = errors.New("unknown gate")
	ErrNegativeAmount    = errors.New("amount must be a non-negative number")
)

// InsufficientFundsError is returned when the balance does not cover a purchase.
// Nothing is mutated when it is returned.
type InsufficientFundsError struct {
	ResourceID resource.ID
	Op         Op
	Cost       float64
	Balance    float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s resource %d: %v (cost %.2f, balance %.2f)", e.Op, e.ResourceID, ErrInsufficientFunds, e.Cost, e.Balance)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// InvalidStateError is returned for unlocking an unlocked resource, upgrading
// a locked one, or acting on a resource that is not revealed yet.
type InvalidStateError struct {
	ResourceID resource.ID
	Op         Op
	Level      int
	Reason     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s resource %d: %v: %s (level %d)", e.Op, e.ResourceID, ErrInvalidState, e.Reason, e.Level)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ErrTickerStopped is returned when a command is submitted to a stopped ticker.
var ErrTickerStopped = errors.New("ticker stopped")

// Error codes reported to clients.
const (
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidState      = "INVALID_STATE"
	CodeUnknownResource   = "UNKNOWN_RESOURCE"
	CodeUnknownGate       = "UNKNOWN_GATE"
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnavailable       = "UNAVAILABLE"
)

// Code maps an engine error to its client-facing code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrUnknownResource):
		return CodeUnknownResource
	case errors.Is(err, ErrUnknownGate):
		return CodeUnknownGate
	case errors.Is(err, ErrTickerStopped), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeUnavailable
	default:
		return CodeBadRequest
	}
}
