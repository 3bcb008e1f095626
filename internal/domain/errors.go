package domain

import (
	"errors"
	"fmt"
)

// ErrTradingDisabled is returned by trade submission while the emergency
// stop is active. It pre-empts validation and persistence.
var ErrTradingDisabled = errors.New("trading disabled via emergency stop")

// ValidationCode is the machine-readable reason a trade was rejected.
type ValidationCode string

const (
	CodeInsufficientCapital ValidationCode = "INSUFFICIENT_CAPITAL"
	CodeTradeSizeExceeded   ValidationCode = "TRADE_SIZE_EXCEEDED"
	CodePositionLimitExceed ValidationCode = "POSITION_LIMIT_EXCEEDED"
	CodeDailyLimitExceeded  ValidationCode = "DAILY_LIMIT_EXCEEDED"
)

// ValidationError rejects a trade before it touches storage or a venue.
// Client-correctable.
type ValidationError struct {
	Code   ValidationCode
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("trade validation failed [%s]: %s", e.Code, e.Reason)
}

// AllocationError rejects a capital reallocation that would break the
// conservation invariant. The prior allocation stands.
type AllocationError struct {
	Attempted float64
	Available float64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("capital allocation overflow: $%.2f > $%.2f available",
		e.Attempted, e.Available)
}
