package models

import "errors"

// Domain errors returned by the service layer. Repositories never return these;
// they signal "no rows" with nil/false results and the services translate.
var (
	// ErrNoNumbersAvailable means the pool has no eligible number for the
	// requested service/country pair. Expected outcome, callers should back off
	// and retry.
	ErrNoNumbersAvailable = errors.New("no numbers available")

	// ErrInvalidState means an illegal lifecycle transition was attempted,
	// e.g. submitting a code on a completed order.
	ErrInvalidState = errors.New("invalid order state")

	// ErrValidation means the input was rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means a concurrent writer won the race for the same resource.
	ErrConflict = errors.New("resource conflict")

	// ErrCarrierUnavailable means the upstream carrier API failed after the
	// bounded retry budget was spent.
	ErrCarrierUnavailable = errors.New("carrier unavailable")

	ErrOrderNotFound       = errors.New("order not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPricingNotFound     = errors.New("pricing not found")
)
