package entity

import "errors"

// Sentinel errors for the expense domain. Callers classify them with
// errors.Is; the HTTP layer maps each class to a status code.
var (
	// Validation errors - the caller sent something malformed.
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidDate        = errors.New("invalid expense date")
	ErrInvalidDescription = errors.New("description is required")
	ErrInvalidDecision    = errors.New("unknown decision kind")
	ErrInvalidRule        = errors.New("invalid approval rule")
	ErrCommentsRequired   = errors.New("comments are required to reject")
	ErrManagerCycle       = errors.New("manager assignment would create a cycle")

	// Conflict errors - state moved under the caller's feet.
	ErrAlreadyDecided   = errors.New("approval already decided")
	ErrExpenseFinalized = errors.New("expense is in a terminal state")

	// Not found.
	ErrNotFound = errors.New("not found")

	// Unavailable - an external collaborator could not answer.
	ErrCurrencyUnavailable = errors.New("exchange rate unavailable")

	// Invariant - the company's rule configuration is broken and an
	// administrator has to fix it; never silently defaulted.
	ErrInvalidWorkflow = errors.New("approval workflow cannot be planned")
)
