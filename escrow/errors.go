package escrow

import "errors"

// Typed failures surfaced unmodified through the facade. All guards are
// evaluated before any mutation, so a failed call leaves the stored deal
// untouched and clients re-read state to determine the valid next action.
var (
	// ErrUnauthorized is returned when the caller does not hold the role a
	// transition requires.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrDealNotActive is returned when an offer targets a deal that has
	// already left the Active state.
	ErrDealNotActive = errors.New("escrow: deal not active")
	// ErrDealNotPending is returned when settlement targets a deal without a
	// recorded offer.
	ErrDealNotPending = errors.New("escrow: deal not pending")
	// ErrDealNotCancellable is returned when cancellation targets a deal that
	// already reached a terminal state.
	ErrDealNotCancellable = errors.New("escrow: deal not cancellable")
	// ErrDealNotTerminal is returned when pruning targets a deal still live.
	ErrDealNotTerminal = errors.New("escrow: deal not terminal")
	// ErrDealExpired is returned when a transition other than cancellation is
	// attempted once the deadline has passed.
	ErrDealExpired = errors.New("escrow: deal expired")
	// ErrBundleMismatch is returned when the transaction bundle accompanying a
	// transition does not carry the required transfer shape.
	ErrBundleMismatch = errors.New("escrow: bundle mismatch")
	// ErrNotFound is returned when no deal exists for the identifier.
	ErrNotFound = errors.New("escrow: deal not found")
)
