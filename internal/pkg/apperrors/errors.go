package apperrors

import "errors"

// Standard application errors
var (
	// ErrInvalidInput is returned when the input provided by the caller is invalid.
	ErrInvalidInput = errors.New("invalid input provided")

	// ErrNoEndpoints is returned when a network has no registered endpoints.
	ErrNoEndpoints = errors.New("no endpoints available for network")

	// ErrUnsupportedNetwork is returned when no registry entry or strategy exists for a network.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrExternalServiceFailure is returned when an interaction with an RPC endpoint fails.
	ErrExternalServiceFailure = errors.New("external service interaction failed")

	// ErrTimeout is returned when a single endpoint attempt times out.
	ErrTimeout = errors.New("operation timed out")

	// ErrReceiptExpired is returned when a receipt's validity window has elapsed.
	ErrReceiptExpired = errors.New("receipt expired")

	// ErrReceiptMismatch is returned when a receipt's fingerprint does not match
	// the request being signed.
	ErrReceiptMismatch = errors.New("receipt fingerprint mismatch")

	// ErrReceiptIntegrity is returned when a receipt's integrity tag does not
	// recompute from its own fields.
	ErrReceiptIntegrity = errors.New("receipt integrity tag mismatch")

	// ErrInvalidTransition is returned when an operation is not legal in the current
	// transaction state. Hitting it indicates incorrect wiring in the caller rather
	// than a runtime condition.
	ErrInvalidTransition = errors.New("operation not permitted in current state")

	// ErrBusy is returned when an operation is re-entered while a processing state is active.
	ErrBusy = errors.New("transaction flow already in progress")
)
