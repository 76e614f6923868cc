package usecase

import (
	"context"
	"encoding/json"
	"time"

	"tx-preflight/internal/entity"
)

// RPCClient defines the transport used for a single JSON-RPC exchange with one
// endpoint. The implementation owns the per-kind envelope (generic 2.0 vs the
// legacy bitcoin envelope with basic credentials).
type RPCClient interface {
	Call(ctx context.Context, endpoint entity.Endpoint, kind entity.NetworkKind, method string, params []any) (json.RawMessage, error)
}

// RouteResult is the outcome of one successful routed call.
type RouteResult struct {
	Raw      json.RawMessage
	Endpoint entity.Endpoint
	Latency  time.Duration
}

// Protected reports whether the serving endpoint offers front-running protection.
func (r *RouteResult) Protected() bool {
	return r.Endpoint.Protected
}

// Router performs one logical RPC operation against the best available
// endpoint for a network, transparently retrying across the priority-ordered
// endpoint list.
type Router interface {
	Send(ctx context.Context, network entity.Network, method string, params []any) (*RouteResult, error)
	Broadcast(ctx context.Context, network entity.Network, signedPayload []byte) (string, error)

	// BestEndpoint is an advisory query only; Send always walks the static
	// priority order.
	BestEndpoint(network entity.Network) (entity.Endpoint, bool)
	HealthSnapshot() map[entity.Network][]entity.EndpointHealth
	ResetHealth()
}

// ReceiptCache defines the short-lived store for sealed receipts, keyed by
// request fingerprint.
type ReceiptCache interface {
	Get(ctx context.Context, fp entity.Fingerprint) (*entity.Receipt, error)
	Set(ctx context.Context, receipt entity.Receipt, ttl time.Duration) error
	Delete(ctx context.Context, fp entity.Fingerprint) error
	DeleteExpired(ctx context.Context)
}

// Simulator turns a proposed transfer into a sealed receipt or a structured
// failure, and is the sole authority on receipt validity.
type Simulator interface {
	Simulate(ctx context.Context, req entity.SimulationRequest) entity.SimulationOutcome

	// VerifyReceipt returns nil iff the receipt is unexpired, bound to the
	// request's fingerprint, and its integrity tag recomputes. Non-nil errors
	// distinguish the three failure modes for diagnostics.
	VerifyReceipt(receipt entity.Receipt, req entity.SimulationRequest) error

	CachedReceipt(ctx context.Context, req entity.SimulationRequest) *entity.Receipt
	InvalidateReceipt(ctx context.Context, fp entity.Fingerprint)
	ClearExpiredReceipts(ctx context.Context)
}

// Signer is the out-of-scope signing boundary. It receives the canonical
// request bytes and returns the signed payload ready for broadcast; key
// custody and user authentication are its concern alone.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// Lifecycle is the transaction state machine. The only path into signing runs
// through a receipt verified against the exact parameters passed to Confirm.
type Lifecycle interface {
	Simulate(ctx context.Context, req entity.SimulationRequest) (entity.TransactionState, error)
	Confirm(ctx context.Context, req entity.SimulationRequest) (entity.TransactionState, error)
	Cancel(ctx context.Context) (entity.TransactionState, error)
	State() entity.TransactionState
}
