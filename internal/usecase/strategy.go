package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tx-preflight/internal/entity"
)

// FeeQuote is what a network strategy produces for a dry-run that would
// succeed: the estimated total fee in the smallest denomination and, where the
// network has the concept, the gas limit the estimate assumed.
type FeeQuote struct {
	Fee      decimal.Decimal
	GasLimit uint64
}

// SimulationStrategy is the per-network half of the simulator: dry-run the
// proposed transfer through the router and estimate its fee. Estimation is
// best-effort (static fallbacks on failure); the dry-run is not.
type SimulationStrategy interface {
	Simulate(ctx context.Context, req entity.SimulationRequest) (FeeQuote, error)
}

// DryRunError reports that the dry-run itself failed, with the parsed on-chain
// revert reason when the endpoint surfaced one.
type DryRunError struct {
	Message      string
	RevertReason string
}

func (e *DryRunError) Error() string {
	if e.RevertReason != "" {
		return fmt.Sprintf("%s (revert: %s)", e.Message, e.RevertReason)
	}
	return e.Message
}

// RPCError is a JSON-RPC application-level error returned by an endpoint,
// surfaced by the transport so strategies can inspect the error data (e.g.
// revert payloads).
type RPCError struct {
	Code    int
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error: %d %s", e.Code, e.Message)
}
