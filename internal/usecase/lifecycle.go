package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
)

// Compile-time check to ensure txLifecycle implements Lifecycle
var _ Lifecycle = (*txLifecycle)(nil)

// receiptInvalidMsg is the single user-facing message for every receipt
// verification failure; the distinct causes stay in the logs.
const receiptInvalidMsg = "receipt expired or invalid"

// txLifecycle owns the single current TransactionState. Every operation
// guards on the current state at entry; processing states reject re-entry, so
// the state machine itself is the lock and no mutex is held across a network
// round trip.
type txLifecycle struct {
	simulator Simulator
	router    Router
	signer    Signer
	logger    *zap.Logger

	mu    sync.Mutex
	state entity.TransactionState
}

// NewLifecycle creates a transaction lifecycle controller in Idle. One
// controller drives one transaction flow.
func NewLifecycle(simulator Simulator, router Router, signer Signer, logger *zap.Logger) Lifecycle {
	return &txLifecycle{
		simulator: simulator,
		router:    router,
		signer:    signer,
		logger:    logger.Named("Lifecycle"),
		state:     entity.IdleState(),
	}
}

// Simulate runs Idle -> Simulating -> ReadyToSign | SimulationFailed.
func (l *txLifecycle) Simulate(ctx context.Context, req entity.SimulationRequest) (entity.TransactionState, error) {
	l.mu.Lock()
	if l.state.IsProcessing() {
		state := l.stateCopyLocked()
		l.mu.Unlock()
		return state, fmt.Errorf("%w: cannot simulate while %s", apperrors.ErrBusy, state.Status)
	}
	if l.state.Status != entity.StatusIdle {
		state := l.stateCopyLocked()
		l.mu.Unlock()
		return state, fmt.Errorf("%w: simulate requires idle, currently %s", apperrors.ErrInvalidTransition, state.Status)
	}
	l.state = entity.SimulatingState()
	l.mu.Unlock()

	outcome := l.simulator.Simulate(ctx, req)

	l.mu.Lock()
	defer l.mu.Unlock()
	if outcome.IsSuccess() {
		l.state = entity.ReadyToSignState(*outcome.Receipt)
		l.logger.Info("Simulation complete, ready to sign", zap.String("receiptId", outcome.Receipt.ID))
	} else {
		msg := outcome.Failure.Message
		if outcome.Failure.RevertReason != "" {
			msg = fmt.Sprintf("%s; revert: %s", msg, outcome.Failure.RevertReason)
		}
		l.state = entity.SimulationFailedState(msg)
		l.logger.Info("Simulation failed", zap.String("reason", msg))
	}
	return l.stateCopyLocked(), nil
}

// Confirm runs ReadyToSign -> Signing -> Broadcasting -> Broadcasted, or fails
// terminally. The held receipt is re-verified against the exact parameters
// passed here; that verification is the only gate into Signing.
func (l *txLifecycle) Confirm(ctx context.Context, req entity.SimulationRequest) (entity.TransactionState, error) {
	l.mu.Lock()
	if l.state.IsProcessing() {
		state := l.stateCopyLocked()
		l.mu.Unlock()
		return state, fmt.Errorf("%w: cannot confirm while %s", apperrors.ErrBusy, state.Status)
	}
	if !l.state.CanConfirm() {
		state := l.stateCopyLocked()
		l.mu.Unlock()
		return state, fmt.Errorf("%w: confirm requires ready_to_sign, currently %s", apperrors.ErrInvalidTransition, state.Status)
	}
	receipt := *l.state.Receipt

	if err := l.simulator.VerifyReceipt(receipt, req); err != nil {
		l.state = entity.FailedState(receiptInvalidMsg)
		state := l.stateCopyLocked()
		l.mu.Unlock()
		l.logger.Warn("Receipt verification failed at confirm",
			zap.String("receiptId", receipt.ID),
			zap.Error(err))
		return state, nil
	}

	l.state = entity.SigningState()
	l.mu.Unlock()
	l.logger.Info("Receipt verified, signing", zap.String("receiptId", receipt.ID))

	signed, err := l.signer.Sign(ctx, req.CanonicalBytes())
	if err != nil {
		return l.fail(fmt.Sprintf("signing failed: %v", err)), nil
	}

	l.mu.Lock()
	l.state = entity.BroadcastingState()
	l.mu.Unlock()

	txHash, err := l.router.Broadcast(ctx, req.Network, signed)
	if err != nil {
		return l.fail(fmt.Sprintf("broadcast failed: %v", err)), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = entity.BroadcastedState(txHash)
	l.logger.Info("Transaction broadcasted", zap.String("txHash", txHash))
	return l.stateCopyLocked(), nil
}

// Cancel returns to Idle from any state that is neither terminal nor
// processing, discarding and invalidating any held receipt. In-flight network
// calls are never interrupted; their results are simply not acted upon.
func (l *txLifecycle) Cancel(ctx context.Context) (entity.TransactionState, error) {
	l.mu.Lock()
	if l.state.IsProcessing() {
		state := l.stateCopyLocked()
		l.mu.Unlock()
		return state, fmt.Errorf("%w: cannot cancel while %s", apperrors.ErrBusy, state.Status)
	}
	if l.state.IsTerminal() {
		state := l.stateCopyLocked()
		l.mu.Unlock()
		return state, fmt.Errorf("%w: cannot cancel a terminal flow", apperrors.ErrInvalidTransition)
	}
	var held *entity.Receipt
	if l.state.Receipt != nil {
		receipt := *l.state.Receipt
		held = &receipt
	}
	l.state = entity.IdleState()
	state := l.stateCopyLocked()
	l.mu.Unlock()

	if held != nil {
		l.simulator.InvalidateReceipt(ctx, held.Fingerprint)
		l.logger.Info("Flow cancelled, receipt discarded", zap.String("receiptId", held.ID))
	} else {
		l.logger.Info("Flow cancelled")
	}
	return state, nil
}

// State returns a value copy of the current state.
func (l *txLifecycle) State() entity.TransactionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateCopyLocked()
}

func (l *txLifecycle) fail(msg string) entity.TransactionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = entity.FailedState(msg)
	l.logger.Warn("Transaction flow failed", zap.String("reason", msg))
	return l.stateCopyLocked()
}

// stateCopyLocked copies the state, including the receipt and its deltas map,
// so no caller ever holds a live reference into the controller. Callers must
// hold mu.
func (l *txLifecycle) stateCopyLocked() entity.TransactionState {
	state := l.state
	if state.Receipt != nil {
		receipt := state.Receipt.Clone()
		state.Receipt = &receipt
	}
	return state
}
