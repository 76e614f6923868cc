package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tx-preflight/internal/config"
	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
)

// Compile-time check to ensure simulationService implements Simulator
var _ Simulator = (*simulationService)(nil)

type simulationService struct {
	router     Router
	cache      ReceiptCache
	strategies map[entity.NetworkKind]SimulationStrategy
	kinds      map[entity.Network]entity.NetworkKind
	validity   time.Duration
	logger     *zap.Logger

	// secret keys the receipt integrity tag. Generated once at construction,
	// held only in process memory, never logged, persisted, or serialized.
	secret []byte

	now func() time.Time
}

// NewSimulator creates the simulation service with one strategy per network kind.
func NewSimulator(
	router Router,
	cache ReceiptCache,
	kinds map[entity.Network]entity.NetworkKind,
	cfg config.SimulationConfig,
	logger *zap.Logger,
) (Simulator, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate receipt secret: %w", err)
	}

	validity := cfg.GetReceiptValidity()
	if validity <= 0 {
		validity = 5 * time.Minute
	}

	return &simulationService{
		router: router,
		cache:  cache,
		strategies: map[entity.NetworkKind]SimulationStrategy{
			entity.KindEVM:     NewEVMStrategy(router, cfg, logger),
			entity.KindBitcoin: NewBitcoinStrategy(router, cfg, logger),
		},
		kinds:    kinds,
		validity: validity,
		logger:   logger.Named("Simulator"),
		secret:   secret,
		now:      time.Now,
	}, nil
}

// Simulate converts a request into a sealed receipt or a structured failure.
// All network access goes through the router; no partial receipts are ever
// exposed.
func (s *simulationService) Simulate(ctx context.Context, req entity.SimulationRequest) entity.SimulationOutcome {
	if err := req.Validate(); err != nil {
		return entity.FailureOutcome(err.Error(), "")
	}

	// Identical requests reuse the live receipt instead of re-simulating.
	if cached := s.CachedReceipt(ctx, req); cached != nil {
		s.logger.Debug("Reusing cached receipt",
			zap.String("receiptId", cached.ID),
			zap.String("fingerprint", cached.Fingerprint.Hex()))
		return entity.SuccessOutcome(*cached)
	}

	kind, ok := s.kinds[req.Network]
	if !ok {
		return entity.FailureOutcome(fmt.Sprintf("unsupported network '%s'", req.Network), "")
	}
	strategy, ok := s.strategies[kind]
	if !ok {
		return entity.FailureOutcome(fmt.Sprintf("no simulation strategy for network kind '%s'", kind), "")
	}

	quote, err := strategy.Simulate(ctx, req)
	if err != nil {
		var dryRunErr *DryRunError
		if errors.As(err, &dryRunErr) {
			s.logger.Info("Simulation dry-run failed",
				zap.String("network", req.Network.String()),
				zap.String("revertReason", dryRunErr.RevertReason),
				zap.Error(err))
			return entity.FailureOutcome(dryRunErr.Message, dryRunErr.RevertReason)
		}
		s.logger.Info("Simulation failed",
			zap.String("network", req.Network.String()),
			zap.Error(err))
		return entity.FailureOutcome(err.Error(), "")
	}

	now := s.now()
	receipt := entity.Receipt{
		ID:          uuid.NewString(),
		FeeEstimate: quote.Fee.String(),
		GasLimit:    quote.GasLimit,
		Deltas:      predictDeltas(req, quote.Fee),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.validity),
		Fingerprint: req.Fingerprint(),
	}
	receipt.Tag = receipt.ComputeTag(s.secret)

	if err := s.cache.Set(ctx, receipt, s.validity); err != nil {
		// Caching is an optimization; the sealed receipt is still valid.
		s.logger.Warn("Failed to cache receipt", zap.String("receiptId", receipt.ID), zap.Error(err))
	}

	s.logger.Info("Simulation succeeded",
		zap.String("network", req.Network.String()),
		zap.String("receiptId", receipt.ID),
		zap.String("feeEstimate", receipt.FeeEstimate),
		zap.Time("expiresAt", receipt.ExpiresAt))
	return entity.SuccessOutcome(receipt)
}

// predictDeltas computes the balance changes a successful execution implies:
// the sender loses value plus fee, the recipient gains value. Arbitrary
// precision throughout, accumulated so sender == recipient still nets out.
func predictDeltas(req entity.SimulationRequest, fee decimal.Decimal) map[string]string {
	value := req.ValueDecimal()

	changes := map[string]decimal.Decimal{}
	changes[req.Sender] = changes[req.Sender].Sub(value).Sub(fee)
	changes[req.Recipient] = changes[req.Recipient].Add(value)

	deltas := make(map[string]string, len(changes))
	for addr, amount := range changes {
		deltas[addr] = amount.String()
	}
	return deltas
}

// VerifyReceipt is the sole gate that may authorize a transition to signing.
// It must be re-run at confirm time: inputs may have changed between preview
// and confirm.
func (s *simulationService) VerifyReceipt(receipt entity.Receipt, req entity.SimulationRequest) error {
	if receipt.Expired(s.now()) {
		return apperrors.ErrReceiptExpired
	}
	if receipt.Fingerprint != req.Fingerprint() {
		return apperrors.ErrReceiptMismatch
	}
	if !receipt.VerifyTag(s.secret) {
		return apperrors.ErrReceiptIntegrity
	}
	return nil
}

// CachedReceipt returns a live cached receipt for the request's fingerprint,
// evicting it if it has expired.
func (s *simulationService) CachedReceipt(ctx context.Context, req entity.SimulationRequest) *entity.Receipt {
	fp := req.Fingerprint()
	receipt, err := s.cache.Get(ctx, fp)
	if err != nil || receipt == nil {
		return nil
	}
	if receipt.Expired(s.now()) {
		if err := s.cache.Delete(ctx, fp); err != nil {
			s.logger.Warn("Failed to evict expired receipt", zap.String("receiptId", receipt.ID), zap.Error(err))
		}
		return nil
	}
	return receipt
}

// InvalidateReceipt drops the cached receipt for a fingerprint (explicit
// invalidation on reset/cancel).
func (s *simulationService) InvalidateReceipt(ctx context.Context, fp entity.Fingerprint) {
	if err := s.cache.Delete(ctx, fp); err != nil {
		s.logger.Warn("Failed to invalidate receipt", zap.String("fingerprint", fp.Hex()), zap.Error(err))
	}
}

// ClearExpiredReceipts sweeps expired entries. Verification already checks
// expiry; this only bounds memory.
func (s *simulationService) ClearExpiredReceipts(ctx context.Context) {
	s.cache.DeleteExpired(ctx)
}
