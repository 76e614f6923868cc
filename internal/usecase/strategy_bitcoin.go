package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tx-preflight/internal/config"
	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
)

// Compile-time check
var _ SimulationStrategy = (*bitcoinStrategy)(nil)

// estimateConfTarget is the confirmation target (blocks) passed to estimatesmartfee.
const estimateConfTarget = 6

type bitcoinStrategy struct {
	router Router
	cfg    config.SimulationConfig
	params *chaincfg.Params
	logger *zap.Logger
}

// NewBitcoinStrategy creates the strategy for bitcoin-style networks. The
// configured chain selects the address encoding to validate against.
func NewBitcoinStrategy(router Router, cfg config.SimulationConfig, logger *zap.Logger) SimulationStrategy {
	return &bitcoinStrategy{
		router: router,
		cfg:    cfg,
		params: bitcoinChainParams(cfg.BitcoinChain),
		logger: logger.Named("BitcoinStrategy"),
	}
}

// bitcoinChainParams maps the configured chain name to its params. Unknown
// names fall back to mainnet, the safe default for address validation.
func bitcoinChainParams(chain string) *chaincfg.Params {
	switch chain {
	case "testnet3", "testnet":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "simnet":
		return &chaincfg.SimNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// Simulate validates both addresses offline, probes node liveness as the
// dry-run (bitcoin has no pre-signature execution check), and estimates the
// fee from the node's smart fee rate with a static fallback.
func (s *bitcoinStrategy) Simulate(ctx context.Context, req entity.SimulationRequest) (FeeQuote, error) {
	if _, err := btcutil.DecodeAddress(req.Sender, s.params); err != nil {
		return FeeQuote{}, fmt.Errorf("%w: sender '%s' is not a valid address: %v",
			apperrors.ErrInvalidInput, req.Sender, err)
	}
	if _, err := btcutil.DecodeAddress(req.Recipient, s.params); err != nil {
		return FeeQuote{}, fmt.Errorf("%w: recipient '%s' is not a valid address: %v",
			apperrors.ErrInvalidInput, req.Recipient, err)
	}

	if _, err := s.router.Send(ctx, req.Network, "getblockcount", []any{}); err != nil {
		return FeeQuote{}, &DryRunError{Message: fmt.Sprintf("dry-run failed: %v", err)}
	}

	return FeeQuote{Fee: s.estimateFee(ctx, req.Network)}, nil
}

// estimateFee converts the node's BTC/kvB smart fee rate into total satoshis
// for the assumed transaction size, falling back to the configured sat/vB rate.
func (s *bitcoinStrategy) estimateFee(ctx context.Context, network entity.Network) decimal.Decimal {
	vbytes := decimal.NewFromInt(s.cfg.AssumedVBytes)
	fallbackRate, err := decimal.NewFromString(s.cfg.FallbackFeeRateSatVB)
	if err != nil {
		fallbackRate = decimal.NewFromInt(10)
	}
	fallback := fallbackRate.Mul(vbytes).Ceil()

	result, err := s.router.Send(ctx, network, "estimatesmartfee", []any{estimateConfTarget})
	if err != nil {
		s.logger.Warn("Smart fee estimation failed, using fallback rate",
			zap.String("network", network.String()),
			zap.String("fallbackSat", fallback.String()),
			zap.Error(err))
		return fallback
	}

	var feeResult struct {
		FeeRate json.Number `json:"feerate"` // BTC per kvB
		Errors  []string    `json:"errors"`
	}
	if err := json.Unmarshal(result.Raw, &feeResult); err != nil || feeResult.FeeRate == "" {
		s.logger.Warn("Smart fee estimation returned no rate, using fallback",
			zap.Strings("nodeErrors", feeResult.Errors),
			zap.Error(err))
		return fallback
	}

	btcPerKvB, err := decimal.NewFromString(feeResult.FeeRate.String())
	if err != nil || !btcPerKvB.IsPositive() {
		s.logger.Warn("Smart fee estimation returned malformed rate, using fallback",
			zap.String("feerate", feeResult.FeeRate.String()))
		return fallback
	}

	// BTC/kvB -> sat/vB: * 1e8 sats / 1000 vbytes.
	satPerVB := btcPerKvB.Mul(decimal.NewFromInt(100_000_000)).Div(decimal.NewFromInt(1000))
	return satPerVB.Mul(vbytes).Ceil()
}
