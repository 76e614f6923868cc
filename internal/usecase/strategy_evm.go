package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tx-preflight/internal/config"
	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
)

// Compile-time check
var _ SimulationStrategy = (*evmStrategy)(nil)

type evmStrategy struct {
	router Router
	cfg    config.SimulationConfig
	logger *zap.Logger
}

// NewEVMStrategy creates the strategy for JSON-RPC 2.0 (eth_*) networks.
func NewEVMStrategy(router Router, cfg config.SimulationConfig, logger *zap.Logger) SimulationStrategy {
	return &evmStrategy{
		router: router,
		cfg:    cfg,
		logger: logger.Named("EVMStrategy"),
	}
}

// Simulate dry-runs the transfer with eth_call, then estimates gas and gas
// price. The dry-run must succeed; estimation falls back to the configured
// conservative defaults.
func (s *evmStrategy) Simulate(ctx context.Context, req entity.SimulationRequest) (FeeQuote, error) {
	if !common.IsHexAddress(req.Sender) {
		return FeeQuote{}, fmt.Errorf("%w: sender '%s' is not a valid address", apperrors.ErrInvalidInput, req.Sender)
	}
	if !common.IsHexAddress(req.Recipient) {
		return FeeQuote{}, fmt.Errorf("%w: recipient '%s' is not a valid address", apperrors.ErrInvalidInput, req.Recipient)
	}

	callArgs := map[string]any{
		"from":  req.Sender,
		"to":    req.Recipient,
		"value": hexutil.EncodeBig(req.ValueDecimal().BigInt()),
	}
	if len(req.Payload) > 0 {
		callArgs["data"] = hexutil.Encode(req.Payload)
	}

	// Dry-run: would this call revert.
	if _, err := s.router.Send(ctx, req.Network, "eth_call", []any{callArgs, "latest"}); err != nil {
		return FeeQuote{}, &DryRunError{
			Message:      fmt.Sprintf("dry-run failed: %v", err),
			RevertReason: revertReasonFromError(err),
		}
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = s.estimateGas(ctx, req.Network, callArgs)
	}
	gasPrice := s.gasPrice(ctx, req.Network)

	fee := decimal.NewFromUint64(gasLimit).Mul(gasPrice)
	return FeeQuote{Fee: fee, GasLimit: gasLimit}, nil
}

func (s *evmStrategy) estimateGas(ctx context.Context, network entity.Network, callArgs map[string]any) uint64 {
	result, err := s.router.Send(ctx, network, "eth_estimateGas", []any{callArgs})
	if err != nil {
		s.logger.Warn("Gas estimation failed, using default gas limit",
			zap.String("network", network.String()),
			zap.Uint64("defaultGasLimit", s.cfg.DefaultGasLimit),
			zap.Error(err))
		return s.cfg.DefaultGasLimit
	}

	gas, err := decodeHexQuantity(result.Raw)
	if err != nil {
		s.logger.Warn("Gas estimation returned malformed quantity, using default gas limit", zap.Error(err))
		return s.cfg.DefaultGasLimit
	}
	return gas
}

func (s *evmStrategy) gasPrice(ctx context.Context, network entity.Network) decimal.Decimal {
	fallback, err := decimal.NewFromString(s.cfg.FallbackGasPriceWei)
	if err != nil {
		fallback = decimal.NewFromInt(1_000_000_000) // 1 gwei
	}

	result, err := s.router.Send(ctx, network, "eth_gasPrice", []any{})
	if err != nil {
		s.logger.Warn("Gas price fetch failed, using fallback",
			zap.String("network", network.String()),
			zap.String("fallbackWei", fallback.String()),
			zap.Error(err))
		return fallback
	}

	var priceHex string
	if err := json.Unmarshal(result.Raw, &priceHex); err != nil {
		s.logger.Warn("Gas price returned non-string result, using fallback", zap.Error(err))
		return fallback
	}
	price, err := hexutil.DecodeBig(priceHex)
	if err != nil {
		s.logger.Warn("Gas price returned malformed quantity, using fallback", zap.Error(err))
		return fallback
	}
	return decimal.NewFromBigInt(price, 0)
}

func decodeHexQuantity(raw json.RawMessage) (uint64, error) {
	var quantity string
	if err := json.Unmarshal(raw, &quantity); err != nil {
		return 0, fmt.Errorf("non-string quantity: %w", err)
	}
	return hexutil.DecodeUint64(quantity)
}

// revertReasonFromError digs the ABI-encoded revert reason out of a failed
// call's JSON-RPC error data, when present.
func revertReasonFromError(err error) string {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Data == "" {
		return ""
	}
	data, decodeErr := hexutil.Decode(rpcErr.Data)
	if decodeErr != nil {
		return ""
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return ""
	}
	return reason
}
