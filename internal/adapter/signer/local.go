package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"tx-preflight/internal/usecase"
)

// Compile-time check
var _ usecase.Signer = (*LocalSigner)(nil)

// LocalSigner is a development implementation of the signing boundary: a
// process-local secp256k1 key signing the keccak digest of the payload. A real
// deployment replaces this with a hardware-backed or custodial signer; the
// lifecycle never sees the difference.
type LocalSigner struct {
	key    *ecdsa.PrivateKey
	logger *zap.Logger
}

// NewLocalSigner generates a fresh ephemeral key.
func NewLocalSigner(logger *zap.Logger) (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &LocalSigner{
		key:    key,
		logger: logger.Named("LocalSigner"),
	}, nil
}

// Sign returns the payload with its 65-byte signature appended.
func (s *LocalSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	s.logger.Debug("Payload signed", zap.Int("payloadBytes", len(payload)))

	signed := make([]byte, 0, len(payload)+len(sig))
	signed = append(signed, payload...)
	return append(signed, sig...), nil
}
