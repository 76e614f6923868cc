package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tx-preflight/internal/config"
	"tx-preflight/internal/entity"
	"tx-preflight/internal/pkg/apperrors"
)

// stubNetRouter answers Send per method name and counts calls.
type stubNetRouter struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	errors    map[string]error
	sendCount int
}

func newStubNetRouter() *stubNetRouter {
	return &stubNetRouter{
		responses: make(map[string]json.RawMessage),
		errors:    make(map[string]error),
	}
}

func (s *stubNetRouter) Send(ctx context.Context, network entity.Network, method string, params []any) (*RouteResult, error) {
	s.mu.Lock()
	s.sendCount++
	s.mu.Unlock()

	if err, ok := s.errors[method]; ok {
		return nil, err
	}
	if raw, ok := s.responses[method]; ok {
		return &RouteResult{Raw: raw, Endpoint: entity.Endpoint{Name: "stub", Network: network}}, nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func (s *stubNetRouter) Broadcast(ctx context.Context, network entity.Network, signedPayload []byte) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubNetRouter) BestEndpoint(network entity.Network) (entity.Endpoint, bool) {
	return entity.Endpoint{}, false
}

func (s *stubNetRouter) HealthSnapshot() map[entity.Network][]entity.EndpointHealth { return nil }
func (s *stubNetRouter) ResetHealth()                                               {}

func (s *stubNetRouter) sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCount
}

// memReceiptCache is an in-memory ReceiptCache for simulator tests.
type memReceiptCache struct {
	mu       sync.Mutex
	receipts map[entity.Fingerprint]entity.Receipt
	sweeps   int
}

func newMemReceiptCache() *memReceiptCache {
	return &memReceiptCache{receipts: make(map[entity.Fingerprint]entity.Receipt)}
}

func (m *memReceiptCache) Get(ctx context.Context, fp entity.Fingerprint) (*entity.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if receipt, ok := m.receipts[fp]; ok {
		copied := receipt
		return &copied, nil
	}
	return nil, nil
}

func (m *memReceiptCache) Set(ctx context.Context, receipt entity.Receipt, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[receipt.Fingerprint] = receipt
	return nil
}

func (m *memReceiptCache) Delete(ctx context.Context, fp entity.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.receipts, fp)
	return nil
}

func (m *memReceiptCache) DeleteExpired(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
}

func (m *memReceiptCache) contains(fp entity.Fingerprint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.receipts[fp]
	return ok
}

func simulationTestConfig() config.SimulationConfig {
	return config.SimulationConfig{
		ReceiptValidity:      5 * time.Minute,
		CacheCleanupInterval: time.Minute,
		DefaultGasLimit:      21000,
		FallbackGasPriceWei:  "1000000000",
		FallbackFeeRateSatVB: "10",
		AssumedVBytes:        226,
		BitcoinChain:         "mainnet",
	}
}

func newTestSimulator(t *testing.T, router Router, cache ReceiptCache) *simulationService {
	t.Helper()
	kinds := map[entity.Network]entity.NetworkKind{
		"ethereum": entity.KindEVM,
		"bitcoin":  entity.KindBitcoin,
	}
	sim, err := NewSimulator(router, cache, kinds, simulationTestConfig(), zap.NewNop())
	require.NoError(t, err)
	return sim.(*simulationService)
}

func evmRequest() entity.SimulationRequest {
	return entity.SimulationRequest{
		Sender:    "0x1111111111111111111111111111111111111111",
		Recipient: "0x2222222222222222222222222222222222222222",
		Value:     "1000000000000000000",
		Network:   "ethereum",
	}
}

func evmHappyRouter() *stubNetRouter {
	router := newStubNetRouter()
	router.responses["eth_call"] = json.RawMessage(`"0x"`)
	router.responses["eth_estimateGas"] = json.RawMessage(`"0x5208"`) // 21000
	router.responses["eth_gasPrice"] = json.RawMessage(`"0x1"`)       // 1 wei
	return router
}

func TestSimulate_EVMTransferDeltas(t *testing.T) {
	sim := newTestSimulator(t, evmHappyRouter(), newMemReceiptCache())
	req := evmRequest()

	outcome := sim.Simulate(context.Background(), req)

	require.True(t, outcome.IsSuccess())
	receipt := outcome.Receipt
	assert.Equal(t, "21000", receipt.FeeEstimate)
	assert.Equal(t, uint64(21000), receipt.GasLimit)
	assert.Equal(t, map[string]string{
		req.Sender:    "-1000000000000021000", // value + fee
		req.Recipient: "1000000000000000000",
	}, receipt.Deltas)
	assert.Equal(t, req.Fingerprint(), receipt.Fingerprint)
	assert.Equal(t, receipt.CreatedAt.Add(5*time.Minute), receipt.ExpiresAt)
	assert.NotEmpty(t, receipt.ID)
	assert.NotEmpty(t, receipt.Tag)
}

func TestSimulate_GasLimitOverrideWins(t *testing.T) {
	router := evmHappyRouter()
	sim := newTestSimulator(t, router, newMemReceiptCache())
	req := evmRequest()
	req.GasLimit = 50000

	outcome := sim.Simulate(context.Background(), req)

	require.True(t, outcome.IsSuccess())
	assert.Equal(t, uint64(50000), outcome.Receipt.GasLimit)
	assert.Equal(t, "50000", outcome.Receipt.FeeEstimate)
}

func TestSimulate_ReusesCachedReceipt(t *testing.T) {
	router := evmHappyRouter()
	sim := newTestSimulator(t, router, newMemReceiptCache())
	req := evmRequest()

	first := sim.Simulate(context.Background(), req)
	require.True(t, first.IsSuccess())
	sendsAfterFirst := router.sends()

	second := sim.Simulate(context.Background(), req)
	require.True(t, second.IsSuccess())

	assert.Equal(t, first.Receipt.ID, second.Receipt.ID)
	assert.Equal(t, sendsAfterFirst, router.sends(), "identical request must not hit the network again")
}

// abiRevertData builds the Error(string) revert payload an EVM node returns.
func abiRevertData(reason string) string {
	data := []byte{0x08, 0xc3, 0x79, 0xa0} // Error(string) selector
	word := func(n int) []byte {
		w := make([]byte, 32)
		w[31] = byte(n)
		return w
	}
	data = append(data, word(0x20)...)
	data = append(data, word(len(reason))...)
	padded := make([]byte, (len(reason)+31)/32*32)
	copy(padded, reason)
	data = append(data, padded...)
	return "0x" + fmt.Sprintf("%x", data)
}

func TestSimulate_DryRunRevertReason(t *testing.T) {
	router := evmHappyRouter()
	rpcErr := &RPCError{Code: 3, Message: "execution reverted", Data: abiRevertData("insufficient balance")}
	router.errors["eth_call"] = &AllEndpointsFailedError{
		Network:  "ethereum",
		Attempts: []EndpointAttempt{{Name: "rpc-0", URL: "https://rpc-0.example.com", Err: rpcErr.Error(), Cause: rpcErr}},
	}

	sim := newTestSimulator(t, router, newMemReceiptCache())
	outcome := sim.Simulate(context.Background(), evmRequest())

	require.False(t, outcome.IsSuccess())
	assert.Contains(t, outcome.Failure.Message, "dry-run failed")
	assert.Equal(t, "insufficient balance", outcome.Failure.RevertReason)
}

func TestSimulate_EstimationFailureFallsBack(t *testing.T) {
	router := newStubNetRouter()
	router.responses["eth_call"] = json.RawMessage(`"0x"`)
	router.errors["eth_estimateGas"] = errors.New("estimation unavailable")
	router.errors["eth_gasPrice"] = errors.New("price unavailable")

	sim := newTestSimulator(t, router, newMemReceiptCache())
	outcome := sim.Simulate(context.Background(), evmRequest())

	require.True(t, outcome.IsSuccess(), "estimation is best-effort, the dry-run decided")
	// 21000 gas * 1 gwei fallback price
	assert.Equal(t, "21000000000000", outcome.Receipt.FeeEstimate)
}

func TestSimulate_InvalidInput(t *testing.T) {
	router := newStubNetRouter()
	sim := newTestSimulator(t, router, newMemReceiptCache())

	req := evmRequest()
	req.Sender = ""
	outcome := sim.Simulate(context.Background(), req)

	require.False(t, outcome.IsSuccess())
	assert.Zero(t, router.sends(), "invalid input must fail before any network access")

	req = evmRequest()
	req.Sender = "not-an-address"
	outcome = sim.Simulate(context.Background(), req)
	require.False(t, outcome.IsSuccess())
}

func TestSimulate_RejectsFractionalValue(t *testing.T) {
	router := evmHappyRouter()
	sim := newTestSimulator(t, router, newMemReceiptCache())

	// A fractional wei amount must never be dry-run truncated and then sealed
	// into a receipt whose deltas promise the untruncated figure.
	req := evmRequest()
	req.Value = "1000000000000000000.5"
	outcome := sim.Simulate(context.Background(), req)

	require.False(t, outcome.IsSuccess())
	assert.Contains(t, outcome.Failure.Message, "integer")
	assert.Zero(t, router.sends(), "fractional values must fail before any network access")
}

func TestSimulate_UnsupportedNetwork(t *testing.T) {
	sim := newTestSimulator(t, newStubNetRouter(), newMemReceiptCache())

	req := evmRequest()
	req.Network = "solana"
	outcome := sim.Simulate(context.Background(), req)

	require.False(t, outcome.IsSuccess())
	assert.Contains(t, outcome.Failure.Message, "unsupported network")
}

func bitcoinRequest() entity.SimulationRequest {
	return entity.SimulationRequest{
		Sender:    "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Recipient: "12c6DSiU4Rq3P4ZxziKxzrL5LmMBrzjrJX",
		Value:     "50000",
		Network:   "bitcoin",
	}
}

func TestSimulate_BitcoinTransfer(t *testing.T) {
	router := newStubNetRouter()
	router.responses["getblockcount"] = json.RawMessage(`800000`)
	router.responses["estimatesmartfee"] = json.RawMessage(`{"feerate":0.0001,"blocks":6}`)

	sim := newTestSimulator(t, router, newMemReceiptCache())
	req := bitcoinRequest()
	outcome := sim.Simulate(context.Background(), req)

	require.True(t, outcome.IsSuccess())
	// 0.0001 BTC/kvB = 10 sat/vB; 10 * 226 vbytes = 2260 sats.
	assert.Equal(t, "2260", outcome.Receipt.FeeEstimate)
	assert.Equal(t, map[string]string{
		req.Sender:    "-52260",
		req.Recipient: "50000",
	}, outcome.Receipt.Deltas)
}

func TestSimulate_BitcoinFeeFallback(t *testing.T) {
	router := newStubNetRouter()
	router.responses["getblockcount"] = json.RawMessage(`800000`)
	router.errors["estimatesmartfee"] = errors.New("fee estimation disabled")

	sim := newTestSimulator(t, router, newMemReceiptCache())
	outcome := sim.Simulate(context.Background(), bitcoinRequest())

	require.True(t, outcome.IsSuccess())
	assert.Equal(t, "2260", outcome.Receipt.FeeEstimate) // 10 sat/vB fallback * 226
}

func TestSimulate_BitcoinChainFromConfig(t *testing.T) {
	router := newStubNetRouter()
	router.responses["getblockcount"] = json.RawMessage(`2500000`)
	router.errors["estimatesmartfee"] = errors.New("fee estimation disabled")

	cfg := simulationTestConfig()
	cfg.BitcoinChain = "testnet3"
	kinds := map[entity.Network]entity.NetworkKind{"bitcoin": entity.KindBitcoin}
	sim, err := NewSimulator(router, newMemReceiptCache(), kinds, cfg, zap.NewNop())
	require.NoError(t, err)

	req := entity.SimulationRequest{
		Sender:    "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn",
		Recipient: "mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef",
		Value:     "50000",
		Network:   "bitcoin",
	}
	outcome := sim.Simulate(context.Background(), req)
	require.True(t, outcome.IsSuccess(), "testnet addresses must pass under testnet3 params")

	// The same addresses are not valid on mainnet.
	mainnetSim := newTestSimulator(t, router, newMemReceiptCache())
	outcome = mainnetSim.Simulate(context.Background(), req)
	require.False(t, outcome.IsSuccess())
}

func TestSimulate_BitcoinInvalidAddress(t *testing.T) {
	sim := newTestSimulator(t, newStubNetRouter(), newMemReceiptCache())

	req := bitcoinRequest()
	req.Recipient = "1InvalidChecksumAddress111111111111"
	outcome := sim.Simulate(context.Background(), req)

	require.False(t, outcome.IsSuccess())
}

func TestVerifyReceipt_RoundTripAndExpiry(t *testing.T) {
	sim := newTestSimulator(t, evmHappyRouter(), newMemReceiptCache())
	req := evmRequest()

	outcome := sim.Simulate(context.Background(), req)
	require.True(t, outcome.IsSuccess())
	receipt := *outcome.Receipt

	require.NoError(t, sim.VerifyReceipt(receipt, req))

	// 10 minutes later the 5-minute window has elapsed.
	sim.now = func() time.Time { return receipt.CreatedAt.Add(10 * time.Minute) }
	assert.ErrorIs(t, sim.VerifyReceipt(receipt, req), apperrors.ErrReceiptExpired)
}

func TestVerifyReceipt_FingerprintBinding(t *testing.T) {
	sim := newTestSimulator(t, evmHappyRouter(), newMemReceiptCache())
	req := evmRequest()

	outcome := sim.Simulate(context.Background(), req)
	require.True(t, outcome.IsSuccess())

	changed := req
	changed.Value = "2000000000000000000"
	assert.ErrorIs(t, sim.VerifyReceipt(*outcome.Receipt, changed), apperrors.ErrReceiptMismatch)
}

func TestVerifyReceipt_IntegrityTag(t *testing.T) {
	sim := newTestSimulator(t, evmHappyRouter(), newMemReceiptCache())
	req := evmRequest()

	outcome := sim.Simulate(context.Background(), req)
	require.True(t, outcome.IsSuccess())

	tampered := *outcome.Receipt
	tampered.FeeEstimate = "1"
	assert.ErrorIs(t, sim.VerifyReceipt(tampered, req), apperrors.ErrReceiptIntegrity)

	forged := *outcome.Receipt
	forged.Tag = "00"
	assert.ErrorIs(t, sim.VerifyReceipt(forged, req), apperrors.ErrReceiptIntegrity)
}

func TestCachedReceipt_EvictsExpired(t *testing.T) {
	cache := newMemReceiptCache()
	sim := newTestSimulator(t, evmHappyRouter(), cache)
	req := evmRequest()

	outcome := sim.Simulate(context.Background(), req)
	require.True(t, outcome.IsSuccess())
	fp := req.Fingerprint()

	require.NotNil(t, sim.CachedReceipt(context.Background(), req))

	sim.now = func() time.Time { return outcome.Receipt.ExpiresAt.Add(time.Second) }
	assert.Nil(t, sim.CachedReceipt(context.Background(), req))
	assert.False(t, cache.contains(fp), "expired receipt must be evicted on read")
}

func TestInvalidateReceipt(t *testing.T) {
	cache := newMemReceiptCache()
	sim := newTestSimulator(t, evmHappyRouter(), cache)
	req := evmRequest()

	outcome := sim.Simulate(context.Background(), req)
	require.True(t, outcome.IsSuccess())

	sim.InvalidateReceipt(context.Background(), req.Fingerprint())
	assert.False(t, cache.contains(req.Fingerprint()))
}

func TestClearExpiredReceipts_SweepsCache(t *testing.T) {
	cache := newMemReceiptCache()
	sim := newTestSimulator(t, evmHappyRouter(), cache)

	sim.ClearExpiredReceipts(context.Background())

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, 1, cache.sweeps)
}
