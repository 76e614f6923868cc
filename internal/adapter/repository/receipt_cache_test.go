package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tx-preflight/internal/config"
	"tx-preflight/internal/entity"
)

func testCacheConfig() config.SimulationConfig {
	return config.SimulationConfig{
		ReceiptValidity:      time.Minute,
		CacheCleanupInterval: time.Minute,
	}
}

func testReceipt(id string) entity.Receipt {
	now := time.Now()
	req := entity.SimulationRequest{
		Sender:    "0x1111111111111111111111111111111111111111",
		Recipient: "0x2222222222222222222222222222222222222222",
		Value:     "1",
		Network:   "ethereum",
	}
	return entity.Receipt{
		ID:          id,
		FeeEstimate: "21000",
		Deltas:      map[string]string{req.Sender: "-21001", req.Recipient: "1"},
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
		Fingerprint: req.Fingerprint(),
		Tag:         "aa",
	}
}

func TestReceiptCache_SetGetDelete(t *testing.T) {
	repo := NewGoCacheReceiptRepo(testCacheConfig(), zap.NewNop())
	ctx := context.Background()
	receipt := testReceipt("receipt-1")

	got, err := repo.Get(ctx, receipt.Fingerprint)
	require.NoError(t, err)
	assert.Nil(t, got, "miss before set")

	require.NoError(t, repo.Set(ctx, receipt, time.Minute))

	got, err = repo.Get(ctx, receipt.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, receipt.ID, got.ID)

	require.NoError(t, repo.Delete(ctx, receipt.Fingerprint))
	got, err = repo.Get(ctx, receipt.Fingerprint)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReceiptCache_OverwritesSameFingerprint(t *testing.T) {
	repo := NewGoCacheReceiptRepo(testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	first := testReceipt("receipt-1")
	second := testReceipt("receipt-2")

	require.NoError(t, repo.Set(ctx, first, time.Minute))
	require.NoError(t, repo.Set(ctx, second, time.Minute))

	got, err := repo.Get(ctx, first.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "receipt-2", got.ID, "same fingerprint overwrites the prior entry")
}

func TestReceiptCache_TTLExpiry(t *testing.T) {
	repo := NewGoCacheReceiptRepo(testCacheConfig(), zap.NewNop())
	ctx := context.Background()
	receipt := testReceipt("receipt-1")

	require.NoError(t, repo.Set(ctx, receipt, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	got, err := repo.Get(ctx, receipt.Fingerprint)
	require.NoError(t, err)
	assert.Nil(t, got, "entry must be gone after its ttl")
}

func TestReceiptCache_ReturnsCopy(t *testing.T) {
	repo := NewGoCacheReceiptRepo(testCacheConfig(), zap.NewNop())
	ctx := context.Background()
	receipt := testReceipt("receipt-1")

	require.NoError(t, repo.Set(ctx, receipt, time.Minute))

	got, err := repo.Get(ctx, receipt.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, got)
	got.ID = "mutated"
	for addr := range got.Deltas {
		got.Deltas[addr] = "0"
	}

	again, err := repo.Get(ctx, receipt.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "receipt-1", again.ID, "callers must not be able to mutate the cached receipt")
	assert.Equal(t, receipt.Deltas, again.Deltas, "the deltas map must be copied, not shared")
}
