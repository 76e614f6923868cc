package repository

import (
	"context"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"tx-preflight/internal/config"
	"tx-preflight/internal/entity"
	"tx-preflight/internal/usecase"
)

// Compile-time check
var _ usecase.ReceiptCache = (*goCacheReceiptRepo)(nil)

// receiptKeyPrefix namespaces receipt entries inside the cache.
const receiptKeyPrefix = "receipt_"

type goCacheReceiptRepo struct {
	cache  *cache.Cache
	logger *zap.Logger
}

// NewGoCacheReceiptRepo creates the in-process receipt store. go-cache's own
// janitor bounds memory; correctness never depends on it because expiry is
// re-checked on every read.
func NewGoCacheReceiptRepo(cfg config.SimulationConfig, logger *zap.Logger) usecase.ReceiptCache {
	defaultTTL := cfg.GetReceiptValidity()
	cleanupInterval := cfg.GetCacheCleanupInterval()

	c := cache.New(defaultTTL, cleanupInterval)
	logger.Info("Initialized receipt cache",
		zap.Duration("defaultTTL", defaultTTL),
		zap.Duration("cleanupInterval", cleanupInterval))

	return &goCacheReceiptRepo{
		cache:  c,
		logger: logger.Named("ReceiptCache"),
	}
}

func (r *goCacheReceiptRepo) Get(ctx context.Context, fp entity.Fingerprint) (*entity.Receipt, error) {
	key := receiptKey(fp)
	if x, found := r.cache.Get(key); found {
		if receipt, ok := x.(entity.Receipt); ok {
			r.logger.Debug("Cache hit", zap.String("key", key))
			copied := receipt.Clone()
			return &copied, nil
		}
		r.logger.Warn("Cache data type mismatch for key", zap.String("key", key), zap.Any("type", fmt.Sprintf("%T", x)))
		// Treat type mismatch as cache miss
	}
	r.logger.Debug("Cache miss", zap.String("key", key))
	return nil, nil
}

func (r *goCacheReceiptRepo) Set(ctx context.Context, receipt entity.Receipt, ttl time.Duration) error {
	key := receiptKey(receipt.Fingerprint)
	if ttl <= 0 {
		ttl = time.Until(receipt.ExpiresAt)
	}
	r.cache.Set(key, receipt, ttl)
	r.logger.Debug("Cache set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (r *goCacheReceiptRepo) Delete(ctx context.Context, fp entity.Fingerprint) error {
	key := receiptKey(fp)
	r.cache.Delete(key)
	r.logger.Debug("Cache delete", zap.String("key", key))
	return nil
}

func (r *goCacheReceiptRepo) DeleteExpired(ctx context.Context) {
	r.cache.DeleteExpired()
	r.logger.Debug("Expired cache entries swept")
}

// Helper to generate consistent cache keys
func receiptKey(fp entity.Fingerprint) string {
	return receiptKeyPrefix + fp.Hex()
}
