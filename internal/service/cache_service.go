package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/psicometria/bat7-api/pkg/errors"
)

const defaultSnapshotTTL = 5 * time.Minute

// CacheRepository is the key/value store behind list snapshots.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ListingKey is the cache key of the snapshot of entity.
func ListingKey(entity string) string { return "listing:" + entity + ":snapshot" }

// ListingPattern matches every cache key owned by entity.
func ListingPattern(entity string) string { return "listing:" + entity + ":*" }

// CacheService caches the full row snapshots list pages are cut from. A nil
// *CacheService is a valid, disabled cache.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCacheService constructs a CacheService. A non-positive ttl uses five
// minutes.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *CacheService {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger}
}

func (s *CacheService) enabled() bool { return s != nil && s.repo != nil }

// LoadSnapshot decodes the cached snapshot of entity into dest and reports a
// hit. Store failures count as misses.
func (s *CacheService) LoadSnapshot(ctx context.Context, entity string, dest interface{}) bool {
	if !s.enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, ListingKey(entity), dest)
	hit := err == nil
	s.metrics.RecordCacheOperation(hit, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("snapshot read failed", zap.String("entity", entity), zap.Error(err))
	}
	return hit
}

// StoreSnapshot caches rows as the snapshot of entity. ttl <= 0 uses the
// service default.
func (s *CacheService) StoreSnapshot(ctx context.Context, entity string, rows interface{}, ttl time.Duration) {
	if !s.enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := time.Now()
	err := s.repo.Set(ctx, ListingKey(entity), rows, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("snapshot write failed", zap.String("entity", entity), zap.Error(err))
	}
}

// DropSnapshots removes every cached key of entity.
func (s *CacheService) DropSnapshots(ctx context.Context, entity string) error {
	if !s.enabled() {
		return nil
	}
	return s.repo.DeleteByPattern(ctx, ListingPattern(entity))
}
