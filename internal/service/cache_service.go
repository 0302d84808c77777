package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

const listingKeyPrefix = "listings:"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool

	// listingGen counts listing invalidations.
	listingGen atomic.Uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateListings drops every cached request listing.
func (s *CacheService) InvalidateListings(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	s.listingGen.Add(1)
	return s.Invalidate(ctx, listingKeyPrefix+"*")
}

// ListingGeneration returns the invalidation counter to pass to SetListing.
func (s *CacheService) ListingGeneration() uint64 {
	if !s.Enabled() {
		return 0
	}
	return s.listingGen.Load()
}

// SetListing caches a listing page read at generation gen. The page is not kept
// when listings were invalidated after gen was observed.
func (s *CacheService) SetListing(ctx context.Context, key string, gen uint64, value interface{}, ttl time.Duration) error {
	if !s.Enabled() || s.listingGen.Load() != gen {
		return nil
	}
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if s.listingGen.Load() != gen {
		return s.Invalidate(ctx, key)
	}
	return nil
}

// ListingKey derives a stable cache key from a listing filter. Text fields are
// quoted so a separator inside a value cannot collide with a field boundary.
func ListingKey(filter models.RequestFilter) string {
	var status, urgency, budget, before string
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	if filter.Urgency != nil {
		urgency = string(*filter.Urgency)
	}
	if filter.MaxBudget != nil {
		budget = fmt.Sprint(*filter.MaxBudget)
	}
	if filter.SessionBefore != nil {
		before = filter.SessionBefore.UTC().Format(time.RFC3339)
	}
	raw := fmt.Sprintf("%q|%q|%q|%q|%q|%q|%q|%d|%d",
		status, filter.StudentID, filter.Subject, filter.Search, urgency, budget, before, filter.Page, filter.PageSize)
	sum := sha1.Sum([]byte(raw))
	return listingKeyPrefix + hex.EncodeToString(sum[:])
}
