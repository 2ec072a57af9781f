package repository

import (
	"context"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	"DealWatch/pkg/cache"
)

// CachedFingerprintStore fronts the Postgres store with the layered cache.
// The daily cycle reads every deal's prior fingerprint once; the cache keeps
// that read off the database between cycles. Save writes through.
type CachedFingerprintStore struct {
	inner domrepo.FingerprintStore
	cache cache.Service
	ttl   time.Duration
}

func NewCachedFingerprintStore(inner domrepo.FingerprintStore, c cache.Service, ttl time.Duration) *CachedFingerprintStore {
	if ttl <= 0 {
		ttl = 36 * time.Hour
	}
	return &CachedFingerprintStore{inner: inner, cache: c, ttl: ttl}
}

var _ domrepo.FingerprintStore = (*CachedFingerprintStore)(nil)

func fingerprintKey(dealID string) string {
	return "fingerprint:latest:" + dealID
}

func (s *CachedFingerprintStore) Latest(ctx context.Context, dealID string) (*models.ContextFingerprint, error) {
	var fp models.ContextFingerprint
	if err := s.cache.Get(ctx, fingerprintKey(dealID), &fp); err == nil {
		return &fp, nil
	}
	// Miss or cache trouble, either way the database answers.
	got, err := s.inner.Latest(ctx, dealID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, fingerprintKey(dealID), got, s.ttl)
	return got, nil
}

func (s *CachedFingerprintStore) Save(ctx context.Context, fp *models.ContextFingerprint) error {
	if err := s.inner.Save(ctx, fp); err != nil {
		return err
	}
	_ = s.cache.Set(ctx, fingerprintKey(fp.DealID), fp, s.ttl)
	return nil
}
