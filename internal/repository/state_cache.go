package repository

import (
	"context"
	"errors"
	"fmt"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	pkgcache "FXEngine/pkg/cache"
)

const riskStateKey = "risk_state"

// CacheStateStore persists RiskState through a cache service, normally the
// redis backend, so replicas on different hosts share one set of counters.
type CacheStateStore struct {
	cache pkgcache.Service
	key   string
}

func NewCacheStateStore(c pkgcache.Service, account string) *CacheStateStore {
	key := riskStateKey
	if account != "" {
		key = pkgcache.GenerateKey(riskStateKey, account)
	}
	return &CacheStateStore{cache: c, key: key}
}

func (s *CacheStateStore) Load(ctx context.Context) (*models.RiskState, error) {
	var st models.RiskState
	err := s.cache.Get(ctx, s.key, &st)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", s.key, err)
	}
	return &st, nil
}

// Save stores the state without expiry.
func (s *CacheStateStore) Save(ctx context.Context, st *models.RiskState) error {
	if err := s.cache.Set(ctx, s.key, st, 0); err != nil {
		return fmt.Errorf("save state %s: %w", s.key, err)
	}
	return nil
}

var _ domrepo.StateStore = (*CacheStateStore)(nil)
