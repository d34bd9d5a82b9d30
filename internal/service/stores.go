package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Aminu222/tradelink-sub000/internal/cache"
	"github.com/Aminu222/tradelink-sub000/internal/pricing"
	"github.com/Aminu222/tradelink-sub000/internal/repository"
)

// Stores hands out one CartStore per guest session. Sessions never share a
// store, so no cross-session locking exists beyond this map.
type Stores struct {
	repo   repository.CartRepository
	cache  cache.CartCache
	policy *pricing.Policy
	log    *zap.Logger

	mu     sync.Mutex
	stores map[string]*CartStore
}

func NewStores(repo repository.CartRepository, cartCache cache.CartCache, policy *pricing.Policy, log *zap.Logger) *Stores {
	return &Stores{
		repo:   repo,
		cache:  cartCache,
		policy: policy,
		log:    log,
		stores: make(map[string]*CartStore),
	}
}

func (s *Stores) ForSession(sessionID string) *CartStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[sessionID]
	if !ok {
		store = NewCartStore(sessionID, s.repo, s.cache, s.policy, s.log)
		s.stores[sessionID] = store
	}
	return store
}
