package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Aminu222/tradelink-sub000/internal/cache"
	"github.com/Aminu222/tradelink-sub000/internal/domain"
	"github.com/Aminu222/tradelink-sub000/internal/pricing"
	"github.com/Aminu222/tradelink-sub000/internal/repository"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrBelowMinimumOrder = errors.New("quantity is below the product minimum order quantity")
	ErrItemNotFound      = errors.New("item not found in cart")
)

// PersistenceError reports a failed write to the backing store after a
// successful in-memory mutation. The in-memory cart remains authoritative
// for the rest of the process lifetime.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist cart (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CartStore holds one guest session's cart in memory and writes every
// mutation through to the repository. Reads never touch the store once the
// cart is loaded.
type CartStore struct {
	sessionID string
	repo      repository.CartRepository
	cache     cache.CartCache
	policy    *pricing.Policy
	log       *zap.Logger
	sfg       singleflight.Group // Prevents cache stampede on first load

	mu        sync.Mutex
	items     []domain.CartLineItem
	createdAt time.Time
	loaded    bool
}

func NewCartStore(sessionID string, repo repository.CartRepository, cartCache cache.CartCache, policy *pricing.Policy, log *zap.Logger) *CartStore {
	return &CartStore{
		sessionID: sessionID,
		repo:      repo,
		cache:     cartCache,
		policy:    policy,
		log:       log,
	}
}

func (s *CartStore) SessionID() string {
	return s.sessionID
}

// load hydrates the in-memory cart from cache, falling back to the
// repository. A missing cart is an empty cart, created on first access.
func (s *CartStore) load(ctx context.Context) error {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_, err, _ := s.sfg.Do(s.sessionID, func() (interface{}, error) {
		cart, errCache := s.cache.Get(ctx, s.sessionID)
		if errCache != nil {
			if !errors.Is(errCache, cache.ErrCacheMiss) {
				s.log.Warn("cache get failed", zap.String("session_id", s.sessionID), zap.Error(errCache))
			}

			var errGet error
			cart, errGet = s.repo.GetCart(ctx, s.sessionID)
			if errGet != nil && !errors.Is(errGet, repository.ErrCartNotFound) {
				return nil, errGet
			}
			if cart != nil {
				s.cacheCart(cart)
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loaded {
			return nil, nil
		}
		if cart != nil {
			s.items = cart.Items
			s.createdAt = cart.CreatedAt
		}
		s.loaded = true
		return nil, nil
	})
	return err
}

// AddItem merges the item into the cart: an existing line for the same
// product has its quantity incremented, otherwise a new line is appended.
func (s *CartStore) AddItem(ctx context.Context, item domain.CartLineItem) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if err := s.load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	merged := item.Quantity
	idx := -1
	for i := range s.items {
		if s.items[i].ProductID == item.ProductID {
			idx = i
			merged += s.items[i].Quantity
			break
		}
	}

	floor := item.MinOrderQuantity
	if idx >= 0 {
		floor = s.items[idx].MinOrderQuantity
	}
	if floor > 0 && merged < floor {
		s.mu.Unlock()
		return ErrBelowMinimumOrder
	}

	if idx >= 0 {
		s.items[idx].Quantity = merged
	} else {
		item.AddedAt = time.Now()
		s.items = append(s.items, item)
	}
	s.mu.Unlock()

	return s.persist(ctx, "add item")
}

// UpdateQuantity replaces a line's quantity. Quantities below 1 are
// rejected and the cart is left unchanged; removal is RemoveItem's job.
func (s *CartStore) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if err := s.load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	idx := -1
	for i := range s.items {
		if s.items[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	if floor := s.items[idx].MinOrderQuantity; floor > 0 && quantity < floor {
		s.mu.Unlock()
		return ErrBelowMinimumOrder
	}
	s.items[idx].Quantity = quantity
	s.mu.Unlock()

	return s.persist(ctx, "update quantity")
}

// RemoveItem deletes the line if present. Removing an absent product is a
// no-op, not an error.
func (s *CartStore) RemoveItem(ctx context.Context, productID int64) error {
	if err := s.load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	removed := false
	for i, item := range s.items {
		if item.ProductID == productID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if !removed {
		return nil
	}
	return s.persist(ctx, "remove item")
}

func (s *CartStore) Clear(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()

	errDelete := s.repo.DeleteCart(ctx, s.sessionID)
	if errDelete != nil && !errors.Is(errDelete, repository.ErrCartNotFound) {
		perr := &PersistenceError{Op: "clear", Err: errDelete}
		s.log.Error("cart persistence failed", zap.String("session_id", s.sessionID), zap.Error(errDelete))
		return perr
	}

	s.invalidateCache()
	return nil
}

// Items returns a snapshot of the current line items in insertion order.
// The returned slice is the caller's to keep.
func (s *CartStore) Items(ctx context.Context) ([]domain.CartLineItem, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]domain.CartLineItem, len(s.items))
	copy(snapshot, s.items)
	return snapshot, nil
}

// Subtotal is the sum of unit_price * quantity over all lines. Shipping
// and tax belong to the checkout quote, not the cart page.
func (s *CartStore) Subtotal(ctx context.Context) (decimal.Decimal, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return s.policy.Subtotal(items)
}

func (s *CartStore) persist(ctx context.Context, op string) error {
	s.mu.Lock()
	cart := &domain.Cart{
		SessionID: s.sessionID,
		Items:     make([]domain.CartLineItem, len(s.items)),
		CreatedAt: s.createdAt,
	}
	copy(cart.Items, s.items)
	s.mu.Unlock()

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		perr := &PersistenceError{Op: op, Err: err}
		s.log.Error("cart persistence failed",
			zap.String("session_id", s.sessionID),
			zap.String("op", op),
			zap.Error(err))
		return perr
	}

	s.mu.Lock()
	if s.createdAt.IsZero() {
		s.createdAt = cart.CreatedAt
	}
	s.mu.Unlock()

	s.invalidateCache()
	return nil
}

func (s *CartStore) cacheCart(cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, s.sessionID, cart); err != nil {
		s.log.Warn("cache set failed", zap.String("session_id", s.sessionID), zap.Error(err))
	}
}

func (s *CartStore) invalidateCache() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, s.sessionID); err != nil {
		s.log.Warn("cache invalidate failed", zap.String("session_id", s.sessionID), zap.Error(err))
	}
}
