package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aminu222/tradelink-sub000/internal/cache"
	"github.com/Aminu222/tradelink-sub000/internal/domain"
	"github.com/Aminu222/tradelink-sub000/internal/pricing"
	"github.com/Aminu222/tradelink-sub000/internal/repository"
)

type mockRepository struct {
	m       sync.RWMutex
	cart    *domain.Cart
	err     error
	upserts int
}

func (m *mockRepository) GetCart(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, repository.ErrCartNotFound
	}
	return m.cart, nil
}

func (m *mockRepository) UpsertCart(_ context.Context, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.cart = c
	m.upserts++
	return nil
}

func (m *mockRepository) DeleteCart(_ context.Context, _ string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.cart = nil
	return nil
}

func (m *mockRepository) storedCart() *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.cart
}

func (m *mockRepository) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.err = err
}

type mockCache struct {
	m    sync.RWMutex
	cart *domain.Cart
	err  error
	sets int
}

func (m *mockCache) Get(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.cart, nil
}

func (m *mockCache) Set(_ context.Context, _ string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = cart
	m.sets++
	return m.err
}

func (m *mockCache) setCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.sets
}

func (m *mockCache) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = nil
	return m.err
}

func newTestStore(repo repository.CartRepository, c cache.CartCache) *CartStore {
	return NewCartStore("session-1", repo, c, pricing.DefaultPolicy(), zap.NewNop())
}

func lineItem(productID int64, price int64, quantity int) domain.CartLineItem {
	return domain.CartLineItem{
		ProductID: productID,
		Name:      "test product",
		UnitPrice: decimal.NewFromInt(price),
		Currency:  "NGN",
		Quantity:  quantity,
	}
}

func TestAddItem_NewLine(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddItem_MergesQuantities(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(5, 1000, 1)))
	require.NoError(t, sut.AddItem(ctx, lineItem(5, 1000, 3)))

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1, "same product must merge into a single line")
	assert.Equal(t, int64(5), items[0].ProductID)
	assert.Equal(t, 4, items[0].Quantity)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	assert.ErrorIs(t, sut.AddItem(ctx, lineItem(1, 1000, 0)), ErrInvalidQuantity)
	assert.ErrorIs(t, sut.AddItem(ctx, lineItem(1, 1000, -3)), ErrInvalidQuantity)

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddItem_BelowMinimumOrder(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	item := lineItem(1, 1000, 2)
	item.MinOrderQuantity = 5
	assert.ErrorIs(t, sut.AddItem(ctx, item), ErrBelowMinimumOrder)

	// merged quantity satisfies the floor
	item.Quantity = 3
	assert.ErrorIs(t, sut.AddItem(ctx, item), ErrBelowMinimumOrder)
	item.Quantity = 5
	require.NoError(t, sut.AddItem(ctx, item))
}

func TestUpdateQuantity(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))
	require.NoError(t, sut.UpdateQuantity(ctx, 1, 7))

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, items[0].Quantity)
}

func TestUpdateQuantity_ZeroRejected(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))

	assert.ErrorIs(t, sut.UpdateQuantity(ctx, 1, 0), ErrInvalidQuantity)

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, items[0].Quantity, "cart must be unchanged after a rejected update")
}

func TestUpdateQuantity_UnknownProduct(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	assert.ErrorIs(t, sut.UpdateQuantity(ctx, 42, 3), ErrItemNotFound)
}

func TestRemoveItem_Idempotent(t *testing.T) {
	repo := &mockRepository{}
	sut := newTestStore(repo, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))

	require.NoError(t, sut.RemoveItem(ctx, 1))
	require.NoError(t, sut.RemoveItem(ctx, 1), "second remove is a no-op, not an error")

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQuantityInvariant(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))
	require.NoError(t, sut.AddItem(ctx, lineItem(2, 500, 1)))
	_ = sut.UpdateQuantity(ctx, 1, 0)
	_ = sut.UpdateQuantity(ctx, 2, -5)
	_ = sut.AddItem(ctx, lineItem(3, 700, 0))
	require.NoError(t, sut.RemoveItem(ctx, 1))
	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 4)))

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	for _, item := range items {
		assert.GreaterOrEqual(t, item.Quantity, 1)
	}
}

func TestSubtotal(t *testing.T) {
	sut := newTestStore(&mockRepository{}, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))
	require.NoError(t, sut.AddItem(ctx, lineItem(2, 250, 4)))

	subtotal, err := sut.Subtotal(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3000).Equal(subtotal), "subtotal = %s", subtotal)
}

func TestPersistenceFailureKeepsMemoryAuthoritative(t *testing.T) {
	repo := &mockRepository{}
	sut := newTestStore(repo, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))

	repo.setErr(assert.AnError)
	err := sut.AddItem(ctx, lineItem(2, 500, 1))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	// the in-memory cart kept the mutation even though the write failed
	items, itemsErr := sut.Items(ctx)
	require.NoError(t, itemsErr)
	assert.Len(t, items, 2)
}

func TestClear(t *testing.T) {
	repo := &mockRepository{}
	sut := newTestStore(repo, &mockCache{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(1, 1000, 2)))
	require.NoError(t, sut.Clear(ctx))

	items, err := sut.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Nil(t, repo.storedCart())
}

func TestLoad_HydratesFromRepository(t *testing.T) {
	repo := &mockRepository{
		cart: &domain.Cart{
			SessionID: "session-1",
			Items:     []domain.CartLineItem{lineItem(9, 800, 3)},
		},
	}
	sut := newTestStore(repo, &mockCache{})

	items, err := sut.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(9), items[0].ProductID)
}

func TestLoad_PopulatesCacheAfterRepositoryFetch(t *testing.T) {
	repo := &mockRepository{
		cart: &domain.Cart{
			SessionID: "session-1",
			Items:     []domain.CartLineItem{lineItem(9, 800, 3)},
		},
	}
	c := &mockCache{}
	sut := newTestStore(repo, c)

	_, err := sut.Items(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.setCount())

	// A fresh store for the same session is served from the cache even if
	// the repository is down.
	repo.setErr(assert.AnError)
	warm := newTestStore(repo, c)
	items, err := warm.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(9), items[0].ProductID)
}

func TestMutationInvalidatesCache(t *testing.T) {
	c := &mockCache{cart: &domain.Cart{
		SessionID: "session-1",
		Items:     []domain.CartLineItem{lineItem(9, 800, 3)},
	}}
	sut := newTestStore(&mockRepository{}, c)
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, lineItem(9, 800, 3)))
	_, err := c.Get(ctx, "session-1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestStores_OneStorePerSession(t *testing.T) {
	stores := NewStores(&mockRepository{}, &mockCache{}, pricing.DefaultPolicy(), zap.NewNop())

	a := stores.ForSession("a")
	b := stores.ForSession("b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, stores.ForSession("a"))
}
