package repository

import (
	"context"

	"github.com/Aminu222/tradelink-sub000/internal/domain"
)

// CartRepository defines the interface for durable cart storage.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
}
