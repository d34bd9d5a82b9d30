package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Aminu222/tradelink-sub000/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// cartDoc is the stored shape. Unit prices are kept as strings so the
// decimal amounts round-trip through BSON without loss.
type cartDoc struct {
	ID        string        `bson:"_id,omitempty"`
	SessionID string        `bson:"session_id"`
	Items     []lineItemDoc `bson:"items"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type lineItemDoc struct {
	ProductID        int64     `bson:"product_id"`
	Name             string    `bson:"name"`
	PriceUnit        string    `bson:"price_unit"`
	UnitPrice        string    `bson:"unit_price"`
	Currency         string    `bson:"currency"`
	Quantity         int       `bson:"quantity"`
	MinOrderQuantity int       `bson:"min_order_quantity,omitempty"`
	Image            string    `bson:"image,omitempty"`
	AddedAt          time.Time `bson:"added_at"`
}

func docFromCart(cart *domain.Cart) *cartDoc {
	doc := &cartDoc{
		ID:        cart.ID,
		SessionID: cart.SessionID,
		Items:     make([]lineItemDoc, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for i, item := range cart.Items {
		doc.Items[i] = lineItemDoc{
			ProductID:        item.ProductID,
			Name:             item.Name,
			PriceUnit:        item.PriceUnit,
			UnitPrice:        item.UnitPrice.String(),
			Currency:         item.Currency,
			Quantity:         item.Quantity,
			MinOrderQuantity: item.MinOrderQuantity,
			Image:            item.Image,
			AddedAt:          item.AddedAt,
		}
	}
	return doc
}

func (doc *cartDoc) toCart() (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        doc.ID,
		SessionID: doc.SessionID,
		Items:     make([]domain.CartLineItem, len(doc.Items)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for i, item := range doc.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("stored unit price %q for product %d: %w", item.UnitPrice, item.ProductID, err)
		}
		cart.Items[i] = domain.CartLineItem{
			ProductID:        item.ProductID,
			Name:             item.Name,
			PriceUnit:        item.PriceUnit,
			UnitPrice:        price,
			Currency:         item.Currency,
			Quantity:         item.Quantity,
			MinOrderQuantity: item.MinOrderQuantity,
			Image:            item.Image,
			AddedAt:          item.AddedAt,
		}
	}
	return cart, nil
}

type mongoRepository struct {
	collection *mongo.Collection
}

func (m *mongoRepository) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	var doc cartDoc

	filter := bson.M{"session_id": sessionID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toCart()
}

func (m *mongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()

	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	doc := docFromCart(cart)
	doc.ID = "" // let Mongo keep the existing _id on upsert

	filter := bson.M{"session_id": cart.SessionID}
	update := bson.M{"$set": bson.M{
		"session_id": doc.SessionID,
		"items":      doc.Items,
		"created_at": doc.CreatedAt,
		"updated_at": doc.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)

	_, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, sessionID string) error {
	filter := bson.M{"session_id": sessionID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL for abandoned guest carts
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
	}
}
