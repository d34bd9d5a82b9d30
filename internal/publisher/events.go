package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderPlacedItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"product_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPlacedEvent is published once per successful checkout, after every
// line item's order has been created.
type OrderPlacedEvent struct {
	CheckoutID  string            `json:"checkout_id"`
	SessionID   string            `json:"session_id"`
	Items       []OrderPlacedItem `json:"items"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Shipping    decimal.Decimal   `json:"shipping_cost"`
	Tax         decimal.Decimal   `json:"tax"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Currency    string            `json:"currency"`
	CompletedAt time.Time         `json:"completed_at"`
}

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *OrderPlacedEvent) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(log *zap.Logger, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "order-placed",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, event *OrderPlacedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order placed event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CheckoutID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish order placed event: %w", err)
	}

	p.log.Info("order placed event published", zap.String("checkout_id", event.CheckoutID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
