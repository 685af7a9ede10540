// Package events publishes order lifecycle events to Kafka for downstream
// consumers (analytics, fulfilment). Publishing is optional: with no brokers
// configured the publisher is simply not wired in.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/lumeshop/storefront-api/internal/domain/order"
)

// OrderCreatedTopic carries one message per durably created order.
const OrderCreatedTopic = "storefront.order.created"

// orderCreated is the wire payload for OrderCreatedTopic.
type orderCreated struct {
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	PaymentStatus  string    `json:"payment_status"`
	TotalAmount    string    `json:"total_amount"`
	DiscountAmount string    `json:"discount_amount"`
	PromoCode      string    `json:"promo_code,omitempty"`
	ItemCount      int       `json:"item_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Publisher writes order events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Publisher for the given brokers.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        OrderCreatedTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// OrderCreated publishes the order-created event, keyed by order ID.
func (p *Publisher) OrderCreated(ctx context.Context, o *order.Order) error {
	payload, err := json.Marshal(orderCreated{
		OrderID:        o.ID,
		UserID:         o.UserID,
		PaymentStatus:  string(o.PaymentStatus),
		TotalAmount:    o.TotalAmount.StringFixed(2),
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		PromoCode:      o.PromoCode,
		ItemCount:      len(o.Items),
		CreatedAt:      o.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal order created event")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(o.ID),
		Value: payload,
		Time:  o.CreatedAt,
	})
	if err != nil {
		return errors.Wrapf(err, "publish order created event for %s", o.ID)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
