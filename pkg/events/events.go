// Package events defines the order events written to the transactional
// outbox and relays pending outbox rows to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/bookshop/pkg/models"
	"github.com/google/uuid"
)

const (
	TopicOrderPlaced        = "bookshop.order.placed"
	TopicOrderStatusChanged = "bookshop.order.status_changed"
)

type OrderPlaced struct {
	EventID        string               `json:"event_id"`
	OrderID        uint64               `json:"order_id"`
	UserID         *uint64              `json:"user_id,omitempty"`
	Guest          bool                 `json:"guest"`
	Status         models.OrderStatus   `json:"status"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	Subtotal       int64                `json:"subtotal"`
	DiscountAmount int64                `json:"discount_amount"`
	Total          int64                `json:"total"`
	VoucherCode    *string              `json:"voucher_code,omitempty"`
	Items          []PlacedItem         `json:"items"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

type PlacedItem struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type OrderStatusChanged struct {
	EventID    string             `json:"event_id"`
	OrderID    uint64             `json:"order_id"`
	From       models.OrderStatus `json:"from"`
	To         models.OrderStatus `json:"to"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func NewOrderPlaced(o *models.Order) OrderPlaced {
	e := OrderPlaced{
		EventID:        uuid.NewString(),
		OrderID:        o.ID,
		UserID:         o.UserID,
		Guest:          o.Guest(),
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		Total:          o.Total,
		VoucherCode:    o.VoucherCode,
		OccurredAt:     o.PlacedAt,
	}
	for _, d := range o.Details {
		e.Items = append(e.Items, PlacedItem{ProductID: d.ProductID, Quantity: d.Quantity, LineTotal: d.LineTotal})
	}
	return e
}

func NewOrderStatusChanged(orderID uint64, from, to models.OrderStatus, at time.Time) OrderStatusChanged {
	return OrderStatusChanged{
		EventID:    uuid.NewString(),
		OrderID:    orderID,
		From:       from,
		To:         to,
		OccurredAt: at,
	}
}

// NewOutbox serializes payload into a pending outbox row keyed by order.
func NewOutbox(topic string, orderID uint64, payload any) (*models.Outbox, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return &models.Outbox{
		Topic:   topic,
		Key:     fmt.Sprintf("ORDER#%d", orderID),
		Content: content,
		Status:  models.OutboxPending,
	}, nil
}
