package order

import (
	"fmt"
	"strings"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/models"
)

const (
	maxCartLines    = 100
	maxLineQuantity = 10_000
)

type CartItem struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items          []CartItem
	Address        string
	Phone          string
	PaymentMethod  models.PaymentMethod
	VoucherCode    string
	Note           string
	IdempotencyKey string
	// UserID is nil for guest checkout.
	UserID *uint64
}

// Placement is the checkout result. GuestToken is set only for guest orders.
type Placement struct {
	Order      *models.Order
	GuestToken string
	// Replayed reports that an earlier order with the same idempotency key
	// was returned instead of creating a new one.
	Replayed bool
}

// normalize validates the request and merges repeated products, keeping the
// position of each product's first occurrence.
func (r *PlaceOrderRequest) normalize() error {
	r.Address = strings.TrimSpace(r.Address)
	r.Phone = strings.TrimSpace(r.Phone)
	r.VoucherCode = strings.TrimSpace(r.VoucherCode)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)

	if len(r.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", apperr.ErrInvalidCart)
	}
	if len(r.Items) > maxCartLines {
		return fmt.Errorf("%w: more than %d lines", apperr.ErrInvalidCart, maxCartLines)
	}

	merged := make([]CartItem, 0, len(r.Items))
	index := map[uint64]int{}
	for i, it := range r.Items {
		if it.ProductID == 0 {
			return fmt.Errorf("%w: item %d has no product id", apperr.ErrInvalidCart, i)
		}
		if it.Quantity <= 0 || it.Quantity > maxLineQuantity {
			return fmt.Errorf("%w: item %d has quantity %d", apperr.ErrInvalidCart, i, it.Quantity)
		}
		if at, ok := index[it.ProductID]; ok {
			merged[at].Quantity += it.Quantity
			if merged[at].Quantity > maxLineQuantity {
				return fmt.Errorf("%w: product %d exceeds %d copies", apperr.ErrInvalidCart, it.ProductID, maxLineQuantity)
			}
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	r.Items = merged

	if r.Address == "" {
		return fmt.Errorf("%w: address is required", apperr.ErrInvalidInput)
	}
	if r.Phone == "" {
		return fmt.Errorf("%w: phone is required", apperr.ErrInvalidInput)
	}
	if !r.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", apperr.ErrInvalidInput, r.PaymentMethod)
	}
	if len(r.IdempotencyKey) > 64 {
		return fmt.Errorf("%w: idempotency key longer than 64 characters", apperr.ErrInvalidInput)
	}
	return nil
}
