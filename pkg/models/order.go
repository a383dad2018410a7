package models

import (
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusShipping  OrderStatus = "SHIPPING"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipping, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

// Order is one checkout. A nil UserID marks a guest order.
type Order struct {
	ID             uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         *uint64       `gorm:"index" json:"user_id,omitempty"`
	Address        string        `gorm:"type:varchar(255);not null" json:"address"`
	Phone          string        `gorm:"type:varchar(20);not null" json:"phone"`
	Status         OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMethod  PaymentMethod `gorm:"type:varchar(20);not null" json:"payment_method"`
	Subtotal       int64         `gorm:"not null" json:"subtotal"`
	DiscountAmount int64         `gorm:"not null;default:0" json:"discount_amount"`
	Total          int64         `gorm:"not null" json:"total"`
	Note           string        `gorm:"type:text" json:"note,omitempty"`
	VoucherCode    *string       `gorm:"type:varchar(50)" json:"voucher_code,omitempty"`
	IdempotencyKey *string       `gorm:"type:varchar(96);uniqueIndex" json:"-"`
	RequestHash    string        `gorm:"type:char(64)" json:"-"`
	PlacedAt       time.Time     `gorm:"not null;index" json:"placed_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Details        []OrderDetail `gorm:"foreignKey:OrderID" json:"details"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) Guest() bool {
	return o.UserID == nil
}

// OrderDetail captures price and product data at order time so later catalog
// changes do not alter historical orders.
type OrderDetail struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID         uint64 `gorm:"not null;index" json:"-"`
	ProductID       uint64 `gorm:"not null;index" json:"product_id"`
	ProductTitle    string `gorm:"type:varchar(255)" json:"title"`
	ProductAuthor   string `gorm:"type:varchar(255)" json:"author"`
	Quantity        int    `gorm:"not null" json:"quantity"`
	UnitPrice       int64  `gorm:"not null" json:"unit_price"`
	DiscountPercent int    `gorm:"not null;default:0" json:"discount_percent"`
	LineTotal       int64  `gorm:"not null" json:"line_total"`
}

func (OrderDetail) TableName() string {
	return "order_details"
}

type OrderAccessToken struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Token     string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	OrderID   uint64    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null;default:false"`
}

func (OrderAccessToken) TableName() string {
	return "order_access_tokens"
}
