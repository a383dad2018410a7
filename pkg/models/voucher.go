package models

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// Voucher carries either a percentage (with optional cap) or a fixed amount.
type Voucher struct {
	ID            uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Type          DiscountType `gorm:"type:varchar(20);not null" json:"type"`
	Percent       *int         `json:"percent,omitempty"`
	MaxDiscount   *int64       `json:"max_discount,omitempty"`
	FixedAmount   *int64       `json:"fixed_amount,omitempty"`
	MinOrderValue int64        `gorm:"not null;default:0" json:"min_order_value"`
	StartDate     time.Time    `gorm:"type:date;not null" json:"start_date"`
	EndDate       time.Time    `gorm:"type:date;not null" json:"end_date"`
	Quantity      int          `gorm:"not null;default:0" json:"quantity"`
	UserID        *uint64      `gorm:"index" json:"user_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (Voucher) TableName() string {
	return "vouchers"
}
