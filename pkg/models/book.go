package models

import "time"

// Book is a catalog row. The order service only reads it.
type Book struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	Author          string    `gorm:"type:varchar(255)" json:"author"`
	Price           int64     `gorm:"not null" json:"price"`
	DiscountPercent *int      `json:"discount_percent,omitempty"`
	Stock           int       `gorm:"not null;default:0" json:"stock"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Book) TableName() string {
	return "books"
}
