package models

import "time"

type OutboxStatus int

const (
	OutboxPending   OutboxStatus = 1
	OutboxCompleted OutboxStatus = 2
)

type Outbox struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement"`
	Topic     string       `gorm:"type:varchar(100);not null"`
	Key       string       `gorm:"type:varchar(100)"`
	Content   []byte       `gorm:"type:blob;not null"`
	Status    OutboxStatus `gorm:"not null;default:1;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Outbox) TableName() string {
	return "order_outboxes"
}
