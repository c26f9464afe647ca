package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Idempotency records the response of a completed turn, keyed by
// (customer_id, channel, key). Retries carrying the same Idempotency-Key
// receive the stored response without re-running the turn.
type Idempotency struct {
	ID         string         `gorm:"type:TEXT NOT NULL;primaryKey"`
	CustomerID string         `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_customer_channel_key,priority:1"`
	Channel    string         `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_customer_channel_key,priority:2"`
	Key        string         `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_customer_channel_key,priority:3"`
	Response   datatypes.JSON `gorm:"not null"`
	Status     int            `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time      `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// RateCounter is one fixed-window hit counter used by the SQL-backed
// throttling counter. Key already embeds the window index.
type RateCounter struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`
	Hits      int64     `gorm:"not null;default:0"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (RateCounter) TableName() string { return "rate_counters" }
