package archive

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord is one committed protocol event.
type EventRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence  uint64    `gorm:"uniqueIndex" json:"sequence"`
	Module    string    `gorm:"size:32;index" json:"module"`
	Type      string    `gorm:"size:64;index" json:"type"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// IdempotencyKey stores the first response produced for a client supplied
// Idempotency-Key header.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	RequestID string `gorm:"size:64"`
	Principal string `gorm:"size:96;index"`
	Method    string `gorm:"size:16"`
	Path      string `gorm:"size:256"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}
