package models

import "time"

// WebhookDelivery records a processed result delivery by its idempotency key.
// Summary holds the JSON response that was sent the first time.
type WebhookDelivery struct {
	Key        string    `json:"key" gorm:"primaryKey"`
	Summary    string    `json:"summary" gorm:"type:text;not null"`
	ReceivedAt time.Time `json:"received_at" gorm:"autoCreateTime"`
}
