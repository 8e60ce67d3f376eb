package domain

import (
	"time"
)

// Transaction is a single validated money movement between two accounts.
// Records arrive from the ingestion layer already typed: ids are trimmed,
// amounts are numeric. A nil Timestamp means the source value could not be
// parsed; the record is still analyzed, only its temporal signal is lost.
type Transaction struct {
	ID         string     `json:"transaction_id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Amount     float64    `json:"amount"`
	Timestamp  *time.Time `json:"timestamp"`
}

// HasTimestamp reports whether the transaction carries a parseable timestamp.
func (t *Transaction) HasTimestamp() bool {
	return t.Timestamp != nil
}

// Batch is a persisted raw transaction batch awaiting async analysis.
type Batch struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name,omitempty"`
	Payload   []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
