package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnlockStatus is the state of an unlock record.
type UnlockStatus string

const (
	UnlockStatusCompleted UnlockStatus = "completed"
	UnlockStatusFailed    UnlockStatus = "failed"
)

// UnlockTransaction records that a tradie paid to view and quote a request.
// At most one completed unlock exists per (tradie, request).
type UnlockTransaction struct {
	ID                  uuid.UUID    `json:"id"`
	TradieID            uuid.UUID    `json:"tradie_id"`
	ServiceRequestID    uuid.UUID    `json:"service_request_id"`
	Amount              int64        `json:"amount"`
	WalletTransactionID uuid.UUID    `json:"wallet_transaction_id"`
	Status              UnlockStatus `json:"status"`
	CreatedAt           time.Time    `json:"created_at"`
}

// IsCompleted returns true if the unlock grants quoting rights.
func (u *UnlockTransaction) IsCompleted() bool {
	return u.Status == UnlockStatusCompleted
}
