package domain

import (
	"time"

	"github.com/google/uuid"
)

// RechargeReceipt is the stored outcome of a recharge sent with an
// Idempotency-Key. Retries carrying the same amount and method replay Entry.
type RechargeReceipt struct {
	Key       string             `json:"key"`
	OwnerID   uuid.UUID          `json:"owner_id"`
	Amount    int64              `json:"amount"`
	Method    string             `json:"method"`
	Entry     *WalletTransaction `json:"entry"`
	CreatedAt time.Time          `json:"created_at"`
}

// RechargeReceiptKey scopes a client-supplied key to its owner, so two
// tradies may use the same key independently.
func RechargeReceiptKey(ownerID uuid.UUID, clientKey string) string {
	return "recharge:" + ownerID.String() + ":" + clientKey
}

// Matches reports whether a retry asks for the same recharge.
func (r *RechargeReceipt) Matches(amount int64, method string) bool {
	return r.Amount == amount && r.Method == method
}
