package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a tradie's prepaid balance. Balance is a cache of the ledger:
// it always equals the sum of the owner's completed transaction amounts.
type Wallet struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	Balance   int64     `json:"balance"` // minor units, never negative
	Currency  string    `json:"currency"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanDebit reports whether amount can be taken without overdrawing.
func (w *Wallet) CanDebit(amount int64) bool {
	return amount > 0 && w.Balance >= amount
}

// TransactionKind classifies a wallet ledger entry.
type TransactionKind string

const (
	TransactionKindRecharge TransactionKind = "recharge"
	TransactionKindUnlock   TransactionKind = "unlock"
	TransactionKindRefund   TransactionKind = "refund"
)

// TransactionStatus is the final state of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// WalletTransaction is an immutable, append-only ledger entry.
type WalletTransaction struct {
	ID          uuid.UUID         `json:"id"`
	OwnerID     uuid.UUID         `json:"owner_id"`
	Kind        TransactionKind   `json:"kind"`
	Amount      int64             `json:"amount"` // signed: debits are negative
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// IsCompleted returns true if the entry counts towards the balance.
func (t *WalletTransaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// IsDebit returns true for entries that take money out of the wallet.
func (t *WalletTransaction) IsDebit() bool {
	return t.Amount < 0
}

// LedgerBalance sums the completed amounts of txs.
func LedgerBalance(txs []*WalletTransaction) int64 {
	var sum int64
	for _, tx := range txs {
		if tx.IsCompleted() {
			sum += tx.Amount
		}
	}
	return sum
}

// TransactionPage is one page of a wallet's history, newest first.
type TransactionPage struct {
	Items      []*WalletTransaction `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}
