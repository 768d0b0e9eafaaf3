package dto

import (
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/shopspring/decimal"
)

// CreateRequestRequest is the request body for posting a job.
type CreateRequestRequest struct {
	TradeType   string `json:"trade_type" binding:"required,max=64"`
	Description string `json:"description" binding:"required,max=2000"`
	Postcode    string `json:"postcode" binding:"required,postcode"`
	Urgency     string `json:"urgency" binding:"required,oneof=low medium high urgent"`
}

// QuoteBreakdown splits a quote amount into materials and labour.
type QuoteBreakdown struct {
	Materials int64 `json:"materials" binding:"gte=0"`
	Labour    int64 `json:"labour" binding:"gte=0"`
}

// SubmitQuoteRequest is the request body for quoting on an unlocked job.
type SubmitQuoteRequest struct {
	Amount                  int64          `json:"amount" binding:"required,gt=0"`
	Breakdown               QuoteBreakdown `json:"breakdown"`
	EstimatedStartDate      time.Time      `json:"estimated_start_date" binding:"required"`
	EstimatedCompletionDate time.Time      `json:"estimated_completion_date" binding:"required,gtefield=EstimatedStartDate"`
	Notes                   string         `json:"notes" binding:"max=1000"`
}

// CompleteRequestRequest is the request body for closing a job with a rating.
type CompleteRequestRequest struct {
	Rating *float64 `json:"rating" binding:"required,gte=0,lte=5"`
	Review string   `json:"review" binding:"max=1000"`
}

// RechargeRequest is the request body for a wallet recharge. The amount
// ceiling is a hard bound; marketplace.max_recharge is enforced below it.
type RechargeRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0,lte=100000000"`
	Method string `json:"method" binding:"omitempty,max=32,safe_id"`
}

// WalletBalanceResponse is the response for a balance query.
type WalletBalanceResponse struct {
	OwnerID  string `json:"owner_id"`
	Balance  int64  `json:"balance"`
	Display  string `json:"display"`
	Currency string `json:"currency"`
	Version  int64  `json:"version"`
}

// TransactionResponse is one wallet log row.
type TransactionResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Display     string `json:"display"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// TransactionListResponse wraps a cursor page of wallet transactions.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// NewTransactionResponse maps a wallet log row to its wire form.
func NewTransactionResponse(t *domain.WalletTransaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID.String(),
		Kind:        string(t.Kind),
		Amount:      t.Amount,
		Display:     FormatMinor(t.Amount),
		Status:      string(t.Status),
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewWalletBalanceResponse maps a wallet to its wire form.
func NewWalletBalanceResponse(w *domain.Wallet) WalletBalanceResponse {
	return WalletBalanceResponse{
		OwnerID:  w.OwnerID.String(),
		Balance:  w.Balance,
		Display:  FormatMinor(w.Balance),
		Currency: w.Currency,
		Version:  w.Version,
	}
}

// FormatMinor renders minor units as a two-decimal amount, e.g. -50 -> "-0.50".
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
