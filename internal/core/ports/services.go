package ports

import (
	"context"
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=services.go -destination=mocks/services_mock.go -package=mocks

// TokenService validates caller tokens issued by the auth service.
// Generate exists for tooling and tests.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   domain.Role
}

// ReceiptCache fronts ReceiptRepository for retry replays.
type ReceiptCache interface {
	Get(ctx context.Context, key string) (*domain.RechargeReceipt, error) // nil on miss
	Set(ctx context.Context, receipt *domain.RechargeReceipt, ttl time.Duration) error
}

// IntelligenceCache holds the latest computed intelligence per request.
type IntelligenceCache interface {
	Get(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error) // nil on miss
	Set(ctx context.Context, intel *domain.RequestIntelligence, ttl time.Duration) error
}

// Notifier is the fire-and-forget push collaborator.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// WalletService performs atomic debit/credit operations on tradie wallets.
type WalletService interface {
	Debit(ctx context.Context, ownerID uuid.UUID, amount int64, reason string) (*domain.WalletTransaction, error)
	Credit(ctx context.Context, ownerID uuid.UUID, amount int64, reason string) (*domain.WalletTransaction, error)
	// DebitTx and CreditTx join the caller's transaction; the caller holds the wallet key.
	DebitTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, amount int64, reason string) (*domain.WalletTransaction, error)
	CreditTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, kind domain.TransactionKind, amount int64, reason string) (*domain.WalletTransaction, error)
	GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, ownerID uuid.UUID, cursor string, limit int) (*domain.TransactionPage, error)
}

// LifecycleService owns the request and quote state machines.
type LifecycleService interface {
	CreateRequest(ctx context.Context, customerID uuid.UUID, in CreateRequestInput) (*domain.ServiceRequest, error)
	GetRequest(ctx context.Context, caller Caller, requestID uuid.UUID) (*domain.ServiceRequest, error)
	Unlock(ctx context.Context, tradieID, requestID uuid.UUID) (*domain.UnlockTransaction, error)
	SubmitQuote(ctx context.Context, tradieID, requestID uuid.UUID, in SubmitQuoteInput) (*domain.Quote, error)
	ListQuotes(ctx context.Context, caller Caller, requestID uuid.UUID) ([]*domain.Quote, error)
	AcceptQuote(ctx context.Context, customerID, quoteID uuid.UUID) (*AcceptResult, error)
	CompleteRequest(ctx context.Context, customerID, requestID uuid.UUID, rating float64, review string) (*domain.ServiceRequest, error)
	CancelRequest(ctx context.Context, customerID, requestID uuid.UUID) (*CancelResult, error)
	RechargeWallet(ctx context.Context, userID uuid.UUID, amount int64, method, idempotencyKey string) (*domain.WalletTransaction, error)
	GetIntelligence(ctx context.Context, caller Caller, requestID uuid.UUID) (*domain.RequestIntelligence, error)
}

// Caller is the authenticated identity behind an operation.
type Caller struct {
	UserID uuid.UUID
	Role   domain.Role
}

// CreateRequestInput holds validated input for posting a job.
type CreateRequestInput struct {
	TradeType   string
	Description string
	Postcode    string
	Urgency     domain.Urgency
}

// SubmitQuoteInput holds validated input for a quote.
type SubmitQuoteInput struct {
	Amount                  int64
	Materials               int64
	Labour                  int64
	EstimatedStartDate      time.Time
	EstimatedCompletionDate time.Time
	Notes                   string
}

// AcceptResult is the outcome of accepting a quote.
type AcceptResult struct {
	Request  *domain.ServiceRequest `json:"request"`
	Quote    *domain.Quote          `json:"quote"`
	Rejected []uuid.UUID            `json:"rejected_quote_ids"`
}

// CancelResult is the outcome of cancelling a request.
type CancelResult struct {
	Request *domain.ServiceRequest      `json:"request"`
	Expired []uuid.UUID                 `json:"expired_quote_ids"`
	Refunds []*domain.WalletTransaction `json:"refunds"`
}

// IntelligenceService rebuilds and serves per-request market statistics.
type IntelligenceService interface {
	Recompute(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error)
	Get(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error)
}

// RatingService maintains tradie running-average ratings.
type RatingService interface {
	RecordCompletion(ctx context.Context, tradieID uuid.UUID, rating float64) (*domain.TradieProfile, error)
	// RecordCompletionTx joins the caller's transaction; the caller holds the profile key.
	RecordCompletionTx(ctx context.Context, tx pgx.Tx, tradieID uuid.UUID, rating float64) (*domain.TradieProfile, error)
	GetProfile(ctx context.Context, tradieID uuid.UUID) (*domain.TradieProfile, error)
}

// ReconciliationService checks the wallet log against derived state.
type ReconciliationService interface {
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

// ReconcileReport lists what one reconciliation pass found and fixed.
type ReconcileReport struct {
	FailedUnlocks []uuid.UUID    `json:"failed_unlocks"`
	Drift         []BalanceDrift `json:"balance_drift"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}
