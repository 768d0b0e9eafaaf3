package ports

import (
	"context"
	"errors"
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/repositories_mock.go -package=mocks

// ErrStaleVersion is returned by versioned updates when the row changed
// since it was read.
var ErrStaleVersion = errors.New("stale record version")

// ErrLockUnavailable is returned when a row lock could not be taken within
// the store's lock wait bound.
var ErrLockUnavailable = errors.New("row lock unavailable")

// ErrDuplicateUnlock is returned when a second completed unlock is inserted
// for the same (tradie, request).
var ErrDuplicateUnlock = errors.New("completed unlock already exists")

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	GetByOwnerIDForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (*domain.Wallet, error)
	// UpdateBalance writes newBalance and bumps the version if the stored
	// version still equals expectedVersion, else returns ErrStaleVersion.
	UpdateBalance(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, newBalance int64, expectedVersion int64) error
	// ListBalanceDrift returns wallets whose cached balance differs from the
	// sum of their completed ledger entries.
	ListBalanceDrift(ctx context.Context) ([]BalanceDrift, error)
}

// BalanceDrift describes a wallet whose balance disagrees with its ledger.
type BalanceDrift struct {
	OwnerID       uuid.UUID `json:"owner_id"`
	Balance       int64     `json:"balance"`
	LedgerBalance int64     `json:"ledger_balance"`
}

// LedgerCursor is the keyset position after the last returned entry.
type LedgerCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// LedgerRepository is the append-only wallet transaction log.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.WalletTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error)
	// ListByOwner returns up to limit entries, newest first, strictly after cursor.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, after *LedgerCursor, limit int) ([]*domain.WalletTransaction, error)
	SumCompleted(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// ServiceRequestRepository defines persistence for service requests.
type ServiceRequestRepository interface {
	Create(ctx context.Context, tx pgx.Tx, req *domain.ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.ServiceRequest, error)
	// Update persists status, accepted quote, rating, review and updated_at.
	Update(ctx context.Context, tx pgx.Tx, req *domain.ServiceRequest) error
}

// QuoteRepository defines persistence for quotes.
type QuoteRepository interface {
	Create(ctx context.Context, tx pgx.Tx, quote *domain.Quote) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.Quote, error)
	HasPending(ctx context.Context, tradieID, requestID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.QuoteStatus, acceptedAt *time.Time) error
}

// UnlockRepository defines persistence for unlock records.
type UnlockRepository interface {
	// Create returns ErrDuplicateUnlock if a completed unlock already exists.
	Create(ctx context.Context, tx pgx.Tx, unlock *domain.UnlockTransaction) error
	GetCompleted(ctx context.Context, tradieID, requestID uuid.UUID) (*domain.UnlockTransaction, error)
	ListCompletedByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.UnlockTransaction, error)
	// ListOrphaned returns completed unlocks whose wallet transaction is
	// missing or not completed.
	ListOrphaned(ctx context.Context) ([]*domain.UnlockTransaction, error)
	MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// IntelligenceRepository stores the derived per-request market statistics.
type IntelligenceRepository interface {
	Upsert(ctx context.Context, intel *domain.RequestIntelligence) error
	Get(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error)
}

// ProfileRepository defines persistence for tradie rating profiles.
type ProfileRepository interface {
	GetByTradieID(ctx context.Context, tradieID uuid.UUID) (*domain.TradieProfile, error)
	GetByTradieIDForUpdate(ctx context.Context, tx pgx.Tx, tradieID uuid.UUID) (*domain.TradieProfile, error)
	Upsert(ctx context.Context, tx pgx.Tx, profile *domain.TradieProfile) error
}

// ReceiptRepository is the durable record of keyed recharges. Create runs in
// the recharge's transaction; Get returns nil for an unused key.
type ReceiptRepository interface {
	Create(ctx context.Context, tx pgx.Tx, receipt *domain.RechargeReceipt) error
	Get(ctx context.Context, key string) (*domain.RechargeReceipt, error)
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// NotificationLogRepository records notification delivery attempts.
type NotificationLogRepository interface {
	Create(ctx context.Context, log *domain.NotificationDeliveryLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
