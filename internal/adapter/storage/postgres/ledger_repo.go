package postgres

import (
	"context"
	"errors"
	"fmt"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository over wallet_transactions.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, owner_id, kind, amount, description, status, created_at`

func scanLedgerEntry(row scanner) (*domain.WalletTransaction, error) {
	e := &domain.WalletTransaction{}
	var kind, status string
	if err := row.Scan(&e.ID, &e.OwnerID, &kind, &e.Amount, &e.Description, &status, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Kind = domain.TransactionKind(kind)
	e.Status = domain.TransactionStatus(status)
	return e, nil
}

// Append inserts an immutable ledger entry within a database transaction.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.WalletTransaction) error {
	query := `INSERT INTO wallet_transactions (` + ledgerColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.OwnerID, string(e.Kind), e.Amount, e.Description, string(e.Status), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// GetByID fetches a ledger entry by id.
func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM wallet_transactions WHERE id = $1`

	e, err := scanLedgerEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// ListByOwner returns a keyset page of the owner's entries, newest first.
func (r *LedgerRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, after *ports.LedgerCursor, limit int) ([]*domain.WalletTransaction, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		query := `SELECT ` + ledgerColumns + ` FROM wallet_transactions
			WHERE owner_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2`
		rows, err = r.pool.Query(ctx, query, ownerID, limit)
	} else {
		query := `SELECT ` + ledgerColumns + ` FROM wallet_transactions
			WHERE owner_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`
		rows, err = r.pool.Query(ctx, query, ownerID, after.CreatedAt, after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.WalletTransaction, 0, limit)
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumCompleted returns the ledger balance of an owner.
func (r *LedgerRepo) SumCompleted(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions
		WHERE owner_id = $1 AND status = 'completed'`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}
