package postgres

import (
	"context"
	"errors"
	"fmt"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueCompletedUnlockIx = "uq_unlock_completed"

// UnlockRepo implements ports.UnlockRepository.
type UnlockRepo struct {
	pool Pool
}

// NewUnlockRepo creates a new UnlockRepo.
func NewUnlockRepo(pool Pool) *UnlockRepo {
	return &UnlockRepo{pool: pool}
}

const unlockColumns = `id, tradie_id, service_request_id, amount, wallet_transaction_id, status, created_at`

func scanUnlock(row scanner) (*domain.UnlockTransaction, error) {
	u := &domain.UnlockTransaction{}
	var status string
	if err := row.Scan(&u.ID, &u.TradieID, &u.ServiceRequestID, &u.Amount, &u.WalletTransactionID, &status, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Status = domain.UnlockStatus(status)
	return u, nil
}

// Create inserts an unlock record. The partial unique index on completed
// unlocks surfaces as ports.ErrDuplicateUnlock.
func (r *UnlockRepo) Create(ctx context.Context, tx pgx.Tx, u *domain.UnlockTransaction) error {
	query := `INSERT INTO unlock_transactions (` + unlockColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		u.ID, u.TradieID, u.ServiceRequestID, u.Amount, u.WalletTransactionID, string(u.Status), u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == uniqueCompletedUnlockIx {
			return ports.ErrDuplicateUnlock
		}
		return fmt.Errorf("insert unlock: %w", err)
	}
	return nil
}

// GetCompleted fetches the completed unlock for a (tradie, request) pair.
func (r *UnlockRepo) GetCompleted(ctx context.Context, tradieID, requestID uuid.UUID) (*domain.UnlockTransaction, error) {
	query := `SELECT ` + unlockColumns + ` FROM unlock_transactions
		WHERE tradie_id = $1 AND service_request_id = $2 AND status = 'completed'`

	u, err := scanUnlock(r.pool.QueryRow(ctx, query, tradieID, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get completed unlock: %w", err)
	}
	return u, nil
}

// ListCompletedByRequest returns every completed unlock on a request.
func (r *UnlockRepo) ListCompletedByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.UnlockTransaction, error) {
	query := `SELECT ` + unlockColumns + ` FROM unlock_transactions
		WHERE service_request_id = $1 AND status = 'completed'
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, query, requestID)
}

// ListOrphaned returns completed unlocks without a completed wallet debit.
func (r *UnlockRepo) ListOrphaned(ctx context.Context) ([]*domain.UnlockTransaction, error) {
	query := `SELECT u.id, u.tradie_id, u.service_request_id, u.amount, u.wallet_transaction_id, u.status, u.created_at
		FROM unlock_transactions u
		LEFT JOIN wallet_transactions t ON t.id = u.wallet_transaction_id
		WHERE u.status = 'completed' AND (t.id IS NULL OR t.status <> 'completed')
		ORDER BY u.created_at ASC, u.id ASC`

	return r.list(ctx, query)
}

func (r *UnlockRepo) list(ctx context.Context, query string, args ...any) ([]*domain.UnlockTransaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []*domain.UnlockTransaction
	for rows.Next() {
		u, err := scanUnlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// MarkFailed invalidates an unlock found by reconciliation.
func (r *UnlockRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE unlock_transactions SET status = 'failed' WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark unlock failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("unlock not found: %s", id)
	}
	return nil
}
