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

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `owner_id, balance, currency, version, created_at, updated_at`

func scanWallet(row scanner) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	if err := row.Scan(&w.OwnerID, &w.Balance, &w.Currency, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return w, nil
}

// Create inserts a new wallet within a database transaction.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query, w.OwnerID, w.Balance, w.Currency, w.Version, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByOwnerID fetches a wallet by its owner (without locking).
func (r *WalletRepo) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by owner: %w", err)
	}
	return w, nil
}

// GetByOwnerIDForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByOwnerIDForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockWaitError("get wallet for update", err)
	}
	return w, nil
}

// UpdateBalance writes a new balance guarded by the row version.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, newBalance int64, expectedVersion int64) error {
	query := `UPDATE wallets SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE owner_id = $2 AND version = $3`

	tag, err := tx.Exec(ctx, query, newBalance, ownerID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update wallet %s: %w", ownerID, ports.ErrStaleVersion)
	}
	return nil
}

// ListBalanceDrift compares each cached balance with its ledger sum.
func (r *WalletRepo) ListBalanceDrift(ctx context.Context) ([]ports.BalanceDrift, error) {
	query := `SELECT w.owner_id, w.balance,
			COALESCE(SUM(t.amount) FILTER (WHERE t.status = 'completed'), 0) AS ledger_balance
		FROM wallets w
		LEFT JOIN wallet_transactions t ON t.owner_id = w.owner_id
		GROUP BY w.owner_id, w.balance
		HAVING w.balance <> COALESCE(SUM(t.amount) FILTER (WHERE t.status = 'completed'), 0)
		ORDER BY w.owner_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list balance drift: %w", err)
	}
	defer rows.Close()

	var drift []ports.BalanceDrift
	for rows.Next() {
		var d ports.BalanceDrift
		if err := rows.Scan(&d.OwnerID, &d.Balance, &d.LedgerBalance); err != nil {
			return nil, fmt.Errorf("scan balance drift: %w", err)
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}
