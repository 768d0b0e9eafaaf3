package postgres

import (
	"context"
	"errors"
	"fmt"

	"tradie-marketplace/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ReceiptRepo implements ports.ReceiptRepository. A receipt row points at
// the wallet transaction it produced; Get joins it back so a replay returns
// the ledger entry as stored.
type ReceiptRepo struct {
	pool Pool
}

func NewReceiptRepo(pool Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

// Create must run in the transaction that appended receipt.Entry.
func (r *ReceiptRepo) Create(ctx context.Context, tx pgx.Tx, receipt *domain.RechargeReceipt) error {
	if receipt.Entry == nil {
		return errors.New("insert recharge receipt: missing ledger entry")
	}
	query := `INSERT INTO recharge_receipts (key, owner_id, amount, method, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		receipt.Key, receipt.OwnerID, receipt.Amount, receipt.Method, receipt.Entry.ID, receipt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recharge receipt: %w", err)
	}
	return nil
}

func (r *ReceiptRepo) Get(ctx context.Context, key string) (*domain.RechargeReceipt, error) {
	query := `SELECT r.key, r.owner_id, r.amount, r.method, r.created_at,
			t.id, t.owner_id, t.kind, t.amount, t.description, t.status, t.created_at
		FROM recharge_receipts r
		JOIN wallet_transactions t ON t.id = r.transaction_id
		WHERE r.key = $1`

	rc := &domain.RechargeReceipt{Entry: &domain.WalletTransaction{}}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&rc.Key, &rc.OwnerID, &rc.Amount, &rc.Method, &rc.CreatedAt,
		&rc.Entry.ID, &rc.Entry.OwnerID, &kind, &rc.Entry.Amount, &rc.Entry.Description, &status, &rc.Entry.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recharge receipt: %w", err)
	}
	rc.Entry.Kind = domain.TransactionKind(kind)
	rc.Entry.Status = domain.TransactionStatus(status)
	return rc, nil
}
