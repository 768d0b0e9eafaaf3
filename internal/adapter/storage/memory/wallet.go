package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct{ s *Store }

// NewWalletRepo creates a wallet repository over s.
func NewWalletRepo(s *Store) *WalletRepo { return &WalletRepo{s: s} }

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	c := *w
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.wallets[c.OwnerID]; ok {
				return fmt.Errorf("insert wallet: owner %s already has a wallet", c.OwnerID)
			}
			return nil
		},
		apply: func() { r.s.wallets[c.OwnerID] = &c },
	})
}

func (r *WalletRepo) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[ownerID]
	if !ok {
		return nil, nil
	}
	c := *w
	return &c, nil
}

func (r *WalletRepo) GetByOwnerIDForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByOwnerID(ctx, ownerID)
}

func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, newBalance int64, expectedVersion int64) error {
	if newBalance < 0 {
		return fmt.Errorf("update wallet balance: negative balance %d", newBalance)
	}
	now := time.Now().UTC()
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			w, ok := r.s.wallets[ownerID]
			if !ok {
				return fmt.Errorf("wallet not found: %s", ownerID)
			}
			if w.Version != expectedVersion {
				return ports.ErrStaleVersion
			}
			return nil
		},
		apply: func() {
			w := r.s.wallets[ownerID]
			w.Balance = newBalance
			w.Version++
			w.UpdatedAt = now
		},
	})
}

func (r *WalletRepo) ListBalanceDrift(ctx context.Context) ([]ports.BalanceDrift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var drift []ports.BalanceDrift
	for ownerID, w := range r.s.wallets {
		var sum int64
		for _, id := range r.s.ledgerByOwner[ownerID] {
			if e := r.s.ledger[id]; e.IsCompleted() {
				sum += e.Amount
			}
		}
		if sum != w.Balance {
			drift = append(drift, ports.BalanceDrift{OwnerID: ownerID, Balance: w.Balance, LedgerBalance: sum})
		}
	}
	sort.Slice(drift, func(i, j int) bool {
		return bytes.Compare(drift[i].OwnerID[:], drift[j].OwnerID[:]) < 0
	})
	return drift, nil
}
