package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct{ s *Store }

// NewLedgerRepo creates a ledger repository over s.
func NewLedgerRepo(s *Store) *LedgerRepo { return &LedgerRepo{s: s} }

func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, entry *domain.WalletTransaction) error {
	c := *entry
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.ledger[c.ID]; ok {
				return fmt.Errorf("append ledger entry: duplicate id %s", c.ID)
			}
			return nil
		},
		apply: func() {
			r.s.ledger[c.ID] = &c
			r.s.ledgerByOwner[c.OwnerID] = append(r.s.ledgerByOwner[c.OwnerID], c.ID)
		},
	})
}

func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.ledger[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

// newerFirst orders entries by (created_at, id) descending.
func newerFirst(a, b *domain.WalletTransaction) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

func (r *LedgerRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, after *ports.LedgerCursor, limit int) ([]*domain.WalletTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	entries := make([]*domain.WalletTransaction, 0, len(r.s.ledgerByOwner[ownerID]))
	for _, id := range r.s.ledgerByOwner[ownerID] {
		c := *r.s.ledger[id]
		entries = append(entries, &c)
	}
	r.s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return newerFirst(entries[i], entries[j]) })

	out := make([]*domain.WalletTransaction, 0, limit)
	for _, e := range entries {
		if after != nil && !newerFirst(&domain.WalletTransaction{CreatedAt: after.CreatedAt, ID: after.ID}, e) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *LedgerRepo) SumCompleted(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var sum int64
	for _, id := range r.s.ledgerByOwner[ownerID] {
		if e := r.s.ledger[id]; e.IsCompleted() {
			sum += e.Amount
		}
	}
	return sum, nil
}
