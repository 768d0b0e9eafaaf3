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

// UnlockRepo implements ports.UnlockRepository.
type UnlockRepo struct{ s *Store }

// NewUnlockRepo creates an unlock repository over s.
func NewUnlockRepo(s *Store) *UnlockRepo { return &UnlockRepo{s: s} }

// completedFor must be called with s.mu held.
func (r *UnlockRepo) completedFor(tradieID, requestID uuid.UUID) *domain.UnlockTransaction {
	for _, u := range r.s.unlocks {
		if u.TradieID == tradieID && u.ServiceRequestID == requestID && u.IsCompleted() {
			return u
		}
	}
	return nil
}

func (r *UnlockRepo) Create(ctx context.Context, tx pgx.Tx, unlock *domain.UnlockTransaction) error {
	c := *unlock
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if c.IsCompleted() && r.completedFor(c.TradieID, c.ServiceRequestID) != nil {
				return ports.ErrDuplicateUnlock
			}
			return nil
		},
		apply: func() { r.s.unlocks[c.ID] = &c },
	})
}

func (r *UnlockRepo) GetCompleted(ctx context.Context, tradieID, requestID uuid.UUID) (*domain.UnlockTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u := r.completedFor(tradieID, requestID)
	if u == nil {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *UnlockRepo) ListCompletedByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.UnlockTransaction, error) {
	return r.list(ctx, func(u *domain.UnlockTransaction) bool {
		return u.ServiceRequestID == requestID && u.IsCompleted()
	})
}

func (r *UnlockRepo) ListOrphaned(ctx context.Context) ([]*domain.UnlockTransaction, error) {
	return r.list(ctx, func(u *domain.UnlockTransaction) bool {
		if !u.IsCompleted() {
			return false
		}
		e, ok := r.s.ledger[u.WalletTransactionID]
		return !ok || !e.IsCompleted()
	})
}

func (r *UnlockRepo) list(ctx context.Context, keep func(*domain.UnlockTransaction) bool) ([]*domain.UnlockTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	var out []*domain.UnlockTransaction
	for _, u := range r.s.unlocks {
		if keep(u) {
			c := *u
			out = append(out, &c)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r *UnlockRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.unlocks[id]; !ok {
				return fmt.Errorf("unlock not found: %s", id)
			}
			return nil
		},
		apply: func() { r.s.unlocks[id].Status = domain.UnlockStatusFailed },
	})
}
