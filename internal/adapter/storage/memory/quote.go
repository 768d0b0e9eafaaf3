package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QuoteRepo implements ports.QuoteRepository.
type QuoteRepo struct{ s *Store }

// NewQuoteRepo creates a quote repository over s.
func NewQuoteRepo(s *Store) *QuoteRepo { return &QuoteRepo{s: s} }

func (r *QuoteRepo) Create(ctx context.Context, tx pgx.Tx, q *domain.Quote) error {
	c := *q
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.quotes[c.ID]; ok {
				return fmt.Errorf("insert quote: duplicate id %s", c.ID)
			}
			return nil
		},
		apply: func() { r.s.quotes[c.ID] = &c },
	})
}

func (r *QuoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.quotes[id]
	if !ok {
		return nil, nil
	}
	c := *q
	return &c, nil
}

// ListByRequest returns the request's quotes oldest first.
func (r *QuoteRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	var out []*domain.Quote
	for _, q := range r.s.quotes {
		if q.ServiceRequestID == requestID {
			c := *q
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

func (r *QuoteRepo) HasPending(ctx context.Context, tradieID, requestID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, q := range r.s.quotes {
		if q.TradieID == tradieID && q.ServiceRequestID == requestID && q.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (r *QuoteRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.QuoteStatus, acceptedAt *time.Time) error {
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.quotes[id]; !ok {
				return fmt.Errorf("quote not found: %s", id)
			}
			return nil
		},
		apply: func() {
			q := r.s.quotes[id]
			q.Status = status
			if acceptedAt != nil {
				t := *acceptedAt
				q.AcceptedAt = &t
			}
		},
	})
}
