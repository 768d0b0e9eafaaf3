package memory

import (
	"context"
	"fmt"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RequestRepo implements ports.ServiceRequestRepository.
type RequestRepo struct{ s *Store }

// NewRequestRepo creates a service request repository over s.
func NewRequestRepo(s *Store) *RequestRepo { return &RequestRepo{s: s} }

func (r *RequestRepo) Create(ctx context.Context, tx pgx.Tx, req *domain.ServiceRequest) error {
	c := *req
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.requests[c.ID]; ok {
				return fmt.Errorf("insert service request: duplicate id %s", c.ID)
			}
			return nil
		},
		apply: func() { r.s.requests[c.ID] = &c },
	})
}

func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, nil
	}
	c := *req
	return &c, nil
}

func (r *RequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.ServiceRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *RequestRepo) Update(ctx context.Context, tx pgx.Tx, req *domain.ServiceRequest) error {
	c := *req
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.requests[c.ID]; !ok {
				return fmt.Errorf("service request not found: %s", c.ID)
			}
			return nil
		},
		apply: func() { r.s.requests[c.ID] = &c },
	})
}
