package memory

import (
	"context"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProfileRepo implements ports.ProfileRepository.
type ProfileRepo struct{ s *Store }

// NewProfileRepo creates a tradie profile repository over s.
func NewProfileRepo(s *Store) *ProfileRepo { return &ProfileRepo{s: s} }

func (r *ProfileRepo) GetByTradieID(ctx context.Context, tradieID uuid.UUID) (*domain.TradieProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.profiles[tradieID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *ProfileRepo) GetByTradieIDForUpdate(ctx context.Context, tx pgx.Tx, tradieID uuid.UUID) (*domain.TradieProfile, error) {
	return r.GetByTradieID(ctx, tradieID)
}

func (r *ProfileRepo) Upsert(ctx context.Context, tx pgx.Tx, p *domain.TradieProfile) error {
	c := *p
	return r.s.stage(ctx, tx, stagedOp{
		apply: func() { r.s.profiles[c.TradieID] = &c },
	})
}
