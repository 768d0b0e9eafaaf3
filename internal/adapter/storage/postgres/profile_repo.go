package postgres

import (
	"context"
	"errors"
	"fmt"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProfileRepo implements ports.ProfileRepository.
type ProfileRepo struct {
	pool Pool
}

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(pool Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

const profileColumns = `tradie_id, rating, total_jobs, updated_at`

func scanProfile(row scanner) (*domain.TradieProfile, error) {
	p := &domain.TradieProfile{}
	if err := row.Scan(&p.TradieID, &p.Rating, &p.TotalJobs, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByTradieID fetches a profile (without locking).
func (r *ProfileRepo) GetByTradieID(ctx context.Context, tradieID uuid.UUID) (*domain.TradieProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM tradie_profiles WHERE tradie_id = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, tradieID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tradie profile: %w", err)
	}
	return p, nil
}

// GetByTradieIDForUpdate fetches a profile with pessimistic locking.
// This MUST be called within a transaction.
func (r *ProfileRepo) GetByTradieIDForUpdate(ctx context.Context, tx pgx.Tx, tradieID uuid.UUID) (*domain.TradieProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM tradie_profiles WHERE tradie_id = $1 FOR UPDATE`

	p, err := scanProfile(tx.QueryRow(ctx, query, tradieID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockWaitError("get tradie profile for update", err)
	}
	return p, nil
}

// Upsert writes the profile's running rating.
func (r *ProfileRepo) Upsert(ctx context.Context, tx pgx.Tx, p *domain.TradieProfile) error {
	query := `INSERT INTO tradie_profiles (` + profileColumns + `) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tradie_id) DO UPDATE
		SET rating = EXCLUDED.rating, total_jobs = EXCLUDED.total_jobs, updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, query, p.TradieID, p.Rating, p.TotalJobs, p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert tradie profile: %w", err)
	}
	return nil
}
