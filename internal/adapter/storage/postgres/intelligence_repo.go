package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IntelligenceRepo implements ports.IntelligenceRepository. The derived
// record is stored whole as JSONB.
type IntelligenceRepo struct {
	pool Pool
}

// NewIntelligenceRepo creates a new IntelligenceRepo.
func NewIntelligenceRepo(pool Pool) *IntelligenceRepo {
	return &IntelligenceRepo{pool: pool}
}

// Upsert replaces the stored intelligence for a request.
func (r *IntelligenceRepo) Upsert(ctx context.Context, intel *domain.RequestIntelligence) error {
	data, err := json.Marshal(intel)
	if err != nil {
		return fmt.Errorf("marshal intelligence: %w", err)
	}

	query := `INSERT INTO request_intelligence (request_id, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, query, intel.RequestID, data, intel.UpdatedAt); err != nil {
		return fmt.Errorf("upsert intelligence: %w", err)
	}
	return nil
}

// Get fetches the stored intelligence for a request.
func (r *IntelligenceRepo) Get(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error) {
	query := `SELECT data FROM request_intelligence WHERE request_id = $1`

	var data []byte
	if err := r.pool.QueryRow(ctx, query, requestID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get intelligence: %w", err)
	}

	intel := &domain.RequestIntelligence{}
	if err := json.Unmarshal(data, intel); err != nil {
		return nil, fmt.Errorf("unmarshal intelligence: %w", err)
	}
	return intel, nil
}
