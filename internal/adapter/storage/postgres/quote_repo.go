package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QuoteRepo implements ports.QuoteRepository.
type QuoteRepo struct {
	pool Pool
}

// NewQuoteRepo creates a new QuoteRepo.
func NewQuoteRepo(pool Pool) *QuoteRepo {
	return &QuoteRepo{pool: pool}
}

const quoteColumns = `id, service_request_id, tradie_id, amount, materials, labour,
	estimated_start_date, estimated_completion_date, notes, status, created_at, accepted_at`

func scanQuote(row scanner) (*domain.Quote, error) {
	q := &domain.Quote{}
	var status string
	err := row.Scan(
		&q.ID, &q.ServiceRequestID, &q.TradieID, &q.Amount, &q.Breakdown.Materials, &q.Breakdown.Labour,
		&q.EstimatedStartDate, &q.EstimatedCompletionDate, &q.Notes, &status, &q.CreatedAt, &q.AcceptedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Status = domain.QuoteStatus(status)
	return q, nil
}

// Create inserts a new quote within a database transaction.
func (r *QuoteRepo) Create(ctx context.Context, tx pgx.Tx, q *domain.Quote) error {
	query := `INSERT INTO quotes (` + quoteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		q.ID, q.ServiceRequestID, q.TradieID, q.Amount, q.Breakdown.Materials, q.Breakdown.Labour,
		q.EstimatedStartDate, q.EstimatedCompletionDate, q.Notes, string(q.Status), q.CreatedAt, q.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// GetByID fetches a quote by id.
func (r *QuoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`

	q, err := scanQuote(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return q, nil
}

// ListByRequest returns every quote on a request, oldest first.
func (r *QuoteRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes
		WHERE service_request_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// HasPending reports whether the tradie already has a pending quote on the request.
func (r *QuoteRepo) HasPending(ctx context.Context, tradieID, requestID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM quotes
		WHERE tradie_id = $1 AND service_request_id = $2 AND status = 'pending')`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, tradieID, requestID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pending quote: %w", err)
	}
	return exists, nil
}

// UpdateStatus moves a quote to a new status. acceptedAt is only written when non-nil.
func (r *QuoteRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.QuoteStatus, acceptedAt *time.Time) error {
	query := `UPDATE quotes SET status = $1, accepted_at = COALESCE($2, accepted_at) WHERE id = $3`

	tag, err := tx.Exec(ctx, query, string(status), acceptedAt, id)
	if err != nil {
		return fmt.Errorf("update quote status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quote not found: %s", id)
	}
	return nil
}
