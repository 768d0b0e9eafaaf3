package postgres

import (
	"context"
	"errors"
	"fmt"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RequestRepo implements ports.ServiceRequestRepository.
type RequestRepo struct {
	pool Pool
}

// NewRequestRepo creates a new RequestRepo.
func NewRequestRepo(pool Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, customer_id, trade_type, description, postcode, urgency, status,
	accepted_quote_id, rating, review, created_at, updated_at`

func scanRequest(row scanner) (*domain.ServiceRequest, error) {
	req := &domain.ServiceRequest{}
	var urgency, status string
	err := row.Scan(
		&req.ID, &req.CustomerID, &req.TradeType, &req.Description, &req.Postcode, &urgency, &status,
		&req.AcceptedQuoteID, &req.Rating, &req.Review, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Urgency = domain.Urgency(urgency)
	req.Status = domain.RequestStatus(status)
	return req, nil
}

// Create inserts a new service request within a database transaction.
func (r *RequestRepo) Create(ctx context.Context, tx pgx.Tx, req *domain.ServiceRequest) error {
	query := `INSERT INTO service_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		req.ID, req.CustomerID, req.TradeType, req.Description, req.Postcode,
		string(req.Urgency), string(req.Status), req.AcceptedQuoteID, req.Rating, req.Review,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert service request: %w", err)
	}
	return nil
}

// GetByID fetches a service request (without locking).
func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get service request: %w", err)
	}
	return req, nil
}

// GetByIDForUpdate fetches a service request with pessimistic locking.
// This MUST be called within a transaction.
func (r *RequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1 FOR UPDATE`

	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockWaitError("get service request for update", err)
	}
	return req, nil
}

// Update persists the mutable lifecycle fields.
func (r *RequestRepo) Update(ctx context.Context, tx pgx.Tx, req *domain.ServiceRequest) error {
	query := `UPDATE service_requests
		SET status = $1, accepted_quote_id = $2, rating = $3, review = $4, updated_at = $5
		WHERE id = $6`

	tag, err := tx.Exec(ctx, query,
		string(req.Status), req.AcceptedQuoteID, req.Rating, req.Review, req.UpdatedAt, req.ID,
	)
	if err != nil {
		return fmt.Errorf("update service request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service request not found: %s", req.ID)
	}
	return nil
}
