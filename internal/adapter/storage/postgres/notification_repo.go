package postgres

import (
	"context"
	"fmt"

	"tradie-marketplace/internal/core/domain"
)

// NotificationLogRepo implements ports.NotificationLogRepository.
type NotificationLogRepo struct {
	pool Pool
}

// NewNotificationLogRepo creates a PostgreSQL-backed delivery log repository.
func NewNotificationLogRepo(pool Pool) *NotificationLogRepo {
	return &NotificationLogRepo{pool: pool}
}

// Create records one dispatch attempt.
func (r *NotificationLogRepo) Create(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_delivery_logs
		 (id, user_id, title, payload, http_status, attempt, status, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.ID, log.UserID, log.Title, log.Payload,
		log.HTTPStatus, log.Attempt, string(log.Status), log.LastError, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification delivery log: %w", err)
	}
	return nil
}
