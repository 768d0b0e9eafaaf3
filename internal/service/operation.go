package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/apperror"

	"github.com/google/uuid"
)

func walletLockKey(ownerID uuid.UUID) string    { return "wallet:" + ownerID.String() }
func requestLockKey(requestID uuid.UUID) string { return "request:" + requestID.String() }
func profileLockKey(tradieID uuid.UUID) string  { return "profile:" + tradieID.String() }

// withTimeout bounds ctx by d. A non-positive d leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeError maps a persistence failure to an AppError. AppErrors pass through.
func storeError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperror.ErrTimeout(wrapped)
	case errors.Is(err, ports.ErrStaleVersion), errors.Is(err, ports.ErrLockUnavailable):
		return apperror.ErrLockTimeout(wrapped)
	}
	return apperror.ErrDatabaseError(wrapped)
}

// lockError maps a failed key-lock wait to a retryable error.
func lockError(err error) error {
	return apperror.ErrLockTimeout(fmt.Errorf("acquire lock: %w", err))
}
