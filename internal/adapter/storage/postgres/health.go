package postgres

import (
	"context"
	"errors"
	"fmt"
)

// HealthCheck reports the database healthy only when it answers and the
// marketplace schema has been applied.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping probes for the wallet ledger table; a reachable database without the
// schema is reported unhealthy so a missed migration surfaces at /health.
func (h *HealthCheck) Ping(ctx context.Context) error {
	var present bool
	err := h.pool.QueryRow(ctx, `SELECT to_regclass('wallet_transactions') IS NOT NULL`).Scan(&present)
	if err != nil {
		return fmt.Errorf("probe schema: %w", err)
	}
	if !present {
		return errors.New("schema not applied (set database.migrate or run schema.sql)")
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
