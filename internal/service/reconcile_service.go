package service

import (
	"context"
	"encoding/json"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reconcile finding types, used as metric labels.
const (
	FindingFailedUnlock = "failed_unlock"
	FindingBalanceDrift = "balance_drift"
)

// ReconciliationServiceImpl implements ports.ReconciliationService. The
// wallet log is ground truth: unlocks without a completed debit are marked
// failed, and cached balances that disagree with the log are reported.
type ReconciliationServiceImpl struct {
	unlockRepo ports.UnlockRepository
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	audit      ports.AuditService
	metrics    *metrics.Manager
	timeout    time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewReconciliationService creates a new ReconciliationServiceImpl.
func NewReconciliationService(
	unlockRepo ports.UnlockRepository,
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	m *metrics.Manager,
	timeout time.Duration,
	log zerolog.Logger,
) *ReconciliationServiceImpl {
	return &ReconciliationServiceImpl{
		unlockRepo: unlockRepo,
		walletRepo: walletRepo,
		transactor: transactor,
		audit:      audit,
		metrics:    m,
		timeout:    timeout,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile runs one pass, bounded by the reconcile timeout.
func (s *ReconciliationServiceImpl) Reconcile(ctx context.Context) (*ports.ReconcileReport, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	report := &ports.ReconcileReport{
		FailedUnlocks: []uuid.UUID{},
		Drift:         []ports.BalanceDrift{},
		StartedAt:     s.now(),
	}

	orphans, err := s.unlockRepo.ListOrphaned(ctx)
	if err != nil {
		return nil, storeError("list orphaned unlocks", err)
	}
	if len(orphans) > 0 {
		if err := s.failUnlocks(ctx, orphans); err != nil {
			return nil, err
		}
		for _, u := range orphans {
			report.FailedUnlocks = append(report.FailedUnlocks, u.ID)
			s.log.Warn().
				Str("unlock_id", u.ID.String()).
				Str("tradie_id", u.TradieID.String()).
				Str("request_id", u.ServiceRequestID.String()).
				Msg("unlock has no completed wallet debit, marked failed")
		}
	}

	drift, err := s.walletRepo.ListBalanceDrift(ctx)
	if err != nil {
		return nil, storeError("list balance drift", err)
	}
	for _, d := range drift {
		report.Drift = append(report.Drift, d)
		s.log.Error().
			Str("owner_id", d.OwnerID.String()).
			Int64("balance", d.Balance).
			Int64("ledger_balance", d.LedgerBalance).
			Msg("wallet balance disagrees with ledger")
	}

	report.FinishedAt = s.now()
	s.metrics.RecordReconcileFinding(FindingFailedUnlock, len(report.FailedUnlocks))
	s.metrics.RecordReconcileFinding(FindingBalanceDrift, len(report.Drift))

	if len(report.FailedUnlocks) > 0 || len(report.Drift) > 0 {
		details, _ := json.Marshal(report)
		s.audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			Action:       domain.AuditActionReconcile,
			ResourceType: "ledger",
			Details:      string(details),
			CreatedAt:    report.FinishedAt,
		})
	}

	s.log.Info().
		Int("failed_unlocks", len(report.FailedUnlocks)).
		Int("balance_drift", len(report.Drift)).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("reconciliation pass finished")

	return report, nil
}

func (s *ReconciliationServiceImpl) failUnlocks(ctx context.Context, unlocks []*domain.UnlockTransaction) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return storeError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	for _, u := range unlocks {
		if err := s.unlockRepo.MarkFailed(ctx, dbTx, u.ID); err != nil {
			return storeError("mark unlock failed", err)
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return storeError("commit tx", err)
	}
	return nil
}

// Run reconciles every interval until ctx is done.
func (s *ReconciliationServiceImpl) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil {
				s.log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}
