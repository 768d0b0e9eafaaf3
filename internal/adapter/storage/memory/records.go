package memory

import (
	"context"
	"fmt"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IntelligenceRepo implements ports.IntelligenceRepository.
type IntelligenceRepo struct{ s *Store }

// NewIntelligenceRepo creates an intelligence repository over s.
func NewIntelligenceRepo(s *Store) *IntelligenceRepo { return &IntelligenceRepo{s: s} }

func (r *IntelligenceRepo) Upsert(ctx context.Context, intel *domain.RequestIntelligence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *intel
	r.s.mu.Lock()
	r.s.intelligence[c.RequestID] = &c
	r.s.mu.Unlock()
	return nil
}

func (r *IntelligenceRepo) Get(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	intel, ok := r.s.intelligence[requestID]
	if !ok {
		return nil, nil
	}
	c := *intel
	return &c, nil
}

// receiptRow mirrors the recharge_receipts table: the ledger entry is
// referenced by id and resolved on read.
type receiptRow struct {
	receipt       domain.RechargeReceipt
	transactionID uuid.UUID
}

// ReceiptRepo implements ports.ReceiptRepository.
type ReceiptRepo struct{ s *Store }

func NewReceiptRepo(s *Store) *ReceiptRepo { return &ReceiptRepo{s: s} }

func (r *ReceiptRepo) Create(ctx context.Context, tx pgx.Tx, receipt *domain.RechargeReceipt) error {
	if receipt.Entry == nil {
		return fmt.Errorf("insert recharge receipt: missing ledger entry")
	}
	row := receiptRow{receipt: *receipt, transactionID: receipt.Entry.ID}
	row.receipt.Entry = nil
	return r.s.stage(ctx, tx, stagedOp{
		check: func() error {
			if _, ok := r.s.receipts[row.receipt.Key]; ok {
				return fmt.Errorf("insert recharge receipt: duplicate key %s", row.receipt.Key)
			}
			return nil
		},
		apply: func() { r.s.receipts[row.receipt.Key] = row },
	})
}

func (r *ReceiptRepo) Get(ctx context.Context, key string) (*domain.RechargeReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.receipts[key]
	if !ok {
		return nil, nil
	}
	entry, ok := r.s.ledger[row.transactionID]
	if !ok {
		return nil, fmt.Errorf("get recharge receipt %s: ledger entry %s missing", key, row.transactionID)
	}
	rc := row.receipt
	e := *entry
	rc.Entry = &e
	return &rc, nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

// NewAuditRepo creates an audit log repository over s.
func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	c := *log
	r.s.mu.Lock()
	r.s.audit = append(r.s.audit, &c)
	r.s.mu.Unlock()
	return nil
}

// Entries returns a snapshot of the recorded audit logs.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.AuditLog, len(r.s.audit))
	for i, l := range r.s.audit {
		out[i] = *l
	}
	return out
}

// NotificationLogRepo implements ports.NotificationLogRepository.
type NotificationLogRepo struct{ s *Store }

// NewNotificationLogRepo creates a delivery log repository over s.
func NewNotificationLogRepo(s *Store) *NotificationLogRepo { return &NotificationLogRepo{s: s} }

func (r *NotificationLogRepo) Create(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	c := *log
	r.s.mu.Lock()
	r.s.deliveries = append(r.s.deliveries, &c)
	r.s.mu.Unlock()
	return nil
}

// Entries returns a snapshot of the recorded delivery attempts.
func (r *NotificationLogRepo) Entries() []domain.NotificationDeliveryLog {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.NotificationDeliveryLog, len(r.s.deliveries))
	for i, l := range r.s.deliveries {
		out[i] = *l
	}
	return out
}
