package service

import (
	"context"
	"io"
	"testing"
	"time"

	"tradie-marketplace/config"
	"tradie-marketplace/internal/adapter/storage/memory"
	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/keylock"
	"tradie-marketplace/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

// mockTx implements pgx.Tx for testing
type mockTx struct {
	pgx.Tx
	committed bool
}

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error {
	m.committed = true
	return nil
}

func testMarketplaceConfig() config.MarketplaceConfig {
	return config.MarketplaceConfig{
		UnlockCost:           50,
		MaxRecharge:          1000000,
		Currency:             "AUD",
		OperationTimeout:     2 * time.Second,
		RefundOnCancel:       true,
		IntelligenceCacheTTL: time.Minute,
	}
}

// recordingNotifier captures notifications synchronously.
type recordingNotifier struct {
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) to(userID uuid.UUID) []domain.Notification {
	var out []domain.Notification
	for _, m := range n.sent {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

// marketplace wires every service over one in-memory store.
type marketplace struct {
	store     *memory.Store
	ledger    *memory.LedgerRepo
	wallet    *WalletServiceImpl
	intel     *IntelligenceServiceImpl
	ratings   *RatingServiceImpl
	lifecycle *LifecycleServiceImpl
	audit     *AuditServiceImpl
	auditRepo *memory.AuditRepo
	notifier  *recordingNotifier
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()
	return newMarketplaceWithConfig(t, testMarketplaceConfig())
}

func newMarketplaceWithConfig(t *testing.T, cfg config.MarketplaceConfig) *marketplace {
	t.Helper()
	log := newTestLogger()
	store := memory.NewStore()
	locks := keylock.New()

	m := &marketplace{
		store:     store,
		ledger:    memory.NewLedgerRepo(store),
		auditRepo: memory.NewAuditRepo(store),
		notifier:  &recordingNotifier{},
	}
	m.wallet = NewWalletService(memory.NewWalletRepo(store), m.ledger, store, locks, nil, cfg, log)
	m.intel = NewIntelligenceService(memory.NewQuoteRepo(store), memory.NewIntelligenceRepo(store), nil, cfg.IntelligenceCacheTTL, nil, log)
	m.ratings = NewRatingService(memory.NewProfileRepo(store), store, locks, cfg, log)
	m.audit = NewAuditService(m.auditRepo, log)
	m.lifecycle = NewLifecycleService(LifecycleDeps{
		Requests:     memory.NewRequestRepo(store),
		Quotes:       memory.NewQuoteRepo(store),
		Unlocks:      memory.NewUnlockRepo(store),
		Receipts:     memory.NewReceiptRepo(store),
		Transactor:   store,
		Wallet:       m.wallet,
		Intelligence: m.intel,
		Ratings:      m.ratings,
		Notifier:     m.notifier,
		Audit:        m.audit,
		Locks:        locks,
	}, cfg, log)
	t.Cleanup(m.audit.Wait)
	return m
}

func (m *marketplace) postRequest(t *testing.T, customerID uuid.UUID) *domain.ServiceRequest {
	t.Helper()
	req, err := m.lifecycle.CreateRequest(context.Background(), customerID, ports.CreateRequestInput{
		TradeType:   "plumbing",
		Description: "Leaking kitchen tap",
		Postcode:    "2000",
		Urgency:     domain.UrgencyMedium,
	})
	require.NoError(t, err)
	return req
}

func (m *marketplace) fund(t *testing.T, ownerID uuid.UUID, amount int64) {
	t.Helper()
	_, err := m.wallet.Credit(context.Background(), ownerID, amount, "test funds")
	require.NoError(t, err)
}

func (m *marketplace) unlockAndQuote(t *testing.T, tradieID, requestID uuid.UUID, amount int64) *domain.Quote {
	t.Helper()
	ctx := context.Background()
	_, err := m.lifecycle.Unlock(ctx, tradieID, requestID)
	require.NoError(t, err)
	q, err := m.lifecycle.SubmitQuote(ctx, tradieID, requestID, quoteInput(amount))
	require.NoError(t, err)
	return q
}

func quoteInput(amount int64) ports.SubmitQuoteInput {
	start := time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)
	return ports.SubmitQuoteInput{
		Amount:                  amount,
		Materials:               amount / 4,
		Labour:                  amount / 2,
		EstimatedStartDate:      start,
		EstimatedCompletionDate: start.Add(48 * time.Hour),
		Notes:                   "Includes parts",
	}
}
