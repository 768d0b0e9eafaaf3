package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tradie-marketplace/internal/adapter/storage/memory"
	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/internal/core/ports/mocks"
	"tradie-marketplace/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReconcile_MarksOrphansAndReportsDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditService(ctrl)
	ctx := context.Background()

	store := memory.NewStore()
	unlocks := memory.NewUnlockRepo(store)
	wallets := memory.NewWalletRepo(store)

	orphan := &domain.UnlockTransaction{
		ID:                  uuid.New(),
		TradieID:            uuid.New(),
		ServiceRequestID:    uuid.New(),
		Amount:              50,
		WalletTransactionID: uuid.New(),
		Status:              domain.UnlockStatusCompleted,
		CreatedAt:           time.Now(),
	}
	drifted := &domain.Wallet{OwnerID: uuid.New(), Balance: 500, Currency: "AUD", Version: 1}

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, unlocks.Create(ctx, tx, orphan))
	require.NoError(t, wallets.Create(ctx, tx, drifted))
	require.NoError(t, tx.Commit(ctx))

	audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionReconcile, entry.Action)
		var report ports.ReconcileReport
		require.NoError(t, json.Unmarshal([]byte(entry.Details), &report))
		assert.Equal(t, []uuid.UUID{orphan.ID}, report.FailedUnlocks)
	})

	svc := NewReconciliationService(unlocks, wallets, store, audit, nil, time.Minute, newTestLogger())
	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{orphan.ID}, report.FailedUnlocks)
	require.Len(t, report.Drift, 1)
	assert.Equal(t, ports.BalanceDrift{OwnerID: drifted.OwnerID, Balance: 500, LedgerBalance: 0}, report.Drift[0])

	stillCompleted, err := unlocks.GetCompleted(ctx, orphan.TradieID, orphan.ServiceRequestID)
	require.NoError(t, err)
	assert.Nil(t, stillCompleted)
}

func TestReconcile_ConsistentLedgerIsQuiet(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditService(ctrl)

	m := newMarketplace(t)
	req := m.postRequest(t, uuid.New())
	tradie := uuid.New()
	m.fund(t, tradie, 100)
	_, err := m.lifecycle.Unlock(context.Background(), tradie, req.ID)
	require.NoError(t, err)

	svc := NewReconciliationService(memory.NewUnlockRepo(m.store), memory.NewWalletRepo(m.store), m.store, audit, nil, time.Minute, newTestLogger())
	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.FailedUnlocks)
	assert.Empty(t, report.Drift)
}

func TestReconcile_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	unlocks := mocks.NewMockUnlockRepository(ctrl)

	unlocks.EXPECT().ListOrphaned(gomock.Any()).Return(nil, errors.New("connection reset"))

	svc := NewReconciliationService(unlocks, nil, nil, nil, nil, time.Minute, newTestLogger())
	_, err := svc.Reconcile(context.Background())
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SYS_001", appErr.Code)
}

func TestReconcile_RunStopsWithContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	unlocks := mocks.NewMockUnlockRepository(ctrl)
	wallets := mocks.NewMockWalletRepository(ctrl)

	unlocks.EXPECT().ListOrphaned(gomock.Any()).Return(nil, nil).MinTimes(1)
	wallets.EXPECT().ListBalanceDrift(gomock.Any()).Return(nil, nil).MinTimes(1)

	svc := NewReconciliationService(unlocks, wallets, nil, nil, nil, time.Minute, newTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestReconcile_BoundedByReconcileTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	unlocks := mocks.NewMockUnlockRepository(ctrl)

	unlocks.EXPECT().ListOrphaned(gomock.Any()).DoAndReturn(
		func(ctx context.Context) ([]*domain.UnlockTransaction, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	svc := NewReconciliationService(unlocks, nil, nil, nil, nil, 50*time.Millisecond, newTestLogger())
	_, err := svc.Reconcile(context.Background())
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SYS_003", appErr.Code)
	assert.True(t, appErr.Retryable)
}
