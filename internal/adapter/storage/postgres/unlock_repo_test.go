package postgres

import (
	"context"
	"testing"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUnlock(tradieID, requestID uuid.UUID) *domain.UnlockTransaction {
	return &domain.UnlockTransaction{
		ID:                  uuid.New(),
		TradieID:            tradieID,
		ServiceRequestID:    requestID,
		Amount:              50,
		WalletTransactionID: uuid.New(),
		Status:              domain.UnlockStatusCompleted,
		CreatedAt:           time.Now().UTC().Truncate(time.Microsecond),
	}
}

func unlockColumnNames() []string {
	return []string{"id", "tradie_id", "service_request_id", "amount", "wallet_transaction_id", "status", "created_at"}
}

func unlockRows(unlocks ...*domain.UnlockTransaction) *pgxmock.Rows {
	rows := pgxmock.NewRows(unlockColumnNames())
	for _, u := range unlocks {
		rows.AddRow(u.ID, u.TradieID, u.ServiceRequestID, u.Amount, u.WalletTransactionID, string(u.Status), u.CreatedAt)
	}
	return rows
}

func TestUnlockRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUnlockRepo(mock)
	u := newTestUnlock(uuid.New(), uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO unlock_transactions").
		WithArgs(u.ID, u.TradieID, u.ServiceRequestID, u.Amount, u.WalletTransactionID, "completed", u.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockRepo_Create_DuplicateCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUnlockRepo(mock)
	u := newTestUnlock(uuid.New(), uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO unlock_transactions").
		WithArgs(u.ID, u.TradieID, u.ServiceRequestID, u.Amount, u.WalletTransactionID, "completed", u.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_unlock_completed"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, u)
	assert.ErrorIs(t, err, ports.ErrDuplicateUnlock)
}

func TestUnlockRepo_Create_OtherConstraint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUnlockRepo(mock)
	u := newTestUnlock(uuid.New(), uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO unlock_transactions").
		WithArgs(u.ID, u.TradieID, u.ServiceRequestID, u.Amount, u.WalletTransactionID, "completed", u.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "unlock_transactions_service_request_id_fkey"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, u)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrDuplicateUnlock)
	assert.Contains(t, err.Error(), "insert unlock")
}

func TestUnlockRepo_GetCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUnlockRepo(mock)
	u := newTestUnlock(uuid.New(), uuid.New())

	mock.ExpectQuery("SELECT .+ FROM unlock_transactions WHERE tradie_id = \\$1 AND service_request_id = \\$2").
		WithArgs(u.TradieID, u.ServiceRequestID).
		WillReturnRows(unlockRows(u))

	result, err := repo.GetCompleted(context.Background(), u.TradieID, u.ServiceRequestID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, u.ID, result.ID)
	assert.Equal(t, domain.UnlockStatusCompleted, result.Status)

	mock.ExpectQuery("SELECT .+ FROM unlock_transactions WHERE tradie_id").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(unlockColumnNames()))

	missing, err := repo.GetCompleted(context.Background(), uuid.New(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockRepo_ListCompletedByRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUnlockRepo(mock)
	requestID := uuid.New()
	a := newTestUnlock(uuid.New(), requestID)
	b := newTestUnlock(uuid.New(), requestID)

	mock.ExpectQuery("SELECT .+ FROM unlock_transactions WHERE service_request_id = \\$1").
		WithArgs(requestID).
		WillReturnRows(unlockRows(a, b))

	unlocks, err := repo.ListCompletedByRequest(context.Background(), requestID)
	require.NoError(t, err)
	assert.Len(t, unlocks, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockRepo_ListOrphaned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUnlockRepo(mock)
	orphan := newTestUnlock(uuid.New(), uuid.New())

	mock.ExpectQuery("LEFT JOIN wallet_transactions t ON t.id = u.wallet_transaction_id").
		WillReturnRows(unlockRows(orphan))

	unlocks, err := repo.ListOrphaned(context.Background())
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, orphan.ID, unlocks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockRepo_MarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUnlockRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE unlock_transactions SET status = 'failed'").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE unlock_transactions SET status = 'failed'").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.MarkFailed(context.Background(), tx, id))
	assert.ErrorContains(t, repo.MarkFailed(context.Background(), tx, uuid.New()), "unlock not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
