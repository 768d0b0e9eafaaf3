package postgres

import (
	"context"
	"testing"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedgerEntry(ownerID uuid.UUID, amount int64, createdAt time.Time) *domain.WalletTransaction {
	kind := domain.TransactionKindRecharge
	if amount < 0 {
		kind = domain.TransactionKindUnlock
	}
	return &domain.WalletTransaction{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Kind:        kind,
		Amount:      amount,
		Description: "test entry",
		Status:      domain.TransactionStatusCompleted,
		CreatedAt:   createdAt,
	}
}

func ledgerColumnNames() []string {
	return []string{"id", "owner_id", "kind", "amount", "description", "status", "created_at"}
}

func ledgerRows(entries ...*domain.WalletTransaction) *pgxmock.Rows {
	rows := pgxmock.NewRows(ledgerColumnNames())
	for _, e := range entries {
		rows.AddRow(e.ID, e.OwnerID, string(e.Kind), e.Amount, e.Description, string(e.Status), e.CreatedAt)
	}
	return rows
}

func TestLedgerRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestLedgerEntry(uuid.New(), -50, time.Now().UTC().Truncate(time.Microsecond))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(e.ID, e.OwnerID, "unlock", int64(-50), e.Description, "completed", e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Append(context.Background(), tx, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestLedgerEntry(uuid.New(), 100, time.Now().UTC().Truncate(time.Microsecond))

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE id").
		WithArgs(e.ID).
		WillReturnRows(ledgerRows(e))

	result, err := repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.TransactionKindRecharge, result.Kind)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Status)

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(ledgerColumnNames()))

	missing, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByOwner_FirstPage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	owner := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	newer := newTestLedgerEntry(owner, -50, now)
	older := newTestLedgerEntry(owner, 100, now.Add(-time.Hour))

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions\\s+WHERE owner_id = \\$1\\s+ORDER BY created_at DESC, id DESC LIMIT \\$2").
		WithArgs(owner, 20).
		WillReturnRows(ledgerRows(newer, older))

	entries, err := repo.ListByOwner(context.Background(), owner, nil, 20)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, newer.ID, entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByOwner_AfterCursor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	owner := uuid.New()
	cursor := &ports.LedgerCursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: uuid.New()}
	older := newTestLedgerEntry(owner, 100, cursor.CreatedAt.Add(-time.Minute))

	mock.ExpectQuery("\\(created_at, id\\) < \\(\\$2, \\$3\\)").
		WithArgs(owner, cursor.CreatedAt, cursor.ID, 5).
		WillReturnRows(ledgerRows(older))

	entries, err := repo.ListByOwner(context.Background(), owner, cursor, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, older.ID, entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_SumCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	owner := uuid.New()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM wallet_transactions").
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(150)))

	sum, err := repo.SumCompleted(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(150), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}
