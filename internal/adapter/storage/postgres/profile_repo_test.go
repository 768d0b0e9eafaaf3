package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileColumnNames() []string {
	return []string{"tradie_id", "rating", "total_jobs", "updated_at"}
}

func TestProfileRepo_GetByTradieID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProfileRepo(mock)
	tradieID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM tradie_profiles WHERE tradie_id").
		WithArgs(tradieID).
		WillReturnRows(pgxmock.NewRows(profileColumnNames()).AddRow(tradieID, 4.25, 8, now))

	p, err := repo.GetByTradieID(context.Background(), tradieID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4.25, p.Rating)
	assert.Equal(t, 8, p.TotalJobs)

	mock.ExpectQuery("SELECT .+ FROM tradie_profiles WHERE tradie_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(profileColumnNames()))

	missing, err := repo.GetByTradieID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_GetForUpdateAndUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProfileRepo(mock)
	tradieID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM tradie_profiles WHERE tradie_id = .+ FOR UPDATE").
		WithArgs(tradieID).
		WillReturnRows(pgxmock.NewRows(profileColumnNames()).AddRow(tradieID, 4.0, 1, now))
	mock.ExpectExec("INSERT INTO tradie_profiles .+ ON CONFLICT \\(tradie_id\\) DO UPDATE").
		WithArgs(tradieID, 4.5, 2, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	p, err := repo.GetByTradieIDForUpdate(context.Background(), tx, tradieID)
	require.NoError(t, err)
	require.NotNil(t, p)

	p.ApplyRating(5, now)
	require.Equal(t, 4.5, p.Rating)

	err = repo.Upsert(context.Background(), tx, p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
