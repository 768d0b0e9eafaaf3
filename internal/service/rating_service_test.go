package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports/mocks"
	"tradie-marketplace/pkg/apperror"
	"tradie-marketplace/pkg/keylock"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRatingService_RunningAverage(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	tradie := uuid.New()

	p, err := m.ratings.RecordCompletion(ctx, tradie, 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, p.Rating)
	assert.Equal(t, 1, p.TotalJobs)

	p, err = m.ratings.RecordCompletion(ctx, tradie, 5)
	require.NoError(t, err)
	assert.Equal(t, 4.5, p.Rating)
	assert.Equal(t, 2, p.TotalJobs)

	p, err = m.ratings.RecordCompletion(ctx, tradie, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.Rating)
	assert.Equal(t, 3, p.TotalJobs)
}

func TestRatingService_ConvergesToConstantRating(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	tradie := uuid.New()

	_, err := m.ratings.RecordCompletion(ctx, tradie, 1)
	require.NoError(t, err)
	for i := 0; i < 199; i++ {
		_, err := m.ratings.RecordCompletion(ctx, tradie, 5)
		require.NoError(t, err)
	}

	p, err := m.ratings.GetProfile(ctx, tradie)
	require.NoError(t, err)
	assert.Equal(t, 200, p.TotalJobs)
	assert.InDelta(t, 5.0, p.Rating, 0.05)
}

func TestRatingService_ConcurrentCompletionsAllCount(t *testing.T) {
	m := newMarketplace(t)
	tradie := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ratings.RecordCompletion(context.Background(), tradie, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := m.ratings.GetProfile(context.Background(), tradie)
	require.NoError(t, err)
	assert.Equal(t, 20, p.TotalJobs)
	assert.InDelta(t, 3.0, p.Rating, 1e-9)
}

func TestRatingService_RejectsOutOfRange(t *testing.T) {
	m := newMarketplace(t)

	for _, r := range []float64{-0.1, 5.01} {
		_, err := m.ratings.RecordCompletion(context.Background(), uuid.New(), r)
		assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))
	}
}

func TestRatingService_UnratedProfile(t *testing.T) {
	m := newMarketplace(t)
	tradie := uuid.New()

	p, err := m.ratings.GetProfile(context.Background(), tradie)
	require.NoError(t, err)
	assert.Equal(t, &domain.TradieProfile{TradieID: tradie}, p)
}

func TestRatingService_GetProfileBoundedByOperationTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileRepository(ctrl)
	cfg := testMarketplaceConfig()
	cfg.OperationTimeout = 50 * time.Millisecond

	svc := NewRatingService(profiles, nil, keylock.New(), cfg, newTestLogger())
	tradie := uuid.New()

	profiles.EXPECT().GetByTradieID(gomock.Any(), tradie).DoAndReturn(
		func(ctx context.Context, _ uuid.UUID) (*domain.TradieProfile, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := svc.GetProfile(context.Background(), tradie)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SYS_003", appErr.Code)
}
