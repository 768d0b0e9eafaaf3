package redis

import (
	"context"
	"testing"
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntelligenceCache_SetAndGet(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewIntelligenceCache(client)
	ctx := context.Background()

	requestID := uuid.New()

	miss, err := cache.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	intel := &domain.RequestIntelligence{
		RequestID:        requestID,
		TotalQuotes:      3,
		PriceRange:       domain.MoneyStats{Min: 40000, Max: 60000, Average: 50000},
		CompetitionLevel: domain.CompetitionMedium,
		WinProbability:   0.47,
		UpdatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cache.Set(ctx, intel, 15*time.Minute))
	assert.True(t, s.Exists("marketplace:intel:"+requestID.String()))

	got, err := cache.Get(ctx, requestID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, intel.PriceRange, got.PriceRange)
	assert.Equal(t, domain.CompetitionMedium, got.CompetitionLevel)
	assert.InDelta(t, 0.47, got.WinProbability, 1e-9)
	assert.True(t, intel.UpdatedAt.Equal(got.UpdatedAt))
}

func TestIntelligenceCache_Expiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewIntelligenceCache(client)
	ctx := context.Background()

	intel := &domain.RequestIntelligence{RequestID: uuid.New()}
	require.NoError(t, cache.Set(ctx, intel, time.Minute))

	s.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, intel.RequestID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIntelligenceCache_CorruptEntryIsMiss(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewIntelligenceCache(client)
	requestID := uuid.New()

	require.NoError(t, s.Set("marketplace:intel:"+requestID.String(), "{broken"))

	got, err := cache.Get(context.Background(), requestID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, s.Exists("marketplace:intel:"+requestID.String()))
}
