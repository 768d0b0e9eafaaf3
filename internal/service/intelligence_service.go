package service

import (
	"context"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IntelligenceServiceImpl implements ports.IntelligenceService.
// The cache is optional; a nil cache reads through to the repository.
type IntelligenceServiceImpl struct {
	quoteRepo ports.QuoteRepository
	intelRepo ports.IntelligenceRepository
	cache     ports.IntelligenceCache
	cacheTTL  time.Duration
	metrics   *metrics.Manager
	log       zerolog.Logger
	now       func() time.Time
}

// NewIntelligenceService creates a new IntelligenceServiceImpl.
func NewIntelligenceService(
	quoteRepo ports.QuoteRepository,
	intelRepo ports.IntelligenceRepository,
	cache ports.IntelligenceCache,
	cacheTTL time.Duration,
	m *metrics.Manager,
	log zerolog.Logger,
) *IntelligenceServiceImpl {
	return &IntelligenceServiceImpl{
		quoteRepo: quoteRepo,
		intelRepo: intelRepo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		metrics:   m,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Recompute rebuilds the request's intelligence from its full quote set
// and overwrites both the stored row and the cache entry.
func (s *IntelligenceServiceImpl) Recompute(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error) {
	quotes, err := s.quoteRepo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, storeError("list quotes", err)
	}

	intel := Aggregate(requestID, quotes, s.now())

	if err := s.intelRepo.Upsert(ctx, intel); err != nil {
		return nil, storeError("save intelligence", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, intel, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("request_id", requestID.String()).Msg("failed to cache intelligence in redis")
		}
	}
	s.metrics.RecordIntelligenceRecompute()

	s.log.Debug().
		Str("request_id", requestID.String()).
		Int("total_quotes", intel.TotalQuotes).
		Str("competition", string(intel.CompetitionLevel)).
		Msg("intelligence recomputed")

	return intel, nil
}

// Get serves cached intelligence, falling back to the stored row and
// finally to a fresh recompute.
func (s *IntelligenceServiceImpl) Get(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, requestID)
		if err != nil {
			s.log.Warn().Err(err).Str("request_id", requestID.String()).Msg("redis intelligence read failed, falling through to DB")
		}
		if cached != nil {
			return cached, nil
		}
	}

	stored, err := s.intelRepo.Get(ctx, requestID)
	if err != nil {
		return nil, storeError("get intelligence", err)
	}
	if stored == nil {
		return s.Recompute(ctx, requestID)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, stored, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("request_id", requestID.String()).Msg("failed to cache intelligence in redis")
		}
	}
	return stored, nil
}
