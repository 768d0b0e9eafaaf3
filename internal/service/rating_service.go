package service

import (
	"context"
	"time"

	"tradie-marketplace/config"
	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/apperror"
	"tradie-marketplace/pkg/keylock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// RatingServiceImpl implements ports.RatingService.
type RatingServiceImpl struct {
	profileRepo ports.ProfileRepository
	transactor  ports.DBTransactor
	locks       *keylock.Locker
	cfg         config.MarketplaceConfig
	log         zerolog.Logger
	now         func() time.Time
}

// NewRatingService creates a new RatingServiceImpl.
func NewRatingService(
	profileRepo ports.ProfileRepository,
	transactor ports.DBTransactor,
	locks *keylock.Locker,
	cfg config.MarketplaceConfig,
	log zerolog.Logger,
) *RatingServiceImpl {
	return &RatingServiceImpl{
		profileRepo: profileRepo,
		transactor:  transactor,
		locks:       locks,
		cfg:         cfg,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RecordCompletion folds one rating into the tradie's running average.
func (s *RatingServiceImpl) RecordCompletion(ctx context.Context, tradieID uuid.UUID, rating float64) (*domain.TradieProfile, error) {
	if !domain.ValidRating(rating) {
		return nil, errInvalidRating()
	}

	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	release, err := s.locks.Lock(ctx, profileLockKey(tradieID))
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storeError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	profile, err := s.RecordCompletionTx(ctx, dbTx, tradieID, rating)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, storeError("commit tx", err)
	}
	return profile, nil
}

// RecordCompletionTx applies the rating within the caller's transaction.
func (s *RatingServiceImpl) RecordCompletionTx(ctx context.Context, tx pgx.Tx, tradieID uuid.UUID, rating float64) (*domain.TradieProfile, error) {
	if !domain.ValidRating(rating) {
		return nil, errInvalidRating()
	}

	profile, err := s.profileRepo.GetByTradieIDForUpdate(ctx, tx, tradieID)
	if err != nil {
		return nil, storeError("lock profile", err)
	}
	if profile == nil {
		profile = &domain.TradieProfile{TradieID: tradieID}
	}

	profile.ApplyRating(rating, s.now())
	if err := s.profileRepo.Upsert(ctx, tx, profile); err != nil {
		return nil, storeError("save profile", err)
	}

	s.log.Info().
		Str("tradie_id", tradieID.String()).
		Float64("rating", profile.Rating).
		Int("total_jobs", profile.TotalJobs).
		Msg("tradie rating updated")

	return profile, nil
}

// GetProfile returns the tradie's rating profile. Tradies without completed
// jobs get an empty profile.
func (s *RatingServiceImpl) GetProfile(ctx context.Context, tradieID uuid.UUID) (*domain.TradieProfile, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	profile, err := s.profileRepo.GetByTradieID(ctx, tradieID)
	if err != nil {
		return nil, storeError("get profile", err)
	}
	if profile == nil {
		return &domain.TradieProfile{TradieID: tradieID}, nil
	}
	return profile, nil
}

func errInvalidRating() *apperror.AppError {
	return apperror.ErrInvalidArgument("Rating must be between 0 and 5")
}
