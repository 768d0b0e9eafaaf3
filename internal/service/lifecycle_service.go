package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradie-marketplace/config"
	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/apperror"
	"tradie-marketplace/pkg/keylock"
	"tradie-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const receiptTTL = 24 * time.Hour

// Lifecycle operation names, used as metric labels.
const (
	OpCreateRequest = "create_request"
	OpUnlock        = "unlock"
	OpSubmitQuote   = "submit_quote"
	OpAcceptQuote   = "accept_quote"
	OpComplete      = "complete_request"
	OpCancel        = "cancel_request"
	OpRecharge      = "recharge"
)

// LifecycleDeps groups the collaborators of LifecycleServiceImpl.
type LifecycleDeps struct {
	Requests     ports.ServiceRequestRepository
	Quotes       ports.QuoteRepository
	Unlocks      ports.UnlockRepository
	Receipts     ports.ReceiptRepository
	ReceiptCache ports.ReceiptCache // optional
	Transactor   ports.DBTransactor
	Wallet       ports.WalletService
	Intelligence ports.IntelligenceService
	Ratings      ports.RatingService
	Notifier     ports.Notifier
	Audit        ports.AuditService
	Locks        *keylock.Locker
	Metrics      *metrics.Manager
}

// LifecycleServiceImpl implements ports.LifecycleService.
type LifecycleServiceImpl struct {
	LifecycleDeps
	cfg config.MarketplaceConfig
	log zerolog.Logger
	now func() time.Time
}

// NewLifecycleService creates a new LifecycleServiceImpl.
func NewLifecycleService(deps LifecycleDeps, cfg config.MarketplaceConfig, log zerolog.Logger) *LifecycleServiceImpl {
	return &LifecycleServiceImpl{
		LifecycleDeps: deps,
		cfg:           cfg,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// guard bounds ctx by the operation timeout and takes the given keys.
// The returned func releases the keys and the timeout.
func (s *LifecycleServiceImpl) guard(ctx context.Context, keys ...string) (context.Context, func(), error) {
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	release, err := s.Locks.Lock(ctx, keys...)
	if err != nil {
		cancel()
		return nil, nil, lockError(err)
	}
	return ctx, func() {
		release()
		cancel()
	}, nil
}

// inTx runs fn in one DB transaction and commits when it succeeds.
func (s *LifecycleServiceImpl) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	dbTx, err := s.Transactor.Begin(ctx)
	if err != nil {
		return storeError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := fn(dbTx); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return storeError("commit tx", err)
	}
	return nil
}

func (s *LifecycleServiceImpl) observe(op string, err error) {
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = string(apperror.KindOf(err))
	}
	s.Metrics.RecordLifecycleOp(op, outcome)
}

// CreateRequest posts a new job for a customer.
func (s *LifecycleServiceImpl) CreateRequest(ctx context.Context, customerID uuid.UUID, in ports.CreateRequestInput) (req *domain.ServiceRequest, err error) {
	defer func() { s.observe(OpCreateRequest, err) }()

	if err := validateRequestInput(in); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	now := s.now()
	req = &domain.ServiceRequest{
		ID:          uuid.New(),
		CustomerID:  customerID,
		TradeType:   strings.TrimSpace(in.TradeType),
		Description: strings.TrimSpace(in.Description),
		Postcode:    in.Postcode,
		Urgency:     in.Urgency,
		Status:      domain.RequestStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.Requests.Create(ctx, tx, req); err != nil {
			return storeError("create request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditAction(ctx, customerID, domain.RoleCustomer, domain.AuditActionCreateRequest, "service_request", req.ID, map[string]any{
		"trade_type": req.TradeType,
		"postcode":   req.Postcode,
		"urgency":    req.Urgency,
	})
	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("customer_id", customerID.String()).
		Msg("service request created")

	return req, nil
}

// GetRequest returns a request. Customers only see their own; tradies browse all.
func (s *LifecycleServiceImpl) GetRequest(ctx context.Context, caller ports.Caller, requestID uuid.UUID) (*domain.ServiceRequest, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleTradie && !req.IsOwnedBy(caller.UserID) {
		return nil, apperror.ErrNotAuthorized("You do not own this job request")
	}
	return req, nil
}

// Unlock charges the tradie the unlock cost and grants quoting rights.
func (s *LifecycleServiceImpl) Unlock(ctx context.Context, tradieID, requestID uuid.UUID) (unlock *domain.UnlockTransaction, err error) {
	defer func() { s.observe(OpUnlock, err) }()

	ctx, done, err := s.guard(ctx, requestLockKey(requestID), walletLockKey(tradieID))
	if err != nil {
		return nil, err
	}
	defer done()

	cost := s.cfg.UnlockCost
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		req, err := s.Requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return storeError("lock request", err)
		}
		if req == nil {
			return apperror.ErrNotFound("Job request")
		}
		if req.IsOwnedBy(tradieID) {
			return apperror.ErrNotAuthorized("You cannot unlock your own job request")
		}
		if !req.IsOpenForBids() {
			return apperror.ErrRequestNotOpen()
		}

		existing, err := s.Unlocks.GetCompleted(ctx, tradieID, requestID)
		if err != nil {
			return storeError("check unlock", err)
		}
		if existing != nil {
			return apperror.ErrAlreadyUnlocked()
		}

		debit, err := s.Wallet.DebitTx(ctx, tx, tradieID, cost, "Unlock job "+requestID.String())
		if err != nil {
			return err
		}

		unlock = &domain.UnlockTransaction{
			ID:                  uuid.New(),
			TradieID:            tradieID,
			ServiceRequestID:    requestID,
			Amount:              cost,
			WalletTransactionID: debit.ID,
			Status:              domain.UnlockStatusCompleted,
			CreatedAt:           debit.CreatedAt,
		}
		if err := s.Unlocks.Create(ctx, tx, unlock); err != nil {
			return unlockError(err)
		}
		return nil
	})
	if err != nil {
		err = unlockError(err)
		if apperror.IsKind(err, apperror.KindInsufficientFunds) {
			s.Metrics.RecordWalletOp(string(domain.TransactionKindUnlock), metrics.ResultFailure, 0)
		}
		return nil, err
	}
	s.Metrics.RecordWalletOp(string(domain.TransactionKindUnlock), metrics.ResultSuccess, cost)

	s.auditAction(ctx, tradieID, domain.RoleTradie, domain.AuditActionUnlock, "service_request", requestID, map[string]any{
		"unlock_id":             unlock.ID,
		"wallet_transaction_id": unlock.WalletTransactionID,
		"amount":                cost,
	})
	s.log.Info().
		Str("unlock_id", unlock.ID.String()).
		Str("tradie_id", tradieID.String()).
		Str("request_id", requestID.String()).
		Int64("amount", cost).
		Msg("job unlocked")

	return unlock, nil
}

func unlockError(err error) error {
	if errors.Is(err, ports.ErrDuplicateUnlock) {
		return apperror.ErrAlreadyUnlocked()
	}
	return storeError("record unlock", err)
}

// SubmitQuote places a pending quote from a tradie who unlocked the request.
func (s *LifecycleServiceImpl) SubmitQuote(ctx context.Context, tradieID, requestID uuid.UUID, in ports.SubmitQuoteInput) (quote *domain.Quote, err error) {
	defer func() { s.observe(OpSubmitQuote, err) }()

	if err := validateQuoteInput(in); err != nil {
		return nil, err
	}

	ctx, done, err := s.guard(ctx, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer done()

	var req *domain.ServiceRequest
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		locked, err := s.Requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return storeError("lock request", err)
		}
		if locked == nil {
			return apperror.ErrNotFound("Job request")
		}
		req = locked

		unlocked, err := s.Unlocks.GetCompleted(ctx, tradieID, requestID)
		if err != nil {
			return storeError("check unlock", err)
		}
		if unlocked == nil {
			return apperror.ErrUnlockRequired()
		}
		if !req.IsOpenForBids() {
			return apperror.ErrRequestNotOpen()
		}

		pending, err := s.Quotes.HasPending(ctx, tradieID, requestID)
		if err != nil {
			return storeError("check pending quote", err)
		}
		if pending {
			return apperror.ErrDuplicateQuote()
		}

		now := s.now()
		quote = &domain.Quote{
			ID:               uuid.New(),
			ServiceRequestID: requestID,
			TradieID:         tradieID,
			Amount:           in.Amount,
			Breakdown: domain.QuoteBreakdown{
				Materials: in.Materials,
				Labour:    in.Labour,
			},
			EstimatedStartDate:      in.EstimatedStartDate.UTC(),
			EstimatedCompletionDate: in.EstimatedCompletionDate.UTC(),
			Notes:                   strings.TrimSpace(in.Notes),
			Status:                  domain.QuoteStatusPending,
			CreatedAt:               now,
		}
		if err := s.Quotes.Create(ctx, tx, quote); err != nil {
			return storeError("create quote", err)
		}

		if req.Status == domain.RequestStatusOpen {
			req.Status = domain.RequestStatusActive
			req.UpdatedAt = now
			if err := s.Requests.Update(ctx, tx, req); err != nil {
				return storeError("activate request", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, requestID)
	s.notify(ctx, domain.Notification{
		UserID: req.CustomerID,
		Title:  "New quote received",
		Body:   fmt.Sprintf("A tradie quoted %s for your %s job.", formatMoney(quote.Amount), req.TradeType),
		Metadata: map[string]string{
			"request_id": requestID.String(),
			"quote_id":   quote.ID.String(),
		},
	})
	s.auditAction(ctx, tradieID, domain.RoleTradie, domain.AuditActionSubmitQuote, "quote", quote.ID, map[string]any{
		"request_id": requestID,
		"amount":     quote.Amount,
	})
	s.log.Info().
		Str("quote_id", quote.ID.String()).
		Str("request_id", requestID.String()).
		Str("tradie_id", tradieID.String()).
		Int64("amount", quote.Amount).
		Msg("quote submitted")

	return quote, nil
}

// ListQuotes returns the request's quotes. The owner sees every quote; a
// tradie who unlocked the request sees only their own.
func (s *LifecycleServiceImpl) ListQuotes(ctx context.Context, caller ports.Caller, requestID uuid.UUID) ([]*domain.Quote, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	ownerView := req.IsOwnedBy(caller.UserID)
	if !ownerView {
		if err := s.requireUnlocked(ctx, caller, requestID); err != nil {
			return nil, err
		}
	}

	quotes, err := s.Quotes.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, storeError("list quotes", err)
	}
	if ownerView {
		return quotes, nil
	}

	own := make([]*domain.Quote, 0, 1)
	for _, q := range quotes {
		if q.TradieID == caller.UserID {
			own = append(own, q)
		}
	}
	return own, nil
}

// AcceptQuote accepts one pending quote and rejects every other pending
// quote on the same request.
func (s *LifecycleServiceImpl) AcceptQuote(ctx context.Context, customerID, quoteID uuid.UUID) (result *ports.AcceptResult, err error) {
	defer func() { s.observe(OpAcceptQuote, err) }()

	// One deadline covers the quote lookup and the guarded section.
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	target, err := s.Quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, storeError("get quote", err)
	}
	if target == nil {
		return nil, apperror.ErrNotFound("Quote")
	}
	requestID := target.ServiceRequestID

	ctx, done, err := s.guard(ctx, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer done()

	result = &ports.AcceptResult{Rejected: []uuid.UUID{}}
	var rejectedTradies []uuid.UUID
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		req, err := s.Requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return storeError("lock request", err)
		}
		if req == nil {
			return apperror.ErrNotFound("Job request")
		}
		if !req.IsOwnedBy(customerID) {
			return apperror.ErrNotAuthorized("You do not own this job request")
		}

		quotes, err := s.Quotes.ListByRequest(ctx, requestID)
		if err != nil {
			return storeError("list quotes", err)
		}
		var accepted *domain.Quote
		for _, q := range quotes {
			if q.ID == quoteID {
				accepted = q
			}
		}
		if accepted == nil {
			return apperror.ErrNotFound("Quote")
		}
		if !accepted.IsPending() {
			return apperror.ErrInvalidState(fmt.Sprintf("Quote is %s, only pending quotes can be accepted", accepted.Status))
		}
		if !req.IsOpenForBids() {
			return apperror.ErrInvalidState(fmt.Sprintf("Job request is %s and can no longer accept quotes", req.Status))
		}

		now := s.now()
		if err := s.Quotes.UpdateStatus(ctx, tx, quoteID, domain.QuoteStatusAccepted, &now); err != nil {
			return storeError("accept quote", err)
		}
		accepted.Status = domain.QuoteStatusAccepted
		accepted.AcceptedAt = &now

		for _, q := range quotes {
			if q.ID == quoteID || !q.IsPending() {
				continue
			}
			if err := s.Quotes.UpdateStatus(ctx, tx, q.ID, domain.QuoteStatusRejected, nil); err != nil {
				return storeError("reject quote", err)
			}
			result.Rejected = append(result.Rejected, q.ID)
			rejectedTradies = append(rejectedTradies, q.TradieID)
		}

		req.Status = domain.RequestStatusInProgress
		req.AcceptedQuoteID = &quoteID
		req.UpdatedAt = now
		if err := s.Requests.Update(ctx, tx, req); err != nil {
			return storeError("start request", err)
		}

		result.Request = req
		result.Quote = accepted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, requestID)
	s.notify(ctx, domain.Notification{
		UserID:   result.Quote.TradieID,
		Title:    "Quote accepted",
		Body:     fmt.Sprintf("Your %s quote for a %s job was accepted.", formatMoney(result.Quote.Amount), result.Request.TradeType),
		Metadata: map[string]string{"request_id": requestID.String(), "quote_id": quoteID.String()},
	})
	for i, tradieID := range rejectedTradies {
		s.notify(ctx, domain.Notification{
			UserID:   tradieID,
			Title:    "Quote not selected",
			Body:     fmt.Sprintf("The customer chose another quote for the %s job.", result.Request.TradeType),
			Metadata: map[string]string{"request_id": requestID.String(), "quote_id": result.Rejected[i].String()},
		})
	}
	s.auditAction(ctx, customerID, domain.RoleCustomer, domain.AuditActionAcceptQuote, "quote", quoteID, map[string]any{
		"request_id": requestID,
		"rejected":   result.Rejected,
	})
	s.log.Info().
		Str("quote_id", quoteID.String()).
		Str("request_id", requestID.String()).
		Int("rejected", len(result.Rejected)).
		Msg("quote accepted")

	return result, nil
}

// CompleteRequest closes an in-progress job and rates the accepted tradie.
func (s *LifecycleServiceImpl) CompleteRequest(ctx context.Context, customerID, requestID uuid.UUID, rating float64, review string) (req *domain.ServiceRequest, err error) {
	defer func() { s.observe(OpComplete, err) }()

	if !domain.ValidRating(rating) {
		return nil, errInvalidRating()
	}

	ctx, done, err := s.guard(ctx, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer done()

	current, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !current.IsOwnedBy(customerID) {
		return nil, apperror.ErrNotAuthorized("You do not own this job request")
	}
	if current.Status != domain.RequestStatusInProgress {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("Job request is %s, only in-progress jobs can be completed", current.Status))
	}
	if current.AcceptedQuoteID == nil {
		return nil, apperror.InternalError(fmt.Errorf("request %s is in progress without an accepted quote", requestID))
	}
	accepted, err := s.Quotes.GetByID(ctx, *current.AcceptedQuoteID)
	if err != nil {
		return nil, storeError("get accepted quote", err)
	}
	if accepted == nil {
		return nil, apperror.InternalError(fmt.Errorf("accepted quote %s missing", *current.AcceptedQuoteID))
	}
	tradieID := accepted.TradieID

	releaseProfile, err := s.Locks.Lock(ctx, profileLockKey(tradieID))
	if err != nil {
		return nil, lockError(err)
	}
	defer releaseProfile()

	var profile *domain.TradieProfile
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		locked, err := s.Requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return storeError("lock request", err)
		}
		if locked == nil || locked.Status != domain.RequestStatusInProgress {
			return apperror.ErrInvalidState("Job request changed while completing")
		}
		req = locked

		req.Status = domain.RequestStatusCompleted
		req.Rating = &rating
		if review = strings.TrimSpace(review); review != "" {
			req.Review = &review
		}
		req.UpdatedAt = s.now()
		if err := s.Requests.Update(ctx, tx, req); err != nil {
			return storeError("complete request", err)
		}

		updated, err := s.Ratings.RecordCompletionTx(ctx, tx, tradieID, rating)
		if err != nil {
			return err
		}
		profile = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, domain.Notification{
		UserID:   tradieID,
		Title:    "Job completed",
		Body:     fmt.Sprintf("The customer marked the %s job complete and rated you %.1f.", req.TradeType, rating),
		Metadata: map[string]string{"request_id": requestID.String()},
	})
	s.auditAction(ctx, customerID, domain.RoleCustomer, domain.AuditActionComplete, "service_request", requestID, map[string]any{
		"tradie_id":  tradieID,
		"rating":     rating,
		"new_rating": profile.Rating,
	})
	s.log.Info().
		Str("request_id", requestID.String()).
		Str("tradie_id", tradieID.String()).
		Float64("rating", rating).
		Msg("service request completed")

	return req, nil
}

// CancelRequest withdraws an open or active request, expires its pending
// quotes and, when configured, refunds every unlock on it.
func (s *LifecycleServiceImpl) CancelRequest(ctx context.Context, customerID, requestID uuid.UUID) (result *ports.CancelResult, err error) {
	defer func() { s.observe(OpCancel, err) }()

	ctx, done, err := s.guard(ctx, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer done()

	current, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !current.IsOwnedBy(customerID) {
		return nil, apperror.ErrNotAuthorized("You do not own this job request")
	}
	if !current.IsOpenForBids() {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("Job request is %s, only open or active jobs can be cancelled", current.Status))
	}

	var unlocks []*domain.UnlockTransaction
	if s.cfg.RefundOnCancel {
		unlocks, err = s.Unlocks.ListCompletedByRequest(ctx, requestID)
		if err != nil {
			return nil, storeError("list unlocks", err)
		}
	}
	walletKeys := make([]string, 0, len(unlocks))
	for _, u := range unlocks {
		walletKeys = append(walletKeys, walletLockKey(u.TradieID))
	}
	releaseWallets, err := s.Locks.Lock(ctx, walletKeys...)
	if err != nil {
		return nil, lockError(err)
	}
	defer releaseWallets()

	result = &ports.CancelResult{Expired: []uuid.UUID{}, Refunds: []*domain.WalletTransaction{}}
	affected := map[uuid.UUID]struct{}{}
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		req, err := s.Requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return storeError("lock request", err)
		}
		if req == nil || !req.IsOpenForBids() {
			return apperror.ErrInvalidState("Job request changed while cancelling")
		}

		quotes, err := s.Quotes.ListByRequest(ctx, requestID)
		if err != nil {
			return storeError("list quotes", err)
		}
		for _, q := range quotes {
			if !q.IsPending() {
				continue
			}
			if err := s.Quotes.UpdateStatus(ctx, tx, q.ID, domain.QuoteStatusExpired, nil); err != nil {
				return storeError("expire quote", err)
			}
			result.Expired = append(result.Expired, q.ID)
			affected[q.TradieID] = struct{}{}
		}

		for _, u := range unlocks {
			refund, err := s.Wallet.CreditTx(ctx, tx, u.TradieID, domain.TransactionKindRefund, u.Amount,
				"Refund: job "+requestID.String()+" cancelled")
			if err != nil {
				return err
			}
			result.Refunds = append(result.Refunds, refund)
			affected[u.TradieID] = struct{}{}
		}

		req.Status = domain.RequestStatusCancelled
		req.UpdatedAt = s.now()
		if err := s.Requests.Update(ctx, tx, req); err != nil {
			return storeError("cancel request", err)
		}
		result.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range result.Refunds {
		s.Metrics.RecordWalletOp(string(domain.TransactionKindRefund), metrics.ResultSuccess, r.Amount)
	}
	s.recompute(ctx, requestID)
	for tradieID := range affected {
		s.notify(ctx, domain.Notification{
			UserID:   tradieID,
			Title:    "Job cancelled",
			Body:     fmt.Sprintf("The customer cancelled the %s job.", result.Request.TradeType),
			Metadata: map[string]string{"request_id": requestID.String()},
		})
	}
	s.auditAction(ctx, customerID, domain.RoleCustomer, domain.AuditActionCancel, "service_request", requestID, map[string]any{
		"expired_quotes": len(result.Expired),
		"refunds":        len(result.Refunds),
	})
	s.log.Info().
		Str("request_id", requestID.String()).
		Int("expired_quotes", len(result.Expired)).
		Int("refunds", len(result.Refunds)).
		Msg("service request cancelled")

	return result, nil
}

// RechargeWallet credits funds captured by the payment collaborator. With
// an idempotency key the first result is replayed on retries; a retry that
// changes the amount or method is rejected instead of crediting twice.
func (s *LifecycleServiceImpl) RechargeWallet(ctx context.Context, userID uuid.UUID, amount int64, method, idempotencyKey string) (entry *domain.WalletTransaction, err error) {
	defer func() { s.observe(OpRecharge, err) }()

	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if s.cfg.MaxRecharge > 0 && amount > s.cfg.MaxRecharge {
		return nil, apperror.ErrAmountTooLarge(s.cfg.MaxRecharge)
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "card"
	}
	reason := "Wallet recharge via " + method

	if idempotencyKey == "" {
		entry, err = s.Wallet.Credit(ctx, userID, amount, reason)
		if err != nil {
			return nil, err
		}
		s.auditRecharge(ctx, userID, entry, method)
		return entry, nil
	}

	key := domain.RechargeReceiptKey(userID, idempotencyKey)
	if replay, err := s.replayRecharge(ctx, key, amount, method); err != nil || replay != nil {
		return replay, err
	}

	ctx, done, err := s.guard(ctx, walletLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer done()

	// A concurrent retry may have finished while this one waited.
	if replay, err := s.replayRecharge(ctx, key, amount, method); err != nil || replay != nil {
		return replay, err
	}

	var receipt *domain.RechargeReceipt
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		credited, err := s.Wallet.CreditTx(ctx, tx, userID, domain.TransactionKindRecharge, amount, reason)
		if err != nil {
			return err
		}
		receipt = &domain.RechargeReceipt{
			Key:       key,
			OwnerID:   userID,
			Amount:    amount,
			Method:    method,
			Entry:     credited,
			CreatedAt: credited.CreatedAt,
		}
		if err := s.Receipts.Create(ctx, tx, receipt); err != nil {
			return storeError("save recharge receipt", err)
		}
		return nil
	})
	if err != nil {
		s.Metrics.RecordWalletOp(string(domain.TransactionKindRecharge), metrics.ResultFailure, 0)
		return nil, err
	}
	s.Metrics.RecordWalletOp(string(domain.TransactionKindRecharge), metrics.ResultSuccess, amount)

	if s.ReceiptCache != nil {
		if err := s.ReceiptCache.Set(ctx, receipt, receiptTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to cache recharge receipt in redis")
		}
	}
	s.auditRecharge(ctx, userID, receipt.Entry, method)
	return receipt.Entry, nil
}

// replayRecharge returns the stored entry for key, checking Redis before the
// receipt table. It returns nil when the key is unused.
func (s *LifecycleServiceImpl) replayRecharge(ctx context.Context, key string, amount int64, method string) (*domain.WalletTransaction, error) {
	var receipt *domain.RechargeReceipt
	if s.ReceiptCache != nil {
		cached, err := s.ReceiptCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis receipt lookup failed, falling through to DB")
		}
		receipt = cached
	}
	if receipt == nil {
		logged, err := s.Receipts.Get(ctx, key)
		if err != nil {
			return nil, storeError("recharge receipt lookup", err)
		}
		if logged == nil {
			return nil, nil
		}
		receipt = logged
	}

	if !receipt.Matches(amount, method) {
		s.log.Warn().
			Str("key", key).
			Int64("receipt_amount", receipt.Amount).
			Int64("retry_amount", amount).
			Msg("idempotency key reused for a different recharge")
		return nil, apperror.ErrIdempotencyKeyReused()
	}
	return receipt.Entry, nil
}

func (s *LifecycleServiceImpl) auditRecharge(ctx context.Context, userID uuid.UUID, entry *domain.WalletTransaction, method string) {
	s.auditAction(ctx, userID, domain.RoleTradie, domain.AuditActionRecharge, "wallet_transaction", entry.ID, map[string]any{
		"amount": entry.Amount,
		"method": method,
	})
}

// GetIntelligence serves market statistics to the owner or to a tradie
// who unlocked the request.
func (s *LifecycleServiceImpl) GetIntelligence(ctx context.Context, caller ports.Caller, requestID uuid.UUID) (*domain.RequestIntelligence, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsOwnedBy(caller.UserID) {
		if err := s.requireUnlocked(ctx, caller, requestID); err != nil {
			return nil, err
		}
	}
	return s.Intelligence.Get(ctx, requestID)
}

func (s *LifecycleServiceImpl) loadRequest(ctx context.Context, requestID uuid.UUID) (*domain.ServiceRequest, error) {
	req, err := s.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeError("get request", err)
	}
	if req == nil {
		return nil, apperror.ErrNotFound("Job request")
	}
	return req, nil
}

// requireUnlocked admits a tradie holding a completed unlock on the request.
func (s *LifecycleServiceImpl) requireUnlocked(ctx context.Context, caller ports.Caller, requestID uuid.UUID) error {
	if caller.Role != domain.RoleTradie {
		return apperror.ErrNotAuthorized("You do not own this job request")
	}
	unlock, err := s.Unlocks.GetCompleted(ctx, caller.UserID, requestID)
	if err != nil {
		return storeError("check unlock", err)
	}
	if unlock == nil {
		return apperror.ErrUnlockRequired()
	}
	return nil
}

// recompute refreshes derived intelligence after a committed quote change.
// Failures are logged; Get rebuilds on a miss.
func (s *LifecycleServiceImpl) recompute(ctx context.Context, requestID uuid.UUID) {
	if _, err := s.Intelligence.Recompute(ctx, requestID); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID.String()).Msg("intelligence recompute failed")
	}
}

func (s *LifecycleServiceImpl) notify(ctx context.Context, n domain.Notification) {
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("user_id", n.UserID.String()).Msg("notification not scheduled")
	}
}

func (s *LifecycleServiceImpl) auditAction(
	ctx context.Context,
	actorID uuid.UUID,
	role domain.Role,
	action domain.AuditAction,
	resourceType string,
	resourceID uuid.UUID,
	details map[string]any,
) {
	raw, _ := json.Marshal(details)
	s.Audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      &actorID,
		ActorRole:    role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID.String(),
		Details:      string(raw),
		IPAddress:    clientIPFrom(ctx),
		CreatedAt:    s.now(),
	})
}
