package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
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

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	locks      *keylock.Locker
	metrics    *metrics.Manager
	cfg        config.MarketplaceConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	locks *keylock.Locker,
	m *metrics.Manager,
	cfg config.MarketplaceConfig,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		locks:      locks,
		metrics:    m,
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Debit takes amount from the owner's wallet as an unlock-kind entry.
func (s *WalletServiceImpl) Debit(ctx context.Context, ownerID uuid.UUID, amount int64, reason string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	return s.run(ctx, ownerID, domain.TransactionKindUnlock, amount, func(ctx context.Context, tx pgx.Tx) (*domain.WalletTransaction, error) {
		return s.DebitTx(ctx, tx, ownerID, amount, reason)
	})
}

// Credit adds amount to the owner's wallet as a recharge, creating the
// wallet on first credit.
func (s *WalletServiceImpl) Credit(ctx context.Context, ownerID uuid.UUID, amount int64, reason string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if s.cfg.MaxRecharge > 0 && amount > s.cfg.MaxRecharge {
		return nil, apperror.ErrAmountTooLarge(s.cfg.MaxRecharge)
	}
	return s.run(ctx, ownerID, domain.TransactionKindRecharge, amount, func(ctx context.Context, tx pgx.Tx) (*domain.WalletTransaction, error) {
		return s.CreditTx(ctx, tx, ownerID, domain.TransactionKindRecharge, amount, reason)
	})
}

// run executes fn under the wallet lock inside one DB transaction.
func (s *WalletServiceImpl) run(
	ctx context.Context,
	ownerID uuid.UUID,
	kind domain.TransactionKind,
	amount int64,
	fn func(ctx context.Context, tx pgx.Tx) (*domain.WalletTransaction, error),
) (*domain.WalletTransaction, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	release, err := s.locks.Lock(ctx, walletLockKey(ownerID))
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	entry, err := s.inTx(ctx, fn)
	if err != nil {
		s.metrics.RecordWalletOp(string(kind), metrics.ResultFailure, 0)
		return nil, err
	}
	s.metrics.RecordWalletOp(string(kind), metrics.ResultSuccess, amount)

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("owner_id", ownerID.String()).
		Str("kind", string(entry.Kind)).
		Int64("amount", entry.Amount).
		Msg("wallet transaction recorded")

	return entry, nil
}

func (s *WalletServiceImpl) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) (*domain.WalletTransaction, error)) (*domain.WalletTransaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storeError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := fn(ctx, dbTx)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, storeError("commit tx", err)
	}
	return entry, nil
}

// DebitTx debits within the caller's transaction. The caller holds the wallet key.
func (s *WalletServiceImpl) DebitTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, amount int64, reason string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	wallet, err := s.walletRepo.GetByOwnerIDForUpdate(ctx, tx, ownerID)
	if err != nil {
		return nil, storeError("lock wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if !wallet.CanDebit(amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.walletRepo.UpdateBalance(ctx, tx, ownerID, wallet.Balance-amount, wallet.Version); err != nil {
		return nil, storeError("update balance", err)
	}

	entry := s.newEntry(ownerID, domain.TransactionKindUnlock, -amount, reason)
	if err := s.ledgerRepo.Append(ctx, tx, entry); err != nil {
		return nil, storeError("append ledger entry", err)
	}
	return entry, nil
}

// CreditTx credits within the caller's transaction. kind is recharge or refund.
func (s *WalletServiceImpl) CreditTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, kind domain.TransactionKind, amount int64, reason string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if kind != domain.TransactionKindRecharge && kind != domain.TransactionKindRefund {
		return nil, apperror.ErrInvalidArgument(fmt.Sprintf("cannot credit a %s transaction", kind))
	}

	wallet, err := s.walletRepo.GetByOwnerIDForUpdate(ctx, tx, ownerID)
	if err != nil {
		return nil, storeError("lock wallet", err)
	}

	now := s.now()
	if wallet == nil {
		wallet = &domain.Wallet{
			OwnerID:   ownerID,
			Balance:   amount,
			Currency:  s.cfg.Currency,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.walletRepo.Create(ctx, tx, wallet); err != nil {
			return nil, storeError("create wallet", err)
		}
	} else {
		if wallet.Balance > math.MaxInt64-amount {
			return nil, apperror.ErrBalanceOverflow()
		}
		if err := s.walletRepo.UpdateBalance(ctx, tx, ownerID, wallet.Balance+amount, wallet.Version); err != nil {
			return nil, storeError("update balance", err)
		}
	}

	entry := s.newEntry(ownerID, kind, amount, reason)
	if err := s.ledgerRepo.Append(ctx, tx, entry); err != nil {
		return nil, storeError("append ledger entry", err)
	}
	return entry, nil
}

func (s *WalletServiceImpl) newEntry(ownerID uuid.UUID, kind domain.TransactionKind, amount int64, reason string) *domain.WalletTransaction {
	return &domain.WalletTransaction{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Kind:        kind,
		Amount:      amount,
		Description: reason,
		Status:      domain.TransactionStatusCompleted,
		CreatedAt:   s.now(),
	}
}

// GetWallet returns the owner's wallet. An owner who never recharged sees
// an empty wallet in the configured currency.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	wallet, err := s.walletRepo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, storeError("get wallet", err)
	}
	if wallet == nil {
		return &domain.Wallet{OwnerID: ownerID, Currency: s.cfg.Currency}, nil
	}
	return wallet, nil
}

// ListTransactions returns one page of the owner's history, newest first.
func (s *WalletServiceImpl) ListTransactions(ctx context.Context, ownerID uuid.UUID, cursor string, limit int) (*domain.TransactionPage, error) {
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < 1 || limit > maxPageSize {
		return nil, apperror.ErrInvalidArgument(fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
	}

	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, apperror.ErrInvalidArgument("Invalid pagination cursor")
	}

	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	entries, err := s.ledgerRepo.ListByOwner(ctx, ownerID, after, limit+1)
	if err != nil {
		return nil, storeError("list transactions", err)
	}

	page := &domain.TransactionPage{Items: entries}
	if len(entries) > limit {
		page.Items = entries[:limit]
		last := page.Items[limit-1]
		page.NextCursor = encodeCursor(ports.LedgerCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// encodeCursor packs a keyset position as base64("<unix_nanos>|<id>").
func encodeCursor(c ports.LedgerCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (*ports.LedgerCursor, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, fmt.Errorf("malformed cursor")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &ports.LedgerCursor{CreatedAt: time.Unix(0, n).UTC(), ID: parsed}, nil
}
