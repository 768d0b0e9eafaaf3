// Package memory is an in-process implementation of the repository ports.
//
// Writes made through a Tx are staged and applied atomically on Commit; reads
// always see committed state. Callers serialise same-key work with
// pkg/keylock, so a read "for update" followed by a staged write cannot race.
package memory

import (
	"context"
	"errors"
	"sync"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	errNoSQL     = errors.New("memory: SQL is not supported by the in-memory store")
	errForeignTx = errors.New("memory: transaction does not belong to this store")
)

// Store holds every record in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	wallets       map[uuid.UUID]*domain.Wallet
	ledger        map[uuid.UUID]*domain.WalletTransaction
	ledgerByOwner map[uuid.UUID][]uuid.UUID
	requests      map[uuid.UUID]*domain.ServiceRequest
	quotes        map[uuid.UUID]*domain.Quote
	unlocks       map[uuid.UUID]*domain.UnlockTransaction
	intelligence  map[uuid.UUID]*domain.RequestIntelligence
	profiles      map[uuid.UUID]*domain.TradieProfile
	receipts      map[string]receiptRow
	audit         []*domain.AuditLog
	deliveries    []*domain.NotificationDeliveryLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		wallets:       make(map[uuid.UUID]*domain.Wallet),
		ledger:        make(map[uuid.UUID]*domain.WalletTransaction),
		ledgerByOwner: make(map[uuid.UUID][]uuid.UUID),
		requests:      make(map[uuid.UUID]*domain.ServiceRequest),
		quotes:        make(map[uuid.UUID]*domain.Quote),
		unlocks:       make(map[uuid.UUID]*domain.UnlockTransaction),
		intelligence:  make(map[uuid.UUID]*domain.RequestIntelligence),
		profiles:      make(map[uuid.UUID]*domain.TradieProfile),
		receipts:      make(map[string]receiptRow),
	}
}

// Begin starts a staged transaction. Implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: s}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

// stagedOp is validated against committed state, then applied, at commit.
type stagedOp struct {
	check func() error
	apply func()
}

// stage queues op on tx, which must have been started by this store.
func (s *Store) stage(ctx context.Context, tx pgx.Tx, op stagedOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mtx, ok := tx.(*Tx)
	if !ok || mtx.store != s {
		return errForeignTx
	}
	return mtx.add(op)
}

// Tx is a pgx.Tx whose writes are closures over the store. The SQL surface
// of pgx.Tx is not supported.
type Tx struct {
	store *Store

	mu     sync.Mutex
	ops    []stagedOp
	closed bool
}

func (t *Tx) add(op stagedOp) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.ops = append(t.ops, op)
	return nil
}

// Commit validates every staged op and then applies them all, or none.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range t.ops {
		if op.check == nil {
			continue
		}
		if err := op.check(); err != nil {
			return err
		}
	}
	for _, op := range t.ops {
		op.apply()
	}
	t.ops = nil
	return nil
}

// Rollback discards staged ops. Rolling back a finished tx returns pgx.ErrTxClosed.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.ops = nil
	return nil
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errNoSQL }
func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errNoSQL
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errNoSQL
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errNoSQL
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNoSQL
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return errRow{} }
func (t *Tx) Conn() *pgx.Conn                                               { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return errNoSQL }
