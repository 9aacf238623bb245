package resilience

import (
	"context"

	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"

	"github.com/shopspring/decimal"
)

// Store wraps a ledger.Store with a circuit breaker and timeout. Domain
// errors (missing rows, rejected balances) count as successful calls.
// An Atomic unit passes through the breaker once; the Store handed to
// its callback is the unwrapped transactional store.
type Store struct {
	store ledger.Store
	guard *guard
}

// NewStore wraps store.
func NewStore(store ledger.Store, cfg Config, collector metrics.Collector, logger *logging.Logger) *Store {
	g := newGuard("store", cfg, ledger.IsDomainError, collector, logger)
	g.recordOps = true
	return &Store{store: store, guard: g}
}

// State returns the breaker state.
func (s *Store) State() metrics.CircuitState {
	return s.guard.State()
}

func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	return s.guard.run(ctx, "atomic", func(ctx context.Context) error {
		return s.store.Atomic(ctx, fn)
	})
}

func (s *Store) LoadAccount(ctx context.Context) (acc *ledger.Account, err error) {
	err = s.guard.run(ctx, "load_account", func(ctx context.Context) error {
		acc, err = s.store.LoadAccount(ctx)
		return err
	})
	return acc, err
}

func (s *Store) SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (acc *ledger.Account, err error) {
	err = s.guard.run(ctx, "seed_account", func(ctx context.Context) error {
		acc, err = s.store.SeedAccount(ctx, name, balance)
		return err
	})
	return acc, err
}

func (s *Store) SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	return s.guard.run(ctx, "save_balance", func(ctx context.Context) error {
		return s.store.SaveBalance(ctx, accountID, balance)
	})
}

func (s *Store) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	return s.guard.run(ctx, "insert", func(ctx context.Context) error {
		return s.store.InsertTransaction(ctx, t)
	})
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (t *ledger.Transaction, err error) {
	err = s.guard.run(ctx, "get", func(ctx context.Context) error {
		t, err = s.store.GetTransaction(ctx, id)
		return err
	})
	return t, err
}

func (s *Store) ListTransactions(ctx context.Context) (txs []ledger.Transaction, err error) {
	err = s.guard.run(ctx, "list", func(ctx context.Context) error {
		txs, err = s.store.ListTransactions(ctx)
		return err
	})
	return txs, err
}

func (s *Store) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	return s.guard.run(ctx, "update", func(ctx context.Context) error {
		return s.store.UpdateTransaction(ctx, t)
	})
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	return s.guard.run(ctx, "delete", func(ctx context.Context) error {
		return s.store.DeleteTransaction(ctx, id)
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.guard.run(ctx, "ping", s.store.Ping)
}

func (s *Store) Close() error {
	return s.store.Close()
}

var _ ledger.Store = (*Store)(nil)
