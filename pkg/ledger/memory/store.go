package memory

import (
	"context"
	"sort"
	"sync"

	"cheque-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Store is an in-memory ledger.Store. Atomic works on a copy of the
// state that replaces the live state only when fn succeeds.
type Store struct {
	// mu serializes every operation, including whole Atomic units
	mu     sync.Mutex
	state  *state
	closed bool
}

type state struct {
	account *ledger.Account
	txs     map[int64]ledger.Transaction
	nextID  int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: &state{
			txs:    make(map[int64]ledger.Transaction),
			nextID: 1,
		},
	}
}

func (st *state) clone() *state {
	cp := &state{
		txs:    make(map[int64]ledger.Transaction, len(st.txs)),
		nextID: st.nextID,
	}
	if st.account != nil {
		acc := *st.account
		cp.account = &acc
	}
	for id, t := range st.txs {
		cp.txs[id] = t
	}
	return cp
}

// Atomic runs fn against a copy of the state and commits it on success.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&view{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) LoadAccount(ctx context.Context) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).LoadAccount(ctx)
}

func (s *Store) SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).SeedAccount(ctx, name, balance)
}

func (s *Store) SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).SaveBalance(ctx, accountID, balance)
}

func (s *Store) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).InsertTransaction(ctx, t)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).GetTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).ListTransactions(ctx)
}

func (s *Store) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).UpdateTransaction(ctx, t)
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).DeleteTransaction(ctx, id)
}

// Ping always succeeds on an open store.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

// Close marks the store closed. Data is kept so tests can inspect it.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// view operates on a state without locking. The caller holds Store.mu.
type view struct {
	st *state
}

func (v *view) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	return fn(v)
}

func (v *view) LoadAccount(ctx context.Context) (*ledger.Account, error) {
	if v.st.account == nil {
		return nil, ledger.ErrNoAccount
	}
	acc := *v.st.account
	return &acc, nil
}

func (v *view) SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (*ledger.Account, error) {
	if v.st.account == nil {
		v.st.account = &ledger.Account{
			ID:             1,
			Name:           name,
			Balance:        balance,
			OpeningBalance: balance,
		}
	}
	acc := *v.st.account
	return &acc, nil
}

func (v *view) SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if v.st.account == nil || v.st.account.ID != accountID {
		return ledger.ErrNoAccount
	}
	v.st.account.Balance = balance
	return nil
}

func (v *view) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	t.ID = v.st.nextID
	v.st.nextID++
	v.st.txs[t.ID] = *t
	return nil
}

func (v *view) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	t, ok := v.st.txs[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return &t, nil
}

func (v *view) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	txs := make([]ledger.Transaction, 0, len(v.st.txs))
	for _, t := range v.st.txs {
		txs = append(txs, t)
	}
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
	return txs, nil
}

func (v *view) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	if _, ok := v.st.txs[t.ID]; !ok {
		return nil
	}
	v.st.txs[t.ID] = *t
	return nil
}

func (v *view) DeleteTransaction(ctx context.Context, id int64) error {
	delete(v.st.txs, id)
	return nil
}

func (v *view) Ping(ctx context.Context) error { return nil }

func (v *view) Close() error { return nil }

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Store = (*view)(nil)
)
