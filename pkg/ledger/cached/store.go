// Package cached puts a read-through cache chain in front of a ledger.Store.
//
// Single transactions and the account are served from the chain
// [upper layers..., bloom(store)]. The bloom filter knows every
// transaction id that was written or existed at Warm, so lookups of ids
// that never existed skip the store. This holds only while this process
// is the single writer of the database.
package cached

import (
	"context"
	"time"

	"cheque-ledger/pkg/cache"
	"cheque-ledger/pkg/cache/bloom"
	"cheque-ledger/pkg/chain"
	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options configures a cached Store.
type Options struct {
	// Layers are the cache layers in front of the store, fastest first.
	Layers []cache.Layer

	// TTL is the base TTL of cached records.
	TTL time.Duration

	// TTLStrategy spreads TTL across the layers. Defaults to uniform.
	TTLStrategy chain.TTLStrategy

	// BloomExpectedItems and BloomFalsePositiveRate size the filter.
	BloomExpectedItems     uint
	BloomFalsePositiveRate float64

	Metrics metrics.Collector
	Logger  *logging.Logger
}

// Store is a ledger.Store with cached single-record reads.
type Store struct {
	store  ledger.Store
	chain  *chain.Chain
	bloom  *bloom.Layer
	logger *logging.Logger
}

// New builds the chain in front of store.
func New(store ledger.Store, opts Options) (*Store, error) {
	logger := logging.OrNop(opts.Logger).Named("cached")

	filter := bloom.New(&sourceLayer{store: store}, opts.BloomExpectedItems, opts.BloomFalsePositiveRate)

	layers := append(append([]cache.Layer(nil), opts.Layers...), filter)
	c, err := chain.New(chain.Options{
		TTL:     opts.TTLStrategy,
		BaseTTL: opts.TTL,
		Metrics: opts.Metrics,
		Logger:  opts.Logger,
	}, layers...)
	if err != nil {
		return nil, err
	}

	logger.Info("cache chain ready", zap.Stringer("chain", c))

	return &Store{
		store:  store,
		chain:  c,
		bloom:  filter,
		logger: logger,
	}, nil
}

// Warm registers the account and every stored transaction id in the
// bloom filter. It must run before the first read.
func (s *Store) Warm(ctx context.Context) error {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(txs)+1)
	keys = append(keys, cache.AccountKey())
	for _, t := range txs {
		keys = append(keys, cache.TransactionKey(t.ID))
	}
	s.bloom.Add(keys...)

	s.logger.Info("bloom filter warmed", zap.Int("transactions", len(txs)))
	return nil
}

// BloomStats exposes the filter counters.
func (s *Store) BloomStats() bloom.Stats {
	return s.bloom.Stats()
}

// Atomic runs fn against the underlying store and invalidates the
// records it wrote once the unit commits.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	var tx *txStore
	err := s.store.Atomic(ctx, func(inner ledger.Store) error {
		tx = &txStore{Store: inner}
		return fn(tx)
	})
	if err != nil {
		return err
	}

	s.bloom.Add(tx.inserted...)
	s.invalidate(ctx, tx.dirty...)
	return nil
}

func (s *Store) LoadAccount(ctx context.Context) (*ledger.Account, error) {
	data, err := s.chain.Get(ctx, cache.AccountKey())
	if cache.IsNotFound(err) {
		return nil, ledger.ErrNoAccount
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(data)
}

func (s *Store) SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (*ledger.Account, error) {
	acc, err := s.store.SeedAccount(ctx, name, balance)
	if err != nil {
		return nil, err
	}
	s.bloom.Add(cache.AccountKey())
	s.invalidate(ctx, cache.AccountKey())
	return acc, nil
}

func (s *Store) SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if err := s.store.SaveBalance(ctx, accountID, balance); err != nil {
		return err
	}
	s.invalidate(ctx, cache.AccountKey())
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	if err := s.store.InsertTransaction(ctx, t); err != nil {
		return err
	}
	s.bloom.Add(cache.TransactionKey(t.ID))
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	data, err := s.chain.Get(ctx, cache.TransactionKey(id))
	if cache.IsNotFound(err) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeTransaction(data)
}

// ListTransactions always reads the store.
func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	return s.store.ListTransactions(ctx)
}

func (s *Store) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return err
	}
	s.invalidate(ctx, cache.TransactionKey(t.ID))
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.TransactionKey(id))
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close closes the cache layers and the store.
func (s *Store) Close() error {
	return multierr.Combine(s.chain.Close(), s.store.Close())
}

// invalidate drops keys from every layer. The store write already
// succeeded, so failures are logged rather than returned.
func (s *Store) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.chain.Delete(ctx, key); err != nil {
			s.logger.Error("cache invalidation failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// txStore records which keys a unit of work touched.
type txStore struct {
	ledger.Store
	dirty    []string
	inserted []string
}

func (t *txStore) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	return t.Store.Atomic(ctx, func(ledger.Store) error {
		return fn(t)
	})
}

func (t *txStore) SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (*ledger.Account, error) {
	acc, err := t.Store.SeedAccount(ctx, name, balance)
	if err == nil {
		t.inserted = append(t.inserted, cache.AccountKey())
		t.dirty = append(t.dirty, cache.AccountKey())
	}
	return acc, err
}

func (t *txStore) SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	err := t.Store.SaveBalance(ctx, accountID, balance)
	if err == nil {
		t.dirty = append(t.dirty, cache.AccountKey())
	}
	return err
}

func (t *txStore) InsertTransaction(ctx context.Context, tr *ledger.Transaction) error {
	err := t.Store.InsertTransaction(ctx, tr)
	if err == nil {
		t.inserted = append(t.inserted, cache.TransactionKey(tr.ID))
	}
	return err
}

func (t *txStore) UpdateTransaction(ctx context.Context, tr *ledger.Transaction) error {
	err := t.Store.UpdateTransaction(ctx, tr)
	if err == nil {
		t.dirty = append(t.dirty, cache.TransactionKey(tr.ID))
	}
	return err
}

func (t *txStore) DeleteTransaction(ctx context.Context, id int64) error {
	err := t.Store.DeleteTransaction(ctx, id)
	if err == nil {
		t.dirty = append(t.dirty, cache.TransactionKey(id))
	}
	return err
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Store = (*txStore)(nil)
)
