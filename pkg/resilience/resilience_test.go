package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"cheque-ledger/pkg/cache"
	"cheque-ledger/pkg/cache/mock"
	"cheque-ledger/pkg/ledger"
	ledgermemory "cheque-ledger/pkg/ledger/memory"
	"cheque-ledger/pkg/metrics"
	memorycollector "cheque-ledger/pkg/metrics/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tripFast() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.Breaker.ConsecutiveFailures = 3
	cfg.Breaker.OpenTimeout = time.Minute
	return cfg
}

// flakyStore fails GetTransaction with err and blocks Ping until ctx ends.
type flakyStore struct {
	ledger.Store
	err error
}

func (f *flakyStore) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	return nil, f.err
}

func (f *flakyStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestBreakerConfig_ReadyToTrip(t *testing.T) {
	b := DefaultConfig().Breaker

	tests := []struct {
		name   string
		counts Counts
		want   bool
	}{
		{"few requests", Counts{Requests: 10, TotalFailures: 4}, false},
		{"ratio reached", Counts{Requests: 20, TotalFailures: 3}, true},
		{"ratio below", Counts{Requests: 40, TotalFailures: 3}, false},
		{"consecutive failures", Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.ReadyToTrip(tt.counts))
		})
	}
}

func TestStore_PassesThrough(t *testing.T) {
	inner := ledgermemory.NewStore()
	collector := memorycollector.NewCollector()
	s := NewStore(inner, DefaultConfig(), collector, nil)
	ctx := context.Background()

	acc, err := s.SeedAccount(ctx, ledger.DefaultAccountName, ledger.DefaultOpeningBalance)
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultAccountName, acc.Name)

	_, err = s.GetTransaction(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.Stores["seed_account"].Calls)
	assert.Equal(t, int64(0), snap.Stores["get"].Failures, "not found is a normal outcome")
	assert.Equal(t, metrics.CircuitClosed, s.State())
}

func TestStore_DomainErrorsDoNotTrip(t *testing.T) {
	s := NewStore(&flakyStore{Store: ledgermemory.NewStore(), err: ledger.ErrTransactionNotFound}, tripFast(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := s.GetTransaction(ctx, 1)
		require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	}
	assert.Equal(t, metrics.CircuitClosed, s.State())
}

func TestStore_OpensOnFailures(t *testing.T) {
	collector := memorycollector.NewCollector()
	boom := errors.New("connection refused")
	s := NewStore(&flakyStore{Store: ledgermemory.NewStore(), err: boom}, tripFast(), collector, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.GetTransaction(ctx, 1)
		require.ErrorIs(t, err, boom)
	}

	_, err := s.GetTransaction(ctx, 1)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, metrics.CircuitOpen, s.State())

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.CircuitOpens["store"])
	assert.Equal(t, int64(4), snap.Stores["get"].Failures)
}

func TestStore_Timeout(t *testing.T) {
	s := NewStore(&flakyStore{Store: ledgermemory.NewStore()}, tripFast(), nil, nil)

	err := s.Ping(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))
}

func TestStore_AtomicUsesInnerStore(t *testing.T) {
	inner := ledgermemory.NewStore()
	s := NewStore(inner, DefaultConfig(), nil, nil)
	ctx := context.Background()

	_, err := s.SeedAccount(ctx, "Cheque Account", ledger.DefaultOpeningBalance)
	require.NoError(t, err)

	err = s.Atomic(ctx, func(tx ledger.Store) error {
		_, wrapped := tx.(*Store)
		assert.False(t, wrapped)
		return tx.InsertTransaction(ctx, &ledger.Transaction{Kind: ledger.Credit})
	})
	require.NoError(t, err)

	txs, err := inner.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLayer_MissesDoNotTrip(t *testing.T) {
	l := NewLayer(mock.New("redis"), tripFast(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := l.Get(ctx, "missing")
		require.ErrorIs(t, err, cache.ErrKeyNotFound)
	}
	assert.Equal(t, metrics.CircuitClosed, l.State())

	require.NoError(t, l.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := l.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, "redis", l.Name())
}

func TestLayer_OpensOnFailures(t *testing.T) {
	inner := mock.New("redis")
	inner.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return nil, cache.ErrLayerUnavailable
	}
	l := NewLayer(inner, tripFast(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Get(ctx, "k")
		require.ErrorIs(t, err, cache.ErrLayerUnavailable)
	}

	_, err := l.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, inner.GetCalls(), "open breaker short-circuits the layer")
}
