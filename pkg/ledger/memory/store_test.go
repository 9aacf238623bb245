package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cheque-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(amount int64, kind ledger.Kind, date string) *ledger.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	return &ledger.Transaction{
		Amount:      decimal.NewFromInt(amount),
		Kind:        kind,
		Description: "test",
		Date:        d,
	}
}

func TestStore_SeedAccount_Idempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.LoadAccount(ctx)
	assert.ErrorIs(t, err, ledger.ErrNoAccount)

	first, err := s.SeedAccount(ctx, "Cheque Account", decimal.NewFromInt(10000))
	require.NoError(t, err)

	second, err := s.SeedAccount(ctx, "Other", decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Cheque Account", second.Name)
	assert.True(t, second.Balance.Equal(decimal.NewFromInt(10000)))
}

func TestStore_InsertAssignsIncreasingIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a := tx(1, ledger.Credit, "2024-10-12")
	b := tx(2, ledger.Credit, "2024-10-12")
	require.NoError(t, s.InsertTransaction(ctx, a))
	require.NoError(t, s.InsertTransaction(ctx, b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
}

func TestStore_ListOrdering(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	old := tx(1, ledger.Credit, "2024-01-01")
	newer := tx(2, ledger.Debit, "2024-06-01")
	sameDay := tx(3, ledger.Credit, "2024-06-01")
	for _, tr := range []*ledger.Transaction{old, newer, sameDay} {
		require.NoError(t, s.InsertTransaction(ctx, tr))
	}

	txs, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, newer.ID, txs[0].ID)
	assert.Equal(t, sameDay.ID, txs[1].ID)
	assert.Equal(t, old.ID, txs[2].ID)
}

func TestStore_UpdateAndDeleteMissingAreNoOps(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	missing := tx(5, ledger.Credit, "2024-10-12")
	missing.ID = 99
	assert.NoError(t, s.UpdateTransaction(ctx, missing))
	assert.NoError(t, s.DeleteTransaction(ctx, 99))

	_, err := s.GetTransaction(ctx, 99)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestStore_AtomicRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	acc, err := s.SeedAccount(ctx, "Cheque Account", decimal.NewFromInt(100))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Atomic(ctx, func(inner ledger.Store) error {
		if err := inner.SaveBalance(ctx, acc.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		if err := inner.InsertTransaction(ctx, tx(50, ledger.Debit, "2024-10-12")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(100)))

	txs, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_AtomicCommit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	acc, err := s.SeedAccount(ctx, "Cheque Account", decimal.NewFromInt(100))
	require.NoError(t, err)

	err = s.Atomic(ctx, func(inner ledger.Store) error {
		// nested Atomic joins the outer unit
		return inner.Atomic(ctx, func(nested ledger.Store) error {
			return nested.SaveBalance(ctx, acc.ID, decimal.NewFromInt(150))
		})
	})
	require.NoError(t, err)

	after, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(150)))
}

func TestStore_LoadAccountReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.SeedAccount(ctx, "Cheque Account", decimal.NewFromInt(100))
	require.NoError(t, err)

	acc, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	acc.Balance = decimal.Zero

	again, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(100)))
}

func TestStore_PingAfterClose(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
