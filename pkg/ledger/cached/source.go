package cached

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cheque-ledger/pkg/cache"
	"cheque-ledger/pkg/ledger"
)

// accountRecord is the cached form of an account. Unlike the API shape it
// keeps the opening balance.
type accountRecord struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Balance        string `json:"balance"`
	OpeningBalance string `json:"opening_balance"`
}

func encodeAccount(acc *ledger.Account) ([]byte, error) {
	return json.Marshal(accountRecord{
		ID:             acc.ID,
		Name:           acc.Name,
		Balance:        acc.Balance.String(),
		OpeningBalance: acc.OpeningBalance.String(),
	})
}

func decodeAccount(data []byte) (*ledger.Account, error) {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	acc := &ledger.Account{ID: rec.ID, Name: rec.Name}
	if err := acc.Balance.UnmarshalText([]byte(rec.Balance)); err != nil {
		return nil, err
	}
	if err := acc.OpeningBalance.UnmarshalText([]byte(rec.OpeningBalance)); err != nil {
		return nil, err
	}
	return acc, nil
}

func encodeTransaction(t *ledger.Transaction) ([]byte, error) {
	return json.Marshal(t)
}

func decodeTransaction(data []byte) (*ledger.Transaction, error) {
	var t ledger.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// sourceLayer is the last layer of the chain: it reads from the store.
// Writes are ignored; the store is written through the ledger.
type sourceLayer struct {
	store ledger.Store
}

func (s *sourceLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if key == cache.AccountKey() {
		acc, err := s.store.LoadAccount(ctx)
		if errors.Is(err, ledger.ErrNoAccount) {
			return nil, cache.ErrKeyNotFound
		}
		if err != nil {
			return nil, err
		}
		return encodeAccount(acc)
	}

	id, ok := cache.ParseTransactionKey(key)
	if !ok {
		return nil, cache.ErrKeyNotFound
	}

	t, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		return nil, cache.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return encodeTransaction(t)
}

func (s *sourceLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (s *sourceLayer) Delete(ctx context.Context, key string) error {
	return nil
}

func (s *sourceLayer) Name() string {
	return "store"
}

// Close is a no-op; the store is closed by Store.Close.
func (s *sourceLayer) Close() error {
	return nil
}

var _ cache.Layer = (*sourceLayer)(nil)
