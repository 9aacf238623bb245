package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the persistence port of the ledger. Implementations live in
// the postgres, mysql and memory subpackages; cached and resilience
// wrap any of them.
type Store interface {
	// Atomic runs fn inside one storage transaction. The Store passed to
	// fn is bound to that transaction; it commits when fn returns nil and
	// rolls back otherwise.
	Atomic(ctx context.Context, fn func(Store) error) error

	// LoadAccount returns the singleton account, or ErrNoAccount.
	// Inside Atomic the row stays locked until the transaction ends.
	LoadAccount(ctx context.Context) (*Account, error)

	// SeedAccount inserts the singleton account unless one exists and
	// returns whichever row is stored.
	SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (*Account, error)

	// SaveBalance overwrites the balance of the account.
	SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error

	// InsertTransaction stores t and assigns t.ID.
	InsertTransaction(ctx context.Context, t *Transaction) error

	// GetTransaction returns the transaction with id, or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)

	// ListTransactions returns every transaction ordered by date
	// descending, then id ascending.
	ListTransactions(ctx context.Context) ([]Transaction, error)

	// UpdateTransaction overwrites amount, kind, description and date of
	// the transaction with t.ID. A missing id is not an error.
	UpdateTransaction(ctx context.Context, t *Transaction) error

	// DeleteTransaction removes the transaction with id. A missing id is
	// not an error.
	DeleteTransaction(ctx context.Context, id int64) error

	// Ping checks the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the storage handle.
	Close() error
}
