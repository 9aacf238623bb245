package ledger

import (
	"context"
	"errors"
	"fmt"

	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceMode selects how edits to recorded transactions affect the balance.
type BalanceMode string

const (
	// BalanceOnCreate applies a transaction to the balance only when it is
	// created. Updates and deletes leave the balance as it was.
	BalanceOnCreate BalanceMode = "creation"

	// BalanceRecompute recomputes the balance from the opening balance and
	// every recorded transaction after each update or delete.
	BalanceRecompute BalanceMode = "recompute"
)

// Valid reports whether m is a known mode.
func (m BalanceMode) Valid() bool {
	return m == BalanceOnCreate || m == BalanceRecompute
}

// Options configures a Ledger.
type Options struct {
	AccountName    string
	OpeningBalance decimal.Decimal
	BalanceMode    BalanceMode
	Logger         *logging.Logger
	Metrics        metrics.Collector
}

// DefaultOptions returns the options of the stock cheque account.
func DefaultOptions() Options {
	return Options{
		AccountName:    DefaultAccountName,
		OpeningBalance: DefaultOpeningBalance,
		BalanceMode:    BalanceOnCreate,
	}
}

// Ledger keeps the account balance consistent with the transactions
// recorded against it. It is the only component that changes the balance.
type Ledger struct {
	store   Store
	opts    Options
	logger  *logging.Logger
	metrics metrics.Collector
}

// New creates a Ledger on top of store.
func New(store Store, opts Options) *Ledger {
	if opts.AccountName == "" {
		opts.AccountName = DefaultAccountName
	}
	if opts.BalanceMode == "" {
		opts.BalanceMode = BalanceOnCreate
	}

	return &Ledger{
		store:   store,
		opts:    opts,
		logger:  logging.OrNop(opts.Logger).Named("ledger"),
		metrics: metrics.OrNoOp(opts.Metrics),
	}
}

// Init seeds the singleton account if it does not exist yet. It is meant
// to run once at process start. In recompute mode the stored balance is
// reconciled with the transaction log.
func (l *Ledger) Init(ctx context.Context) (*Account, error) {
	acc, err := l.store.SeedAccount(ctx, l.opts.AccountName, l.opts.OpeningBalance)
	if err != nil {
		return nil, fmt.Errorf("seed account: %w", err)
	}

	if l.opts.BalanceMode == BalanceRecompute {
		l.logger.Warn("balance mode differs from the default: updates and deletes recompute the balance",
			zap.String("mode", string(l.opts.BalanceMode)),
		)
		if err := l.store.Atomic(ctx, func(s Store) error {
			var rerr error
			acc, rerr = l.recompute(ctx, s)
			return rerr
		}); err != nil {
			return nil, fmt.Errorf("reconcile balance: %w", err)
		}
	}

	l.logger.Info("account ready",
		zap.Int64("account_id", acc.ID),
		zap.String("name", acc.Name),
		zap.Stringer("balance", acc.Balance),
	)
	l.metrics.RecordBalance(acc.Balance.InexactFloat64())

	return acc, nil
}

// Account returns the singleton account, creating it with the opening
// balance if it is missing.
func (l *Ledger) Account(ctx context.Context) (*Account, error) {
	acc, err := l.store.LoadAccount(ctx)
	if errors.Is(err, ErrNoAccount) {
		l.logger.Info("account missing, seeding", zap.String("name", l.opts.AccountName))
		return l.store.SeedAccount(ctx, l.opts.AccountName, l.opts.OpeningBalance)
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Apply returns balance after a transaction of kind and amount.
func Apply(balance decimal.Decimal, kind Kind, amount decimal.Decimal) (decimal.Decimal, error) {
	switch kind {
	case Credit:
		return balance.Add(amount), nil
	case Debit:
		if balance.LessThan(amount) {
			return balance, ErrInsufficientBalance
		}
		return balance.Sub(amount), nil
	default:
		return balance, ErrInvalidKind
	}
}

// CreateTransaction records a transaction and applies it to the balance.
// Both writes happen in one storage transaction.
func (l *Ledger) CreateTransaction(ctx context.Context, in Input) (*Transaction, error) {
	var (
		created *Transaction
		balance decimal.Decimal
	)

	err := l.store.Atomic(ctx, func(s Store) error {
		acc, err := s.LoadAccount(ctx)
		if err != nil {
			return err
		}
		if !in.Kind.Valid() {
			return ErrInvalidKind
		}
		if !in.Amount.IsPositive() {
			return ErrInvalidAmount
		}
		if !FitsScale(in.Amount) {
			return ErrAmountPrecision
		}

		balance, err = Apply(acc.Balance, in.Kind, in.Amount)
		if err != nil {
			return err
		}

		date, err := ParseDate(in.Date)
		if err != nil {
			return err
		}

		if err := s.SaveBalance(ctx, acc.ID, balance); err != nil {
			return err
		}

		t := &Transaction{
			Amount:      in.Amount,
			Kind:        in.Kind,
			Description: in.Description,
			Date:        date,
		}
		if err := s.InsertTransaction(ctx, t); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		l.recordFailure("create", err)
		return nil, err
	}

	l.logger.Info("transaction created",
		zap.Int64("transaction_id", created.ID),
		zap.String("kind", string(created.Kind)),
		zap.Stringer("amount", created.Amount),
		zap.Stringer("balance", balance),
	)
	l.metrics.RecordLedgerOp("create", metrics.OutcomeOK)
	l.metrics.RecordBalance(balance.InexactFloat64())

	return created, nil
}

// Transactions returns every transaction, newest first.
func (l *Ledger) Transactions(ctx context.Context) ([]Transaction, error) {
	txs, err := l.store.ListTransactions(ctx)
	if err != nil {
		l.recordFailure("list", err)
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

// Transaction returns the transaction with id. A missing transaction is
// reported as nil with a nil error.
func (l *Ledger) Transaction(ctx context.Context, id int64) (*Transaction, error) {
	t, err := l.store.GetTransaction(ctx, id)
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		l.recordFailure("get", err)
		return nil, err
	}
	return t, nil
}

// UpdateTransaction overwrites the fields of the transaction with id.
// In the default mode the balance is not touched, even when the kind or
// amount change. Failures are returned as *StorageError.
func (l *Ledger) UpdateTransaction(ctx context.Context, id int64, in Input) error {
	date, err := ParseDate(in.Date)
	if err != nil {
		return l.storageFailure("update", err)
	}
	if !FitsScale(in.Amount) {
		return l.storageFailure("update", ErrAmountPrecision)
	}

	t := &Transaction{
		ID:          id,
		Amount:      in.Amount,
		Kind:        in.Kind,
		Description: in.Description,
		Date:        date,
	}

	if l.opts.BalanceMode == BalanceRecompute {
		err = l.store.Atomic(ctx, func(s Store) error {
			if !t.Kind.Valid() {
				return ErrInvalidKind
			}
			if err := s.UpdateTransaction(ctx, t); err != nil {
				return err
			}
			_, err := l.recompute(ctx, s)
			return err
		})
	} else {
		err = l.store.UpdateTransaction(ctx, t)
	}
	if err != nil {
		return l.storageFailure("update", err)
	}

	l.logger.Info("transaction updated", zap.Int64("transaction_id", id))
	l.metrics.RecordLedgerOp("update", metrics.OutcomeOK)
	return nil
}

// DeleteTransaction removes the transaction with id. In the default mode
// the balance is not reverted. Failures are returned as *StorageError.
func (l *Ledger) DeleteTransaction(ctx context.Context, id int64) error {
	var err error
	if l.opts.BalanceMode == BalanceRecompute {
		err = l.store.Atomic(ctx, func(s Store) error {
			if err := s.DeleteTransaction(ctx, id); err != nil {
				return err
			}
			_, err := l.recompute(ctx, s)
			return err
		})
	} else {
		err = l.store.DeleteTransaction(ctx, id)
	}
	if err != nil {
		return l.storageFailure("delete", err)
	}

	l.logger.Info("transaction deleted", zap.Int64("transaction_id", id))
	l.metrics.RecordLedgerOp("delete", metrics.OutcomeOK)
	return nil
}

// Ping checks the store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// recompute sets the balance to the opening balance plus the effect of
// every recorded transaction. Must run inside Atomic.
func (l *Ledger) recompute(ctx context.Context, s Store) (*Account, error) {
	acc, err := s.LoadAccount(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	balance := acc.OpeningBalance
	for _, t := range txs {
		balance = balance.Add(t.Effect())
	}
	if balance.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	if !balance.Equal(acc.Balance) {
		if err := s.SaveBalance(ctx, acc.ID, balance); err != nil {
			return nil, err
		}
		l.logger.Info("balance recomputed",
			zap.Stringer("previous", acc.Balance),
			zap.Stringer("balance", balance),
		)
		acc.Balance = balance
	}
	l.metrics.RecordBalance(balance.InexactFloat64())

	return acc, nil
}

func (l *Ledger) storageFailure(op string, err error) error {
	l.recordFailure(op, err)
	return &StorageError{Op: op, Err: err}
}

func (l *Ledger) recordFailure(op string, err error) {
	outcome := metrics.OutcomeError
	if IsDomainError(err) {
		outcome = metrics.OutcomeRejected
	}
	l.metrics.RecordLedgerOp(op, outcome)

	l.logger.Warn("ledger operation failed",
		zap.String("operation", op),
		zap.String("error_type", Classify(err)),
		zap.Error(err),
	)
}
