// Package postgres implements ledger.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/logging"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "ledger",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN returns the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

const (
	selectAccount = `SELECT id, name, balance, opening_balance FROM accounts WHERE singleton`
	lockAccount   = selectAccount + ` FOR UPDATE`
	seedAccount   = `INSERT INTO accounts (name, balance, opening_balance) VALUES ($1, $2, $2) ON CONFLICT (singleton) DO NOTHING`
	updateBalance = `UPDATE accounts SET balance = $1 WHERE id = $2`

	insertTransaction = `INSERT INTO transactions (amount, type, description, date) VALUES ($1, $2, $3, $4) RETURNING id`
	selectTransaction = `SELECT id, amount, type, description, date FROM transactions WHERE id = $1`
	listTransactions  = `SELECT id, amount, type, description, date FROM transactions ORDER BY date DESC, id ASC`
	updateTransaction = `UPDATE transactions SET amount = $1, type = $2, description = $3, date = $4 WHERE id = $5`
	deleteTransaction = `DELETE FROM transactions WHERE id = $1`
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a ledger.Store backed by PostgreSQL. A Store handed to an
// Atomic callback is bound to the open transaction.
type Store struct {
	db     *sql.DB
	q      querier
	inTx   bool
	logger *logging.Logger
}

// Open connects to PostgreSQL, verifies the connection and applies the
// embedded migrations.
func Open(ctx context.Context, cfg Config, logger *logging.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := NewStore(db, logger)
	if err := s.Migrate(cfg.Database); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("postgres store ready",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)
	return s, nil
}

// NewStore wraps an open database handle. It does not migrate.
func NewStore(db *sql.DB, logger *logging.Logger) *Store {
	return &Store{
		db:     db,
		q:      db,
		logger: logging.OrNop(logger).Named("postgres"),
	}
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate(database string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{DatabaseName: database})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Info("no new migrations")
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	s.logger.Info("migrations applied")
	return nil
}

// Atomic runs fn in a database transaction. Nested calls join the
// outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(&Store{db: s.db, q: tx, inTx: true, logger: s.logger}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadAccount reads the singleton account. Inside Atomic the row is
// locked until the transaction ends.
func (s *Store) LoadAccount(ctx context.Context) (*ledger.Account, error) {
	query := selectAccount
	if s.inTx {
		query = lockAccount
	}

	var acc ledger.Account
	err := s.q.QueryRowContext(ctx, query).Scan(&acc.ID, &acc.Name, &acc.Balance, &acc.OpeningBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &acc, nil
}

// SeedAccount inserts the account unless the singleton row exists.
func (s *Store) SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (*ledger.Account, error) {
	res, err := s.q.ExecContext(ctx, seedAccount, name, balance)
	if err != nil {
		return nil, fmt.Errorf("seed account: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("account seeded", zap.String("name", name), zap.Stringer("balance", balance))
	}
	return s.LoadAccount(ctx)
}

func (s *Store) SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx, updateBalance, balance, accountID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrNoAccount
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	err := s.q.QueryRowContext(ctx, insertTransaction,
		t.Amount, string(t.Kind), t.Description, t.Date,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRowContext(ctx, selectTransaction, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []ledger.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	_, err := s.q.ExecContext(ctx, updateTransaction,
		t.Amount, string(t.Kind), t.Description, t.Date, t.ID,
	)
	return err
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, deleteTransaction, id)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool. It is a no-op on a transaction-bound Store.
func (s *Store) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*ledger.Transaction, error) {
	var (
		t    ledger.Transaction
		kind string
	)
	if err := row.Scan(&t.ID, &t.Amount, &kind, &t.Description, &t.Date); err != nil {
		return nil, err
	}
	t.Kind = ledger.Kind(kind)
	t.Date = t.Date.UTC()
	return &t, nil
}

var _ ledger.Store = (*Store)(nil)
