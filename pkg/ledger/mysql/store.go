package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/logging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// accountRow maps the accounts table. Singleton carries a unique index so
// a second account can never be inserted.
type accountRow struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	Name           string          `gorm:"size:255;not null"`
	Balance        decimal.Decimal `gorm:"type:decimal(65,30);not null"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(65,30);not null"`
	Singleton      bool            `gorm:"uniqueIndex;not null"`
}

func (*accountRow) TableName() string {
	return "accounts"
}

// transactionRow maps the transactions table.
type transactionRow struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	Amount      decimal.Decimal `gorm:"type:decimal(65,30);not null"`
	Type        string          `gorm:"size:16;not null"`
	Description string          `gorm:"type:text;not null"`
	Date        time.Time       `gorm:"index;not null"`
}

func (*transactionRow) TableName() string {
	return "transactions"
}

func (r *transactionRow) toDomain() *ledger.Transaction {
	return &ledger.Transaction{
		ID:          r.ID,
		Amount:      r.Amount,
		Kind:        ledger.Kind(r.Type),
		Description: r.Description,
		Date:        r.Date.UTC(),
	}
}

func (r *accountRow) toDomain() *ledger.Account {
	return &ledger.Account{
		ID:             r.ID,
		Name:           r.Name,
		Balance:        r.Balance,
		OpeningBalance: r.OpeningBalance,
	}
}

// Store is a ledger.Store backed by MySQL.
type Store struct {
	db     *gorm.DB
	inTx   bool
	logger *logging.Logger
}

// NewStore wraps a gorm handle.
func NewStore(db *gorm.DB, logger *logging.Logger) *Store {
	return &Store{
		db:     db,
		logger: logging.OrNop(logger).Named("mysql"),
	}
}

// Migrate creates or updates the ledger tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&accountRow{}, &transactionRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Atomic runs fn inside db.Transaction. Nested calls join the outer one.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true, logger: s.logger})
	})
}

// LoadAccount reads the singleton account, locking it inside Atomic.
func (s *Store) LoadAccount(ctx context.Context) (*ledger.Account, error) {
	q := s.db.WithContext(ctx)
	if s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row accountRow
	err := q.Where("singleton = ?", true).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) SeedAccount(ctx context.Context, name string, balance decimal.Decimal) (*ledger.Account, error) {
	row := accountRow{
		Name:           name,
		Balance:        balance,
		OpeningBalance: balance,
		Singleton:      true,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("seed account: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("account seeded", zap.String("name", name), zap.Stringer("balance", balance))
	}
	return s.LoadAccount(ctx)
}

func (s *Store) SaveBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", accountID).Update("balance", balance)
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrNoAccount
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	row := transactionRow{
		Amount:      t.Amount,
		Type:        string(t.Kind),
		Description: t.Description,
		Date:        t.Date,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	t.ID = row.ID
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	var row transactionRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	var rows []transactionRow
	if err := s.db.WithContext(ctx).Order("date DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	txs := make([]ledger.Transaction, 0, len(rows))
	for i := range rows {
		txs = append(txs, *rows[i].toDomain())
	}
	return txs, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	return s.db.WithContext(ctx).Model(&transactionRow{}).Where("id = ?", t.ID).Updates(map[string]any{
		"amount":      t.Amount,
		"type":        string(t.Kind),
		"description": t.Description,
		"date":        t.Date,
	}).Error
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&transactionRow{}).Error
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the pool. It is a no-op on a transaction-bound Store.
func (s *Store) Close() error {
	if s.inTx {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ ledger.Store = (*Store)(nil)
