package api

import (
	"time"

	"cheque-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// number encodes a decimal as a bare JSON number, independent of
// decimal.MarshalJSONWithoutQuotes.
type number decimal.Decimal

func (n number) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(n).String()), nil
}

type accountView struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Balance number `json:"balance"`
}

func newAccountView(acc *ledger.Account) accountView {
	return accountView{
		ID:      acc.ID,
		Name:    acc.Name,
		Balance: number(acc.Balance),
	}
}

type transactionView struct {
	ID          int64       `json:"id"`
	Amount      number      `json:"amount"`
	Kind        ledger.Kind `json:"type"`
	Description string      `json:"description"`
	Date        time.Time   `json:"date"`
}

func newTransactionView(t *ledger.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		Amount:      number(t.Amount),
		Kind:        t.Kind,
		Description: t.Description,
		Date:        t.Date,
	}
}

func newTransactionViews(txs []ledger.Transaction) []transactionView {
	views := make([]transactionView, len(txs))
	for i := range txs {
		views[i] = newTransactionView(&txs[i])
	}
	return views
}
