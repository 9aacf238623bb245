package ledger

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Defaults for the singleton account.
const (
	DefaultAccountName = "Cheque Account"
)

// MaxAmountScale is the number of decimal places amounts and balances
// are stored with. The MySQL schema uses DECIMAL(65,30).
const MaxAmountScale = 30

// FitsScale reports whether d has no significant digits beyond
// MaxAmountScale decimal places, so no store rounds it.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MaxAmountScale))
}

// DefaultOpeningBalance is the balance the account is seeded with.
var DefaultOpeningBalance = decimal.NewFromInt(10000)

// Kind is the direction of a transaction.
type Kind string

const (
	// Credit increases the balance.
	Credit Kind = "credit"
	// Debit decreases the balance and is rejected if it would drive it negative.
	Debit Kind = "debit"
)

// Valid reports whether k is credit or debit.
func (k Kind) Valid() bool {
	return k == Credit || k == Debit
}

// Account is the single account the ledger tracks.
type Account struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"-"`
}

// Transaction is a credit or debit recorded against the account.
// Amount is always positive; the sign is carried by Kind.
type Transaction struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        Kind            `json:"type"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
}

// Effect returns the signed change the transaction applies to a balance.
func (t Transaction) Effect() decimal.Decimal {
	if t.Kind == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Input carries the caller-supplied fields of a transaction.
// Date is kept as text; it is parsed when the transaction is written.
type Input struct {
	Amount      decimal.Decimal `json:"amount"`
	Kind        Kind            `json:"type"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// UnmarshalJSON accepts the date as either a JSON string or any other
// scalar, so the raw text reaches ParseDate unchanged.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount      decimal.Decimal `json:"amount"`
		Kind        Kind            `json:"type"`
		Description string          `json:"description"`
		Date        json.RawMessage `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	in.Amount = raw.Amount
	in.Kind = raw.Kind
	in.Description = raw.Description
	in.Date = ""

	if len(raw.Date) > 0 && string(raw.Date) != "null" {
		var s string
		if err := json.Unmarshal(raw.Date, &s); err != nil {
			s = strings.TrimSpace(string(raw.Date))
		}
		in.Date = s
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses a caller-supplied transaction date.
// Dates without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
