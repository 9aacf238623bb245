// Package validation checks transaction payloads before they reach the ledger.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/metrics"

	"github.com/shopspring/decimal"
)

// Reasons reported for rejected fields.
const (
	ReasonMissing     = "Must be provided"
	ReasonAmount      = "Amount must be greater than 0"
	ReasonPrecision   = "Amount must have at most 30 decimal places"
	ReasonKind        = "Must be one of credit or debit"
	ReasonDescription = "Description must contain more than 1 character"
)

// Required lists the payload fields in the order missing fields are reported.
var Required = []string{"amount", "type", "description", "date"}

// FieldError is a single rejected field. It encodes as {"<field>": "<reason>"}.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// MarshalJSON encodes the error as a one-key object.
func (e FieldError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{e.Field: e.Reason})
}

// Errors is every violation found in a payload. An empty list means valid.
type Errors []FieldError

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return "invalid transaction: " + strings.Join(parts, "; ")
}

// Fields returns the rejected field names in report order.
func (es Errors) Fields() []string {
	fields := make([]string, len(es))
	for i, e := range es {
		fields[i] = e.Field
	}
	return fields
}

// Validate returns every violation in payload. Semantic checks are
// skipped for fields that are absent, which are reported as missing.
func Validate(payload map[string]any) Errors {
	errs := Errors{}

	for _, field := range Required {
		if _, ok := payload[field]; !ok {
			errs = append(errs, FieldError{Field: field, Reason: ReasonMissing})
		}
	}

	if v, ok := payload["amount"]; ok {
		amount, err := toDecimal(v)
		switch {
		case err != nil || !amount.IsPositive():
			errs = append(errs, FieldError{Field: "amount", Reason: ReasonAmount})
		case !ledger.FitsScale(amount):
			errs = append(errs, FieldError{Field: "amount", Reason: ReasonPrecision})
		}
	}

	if v, ok := payload["type"]; ok {
		kind, _ := v.(string)
		if !ledger.Kind(kind).Valid() {
			errs = append(errs, FieldError{Field: "type", Reason: ReasonKind})
		}
	}

	if v, ok := payload["description"]; ok {
		if len(toText(v)) < 1 {
			errs = append(errs, FieldError{Field: "description", Reason: ReasonDescription})
		}
	}

	return errs
}

// Gate runs Validate and reports rejected fields to a metrics collector.
type Gate struct {
	metrics metrics.Collector
}

// NewGate creates a Gate. A nil collector disables reporting.
func NewGate(collector metrics.Collector) *Gate {
	return &Gate{metrics: metrics.OrNoOp(collector)}
}

// Check validates payload and returns nil when it is valid.
func (g *Gate) Check(payload map[string]any) error {
	errs := Validate(payload)
	if len(errs) == 0 {
		return nil
	}
	for _, e := range errs {
		g.metrics.RecordValidationFailure(e.Field)
	}
	return errs
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Zero, fmt.Errorf("amount: unsupported value %T", v)
	}
}

func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
