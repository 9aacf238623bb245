package cache

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxKeyLength is the longest key a layer accepts.
const MaxKeyLength = 250

const (
	transactionPrefix = "transaction:"
	accountKey        = "account"
)

// ValidateKey checks key is non-empty, at most MaxKeyLength bytes, and
// free of control characters and surrounding whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}

	return nil
}

// TransactionKey returns the cache key of the transaction with id.
func TransactionKey(id int64) string {
	return transactionPrefix + strconv.FormatInt(id, 10)
}

// ParseTransactionKey extracts the id from a key built by TransactionKey.
func ParseTransactionKey(key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, transactionPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// AccountKey returns the cache key of the singleton account.
func AccountKey() string {
	return accountKey
}
