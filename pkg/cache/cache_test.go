package cache

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"transaction key", "transaction:42", false},
		{"account key", "account", false},
		{"empty", "", true},
		{"too long", strings.Repeat("k", MaxKeyLength+1), true},
		{"max length", strings.Repeat("k", MaxKeyLength), false},
		{"control character", "bad\x00key", true},
		{"leading space", " key", true},
		{"trailing newline", "key\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransactionKey(t *testing.T) {
	key := TransactionKey(42)
	assert.Equal(t, "transaction:42", key)

	id, ok := ParseTransactionKey(key)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = ParseTransactionKey(AccountKey())
	assert.False(t, ok)

	_, ok = ParseTransactionKey("transaction:abc")
	assert.False(t, ok)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{ErrKeyNotFound, "key_not_found"},
		{WrapError(ErrLayerUnavailable, "redis", "get"), "unavailable"},
		{fmt.Errorf("wrapped: %w", ErrInvalidKey), "invalid_key"},
		{errors.New("dial tcp 127.0.0.1:6379: Connection refused"), "connection"},
		{errors.New("failed to unmarshal account"), "serialization"},
		{errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err))
	}
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "memory", "get"))

	err := WrapError(ErrKeyNotFound, "memory", "get")
	assert.EqualError(t, err, "cache layer memory get: cache: key not found")
	assert.True(t, IsNotFound(err))
}

func TestLayerConfig(t *testing.T) {
	cfg := LayerConfig{Name: "memory", DefaultTTL: time.Minute, MaxTTL: time.Hour}
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, time.Minute, cfg.EffectiveTTL(0))
	assert.Equal(t, 5*time.Minute, cfg.EffectiveTTL(5*time.Minute))
	assert.Equal(t, time.Hour, cfg.EffectiveTTL(2*time.Hour))

	bad := LayerConfig{Name: "memory", DefaultTTL: 2 * time.Hour, MaxTTL: time.Hour}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidValue)

	unnamed := LayerConfig{}
	assert.ErrorIs(t, unnamed.Validate(), ErrInvalidValue)
}

func TestEntry(t *testing.T) {
	now := time.Now()
	e := Entry{Value: []byte("v"), ExpiresAt: now.Add(time.Second)}

	assert.False(t, e.IsExpired(now))
	assert.Equal(t, time.Second, e.TimeToLive(now))
	assert.True(t, e.IsExpired(now.Add(2*time.Second)))
	assert.Zero(t, e.TimeToLive(now.Add(2*time.Second)))
}
