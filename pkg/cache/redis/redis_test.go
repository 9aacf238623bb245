package redis

import (
	"context"
	"testing"
	"time"

	"cheque-ledger/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLayer(t *testing.T) (*Layer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Name = "TestRedis"
	cfg.Addr = mr.Addr()
	cfg.KeyPrefix = "test:"
	cfg.DisableClientCache = true

	l, err := New(cfg)
	if err != nil {
		t.Skipf("redis client could not connect to miniredis: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	return l, mr
}

func TestNew_NoAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ""

	_, err := New(cfg)
	assert.ErrorContains(t, err, "no addresses configured")
}

func TestLayer_SetGet(t *testing.T) {
	l, mr := setupLayer(t)
	ctx := context.Background()

	require.NoError(t, l.Set(ctx, "transaction:1", []byte(`{"id":1}`), time.Minute))

	got, err := l.Get(ctx, "transaction:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(got))
	assert.Equal(t, "TestRedis", l.Name())

	stored, err := mr.Get("test:transaction:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, stored, "keys carry the configured prefix")
}

func TestLayer_Miss(t *testing.T) {
	l, _ := setupLayer(t)

	_, err := l.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)
}

func TestLayer_TTL(t *testing.T) {
	l, mr := setupLayer(t)
	ctx := context.Background()

	require.NoError(t, l.Set(ctx, "k", []byte("v"), 0))

	ttl, err := l.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)

	mr.FastForward(6 * time.Minute)

	_, err = l.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)

	_, err = l.TTL(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)
}

func TestLayer_Delete(t *testing.T) {
	l, _ := setupLayer(t)
	ctx := context.Background()

	require.NoError(t, l.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, l.Delete(ctx, "k"))
	require.NoError(t, l.Delete(ctx, "never-set"))

	_, err := l.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)
}

func TestLayer_RejectsInvalidInput(t *testing.T) {
	l, _ := setupLayer(t)
	ctx := context.Background()

	assert.ErrorIs(t, l.Set(ctx, "", []byte("v"), 0), cache.ErrInvalidKey)
	assert.ErrorIs(t, l.Set(ctx, "k", nil, 0), cache.ErrInvalidValue)
}

func TestLayer_ServerDown(t *testing.T) {
	l, mr := setupLayer(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := l.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, cache.IsNotFound(err))
}
