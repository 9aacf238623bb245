package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/ledger/memory"
	memorycollector "cheque-ledger/pkg/metrics/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) message(t *testing.T) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(e.Message, &s))
	return s
}

func setupTestServer(t *testing.T, opts Options) (*Server, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(memory.NewStore(), ledger.DefaultOptions())
	_, err := l.Init(context.Background())
	require.NoError(t, err)

	if opts.MetricsHandler == nil {
		opts.MetricsHandler = http.NotFoundHandler()
	}
	return NewServer(l, DefaultServerConfig(), opts), l
}

func do(t *testing.T, s *Server, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func listTransactions(t *testing.T, s *Server) []ledger.Transaction {
	t.Helper()
	code, env := do(t, s, http.MethodGet, "/transactions/", "")
	require.Equal(t, http.StatusOK, code)
	var txs []ledger.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &txs))
	return txs
}

func accountBalance(t *testing.T, s *Server) string {
	t.Helper()
	code, env := do(t, s, http.MethodGet, "/account", "")
	require.Equal(t, http.StatusOK, code)
	var acc struct {
		Balance json.Number `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &acc))
	return acc.Balance.String()
}

const salary = `{"amount": 60, "type": "credit", "description": "salary", "date": "2024-10-12"}`

func TestServer_Account(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	for _, path := range []string{"/", "/account"} {
		code, env := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
		assert.Equal(t, "null", string(env.Message))

		var acc map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &acc))
		assert.Equal(t, "Cheque Account", acc["name"])
		assert.Equal(t, float64(10000), acc["balance"])
		assert.NotContains(t, acc, "opening_balance")
	}
}

func TestServer_AmountsAreJSONNumbers(t *testing.T) {
	for _, quoted := range []bool{false, true} {
		previous := decimal.MarshalJSONWithoutQuotes
		decimal.MarshalJSONWithoutQuotes = !quoted

		s, _ := setupTestServer(t, Options{})
		code, _ := do(t, s, http.MethodPost, "/transactions/",
			`{"amount": 0.25, "type": "credit", "description": "interest", "date": "2024-10-12"}`)
		require.Equal(t, http.StatusCreated, code)

		_, env := do(t, s, http.MethodGet, "/account", "")
		assert.Contains(t, string(env.Data), `"balance":10000.25`)

		_, env = do(t, s, http.MethodGet, "/transactions/1", "")
		assert.Contains(t, string(env.Data), `"amount":0.25`)

		_, env = do(t, s, http.MethodGet, "/transactions/", "")
		assert.Contains(t, string(env.Data), `"amount":0.25`)

		decimal.MarshalJSONWithoutQuotes = previous
	}
}

func TestServer_CreateTransaction(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	code, env := do(t, s, http.MethodPost, "/transactions/", salary)
	assert.Equal(t, http.StatusCreated, code)
	assert.True(t, env.Success)
	assert.Equal(t, MsgCreated, env.message(t))
	assert.Equal(t, "null", string(env.Data))

	assert.Equal(t, "10060", accountBalance(t, s))

	txs := listTransactions(t, s)
	require.Len(t, txs, 1)
	assert.Equal(t, "60", txs[0].Amount.String())
	assert.Equal(t, ledger.Credit, txs[0].Kind)
	assert.Equal(t, "salary", txs[0].Description)
}

func TestServer_CreateTransaction_WithoutTrailingSlash(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	code, _ := do(t, s, http.MethodPost, "/transactions", salary)
	assert.Equal(t, http.StatusCreated, code)
	assert.Len(t, listTransactions(t, s), 1)
}

func TestServer_CreateTransaction_ValidationErrors(t *testing.T) {
	collector := memorycollector.NewCollector()
	s, _ := setupTestServer(t, Options{Collector: collector})

	code, env := do(t, s, http.MethodPost, "/transactions/",
		`{"amount": 0, "type": "transfer", "description": ""}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
	assert.Equal(t, "null", string(env.Data))

	var errs []map[string]string
	require.NoError(t, json.Unmarshal(env.Message, &errs))
	assert.Equal(t, []map[string]string{
		{"date": "Must be provided"},
		{"amount": "Amount must be greater than 0"},
		{"type": "Must be one of credit or debit"},
		{"description": "Description must contain more than 1 character"},
	}, errs)

	assert.Equal(t, int64(1), collector.Snapshot().ValidationFailures["date"])
	assert.Empty(t, listTransactions(t, s))
}

func TestServer_CreateTransaction_MissingAmount(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	code, env := do(t, s, http.MethodPost, "/transactions/",
		`{"type": "credit", "description": "x", "date": "2024-10-12"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	var errs []map[string]string
	require.NoError(t, json.Unmarshal(env.Message, &errs))
	assert.Equal(t, []map[string]string{{"amount": "Must be provided"}}, errs)
}

func TestServer_CreateTransaction_InsufficientBalance(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	code, env := do(t, s, http.MethodPost, "/transactions/",
		`{"amount": 20000, "type": "debit", "description": "rent", "date": "2024-10-12"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MsgCreateFailed, env.message(t))
	assert.Equal(t, "10000", accountBalance(t, s))
}

func TestServer_CreateTransaction_InvalidBody(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	for _, body := range []string{`{"amount":`, `[1, 2]`, `null`} {
		code, env := do(t, s, http.MethodPost, "/transactions/", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.Equal(t, MsgInvalidBody, env.message(t))
	}
}

func TestServer_GetTransaction(t *testing.T) {
	s, _ := setupTestServer(t, Options{})
	do(t, s, http.MethodPost, "/transactions/", salary)
	id := listTransactions(t, s)[0].ID

	code, env := do(t, s, http.MethodGet, "/transactions/"+itoa(id), "")
	assert.Equal(t, http.StatusOK, code)
	var tr ledger.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &tr))
	assert.Equal(t, id, tr.ID)
	assert.Equal(t, "salary", tr.Description)

	code, env = do(t, s, http.MethodGet, "/transactions/999", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, MsgNotFound, env.message(t))
}

func TestServer_NonNumericIDIsNotFound(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	code, env := do(t, s, http.MethodGet, "/transactions/abc", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestServer_UpdateTransaction_LeavesBalance(t *testing.T) {
	s, _ := setupTestServer(t, Options{})
	do(t, s, http.MethodPost, "/transactions/", salary)
	id := listTransactions(t, s)[0].ID

	code, env := do(t, s, http.MethodPut, "/transactions/"+itoa(id),
		`{"amount": 500, "type": "debit", "description": "rent", "date": "2024-10-13"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgUpdated, env.message(t))

	txs := listTransactions(t, s)
	require.Len(t, txs, 1)
	assert.Equal(t, "500", txs[0].Amount.String())
	assert.Equal(t, ledger.Debit, txs[0].Kind)
	assert.Equal(t, "rent", txs[0].Description)

	assert.Equal(t, "10060", accountBalance(t, s))
}

func TestServer_UpdateTransaction_Failures(t *testing.T) {
	s, _ := setupTestServer(t, Options{})
	do(t, s, http.MethodPost, "/transactions/", salary)
	path := "/transactions/" + itoa(listTransactions(t, s)[0].ID)

	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{name: "missing field", body: `{"amount": 5, "type": "credit", "description": "x"}`, contains: `missing field "date"`},
		{name: "bad date", body: `{"amount": 5, "type": "credit", "description": "x", "date": "yesterday"}`, contains: "invalid transaction date"},
		{name: "malformed body", body: `{"amount": `, contains: "Unable to update transaction: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, s, http.MethodPut, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			msg := env.message(t)
			assert.True(t, strings.HasPrefix(msg, "Unable to update transaction: "), msg)
			assert.Contains(t, msg, tt.contains)
		})
	}
}

func TestServer_DeleteTransaction(t *testing.T) {
	s, _ := setupTestServer(t, Options{})
	do(t, s, http.MethodPost, "/transactions/", salary)
	id := listTransactions(t, s)[0].ID

	code, env := do(t, s, http.MethodDelete, "/transactions/"+itoa(id), "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgDeleted, env.message(t))

	code, _ = do(t, s, http.MethodGet, "/transactions/"+itoa(id), "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Empty(t, listTransactions(t, s))
	assert.Equal(t, "10060", accountBalance(t, s), "delete does not revert the balance")

	code, _ = do(t, s, http.MethodDelete, "/transactions/"+itoa(id), "")
	assert.Equal(t, http.StatusOK, code, "deleting a missing id is not an error")
}

func TestServer_ListOrderedByDateDescending(t *testing.T) {
	s, _ := setupTestServer(t, Options{})
	for _, date := range []string{"2024-10-10", "2024-10-12", "2024-10-11"} {
		code, _ := do(t, s, http.MethodPost, "/transactions/",
			`{"amount": 1, "type": "credit", "description": "d", "date": "`+date+`"}`)
		require.Equal(t, http.StatusCreated, code)
	}

	txs := listTransactions(t, s)
	require.Len(t, txs, 3)
	assert.Equal(t, 12, txs[0].Date.Day())
	assert.Equal(t, 11, txs[1].Date.Day())
	assert.Equal(t, 10, txs[2].Date.Day())
}

// failingLedger fails every call with err.
type failingLedger struct {
	err error
}

func (f failingLedger) Account(context.Context) (*ledger.Account, error) { return nil, f.err }
func (f failingLedger) Transactions(context.Context) ([]ledger.Transaction, error) {
	return nil, f.err
}
func (f failingLedger) Transaction(context.Context, int64) (*ledger.Transaction, error) {
	return nil, f.err
}
func (f failingLedger) CreateTransaction(context.Context, ledger.Input) (*ledger.Transaction, error) {
	return nil, f.err
}
func (f failingLedger) UpdateTransaction(context.Context, int64, ledger.Input) error {
	return &ledger.StorageError{Op: "update", Err: f.err}
}
func (f failingLedger) DeleteTransaction(context.Context, int64) error {
	return &ledger.StorageError{Op: "delete", Err: f.err}
}
func (f failingLedger) Ping(context.Context) error { return f.err }

func TestServer_StoreFailures(t *testing.T) {
	s := NewServer(failingLedger{err: errors.New("connection refused")}, DefaultServerConfig(),
		Options{MetricsHandler: http.NotFoundHandler()})

	tests := []struct {
		method, path, body string
		status             int
		message            string
	}{
		{http.MethodGet, "/account", "", http.StatusInternalServerError, MsgAccountFailed},
		{http.MethodGet, "/transactions/", "", http.StatusInternalServerError, MsgListFailed},
		{http.MethodPost, "/transactions/", salary, http.StatusInternalServerError, MsgCreateFailed},
		{http.MethodGet, "/transactions/1", "", http.StatusInternalServerError, MsgGetFailed},
		{http.MethodPut, "/transactions/1", salary, http.StatusBadRequest, "Unable to update transaction: connection refused"},
		{http.MethodDelete, "/transactions/1", "", http.StatusInternalServerError, MsgDeleteFailed},
		{http.MethodGet, "/health", "", http.StatusServiceUnavailable, MsgUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			code, env := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.message(t))
		})
	}
}

func TestServer_Health(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	code, env := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "healthy", data["status"])
}

func TestServer_RequestID(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/account", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _ := setupTestServer(t, Options{})

	code, env := do(t, s, http.MethodPatch, "/transactions/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, MsgMethodNotAllowed, env.message(t))
}

type panickingLedger struct {
	failingLedger
}

func (panickingLedger) Account(context.Context) (*ledger.Account, error) {
	panic("boom")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	s := NewServer(panickingLedger{}, DefaultServerConfig(), Options{MetricsHandler: http.NotFoundHandler()})

	code, env := do(t, s, http.MethodGet, "/account", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MsgInternal, env.message(t))
}

func TestServer_HTTPMetrics(t *testing.T) {
	m := NewHTTPMetrics("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	s, _ := setupTestServer(t, Options{HTTPMetrics: m})
	do(t, s, http.MethodGet, "/transactions/1", "")
	do(t, s, http.MethodGet, "/transactions/2", "")

	count := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/transactions/{id:[0-9]+}", "404"))
	assert.Equal(t, float64(2), count, "ids are collapsed into the route template")
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
