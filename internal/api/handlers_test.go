package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/metrics"
	"github.com/punchamoorthee/payrail/internal/notify"
	"github.com/punchamoorthee/payrail/internal/scheme"
	"github.com/punchamoorthee/payrail/internal/service"
	"github.com/punchamoorthee/payrail/internal/store"
)

type testServer struct {
	router   *mux.Router
	accounts *store.MemoryAccounts
	ledger   *store.MemoryLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, zap.NewNop(), scheme.DefaultStrategies()...)
}

func newTestServerWith(t *testing.T, logger *zap.Logger, strategies ...scheme.Strategy) *testServer {
	t.Helper()

	accounts := store.NewMemoryAccounts()
	ledger := store.NewMemoryLedger()
	resolver, err := scheme.NewResolver(strategies...)
	require.NoError(t, err)

	svc := service.NewTransferService(accounts, ledger, resolver,
		notify.New(logger, notify.NewLedgerWriter(ledger)), metrics.Nop{}, logger)
	h := NewHandler(svc, store.NewMemoryIdempotency(), logger)

	ts := &testServer{router: h.Router(), accounts: accounts, ledger: ledger}
	ts.seed(t, "ACC1", "100", domain.StatusLive, domain.FlagBacs|domain.FlagFasterPayments)
	ts.seed(t, "ACC2", "0", domain.StatusLive, 0)
	return ts
}

func (ts *testServer) seed(t *testing.T, number, balance string, status domain.AccountStatus, flags domain.SchemeFlags) {
	t.Helper()
	_, err := ts.accounts.Insert(context.Background(), &domain.Account{
		Number:         number,
		Balance:        decimal.RequireFromString(balance),
		Status:         status,
		AllowedSchemes: flags,
	})
	require.NoError(t, err)
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

const paymentBody = `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"25.50","payment_scheme":"Bacs"}`

func TestCreatePaymentSuccess(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/v1/payments", paymentBody, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res domain.TransferResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Contains(t, res.Detail, res.TransactionID.String())

	get := ts.do(http.MethodGet, "/api/v1/payments/"+res.TransactionID.String(), "", nil)
	require.Equal(t, http.StatusOK, get.Code)
	var rec domain.PaymentRecord
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &rec))
	assert.True(t, rec.Value.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, domain.SchemeBacs, rec.Scheme)
}

func TestCreatePaymentRejection(t *testing.T) {
	ts := newTestServer(t)

	body := `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"25","payment_scheme":"Chaps"}`
	rr := ts.do(http.MethodPost, "/api/v1/payments", body, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var res domain.TransferResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, service.DetailSchemeNotPermitted, res.Detail)
	assert.NotContains(t, rr.Body.String(), "transaction_id")
	assert.Zero(t, ts.ledger.Len())
}

func TestCreatePaymentBadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"debtor_account_number":`},
		{name: "unknown scheme", body: `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"1","payment_scheme":"Swift"}`},
		{name: "bad date", body: `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"1","payment_scheme":"Bacs","payment_date":"yesterday"}`},
		{name: "same account", body: `{"debtor_account_number":"ACC1","creditor_account_number":"ACC1","amount":"1","payment_scheme":"Bacs"}`},
		{name: "zero amount", body: `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"0","payment_scheme":"Bacs"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/api/v1/payments", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestCreatePaymentIdempotentReplay(t *testing.T) {
	ts := newTestServer(t)
	headers := map[string]string{"Idempotency-Key": "key-1"}

	first := ts.do(http.MethodPost, "/api/v1/payments", paymentBody, headers)
	require.Equal(t, http.StatusOK, first.Code)

	replay := ts.do(http.MethodPost, "/api/v1/payments", paymentBody, headers)
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.JSONEq(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, 1, ts.ledger.Len())

	acc, err := ts.accounts.FindOne(context.Background(), "ACC1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("74.50")))

	other := `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"1","payment_scheme":"Bacs"}`
	mismatch := ts.do(http.MethodPost, "/api/v1/payments", other, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
}

func TestGetPaymentErrors(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/payments/not-a-uuid", "", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		ts.do(http.MethodGet, "/api/v1/payments/6f1c2a7e-0d5b-4c1a-9a57-3f9d8b2e4c11", "", nil).Code)
}

func TestAccountEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/api/v1/accounts/ACC1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var acc domain.Account
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &acc))
	assert.Equal(t, "ACC1", acc.Number)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/accounts/NOPE", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/accounts/NOPE/payments", "", nil).Code)

	list := ts.do(http.MethodGet, "/api/v1/accounts/ACC2/payments", "", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.JSONEq(t, `[]`, list.Body.String())
}

func TestCreateAccountEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := `{"account_number":"ACC9","balance":"50","status":"Live","allowed_schemes":["Chaps","bacs"]}`
	rr := ts.do(http.MethodPost, "/api/v1/accounts", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "/api/v1/accounts/ACC9", rr.Header().Get("Location"))

	acc, err := ts.accounts.FindOne(context.Background(), "ACC9")
	require.NoError(t, err)
	assert.Equal(t, domain.FlagChaps|domain.FlagBacs, acc.AllowedSchemes)

	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/v1/accounts", body, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/v1/accounts",
		`{"account_number":"ACC10","balance":"1","allowed_schemes":["Sepa"]}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/v1/accounts",
		`{"account_number":"ACC11","balance":"-1"}`, nil).Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestCreatePaymentUnregisteredScheme(t *testing.T) {
	ts := newTestServerWith(t, zap.NewNop(), scheme.Bacs())

	body := `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"5","payment_scheme":"FasterPayments"}`
	rr := ts.do(http.MethodPost, "/api/v1/payments", body, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "not supported")
	assert.Zero(t, ts.ledger.Len())
}

func TestCreatePaymentRejectsSubScaleAmount(t *testing.T) {
	ts := newTestServer(t)

	body := `{"debtor_account_number":"ACC1","creditor_account_number":"ACC2","amount":"0.00005","payment_scheme":"Bacs"}`
	rr := ts.do(http.MethodPost, "/api/v1/payments", body, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, ts.ledger.Len())

	acc, err := ts.accounts.FindOne(context.Background(), "ACC2")
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/api/v1/accounts/ACC1", "/api/v1/accounts/NOPE"} {
		rr := ts.do(http.MethodGet, path, "", nil)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
		assert.Equal(t, "default-src 'self'", rr.Header().Get("Content-Security-Policy"), path)
		assert.Equal(t, "max-age=31556952", rr.Header().Get("Expect-CT"), path)
		assert.Equal(t, "1; mode=block", rr.Header().Get("X-Xss-Protection"), path)
	}
}

func TestPanicBecomesJSONServerError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	ts := newTestServerWith(t, zap.New(core), scheme.DefaultStrategies()...)
	ts.router.HandleFunc("/explode", func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}).Methods(http.MethodGet)

	rr := ts.do(http.MethodGet, "/explode", "", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	entries := logs.FilterMessage("handler panicked").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "nil map write", entries[0].ContextMap()["panic"])
}
