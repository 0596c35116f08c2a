package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invofox/internal/clients"
	"invofox/internal/repository/memory"
	"invofox/internal/service"
)

type testAPI struct {
	router   http.Handler
	counters *service.CounterService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := clients.NewRedisClient(clients.RedisConfig{Addr: mr.Addr(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	store := memory.New()
	opts := service.Options{
		Retry:     service.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		TxTimeout: 5 * time.Second,
		Location:  time.UTC,
		Now:       func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) },
		Logger:    zerolog.Nop(),
	}
	counters := service.NewCounterService(store, opts)
	ledger := &service.Ledger{
		Settlement:  service.NewSettlementService(store, counters, nil, opts),
		Counters:    counters,
		Idempotency: service.NewIdempotency(rc, time.Hour, zerolog.Nop()),
		Log:         zerolog.Nop(),
	}
	return &testAPI{
		router:   NewHandler(ledger, zerolog.Nop()).InitRouter(),
		counters: counters,
	}
}

type envelope struct {
	ErrorCode string          `json:"error_code"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (a *testAPI) issue(t *testing.T, customerID, total string) service.IssuedDocument {
	t.Helper()
	rec, env := a.do(t, http.MethodPost, "/invoices", map[string]interface{}{
		"customer_id":   customerID,
		"customer_name": "Acme",
		"description":   "consulting",
		"total_amount":  total,
		"currency":      "ILS",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var doc service.IssuedDocument
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	return doc
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec, env := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
}

func TestAllocateAndPeekCounter(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/counters/allocate", map[string]interface{}{
		"customer_id":   "c1",
		"document_type": "receipt",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"document_number":"R-2026-1"}`, string(env.Data))

	rec, env = api.do(t, http.MethodGet, "/counters/c1/2026/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"value":1}`, string(env.Data))

	rec, env = api.do(t, http.MethodPost, "/counters/allocate", map[string]interface{}{
		"customer_id":   "c1",
		"document_type": "credit_note",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_input", env.ErrorCode)
}

func TestSettleSingle_HTTP(t *testing.T) {
	api := newTestAPI(t)
	doc := api.issue(t, "c1", "1000")
	assert.Equal(t, "I-2026-1", doc.DocumentNumber)

	rec, env := api.do(t, http.MethodPost, "/settlements/single", map[string]interface{}{
		"invoice_number": "i-2026-1",
		"customer_id":    "c1",
		"amount":         400,
		"payment_method": "Cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var res service.SingleSettlementResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "R-2026-1", res.ReceiptNumber)
	assert.Equal(t, "600", res.Invoice.NewRemainingBalance.String())

	rec, env = api.do(t, http.MethodGet, "/invoices/I-2026-1?customer_id=c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "600.00", view["remaining_balance"])
	assert.Equal(t, "partial", view["payment_status"])
	assert.Equal(t, "cash", view["payment_method"])

	rec, env = api.do(t, http.MethodPost, "/settlements/single", map[string]interface{}{
		"invoice_number": "I-2026-1",
		"amount":         "600.01",
		"payment_method": "cash",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "amount_exceeds_balance", env.ErrorCode)
	assert.JSONEq(t, `{"document_numbers":["I-2026-1"]}`, string(env.Data))
}

func TestSettleSingle_Errors(t *testing.T) {
	api := newTestAPI(t)
	api.issue(t, "c1", "100")

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{
			name:   "unknown invoice",
			body:   map[string]interface{}{"invoice_number": "I-2026-9", "amount": 1, "payment_method": "cash"},
			status: http.StatusNotFound,
			code:   "not_found",
		},
		{
			name:   "other customer",
			body:   map[string]interface{}{"invoice_number": "I-2026-1", "customer_id": "c2", "amount": 1, "payment_method": "cash"},
			status: http.StatusForbidden,
			code:   "ownership_mismatch",
		},
		{
			name:   "zero amount",
			body:   map[string]interface{}{"invoice_number": "I-2026-1", "amount": 0, "payment_method": "cash"},
			status: http.StatusUnprocessableEntity,
			code:   "invalid_amount",
		},
		{
			name:   "amount not numeric",
			body:   map[string]interface{}{"invoice_number": "I-2026-1", "amount": "ten", "payment_method": "cash"},
			status: http.StatusUnprocessableEntity,
			code:   "invalid_input",
		},
		{
			name:   "missing number",
			body:   map[string]interface{}{"amount": 1, "payment_method": "cash"},
			status: http.StatusUnprocessableEntity,
			code:   "invalid_input",
		},
		{
			name:   "bad date",
			body:   map[string]interface{}{"invoice_number": "I-2026-1", "amount": 1, "payment_method": "cash", "date": "15/03/2026"},
			status: http.StatusUnprocessableEntity,
			code:   "invalid_input",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := api.do(t, http.MethodPost, "/settlements/single", tt.body)
			assert.Equal(t, tt.status, rec.Code, env.Message)
			assert.Equal(t, tt.code, env.ErrorCode)
			assert.Equal(t, "error", env.Status)
		})
	}
}

func TestSettleMulti_HTTP(t *testing.T) {
	api := newTestAPI(t)
	api.issue(t, "c1", "3000")
	api.issue(t, "c1", "2500")

	rec, env := api.do(t, http.MethodPost, "/settlements/multi", map[string]interface{}{
		"invoice_numbers": []string{"I-2026-1", "I-2026-2"},
		"customer_id":     "c1",
		"payment_method":  "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var res service.MultiSettlementResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "5500", res.TotalAmount.String())
	assert.Len(t, res.Invoices, 2)

	rec, env = api.do(t, http.MethodPost, "/settlements/multi", map[string]interface{}{
		"invoice_numbers": []string{"I-2026-1", "I-2026-2"},
		"payment_method":  "cash",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "already_settled", env.ErrorCode)

	rec, env = api.do(t, http.MethodPost, "/settlements/multi", map[string]interface{}{
		"invoice_numbers": []string{},
		"payment_method":  "cash",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "too_few", env.ErrorCode)
}

func TestIdempotencyKey_HTTP(t *testing.T) {
	api := newTestAPI(t)
	api.issue(t, "c1", "100")
	body := map[string]interface{}{"invoice_number": "I-2026-1", "amount": "10", "payment_method": "cash"}

	rec, first := api.do(t, http.MethodPost, "/settlements/single", body, IdempotencyHeader, "pay-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, second := api.do(t, http.MethodPost, "/settlements/single", body, IdempotencyHeader, "pay-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, string(first.Data), string(second.Data))

	peek, err := api.counters.Peek(context.Background(), "c1", 2026, "receipt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), peek)

	body["amount"] = "11"
	rec, env := api.do(t, http.MethodPost, "/settlements/single", body, IdempotencyHeader, "pay-1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "idempotency_key_reused", env.ErrorCode)
}

func TestListInvoicesAndInvoiceReceipt(t *testing.T) {
	api := newTestAPI(t)
	api.issue(t, "c1", "100")
	api.issue(t, "c1", "200")

	rec, env := api.do(t, http.MethodPost, "/invoice-receipts", map[string]interface{}{
		"customer_id":    "c1",
		"customer_name":  "Acme",
		"description":    "walk-in sale",
		"amount":         "49.90",
		"currency":       "ILS",
		"payment_method": "card",
		"date":           "2026-03-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var doc service.IssuedDocument
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, "IR-2026-1", doc.DocumentNumber)

	_, _ = api.do(t, http.MethodPost, "/settlements/single", map[string]interface{}{
		"invoice_number": "I-2026-1", "amount": "100", "payment_method": "cash",
	})

	rec, env = api.do(t, http.MethodGet, "/customers/c1/invoices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)

	rec, env = api.do(t, http.MethodGet, "/customers/c1/invoices?status=paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paid []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &paid))
	require.Len(t, paid, 1)
	assert.Equal(t, "I-2026-1", paid[0]["document_number"])

	rec, env = api.do(t, http.MethodGet, "/customers/c1/invoices?status=overdue", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_input", env.ErrorCode)
}

func TestGetInvoice_NotFoundAndDocumentsDisabled(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodGet, "/invoices/I-2026-5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.ErrorCode)

	rec, env = api.do(t, http.MethodGet, "/documents/customer_c1_I-2026-1/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.ErrorCode)
}

func TestAuthMiddlewareLeavesHealthPublic(t *testing.T) {
	api := newTestAPI(t)
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ErrorUnauthorized(w, "Unauthorized")
		})
	}
	router := NewHandler(nil, zerolog.Nop()).InitRouterWithAuth(deny)
	api.router = router

	rec, _ := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := api.do(t, http.MethodGet, "/invoices/I-2026-1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", env.ErrorCode)
}
