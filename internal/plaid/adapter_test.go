package plaid_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/aperture/internal/config"
	"github.com/dvloznov/aperture/internal/pipeline"
	"github.com/dvloznov/aperture/internal/plaid"
)

var _ pipeline.SourceAdapter = (*plaid.Adapter)(nil)

// fakePlaid serves canned responses per endpoint and records request bodies.
type fakePlaid struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	requests  map[string][]map[string]interface{}
}

type fakeResponse struct {
	status int
	body   string
}

func newFakePlaid() *fakePlaid {
	f := &fakePlaid{
		responses: make(map[string][]fakeResponse),
		requests:  make(map[string][]map[string]interface{}),
	}
	f.on("/sandbox/public_token/create", http.StatusOK, `{"public_token": "public-sandbox-1", "request_id": "r1"}`)
	f.on("/item/public_token/exchange", http.StatusOK, `{"access_token": "access-sandbox-1", "item_id": "item-1"}`)
	f.on("/accounts/get", http.StatusOK, `{"accounts": [
		{"account_id": "chk", "name": "Checking", "type": "depository", "balances": {"current": 1000.10, "iso_currency_code": "USD"}},
		{"account_id": "brk", "name": "Brokerage", "type": "investment", "balances": {"current": 5000, "iso_currency_code": "USD"}}
	]}`)
	return f
}

// on queues a response; the last queued response for a path repeats.
func (f *fakePlaid) on(path string, status int, body string) {
	f.responses[path] = append(f.responses[path], fakeResponse{status: status, body: body})
}

func (f *fakePlaid) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(data, &body)
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], body)

	queue := f.responses[r.URL.Path]
	if len(queue) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[r.URL.Path] = queue[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

const productNotReady = `{"error_type": "ITEM_ERROR", "error_code": "PRODUCT_NOT_READY", "error_message": "the requested product is not yet ready", "request_id": "r9"}`

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testConfig(baseURL string) config.Plaid {
	return config.Plaid{
		ClientID:          "client-id",
		Secret:            "secret",
		BaseURL:           baseURL,
		InstitutionID:     "ins_109508",
		Products:          []string{"transactions", "investments"},
		LookbackDays:      30,
		Timeout:           5 * time.Second,
		ProductRetries:    3,
		ProductRetryDelay: 5 * time.Second,
	}
}

var now = time.Date(2025, 11, 3, 10, 15, 0, 0, time.UTC)

func newAdapter(t *testing.T, fake *fakePlaid, sleeper *recordingSleeper) *plaid.Adapter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	return plaid.NewAdapter(plaid.NewClient(cfg, srv.Client()), cfg,
		plaid.WithSleeper(sleeper.sleep),
		plaid.WithClock(func() time.Time { return now }),
	)
}

func TestAdapter_Fetch(t *testing.T) {
	fake := newFakePlaid()
	fake.on("/transactions/get", http.StatusOK, `{"transactions": [
		{"transaction_id": "t1", "account_id": "chk", "amount": 42.10, "date": "2025-10-30", "merchant_name": "Grocer"}
	], "total_transactions": 1}`)
	fake.on("/investments/holdings/get", http.StatusOK, `{
		"holdings": [{"account_id": "brk", "security_id": "s1", "quantity": 10, "institution_value": 2500.5}],
		"securities": [{"security_id": "s1", "ticker_symbol": "VTI"}]
	}`)
	sleeper := &recordingSleeper{}

	raw, err := newAdapter(t, fake, sleeper).Fetch(context.Background())
	require.NoError(t, err)

	assert.Len(t, raw["accounts"], 2)
	assert.Len(t, raw["transactions"], 1)
	assert.Len(t, raw["investment_holdings"], 1)
	assert.Len(t, raw["securities"], 1)
	assert.Empty(t, sleeper.waits)

	metadata := raw["metadata"].(map[string]interface{})
	assert.Equal(t, "item-1", metadata["item_id"])
	assert.Equal(t, "2025-11-03T10:15:00Z", metadata["fetched_at"])

	// numbers stay decimal text
	tx := raw["transactions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, json.Number("42.10"), tx["amount"])

	sandbox := fake.requests["/sandbox/public_token/create"][0]
	assert.Equal(t, "client-id", sandbox["client_id"])
	assert.Equal(t, "secret", sandbox["secret"])
	assert.Equal(t, "ins_109508", sandbox["institution_id"])
	assert.Equal(t, []interface{}{"transactions", "investments"}, sandbox["initial_products"])

	txReq := fake.requests["/transactions/get"][0]
	assert.Equal(t, "access-sandbox-1", txReq["access_token"])
	assert.Equal(t, "2025-10-04", txReq["start_date"])
	assert.Equal(t, "2025-11-03", txReq["end_date"])
}

func TestAdapter_TransformsIntoRecord(t *testing.T) {
	fake := newFakePlaid()
	fake.on("/transactions/get", http.StatusOK, `{"transactions": [
		{"transaction_id": "t1", "account_id": "chk", "amount": 42.10, "date": "2025-10-30", "merchant_name": "Grocer"}
	], "total_transactions": 1}`)
	fake.on("/investments/holdings/get", http.StatusOK, `{
		"holdings": [{"account_id": "brk", "security_id": "s1", "quantity": 10, "institution_value": 2500.5}],
		"securities": [{"security_id": "s1", "ticker_symbol": "VTI"}]
	}`)

	raw, err := newAdapter(t, fake, &recordingSleeper{}).Fetch(context.Background())
	require.NoError(t, err)

	record, diag, err := pipeline.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, "1000.1", record.Accounts[0].Balance.String())
	assert.Equal(t, "VTI", record.Holdings[0].Symbol)
	assert.Equal(t, "42.1", record.Transactions[0].Amount.String())
	assert.Zero(t, diag.DroppedHoldings)
}

func TestAdapter_PaginatesTransactions(t *testing.T) {
	fake := newFakePlaid()
	fake.on("/transactions/get", http.StatusOK, `{"transactions": [{"transaction_id": "t1"}, {"transaction_id": "t2"}], "total_transactions": 3}`)
	fake.on("/transactions/get", http.StatusOK, `{"transactions": [{"transaction_id": "t3"}], "total_transactions": 3}`)
	fake.on("/investments/holdings/get", http.StatusOK, `{"holdings": [], "securities": []}`)

	raw, err := newAdapter(t, fake, &recordingSleeper{}).Fetch(context.Background())
	require.NoError(t, err)

	assert.Len(t, raw["transactions"], 3)
	requests := fake.requests["/transactions/get"]
	require.Len(t, requests, 2)
	assert.EqualValues(t, 2, requests[1]["options"].(map[string]interface{})["offset"])
}

func TestAdapter_RetriesProductNotReady(t *testing.T) {
	fake := newFakePlaid()
	fake.on("/transactions/get", http.StatusBadRequest, productNotReady)
	fake.on("/transactions/get", http.StatusOK, `{"transactions": [{"transaction_id": "t1"}], "total_transactions": 1}`)
	fake.on("/investments/holdings/get", http.StatusOK, `{"holdings": [], "securities": []}`)
	sleeper := &recordingSleeper{}

	raw, err := newAdapter(t, fake, sleeper).Fetch(context.Background())
	require.NoError(t, err)

	assert.Len(t, raw["transactions"], 1)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeper.waits)
}

func TestAdapter_DegradesWhenProductsNeverReady(t *testing.T) {
	fake := newFakePlaid()
	fake.on("/transactions/get", http.StatusBadRequest, productNotReady)
	fake.on("/investments/holdings/get", http.StatusBadRequest,
		`{"error_type": "INVALID_REQUEST", "error_code": "PRODUCTS_NOT_SUPPORTED", "error_message": "investments not supported"}`)
	sleeper := &recordingSleeper{}

	raw, err := newAdapter(t, fake, sleeper).Fetch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, raw["transactions"])
	assert.Empty(t, raw["investment_holdings"])
	assert.Len(t, fake.requests["/transactions/get"], 3)
	assert.Len(t, fake.requests["/investments/holdings/get"], 1)
	assert.Len(t, sleeper.waits, 2)
}

func TestAdapter_APIError(t *testing.T) {
	fake := newFakePlaid()
	fake.responses["/item/public_token/exchange"] = nil
	fake.on("/item/public_token/exchange", http.StatusBadRequest,
		`{"error_type": "INVALID_INPUT", "error_code": "INVALID_PUBLIC_TOKEN", "error_message": "provided public token is in an invalid format", "request_id": "r2"}`)

	_, err := newAdapter(t, fake, &recordingSleeper{}).Fetch(context.Background())

	var apiErr *plaid.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, "INVALID_PUBLIC_TOKEN", apiErr.ErrorCode)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "/item/public_token/exchange", apiErr.Endpoint)
	assert.False(t, plaid.IsProductNotReady(err))
}

func TestAdapter_NonJSONError(t *testing.T) {
	fake := newFakePlaid()
	fake.responses["/accounts/get"] = nil
	fake.on("/accounts/get", http.StatusBadGateway, "upstream unavailable")

	_, err := newAdapter(t, fake, &recordingSleeper{}).Fetch(context.Background())

	var apiErr *plaid.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "upstream unavailable")
}

func TestAdapter_SkipsInvestmentsWhenNotRequested(t *testing.T) {
	fake := newFakePlaid()
	fake.on("/transactions/get", http.StatusOK, `{"transactions": [], "total_transactions": 0}`)

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL)
	cfg.Products = []string{"transactions"}

	raw, err := plaid.NewAdapter(plaid.NewClient(cfg, srv.Client()), cfg).Fetch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, raw["investment_holdings"])
	assert.Empty(t, fake.requests["/investments/holdings/get"])
	assert.Equal(t, "plaid", plaid.NewAdapter(nil, cfg).Name())
}
