/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Registration and lookups
- Stock add/move and the inventory view
- Sales (FIFO) and history filters
- Error status mapping and rate limiting
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
	"github.com/jefferson57-lab/greengrow-manager/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, opts Options) *testServer {
	l := ledger.NewLedger(store.NewMemory())
	l.Clock = func() time.Time { return time.Date(2024, time.April, 2, 14, 0, 0, 0, time.UTC) }

	h := NewHandler(l)
	h.DateLocation = time.UTC
	router, err := NewRouter(h, opts)
	require.NoError(t, err)
	return &testServer{t: t, handler: router}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed registers Oak (12.50), Greenhouse A (1) and North Field (2).
func (s *testServer) seed() {
	s.t.Helper()
	require.Equal(s.t, http.StatusCreated, s.do("POST", "/api/tree-types", map[string]any{"name": "Oak", "base_price": 12.5}).Code)
	require.Equal(s.t, http.StatusCreated, s.do("POST", "/api/locations", map[string]any{"name": "Greenhouse A"}).Code)
	require.Equal(s.t, http.StatusCreated, s.do("POST", "/api/locations", map[string]any{"name": "North Field"}).Code)
}

func (s *testServer) addStock(typeID, locID int64, qty int) StockDTO {
	s.t.Helper()
	rec := s.do("POST", "/api/stock", AddStockRequest{TreeTypeID: typeID, LocationID: locID, Quantity: qty})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[StockDTO](s.t, rec)
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestTreeTypes_CreateListGet(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do("POST", "/api/tree-types", map[string]any{
		"name":        "Oak",
		"base_price":  "12.5",
		"description": "Quercus robur",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[TreeTypeDTO](t, rec)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "12.50", created.BasePrice)

	rec = s.do("GET", "/api/tree-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TreeTypeDTO](t, rec), 1)

	rec = s.do("GET", "/api/tree-types/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Quercus robur", decode[TreeTypeDTO](t, rec).Description)

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/tree-types/9", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/tree-types/abc", nil).Code)
}

func TestTreeTypes_Conflicts(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seed()

	rec := s.do("POST", "/api/tree-types", map[string]any{"name": "Oak", "base_price": 3})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do("POST", "/api/tree-types", map[string]any{"name": "Elm", "base_price": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "base price cannot be negative")

	rec = s.do("POST", "/api/locations", map[string]any{"name": "North Field"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLocations_ListEmpty(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do("GET", "/api/locations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

// =============================================================================
// STOCK
// =============================================================================

func TestMoveStock_MergesIntoDestination(t *testing.T) {
	// GIVEN: 10 oaks in the greenhouse, 3 in the field
	// WHEN: POST /api/stock/1/move with 4 to the field
	// THEN: 200 with source 6, destination 7, merged

	s := newTestServer(t, Options{})
	s.seed()
	src := s.addStock(1, 1, 10)
	dst := s.addStock(1, 2, 3)

	rec := s.do("POST", "/api/stock/1/move", MoveStockRequest{ToLocationID: 2, Quantity: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[MoveStockResponse](t, rec)
	assert.True(t, resp.Merged)
	assert.Equal(t, src.ID, resp.From.ID)
	assert.Equal(t, 6, resp.From.Quantity)
	assert.Equal(t, dst.ID, resp.To.ID)
	assert.Equal(t, 7, resp.To.Quantity)
}

func TestMoveStock_Errors(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seed()
	s.addStock(1, 1, 5)

	assert.Equal(t, http.StatusConflict, s.do("POST", "/api/stock/1/move", MoveStockRequest{ToLocationID: 2, Quantity: 6}).Code)
	assert.Equal(t, http.StatusNotFound, s.do("POST", "/api/stock/99/move", MoveStockRequest{ToLocationID: 2, Quantity: 1}).Code)
	assert.Equal(t, http.StatusNotFound, s.do("POST", "/api/stock/1/move", MoveStockRequest{ToLocationID: 99, Quantity: 1}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/stock/1/move", MoveStockRequest{ToLocationID: 2}).Code)

	rec := s.do("GET", "/api/stock/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[StockDTO](t, rec).Quantity)
}

func TestAddStock_Errors(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seed()

	rec := s.do("POST", "/api/stock", AddStockRequest{TreeTypeID: 7, LocationID: 1, Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tree type with ID 7 not found", decode[ErrorResponse](t, rec).Details)

	rec = s.do("POST", "/api/stock", AddStockRequest{TreeTypeID: 1, LocationID: 1, Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/api/stock", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInventory_FiltersAndTotals(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seed()
	s.addStock(1, 1, 10)
	s.addStock(1, 2, 4)

	rec := s.do("GET", "/api/inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decode[InventoryResponse](t, rec)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, "Oak", inv.Lines[0].TreeType)
	assert.Equal(t, "Greenhouse A", inv.Lines[0].Location)
	assert.Equal(t, "125.00", inv.Lines[0].TotalValue)
	assert.Equal(t, 14, inv.TotalQuantity)
	assert.Equal(t, "175.00", inv.TotalValue)

	rec = s.do("GET", "/api/inventory?location_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inv = decode[InventoryResponse](t, rec)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "North Field", inv.Lines[0].Location)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/inventory?type_id=x", nil).Code)
}

// =============================================================================
// SALES
// =============================================================================

func TestRecordSale_FIFOAndHistory(t *testing.T) {
	// GIVEN: Lot A (10) older than lot B (5)
	// WHEN: Selling 12
	// THEN: A is drained, B keeps 3, history shows one sale of 150.00

	s := newTestServer(t, Options{})
	s.seed()
	a := s.addStock(1, 1, 10)
	b := s.addStock(1, 2, 5)

	rec := s.do("POST", "/api/sales", RecordSaleRequest{TreeTypeID: 1, Quantity: 12})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode[TransactionDTO](t, rec)
	assert.Equal(t, "12.50", sale.UnitPrice)
	assert.Equal(t, "150.00", sale.TotalAmount)
	assert.Equal(t, "Oak", sale.TreeType)

	// Same clock instant for both lots: the lower ID is drained first
	assert.Equal(t, 0, decode[StockDTO](t, s.do("GET", "/api/stock/1", nil)).Quantity, "lot %d", a.ID)
	assert.Equal(t, 3, decode[StockDTO](t, s.do("GET", "/api/stock/2", nil)).Quantity, "lot %d", b.ID)

	rec = s.do("GET", "/api/sales?start_date=2024-04-02&end_date=2024-04-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[SalesHistoryResponse](t, rec)
	require.Len(t, hist.Transactions, 1)
	assert.Equal(t, "Oak", hist.Transactions[0].TreeType)
	assert.Equal(t, 12, hist.TotalSold)
	assert.Equal(t, "150.00", hist.TotalRevenue)

	rec = s.do("GET", "/api/sales?end_date=2024-04-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[SalesHistoryResponse](t, rec).Transactions)
}

func TestRecordSale_Insufficient(t *testing.T) {
	s := newTestServer(t, Options{})
	s.seed()
	s.addStock(1, 1, 3)

	rec := s.do("POST", "/api/sales", RecordSaleRequest{TreeTypeID: 1, Quantity: 4})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "shortfall 1")

	rec = s.do("GET", "/api/sales", nil)
	assert.Empty(t, decode[SalesHistoryResponse](t, rec).Transactions)
}

func TestSalesHistory_BadDates(t *testing.T) {
	s := newTestServer(t, Options{})

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/sales?start_date=04/02/2024", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/sales?end_date=2024-13-40", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/sales?start_date=2024-05-02&end_date=2024-05-01", nil).Code)
}

func TestStoreFailure_HidesDetails(t *testing.T) {
	// GIVEN: A store whose tree type listing fails with driver text
	// WHEN: Listing tree types
	// THEN: 500 with a generic message and no details

	l := ledger.NewLedger(failingStore{store.NewMemory()})
	router, err := NewRouter(NewHandler(l), Options{})
	require.NoError(t, err)
	s := &testServer{t: t, handler: router}

	rec := s.do("GET", "/api/tree-types", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to list tree types", resp.Error)
	assert.Empty(t, resp.Details)
	assert.NotContains(t, rec.Body.String(), "SQLITE_IOERR")
}

// failingStore breaks ListTreeTypes the way a driver would.
type failingStore struct {
	*store.Memory
}

func (failingStore) ListTreeTypes(context.Context) ([]ledger.TreeType, error) {
	return nil, ledger.NewStoreError("list tree types", errors.New("SQLITE_IOERR: disk I/O error in SELECT id FROM tree_types"))
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: "2-M"})

	assert.Equal(t, http.StatusOK, s.do("GET", "/api/tree-types", nil).Code)
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/tree-types", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do("GET", "/api/tree-types", nil).Code)

	// Health checks are not limited
	assert.Equal(t, http.StatusOK, s.do("GET", "/healthz", nil).Code)
}

func TestRouter_InvalidRateLimit(t *testing.T) {
	_, err := NewRouter(NewHandler(ledger.NewLedger(store.NewMemory())), Options{RateLimit: "lots"})
	assert.ErrorContains(t, err, "invalid rate limit")
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{AllowedOrigins: []string{"https://nursery.example"}})

	req := httptest.NewRequest("OPTIONS", "/api/sales", nil)
	req.Header.Set("Origin", "https://nursery.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://nursery.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
