/*
handlers.go - HTTP API handlers for the nursery ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to ledger.Ledger.

ENDPOINTS:
  Tree types:
    GET    /api/tree-types             List tree types
    POST   /api/tree-types             Register tree type
    GET    /api/tree-types/{id}        Get tree type

  Locations:
    GET    /api/locations              List locations
    POST   /api/locations              Register location
    GET    /api/locations/{id}         Get location

  Stock:
    POST   /api/stock                  Add a new lot
    GET    /api/stock/{id}             Get lot
    POST   /api/stock/{id}/move        Move quantity to a location
    GET    /api/inventory              Inventory (?type_id=&location_id=)

  Sales:
    POST   /api/sales                  Record sale (FIFO)
    GET    /api/sales                  History (?start_date=&end_date=)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, malformed body or query
  - 404: Tree type, location or lot not found
  - 409: Insufficient stock, duplicate name
  - 500: Store failures

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Ledger

	// DateLocation is the zone sales-history dates are read in. Nil = time.Local.
	DateLocation *time.Location
}

// NewHandler creates a new handler over l.
func NewHandler(l *ledger.Ledger) *Handler {
	return &Handler{Ledger: l}
}

// =============================================================================
// TREE TYPE ENDPOINTS
// =============================================================================

// ListTreeTypes returns all tree types.
// GET /api/tree-types
func (h *Handler) ListTreeTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Ledger.ListTreeTypes(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list tree types", err)
		return
	}

	dtos := make([]TreeTypeDTO, 0, len(types))
	for _, tt := range types {
		dtos = append(dtos, toTreeTypeDTO(tt))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTreeType registers a tree type.
// POST /api/tree-types
func (h *Handler) CreateTreeType(w http.ResponseWriter, r *http.Request) {
	var req CreateTreeTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tt, err := h.Ledger.RegisterTreeType(r.Context(), req.Name, req.BasePrice, req.Description)
	if err != nil {
		writeLedgerError(w, "Failed to create tree type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTreeTypeDTO(tt))
}

// GetTreeType returns one tree type.
// GET /api/tree-types/{id}
func (h *Handler) GetTreeType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	tt, err := h.Ledger.TreeType(r.Context(), ledger.TreeTypeID(id))
	if err != nil {
		writeLedgerError(w, "Failed to get tree type", err)
		return
	}
	writeJSON(w, http.StatusOK, toTreeTypeDTO(tt))
}

// =============================================================================
// LOCATION ENDPOINTS
// =============================================================================

// ListLocations returns all locations.
// GET /api/locations
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.Ledger.ListLocations(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list locations", err)
		return
	}

	dtos := make([]LocationDTO, 0, len(locations))
	for _, loc := range locations {
		dtos = append(dtos, toLocationDTO(loc))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLocation registers a location.
// POST /api/locations
func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loc, err := h.Ledger.RegisterLocation(r.Context(), req.Name, req.Description)
	if err != nil {
		writeLedgerError(w, "Failed to create location", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocationDTO(loc))
}

// GetLocation returns one location.
// GET /api/locations/{id}
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	loc, err := h.Ledger.Location(r.Context(), ledger.LocationID(id))
	if err != nil {
		writeLedgerError(w, "Failed to get location", err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTO(loc))
}

// =============================================================================
// STOCK ENDPOINTS
// =============================================================================

// AddStock records a new lot.
// POST /api/stock
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req AddStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lot, err := h.Ledger.AddStock(r.Context(), ledger.AddStockInput{
		TreeTypeID:  ledger.TreeTypeID(req.TreeTypeID),
		LocationID:  ledger.LocationID(req.LocationID),
		Quantity:    req.Quantity,
		CostPerUnit: req.CostPerSeedling,
	})
	if err != nil {
		writeLedgerError(w, "Failed to add stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStockDTO(lot))
}

// GetStock returns one lot.
// GET /api/stock/{id}
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	lot, err := h.Ledger.Stock(r.Context(), ledger.StockID(id))
	if err != nil {
		writeLedgerError(w, "Failed to get stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toStockDTO(lot))
}

// MoveStock transfers quantity from a lot to a location.
// POST /api/stock/{id}/move
func (h *Handler) MoveStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req MoveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Ledger.MoveStock(r.Context(), ledger.MoveStockInput{
		FromStockID:  ledger.StockID(id),
		ToLocationID: ledger.LocationID(req.ToLocationID),
		Quantity:     req.Quantity,
	})
	if err != nil {
		writeLedgerError(w, "Failed to move stock", err)
		return
	}
	writeJSON(w, http.StatusOK, MoveStockResponse{
		From:   toStockDTO(res.From),
		To:     toStockDTO(res.To),
		Merged: res.Merged,
	})
}

// Inventory returns lots with estimated values.
// GET /api/inventory?type_id=&location_id=
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	var f ledger.InventoryFilter

	q := r.URL.Query()
	if v := q.Get("type_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid type_id", err)
			return
		}
		typeID := ledger.TreeTypeID(id)
		f.TreeTypeID = &typeID
	}
	if v := q.Get("location_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid location_id", err)
			return
		}
		locID := ledger.LocationID(id)
		f.LocationID = &locID
	}

	view, err := h.Ledger.Inventory(r.Context(), f)
	if err != nil {
		writeLedgerError(w, "Failed to load inventory", err)
		return
	}

	resp := InventoryResponse{
		Lines:         make([]InventoryLineDTO, 0, len(view.Lines)),
		TotalQuantity: view.TotalQuantity,
		TotalValue:    money(view.TotalValue),
	}
	for _, line := range view.Lines {
		resp.Lines = append(resp.Lines, InventoryLineDTO{
			StockID:    int64(line.Stock.ID),
			TreeType:   line.TreeTypeName,
			Location:   line.LocationName,
			Quantity:   line.Stock.Quantity,
			UnitPrice:  money(line.UnitPrice),
			TotalValue: money(line.Value),
			AddedAt:    line.Stock.AddedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SALES ENDPOINTS
// =============================================================================

// RecordSale sells quantity of a tree type, oldest lots first.
// POST /api/sales
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sale, err := h.Ledger.RecordSale(r.Context(), ledger.RecordSaleInput{
		TreeTypeID: ledger.TreeTypeID(req.TreeTypeID),
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeLedgerError(w, "Failed to record sale", err)
		return
	}
	tt, err := h.Ledger.TreeType(r.Context(), sale.TreeTypeID)
	if err != nil {
		writeLedgerError(w, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(sale, tt.Name))
}

// SalesHistory lists sales, newest first.
// GET /api/sales?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD
func (h *Handler) SalesHistory(w http.ResponseWriter, r *http.Request) {
	var f ledger.SalesFilter

	q := r.URL.Query()
	if v := q.Get("start_date"); v != "" {
		d, err := ledger.ParseDate(v, h.DateLocation)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
		f.Start = &d
	}
	if v := q.Get("end_date"); v != "" {
		d, err := ledger.ParseDate(v, h.DateLocation)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
			return
		}
		f.End = &d
	}

	view, err := h.Ledger.SalesHistory(r.Context(), f)
	if err != nil {
		writeLedgerError(w, "Failed to load sales history", err)
		return
	}

	resp := SalesHistoryResponse{
		Transactions: make([]TransactionDTO, 0, len(view.Lines)),
		TotalSold:    view.TotalSold,
		TotalRevenue: money(view.TotalRevenue),
	}
	for _, line := range view.Lines {
		resp.Transactions = append(resp.Transactions, toTransactionDTO(line.Transaction, line.TreeTypeName))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError picks the status from the ledger error taxonomy.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientStock), errors.Is(err, ledger.ErrDuplicateName):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		// Driver text stays in the log.
		log.Printf("[api] %s: %v", message, err)
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}
