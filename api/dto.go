/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  ledger's domain types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Views that carry totals next to their lines

MONEY:
  Responses carry money as strings with two decimals ("12.50").
  Requests accept either a JSON number or a numeric string.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateTreeTypeRequest struct {
	Name        string          `json:"name"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Description string          `json:"description,omitempty"`
}

type CreateLocationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AddStockRequest struct {
	TreeTypeID      int64           `json:"tree_type_id"`
	LocationID      int64           `json:"location_id"`
	Quantity        int             `json:"quantity"`
	CostPerSeedling decimal.Decimal `json:"cost_per_seedling"`
}

type MoveStockRequest struct {
	ToLocationID int64 `json:"to_location_id"`
	Quantity     int   `json:"quantity"`
}

type RecordSaleRequest struct {
	TreeTypeID int64 `json:"tree_type_id"`
	Quantity   int   `json:"quantity"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type TreeTypeDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BasePrice   string `json:"base_price"`
}

type LocationDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type StockDTO struct {
	ID              int64     `json:"id"`
	TreeTypeID      int64     `json:"tree_type_id"`
	LocationID      int64     `json:"location_id"`
	Quantity        int       `json:"quantity"`
	CostPerSeedling string    `json:"cost_per_seedling"`
	AddedAt         time.Time `json:"added_at"`
}

type MoveStockResponse struct {
	From   StockDTO `json:"from"`
	To     StockDTO `json:"to"`
	Merged bool     `json:"merged"`
}

type InventoryLineDTO struct {
	StockID    int64     `json:"stock_id"`
	TreeType   string    `json:"tree_type"`
	Location   string    `json:"location"`
	Quantity   int       `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
	TotalValue string    `json:"total_value"`
	AddedAt    time.Time `json:"added_at"`
}

type InventoryResponse struct {
	Lines         []InventoryLineDTO `json:"lines"`
	TotalQuantity int                `json:"total_quantity"`
	TotalValue    string             `json:"total_value"`
}

type TransactionDTO struct {
	ID           int64     `json:"id"`
	TreeTypeID   int64     `json:"tree_type_id"`
	TreeType     string    `json:"tree_type,omitempty"`
	QuantitySold int       `json:"quantity_sold"`
	UnitPrice    string    `json:"unit_price"`
	TotalAmount  string    `json:"total_amount"`
	Date         time.Time `json:"date"`
}

type SalesHistoryResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	TotalSold    int              `json:"total_sold"`
	TotalRevenue string           `json:"total_revenue"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toTreeTypeDTO(tt ledger.TreeType) TreeTypeDTO {
	return TreeTypeDTO{
		ID:          int64(tt.ID),
		Name:        tt.Name,
		Description: tt.Description,
		BasePrice:   money(tt.BasePrice),
	}
}

func toLocationDTO(loc ledger.Location) LocationDTO {
	return LocationDTO{ID: int64(loc.ID), Name: loc.Name, Description: loc.Description}
}

func toStockDTO(s ledger.Stock) StockDTO {
	return StockDTO{
		ID:              int64(s.ID),
		TreeTypeID:      int64(s.TreeTypeID),
		LocationID:      int64(s.LocationID),
		Quantity:        s.Quantity,
		CostPerSeedling: money(s.CostPerUnit),
		AddedAt:         s.AddedAt,
	}
}

func toTransactionDTO(tx ledger.Transaction, typeName string) TransactionDTO {
	return TransactionDTO{
		ID:           int64(tx.ID),
		TreeTypeID:   int64(tx.TreeTypeID),
		TreeType:     typeName,
		QuantitySold: tx.QuantitySold,
		UnitPrice:    money(tx.UnitPrice),
		TotalAmount:  money(tx.TotalAmount),
		Date:         tx.SoldAt,
	}
}
