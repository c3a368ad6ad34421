/*
Package ledger provides the nursery inventory and sales engine.

PURPOSE:
  Records seedling tree types, storage locations, stock lots and sales.
  Stock only changes through three operations (add, move, sell), and
  every one of them runs inside a single store transaction so the ledger
  never shows a half-applied mutation.

KEY CONCEPTS IN THIS FILE (types.go):
  - TreeType: A seedling species with a base unit price
  - Location: A physical storage site
  - Stock: A lot of one tree type at one location, added at a given cost
  - Transaction: An immutable sale record with the price captured at sale time

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, never float64
  2. Type Safety: Distinct ID types prevent passing a location ID as a lot ID
  3. Append-only sales: Transactions are never updated or deleted
  4. Lots are never deleted: a zero-quantity lot is a valid terminal state

USAGE:
  l := ledger.NewLedger(store)
  lot, err := l.AddStock(ctx, ledger.AddStockInput{
      TreeTypeID: oak.ID,
      LocationID: greenhouse.ID,
      Quantity:   50,
  })

SEE ALSO:
  - ledger.go: Stock add/move/sale operations
  - query.go: Inventory and sales-history views
  - store.go: Persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TreeTypeID int64
type LocationID int64
type StockID int64
type TransactionID int64

// =============================================================================
// ENTITIES
// =============================================================================

// TreeType is a seedling species or category.
// The base price is immutable once registered.
type TreeType struct {
	ID          TreeTypeID
	Name        string
	Description string // empty = none
	BasePrice   decimal.Decimal
}

// Location is a physical storage site.
type Location struct {
	ID          LocationID
	Name        string
	Description string
}

// Stock is a lot: a quantity of one tree type present at one location.
//
// INVARIANT: Quantity >= 0. Lots reaching zero are kept.
type Stock struct {
	ID          StockID
	TreeTypeID  TreeTypeID
	LocationID  LocationID
	Quantity    int
	CostPerUnit decimal.Decimal
	AddedAt     time.Time
}

// Transaction is a completed sale.
// UnitPrice is a copy of the tree type's base price at the moment of sale.
type Transaction struct {
	ID           TransactionID
	TreeTypeID   TreeTypeID
	QuantitySold int
	UnitPrice    decimal.Decimal
	TotalAmount  decimal.Decimal
	SoldAt       time.Time
}

// =============================================================================
// OPERATION INPUTS / RESULTS
// =============================================================================

type AddStockInput struct {
	TreeTypeID  TreeTypeID
	LocationID  LocationID
	Quantity    int
	CostPerUnit decimal.Decimal // zero value = no cost recorded
}

type MoveStockInput struct {
	FromStockID  StockID
	ToLocationID LocationID
	Quantity     int
}

// MoveResult holds both lots touched by a transfer, as committed.
type MoveResult struct {
	From Stock
	To   Stock

	// Merged is true when the destination was an existing lot.
	Merged bool
}

type RecordSaleInput struct {
	TreeTypeID TreeTypeID
	Quantity   int
}
