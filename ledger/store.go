/*
store.go - Persistence interface for the nursery ledger

PURPOSE:
  Defines the narrow contract between the ledger engine and storage.
  Four tables: tree types, locations, stock lots, sale transactions.

KEY INTERFACES:
  Store:   Create/read/update against the four tables
  TxStore: Store plus an all-or-nothing unit of work

CONTRACT:
  - Get* returns *NotFoundError when the row is missing.
  - Create* assigns the ID and writes it back into the argument.
  - CreateStock returns *NotFoundError for a missing tree type or location.
  - Unique-name violations return ErrDuplicateName.
  - Anything else is wrapped in *StoreError.
  - Transactions are append-only: there is no update or delete for them.

UNIT OF WORK:
  WithTx hands fn a Store bound to one database transaction. Returning
  nil commits; returning an error (or panicking) rolls back. The Store
  passed to fn must not be used after fn returns.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: File-backed SQLite (default)
  - store/gormstore/gormstore.go: PostgreSQL through GORM, with row locks
*/
package ledger

import (
	"context"
	"time"
)

// StockOrder selects how FindStock sorts lots.
type StockOrder int

const (
	// OrderByID sorts by lot ID ascending (stable enumeration).
	OrderByID StockOrder = iota

	// OrderFIFO sorts by AddedAt ascending, then lot ID ascending.
	OrderFIFO
)

// StockQuery filters lots. Nil fields are not filtered.
type StockQuery struct {
	TreeTypeID   *TreeTypeID
	LocationID   *LocationID
	OnlyPositive bool // quantity > 0
	Order        StockOrder
}

// TransactionQuery filters sales on the half-open interval [From, Until).
// Results are ordered newest first.
type TransactionQuery struct {
	From  *time.Time
	Until *time.Time
}

// Store handles persistence of the ledger tables.
type Store interface {
	CreateTreeType(ctx context.Context, tt *TreeType) error
	GetTreeType(ctx context.Context, id TreeTypeID) (TreeType, error)
	ListTreeTypes(ctx context.Context) ([]TreeType, error)

	CreateLocation(ctx context.Context, loc *Location) error
	GetLocation(ctx context.Context, id LocationID) (Location, error)
	ListLocations(ctx context.Context) ([]Location, error)

	CreateStock(ctx context.Context, s *Stock) error
	GetStock(ctx context.Context, id StockID) (Stock, error)
	UpdateStockQuantity(ctx context.Context, id StockID, quantity int) error
	FindStock(ctx context.Context, q StockQuery) ([]Stock, error)

	// CreateTransaction appends a sale. This is the ONLY write for sales.
	CreateTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, q TransactionQuery) ([]Transaction, error)
}

// TxStore wraps Store with transaction support.
// Every ledger mutation goes through WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
