/*
Package ledgertest runs the same ledger behaviour checks against any
ledger.TxStore implementation.

USAGE (in a store package's _test.go):

	func TestConformance(t *testing.T) {
	    ledgertest.Run(t, func(t *testing.T) ledger.TxStore {
	        store, err := sqlite.New(":memory:")
	        require.NoError(t, err)
	        t.Cleanup(func() { store.Close() })
	        return store
	    })
	}
*/
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

// NewStoreFunc returns an empty, migrated store.
type NewStoreFunc func(t *testing.T) ledger.TxStore

// Clock is a manual clock for deterministic lot and sale timestamps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Fixture is a ledger with one tree type and two locations registered.
type Fixture struct {
	Store  ledger.TxStore
	Ledger *ledger.Ledger
	Clock  *Clock

	Oak        ledger.TreeType // base price 12.50
	Greenhouse ledger.Location
	Field      ledger.Location
}

// NewFixture builds a Fixture on a fresh store.
func NewFixture(t *testing.T, newStore NewStoreFunc) *Fixture {
	t.Helper()
	ctx := context.Background()

	store := newStore(t)
	clock := NewClock(time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	l := ledger.NewLedger(store)
	l.Clock = clock.Now

	oak, err := l.RegisterTreeType(ctx, "Oak", decimal.RequireFromString("12.50"), "Quercus robur")
	require.NoError(t, err)
	greenhouse, err := l.RegisterLocation(ctx, "Greenhouse A", "")
	require.NoError(t, err)
	field, err := l.RegisterLocation(ctx, "North Field", "open beds")
	require.NoError(t, err)

	return &Fixture{
		Store:      store,
		Ledger:     l,
		Clock:      clock,
		Oak:        oak,
		Greenhouse: greenhouse,
		Field:      field,
	}
}

// AddLot adds a lot and advances the clock by one hour.
func (f *Fixture) AddLot(t *testing.T, typeID ledger.TreeTypeID, locID ledger.LocationID, qty int) ledger.Stock {
	t.Helper()
	lot, err := f.Ledger.AddStock(context.Background(), ledger.AddStockInput{
		TreeTypeID:  typeID,
		LocationID:  locID,
		Quantity:    qty,
		CostPerUnit: decimal.RequireFromString("1.25"),
	})
	require.NoError(t, err)
	f.Clock.Advance(time.Hour)
	return lot
}

// Quantity reads a lot's current quantity.
func (f *Fixture) Quantity(t *testing.T, id ledger.StockID) int {
	t.Helper()
	lot, err := f.Store.GetStock(context.Background(), id)
	require.NoError(t, err)
	return lot.Quantity
}

// Run executes every check as a subtest, each on a fresh store.
func Run(t *testing.T, newStore NewStoreFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, newStore NewStoreFunc)
	}{
		{"Registration", testRegistration},
		{"AddStock", testAddStock},
		{"MoveStock_Merge", testMoveStockMerge},
		{"MoveStock_NewLot", testMoveStockNewLot},
		{"MoveStock_SameLocation", testMoveStockSameLocation},
		{"MoveStock_Rejected", testMoveStockRejected},
		{"RecordSale_FIFO", testRecordSaleFIFO},
		{"RecordSale_TieBreakByID", testRecordSaleTieBreak},
		{"RecordSale_Insufficient", testRecordSaleInsufficient},
		{"RecordSale_Rejected", testRecordSaleRejected},
		{"Inventory", testInventory},
		{"SalesHistory", testSalesHistory},
		{"WithTx_Rollback", testWithTxRollback},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore)
		})
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

func testRegistration(t *testing.T, newStore NewStoreFunc) {
	f := NewFixture(t, newStore)
	ctx := context.Background()

	got, err := f.Ledger.TreeType(ctx, f.Oak.ID)
	require.NoError(t, err)
	assert.Equal(t, "Oak", got.Name)
	assert.Equal(t, "Quercus robur", got.Description)
	assert.True(t, got.BasePrice.Equal(decimal.RequireFromString("12.50")))

	pine, err := f.Ledger.RegisterTreeType(ctx, "  Pine ", decimal.NewFromInt(8), "")
	require.NoError(t, err)
	assert.Equal(t, "Pine", pine.Name)

	// Duplicate names are rejected for both kinds
	_, err = f.Ledger.RegisterTreeType(ctx, "Oak", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, ledger.ErrDuplicateName)
	_, err = f.Ledger.RegisterLocation(ctx, "North Field", "")
	assert.ErrorIs(t, err, ledger.ErrDuplicateName)

	types, err := f.Ledger.ListTreeTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, f.Oak.ID, types[0].ID)
	assert.Equal(t, pine.ID, types[1].ID)

	locs, err := f.Ledger.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Greenhouse A", locs[0].Name)
	assert.Equal(t, "", locs[0].Description)
	assert.Equal(t, "open beds", locs[1].Description)

	_, err = f.Ledger.TreeType(ctx, 999)
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindTreeType, nf.Kind)
	assert.Equal(t, int64(999), nf.ID)

	_, err = f.Ledger.Location(ctx, 999)
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// ADD STOCK
// =============================================================================

func testAddStock(t *testing.T, newStore NewStoreFunc) {
	f := NewFixture(t, newStore)
	ctx := context.Background()

	// GIVEN: Two additions of the same type to the same location
	first := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)
	second := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 5)

	// THEN: Two independent lots exist
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 10, f.Quantity(t, first.ID))
	assert.Equal(t, 5, f.Quantity(t, second.ID))

	lot, err := f.Ledger.Stock(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, lot.CostPerUnit.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, lot.AddedAt.Equal(time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)),
		"added_at is the clock time, got %s", lot.AddedAt)

	// Missing references create nothing
	_, err = f.Ledger.AddStock(ctx, ledger.AddStockInput{TreeTypeID: 999, LocationID: f.Greenhouse.ID, Quantity: 1})
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindTreeType, nf.Kind)

	_, err = f.Ledger.AddStock(ctx, ledger.AddStockInput{TreeTypeID: f.Oak.ID, LocationID: 999, Quantity: 1})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindLocation, nf.Kind)

	for _, qty := range []int{0, -3} {
		_, err = f.Ledger.AddStock(ctx, ledger.AddStockInput{TreeTypeID: f.Oak.ID, LocationID: f.Greenhouse.ID, Quantity: qty})
		assert.ErrorIs(t, err, ledger.ErrInvalidInput)
	}

	lots, err := f.Store.FindStock(ctx, ledger.StockQuery{})
	require.NoError(t, err)
	assert.Len(t, lots, 2)
}

// =============================================================================
// MOVE STOCK
// =============================================================================

func testMoveStockMerge(t *testing.T, newStore NewStoreFunc) {
	// GIVEN: Lot of 10 oaks in the greenhouse, lot of 3 oaks in the field
	// WHEN: Moving 4 from the greenhouse lot to the field
	// THEN: Source has 6, field lot has 7, no new lot

	f := NewFixture(t, newStore)
	ctx := context.Background()

	src := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)
	dst := f.AddLot(t, f.Oak.ID, f.Field.ID, 3)

	res, err := f.Ledger.MoveStock(ctx, ledger.MoveStockInput{
		FromStockID:  src.ID,
		ToLocationID: f.Field.ID,
		Quantity:     4,
	})
	require.NoError(t, err)

	assert.True(t, res.Merged)
	assert.Equal(t, dst.ID, res.To.ID)
	assert.Equal(t, 6, res.From.Quantity)
	assert.Equal(t, 7, res.To.Quantity)
	assert.Equal(t, 6, f.Quantity(t, src.ID))
	assert.Equal(t, 7, f.Quantity(t, dst.ID))

	lots, err := f.Store.FindStock(ctx, ledger.StockQuery{})
	require.NoError(t, err)
	assert.Len(t, lots, 2)

	// Moving the whole lot leaves it at zero, still present
	_, err = f.Ledger.MoveStock(ctx, ledger.MoveStockInput{FromStockID: src.ID, ToLocationID: f.Field.ID, Quantity: 6})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Quantity(t, src.ID))
	assert.Equal(t, 13, f.Quantity(t, dst.ID))
}

func testMoveStockNewLot(t *testing.T, newStore NewStoreFunc) {
	f := NewFixture(t, newStore)
	ctx := context.Background()

	src := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)
	moveAt := f.Clock.Now()

	res, err := f.Ledger.MoveStock(ctx, ledger.MoveStockInput{
		FromStockID:  src.ID,
		ToLocationID: f.Field.ID,
		Quantity:     4,
	})
	require.NoError(t, err)

	assert.False(t, res.Merged)
	assert.NotEqual(t, src.ID, res.To.ID)

	created, err := f.Store.GetStock(ctx, res.To.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Oak.ID, created.TreeTypeID)
	assert.Equal(t, f.Field.ID, created.LocationID)
	assert.Equal(t, 4, created.Quantity)
	assert.True(t, created.CostPerUnit.Equal(src.CostPerUnit), "new lot carries the source cost")
	assert.True(t, created.AddedAt.Equal(moveAt))

	// Conservation across the type
	lots, err := f.Store.FindStock(ctx, ledger.StockQuery{TreeTypeID: &f.Oak.ID})
	require.NoError(t, err)
	total := 0
	for _, lot := range lots {
		total += lot.Quantity
	}
	assert.Equal(t, 10, total)
}

func testMoveStockSameLocation(t *testing.T, newStore NewStoreFunc) {
	// GIVEN: A single lot in the greenhouse
	// WHEN: Moving part of it to the greenhouse
	// THEN: The lot is split, never merged into itself

	f := NewFixture(t, newStore)
	ctx := context.Background()

	src := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)

	res, err := f.Ledger.MoveStock(ctx, ledger.MoveStockInput{
		FromStockID:  src.ID,
		ToLocationID: f.Greenhouse.ID,
		Quantity:     3,
	})
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.Equal(t, 7, f.Quantity(t, src.ID))
	assert.Equal(t, 3, f.Quantity(t, res.To.ID))

	// A second same-location move merges into the sibling lot
	res, err = f.Ledger.MoveStock(ctx, ledger.MoveStockInput{
		FromStockID:  src.ID,
		ToLocationID: f.Greenhouse.ID,
		Quantity:     2,
	})
	require.NoError(t, err)
	assert.True(t, res.Merged)
	assert.Equal(t, 5, f.Quantity(t, src.ID))
	assert.Equal(t, 5, f.Quantity(t, res.To.ID))
}

func testMoveStockRejected(t *testing.T, newStore NewStoreFunc) {
	f := NewFixture(t, newStore)
	ctx := context.Background()

	src := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 5)

	// More than the lot holds
	_, err := f.Ledger.MoveStock(ctx, ledger.MoveStockInput{FromStockID: src.ID, ToLocationID: f.Field.ID, Quantity: 6})
	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, src.ID, short.StockID)
	assert.Equal(t, 5, short.Available)
	assert.Equal(t, 6, short.Requested)

	// Missing source lot
	_, err = f.Ledger.MoveStock(ctx, ledger.MoveStockInput{FromStockID: 999, ToLocationID: f.Field.ID, Quantity: 1})
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindStock, nf.Kind)

	// Missing destination
	_, err = f.Ledger.MoveStock(ctx, ledger.MoveStockInput{FromStockID: src.ID, ToLocationID: 999, Quantity: 1})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindLocation, nf.Kind)

	// Non-positive quantity
	_, err = f.Ledger.MoveStock(ctx, ledger.MoveStockInput{FromStockID: src.ID, ToLocationID: f.Field.ID, Quantity: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	// Nothing changed
	assert.Equal(t, 5, f.Quantity(t, src.ID))
	lots, err := f.Store.FindStock(ctx, ledger.StockQuery{})
	require.NoError(t, err)
	assert.Len(t, lots, 1)
}

// =============================================================================
// RECORD SALE
// =============================================================================

func testRecordSaleFIFO(t *testing.T, newStore NewStoreFunc) {
	// GIVEN: Lot A (10, older) and lot B (5, newer) of oak
	// WHEN: Selling 12
	// THEN: A drains to 0, B drops to 3, one transaction at the base price

	f := NewFixture(t, newStore)
	ctx := context.Background()

	a := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)
	b := f.AddLot(t, f.Oak.ID, f.Field.ID, 5)
	saleAt := f.Clock.Now()

	sale, err := f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: f.Oak.ID, Quantity: 12})
	require.NoError(t, err)

	assert.Equal(t, 0, f.Quantity(t, a.ID))
	assert.Equal(t, 3, f.Quantity(t, b.ID))

	assert.NotZero(t, sale.ID)
	assert.Equal(t, 12, sale.QuantitySold)
	assert.True(t, sale.UnitPrice.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("150")))

	txs, err := f.Store.ListTransactions(ctx, ledger.TransactionQuery{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, sale.ID, txs[0].ID)
	assert.True(t, txs[0].TotalAmount.Equal(sale.TotalAmount))
	assert.True(t, txs[0].SoldAt.Equal(saleAt))

	// Drained lot is skipped by the next sale
	_, err = f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: f.Oak.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Quantity(t, a.ID))
	assert.Equal(t, 0, f.Quantity(t, b.ID))
}

func testRecordSaleTieBreak(t *testing.T, newStore NewStoreFunc) {
	// GIVEN: Two lots added at the same instant
	// WHEN: Selling less than the first lot holds
	// THEN: Only the lower-ID lot is touched

	f := NewFixture(t, newStore)
	ctx := context.Background()

	in := ledger.AddStockInput{TreeTypeID: f.Oak.ID, LocationID: f.Greenhouse.ID, Quantity: 4}
	first, err := f.Ledger.AddStock(ctx, in)
	require.NoError(t, err)
	second, err := f.Ledger.AddStock(ctx, in)
	require.NoError(t, err)
	require.True(t, first.AddedAt.Equal(second.AddedAt))

	_, err = f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: f.Oak.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Quantity(t, first.ID))
	assert.Equal(t, 4, f.Quantity(t, second.ID))
}

func testRecordSaleInsufficient(t *testing.T, newStore NewStoreFunc) {
	// GIVEN: 15 oaks across two lots
	// WHEN: Selling 16
	// THEN: Rejected with the shortfall; no lot or transaction changes

	f := NewFixture(t, newStore)
	ctx := context.Background()

	a := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)
	b := f.AddLot(t, f.Oak.ID, f.Field.ID, 5)

	_, err := f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: f.Oak.ID, Quantity: 16})
	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, f.Oak.ID, short.TreeTypeID)
	assert.Equal(t, 15, short.Available)
	assert.Equal(t, 16, short.Requested)
	assert.Equal(t, 1, short.Shortfall())

	assert.Equal(t, 10, f.Quantity(t, a.ID))
	assert.Equal(t, 5, f.Quantity(t, b.ID))
	txs, err := f.Store.ListTransactions(ctx, ledger.TransactionQuery{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	// A type with no lots at all
	pine, err := f.Ledger.RegisterTreeType(ctx, "Pine", decimal.NewFromInt(8), "")
	require.NoError(t, err)
	_, err = f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: pine.ID, Quantity: 1})
	require.ErrorAs(t, err, &short)
	assert.Equal(t, pine.ID, short.TreeTypeID)
	assert.Equal(t, 0, short.Available)
}

func testRecordSaleRejected(t *testing.T, newStore NewStoreFunc) {
	f := NewFixture(t, newStore)
	ctx := context.Background()
	f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)

	_, err := f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: 999, Quantity: 1})
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.KindTreeType, nf.Kind)

	_, err = f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: f.Oak.ID, Quantity: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	txs, err := f.Store.ListTransactions(ctx, ledger.TransactionQuery{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// VIEWS
// =============================================================================

func testInventory(t *testing.T, newStore NewStoreFunc) {
	f := NewFixture(t, newStore)
	ctx := context.Background()

	pine, err := f.Ledger.RegisterTreeType(ctx, "Pine", decimal.RequireFromString("8.00"), "")
	require.NoError(t, err)

	a := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)
	f.AddLot(t, pine.ID, f.Field.ID, 4)
	c := f.AddLot(t, f.Oak.ID, f.Field.ID, 2)
	_, err = f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: f.Oak.ID, Quantity: 10})
	require.NoError(t, err)

	view, err := f.Ledger.Inventory(ctx, ledger.InventoryFilter{})
	require.NoError(t, err)
	require.Len(t, view.Lines, 3, "zero-quantity lots are listed")
	assert.Equal(t, a.ID, view.Lines[0].Stock.ID)
	assert.Equal(t, 0, view.Lines[0].Stock.Quantity)
	assert.Equal(t, "Oak", view.Lines[0].TreeTypeName)
	assert.Equal(t, "Greenhouse A", view.Lines[0].LocationName)
	assert.Equal(t, "Pine", view.Lines[1].TreeTypeName)
	assert.True(t, view.Lines[1].Value.Equal(decimal.NewFromInt(32)))
	assert.Equal(t, 6, view.TotalQuantity)
	assert.True(t, view.TotalValue.Equal(decimal.NewFromInt(57)), "4x8 + 2x12.50, got %s", view.TotalValue)

	view, err = f.Ledger.Inventory(ctx, ledger.InventoryFilter{TreeTypeID: &f.Oak.ID, LocationID: &f.Field.ID})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, c.ID, view.Lines[0].Stock.ID)

	view, err = f.Ledger.Inventory(ctx, ledger.InventoryFilter{LocationID: &f.Field.ID})
	require.NoError(t, err)
	assert.Len(t, view.Lines, 2)
}

func testSalesHistory(t *testing.T, newStore NewStoreFunc) {
	f := NewFixture(t, newStore)
	ctx := context.Background()

	f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 100)

	sell := func(at time.Time, qty int) ledger.Transaction {
		f.Clock.Set(at)
		tx, err := f.Ledger.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: f.Oak.ID, Quantity: qty})
		require.NoError(t, err)
		return tx
	}
	early := sell(time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC), 1)
	late := sell(time.Date(2024, time.March, 10, 23, 30, 0, 0, time.UTC), 2)
	next := sell(time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), 3)

	day := func(s string) *time.Time {
		d, err := ledger.ParseDate(s, time.UTC)
		require.NoError(t, err)
		return &d
	}

	// Unfiltered, newest first
	view, err := f.Ledger.SalesHistory(ctx, ledger.SalesFilter{})
	require.NoError(t, err)
	require.Len(t, view.Lines, 3)
	assert.Equal(t, next.ID, view.Lines[0].Transaction.ID)
	assert.Equal(t, early.ID, view.Lines[2].Transaction.ID)
	assert.Equal(t, "Oak", view.Lines[0].TreeTypeName)
	assert.Equal(t, 6, view.TotalSold)
	assert.True(t, view.TotalRevenue.Equal(decimal.NewFromInt(75)))

	// End date includes the whole day
	view, err = f.Ledger.SalesHistory(ctx, ledger.SalesFilter{End: day("2024-03-10")})
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, late.ID, view.Lines[0].Transaction.ID)

	// Start date is inclusive from midnight
	view, err = f.Ledger.SalesHistory(ctx, ledger.SalesFilter{Start: day("2024-03-11")})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, next.ID, view.Lines[0].Transaction.ID)

	// Single day
	view, err = f.Ledger.SalesHistory(ctx, ledger.SalesFilter{Start: day("2024-03-10"), End: day("2024-03-10")})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.TotalSold)

	// Empty range
	view, err = f.Ledger.SalesHistory(ctx, ledger.SalesFilter{Start: day("2025-01-01")})
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.True(t, view.TotalRevenue.IsZero())

	_, err = f.Ledger.SalesHistory(ctx, ledger.SalesFilter{Start: day("2024-03-11"), End: day("2024-03-10")})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

var errInjected = errors.New("injected failure")

func testWithTxRollback(t *testing.T, newStore NewStoreFunc) {
	// GIVEN: A lot of 10
	// WHEN: A unit of work writes and then fails
	// THEN: None of its writes are visible

	f := NewFixture(t, newStore)
	ctx := context.Background()
	lot := f.AddLot(t, f.Oak.ID, f.Greenhouse.ID, 10)

	err := f.Store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.UpdateStockQuantity(ctx, lot.ID, 2); err != nil {
			return err
		}
		sale := ledger.Transaction{
			TreeTypeID:   f.Oak.ID,
			QuantitySold: 8,
			UnitPrice:    f.Oak.BasePrice,
			TotalAmount:  f.Oak.BasePrice.Mul(decimal.NewFromInt(8)),
			SoldAt:       f.Clock.Now(),
		}
		if err := s.CreateTransaction(ctx, &sale); err != nil {
			return err
		}
		return errInjected
	})
	require.ErrorIs(t, err, errInjected)

	assert.Equal(t, 10, f.Quantity(t, lot.ID))
	txs, err := f.Store.ListTransactions(ctx, ledger.TransactionQuery{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	// A panic inside the unit of work also rolls back
	assert.Panics(t, func() {
		_ = f.Store.WithTx(ctx, func(s ledger.Store) error {
			if err := s.UpdateStockQuantity(ctx, lot.ID, 1); err != nil {
				return err
			}
			panic("boom")
		})
	})
	assert.Equal(t, 10, f.Quantity(t, lot.ID))

	// And a successful one commits
	err = f.Store.WithTx(ctx, func(s ledger.Store) error {
		return s.UpdateStockQuantity(ctx, lot.ID, 9)
	})
	require.NoError(t, err)
	assert.Equal(t, 9, f.Quantity(t, lot.ID))
}
