package gormstore_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
	"github.com/jefferson57-lab/greengrow-manager/ledger/ledgertest"
	"github.com/jefferson57-lab/greengrow-manager/store/gormstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestStore opens a private in-memory SQLite database through GORM.
func newTestStore(t *testing.T) *gormstore.Store {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := gormstore.New(sqlite.Open("file:"+name+"?mode=memory&cache=shared&_foreign_keys=on"), gormstore.Config{})
	require.NoError(t, err)

	sqlDB, err := store.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { store.Close() })
	return store
}

func TestGorm_Conformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.TxStore {
		return newTestStore(t)
	})
}

// =============================================================================
// STORE-SPECIFIC TESTS
// =============================================================================

func TestGorm_SchemaCreated(t *testing.T) {
	store := newTestStore(t)
	migrator := store.DB().Migrator()

	for _, table := range []string{"tree_types", "locations", "stock", "transactions"} {
		assert.True(t, migrator.HasTable(table), "missing table %s", table)
	}
	assert.True(t, migrator.HasIndex(&gormstore.StockRecord{}, "idx_stock_type_added"))
}

func TestGorm_RecordsUseLedgerColumnNames(t *testing.T) {
	// GIVEN: A sale recorded through the ledger
	// WHEN: Reading the row back as a raw record
	// THEN: The price captured at sale time is stored in its own column

	store := newTestStore(t)
	ctx := context.Background()
	l := ledger.NewLedger(store)
	l.Clock = func() time.Time { return time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC) }

	oak, err := l.RegisterTreeType(ctx, "Oak", decimal.RequireFromString("4.75"), "")
	require.NoError(t, err)
	loc, err := l.RegisterLocation(ctx, "Shade House", "")
	require.NoError(t, err)
	_, err = l.AddStock(ctx, ledger.AddStockInput{TreeTypeID: oak.ID, LocationID: loc.ID, Quantity: 10})
	require.NoError(t, err)
	sale, err := l.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: oak.ID, Quantity: 4})
	require.NoError(t, err)

	var rec gormstore.TransactionRecord
	require.NoError(t, store.DB().First(&rec, int64(sale.ID)).Error)
	assert.True(t, rec.UnitSalePriceAtTimeOfSale.Equal(decimal.RequireFromString("4.75")))
	assert.True(t, rec.TotalAmount.Equal(decimal.NewFromInt(19)))
	assert.Equal(t, 4, rec.QuantitySold)
}

func TestGorm_UpdateStockQuantity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tt := ledger.TreeType{Name: "Birch", BasePrice: decimal.NewFromInt(3)}
	require.NoError(t, store.CreateTreeType(ctx, &tt))
	loc := ledger.Location{Name: "Bed 4", Description: "south wall"}
	require.NoError(t, store.CreateLocation(ctx, &loc))
	lot := ledger.Stock{TreeTypeID: tt.ID, LocationID: loc.ID, Quantity: 5, AddedAt: time.Now()}
	require.NoError(t, store.CreateStock(ctx, &lot))

	require.NoError(t, store.UpdateStockQuantity(ctx, lot.ID, 0))
	got, err := store.GetStock(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)

	assert.ErrorIs(t, store.UpdateStockQuantity(ctx, lot.ID, -1), ledger.ErrStoreFailure)
	assert.True(t, ledger.IsNotFound(store.UpdateStockQuantity(ctx, 999, 1)))

	gotLoc, err := store.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, "south wall", gotLoc.Description)
}

func TestGorm_ForeignKeysRestrictDeletes(t *testing.T) {
	// GIVEN: A lot and a sale referencing Oak and the nursery bed
	// WHEN: Writing around the ledger with raw SQL
	// THEN: Referenced rows cannot be deleted and orphans cannot be inserted

	store := newTestStore(t)
	ctx := context.Background()
	migrator := store.DB().Migrator()

	assert.True(t, migrator.HasConstraint(&gormstore.StockRecord{}, "TreeType"))
	assert.True(t, migrator.HasConstraint(&gormstore.StockRecord{}, "Location"))
	assert.True(t, migrator.HasConstraint(&gormstore.TransactionRecord{}, "TreeType"))

	l := ledger.NewLedger(store)
	oak, err := l.RegisterTreeType(ctx, "Oak", decimal.NewFromInt(2), "")
	require.NoError(t, err)
	loc, err := l.RegisterLocation(ctx, "Nursery Bed", "")
	require.NoError(t, err)
	_, err = l.AddStock(ctx, ledger.AddStockInput{TreeTypeID: oak.ID, LocationID: loc.ID, Quantity: 5})
	require.NoError(t, err)
	_, err = l.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: oak.ID, Quantity: 1})
	require.NoError(t, err)

	assert.Error(t, store.DB().Exec("DELETE FROM locations WHERE id = ?", int64(loc.ID)).Error)
	assert.Error(t, store.DB().Exec("DELETE FROM tree_types WHERE id = ?", int64(oak.ID)).Error)
	assert.Error(t, store.DB().Exec(
		"INSERT INTO stock (tree_type_id, location_id, quantity, cost_per_seedling, date_added) VALUES (?, ?, 1, 0, ?)",
		99, int64(loc.ID), time.Now().UTC(),
	).Error)

	_, err = store.GetLocation(ctx, loc.ID)
	assert.NoError(t, err)
}

func TestGorm_MoneyKeepsFullPrecision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	l := ledger.NewLedger(store)

	tt, err := l.RegisterTreeType(ctx, "Willow cutting", decimal.RequireFromString("0.125"), "")
	require.NoError(t, err)
	loc, err := l.RegisterLocation(ctx, "Propagation", "")
	require.NoError(t, err)
	_, err = l.AddStock(ctx, ledger.AddStockInput{
		TreeTypeID: tt.ID, LocationID: loc.ID, Quantity: 10, CostPerUnit: decimal.RequireFromString("0.0375"),
	})
	require.NoError(t, err)
	_, err = l.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: tt.ID, Quantity: 3})
	require.NoError(t, err)

	got, err := store.GetTreeType(ctx, tt.ID)
	require.NoError(t, err)
	assert.True(t, got.BasePrice.Equal(decimal.RequireFromString("0.125")), got.BasePrice.String())

	lots, err := store.FindStock(ctx, ledger.StockQuery{})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].CostPerUnit.Equal(decimal.RequireFromString("0.0375")), lots[0].CostPerUnit.String())

	txs, err := store.ListTransactions(ctx, ledger.TransactionQuery{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].TotalAmount.Equal(decimal.RequireFromString("0.375")), txs[0].TotalAmount.String())
}
