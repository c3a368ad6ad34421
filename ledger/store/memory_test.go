package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
	"github.com/jefferson57-lab/greengrow-manager/ledger/ledgertest"
	"github.com/jefferson57-lab/greengrow-manager/ledger/store"
)

func TestMemory_Conformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.TxStore {
		return store.NewMemory()
	})
}

func TestMemory_ReadsReturnCopies(t *testing.T) {
	// GIVEN: A listed tree type slice
	// WHEN: The caller mutates it
	// THEN: The stored row is unchanged

	m := store.NewMemory()
	ctx := context.Background()

	tt := ledger.TreeType{Name: "Oak", BasePrice: decimal.NewFromInt(10)}
	require.NoError(t, m.CreateTreeType(ctx, &tt))

	types, err := m.ListTreeTypes(ctx)
	require.NoError(t, err)
	types[0].Name = "Mutated"

	got, err := m.GetTreeType(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Oak", got.Name)
}

func TestMemory_RejectsNegativeQuantity(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	tt := ledger.TreeType{Name: "Oak"}
	require.NoError(t, m.CreateTreeType(ctx, &tt))
	loc := ledger.Location{Name: "Field"}
	require.NoError(t, m.CreateLocation(ctx, &loc))

	lot := ledger.Stock{TreeTypeID: tt.ID, LocationID: loc.ID, Quantity: -1, AddedAt: time.Now()}
	assert.ErrorIs(t, m.CreateStock(ctx, &lot), ledger.ErrStoreFailure)

	lot.Quantity = 2
	require.NoError(t, m.CreateStock(ctx, &lot))
	assert.ErrorIs(t, m.UpdateStockQuantity(ctx, lot.ID, -1), ledger.ErrStoreFailure)
}
