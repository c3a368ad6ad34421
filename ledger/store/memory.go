// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore. IDs are 1-based slice positions.
type Memory struct {
	mu   sync.Mutex
	data tables
}

func NewMemory() *Memory {
	return &Memory{}
}

var _ ledger.TxStore = (*Memory)(nil)

var errNegativeQuantity = errors.New("quantity cannot be negative")

func (m *Memory) CreateTreeType(ctx context.Context, tt *ledger.TreeType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateTreeType(ctx, tt)
}

func (m *Memory) GetTreeType(ctx context.Context, id ledger.TreeTypeID) (ledger.TreeType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetTreeType(ctx, id)
}

func (m *Memory) ListTreeTypes(ctx context.Context) ([]ledger.TreeType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListTreeTypes(ctx)
}

func (m *Memory) CreateLocation(ctx context.Context, loc *ledger.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateLocation(ctx, loc)
}

func (m *Memory) GetLocation(ctx context.Context, id ledger.LocationID) (ledger.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetLocation(ctx, id)
}

func (m *Memory) ListLocations(ctx context.Context) ([]ledger.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListLocations(ctx)
}

func (m *Memory) CreateStock(ctx context.Context, s *ledger.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateStock(ctx, s)
}

func (m *Memory) GetStock(ctx context.Context, id ledger.StockID) (ledger.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetStock(ctx, id)
}

func (m *Memory) UpdateStockQuantity(ctx context.Context, id ledger.StockID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateStockQuantity(ctx, id, quantity)
}

func (m *Memory) FindStock(ctx context.Context, q ledger.StockQuery) ([]ledger.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.FindStock(ctx, q)
}

func (m *Memory) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateTransaction(ctx, tx)
}

func (m *Memory) ListTransactions(ctx context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListTransactions(ctx, q)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The lock is held for the whole of fn, so units of work are serialised.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	defer func() {
		if p := recover(); p != nil {
			m.data = snapshot
			panic(p)
		}
		if err != nil {
			m.data = snapshot
		}
	}()

	return fn(&m.data)
}

// =============================================================================
// TABLES - Unlocked storage, also the transactional view
// =============================================================================

type tables struct {
	treeTypes    []ledger.TreeType
	locations    []ledger.Location
	stock        []ledger.Stock
	transactions []ledger.Transaction
}

func (t *tables) clone() tables {
	return tables{
		treeTypes:    slices.Clone(t.treeTypes),
		locations:    slices.Clone(t.locations),
		stock:        slices.Clone(t.stock),
		transactions: slices.Clone(t.transactions),
	}
}

func (t *tables) CreateTreeType(_ context.Context, tt *ledger.TreeType) error {
	for _, existing := range t.treeTypes {
		if existing.Name == tt.Name {
			return ledger.ErrDuplicateName
		}
	}
	tt.ID = ledger.TreeTypeID(len(t.treeTypes) + 1)
	t.treeTypes = append(t.treeTypes, *tt)
	return nil
}

func (t *tables) GetTreeType(_ context.Context, id ledger.TreeTypeID) (ledger.TreeType, error) {
	if id < 1 || int(id) > len(t.treeTypes) {
		return ledger.TreeType{}, &ledger.NotFoundError{Kind: ledger.KindTreeType, ID: int64(id)}
	}
	return t.treeTypes[id-1], nil
}

func (t *tables) ListTreeTypes(_ context.Context) ([]ledger.TreeType, error) {
	return slices.Clone(t.treeTypes), nil
}

func (t *tables) CreateLocation(_ context.Context, loc *ledger.Location) error {
	for _, existing := range t.locations {
		if existing.Name == loc.Name {
			return ledger.ErrDuplicateName
		}
	}
	loc.ID = ledger.LocationID(len(t.locations) + 1)
	t.locations = append(t.locations, *loc)
	return nil
}

func (t *tables) GetLocation(_ context.Context, id ledger.LocationID) (ledger.Location, error) {
	if id < 1 || int(id) > len(t.locations) {
		return ledger.Location{}, &ledger.NotFoundError{Kind: ledger.KindLocation, ID: int64(id)}
	}
	return t.locations[id-1], nil
}

func (t *tables) ListLocations(_ context.Context) ([]ledger.Location, error) {
	return slices.Clone(t.locations), nil
}

func (t *tables) CreateStock(ctx context.Context, s *ledger.Stock) error {
	if _, err := t.GetTreeType(ctx, s.TreeTypeID); err != nil {
		return err
	}
	if _, err := t.GetLocation(ctx, s.LocationID); err != nil {
		return err
	}
	if s.Quantity < 0 {
		return ledger.NewStoreError("create stock", errNegativeQuantity)
	}
	s.ID = ledger.StockID(len(t.stock) + 1)
	t.stock = append(t.stock, *s)
	return nil
}

func (t *tables) GetStock(_ context.Context, id ledger.StockID) (ledger.Stock, error) {
	if id < 1 || int(id) > len(t.stock) {
		return ledger.Stock{}, &ledger.NotFoundError{Kind: ledger.KindStock, ID: int64(id)}
	}
	return t.stock[id-1], nil
}

func (t *tables) UpdateStockQuantity(ctx context.Context, id ledger.StockID, quantity int) error {
	if _, err := t.GetStock(ctx, id); err != nil {
		return err
	}
	if quantity < 0 {
		return ledger.NewStoreError("update stock", errNegativeQuantity)
	}
	t.stock[id-1].Quantity = quantity
	return nil
}

func (t *tables) FindStock(_ context.Context, q ledger.StockQuery) ([]ledger.Stock, error) {
	var result []ledger.Stock
	for _, s := range t.stock {
		if q.TreeTypeID != nil && s.TreeTypeID != *q.TreeTypeID {
			continue
		}
		if q.LocationID != nil && s.LocationID != *q.LocationID {
			continue
		}
		if q.OnlyPositive && s.Quantity <= 0 {
			continue
		}
		result = append(result, s)
	}

	// Slice order is ID order already.
	if q.Order == ledger.OrderFIFO {
		sort.SliceStable(result, func(i, j int) bool {
			if !result[i].AddedAt.Equal(result[j].AddedAt) {
				return result[i].AddedAt.Before(result[j].AddedAt)
			}
			return result[i].ID < result[j].ID
		})
	}
	return result, nil
}

func (t *tables) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if _, err := t.GetTreeType(ctx, tx.TreeTypeID); err != nil {
		return err
	}
	tx.ID = ledger.TransactionID(len(t.transactions) + 1)
	t.transactions = append(t.transactions, *tx)
	return nil
}

func (t *tables) ListTransactions(_ context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error) {
	var result []ledger.Transaction
	for _, tx := range t.transactions {
		if q.From != nil && tx.SoldAt.Before(*q.From) {
			continue
		}
		if q.Until != nil && !tx.SoldAt.Before(*q.Until) {
			continue
		}
		result = append(result, tx)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].SoldAt.Equal(result[j].SoldAt) {
			return result[i].SoldAt.After(result[j].SoldAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}
