package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOOKUPS
// =============================================================================

func (l *Ledger) TreeType(ctx context.Context, id TreeTypeID) (TreeType, error) {
	return l.Store.GetTreeType(ctx, id)
}

func (l *Ledger) Location(ctx context.Context, id LocationID) (Location, error) {
	return l.Store.GetLocation(ctx, id)
}

func (l *Ledger) Stock(ctx context.Context, id StockID) (Stock, error) {
	return l.Store.GetStock(ctx, id)
}

func (l *Ledger) ListTreeTypes(ctx context.Context) ([]TreeType, error) {
	return l.Store.ListTreeTypes(ctx)
}

func (l *Ledger) ListLocations(ctx context.Context) ([]Location, error) {
	return l.Store.ListLocations(ctx)
}

// =============================================================================
// INVENTORY VIEW
// =============================================================================

// InventoryFilter narrows the inventory view. Nil fields are not filtered.
type InventoryFilter struct {
	TreeTypeID *TreeTypeID
	LocationID *LocationID
}

// InventoryLine is one lot valued at its tree type's base price.
type InventoryLine struct {
	Stock        Stock
	TreeTypeName string
	LocationName string
	UnitPrice    decimal.Decimal
	Value        decimal.Decimal
}

type InventoryView struct {
	Lines         []InventoryLine
	TotalQuantity int
	TotalValue    decimal.Decimal
}

// Inventory lists lots in ID order, zero-quantity lots included, with the
// estimated value of each (quantity x current base price).
func (l *Ledger) Inventory(ctx context.Context, f InventoryFilter) (InventoryView, error) {
	lots, err := l.Store.FindStock(ctx, StockQuery{
		TreeTypeID: f.TreeTypeID,
		LocationID: f.LocationID,
		Order:      OrderByID,
	})
	if err != nil {
		return InventoryView{}, err
	}

	types, err := l.treeTypeIndex(ctx)
	if err != nil {
		return InventoryView{}, err
	}
	locations, err := l.Store.ListLocations(ctx)
	if err != nil {
		return InventoryView{}, err
	}
	locNames := make(map[LocationID]string, len(locations))
	for _, loc := range locations {
		locNames[loc.ID] = loc.Name
	}

	view := InventoryView{Lines: make([]InventoryLine, 0, len(lots)), TotalValue: decimal.Zero}
	for _, lot := range lots {
		tt := types[lot.TreeTypeID]
		value := tt.BasePrice.Mul(decimal.NewFromInt(int64(lot.Quantity)))
		view.Lines = append(view.Lines, InventoryLine{
			Stock:        lot,
			TreeTypeName: tt.Name,
			LocationName: locNames[lot.LocationID],
			UnitPrice:    tt.BasePrice,
			Value:        value,
		})
		view.TotalQuantity += lot.Quantity
		view.TotalValue = view.TotalValue.Add(value)
	}
	return view, nil
}

// =============================================================================
// SALES HISTORY VIEW
// =============================================================================

// SalesFilter narrows sales history by calendar day. Start and End are
// inclusive: any time on the End day is included. Only the date part of
// each bound is used, in the bound's own location.
type SalesFilter struct {
	Start *time.Time
	End   *time.Time
}

type SalesLine struct {
	Transaction  Transaction
	TreeTypeName string
}

type SalesHistoryView struct {
	Lines        []SalesLine
	TotalSold    int
	TotalRevenue decimal.Decimal
}

// SalesHistory lists sales newest first with the revenue total.
func (l *Ledger) SalesHistory(ctx context.Context, f SalesFilter) (SalesHistoryView, error) {
	q, err := f.query()
	if err != nil {
		return SalesHistoryView{}, err
	}

	txs, err := l.Store.ListTransactions(ctx, q)
	if err != nil {
		return SalesHistoryView{}, err
	}
	types, err := l.treeTypeIndex(ctx)
	if err != nil {
		return SalesHistoryView{}, err
	}

	view := SalesHistoryView{Lines: make([]SalesLine, 0, len(txs)), TotalRevenue: decimal.Zero}
	for _, tx := range txs {
		view.Lines = append(view.Lines, SalesLine{
			Transaction:  tx,
			TreeTypeName: types[tx.TreeTypeID].Name,
		})
		view.TotalSold += tx.QuantitySold
		view.TotalRevenue = view.TotalRevenue.Add(tx.TotalAmount)
	}
	return view, nil
}

// query converts inclusive days to the store's half-open interval:
// From = start of Start day, Until = start of the day after End.
func (f SalesFilter) query() (TransactionQuery, error) {
	var q TransactionQuery
	if f.Start != nil {
		from := StartOfDay(*f.Start)
		q.From = &from
	}
	if f.End != nil {
		until := StartOfDay(*f.End).AddDate(0, 0, 1)
		q.Until = &until
	}
	if q.From != nil && q.Until != nil && !q.From.Before(*q.Until) {
		return TransactionQuery{}, invalid("start date", "must not be after end date")
	}
	return q, nil
}

func (l *Ledger) treeTypeIndex(ctx context.Context) (map[TreeTypeID]TreeType, error) {
	types, err := l.Store.ListTreeTypes(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[TreeTypeID]TreeType, len(types))
	for _, tt := range types {
		idx[tt.ID] = tt
	}
	return idx, nil
}

// =============================================================================
// DATES
// =============================================================================

// DateLayout is the accepted date format for history filters.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, invalid("date", "must use YYYY-MM-DD format")
	}
	return t, nil
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
