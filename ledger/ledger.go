/*
ledger.go - Stock mutations: add, move, sell

CRITICAL INVARIANTS:
  1. NO OVERSELLING: a sale either finds enough stock across all lots
     of the type or changes nothing.
  2. NON-NEGATIVE: no lot quantity ever goes below zero.
  3. ATOMIC: a move (source decrement + destination upsert) and a sale
     (every lot decrement + the transaction row) are each one unit of work.
  4. FIFO: sales drain the oldest lot first (AddedAt, then lot ID).
  5. CONSERVATION: a move never changes the total quantity of a tree type.

FOREIGN KEYS:
  The engine loads every referenced tree type, location and lot inside
  the unit of work before writing. Callers get a *NotFoundError instead
  of having to validate IDs themselves.

EXAMPLE FLOW:
  1. Lot A: 10 oaks added Monday, lot B: 5 oaks added Tuesday
  2. RecordSale(oak, 12)
  3. A: 10 -> 0, B: 5 -> 3, one Transaction{QuantitySold: 12}

SEE ALSO:
  - fifo.go: Consumption planning
  - store.go: TxStore.WithTx
*/
package ledger

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ENGINE
// =============================================================================

// Ledger applies stock mutations against a transactional store.
type Ledger struct {
	Store TxStore

	// Clock stamps new lots and sales. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives one line per committed mutation. Nil = silent.
	Logger *log.Logger
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{Store: store, Clock: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Clock == nil {
		return time.Now().UTC()
	}
	return l.Clock().UTC()
}

func (l *Ledger) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf("[ledger] "+format, args...)
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// RegisterTreeType creates a tree type. Names are unique.
func (l *Ledger) RegisterTreeType(ctx context.Context, name string, basePrice decimal.Decimal, description string) (TreeType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TreeType{}, invalid("name", "must not be empty")
	}
	if basePrice.IsNegative() {
		return TreeType{}, invalid("base price", "cannot be negative")
	}

	tt := TreeType{
		Name:        name,
		Description: strings.TrimSpace(description),
		BasePrice:   basePrice,
	}
	if err := l.Store.CreateTreeType(ctx, &tt); err != nil {
		return TreeType{}, err
	}
	l.logf("registered tree type %d %q at %s", tt.ID, tt.Name, tt.BasePrice.StringFixed(2))
	return tt, nil
}

// RegisterLocation creates a storage location. Names are unique.
func (l *Ledger) RegisterLocation(ctx context.Context, name, description string) (Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Location{}, invalid("name", "must not be empty")
	}

	loc := Location{Name: name, Description: strings.TrimSpace(description)}
	if err := l.Store.CreateLocation(ctx, &loc); err != nil {
		return Location{}, err
	}
	l.logf("registered location %d %q", loc.ID, loc.Name)
	return loc, nil
}

// =============================================================================
// STOCK ADDITION
// =============================================================================

// AddStock records a new, independent lot. It never merges into an
// existing lot for the same tree type and location.
func (l *Ledger) AddStock(ctx context.Context, in AddStockInput) (Stock, error) {
	if in.Quantity <= 0 {
		return Stock{}, invalid("quantity", "must be a positive integer")
	}
	if in.CostPerUnit.IsNegative() {
		return Stock{}, invalid("cost per seedling", "cannot be negative")
	}

	lot := Stock{
		TreeTypeID:  in.TreeTypeID,
		LocationID:  in.LocationID,
		Quantity:    in.Quantity,
		CostPerUnit: in.CostPerUnit,
		AddedAt:     l.now(),
	}
	err := l.Store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetTreeType(ctx, in.TreeTypeID); err != nil {
			return err
		}
		if _, err := s.GetLocation(ctx, in.LocationID); err != nil {
			return err
		}
		return s.CreateStock(ctx, &lot)
	})
	if err != nil {
		return Stock{}, err
	}

	l.logf("added lot %d: %d of type %d at location %d", lot.ID, lot.Quantity, lot.TreeTypeID, lot.LocationID)
	return lot, nil
}

// =============================================================================
// STOCK TRANSFER
// =============================================================================

// MoveStock transfers quantity from one lot to a location.
//
// The destination is the oldest other lot of the same tree type already at
// that location; if there is none a new lot is created carrying the source
// lot's unit cost. Moving within the source's own location therefore splits
// the lot or merges it into a sibling, never into itself.
func (l *Ledger) MoveStock(ctx context.Context, in MoveStockInput) (MoveResult, error) {
	if in.Quantity <= 0 {
		return MoveResult{}, invalid("quantity", "must be a positive integer")
	}

	var res MoveResult
	err := l.Store.WithTx(ctx, func(s Store) error {
		from, err := s.GetStock(ctx, in.FromStockID)
		if err != nil {
			return err
		}
		if _, err := s.GetLocation(ctx, in.ToLocationID); err != nil {
			return err
		}
		if from.Quantity < in.Quantity {
			return &InsufficientStockError{
				TreeTypeID: from.TreeTypeID,
				StockID:    from.ID,
				Available:  from.Quantity,
				Requested:  in.Quantity,
			}
		}

		typeID, locID := from.TreeTypeID, in.ToLocationID
		candidates, err := s.FindStock(ctx, StockQuery{
			TreeTypeID: &typeID,
			LocationID: &locID,
			Order:      OrderFIFO,
		})
		if err != nil {
			return err
		}

		from.Quantity -= in.Quantity
		if err := s.UpdateStockQuantity(ctx, from.ID, from.Quantity); err != nil {
			return err
		}

		to, found := firstOther(candidates, from.ID)
		if found {
			to.Quantity += in.Quantity
			if err := s.UpdateStockQuantity(ctx, to.ID, to.Quantity); err != nil {
				return err
			}
		} else {
			to = Stock{
				TreeTypeID:  from.TreeTypeID,
				LocationID:  in.ToLocationID,
				Quantity:    in.Quantity,
				CostPerUnit: from.CostPerUnit,
				AddedAt:     l.now(),
			}
			if err := s.CreateStock(ctx, &to); err != nil {
				return err
			}
		}

		res = MoveResult{From: from, To: to, Merged: found}
		return nil
	})
	if err != nil {
		return MoveResult{}, err
	}

	l.logf("moved %d from lot %d to lot %d (location %d, merged=%v)",
		in.Quantity, res.From.ID, res.To.ID, res.To.LocationID, res.Merged)
	return res, nil
}

func firstOther(lots []Stock, exclude StockID) (Stock, bool) {
	for _, lot := range lots {
		if lot.ID != exclude {
			return lot, true
		}
	}
	return Stock{}, false
}

// =============================================================================
// SALE RECORDING
// =============================================================================

// RecordSale consumes quantity of a tree type across its lots, oldest
// first, and appends one Transaction priced at the tree type's current
// base price. If the lots together hold less than quantity nothing is
// written and an *InsufficientStockError is returned.
func (l *Ledger) RecordSale(ctx context.Context, in RecordSaleInput) (Transaction, error) {
	if in.Quantity <= 0 {
		return Transaction{}, invalid("quantity", "must be a positive integer")
	}

	var (
		sale  Transaction
		draws []Draw
	)
	err := l.Store.WithTx(ctx, func(s Store) error {
		tt, err := s.GetTreeType(ctx, in.TreeTypeID)
		if err != nil {
			return err
		}

		typeID := tt.ID
		lots, err := s.FindStock(ctx, StockQuery{
			TreeTypeID:   &typeID,
			OnlyPositive: true,
			Order:        OrderFIFO,
		})
		if err != nil {
			return err
		}

		draws, err = PlanFIFO(lots, in.Quantity)
		if err != nil {
			var short *InsufficientStockError
			if errors.As(err, &short) {
				short.TreeTypeID = tt.ID
			}
			return err
		}
		for _, d := range draws {
			if err := s.UpdateStockQuantity(ctx, d.StockID, d.Remaining); err != nil {
				return err
			}
		}

		sale = Transaction{
			TreeTypeID:   tt.ID,
			QuantitySold: in.Quantity,
			UnitPrice:    tt.BasePrice,
			TotalAmount:  tt.BasePrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
			SoldAt:       l.now(),
		}
		return s.CreateTransaction(ctx, &sale)
	})
	if err != nil {
		return Transaction{}, err
	}

	l.logf("sale %d: %d of type %d for %s from %d lot(s)",
		sale.ID, sale.QuantitySold, sale.TreeTypeID, sale.TotalAmount.StringFixed(2), len(draws))
	return sale, nil
}
