package ledger

// Draw is the quantity a sale takes from one lot.
type Draw struct {
	StockID   StockID
	Taken     int
	Remaining int // lot quantity after the draw
}

// PlanFIFO decides which lots a sale of quantity consumes.
//
// lots must already be in consumption order (OrderFIFO: oldest AddedAt
// first, then lowest ID). Each lot is drained to zero before the next one
// is touched. Lots with no stock are skipped. If the lots together hold
// less than quantity the plan is rejected and nothing is returned.
func PlanFIFO(lots []Stock, quantity int) ([]Draw, error) {
	if quantity <= 0 {
		return nil, invalid("quantity", "must be a positive integer")
	}

	available := 0
	for _, lot := range lots {
		if lot.Quantity > 0 {
			available += lot.Quantity
		}
	}
	if available < quantity {
		var typeID TreeTypeID
		if len(lots) > 0 {
			typeID = lots[0].TreeTypeID
		}
		return nil, &InsufficientStockError{
			TreeTypeID: typeID,
			Available:  available,
			Requested:  quantity,
		}
	}

	var draws []Draw
	remaining := quantity
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		if lot.Quantity <= 0 {
			continue
		}
		take := min(lot.Quantity, remaining)
		remaining -= take
		draws = append(draws, Draw{
			StockID:   lot.ID,
			Taken:     take,
			Remaining: lot.Quantity - take,
		})
	}
	return draws, nil
}
