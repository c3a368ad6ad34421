package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

// =============================================================================
// SETUP
// =============================================================================

// runInit relies on the store applying its schema when opened.
func runInit(_ context.Context, a *App, _ *ledger.Ledger, args []string) error {
	if _, err := parseArgs(newFlagSet("init"), args, 0); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "Database initialized successfully!")
	return nil
}

// =============================================================================
// TREE TYPES AND LOCATIONS
// =============================================================================

func runAddType(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	fs := newFlagSet("add-type")
	var desc string
	fs.StringVar(&desc, "d", "", "description")
	fs.StringVar(&desc, "description", "", "description")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	price, err := nonNegativeMoney(pos[1], "Base price")
	if err != nil {
		return err
	}

	tt, err := l.RegisterTreeType(ctx, pos[0], price, desc)
	if errors.Is(err, ledger.ErrDuplicateName) {
		return failf(err, "A tree type named '%s' already exists.", pos[0])
	}
	if err != nil {
		return explain("Adding tree type", err)
	}
	fmt.Fprintf(a.Out, "Tree type '%s' (ID: %d) added with price %s.\n", tt.Name, tt.ID, tt.BasePrice.StringFixed(2))
	return nil
}

func runListTypes(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	if _, err := parseArgs(newFlagSet("list-types"), args, 0); err != nil {
		return err
	}

	types, err := l.ListTreeTypes(ctx)
	if err != nil {
		return explain("Listing tree types", err)
	}
	if len(types) == 0 {
		fmt.Fprintln(a.Out, "No tree types registered yet.")
		return nil
	}

	rows := make([][]string, 0, len(types))
	for _, tt := range types {
		rows = append(rows, []string{
			strconv.FormatInt(int64(tt.ID), 10),
			tt.Name,
			dollars(tt.BasePrice),
			orNA(tt.Description),
		})
	}
	printTable(a.Out, []string{"ID", "Name", "Base Price", "Description"}, rows)
	return nil
}

func runAddLocation(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	fs := newFlagSet("add-location")
	var desc string
	fs.StringVar(&desc, "d", "", "description")
	fs.StringVar(&desc, "description", "", "description")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	loc, err := l.RegisterLocation(ctx, pos[0], desc)
	if errors.Is(err, ledger.ErrDuplicateName) {
		return failf(err, "A location named '%s' already exists.", pos[0])
	}
	if err != nil {
		return explain("Adding location", err)
	}
	fmt.Fprintf(a.Out, "Location '%s' (ID: %d) added.\n", loc.Name, loc.ID)
	return nil
}

func runListLocations(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	if _, err := parseArgs(newFlagSet("list-locations"), args, 0); err != nil {
		return err
	}

	locations, err := l.ListLocations(ctx)
	if err != nil {
		return explain("Listing locations", err)
	}
	if len(locations) == 0 {
		fmt.Fprintln(a.Out, "No locations registered yet.")
		return nil
	}

	rows := make([][]string, 0, len(locations))
	for _, loc := range locations {
		rows = append(rows, []string{
			strconv.FormatInt(int64(loc.ID), 10),
			loc.Name,
			orNA(loc.Description),
		})
	}
	printTable(a.Out, []string{"ID", "Name", "Description"}, rows)
	return nil
}

// =============================================================================
// STOCK
// =============================================================================

func runAddStock(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	fs := newFlagSet("add-stock")
	var cost string
	fs.StringVar(&cost, "c", "0", "cost per seedling")
	fs.StringVar(&cost, "cost", "0", "cost per seedling")
	pos, err := parseArgs(fs, args, 3)
	if err != nil {
		return err
	}

	typeID, err := id("add-stock", pos[0], "TYPE_ID")
	if err != nil {
		return err
	}
	locID, err := id("add-stock", pos[1], "LOCATION_ID")
	if err != nil {
		return err
	}
	qty, err := positiveInt(pos[2], "Quantity")
	if err != nil {
		return err
	}
	costPerUnit, err := nonNegativeMoney(cost, "Cost per seedling")
	if err != nil {
		return err
	}

	lot, err := l.AddStock(ctx, ledger.AddStockInput{
		TreeTypeID:  ledger.TreeTypeID(typeID),
		LocationID:  ledger.LocationID(locID),
		Quantity:    qty,
		CostPerUnit: costPerUnit,
	})
	if err != nil {
		return explain("Adding stock", err)
	}

	tt, err := l.TreeType(ctx, lot.TreeTypeID)
	if err != nil {
		return explain("Adding stock", err)
	}
	loc, err := l.Location(ctx, lot.LocationID)
	if err != nil {
		return explain("Adding stock", err)
	}
	fmt.Fprintf(a.Out, "Added %d '%s' seedlings (Stock ID: %d) to '%s'.\n", lot.Quantity, tt.Name, lot.ID, loc.Name)
	return nil
}

func runMoveStock(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	pos, err := parseArgs(newFlagSet("move-stock"), args, 3)
	if err != nil {
		return err
	}

	fromID, err := id("move-stock", pos[0], "FROM_STOCK_ID")
	if err != nil {
		return err
	}
	toID, err := id("move-stock", pos[1], "TO_LOCATION_ID")
	if err != nil {
		return err
	}
	qty, err := positiveInt(pos[2], "Quantity")
	if err != nil {
		return err
	}

	res, err := l.MoveStock(ctx, ledger.MoveStockInput{
		FromStockID:  ledger.StockID(fromID),
		ToLocationID: ledger.LocationID(toID),
		Quantity:     qty,
	})
	var (
		nf    *ledger.NotFoundError
		short *ledger.InsufficientStockError
	)
	switch {
	case errors.As(err, &nf) && nf.Kind == ledger.KindStock:
		return failf(err, "Source Stock ID %d not found.", fromID)
	case errors.As(err, &nf) && nf.Kind == ledger.KindLocation:
		return failf(err, "Destination Location ID %d not found.", toID)
	case errors.As(err, &short):
		return failf(err, "Not enough stock (%d) in Stock ID %d to move %d.", short.Available, fromID, qty)
	case err != nil:
		return explain("Moving stock", err)
	}

	tt, err := l.TreeType(ctx, res.From.TreeTypeID)
	if err != nil {
		return explain("Moving stock", err)
	}
	from, err := l.Location(ctx, res.From.LocationID)
	if err != nil {
		return explain("Moving stock", err)
	}
	to, err := l.Location(ctx, res.To.LocationID)
	if err != nil {
		return explain("Moving stock", err)
	}
	fmt.Fprintf(a.Out, "Moved %d '%s' seedlings from '%s' (now %d remaining) to '%s' (now %d total).\n",
		qty, tt.Name, from.Name, res.From.Quantity, to.Name, res.To.Quantity)
	return nil
}

func runViewInventory(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	fs := newFlagSet("view-inventory")
	var typeArg, locArg string
	fs.StringVar(&typeArg, "t", "", "tree type ID")
	fs.StringVar(&typeArg, "type", "", "tree type ID")
	fs.StringVar(&locArg, "l", "", "location ID")
	fs.StringVar(&locArg, "location", "", "location ID")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	var f ledger.InventoryFilter
	if typeArg != "" {
		n, err := id("view-inventory", typeArg, "type")
		if err != nil {
			return err
		}
		typeID := ledger.TreeTypeID(n)
		f.TreeTypeID = &typeID
	}
	if locArg != "" {
		n, err := id("view-inventory", locArg, "location")
		if err != nil {
			return err
		}
		locID := ledger.LocationID(n)
		f.LocationID = &locID
	}

	view, err := l.Inventory(ctx, f)
	if err != nil {
		return explain("Viewing inventory", err)
	}
	if len(view.Lines) == 0 {
		fmt.Fprintln(a.Out, "No stock entries found matching the criteria.")
		return nil
	}

	rows := make([][]string, 0, len(view.Lines))
	for _, line := range view.Lines {
		rows = append(rows, []string{
			strconv.FormatInt(int64(line.Stock.ID), 10),
			line.TreeTypeName,
			line.LocationName,
			strconv.Itoa(line.Stock.Quantity),
			dollars(line.UnitPrice),
			dollars(line.Value),
			a.timestamp(line.Stock.AddedAt),
		})
	}
	printTable(a.Out, []string{"Stock ID", "Tree Type", "Location", "Quantity", "Unit Price", "Total Value", "Date Added"}, rows)
	fmt.Fprintf(a.Out, "\nTotal Estimated Inventory Value: %s\n", dollars(view.TotalValue))
	return nil
}

// =============================================================================
// SALES
// =============================================================================

func runRecordSale(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	pos, err := parseArgs(newFlagSet("record-sale"), args, 2)
	if err != nil {
		return err
	}

	typeID, err := id("record-sale", pos[0], "TYPE_ID")
	if err != nil {
		return err
	}
	qty, err := positiveInt(pos[1], "Quantity")
	if err != nil {
		return err
	}

	sale, err := l.RecordSale(ctx, ledger.RecordSaleInput{TreeTypeID: ledger.TreeTypeID(typeID), Quantity: qty})
	var short *ledger.InsufficientStockError
	if errors.As(err, &short) {
		name := fmt.Sprintf("type %d", typeID)
		if tt, lookupErr := l.TreeType(ctx, ledger.TreeTypeID(typeID)); lookupErr == nil {
			name = tt.Name
		}
		return failf(err, "Not enough stock of '%s' to sell %d (available: %d).", name, qty, short.Available)
	}
	if err != nil {
		return explain("Recording sale", err)
	}

	tt, err := l.TreeType(ctx, sale.TreeTypeID)
	if err != nil {
		return explain("Recording sale", err)
	}
	fmt.Fprintf(a.Out, "Recorded sale of %d '%s' seedlings for %s.\n", sale.QuantitySold, tt.Name, dollars(sale.TotalAmount))
	return nil
}

func runViewSalesHistory(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	fs := newFlagSet("view-sales-history")
	var startArg, endArg string
	fs.StringVar(&startArg, "s", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&startArg, "start-date", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&endArg, "e", "", "end date (YYYY-MM-DD)")
	fs.StringVar(&endArg, "end-date", "", "end date (YYYY-MM-DD)")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	var f ledger.SalesFilter
	if startArg != "" {
		d, err := ledger.ParseDate(startArg, a.Location)
		if err != nil {
			return failf(err, "Invalid start date format. Please use YYYY-MM-DD.")
		}
		f.Start = &d
	}
	if endArg != "" {
		d, err := ledger.ParseDate(endArg, a.Location)
		if err != nil {
			return failf(err, "Invalid end date format. Please use YYYY-MM-DD.")
		}
		f.End = &d
	}

	view, err := l.SalesHistory(ctx, f)
	if err != nil {
		return explain("Viewing sales history", err)
	}
	if len(view.Lines) == 0 {
		fmt.Fprintln(a.Out, "No sales transactions found matching the criteria.")
		return nil
	}

	rows := make([][]string, 0, len(view.Lines))
	for _, line := range view.Lines {
		tx := line.Transaction
		rows = append(rows, []string{
			strconv.FormatInt(int64(tx.ID), 10),
			line.TreeTypeName,
			strconv.Itoa(tx.QuantitySold),
			dollars(tx.UnitPrice),
			dollars(tx.TotalAmount),
			a.timestamp(tx.SoldAt),
		})
	}
	printTable(a.Out, []string{"Transaction ID", "Tree Type", "Quantity Sold", "Unit Price", "Total Amount", "Date"}, rows)
	fmt.Fprintf(a.Out, "\nTotal Revenue for Period: %s\n", dollars(view.TotalRevenue))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// explain turns a ledger error into a one-line message.
func explain(action string, err error) error {
	if ledger.IsClientError(err) {
		return failf(err, "%s.", capitalize(err.Error()))
	}
	return failf(err, "%s failed: %v", action, err)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
