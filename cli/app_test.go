package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefferson57-lab/greengrow-manager/config"
	ledgerstore "github.com/jefferson57-lab/greengrow-manager/ledger/store"
	"github.com/jefferson57-lab/greengrow-manager/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type memBackend struct {
	*ledgerstore.Memory
}

func (memBackend) Close() error { return nil }

type testCLI struct {
	t     *testing.T
	app   *App
	out   bytes.Buffer
	err   bytes.Buffer
	clock time.Time
}

// newTestCLI shares one in-memory store across every Run call.
func newTestCLI(t *testing.T) *testCLI {
	c := &testCLI{t: t, clock: time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)}
	backend := memBackend{ledgerstore.NewMemory()}
	c.app = &App{
		Out:       &c.out,
		Err:       &c.err,
		OpenStore: func(config.DBConfig) (store.Backend, error) { return backend, nil },
		Clock:     func() time.Time { return c.clock },
		Location:  time.UTC,
	}
	return c
}

// run executes one command line and returns its exit code, stdout, stderr.
func (c *testCLI) run(line ...string) (int, string, string) {
	c.t.Helper()
	c.out.Reset()
	c.err.Reset()
	code := c.app.Run(context.Background(), line)
	return code, c.out.String(), c.err.String()
}

// must runs a command that has to succeed and returns its stdout.
func (c *testCLI) must(line ...string) string {
	c.t.Helper()
	code, out, errOut := c.run(line...)
	require.Equal(c.t, ExitOK, code, "%v: %s", line, errOut)
	return out
}

func (c *testCLI) seed() {
	c.t.Helper()
	c.must("add-type", "Oak", "12.50", "-d", "Quercus robur")
	c.must("add-location", "Greenhouse A")
	c.must("add-location", "North Field", "--description", "open beds")
}

// =============================================================================
// REGISTRATION COMMANDS
// =============================================================================

func TestCLI_Init(t *testing.T) {
	c := newTestCLI(t)
	assert.Equal(t, "Database initialized successfully!\n", c.must("init"))
}

func TestCLI_AddAndListTypes(t *testing.T) {
	c := newTestCLI(t)

	assert.Equal(t, "No tree types registered yet.\n", c.must("list-types"))

	out := c.must("add-type", "Oak", "12.5", "-d", "Quercus robur")
	assert.Equal(t, "Tree type 'Oak' (ID: 1) added with price 12.50.\n", out)

	// Flag before positionals works too
	c.must("add-type", "--description", "", "Pine", "8")

	out = c.must("list-types")
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID | Name | Base Price | Description"))
	assert.Equal(t, "1  | Oak  | $12.50     | Quercus robur", lines[2])
	assert.Equal(t, "2  | Pine | $8.00      | N/A          ", lines[3])
}

func TestCLI_AddTypeErrors(t *testing.T) {
	c := newTestCLI(t)
	c.seed()

	code, _, errOut := c.run("add-type", "Oak", "3")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: A tree type named 'Oak' already exists.\n", errOut)

	code, _, errOut = c.run("add-type", "Elm", "-1")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Base price cannot be negative.\n", errOut)

	code, _, errOut = c.run("add-type", "Elm", "cheap")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Base price must be a valid number.\n", errOut)

	code, _, errOut = c.run("add-type", "Elm")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, "Usage: greengrow add-type NAME BASE_PRICE [-d DESCRIPTION]")

	code, _, _ = c.run("add-type", "Elm", "3", "-x")
	assert.Equal(t, ExitUsage, code)
}

func TestCLI_Locations(t *testing.T) {
	c := newTestCLI(t)

	assert.Equal(t, "No locations registered yet.\n", c.must("list-locations"))
	assert.Equal(t, "Location 'Greenhouse A' (ID: 1) added.\n", c.must("add-location", "Greenhouse A"))

	code, _, errOut := c.run("add-location", "Greenhouse A")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, errOut, "already exists")

	out := c.must("list-locations")
	assert.Contains(t, out, "1  | Greenhouse A | N/A")
}

// =============================================================================
// STOCK COMMANDS
// =============================================================================

func TestCLI_AddStock(t *testing.T) {
	c := newTestCLI(t)
	c.seed()

	out := c.must("add-stock", "1", "1", "10", "-c", "1.25")
	assert.Equal(t, "Added 10 'Oak' seedlings (Stock ID: 1) to 'Greenhouse A'.\n", out)

	code, _, errOut := c.run("add-stock", "9", "1", "10")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Tree type with ID 9 not found.\n", errOut)

	code, _, errOut = c.run("add-stock", "1", "9", "10")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Location with ID 9 not found.\n", errOut)

	code, _, errOut = c.run("add-stock", "1", "1", "-5")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Quantity must be a positive integer.\n", errOut)

	code, _, errOut = c.run("add-stock", "1", "1", "5", "--cost", "-0.5")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Cost per seedling cannot be negative.\n", errOut)

	code, _, _ = c.run("add-stock", "one", "1", "5")
	assert.Equal(t, ExitUsage, code)
}

func TestCLI_MoveStock(t *testing.T) {
	// GIVEN: 10 oaks in the greenhouse, 3 in the field
	// WHEN: Moving 4 to the field
	// THEN: Both totals are reported and later shown in the inventory

	c := newTestCLI(t)
	c.seed()
	c.must("add-stock", "1", "1", "10")
	c.must("add-stock", "1", "2", "3")

	out := c.must("move-stock", "1", "2", "4")
	assert.Equal(t, "Moved 4 'Oak' seedlings from 'Greenhouse A' (now 6 remaining) to 'North Field' (now 7 total).\n", out)

	code, _, errOut := c.run("move-stock", "1", "2", "7")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Not enough stock (6) in Stock ID 1 to move 7.\n", errOut)

	code, _, errOut = c.run("move-stock", "42", "2", "1")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Source Stock ID 42 not found.\n", errOut)

	code, _, errOut = c.run("move-stock", "1", "42", "1")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Destination Location ID 42 not found.\n", errOut)
}

func TestCLI_ViewInventory(t *testing.T) {
	c := newTestCLI(t)
	c.seed()

	assert.Equal(t, "No stock entries found matching the criteria.\n", c.must("view-inventory"))

	c.must("add-stock", "1", "1", "10")
	c.clock = c.clock.Add(time.Hour)
	c.must("add-stock", "1", "2", "4")

	out := c.must("view-inventory")
	assert.Contains(t, out, "Stock ID | Tree Type | Location     | Quantity | Unit Price | Total Value | Date Added")
	assert.Contains(t, out, "1        | Oak       | Greenhouse A | 10       | $12.50     | $125.00     | 2024-03-10 09:00:00")
	assert.Contains(t, out, "2        | Oak       | North Field  | 4        | $12.50     | $50.00      | 2024-03-10 10:00:00")
	assert.True(t, strings.HasSuffix(out, "\nTotal Estimated Inventory Value: $175.00\n"))

	out = c.must("view-inventory", "-l", "2")
	assert.NotContains(t, out, "Greenhouse A")
	assert.Contains(t, out, "Total Estimated Inventory Value: $50.00")

	out = c.must("view-inventory", "--type", "1", "--location", "1")
	assert.Contains(t, out, "Total Estimated Inventory Value: $125.00")

	code, _, _ := c.run("view-inventory", "-t", "oak")
	assert.Equal(t, ExitUsage, code)
}

// =============================================================================
// SALES COMMANDS
// =============================================================================

func TestCLI_RecordSale(t *testing.T) {
	c := newTestCLI(t)
	c.seed()
	c.must("add-stock", "1", "1", "10")
	c.clock = c.clock.Add(time.Hour)
	c.must("add-stock", "1", "2", "5")

	out := c.must("record-sale", "1", "12")
	assert.Equal(t, "Recorded sale of 12 'Oak' seedlings for $150.00.\n", out)

	out = c.must("view-inventory")
	assert.Contains(t, out, "1        | Oak       | Greenhouse A | 0 ")
	assert.Contains(t, out, "2        | Oak       | North Field  | 3 ")

	code, _, errOut := c.run("record-sale", "1", "4")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Not enough stock of 'Oak' to sell 4 (available: 3).\n", errOut)

	code, _, errOut = c.run("record-sale", "7", "1")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Tree type with ID 7 not found.\n", errOut)

	code, _, errOut = c.run("record-sale", "1", "0")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Quantity must be a positive integer.\n", errOut)
}

func TestCLI_ViewSalesHistory(t *testing.T) {
	c := newTestCLI(t)
	c.seed()
	c.must("add-stock", "1", "1", "100")

	assert.Equal(t, "No sales transactions found matching the criteria.\n", c.must("view-sales-history"))

	c.clock = time.Date(2024, time.March, 10, 23, 30, 0, 0, time.UTC)
	c.must("record-sale", "1", "2")
	c.clock = time.Date(2024, time.March, 11, 8, 0, 0, 0, time.UTC)
	c.must("record-sale", "1", "1")

	out := c.must("view-sales-history")
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "Transaction ID | Tree Type | Quantity Sold | Unit Price | Total Amount | Date"))
	assert.True(t, strings.HasPrefix(lines[2], "2 "), "newest first: %q", lines[2])
	assert.Contains(t, out, "1              | Oak       | 2             | $12.50     | $25.00       | 2024-03-10 23:30:00")
	assert.Contains(t, out, "Total Revenue for Period: $37.50")

	// The end date includes the whole day
	out = c.must("view-sales-history", "-e", "2024-03-10")
	assert.Contains(t, out, "Total Revenue for Period: $25.00")

	out = c.must("view-sales-history", "--start-date", "2024-03-11", "--end-date", "2024-03-11")
	assert.Contains(t, out, "Total Revenue for Period: $12.50")

	code, _, errOut := c.run("view-sales-history", "-s", "10/03/2024")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Invalid start date format. Please use YYYY-MM-DD.\n", errOut)

	code, _, errOut = c.run("view-sales-history", "-s", "2024-03-12", "-e", "2024-03-11")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "Error: Start date must not be after end date.\n", errOut)
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestCLI_Usage(t *testing.T) {
	c := newTestCLI(t)

	code, _, errOut := c.run()
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, "view-sales-history")

	code, _, errOut = c.run("plant-tree")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, `unknown command "plant-tree"`)

	code, _, _ = c.run("help")
	assert.Equal(t, ExitOK, code)

	code, _, _ = c.run("list-types", "extra")
	assert.Equal(t, ExitUsage, code)
}

func TestCLI_SQLiteFileEndToEnd(t *testing.T) {
	// GIVEN: A real SQLite file chosen with -db
	// WHEN: Commands run as separate invocations
	// THEN: State persists between them

	path := filepath.Join(t.TempDir(), "store.db")
	var out, errOut bytes.Buffer
	app := &App{Out: &out, Err: &errOut, Config: config.Config{DB: config.DBConfig{Driver: config.DriverSQLite}}}
	run := func(args ...string) int {
		out.Reset()
		errOut.Reset()
		return app.Run(context.Background(), append([]string{"-db", path}, args...))
	}

	require.Equal(t, ExitOK, run("init"), errOut.String())
	require.Equal(t, ExitOK, run("add-type", "Oak", "2"), errOut.String())
	require.Equal(t, ExitOK, run("add-location", "Yard"), errOut.String())
	require.Equal(t, ExitOK, run("add-stock", "1", "1", "5"), errOut.String())
	require.Equal(t, ExitOK, run("record-sale", "1", "5"), errOut.String())

	require.Equal(t, ExitFailure, run("record-sale", "1", "1"))
	assert.Contains(t, errOut.String(), "Not enough stock of 'Oak' to sell 1 (available: 0).")

	require.Equal(t, ExitOK, run("view-sales-history"))
	assert.Contains(t, out.String(), "Total Revenue for Period: $10.00")
}

func TestCLI_OpenStoreFailure(t *testing.T) {
	var errOut bytes.Buffer
	app := &App{Err: &errOut, Config: config.Config{DB: config.DBConfig{Driver: "oracle"}}}

	assert.Equal(t, ExitFailure, app.Run(context.Background(), []string{"list-types"}))
	assert.Contains(t, errOut.String(), "Error opening database")
}

// =============================================================================
// SERVE
// =============================================================================

func TestCLI_ServeStopsWhenContextCancelled(t *testing.T) {
	c := newTestCLI(t)
	c.app.Config.Server.RateLimit = "100-M"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan int, 1)
	go func() { done <- c.app.Run(ctx, []string{"serve", "-addr", "127.0.0.1:0"}) }()

	select {
	case code := <-done:
		assert.Equal(t, ExitOK, code, c.err.String())
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestCLI_ServeRejectsBadRateLimit(t *testing.T) {
	c := newTestCLI(t)
	c.app.Config.Server.RateLimit = "lots"

	code, _, errOut := c.run("serve", "-addr", "127.0.0.1:0")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, errOut, `Starting server failed: invalid rate limit "lots"`)
}
