/*
Package cli implements the greengrow command-line interface.

PURPOSE:
  Parses `greengrow [global flags] <command> [args]`, opens the configured
  store, runs one ledger operation and prints the result.

EXIT STATUS:
  0  success
  1  the operation failed (not found, insufficient stock, store error)
  2  usage error (unknown command, wrong arguments, bad flag)

OUTPUT:
  Success messages and tables go to Out; errors go to Err as
  "Error: ..." lines. Timestamps are printed in Location (default
  time.Local); money is printed as $0.00.

SEE ALSO:
  - commands.go: One function per command
  - table.go: Table rendering
  - serve.go: The HTTP server command
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jefferson57-lab/greengrow-manager/config"
	"github.com/jefferson57-lab/greengrow-manager/ledger"
	"github.com/jefferson57-lab/greengrow-manager/store"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// App holds the CLI's dependencies. Fields left nil get defaults in Run.
type App struct {
	Out io.Writer
	Err io.Writer

	Config config.Config

	// OpenStore opens the ledger backend. Defaults to store.Open.
	OpenStore func(config.DBConfig) (store.Backend, error)

	// Clock stamps new lots and sales. Defaults to time.Now.
	Clock func() time.Time

	// Location is the zone for printed timestamps and date filters.
	Location *time.Location
}

// command is one subcommand. run receives the arguments after the name.
type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, a *App, l *ledger.Ledger, args []string) error
}

var commands = map[string]command{
	"init":               {"init", "Initializes the database and creates all tables.", runInit},
	"add-type":           {"add-type NAME BASE_PRICE [-d DESCRIPTION]", "Add a new tree seedling type.", runAddType},
	"list-types":         {"list-types", "List all registered tree seedling types.", runListTypes},
	"add-location":       {"add-location NAME [-d DESCRIPTION]", "Add a new storage location.", runAddLocation},
	"list-locations":     {"list-locations", "List all registered storage locations.", runListLocations},
	"add-stock":          {"add-stock TYPE_ID LOCATION_ID QUANTITY [-c COST]", "Add new stock of a seedling type to a location.", runAddStock},
	"move-stock":         {"move-stock FROM_STOCK_ID TO_LOCATION_ID QUANTITY", "Move seedlings from one stock entry to another location.", runMoveStock},
	"view-inventory":     {"view-inventory [-t TYPE_ID] [-l LOCATION_ID]", "View current inventory of seedlings.", runViewInventory},
	"record-sale":        {"record-sale TYPE_ID QUANTITY", "Record a sale of seedlings.", runRecordSale},
	"view-sales-history": {"view-sales-history [-s YYYY-MM-DD] [-e YYYY-MM-DD]", "View past sales transactions.", runViewSalesHistory},
	"serve":              {"serve [-addr :8080]", "Serve the ledger over HTTP.", runServe},
}

// =============================================================================
// ERRORS
// =============================================================================

// usageError is reported with the command's usage line and exit status 2.
type usageError struct {
	cmd string
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(cmd, format string, args ...any) error {
	return &usageError{cmd: cmd, msg: fmt.Sprintf(format, args...)}
}

// failure is an operation error whose message is already user-facing.
type failure struct {
	msg string
	err error
}

func (e *failure) Error() string { return e.msg }
func (e *failure) Unwrap() error { return e.err }

func failf(err error, format string, args ...any) error {
	return &failure{msg: fmt.Sprintf(format, args...), err: err}
}

// =============================================================================
// RUN
// =============================================================================

// Run executes one command line (without the program name) and returns
// the process exit status.
func (a *App) Run(ctx context.Context, args []string) int {
	a.defaults()

	global := flag.NewFlagSet("greengrow", flag.ContinueOnError)
	global.SetOutput(a.Err)
	global.StringVar(&a.Config.DB.Path, "db", a.Config.DB.Path, "SQLite database file")
	global.StringVar(&a.Config.DB.Driver, "driver", a.Config.DB.Driver, "database driver: sqlite or postgres")
	global.Usage = a.printUsage
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	rest := global.Args()
	if len(rest) == 0 {
		a.printUsage()
		return ExitUsage
	}
	name, cmdArgs := rest[0], rest[1:]
	if name == "help" {
		a.printUsage()
		return ExitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(a.Err, "Error: unknown command %q\n\n", name)
		a.printUsage()
		return ExitUsage
	}

	backend, err := a.OpenStore(a.Config.DB)
	if err != nil {
		fmt.Fprintf(a.Err, "Error opening database: %v\n", err)
		return ExitFailure
	}
	defer backend.Close()

	l := ledger.NewLedger(backend)
	l.Clock = a.Clock

	err = cmd.run(ctx, a, l, cmdArgs)
	return a.report(cmd, err)
}

func (a *App) defaults() {
	if a.Out == nil {
		a.Out = io.Discard
	}
	if a.Err == nil {
		a.Err = io.Discard
	}
	if a.OpenStore == nil {
		a.OpenStore = store.Open
	}
	if a.Clock == nil {
		a.Clock = time.Now
	}
	if a.Location == nil {
		a.Location = time.Local
	}
}

func (a *App) report(cmd command, err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, flag.ErrHelp) {
		return ExitOK
	}

	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(a.Err, "Error: %s\nUsage: greengrow %s\n", usage.msg, cmd.usage)
		return ExitUsage
	}
	fmt.Fprintf(a.Err, "Error: %s\n", err.Error())
	return ExitFailure
}

func (a *App) printUsage() {
	fmt.Fprintln(a.Err, "GreenGrow Stock Manager: Manage your seedling inventory and sales.")
	fmt.Fprintln(a.Err)
	fmt.Fprintln(a.Err, "Usage: greengrow [-db FILE] [-driver sqlite|postgres] <command> [args]")
	fmt.Fprintln(a.Err)
	fmt.Fprintln(a.Err, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.Err, "  %-20s %s\n", name, commands[name].summary)
	}
}
