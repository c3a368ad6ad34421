/*
main.go - Application entry point

PURPOSE:
  Runs one greengrow command against the configured ledger store.

STARTUP SEQUENCE:
  1. Load .env and environment configuration
  2. Parse global flags and the command
  3. Open the store (SQLite file or PostgreSQL) and apply its schema
  4. Run the command, print its result, exit with its status

GLOBAL FLAGS:
  -db      SQLite database path (default: store.db, env GREENGROW_DB_PATH)
           Use ":memory:" for an in-memory database
  -driver  sqlite or postgres (env GREENGROW_DB_DRIVER)

EXAMPLES:
  greengrow init
  greengrow add-type "Douglas Fir" 4.50 -d "Pseudotsuga menziesii"
  greengrow add-location "Greenhouse A"
  greengrow add-stock 1 1 200 -c 1.10
  greengrow record-sale 1 25
  greengrow view-sales-history -s 2024-03-01 -e 2024-03-31
  greengrow serve -addr :8080

GRACEFUL SHUTDOWN:
  SIGINT/SIGTERM cancel the command context; `serve` drains active
  requests before the store is closed.

SEE ALSO:
  - cli/app.go: Command dispatch
  - config/config.go: Environment variables
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jefferson57-lab/greengrow-manager/cli"
	"github.com/jefferson57-lab/greengrow-manager/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	app := &cli.App{
		Out:    os.Stdout,
		Err:    os.Stderr,
		Config: config.Load(),
	}
	code := app.Run(ctx, os.Args[1:])

	stop()
	os.Exit(code)
}
