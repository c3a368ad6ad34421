/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  The default, file-backed Entity Store for the greengrow CLI. One file
  holds the four ledger tables: tree_types, locations, stock, transactions.

APPEND-ONLY ENFORCEMENT:
  Sales are never changed after insert:
  - No UPDATE or DELETE statements on the transactions table
  - Triggers abort any UPDATE/DELETE that reaches the table anyway

CONCURRENCY:
  - One database connection (SetMaxOpenConns(1))
  - sync.RWMutex around every call; WithTx holds the write lock for the
    whole unit of work
  - _txlock=immediate so BEGIN takes the file's write lock. A second
    process sharing the file waits (busy_timeout) instead of racing a
    lost update on the same lot.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

MIGRATION:
  Schema is versioned with golang-migrate. Migrations live in
  migrations/ and are embedded into the binary; New() applies any that
  are pending.

USAGE:
  store, err := sqlite.New("./store.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.NewLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed-width so text comparison matches time order.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.TxStore = (*Store)(nil)

// New opens (creating if needed) the SQLite database at dbPath and applies
// pending migrations. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	// Not closed: closing the migrate driver closes s.db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	return version, err
}

// =============================================================================
// LOCKED ENTRY POINTS (ledger.Store interface)
// =============================================================================

func (s *Store) conn() *conn { return &conn{q: s.db} }

func (s *Store) CreateTreeType(ctx context.Context, tt *ledger.TreeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateTreeType(ctx, tt)
}

func (s *Store) GetTreeType(ctx context.Context, id ledger.TreeTypeID) (ledger.TreeType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetTreeType(ctx, id)
}

func (s *Store) ListTreeTypes(ctx context.Context) ([]ledger.TreeType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListTreeTypes(ctx)
}

func (s *Store) CreateLocation(ctx context.Context, loc *ledger.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateLocation(ctx, loc)
}

func (s *Store) GetLocation(ctx context.Context, id ledger.LocationID) (ledger.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetLocation(ctx, id)
}

func (s *Store) ListLocations(ctx context.Context) ([]ledger.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListLocations(ctx)
}

func (s *Store) CreateStock(ctx context.Context, st *ledger.Stock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateStock(ctx, st)
}

func (s *Store) GetStock(ctx context.Context, id ledger.StockID) (ledger.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetStock(ctx, id)
}

func (s *Store) UpdateStockQuantity(ctx context.Context, id ledger.StockID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpdateStockQuantity(ctx, id, quantity)
}

func (s *Store) FindStock(ctx context.Context, q ledger.StockQuery) ([]ledger.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().FindStock(ctx, q)
}

func (s *Store) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateTransaction(ctx, tx)
}

func (s *Store) ListTransactions(ctx context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListTransactions(ctx, q)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// The deferred Rollback also covers a panic inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.NewStoreError("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return ledger.NewStoreError("commit transaction", err)
	}
	return nil
}

// =============================================================================
// CONN - Queries shared by *sql.DB and *sql.Tx
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs queries without locking. Callers hold Store.mu.
type conn struct {
	q queryer
}

// --- tree types ---

func (c *conn) CreateTreeType(ctx context.Context, tt *ledger.TreeType) error {
	res, err := c.q.ExecContext(ctx,
		"INSERT INTO tree_types (name, description, base_unit_price) VALUES (?, ?, ?)",
		tt.Name, nullString(tt.Description), tt.BasePrice.String(),
	)
	if err != nil {
		return mapError("create tree type", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.NewStoreError("create tree type", err)
	}
	tt.ID = ledger.TreeTypeID(id)
	return nil
}

func (c *conn) GetTreeType(ctx context.Context, id ledger.TreeTypeID) (ledger.TreeType, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT id, name, description, base_unit_price FROM tree_types WHERE id = ?", id)
	tt, err := scanTreeType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TreeType{}, &ledger.NotFoundError{Kind: ledger.KindTreeType, ID: int64(id)}
	}
	if err != nil {
		return ledger.TreeType{}, ledger.NewStoreError("get tree type", err)
	}
	return tt, nil
}

func (c *conn) ListTreeTypes(ctx context.Context) ([]ledger.TreeType, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, description, base_unit_price FROM tree_types ORDER BY id")
	if err != nil {
		return nil, ledger.NewStoreError("list tree types", err)
	}
	defer rows.Close()

	var types []ledger.TreeType
	for rows.Next() {
		tt, err := scanTreeType(rows)
		if err != nil {
			return nil, ledger.NewStoreError("list tree types", err)
		}
		types = append(types, tt)
	}
	return types, ledger.NewStoreError("list tree types", rows.Err())
}

// --- locations ---

func (c *conn) CreateLocation(ctx context.Context, loc *ledger.Location) error {
	res, err := c.q.ExecContext(ctx,
		"INSERT INTO locations (name, description) VALUES (?, ?)",
		loc.Name, nullString(loc.Description),
	)
	if err != nil {
		return mapError("create location", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.NewStoreError("create location", err)
	}
	loc.ID = ledger.LocationID(id)
	return nil
}

func (c *conn) GetLocation(ctx context.Context, id ledger.LocationID) (ledger.Location, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT id, name, description FROM locations WHERE id = ?", id)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Location{}, &ledger.NotFoundError{Kind: ledger.KindLocation, ID: int64(id)}
	}
	if err != nil {
		return ledger.Location{}, ledger.NewStoreError("get location", err)
	}
	return loc, nil
}

func (c *conn) ListLocations(ctx context.Context) ([]ledger.Location, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT id, name, description FROM locations ORDER BY id")
	if err != nil {
		return nil, ledger.NewStoreError("list locations", err)
	}
	defer rows.Close()

	var locations []ledger.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, ledger.NewStoreError("list locations", err)
		}
		locations = append(locations, loc)
	}
	return locations, ledger.NewStoreError("list locations", rows.Err())
}

// --- stock ---

const stockColumns = "id, tree_type_id, location_id, quantity, cost_per_seedling, date_added"

func (c *conn) CreateStock(ctx context.Context, st *ledger.Stock) error {
	// Typed NotFound instead of a bare FOREIGN KEY constraint failure.
	if _, err := c.GetTreeType(ctx, st.TreeTypeID); err != nil {
		return err
	}
	if _, err := c.GetLocation(ctx, st.LocationID); err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx,
		"INSERT INTO stock (tree_type_id, location_id, quantity, cost_per_seedling, date_added) VALUES (?, ?, ?, ?, ?)",
		st.TreeTypeID, st.LocationID, st.Quantity, st.CostPerUnit.String(), formatTime(st.AddedAt),
	)
	if err != nil {
		return mapError("create stock", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.NewStoreError("create stock", err)
	}
	st.ID = ledger.StockID(id)
	return nil
}

func (c *conn) GetStock(ctx context.Context, id ledger.StockID) (ledger.Stock, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+stockColumns+" FROM stock WHERE id = ?", id)
	st, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Stock{}, &ledger.NotFoundError{Kind: ledger.KindStock, ID: int64(id)}
	}
	if err != nil {
		return ledger.Stock{}, ledger.NewStoreError("get stock", err)
	}
	return st, nil
}

func (c *conn) UpdateStockQuantity(ctx context.Context, id ledger.StockID, quantity int) error {
	res, err := c.q.ExecContext(ctx, "UPDATE stock SET quantity = ? WHERE id = ?", quantity, id)
	if err != nil {
		return mapError("update stock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.NewStoreError("update stock", err)
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: ledger.KindStock, ID: int64(id)}
	}
	return nil
}

func (c *conn) FindStock(ctx context.Context, q ledger.StockQuery) ([]ledger.Stock, error) {
	var (
		where []string
		args  []any
	)
	if q.TreeTypeID != nil {
		where = append(where, "tree_type_id = ?")
		args = append(args, *q.TreeTypeID)
	}
	if q.LocationID != nil {
		where = append(where, "location_id = ?")
		args = append(args, *q.LocationID)
	}
	if q.OnlyPositive {
		where = append(where, "quantity > 0")
	}

	query := "SELECT " + stockColumns + " FROM stock"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch q.Order {
	case ledger.OrderFIFO:
		query += " ORDER BY date_added ASC, id ASC"
	default:
		query += " ORDER BY id ASC"
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.NewStoreError("find stock", err)
	}
	defer rows.Close()

	var lots []ledger.Stock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, ledger.NewStoreError("find stock", err)
		}
		lots = append(lots, st)
	}
	return lots, ledger.NewStoreError("find stock", rows.Err())
}

// --- transactions ---

const transactionColumns = "id, tree_type_id, quantity_sold, unit_sale_price_at_time_of_sale, total_amount, transaction_date"

func (c *conn) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if _, err := c.GetTreeType(ctx, tx.TreeTypeID); err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx,
		"INSERT INTO transactions (tree_type_id, quantity_sold, unit_sale_price_at_time_of_sale, total_amount, transaction_date) VALUES (?, ?, ?, ?, ?)",
		tx.TreeTypeID, tx.QuantitySold, tx.UnitPrice.String(), tx.TotalAmount.String(), formatTime(tx.SoldAt),
	)
	if err != nil {
		return mapError("create transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.NewStoreError("create transaction", err)
	}
	tx.ID = ledger.TransactionID(id)
	return nil
}

func (c *conn) ListTransactions(ctx context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if q.From != nil {
		where = append(where, "transaction_date >= ?")
		args = append(args, formatTime(*q.From))
	}
	if q.Until != nil {
		where = append(where, "transaction_date < ?")
		args = append(args, formatTime(*q.Until))
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_date DESC, id DESC"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.NewStoreError("list transactions", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, ledger.NewStoreError("list transactions", err)
		}
		txs = append(txs, tx)
	}
	return txs, ledger.NewStoreError("list transactions", rows.Err())
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanTreeType(row scanner) (ledger.TreeType, error) {
	var (
		tt          ledger.TreeType
		description sql.NullString
		price       string
	)
	if err := row.Scan(&tt.ID, &tt.Name, &description, &price); err != nil {
		return tt, err
	}
	tt.Description = description.String
	var err error
	tt.BasePrice, err = decimal.NewFromString(price)
	return tt, err
}

func scanLocation(row scanner) (ledger.Location, error) {
	var (
		loc         ledger.Location
		description sql.NullString
	)
	if err := row.Scan(&loc.ID, &loc.Name, &description); err != nil {
		return loc, err
	}
	loc.Description = description.String
	return loc, nil
}

func scanStock(row scanner) (ledger.Stock, error) {
	var (
		st      ledger.Stock
		cost    string
		addedAt string
	)
	if err := row.Scan(&st.ID, &st.TreeTypeID, &st.LocationID, &st.Quantity, &cost, &addedAt); err != nil {
		return st, err
	}
	var err error
	if st.CostPerUnit, err = decimal.NewFromString(cost); err != nil {
		return st, err
	}
	st.AddedAt, err = parseTime(addedAt)
	return st, err
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var (
		tx     ledger.Transaction
		price  string
		total  string
		soldAt string
	)
	if err := row.Scan(&tx.ID, &tx.TreeTypeID, &tx.QuantitySold, &price, &total, &soldAt); err != nil {
		return tx, err
	}
	var err error
	if tx.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return tx, err
	}
	if tx.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return tx, err
	}
	tx.SoldAt, err = parseTime(soldAt)
	return tx, err
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// mapError turns unique-name violations into ledger.ErrDuplicateName.
func mapError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ledger.ErrDuplicateName
	}
	return ledger.NewStoreError(op, err)
}
