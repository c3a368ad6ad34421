/*
Package gormstore provides a GORM-backed implementation of ledger.TxStore.

PURPOSE:
  Server deployments that share one ledger between several greengrow
  processes keep it in PostgreSQL. GORM maps the four ledger tables and
  AutoMigrate creates them on startup.

ROW LOCKING:
  Inside WithTx every read of a tree type or lot is issued with
  SELECT ... FOR UPDATE. Two concurrent sales of the same tree type
  therefore queue on the lot rows instead of both reading the same
  quantity. The SQLite dialect drops the locking clause; tests that use
  it rely on the single connection instead.

FOREIGN KEYS:
  stock and transactions reference their tree type and location with
  ON DELETE RESTRICT, matching the SQLite schema.

ERRORS:
  The dialect's error translator turns unique violations into
  gorm.ErrDuplicatedKey, which is reported as ledger.ErrDuplicateName.
*/
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

// =============================================================================
// RECORDS
// =============================================================================

// Money columns are unconstrained numeric so stored values match the
// decimal the ledger computed, with no rounding on write.

type TreeTypeRecord struct {
	ID            int64           `gorm:"primaryKey"`
	Name          string          `gorm:"uniqueIndex;not null"`
	Description   *string
	BaseUnitPrice decimal.Decimal `gorm:"type:numeric;not null"`
}

func (TreeTypeRecord) TableName() string { return "tree_types" }

type LocationRecord struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description *string
}

func (LocationRecord) TableName() string { return "locations" }

type StockRecord struct {
	ID              int64           `gorm:"primaryKey"`
	TreeTypeID      int64           `gorm:"not null;index:idx_stock_type_added,priority:1"`
	LocationID      int64           `gorm:"not null;index"`
	Quantity        int             `gorm:"not null;check:chk_stock_quantity,quantity >= 0"`
	CostPerSeedling decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	DateAdded       time.Time       `gorm:"not null;index:idx_stock_type_added,priority:2"`

	// Belongs-to, only for the foreign keys. Never loaded.
	TreeType TreeTypeRecord `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	Location LocationRecord `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
}

func (StockRecord) TableName() string { return "stock" }

type TransactionRecord struct {
	ID                        int64           `gorm:"primaryKey"`
	TreeTypeID                int64           `gorm:"not null;index"`
	QuantitySold              int             `gorm:"not null;check:chk_transactions_quantity,quantity_sold > 0"`
	UnitSalePriceAtTimeOfSale decimal.Decimal `gorm:"type:numeric;not null"`
	TotalAmount               decimal.Decimal `gorm:"type:numeric;not null"`
	TransactionDate           time.Time       `gorm:"not null;index"`

	TreeType TreeTypeRecord `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
}

func (TransactionRecord) TableName() string { return "transactions" }

// =============================================================================
// STORE
// =============================================================================

// Store implements ledger.TxStore on top of a *gorm.DB.
type Store struct {
	db *gorm.DB

	// locking is set on the Store handed to WithTx callbacks.
	locking bool
}

var _ ledger.TxStore = (*Store)(nil)

// Config controls how the connection is opened.
type Config struct {
	// Debug logs every SQL statement.
	Debug bool
}

// Open connects to PostgreSQL with the given DSN and migrates the schema.
func Open(dsn string, cfg Config) (*Store, error) {
	return New(postgres.Open(dsn), cfg)
}

// New opens the database behind dialector and migrates the schema.
func New(dialector gorm.Dialector, cfg Config) (*Store, error) {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "[gorm] ", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&TreeTypeRecord{},
		&LocationRecord{},
		&StockRecord{},
		&TransactionRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection for health checks and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside one database transaction. gorm rolls back when fn
// returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, locking: true})
	})
	return ledger.NewStoreError("transaction", err)
}

// read returns a query handle, row-locked inside a transaction.
func (s *Store) read(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if s.locking {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// =============================================================================
// TREE TYPES
// =============================================================================

func (s *Store) CreateTreeType(ctx context.Context, tt *ledger.TreeType) error {
	rec := TreeTypeRecord{
		Name:          tt.Name,
		Description:   optional(tt.Description),
		BaseUnitPrice: tt.BasePrice,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return mapError("create tree type", err)
	}
	tt.ID = ledger.TreeTypeID(rec.ID)
	return nil
}

func (s *Store) GetTreeType(ctx context.Context, id ledger.TreeTypeID) (ledger.TreeType, error) {
	var rec TreeTypeRecord
	err := s.read(ctx).Take(&rec, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.TreeType{}, &ledger.NotFoundError{Kind: ledger.KindTreeType, ID: int64(id)}
	}
	if err != nil {
		return ledger.TreeType{}, ledger.NewStoreError("get tree type", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) ListTreeTypes(ctx context.Context) ([]ledger.TreeType, error) {
	var recs []TreeTypeRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, ledger.NewStoreError("list tree types", err)
	}
	types := make([]ledger.TreeType, 0, len(recs))
	for _, rec := range recs {
		types = append(types, rec.toDomain())
	}
	return types, nil
}

// =============================================================================
// LOCATIONS
// =============================================================================

func (s *Store) CreateLocation(ctx context.Context, loc *ledger.Location) error {
	rec := LocationRecord{Name: loc.Name, Description: optional(loc.Description)}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return mapError("create location", err)
	}
	loc.ID = ledger.LocationID(rec.ID)
	return nil
}

func (s *Store) GetLocation(ctx context.Context, id ledger.LocationID) (ledger.Location, error) {
	var rec LocationRecord
	err := s.read(ctx).Take(&rec, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Location{}, &ledger.NotFoundError{Kind: ledger.KindLocation, ID: int64(id)}
	}
	if err != nil {
		return ledger.Location{}, ledger.NewStoreError("get location", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) ListLocations(ctx context.Context) ([]ledger.Location, error) {
	var recs []LocationRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, ledger.NewStoreError("list locations", err)
	}
	locations := make([]ledger.Location, 0, len(recs))
	for _, rec := range recs {
		locations = append(locations, rec.toDomain())
	}
	return locations, nil
}

// =============================================================================
// STOCK
// =============================================================================

var errNegativeQuantity = errors.New("quantity cannot be negative")

func (s *Store) CreateStock(ctx context.Context, st *ledger.Stock) error {
	if _, err := s.GetTreeType(ctx, st.TreeTypeID); err != nil {
		return err
	}
	if _, err := s.GetLocation(ctx, st.LocationID); err != nil {
		return err
	}
	if st.Quantity < 0 {
		return ledger.NewStoreError("create stock", errNegativeQuantity)
	}

	rec := StockRecord{
		TreeTypeID:      int64(st.TreeTypeID),
		LocationID:      int64(st.LocationID),
		Quantity:        st.Quantity,
		CostPerSeedling: st.CostPerUnit,
		DateAdded:       st.AddedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&rec).Error; err != nil {
		return mapError("create stock", err)
	}
	st.ID = ledger.StockID(rec.ID)
	return nil
}

func (s *Store) GetStock(ctx context.Context, id ledger.StockID) (ledger.Stock, error) {
	var rec StockRecord
	err := s.read(ctx).Take(&rec, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Stock{}, &ledger.NotFoundError{Kind: ledger.KindStock, ID: int64(id)}
	}
	if err != nil {
		return ledger.Stock{}, ledger.NewStoreError("get stock", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) UpdateStockQuantity(ctx context.Context, id ledger.StockID, quantity int) error {
	if quantity < 0 {
		return ledger.NewStoreError("update stock", errNegativeQuantity)
	}
	res := s.db.WithContext(ctx).Model(&StockRecord{}).Where("id = ?", int64(id)).Update("quantity", quantity)
	if res.Error != nil {
		return mapError("update stock", res.Error)
	}
	if res.RowsAffected == 0 {
		return &ledger.NotFoundError{Kind: ledger.KindStock, ID: int64(id)}
	}
	return nil
}

func (s *Store) FindStock(ctx context.Context, q ledger.StockQuery) ([]ledger.Stock, error) {
	db := s.read(ctx).Model(&StockRecord{})
	if q.TreeTypeID != nil {
		db = db.Where("tree_type_id = ?", int64(*q.TreeTypeID))
	}
	if q.LocationID != nil {
		db = db.Where("location_id = ?", int64(*q.LocationID))
	}
	if q.OnlyPositive {
		db = db.Where("quantity > 0")
	}
	switch q.Order {
	case ledger.OrderFIFO:
		db = db.Order("date_added ASC").Order("id ASC")
	default:
		db = db.Order("id ASC")
	}

	var recs []StockRecord
	if err := db.Find(&recs).Error; err != nil {
		return nil, ledger.NewStoreError("find stock", err)
	}
	lots := make([]ledger.Stock, 0, len(recs))
	for _, rec := range recs {
		lots = append(lots, rec.toDomain())
	}
	return lots, nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if _, err := s.GetTreeType(ctx, tx.TreeTypeID); err != nil {
		return err
	}

	rec := TransactionRecord{
		TreeTypeID:                int64(tx.TreeTypeID),
		QuantitySold:              tx.QuantitySold,
		UnitSalePriceAtTimeOfSale: tx.UnitPrice,
		TotalAmount:               tx.TotalAmount,
		TransactionDate:           tx.SoldAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&rec).Error; err != nil {
		return mapError("create transaction", err)
	}
	tx.ID = ledger.TransactionID(rec.ID)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error) {
	db := s.db.WithContext(ctx).Model(&TransactionRecord{})
	if q.From != nil {
		db = db.Where("transaction_date >= ?", q.From.UTC())
	}
	if q.Until != nil {
		db = db.Where("transaction_date < ?", q.Until.UTC())
	}

	var recs []TransactionRecord
	if err := db.Order("transaction_date DESC").Order("id DESC").Find(&recs).Error; err != nil {
		return nil, ledger.NewStoreError("list transactions", err)
	}
	txs := make([]ledger.Transaction, 0, len(recs))
	for _, rec := range recs {
		txs = append(txs, rec.toDomain())
	}
	return txs, nil
}

// =============================================================================
// MAPPING
// =============================================================================

func (r TreeTypeRecord) toDomain() ledger.TreeType {
	return ledger.TreeType{
		ID:          ledger.TreeTypeID(r.ID),
		Name:        r.Name,
		Description: deref(r.Description),
		BasePrice:   r.BaseUnitPrice,
	}
}

func (r LocationRecord) toDomain() ledger.Location {
	return ledger.Location{
		ID:          ledger.LocationID(r.ID),
		Name:        r.Name,
		Description: deref(r.Description),
	}
}

func (r StockRecord) toDomain() ledger.Stock {
	return ledger.Stock{
		ID:          ledger.StockID(r.ID),
		TreeTypeID:  ledger.TreeTypeID(r.TreeTypeID),
		LocationID:  ledger.LocationID(r.LocationID),
		Quantity:    r.Quantity,
		CostPerUnit: r.CostPerSeedling,
		AddedAt:     r.DateAdded.UTC(),
	}
}

func (r TransactionRecord) toDomain() ledger.Transaction {
	return ledger.Transaction{
		ID:           ledger.TransactionID(r.ID),
		TreeTypeID:   ledger.TreeTypeID(r.TreeTypeID),
		QuantitySold: r.QuantitySold,
		UnitPrice:    r.UnitSalePriceAtTimeOfSale,
		TotalAmount:  r.TotalAmount,
		SoldAt:       r.TransactionDate.UTC(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mapError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ledger.ErrDuplicateName
	}
	return ledger.NewStoreError(op, err)
}
