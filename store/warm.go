package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lcerda/tidebot/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// BarRow is the warm-tier table: one row per (symbol, timeframe, timestamp).
type BarRow struct {
	Symbol    string  `gorm:"column:symbol;primaryKey"`
	Timeframe string  `gorm:"column:timeframe;primaryKey"`
	Timestamp int64   `gorm:"column:timestamp;primaryKey;autoIncrement:false;index:idx_bars_ts"`
	Open      float64 `gorm:"column:open"`
	High      float64 `gorm:"column:high"`
	Low       float64 `gorm:"column:low"`
	Close     float64 `gorm:"column:close"`
	Volume    float64 `gorm:"column:volume"`
}

// TableName sets the warm-tier table name.
func (BarRow) TableName() string { return "bars" }

func (r BarRow) bar() core.Bar {
	return core.Bar{
		Timestamp: r.Timestamp,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

func rowFromBar(symbol, timeframe string, b core.Bar) BarRow {
	return BarRow{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

// WarmStore is the indexed on-disk tier backed by SQLite via GORM.
type WarmStore struct {
	db *gorm.DB
}

// SQLConfig holds connection pool settings for the on-disk tiers.
type SQLConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLConfig returns the default pool configuration.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
	}
}

// NewWarmStore opens (or creates) the warm tier at dbPath.
func NewWarmStore(dbPath string, config SQLConfig) (*WarmStore, error) {
	db, err := openSQLite(dbPath, config)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&BarRow{}); err != nil {
		return nil, fmt.Errorf("failed to run warm tier migrations: %w", err)
	}
	return &WarmStore{db: db}, nil
}

func openSQLite(dbPath string, config SQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	return db, nil
}

// Insert stores bars, ignoring rows whose primary key already exists.
func (w *WarmStore) Insert(ctx context.Context, symbol, timeframe string, bars []core.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		rows[i] = rowFromBar(symbol, timeframe, b)
	}

	result := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 500)
	if result.Error != nil {
		return fmt.Errorf("failed to insert bars: %w", result.Error)
	}
	return nil
}

// Upsert stores bars, replacing rows whose primary key already exists.
// Used for the in-progress bar which is rewritten until it closes.
func (w *WarmStore) Upsert(ctx context.Context, symbol, timeframe string, bars []core.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		rows[i] = rowFromBar(symbol, timeframe, b)
	}

	result := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(rows, 500)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert bars: %w", result.Error)
	}
	return nil
}

// Last returns up to limit most recent bars in chronological order.
func (w *WarmStore) Last(ctx context.Context, symbol, timeframe string, limit int) ([]core.Bar, error) {
	var rows []BarRow
	result := w.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query bars: %w", result.Error)
	}

	bars := make([]core.Bar, len(rows))
	for i, r := range rows {
		bars[len(rows)-1-i] = r.bar()
	}
	return bars, nil
}

// Since returns all bars with timestamp >= cutoffMs in chronological order.
func (w *WarmStore) Since(ctx context.Context, symbol, timeframe string, cutoffMs int64) ([]core.Bar, error) {
	var rows []BarRow
	result := w.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND timestamp >= ?", symbol, timeframe, cutoffMs).
		Order("timestamp ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query bars: %w", result.Error)
	}

	bars := make([]core.Bar, len(rows))
	for i, r := range rows {
		bars[i] = r.bar()
	}
	return bars, nil
}

// Count returns the number of stored bars for the series.
func (w *WarmStore) Count(ctx context.Context, symbol, timeframe string) (int64, error) {
	var count int64
	result := w.db.WithContext(ctx).
		Model(&BarRow{}).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count bars: %w", result.Error)
	}
	return count, nil
}

// Close closes the underlying database.
func (w *WarmStore) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
