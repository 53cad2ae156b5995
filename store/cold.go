package store

import (
	"context"
	"fmt"

	"github.com/lcerda/tidebot/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggBarRow is the cold-tier table: downsampled bars annotated with their
// source timeframe and how many source bars each row folds.
type AggBarRow struct {
	Symbol           string  `gorm:"column:symbol;primaryKey"`
	Timeframe        string  `gorm:"column:timeframe;primaryKey"`
	Timestamp        int64   `gorm:"column:timestamp;primaryKey;autoIncrement:false;index:idx_bars_agg_ts"`
	SourceTimeframe  string  `gorm:"column:source_timeframe"`
	AggregationCount int     `gorm:"column:aggregation_count"`
	Open             float64 `gorm:"column:open"`
	High             float64 `gorm:"column:high"`
	Low              float64 `gorm:"column:low"`
	Close            float64 `gorm:"column:close"`
	Volume           float64 `gorm:"column:volume"`
}

// TableName sets the cold-tier table name.
func (AggBarRow) TableName() string { return "bars_agg" }

// ColdStore is the downsampled on-disk tier.
type ColdStore struct {
	db *gorm.DB
}

// NewColdStore opens (or creates) the cold tier at dbPath.
func NewColdStore(dbPath string, config SQLConfig) (*ColdStore, error) {
	db, err := openSQLite(dbPath, config)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&AggBarRow{}); err != nil {
		return nil, fmt.Errorf("failed to run cold tier migrations: %w", err)
	}
	return &ColdStore{db: db}, nil
}

// Insert stores aggregated rows, ignoring existing primary keys so that
// re-running an aggregation is idempotent.
func (c *ColdStore) Insert(ctx context.Context, rows []AggBarRow) error {
	if len(rows) == 0 {
		return nil
	}
	result := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 500)
	if result.Error != nil {
		return fmt.Errorf("failed to insert aggregated bars: %w", result.Error)
	}
	return nil
}

// Since returns aggregated bars with timestamp >= cutoffMs in chronological order.
func (c *ColdStore) Since(ctx context.Context, symbol, timeframe string, cutoffMs int64) ([]core.Bar, error) {
	var rows []AggBarRow
	result := c.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND timestamp >= ?", symbol, timeframe, cutoffMs).
		Order("timestamp ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query aggregated bars: %w", result.Error)
	}

	bars := make([]core.Bar, len(rows))
	for i, r := range rows {
		bars[i] = core.Bar{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars, nil
}

// Close closes the underlying database.
func (c *ColdStore) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// AggregateBars folds contiguous windows of source bars into destination
// bars. Pure: no I/O, deterministic for a given input. Windows covering less
// than minCoverage of the expected source bars are dropped.
func AggregateBars(src []core.Bar, srcDur, dstDur int64, minCoverage float64) []aggWindow {
	if len(src) == 0 || srcDur <= 0 || dstDur <= 0 || dstDur%srcDur != 0 {
		return nil
	}
	perWindow := int(dstDur / srcDur)

	var out []aggWindow
	var cur *aggWindow
	for _, b := range src {
		bucket := b.Timestamp - (b.Timestamp % dstDur)
		if cur == nil || cur.bar.Timestamp != bucket {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &aggWindow{
				bar: core.Bar{
					Timestamp: bucket,
					Open:      b.Open,
					High:      b.High,
					Low:       b.Low,
					Close:     b.Close,
					Volume:    b.Volume,
				},
				count: 1,
			}
			continue
		}

		if b.High > cur.bar.High {
			cur.bar.High = b.High
		}
		if b.Low < cur.bar.Low {
			cur.bar.Low = b.Low
		}
		cur.bar.Close = b.Close
		cur.bar.Volume += b.Volume
		cur.count++
	}
	if cur != nil {
		out = append(out, *cur)
	}

	required := int(float64(perWindow) * minCoverage)
	if required < 1 {
		required = 1
	}
	kept := out[:0]
	for _, w := range out {
		if w.count >= required {
			kept = append(kept, w)
		}
	}
	return kept
}

// aggWindow pairs an aggregated bar with the number of source bars folded.
type aggWindow struct {
	bar   core.Bar
	count int
}
