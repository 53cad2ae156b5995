package core

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV candle. Timestamp is the bar-open time in
// milliseconds UTC.
type Bar struct {
	Timestamp int64   `gorm:"column:timestamp;primaryKey;autoIncrement:false" json:"timestamp"`
	Open      float64 `gorm:"column:open" json:"open"`
	High      float64 `gorm:"column:high" json:"high"`
	Low       float64 `gorm:"column:low" json:"low"`
	Close     float64 `gorm:"column:close" json:"close"`
	Volume    float64 `gorm:"column:volume" json:"volume"`
}

// Time returns the bar-open time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// IsEmpty reports whether the bar carries no data.
func (b Bar) IsEmpty() bool {
	return b.Timestamp == 0 && b.Open == 0 && b.Close == 0 && b.Volume == 0
}

// String returns a human-readable representation of the bar.
func (b Bar) String() string {
	return fmt.Sprintf("%s O:%f H:%f L:%f C:%f V:%f",
		b.Time().Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// Ticker is a point-in-time market quote.
type Ticker struct {
	Last          float64
	High          float64
	Low           float64
	Volume        float64
	ChangePercent float64
}

// Balance carries the free quote currency available for trading.
type Balance struct {
	FreeUSDT float64
}
