package order

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
)

// TradeSummary accumulates realized round trips for one symbol. The
// engine is long-only, so a round trip is always an entry buy closed by
// a sell (signal exit or stop).
type TradeSummary struct {
	Symbol string

	mu          sync.Mutex
	wins        []float64
	winsPct     []float64
	losses      []float64
	lossesPct   []float64
	quoteVolume float64
}

// NewTradeSummary returns an empty summary for symbol.
func NewTradeSummary(symbol string) *TradeSummary {
	return &TradeSummary{Symbol: symbol}
}

// RecordRoundTrip books one closed trade.
func (s *TradeSummary) RecordRoundTrip(entryPrice, exitPrice, amount float64) {
	if entryPrice <= 0 || amount <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profit := (exitPrice - entryPrice) * amount
	pct := (exitPrice - entryPrice) / entryPrice * 100
	s.quoteVolume += (entryPrice + exitPrice) * amount

	if profit >= 0 {
		s.wins = append(s.wins, profit)
		s.winsPct = append(s.winsPct, pct)
	} else {
		s.losses = append(s.losses, profit)
		s.lossesPct = append(s.lossesPct, pct)
	}
}

// Trades returns the number of closed round trips.
func (s *TradeSummary) Trades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wins) + len(s.losses)
}

// Profit returns the total realized profit in quote currency.
func (s *TradeSummary) Profit() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sum(s.wins) + sum(s.losses)
}

// WinPercentage returns the share of winning trades.
func (s *TradeSummary) WinPercentage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.wins) + len(s.losses)
	if total == 0 {
		return 0
	}
	return float64(len(s.wins)) / float64(total) * 100
}

// Payoff returns the ratio of average win to average loss.
func (s *TradeSummary) Payoff() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.winsPct) == 0 || len(s.lossesPct) == 0 {
		return 0
	}
	avgLoss := sum(s.lossesPct) / float64(len(s.lossesPct))
	if avgLoss == 0 {
		return 0
	}
	avgWin := sum(s.winsPct) / float64(len(s.winsPct))
	return avgWin / math.Abs(avgLoss)
}

// ProfitFactor returns gross profit over gross loss.
func (s *TradeSummary) ProfitFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	grossLoss := sum(s.lossesPct)
	if grossLoss == 0 {
		return 0
	}
	return sum(s.winsPct) / math.Abs(grossLoss)
}

// SQN returns sqrt(n) * mean / stddev over all trade profits.
func (s *TradeSummary) SQN() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(append([]float64{}, s.wins...), s.losses...)
	n := float64(len(all))
	if n == 0 {
		return 0
	}

	mean := (sum(s.wins) + sum(s.losses)) / n
	variance := 0.0
	for _, p := range all {
		variance += (p - mean) * (p - mean)
	}
	stdDev := math.Sqrt(variance / n)
	if stdDev == 0 {
		return 0
	}
	return math.Sqrt(n) * (mean / stdDev)
}

// String renders the summary as a text table.
func (s *TradeSummary) String() string {
	builder := &strings.Builder{}
	table := tablewriter.NewWriter(builder)

	data := [][]string{
		{"Symbol", s.Symbol},
		{"Trades", strconv.Itoa(s.Trades())},
		{"% Win", fmt.Sprintf("%.1f", s.WinPercentage())},
		{"Payoff", fmt.Sprintf("%.2f", s.Payoff())},
		{"Pr.Fact", fmt.Sprintf("%.2f", s.ProfitFactor())},
		{"SQN", fmt.Sprintf("%.2f", s.SQN())},
		{"Profit", fmt.Sprintf("%.4f USDT", s.Profit())},
		{"Volume", fmt.Sprintf("%.4f USDT", s.volume())},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return builder.String()
}

func (s *TradeSummary) volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteVolume
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
