// Package store implements the tiered OHLCV bar store: a hot in-memory ring
// per (symbol, timeframe), a warm indexed SQLite table, and a cold
// downsampled SQLite table.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lcerda/tidebot/core"
	"github.com/samber/lo"
)

// DefaultHotCapacity is one week of 5m bars.
const DefaultHotCapacity = 2016

// AggregationMinCoverage is the minimum share of expected source bars a
// destination bar must fold before it is stored.
const AggregationMinCoverage = 0.8

// Periods accepted by ByPeriod.
var periodDurations = map[string]time.Duration{
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

type warmWrite struct {
	symbol    string
	timeframe string
	bars      []core.Bar
}

// TieredStore coordinates the three tiers. Hot writes are synchronous; warm
// mirroring is asynchronous and best-effort — a warm failure is logged and
// never surfaces to the caller.
type TieredStore struct {
	log      core.Logger
	capacity int

	mu    sync.Mutex
	rings map[string]*hotRing

	warm *WarmStore
	cold *ColdStore

	writeCh chan warmWrite
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a TieredStore.
type Option func(*TieredStore)

// WithWarmTier attaches the warm tier.
func WithWarmTier(w *WarmStore) Option {
	return func(s *TieredStore) { s.warm = w }
}

// WithColdTier attaches the cold tier.
func WithColdTier(c *ColdStore) Option {
	return func(s *TieredStore) { s.cold = c }
}

// WithHotCapacity overrides the per-timeframe hot ring capacity.
func WithHotCapacity(capacity int) Option {
	return func(s *TieredStore) { s.capacity = capacity }
}

// NewTieredStore creates the store and starts the warm mirror writer.
func NewTieredStore(log core.Logger, options ...Option) *TieredStore {
	s := &TieredStore{
		log:      log,
		capacity: DefaultHotCapacity,
		rings:    make(map[string]*hotRing),
		writeCh:  make(chan warmWrite, 256),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}

	s.wg.Add(1)
	go s.mirrorLoop()

	return s
}

func (s *TieredStore) ring(symbol, timeframe string) *hotRing {
	key := symbol + "|" + timeframe
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[key]
	if !ok {
		r = newHotRing(s.capacity)
		s.rings[key] = r
	}
	return r
}

// Append upserts a single bar into the hot tier and queues the warm mirror.
// Equal timestamps overwrite; strictly older timestamps are rejected with
// core.ErrStoreMonotonicity.
func (s *TieredStore) Append(ctx context.Context, symbol, timeframe string, bar core.Bar) error {
	stored, err := s.ring(symbol, timeframe).append(bar)
	if err != nil {
		return err
	}
	if stored {
		s.queueMirror(symbol, timeframe, []core.Bar{bar})
	}
	return nil
}

// Sync ingests a fetched bar series, newest-last. Bars older than the hot
// tail are skipped (a refetch re-delivers history already stored); the tail
// bar is overwritten in place. The whole batch is mirrored to warm.
func (s *TieredStore) Sync(ctx context.Context, symbol, timeframe string, bars []core.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	r := s.ring(symbol, timeframe)

	for _, bar := range bars {
		if _, err := r.append(bar); err != nil && err != core.ErrStoreMonotonicity {
			return err
		}
	}

	s.queueMirror(symbol, timeframe, bars)
	return nil
}

// Bars returns up to limit most recent bars in chronological order,
// falling back to the warm tier when the hot ring holds too few.
func (s *TieredStore) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]core.Bar, error) {
	hot := s.ring(symbol, timeframe).last(limit)
	if len(hot) >= limit || s.warm == nil {
		return hot, nil
	}

	warm, err := s.warm.Last(ctx, symbol, timeframe, limit)
	if err != nil {
		s.log.WithError(err).Warn("warm tier read failed, serving hot only")
		return hot, nil
	}
	return mergeBars(warm, hot, limit), nil
}

// ByPeriod returns all bars inside the named trailing window
// (1h, 4h, 24h, 7d, 30d), spilling to the warm tier when the hot ring does
// not reach back far enough.
func (s *TieredStore) ByPeriod(ctx context.Context, symbol, timeframe, period string) ([]core.Bar, error) {
	dur, ok := periodDurations[period]
	if !ok {
		return nil, fmt.Errorf("unknown period %q", period)
	}
	cutoff := time.Now().Add(-dur).UnixMilli()

	r := s.ring(symbol, timeframe)
	hot := r.since(cutoff)

	// Hot covers the window when its oldest bar predates the cutoff.
	if oldest := r.oldest(); (oldest != 0 && oldest <= cutoff) || s.warm == nil {
		return hot, nil
	}

	warm, err := s.warm.Since(ctx, symbol, timeframe, cutoff)
	if err != nil {
		s.log.WithError(err).Warn("warm tier read failed, serving hot only")
		return hot, nil
	}
	return mergeBars(warm, hot, 0), nil
}

// AggregateAndStore folds the hot source series into destination bars and
// writes them to the destination hot ring and the cold tier. Running it
// twice yields the same cold rows. Returns the number of aggregated bars.
func (s *TieredStore) AggregateAndStore(ctx context.Context, symbol, srcTF, dstTF string) (int, error) {
	srcDur, err := core.TimeframeDuration(srcTF)
	if err != nil {
		return 0, err
	}
	dstDur, err := core.TimeframeDuration(dstTF)
	if err != nil {
		return 0, err
	}
	if dstDur <= srcDur || dstDur%srcDur != 0 {
		return 0, fmt.Errorf("destination timeframe %s is not a multiple of %s", dstTF, srcTF)
	}

	src := s.ring(symbol, srcTF).last(s.capacity)
	windows := AggregateBars(src, srcDur.Milliseconds(), dstDur.Milliseconds(), AggregationMinCoverage)
	if len(windows) == 0 {
		return 0, nil
	}

	dstRing := s.ring(symbol, dstTF)
	rows := make([]AggBarRow, 0, len(windows))
	for _, w := range windows {
		// Overlapping windows from a previous run are rejected by the
		// monotonicity check; that is the idempotence we want.
		if _, err := dstRing.append(w.bar); err != nil && err != core.ErrStoreMonotonicity {
			return 0, err
		}
		rows = append(rows, AggBarRow{
			Symbol:           symbol,
			Timeframe:        dstTF,
			Timestamp:        w.bar.Timestamp,
			SourceTimeframe:  srcTF,
			AggregationCount: w.count,
			Open:             w.bar.Open,
			High:             w.bar.High,
			Low:              w.bar.Low,
			Close:            w.bar.Close,
			Volume:           w.bar.Volume,
		})
	}

	if s.cold != nil {
		if err := s.cold.Insert(ctx, rows); err != nil {
			return 0, err
		}
	}
	return len(windows), nil
}

// HotSize returns the number of hot bars for a series.
func (s *TieredStore) HotSize(symbol, timeframe string) int {
	return s.ring(symbol, timeframe).size()
}

// Close drains the warm mirror queue and closes the on-disk tiers.
func (s *TieredStore) Close() error {
	close(s.done)
	s.wg.Wait()

	var firstErr error
	if s.warm != nil {
		if err := s.warm.Close(); err != nil {
			firstErr = err
		}
	}
	if s.cold != nil {
		if err := s.cold.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *TieredStore) queueMirror(symbol, timeframe string, bars []core.Bar) {
	if s.warm == nil {
		return
	}
	batch := make([]core.Bar, len(bars))
	copy(batch, bars)

	select {
	case s.writeCh <- warmWrite{symbol: symbol, timeframe: timeframe, bars: batch}:
	default:
		s.log.Warn("warm mirror queue full, dropping batch")
	}
}

// mirrorLoop applies queued warm writes until Close. Failures are logged
// and never retried; the warm tier is best-effort.
func (s *TieredStore) mirrorLoop() {
	defer s.wg.Done()
	for {
		select {
		case w := <-s.writeCh:
			s.applyMirror(w)
		case <-s.done:
			for {
				select {
				case w := <-s.writeCh:
					s.applyMirror(w)
				default:
					return
				}
			}
		}
	}
}

func (s *TieredStore) applyMirror(w warmWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// History is insert-or-ignore; the newest bar may still be in progress
	// and is upserted so its final close wins.
	if len(w.bars) > 1 {
		if err := s.warm.Insert(ctx, w.symbol, w.timeframe, w.bars[:len(w.bars)-1]); err != nil {
			s.log.WithError(err).Warn("warm mirror insert failed")
			return
		}
	}
	if err := s.warm.Upsert(ctx, w.symbol, w.timeframe, w.bars[len(w.bars)-1:]); err != nil {
		s.log.WithError(err).Warn("warm mirror upsert failed")
	}
}

// mergeBars combines warm history with the hot tail, deduplicating by
// timestamp with hot winning, sorted chronologically. limit 0 keeps all.
func mergeBars(warm, hot []core.Bar, limit int) []core.Bar {
	merged := lo.UniqBy(append(hot, warm...), func(b core.Bar) int64 {
		return b.Timestamp
	})
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}
