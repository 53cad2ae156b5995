package store

import (
	"sort"
	"sync"

	"github.com/lcerda/tidebot/core"
)

// hotRing is the in-memory tier for one (symbol, timeframe). It keeps the
// most recent bars in chronological order with a fixed capacity. A single
// writer (the monitor) appends; readers take a copied view under the lock.
type hotRing struct {
	mu       sync.RWMutex
	capacity int
	bars     []core.Bar
}

func newHotRing(capacity int) *hotRing {
	if capacity <= 0 {
		capacity = DefaultHotCapacity
	}
	return &hotRing{
		capacity: capacity,
		bars:     make([]core.Bar, 0, capacity),
	}
}

// append upserts a bar by timestamp. Equal timestamps overwrite the stored
// bar (last-write-wins for the in-progress bar); strictly older timestamps
// are rejected. Returns true when the bar was stored.
func (r *hotRing) append(bar core.Bar) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.bars)
	if n > 0 {
		last := r.bars[n-1].Timestamp
		switch {
		case bar.Timestamp == last:
			r.bars[n-1] = bar
			return true, nil
		case bar.Timestamp < last:
			return false, core.ErrStoreMonotonicity
		}
	}

	r.bars = append(r.bars, bar)
	if len(r.bars) > r.capacity {
		// Shift instead of reallocating; amortized O(1) with the copy
		// bounded by capacity overflow of one element.
		copy(r.bars, r.bars[1:])
		r.bars = r.bars[:r.capacity]
	}
	return true, nil
}

// last returns up to n most recent bars in chronological order.
func (r *hotRing) last(n int) []core.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || len(r.bars) == 0 {
		return nil
	}
	start := len(r.bars) - n
	if start < 0 {
		start = 0
	}
	out := make([]core.Bar, len(r.bars)-start)
	copy(out, r.bars[start:])
	return out
}

// since returns all bars with timestamp >= cutoffMs in chronological order,
// located via binary search on the timestamp index.
func (r *hotRing) since(cutoffMs int64) []core.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := sort.Search(len(r.bars), func(i int) bool {
		return r.bars[i].Timestamp >= cutoffMs
	})
	if idx >= len(r.bars) {
		return nil
	}
	out := make([]core.Bar, len(r.bars)-idx)
	copy(out, r.bars[idx:])
	return out
}

// oldest returns the earliest stored timestamp, or 0 when empty.
func (r *hotRing) oldest() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.bars) == 0 {
		return 0
	}
	return r.bars[0].Timestamp
}

// size returns the number of stored bars.
func (r *hotRing) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bars)
}
