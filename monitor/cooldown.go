package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/lcerda/tidebot/core"
	"github.com/tidwall/buntdb"
)

// CooldownTracker enforces the minimum wall-clock interval between
// consecutive executed signals of the same side for a symbol.
//
// The cooldown is armed by execution, not by intent: the monitor demotes a
// signal while a cooldown is active, but only the orchestrator arms a new
// one after the order actually went out. A rejected order therefore never
// blocks a later valid retry.
//
// When backed by a buntdb instance the last-fire times survive restarts;
// without one a cold start reopens all cooldowns.
type CooldownTracker struct {
	window time.Duration

	mu       sync.Mutex
	lastFire map[string]time.Time

	db *buntdb.DB
}

// NewCooldownTracker creates a tracker with the given window. db may be nil
// for memory-only operation.
func NewCooldownTracker(window time.Duration, db *buntdb.DB) *CooldownTracker {
	t := &CooldownTracker{
		window:   window,
		lastFire: make(map[string]time.Time),
		db:       db,
	}
	t.load()
	return t
}

func cooldownKey(symbol string, side core.SignalType) string {
	return fmt.Sprintf("cooldown:%s:%s", symbol, side)
}

// Active reports whether a cooldown blocks the given symbol/side at now.
func (t *CooldownTracker) Active(symbol string, side core.SignalType, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	fired, ok := t.lastFire[cooldownKey(symbol, side)]
	return ok && now.Sub(fired) < t.window
}

// Arm stamps the last-fire time for symbol/side.
func (t *CooldownTracker) Arm(symbol string, side core.SignalType, now time.Time) {
	key := cooldownKey(symbol, side)

	t.mu.Lock()
	t.lastFire[key] = now
	t.mu.Unlock()

	if t.db == nil {
		return
	}
	err := t.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, now.UTC().Format(time.RFC3339Nano), nil)
		return err
	})
	if err != nil {
		// Persistence is best-effort; the in-memory stamp still holds.
		return
	}
}

// load restores persisted last-fire times.
func (t *CooldownTracker) load() {
	if t.db == nil {
		return
	}
	_ = t.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("cooldown:*", func(key, value string) bool {
			if fired, err := time.Parse(time.RFC3339Nano, value); err == nil {
				t.lastFire[key] = fired
			}
			return true
		})
	})
}
