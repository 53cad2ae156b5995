package monitor

import (
	"encoding/json"
	"fmt"

	"github.com/lcerda/tidebot/core"
	"github.com/tidwall/buntdb"
)

// signalIndex orders journal entries by emission time.
const signalIndex = "signal_ts"

// SignalJournal persists every emitted signal for observers. Backed by the
// same buntdb state file as the cooldown tracker.
type SignalJournal struct {
	db *buntdb.DB
}

// NewSignalJournal creates the journal and its timestamp index.
func NewSignalJournal(db *buntdb.DB) (*SignalJournal, error) {
	err := db.CreateIndex(signalIndex, "signal:*", buntdb.IndexJSON("timestamp"))
	if err != nil && err != buntdb.ErrIndexExists {
		return nil, fmt.Errorf("failed to create signal index: %w", err)
	}
	return &SignalJournal{db: db}, nil
}

// OnSignal implements core.SignalObserver.
func (j *SignalJournal) OnSignal(signal core.EmittedSignal) {
	content, err := json.Marshal(signal)
	if err != nil {
		return
	}
	key := fmt.Sprintf("signal:%s:%d", signal.Symbol, signal.Timestamp.UnixNano())
	_ = j.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(content), nil)
		return err
	})
}

// Recent returns up to limit most recent signals, newest-first.
func (j *SignalJournal) Recent(limit int) ([]core.EmittedSignal, error) {
	signals := make([]core.EmittedSignal, 0, limit)
	err := j.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(signalIndex, func(key, value string) bool {
			var s core.EmittedSignal
			if err := json.Unmarshal([]byte(value), &s); err != nil {
				return true
			}
			signals = append(signals, s)
			return len(signals) < limit
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read signal journal: %w", err)
	}
	return signals, nil
}
