package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lcerda/tidebot/core"
	zl "github.com/lcerda/tidebot/logger/zerolog"
	"github.com/stretchr/testify/assert"
)

func testLogger() core.Logger {
	return zl.NewAdapter(zl.NewNop().Logger)
}

func TestNextDelay_JitterBounds(t *testing.T) {
	s := New(testLogger(), core.CadenceConfig{
		CycleIntervalMinutes: 15,
		JitterSeconds:        180,
	}, WithRandSource(rand.NewSource(1)))

	lo := 15*time.Minute - 180*time.Second
	hi := 15*time.Minute + 180*time.Second
	for i := 0; i < 1000; i++ {
		d := s.nextDelay()
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
}

func TestNextDelay_NoJitter(t *testing.T) {
	s := New(testLogger(), core.CadenceConfig{CycleIntervalMinutes: 15})
	assert.Equal(t, 15*time.Minute, s.nextDelay())
}

func TestRun_FirstRunImmediate(t *testing.T) {
	s := New(testLogger(), core.CadenceConfig{
		CycleIntervalMinutes: 60, // far beyond the test window
		FirstRunImmediate:    true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})

	go func() {
		s.Run(ctx, func(context.Context) error {
			calls.Add(1)
			cancel()
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_SingleCycleInFlight(t *testing.T) {
	s := &Scheduler{
		log:      testLogger(),
		interval: 20 * time.Millisecond,
		rng:      rand.New(rand.NewSource(1)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlight, maxInFlight atomic.Int32
	done := make(chan struct{})

	go func() {
		s.Run(ctx, func(context.Context) error {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			// Overrun the interval on purpose.
			time.Sleep(50 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
		close(done)
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestRun_CycleErrorDoesNotStopLoop(t *testing.T) {
	s := &Scheduler{
		log:      testLogger(),
		interval: 10 * time.Millisecond,
		rng:      rand.New(rand.NewSource(1)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(context.Context) error {
			calls.Add(1)
			return errors.New("exchange unreachable")
		})
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}
