package alarm

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/utanapishtim/parlib/backingpool"
)

func newTestService() *Service {
	return NewService(backingpool.New[struct{}](4))
}

// TestAlarmFiresAfterRel covers S6's affirmative case: an alarm left alone
// fires, eventually, exactly once.
func TestAlarmFiresAfterRel(t *testing.T) {
	s := newTestService()
	var fired atomic.Bool
	w := NewWaiter(func(*Waiter) { fired.Store(true) })
	w.SetRel(10 * time.Millisecond)
	s.Set(w)

	assert.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

// TestUnsetBeforeFireWins covers spec.md invariant 6 and scenario S6: set an
// alarm at +10ms, unset at +5ms; exactly one of {callback fires, Unset
// returns true} occurs, repeated many times to catch the cancellation race.
func TestUnsetBeforeFireWins(t *testing.T) {
	s := newTestService()
	for i := 0; i < 200; i++ {
		var fired atomic.Bool
		w := NewWaiter(func(*Waiter) { fired.Store(true) })
		w.SetRel(10 * time.Millisecond)
		s.Set(w)

		time.Sleep(5 * time.Millisecond)
		won := s.Unset(w)

		time.Sleep(20 * time.Millisecond)
		if won {
			assert.False(t, fired.Load(), "iteration %d: unset won but callback still fired", i)
		} else {
			assert.True(t, fired.Load(), "iteration %d: firing won but callback never ran", i)
		}
	}
}

func TestSetIncReschedules(t *testing.T) {
	s := newTestService()
	var firedAt atomic.Int64
	start := time.Now()
	w := NewWaiter(func(*Waiter) { firedAt.Store(time.Since(start).Milliseconds()) })
	w.SetRel(10 * time.Millisecond)
	s.Set(w)
	w.SetInc(40 * time.Millisecond)

	assert.Eventually(t, func() bool { return firedAt.Load() > 0 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, firedAt.Load(), int64(45))
}
