// Package alarm implements the alarm service (spec.md §2 item 7 and
// §4.10), directly grounded on original_source/src/alarm.c: a one-shot
// timer with a wakeup time, a done flag, an unset flag, and a worker that
// sleeps-and-rechecks so that set_awaiter_inc-style rescheduling and
// unset_alarm-style cancellation race safely against the firing.
package alarm

import (
	"time"

	"github.com/utanapishtim/parlib/backingpool"
	"github.com/utanapishtim/parlib/spinlock"
)

// lock is the single global spinlock guarding every Waiter's wakeupTime/
// done/unset fields, exactly as the original uses one static lock shared
// across all waiters rather than a per-waiter lock.
var lock spinlock.T

// Waiter is a one-shot alarm: spec.md's "alarm_waiter".
type Waiter struct {
	wakeupTime time.Time
	unset      bool
	done       bool
	fn         func(*Waiter)
}

// NewWaiter constructs a Waiter whose callback fires fn on expiry, unless
// cancelled first via Service.Unset.
func NewWaiter(fn func(*Waiter)) *Waiter {
	return &Waiter{fn: fn}
}

// SetRel schedules w to fire after d, relative to now — set_awaiter_rel.
func (w *Waiter) SetRel(d time.Duration) {
	now := time.Now()
	lock.Lock()
	defer lock.Unlock()
	w.wakeupTime = now.Add(d)
}

// SetInc extends w's existing wakeup time by d — set_awaiter_inc. Calling
// this before any SetRel is a precondition violation (the original asserts
// wakeup_time is already non-zero).
func (w *Waiter) SetInc(d time.Duration) {
	lock.Lock()
	defer lock.Unlock()
	if w.wakeupTime.IsZero() {
		panic("alarm: SetInc called before SetRel")
	}
	w.wakeupTime = w.wakeupTime.Add(d)
}

// Service dispatches alarm workers onto a bounded backing-thread pool
// rather than a raw goroutine per alarm, so alarm firings are accounted the
// same way as blocking syscalls: bounded concurrency, structured shutdown.
type Service struct {
	pool *backingpool.Pool[struct{}]
}

// NewService constructs a Service that runs waiters on pool.
func NewService(pool *backingpool.Pool[struct{}]) *Service {
	return &Service{pool: pool}
}

// Set dispatches w's worker — set_alarm. w must not already be unset.
func (s *Service) Set(w *Waiter) {
	lock.Lock()
	unset := w.unset
	lock.Unlock()
	if unset {
		panic("alarm: Set called on an already-unset waiter")
	}
	s.pool.Submit(func() (struct{}, error) {
		s.run(w)
		return struct{}{}, nil
	})
}

// run is __waiting_thread: repeatedly sleeps until the observed wakeup time
// elapses, rechecking whether it changed (via SetInc) during the sleep.
func (s *Service) run(w *Waiter) {
	lock.Lock()
	for {
		wakeupTime := w.wakeupTime
		now := time.Now()
		if !wakeupTime.After(now) {
			break
		}
		lock.Unlock()
		time.Sleep(wakeupTime.Sub(now))
		lock.Lock()
		if w.wakeupTime.Equal(wakeupTime) {
			break
		}
		// wakeupTime moved during the sleep (SetInc raced in): loop and
		// resleep against the new value.
	}
	w.done = true
	unset := w.unset
	lock.Unlock()

	if !unset {
		w.fn(w)
	}
}

// Unset cancels w — unset_alarm. Returns true iff it raced ahead of the
// firing (in which case w.fn will never run); returns false if w had
// already fired. Calling Unset again on a waiter it already cancelled
// returns true again.
func (s *Service) Unset(w *Waiter) bool {
	lock.Lock()
	defer lock.Unlock()
	if !w.done {
		w.unset = true
	}
	return w.unset
}
