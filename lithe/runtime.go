package lithe

import (
	"sync/atomic"
	"time"

	"github.com/utanapishtim/parlib/alarm"
	"github.com/utanapishtim/parlib/backingpool"
	"github.com/utanapishtim/parlib/event"
	"github.com/utanapishtim/parlib/internal/obs"
	"github.com/utanapishtim/parlib/vcore"
)

// Runtime owns the sched tree's root bookkeeping, the vcore-indexed locals
// table, and the supporting services (backing pool, alarm, event channel)
// every component above is wired through.
type Runtime struct {
	substrate vcore.Substrate
	locals    *vcore.Table[*Node, *Task]

	base *Node
	root atomic.Pointer[Node]

	pool     *backingpool.Pool[any]
	alarmSvc *alarm.Service
	events   *event.Channel

	rateLimits map[time.Duration]int
}

// NewRuntime constructs a Runtime and its vcore substrate. No vcore arrives
// (calls Entry) until Bootstrap or RequestVcores requests one; while no root
// 2LS has been entered, the base scheduler simply yields every vcore it
// receives straight back out (spec.md's base-scheduler behavior).
func NewRuntime(opts ...RuntimeOption) *Runtime {
	o := resolveRuntimeOptions(opts)

	rt := &Runtime{
		locals:     vcore.NewTable[*Node, *Task](o.maxVcores),
		pool:       backingpool.New[any](o.backingConcurrency),
		events:     event.NewChannel(o.eventCapacity),
		rateLimits: o.rateLimits,
	}
	rt.alarmSvc = alarm.NewService(backingpool.New[struct{}](o.backingConcurrency))
	rt.base = newBase(rt)
	rt.substrate = o.substrateFactory(rt.Entry)

	obs.L().Info().Log("lithe: runtime constructed")
	return rt
}

// Base returns the built-in base scheduler.
func (rt *Runtime) Base() *Node { return rt.base }

// Events returns the runtime's event channel, for posting/draining syscall
// and alarm completion notifications (spec.md §2 item 5).
func (rt *Runtime) Events() *event.Channel { return rt.events }

// BackingPool returns the runtime's bounded backing-thread pool (spec.md §2
// item 6).
func (rt *Runtime) BackingPool() *backingpool.Pool[any] { return rt.pool }

// AlarmService returns the runtime's alarm service (spec.md §2 item 7).
func (rt *Runtime) AlarmService() *alarm.Service { return rt.alarmSvc }

// MaxVcores reports the substrate's concurrently-grantable vcore ceiling.
func (rt *Runtime) MaxVcores() int { return rt.substrate.MaxVcores() }

// NumVcores reports the number of vcores currently granted.
func (rt *Runtime) NumVcores() int { return rt.substrate.NumVcores() }

// RequestVcores asks the substrate for k more vcores, returning how many
// were granted synchronously — the entry point that kicks off the base
// scheduler's dispatcher loop on those vcores.
func (rt *Runtime) RequestVcores(k int) int { return rt.substrate.Request(k) }

// Bootstrap creates a main task running directly under the base scheduler
// and arranges for it to be the very first thing resumed on vcore 0,
// mirroring lithe_init: the uthread library creates main_task and hands it
// back to be resumed before vcore_entry's dispatcher ever runs its own
// priority checks. fn typically calls Enter to register the real root 2LS.
//
// Must be called exactly once, before any call to RequestVcores, since it
// relies on the substrate handing out vcore id 0 to the first Request.
func (rt *Runtime) Bootstrap(fn func(self *Task, arg any), arg any) (*Task, error) {
	mainTask, err := Create(rt.base, fn, arg)
	if err != nil {
		return nil, err
	}

	loc := rt.locals.At(0)
	loc.CurrentSched = rt.base
	rt.base.vcores.Add(1)
	loc.CurrentTask = mainTask

	rt.substrate.Request(1)
	return mainTask, nil
}
