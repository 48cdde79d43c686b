package lithe

import (
	"github.com/utanapishtim/parlib/uthread"
	"github.com/utanapishtim/parlib/vcore"
)

// Entry is the vcore-entry dispatcher (spec.md §4.1): the single routine
// every vcore (re-)enters through, picking exactly one of the four
// continuations in strict priority order and looping.
//
// Grounded on the teacher's Loop.tick() priority cascade (timers → internal
// queue → external queue → microtasks → poll): an ordered list of
// continuation sources where the first non-empty one wins, repeated every
// tick. Entry never returns except by being parked inside
// rt.substrate.Yield, matching "must not return."
func (rt *Runtime) Entry(id vcore.ID) {
	loc := rt.locals.At(id)

	for {
		switch {
		case loc.CurrentTask != nil:
			rt.resume(id, loc, loc.CurrentTask)

		case loc.NextTask != nil:
			task := loc.NextTask
			loc.NextTask = nil
			rt.resume(id, loc, task)

		case loc.NextFunc != nil:
			fn := loc.NextFunc
			loc.NextFunc = nil
			fn()

		case loc.CurrentSched == nil:
			// First entry on this vcore id, or re-entry on an id the
			// substrate is recycling after vcoreReturnToSubstrate zeroed
			// these locals and parked it — either way, this vcore starts
			// back at the base scheduler.
			loc.CurrentSched = rt.base
			rt.base.vcores.Add(1)

		default:
			sched := loc.CurrentSched
			sched.funcs.VcoreEnter(sched, id)
		}
	}
}

func (rt *Runtime) resume(id vcore.ID, loc *vcore.Locals[*Node, *Task], task *Task) {
	loc.CurrentTask = task
	task.vcoreID = id
	cb, finished := uthread.Run(task.ctx)
	loc.CurrentTask = nil
	if cb != nil {
		cb()
	}
	if finished {
		task.node.funcs.TaskDestroy(task.node, task)
	}
}

// grant is lithe_vcore_grant (spec.md §4.6, parent→child direction): called
// in vcore context from self's VcoreEnter. Moves the vcore's accounting from
// self to child — decrementing self.vcores in the same operation that
// increments child.vcores, so the vcore is never counted in both at once
// (spec.md:169) — sets current_sched = child, and returns; the dispatcher's
// own loop re-enters, which will invoke child.funcs.VcoreEnter next
// iteration.
func (rt *Runtime) grant(id vcore.ID, self, child *Node) {
	if child == rt.base {
		panic("lithe: cannot grant the base scheduler a vcore")
	}
	loc := rt.locals.At(id)
	self.vcores.Add(-1)
	loc.CurrentSched = child
	child.vcores.Add(1)
}

// vcoreYield is lithe_vcore_yield (spec.md §4.6, child→parent direction):
// called in vcore context from a child's VcoreEnter once it has no more
// work. Moves the vcore's accounting from child to parent — decrements
// child.vcores and increments parent.vcores in the same operation, the
// mirror image of grant's parent-to-child move — restores current_sched =
// parent, and invokes parent.funcs.VcoreReturn(parent, child) which should
// re-grant or yield further.
func (rt *Runtime) vcoreYield(id vcore.ID, child *Node) {
	parent := child.parent
	if parent == nil {
		panic("lithe: cannot vcore-yield the base scheduler; use vcoreReturnToSubstrate")
	}
	child.vcores.Add(-1)
	parent.vcores.Add(1)
	loc := rt.locals.At(id)
	loc.CurrentSched = parent
	parent.funcs.VcoreReturn(parent, child, id)
}

// vcoreReturnToSubstrate is the base scheduler's own vcore_return: a vcore
// leaving the system entirely. Decrements base.vcores, wipes the vcore's
// locals, and yields the vcore back to the substrate — directly grounded on
// lithe_vcore_entry's yield_vcore branch (decrement, memset lithe_tls,
// vcore_yield()).
func (rt *Runtime) vcoreReturnToSubstrate(id vcore.ID) {
	rt.base.vcores.Add(-1)
	*rt.locals.At(id) = vcoreLocalsZero()
	rt.substrate.Yield(id)
}

func vcoreLocalsZero() (z vcore.Locals[*Node, *Task]) { return }

// Request is lithe_vcore_request (spec.md §4.7): relays a request for k
// more vcores one level up. Component 11 gates the relay through self's
// catrate.Limiter first — an over-budget request returns 0 immediately
// without bothering the parent, consistent with §4.7's "more may arrive
// asynchronously" clause.
func Request(self *Node, k int) int {
	parent := self.parent
	if parent == nil {
		panic("lithe: cannot vcore-request above the base scheduler")
	}
	if self.limiter != nil {
		if _, ok := self.limiter.Allow(self); !ok {
			return 0
		}
	}
	return parent.funcs.VcoreRequest(parent, self, k)
}

// Grant lets a 2LS's VcoreEnter implementation hand the vcore it is
// currently running on (id) down to child — the external-facing wrapper
// for lithe_vcore_grant.
func (self *Node) Grant(id vcore.ID, child *Node) {
	self.rt.grant(id, self, child)
}

// VcoreYield lets a 2LS's VcoreEnter implementation return the vcore it is
// currently running on (id) up to its parent — the external-facing wrapper
// for lithe_vcore_yield.
func (self *Node) VcoreYield(id vcore.ID) {
	self.rt.vcoreYield(id, self)
}

// RunTask lets a 2LS's VcoreEnter implementation start (or resume) task on
// the vcore it is currently running (id) — lithe_task_run. The dispatcher
// picks it up on its next loop iteration, ahead of re-invoking VcoreEnter.
func (self *Node) RunTask(id vcore.ID, task *Task) {
	if task == nil {
		panic("lithe: cannot run a nil task")
	}
	self.rt.locals.At(id).NextTask = task
}
