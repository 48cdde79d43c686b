// Package lithe is the Lithe core: the sched tree (spec.md §2 item 8) and
// the task layer (spec.md §2 item 9) in one package, mirroring the
// original's single lithe.c translation unit where Sched and Task reference
// each other bidirectionally — splitting them into separate Go packages
// would require an import cycle.
package lithe

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-catrate"

	"github.com/utanapishtim/parlib/internal/obs"
	"github.com/utanapishtim/parlib/vcore"
)

// state is the tri-state registration state kept as a bookkeeping
// optimization layered over the simpler "drain vcores to zero" protocol
// (spec.md §9's Open Question; see DESIGN.md). REGISTERED/UNREGISTERING/
// UNREGISTERED track whether Enter is still permitted to optimistically
// join a child.
type state int32

const (
	registered state = iota
	unregistering
	unregistered
)

// SchedFuncs is the 2LS callback table (spec.md §4.8).
type SchedFuncs interface {
	// VcoreRequest decides how to satisfy a request for k more vcores,
	// relaying upward or satisfying locally. Request calls it directly in
	// Request's caller's context (a task body, a 2LS callback, or any other
	// goroutine); no switch to vcore context is made.
	VcoreRequest(self, requester *Node, k int) int
	// VcoreEnter must run a task, grant to a child, or yield — it never
	// returns normally in the original; our Go realization returns when
	// the vcore should re-enter the dispatcher, which treats that as "now
	// re-check the continuation slots." id is the calling vcore, needed to
	// mutate that vcore's locals (Go has no per-vcore TLS to close over).
	VcoreEnter(self *Node, id vcore.ID)
	// VcoreReturn accounts for a returned child vcore and typically
	// re-grants or yields further.
	VcoreReturn(self, child *Node, id vcore.ID)
	// ChildEntered records a newly entered child.
	ChildEntered(self, child *Node)
	// ChildExited unrecords a child whose vcores are already drained.
	ChildExited(self, child *Node)
	// TaskCreate allocates a task, including any 2LS-specific bookkeeping.
	TaskCreate(self *Node, udata any) *Task
	// TaskDestroy frees resources for a task that is not currently
	// running.
	TaskDestroy(self *Node, task *Task)
	// TaskRunnable is a 2LS ready-queue insert.
	TaskRunnable(self *Node, task *Task)
	// TaskYield is 2LS ready-queue-or-sleep bookkeeping for a task that
	// just yielded.
	TaskYield(self *Node, task *Task)
}

// Node is a scheduler node: spec.md's Sched.
type Node struct {
	mu    sync.Mutex
	state atomic.Int32

	vcores atomic.Int64

	parent     *Node
	parentTask *Task

	children   *Node
	next, prev *Node

	funcs SchedFuncs
	this  any

	rt      *Runtime
	limiter *catrate.Limiter
}

func (n *Node) getState() state  { return state(n.state.Load()) }
func (n *Node) setState(s state) { n.state.Store(int32(s)) }

// This returns the 2LS-supplied handle passed to Enter, spec.md's
// `Sched.this`.
func (n *Node) This() any { return n.this }

// Vcores reports the number of vcores currently accounted to n.
func (n *Node) Vcores() int64 { return n.vcores.Load() }

// Parent returns n's parent node, or nil for the base scheduler.
func (n *Node) Parent() *Node { return n.parent }

// NotifyBlocked informs n's 2LS that task is about to be handed to a
// backing thread pending an async completion — the package syscallwrap
// stand-in for thread_blockon_sysc (spec.md §4.9). Implemented by reusing
// the TaskYield hook: from the 2LS's point of view a task blocked on a
// pending syscall and a task that yielded are both "not currently
// runnable, update my bookkeeping accordingly."
func (n *Node) NotifyBlocked(task *Task) {
	n.funcs.TaskYield(n, task)
}

// newBase constructs the built-in base scheduler: it grants every incoming
// vcore to the root child and panics on TaskCreate. Its TaskDestroy,
// TaskRunnable and TaskYield are no-ops rather than errors (see below).
func newBase(rt *Runtime) *Node {
	b := &Node{rt: rt, this: "base"}
	b.setState(registered)
	b.funcs = &baseFuncs{rt: rt}
	return b
}

type baseFuncs struct{ rt *Runtime }

func (f *baseFuncs) VcoreRequest(self, requester *Node, k int) int {
	return f.rt.substrate.Request(k)
}

func (f *baseFuncs) VcoreEnter(self *Node, id vcore.ID) {
	if child := f.rt.root.Load(); child != nil {
		f.rt.grant(id, self, child)
		return
	}
	f.rt.vcoreReturnToSubstrate(id)
}

// VcoreReturn is the base scheduler's vcore_return (spec.md:74): a vcore
// leaving the system. The vcore's accounting already moved from child to
// base (vcoreYield incremented base.vcores before calling this), so this is
// exactly the no-root branch of VcoreEnter above — decrement base.vcores,
// wipe the vcore's locals, and hand it back to the substrate.
func (f *baseFuncs) VcoreReturn(self, child *Node, id vcore.ID) {
	f.rt.vcoreReturnToSubstrate(id)
}

func (f *baseFuncs) ChildEntered(self, child *Node) {
	if !f.rt.root.CompareAndSwap(nil, child) {
		obs.L().Emerg().Log("lithe: base already has a root child")
		panic("lithe: base scheduler already has a registered root")
	}
}

func (f *baseFuncs) ChildExited(self, child *Node) {
	f.rt.root.CompareAndSwap(child, nil)
}

func (f *baseFuncs) TaskCreate(self *Node, udata any) *Task {
	panic("lithe: base scheduler does not create tasks")
}

// TaskDestroy is a no-op: the only task the base scheduler ever directly
// owns is Runtime.Bootstrap's main task, which has nothing for the base to
// free beyond what Go's GC already reclaims.
func (f *baseFuncs) TaskDestroy(self *Node, task *Task) {}

// TaskRunnable and TaskYield are no-ops for the same reason — the bootstrap
// main task is expected to immediately Enter a real root 2LS and never
// yield back to the base scheduler, but treating these as hard errors would
// make that assumption needlessly fragile to test directly.
func (f *baseFuncs) TaskRunnable(self *Node, task *Task) {}

func (f *baseFuncs) TaskYield(self *Node, task *Task) {}
