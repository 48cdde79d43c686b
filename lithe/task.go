package lithe

import (
	"sync/atomic"

	"github.com/utanapishtim/parlib/tlsvar"
	"github.com/utanapishtim/parlib/uthread"
	"github.com/utanapishtim/parlib/vcore"
)

var nextTaskID atomic.Uint64

// Task is spec.md's Task (lithe_task_t): an embedded uthread context plus
// the 2LS-visible bookkeeping the core keeps for it.
//
// The body closure is handed its own *Task explicitly, rather than
// discovering it through an implicit "current task" thread-local the way
// lithe_task_self() does in C — Go has no goroutine-local storage, and a
// task's body runs on a dedicated goroutine for its whole life (see package
// uthread), so closing over the Task the body was created with is both the
// idiomatic and the only correct way to get it.
type Task struct {
	ID   uint64
	ctx  *uthread.Context
	node *Node

	// vcoreID is the vcore currently running t's body, set by the
	// dispatcher immediately before resuming it. Stable for t's body to
	// read for the duration of its execution, since only one goroutine
	// (the dispatcher, parked in uthread.Run) could otherwise observe or
	// mutate it meanwhile.
	vcoreID vcore.ID

	// Sysc bookkeeping for async syscall completion, per spec.md §3.
	SyscallTag any
}

// VcoreID returns the vcore currently running t. Valid only when called
// from t's own body.
func (t *Task) VcoreID() vcore.ID { return t.vcoreID }

// Create allocates a new Task under node whose body is fn(self, arg). The
// body runs to completion, blocks, or yields via self's methods; returning
// from fn is equivalent to calling self.Exit().
//
// Create itself performs the allocation, rather than delegating to
// node.funcs.TaskCreate: a uthread.Context plus a tlsvar.Descriptor already
// give every task a uniform goroutine "stack" and TLS slot, so there is no
// 2LS-specific layout left for TaskCreate to own the way the original's
// 2LS-supplied stack/TLS allocator did. SchedFuncs.TaskCreate is kept on the
// callback table for 2LS-level bookkeeping a caller may still want wired
// through it (counters, admission control) — see DESIGN.md.
func Create(node *Node, fn func(self *Task, arg any), arg any) (*Task, error) {
	if fn == nil {
		return nil, ErrNilBody
	}
	t := &Task{
		ID:   nextTaskID.Add(1),
		node: node,
	}
	t.ctx = uthread.New(func(c *uthread.Context) {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(taskExitSignal); ok {
					return
				}
				panic(r)
			}
		}()
		fn(t, arg)
	})
	return t, nil
}

type taskExitSignal struct{}

// Self returns t itself; kept as a method (rather than a free function
// relying on a thread-local lookup) so call sites read the same as
// lithe_task_self() while staying Go-idiomatic about where the value comes
// from.
func (t *Task) Self() *Task { return t }

// Node returns the scheduler node t currently belongs to.
func (t *Task) Node() *Node { return t.node }

// Finished reports whether t's body has returned (or called Exit).
func (t *Task) Finished() bool { return t.ctx.Finished() }

// Yield suspends t, handing control back to the dispatcher, which invokes
// node.funcs.TaskYield(node, t) in vcore context before picking the next
// continuation — lithe_task_yield.
func (t *Task) Yield() {
	node := t.node
	uthread.Yield(t.ctx, func() {
		node.funcs.TaskYield(node, t)
	})
}

// Block suspends t and, in vcore context, invokes fn(t, arg). Control does
// not return to the caller of Block until some other task calls Unblock(t)
// — lithe_task_block.
func (t *Task) Block(fn func(task *Task, arg any), arg any) {
	uthread.Yield(t.ctx, func() {
		fn(t, arg)
	})
}

// Exit marks t finished without returning from its body function normally
// — lithe_task_exit. Implemented as a panic carrying a private sentinel,
// recovered by the wrapper Create installs, mirroring "yields without
// saving state" (nothing past the call site ever resumes).
func (t *Task) Exit() {
	panic(taskExitSignal{})
}

// Destroy frees the 2LS-owned resources for t via node.funcs.TaskDestroy.
// t must not be currently running — lithe_task_destroy.
func Destroy(node *Node, t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	node.funcs.TaskDestroy(node, t)
	return nil
}

// Unblock hands t to node.funcs.TaskRunnable (task_runnable) —
// lithe_task_unblock.
func Unblock(node *Node, t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	node.funcs.TaskRunnable(node, t)
	return nil
}

var (
	tlsAny = tlsvar.NewKey[any]()
)

// SetTLS stores v in t's per-task TLS slot — lithe_task_settls.
func (t *Task) SetTLS(v any) { tlsAny.Set(t.ctx.TLS(), v) }

// GetTLS reads t's per-task TLS slot — lithe_task_gettls.
func (t *Task) GetTLS() any { return tlsAny.Get(t.ctx.TLS()) }
