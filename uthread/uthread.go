// Package uthread realizes the uthread layer (spec.md §2 item 4): a task
// context object with saved state, create/destroy/run/swap/yield
// operations, and a hook table the scheduler above registers.
//
// Go cannot swap the machine state of two already-running goroutines onto
// one OS stack the way the original's Context::swap does. Instead, every
// Context owns its own goroutine, parked on a channel the instant it is not
// the one logically executing. "Running" a Context means signalling its
// goroutine to proceed and blocking the caller until that goroutine yields,
// blocks, or exits — from the dispatcher's point of view this is
// indistinguishable from a stack swap, because exactly one of the two
// goroutines is ever unparked at a time.
package uthread

import (
	"sync/atomic"

	"github.com/utanapishtim/parlib/tlsvar"
)

// Context is a task context: the uthread_t of spec.md §3 (minus the
// machine-state/stack fields, which Go's goroutine already carries for us).
type Context struct {
	resume   chan struct{}
	yielded  chan yieldMsg
	tls      *tlsvar.Descriptor
	finished atomic.Bool
	started  atomic.Bool
}

type yieldMsg struct {
	cb func()
}

// Ops describes the hook table of schedule_ops: post-yield bookkeeping,
// runnable notification and teardown. This package has no function to
// register an Ops, and New, Run and Yield never call one.
type Ops interface {
	// Runnable is the hook for a blocked Context becoming runnable again
	// (thread_runnable).
	Runnable(c *Context)
	// Yielded is the hook for c having parked itself via Yield
	// (thread_yield).
	Yielded(c *Context)
	// Exited is the hook for c's body function having returned
	// (thread_exit).
	Exited(c *Context)
}

// New allocates a Context whose body is fn. The returned Context's
// goroutine is started immediately but parked until the first Run call,
// mirroring init_uthread_stack/init_uthread_entry without yet transferring
// control (uthread_create does not run the thread).
func New(fn func(c *Context)) *Context {
	c := &Context{
		resume:  make(chan struct{}),
		yielded: make(chan yieldMsg),
		tls:     tlsvar.Allocate(),
	}
	go func() {
		<-c.resume
		fn(c)
		c.finished.Store(true)
		c.yielded <- yieldMsg{}
	}()
	return c
}

// TLS returns c's TLS descriptor, for use with tlsvar.Key.
func (c *Context) TLS() *tlsvar.Descriptor { return c.tls }

// Finished reports whether c's body has returned (lithe_task_exit having
// run), per spec.md §3's `finished` field.
func (c *Context) Finished() bool { return c.finished.Load() }

// Run transfers control to c — starting it on first call, resuming it on
// subsequent calls — and blocks until c yields, blocks, or exits. The
// returned callback, if non-nil, must be invoked in vcore context before
// anything else happens (spec.md §8 invariant 7: "cb executes in vcore
// context with current_uthread == NULL and the original task's state fully
// saved" — by construction here, c's goroutine is parked for the whole
// duration of cb, so no other code can be running as c concurrently).
func Run(c *Context) (cb func(), finished bool) {
	if c.finished.Load() {
		panic("uthread: Run called on an already-finished context")
	}
	c.started.Store(true)
	c.resume <- struct{}{}
	msg := <-c.yielded
	return msg.cb, c.finished.Load()
}

// Yield parks the calling context's goroutine, handing cb (which may be
// nil) back to whoever called Run, to be executed in vcore context. Yield
// does not return until a subsequent Run call resumes this exact Context —
// this is the Go realization of swap_uthreads(save=true).
//
// Must be called from the goroutine that owns c (i.e. from within the fn
// passed to New); calling it from any other goroutine is a precondition
// violation.
func Yield(c *Context, cb func()) {
	c.yielded <- yieldMsg{cb: cb}
	<-c.resume
}
