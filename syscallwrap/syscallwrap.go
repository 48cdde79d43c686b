// Package syscallwrap implements the generic async-syscall bridge (spec.md
// §4.9, component 10): attempt an operation without blocking, and only pay
// the cost of a backing-thread handoff when the non-blocking attempt
// reports EWOULDBLOCK/EAGAIN.
package syscallwrap

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/utanapishtim/parlib/event"
	"github.com/utanapishtim/parlib/lithe"
)

// Wrap runs nonblock; if it succeeds or fails with anything other than
// EWOULDBLOCK/EAGAIN, its result is returned immediately. Otherwise task is
// blocked (lithe_task_block) and block is submitted to rt's backing-thread
// pool; once it completes, a KindSyscallComplete event is posted to rt's
// event channel and task is unblocked, resuming here with block's result.
//
// Ordering guarantee matches spec.md §4.9: task's eventual resumption is
// never observed before node.NotifyBlocked has run for it, since that call
// happens synchronously inside the vcore-context callback, strictly before
// block is ever submitted.
func Wrap[T any](rt *lithe.Runtime, node *lithe.Node, task *lithe.Task, nonblock func() (T, error), block func() (T, error)) (T, error) {
	v, err := nonblock()
	if !isWouldBlock(err) {
		return v, err
	}

	var result T
	var resultErr error

	task.Block(func(self *lithe.Task, _ any) {
		node.NotifyBlocked(self)

		res := rt.BackingPool().Submit(func() (any, error) {
			r, e := block()
			return r, e
		})

		go func() {
			raw, waitErr := res.Wait(context.Background())
			if waitErr != nil {
				resultErr = waitErr
			} else if typed, ok := raw.(T); ok {
				result = typed
			}

			rt.Events().Post(event.Event{
				Kind:   event.KindSyscallComplete,
				TaskID: self.ID,
				Result: raw,
				Err:    waitErr,
			})

			if err := lithe.Unblock(node, self); err != nil {
				panic(err)
			}
		}()
	}, nil)

	return result, resultErr
}

// isWouldBlock reports whether err is the non-blocking "try again" signal
// (EWOULDBLOCK and EAGAIN are the same errno on every platform this module
// targets).
func isWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}
