package lithe

import (
	"github.com/joeycumines/go-catrate"

	"github.com/utanapishtim/parlib/spinlock"
)

// Enter registers a new child scheduler under caller's current node and
// hijacks caller's execution onto childTask, which starts running as the
// child scheduler's first task — spec.md §4.4.
//
// Protocol, matching §4.4 exactly:
//  1. package {parent, caller, child, childTask} — done by the closure
//     captured below.
//  2. caller.Block sets next_func-equivalent state in vcore context.
//  3. (Go realization of "set current_uthread = childTask / task hijack":
//     the vcore's NextTask slot is set to childTask, which the dispatcher
//     will start on its own goroutine — caller's goroutine parks instead of
//     being repointed, since Go cannot repoint a running goroutine's
//     identity.)
//  4. caller.Block already yielded with its state saved (Block built atop
//     uthread.Yield, which always saves).
//  5. before blocking, still in caller's task context: allocates the child
//     Node (idata), links child.parent = parent, moves the vcore's count
//     from parent to child, and calls parent.funcs.ChildEntered(parent,
//     child). The Block callback, in vcore context, then sets
//     current_sched = child and NextTask = childTask so the dispatcher's
//     next loop iteration starts it.
//
// Enter returns once childTask's scheduler eventually calls SchedExit and
// the hijack unwinds back to caller — from caller's point of view, it is a
// single blocking call.
func Enter(caller *Task, funcs SchedFuncs, this any, childTask *Task) (*Node, error) {
	if funcs == nil {
		return nil, ErrNilFuncs
	}
	if childTask == nil {
		return nil, ErrNilStartTask
	}

	parent := caller.node
	if parent.getState() != registered {
		return nil, ErrParentNotRegistered
	}

	rt := parent.rt
	child := &Node{parent: parent, parentTask: caller, funcs: funcs, this: this, rt: rt}
	child.setState(registered)
	if len(rt.rateLimits) > 0 {
		child.limiter = catrate.NewLimiter(rt.rateLimits)
	}

	parent.mu.Lock()
	child.next = parent.children
	if parent.children != nil {
		parent.children.prev = child
	}
	parent.children = child
	parent.mu.Unlock()

	// The vcore running caller moves from parent to child, same conservation
	// rule as grant (spec.md:169, spec.md:44/197): decrement the donor in
	// the same operation that credits the recipient.
	parent.vcores.Add(-1)
	child.vcores.Add(1)
	childTask.node = child

	parent.funcs.ChildEntered(parent, child)

	caller.Block(func(self *Task, _ any) {
		id := self.vcoreID
		loc := rt.locals.At(id)
		loc.CurrentSched = child
		loc.NextTask = childTask
	}, nil)

	// Resumes here once SchedExit(childTask-side-caller) hijacks back to us.
	return child, nil
}

// SchedExit tears down caller's current scheduler node and hijacks back to
// the task that originally called Enter — spec.md §4.5. caller must belong
// to the node being exited.
//
// Resume routine (executed in vcore context after hijacking back to
// parentTask), matching §4.5 exactly:
//  1. busy-waits on child.vcores == 1 (only this vcore remains in the
//     child) with Relax between reads.
//  2. decrements child.vcores (now 0).
//  3. sets current_sched = parent.
//  4. calls parent.funcs.ChildExited(parent, child).
//  5. frees child's bookkeeping (child is unlinked from parent's children
//     list, so Go's GC reclaims the Node once nothing else holds it;
//     TaskDestroy is invoked on the exiting task the same way the original
//     frees child_task).
//  6. re-enters the dispatcher with NextTask = parentTask.
func SchedExit(caller *Task) error {
	child := caller.node
	parent := child.parent
	if parent == nil {
		panic("lithe: cannot exit the base scheduler")
	}
	rt := child.rt

	caller.Block(func(self *Task, _ any) {
		id := self.vcoreID

		for child.vcores.Load() != 1 {
			spinlock.Relax()
		}
		child.vcores.Add(-1)
		parent.vcores.Add(1)

		loc := rt.locals.At(id)
		loc.CurrentSched = parent

		parent.funcs.ChildExited(parent, child)

		parent.mu.Lock()
		if child.prev != nil {
			child.prev.next = child.next
		} else {
			parent.children = child.next
		}
		if child.next != nil {
			child.next.prev = child.prev
		}
		child.next, child.prev = nil, nil
		parent.mu.Unlock()

		child.setState(unregistered)
		parentTask := child.parentTask
		child.funcs.TaskDestroy(child, self)

		loc.NextTask = parentTask
	}, nil)

	return nil
}
