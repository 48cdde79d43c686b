package lithe

import (
	"sync"

	"github.com/utanapishtim/parlib/vcore"
)

// roundRobin is a minimal leaf 2LS used across this package's tests: a
// single FIFO ready queue, no children of its own. It exists only to drive
// the core's Enter/Exit/Yield/Block machinery through a realistic, if
// trivial, scheduling policy.
type roundRobin struct {
	mu       sync.Mutex
	runnable []*Task
}

func (r *roundRobin) enqueue(t *Task) {
	r.mu.Lock()
	r.runnable = append(r.runnable, t)
	r.mu.Unlock()
}

func (r *roundRobin) VcoreRequest(self, requester *Node, k int) int { return 0 }

// VcoreEnter runs the next ready task, or — with nothing to do — gives the
// vcore back to the parent via self.VcoreYield rather than spinning on it
// forever. A later TaskRunnable asks for a vcore back through Request;
// TaskYield only enqueues, since the yielding task's vcore is still here.
func (r *roundRobin) VcoreEnter(self *Node, id vcore.ID) {
	r.mu.Lock()
	if len(r.runnable) > 0 {
		task := r.runnable[0]
		r.runnable = r.runnable[1:]
		r.mu.Unlock()
		self.RunTask(id, task)
		return
	}
	r.mu.Unlock()
	self.VcoreYield(id)
}

func (r *roundRobin) VcoreReturn(self, child *Node, id vcore.ID) {
	panic("roundRobin: never grants to children, so never gets vcores back from one")
}

func (r *roundRobin) ChildEntered(self, child *Node) {}
func (r *roundRobin) ChildExited(self, child *Node)  {}

func (r *roundRobin) TaskCreate(self *Node, udata any) *Task {
	panic("roundRobin: tests create tasks directly via lithe.Create")
}

func (r *roundRobin) TaskDestroy(self *Node, task *Task) {}

// TaskRunnable enqueues task and, since it may be the only runnable task
// after every vcore previously yielded away for lack of work (e.g. an
// externally-unblocked task), asks for a vcore to service it — the
// vcore_request half of the yield/request pair VcoreEnter's
// self.VcoreYield started.
func (r *roundRobin) TaskRunnable(self *Node, task *Task) {
	r.enqueue(task)
	Request(self, 1)
}

func (r *roundRobin) TaskYield(self *Node, task *Task) { r.enqueue(task) }
