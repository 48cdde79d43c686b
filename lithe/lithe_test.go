package lithe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// waitForCondition polls cond until it reports true or the deadline passes,
// to observe dispatcher-goroutine side effects (vcore bookkeeping) that
// happen-after a test's own synchronization point but are not themselves
// signaled back to the test goroutine.
func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestScenarioS1SingleSchedTwoTasksInterleave is spec.md §8 S1: register one
// 2LS on one vcore with two tasks that alternately yield; expect
// A,B,A,B,... interleaving driven entirely by the round-robin ready queue,
// then a clean Enter/Exit teardown back to zero vcores.
func TestScenarioS1SingleSchedTwoTasksInterleave(t *testing.T) {
	rt := NewRuntime(WithMaxVcores(1))
	rr := &roundRobin{}

	var traceMu sync.Mutex
	var trace []string
	record := func(s string) {
		traceMu.Lock()
		trace = append(trace, s)
		traceMu.Unlock()
	}

	var bDone atomic.Bool
	done := make(chan struct{})

	bFn := func(self *Task, _ any) {
		for i := 0; i < 3; i++ {
			record("B")
			self.Yield()
		}
		record("Bexit")
		bDone.Store(true)
	}

	rootFn := func(self *Task, _ any) {
		node := self.Node()
		taskB, err := Create(node, bFn, nil)
		require.NoError(t, err)
		rr.enqueue(taskB)

		for i := 0; i < 3; i++ {
			record("A")
			self.Yield()
		}
		record("Aexit")
		for !bDone.Load() {
			self.Yield()
		}
		require.NoError(t, SchedExit(self))
	}

	mainFn := func(self *Task, _ any) {
		childTask, err := Create(nil, rootFn, nil)
		require.NoError(t, err)
		_, err = Enter(self, rr, "root", childTask)
		require.NoError(t, err)
		close(done)
	}

	_, err := rt.Bootstrap(mainFn, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scenario did not complete in time")
	}

	traceMu.Lock()
	got := append([]string(nil), trace...)
	traceMu.Unlock()
	require.Equal(t, []string{"A", "B", "A", "B", "A", "B", "Aexit", "Bexit"}, got)

	waitForCondition(t, time.Second, func() bool { return rt.Base().Vcores() == 0 })
}

// TestScenarioS4BlockThenExternalUnblock is spec.md §8 S4: a task blocks
// (parking itself off the ready queue via Task.Block) and is later made
// runnable again by a call to Unblock originating from outside any vcore's
// dispatch loop (as a completion callback would), which must resume the
// same task's saved continuation rather than starting it over.
func TestScenarioS4BlockThenExternalUnblock(t *testing.T) {
	rt := NewRuntime(WithMaxVcores(1))
	rr := &roundRobin{}

	var stage atomic.Int32 // 0 = not yet blocked, 1 = blocked, 2 = resumed
	done := make(chan struct{})

	var blockedTask *Task

	rootFn := func(self *Task, _ any) {
		blockedTask = self
		stage.Store(1)
		self.Block(func(task *Task, arg any) {}, nil)
		stage.Store(2)
		require.NoError(t, SchedExit(self))
	}

	mainFn := func(self *Task, _ any) {
		childTask, err := Create(nil, rootFn, nil)
		require.NoError(t, err)
		_, err = Enter(self, rr, "root", childTask)
		require.NoError(t, err)
		close(done)
	}

	_, err := rt.Bootstrap(mainFn, nil)
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool { return stage.Load() == 1 })
	require.NotNil(t, blockedTask)

	require.NoError(t, Unblock(blockedTask.Node(), blockedTask))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("blocked task never resumed")
	}
	require.Equal(t, int32(2), stage.Load())
}

// TestScenarioS2GrantLoopManyComputeTasks is spec.md §8 S2: a 2LS starts on
// one vcore, requests more, and runs N compute tasks spread across however
// many vcores the substrate granted — then, once every task has finished,
// tears down cleanly back to zero vcores at the base.
func TestScenarioS2GrantLoopManyComputeTasks(t *testing.T) {
	rt := NewRuntime(WithMaxVcores(4))
	rr := &roundRobin{}

	const n = 1000
	var completed atomic.Int64
	done := make(chan struct{})

	rootFn := func(self *Task, _ any) {
		node := self.Node()

		granted := Request(node, 3)
		require.Equal(t, 3, granted)

		for i := 0; i < n; i++ {
			task, err := Create(node, func(self *Task, _ any) {
				completed.Add(1)
			}, nil)
			require.NoError(t, err)
			rr.enqueue(task)
		}

		for completed.Load() < int64(n) {
			self.Yield()
		}
		require.NoError(t, SchedExit(self))
	}

	mainFn := func(self *Task, _ any) {
		childTask, err := Create(nil, rootFn, nil)
		require.NoError(t, err)
		_, err = Enter(self, rr, "root", childTask)
		require.NoError(t, err)
		close(done)
	}

	_, err := rt.Bootstrap(mainFn, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scenario did not complete in time")
	}

	require.Equal(t, int64(n), completed.Load())
	waitForCondition(t, time.Second, func() bool { return rt.Base().Vcores() == 0 })
}

// TestScenarioS3NestedSchedulerPreservesOuterStack is spec.md §8 S3: a task
// running under one 2LS registers a second, inner 2LS, runs tasks under it,
// exits the inner 2LS, and continues — the outer task's own local state must
// survive the round trip untouched, since Enter/SchedExit hijack the
// underlying goroutine rather than replacing it.
func TestScenarioS3NestedSchedulerPreservesOuterStack(t *testing.T) {
	rt := NewRuntime(WithMaxVcores(1))
	outerRR := &roundRobin{}
	done := make(chan struct{})

	const (
		nInner     = 10
		canaryWant = 0xC0FFEE
	)
	var innerCompleted atomic.Int64
	var canaryAfter int

	outerFn := func(self *Task, _ any) {
		canary := canaryWant // outer task's own goroutine-stack local

		innerRR := &roundRobin{}
		innerRootFn := func(self *Task, _ any) {
			node := self.Node()
			for i := 0; i < nInner; i++ {
				task, err := Create(node, func(self *Task, _ any) {
					innerCompleted.Add(1)
				}, nil)
				require.NoError(t, err)
				innerRR.enqueue(task)
			}
			for innerCompleted.Load() < int64(nInner) {
				self.Yield()
			}
			require.NoError(t, SchedExit(self))
		}
		innerRoot, err := Create(nil, innerRootFn, nil)
		require.NoError(t, err)

		_, err = Enter(self, innerRR, "inner", innerRoot)
		require.NoError(t, err)

		// Resumes here once the inner 2LS has fully torn down; canary must
		// still hold the value set before Enter ever ran.
		canaryAfter = canary
		require.NoError(t, SchedExit(self))
	}

	mainFn := func(self *Task, _ any) {
		childTask, err := Create(nil, outerFn, nil)
		require.NoError(t, err)
		_, err = Enter(self, outerRR, "outer", childTask)
		require.NoError(t, err)
		close(done)
	}

	_, err := rt.Bootstrap(mainFn, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scenario did not complete in time")
	}

	require.Equal(t, int64(nInner), innerCompleted.Load())
	require.Equal(t, canaryWant, canaryAfter)
	waitForCondition(t, time.Second, func() bool { return rt.Base().Vcores() == 0 })
}

// TestEnterRejectsNilArguments covers spec.md §7's allocation-failure
// surface for Enter's precondition checks.
func TestEnterRejectsNilArguments(t *testing.T) {
	rt := NewRuntime(WithMaxVcores(1))
	rr := &roundRobin{}
	done := make(chan struct{})

	mainFn := func(self *Task, _ any) {
		defer close(done)

		_, err := Enter(self, nil, nil, nil)
		require.ErrorIs(t, err, ErrNilFuncs)

		_, err = Enter(self, rr, nil, nil)
		require.ErrorIs(t, err, ErrNilStartTask)
	}

	_, err := rt.Bootstrap(mainFn, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("mainFn never completed")
	}
}

// TestCreateRejectsNilBody covers spec.md §7 for Create's own precondition.
func TestCreateRejectsNilBody(t *testing.T) {
	_, err := Create(nil, nil, nil)
	require.ErrorIs(t, err, ErrNilBody)
}
