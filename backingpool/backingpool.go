// Package backingpool implements the backing-kernel-thread pool (spec.md
// §2 item 6): a bounded pool of OS threads used to simulate async I/O by
// blocking on a syscall and signalling completion via an event.
//
// Built directly on github.com/joeycumines/go-microbatch's Batcher[Job]:
// MaxSize is pinned to 1 (batching unrelated blocking syscalls together
// would just serialize independent I/O), so each submission is its own
// "batch," and MaxConcurrency bounds how many such single-job batches may
// run at once — exactly the "bounded pool of OS threads" spec.md asks for,
// without hand-rolling a semaphore and WaitGroup.
package backingpool

import (
	"context"

	"github.com/joeycumines/go-microbatch"
)

type job[T any] struct {
	fn     func() (T, error)
	result T
	err    error
}

// Result is the outcome of one submitted job, resolved asynchronously.
type Result[T any] struct {
	jr *microbatch.JobResult[*job[T]]
}

// Wait blocks until the job completes or ctx is done, whichever comes
// first.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	if err := r.jr.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	j := r.jr.Job
	return j.result, j.err
}

// Pool bounds the number of concurrently-running blocking jobs.
type Pool[T any] struct {
	batcher *microbatch.Batcher[*job[T]]
}

// New constructs a Pool allowing up to maxConcurrency jobs to run
// simultaneously. Submissions beyond that bound queue until a slot frees,
// never spawning an unbounded number of OS threads the way a bare `go func`
// per blocking syscall would.
func New[T any](maxConcurrency int) *Pool[T] {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	b := microbatch.NewBatcher[*job[T]](&microbatch.BatcherConfig{
		MaxSize:        1,
		FlushInterval:  -1,
		MaxConcurrency: maxConcurrency,
	}, func(_ context.Context, jobs []*job[T]) error {
		for _, j := range jobs {
			j.result, j.err = j.fn()
		}
		return nil
	})
	return &Pool[T]{batcher: b}
}

// Submit runs fn on a pooled goroutine, once a concurrency slot is
// available, and returns a Result the caller can Wait on. fn is expected to
// be a genuinely blocking call (spec.md §4.9's block_fn).
//
// Submit panics if the pool has already been shut down via Wait — callers
// own sequencing their own submissions relative to shutdown.
func (p *Pool[T]) Submit(fn func() (T, error)) *Result[T] {
	j := &job[T]{fn: fn}
	jr, err := p.batcher.Submit(context.Background(), j)
	if err != nil {
		panic("backingpool: Submit called after the pool was shut down")
	}
	return &Result[T]{jr: jr}
}

// Wait stops accepting further submissions and blocks until every job
// submitted so far has completed. Used during shutdown to avoid abandoning
// in-flight blocking syscalls.
func (p *Pool[T]) Wait() {
	_ = p.batcher.Shutdown(context.Background())
}
