package lithe

import (
	"time"

	"github.com/utanapishtim/parlib/vcore"
)

// RuntimeOption configures a Runtime at construction, matching the
// teacher's LoopOption/loopOptions split: an exported interface plus an
// unexported options struct resolved once, rather than a sprawling
// constructor parameter list.
type RuntimeOption interface {
	apply(*runtimeOptions)
}

type runtimeOptions struct {
	maxVcores          int
	backingConcurrency int
	eventCapacity      int
	rateLimits         map[time.Duration]int
	substrateFactory   func(vcore.EntryFunc) vcore.Substrate
}

func defaultRuntimeOptions() runtimeOptions {
	return runtimeOptions{
		maxVcores:          1,
		backingConcurrency: 8,
		eventCapacity:      64,
		rateLimits:         map[time.Duration]int{time.Second: 1000},
	}
}

type runtimeOptionFunc func(*runtimeOptions)

func (f runtimeOptionFunc) apply(o *runtimeOptions) { f(o) }

// WithMaxVcores bounds how many vcores the reference substrate will ever
// grant concurrently.
func WithMaxVcores(n int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.maxVcores = n })
}

// WithBackingConcurrency bounds the backing-thread pool's concurrency
// (spec.md §2 item 6).
func WithBackingConcurrency(n int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.backingConcurrency = n })
}

// WithEventCapacity sizes the fast-path ring of the event channel (spec.md
// §2 item 5) before it falls back to overflow.
func WithEventCapacity(n int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.eventCapacity = n })
}

// WithRateLimits configures the catrate.Limiter gating vcore_request calls
// (Component 11): a map of window duration to the max requests allowed in
// that window.
func WithRateLimits(rates map[time.Duration]int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.rateLimits = rates })
}

// WithSubstrate overrides the vcore.Substrate construction, for embedding a
// real OS-facing vcore allocator in place of the in-process reference
// substrate (vcore.Sim).
func WithSubstrate(factory func(vcore.EntryFunc) vcore.Substrate) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.substrateFactory = factory })
}

func resolveRuntimeOptions(opts []RuntimeOption) runtimeOptions {
	o := defaultRuntimeOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.substrateFactory == nil {
		maxVcores := o.maxVcores
		o.substrateFactory = func(entry vcore.EntryFunc) vcore.Substrate {
			return vcore.NewSim(maxVcores, entry)
		}
	}
	return o
}
