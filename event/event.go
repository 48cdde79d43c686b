// Package event implements the event channel (spec.md §2 item 5): a post/
// drain channel of typed messages from backing threads to vcores, used to
// deliver syscall-completion and alarm-firing notifications.
//
// The ring is modeled on the masked power-of-two ring buffer pattern used
// throughout the teacher's ecosystem (catrate's internal ringBuffer,
// eventloop's MicrotaskRing): a fixed-capacity circular buffer for the
// common case, with a two-tier fallback to an overflow slice on the rare
// occasion more events arrive between drains than the ring can hold, rather
// than dropping or blocking a backing thread indefinitely.
package event

import (
	"sync"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// Kind distinguishes the origin of a posted Event.
type Kind int

const (
	// KindSyscallComplete signals a blocking syscall finished on a backing
	// thread; spec.md §4.9.
	KindSyscallComplete Kind = iota
	// KindAlarmFired signals an alarm's callback is due; spec.md §4.10.
	KindAlarmFired
)

// Event is one posted notification. TaskID identifies the task a
// KindSyscallComplete event concerns; Result/Err carry the syscall's
// outcome.
type Event struct {
	Kind   Kind
	TaskID uint64
	Result any
	Err    error
}

// Channel is a multi-producer, single-consumer event channel: any number of
// backing threads may Post concurrently, and exactly one vcore dispatcher
// drains it per tick.
type Channel struct {
	mu       sync.Mutex
	ring     []Event
	r, w     uint
	overflow []Event
}

// NewChannel allocates a Channel whose fast-path ring holds capacity
// events before falling back to the overflow slice. capacity is rounded up
// to the next power of two, matching the masked-index ring buffers used
// elsewhere in the ecosystem.
func NewChannel(capacity int) *Channel {
	return &Channel{ring: make([]Event, nextPow2(capacity))}
}

// nextPow2 rounds n up to the next power of two, treating n<=1 as 1 —
// shared shape with catrate's masked ring buffer sizing.
func nextPow2[T constraints.Integer](n T) T {
	if n <= 1 {
		return 1
	}
	size := T(1)
	for size < n {
		size <<= 1
	}
	return size
}

func (c *Channel) mask(v uint) uint {
	return v & (uint(len(c.ring)) - 1)
}

func (c *Channel) len() int {
	return int(c.w - c.r)
}

// Post enqueues e. Safe to call concurrently from any number of goroutines.
func (c *Channel) Post(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.len() == len(c.ring) {
		// Ring momentarily saturated: an unusual, but recoverable, spike in
		// backing-thread completions outpacing the vcore's drain rate.
		// Overflow absorbs it rather than blocking the backing thread
		// (which would risk deadlocking a syscall-completion pipeline on
		// the consumer it is trying to notify).
		c.overflow = slices.Insert(c.overflow, len(c.overflow), e)
		return
	}
	c.ring[c.mask(c.w)] = e
	c.w++
}

// Drain removes and returns every currently-queued Event, ring first then
// overflow, preserving post order within each tier.
func (c *Channel) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.len()
	if n == 0 && len(c.overflow) == 0 {
		return nil
	}
	out := make([]Event, 0, n+len(c.overflow))
	for i := 0; i < n; i++ {
		out = append(out, c.ring[c.mask(c.r+uint(i))])
	}
	c.r += uint(n)
	out = append(out, c.overflow...)
	c.overflow = nil
	return out
}
