// Package vcore implements the vcore abstraction (spec.md §2 item 3): an
// opaque fixed-size pool of schedulable execution contexts with request,
// yield, per-vcore TLS, and an entry upcall.
//
// The real OS-facing allocator is out of scope (spec.md §1) — this package
// defines the Substrate contract the core consumes and ships an in-process
// reference implementation (Sim) that drives the contract with real pinned
// goroutines, sufficient to exercise every invariant in spec.md §8 without a
// kernel patch.
package vcore

import "fmt"

// ID identifies a single vcore, stable for the vcore's lifetime.
type ID int

// EntryFunc is the single upcall a Substrate makes into the core every time
// a vcore is handed to it: on first entry, after a yield, after a signal, or
// after an uthread_yield. The core must not return from it.
type EntryFunc func(id ID)

// Substrate is the contract the core consumes from whatever hands out
// vcores: vcore_request (Request), vcore_yield (Yield), and the MaxVcores/
// NumVcores counters. The vcore_entry upcall is registered at construction
// rather than being a method here, and the vcore id is passed to it as an
// argument. There is no set-TLS-variable or in-vcore-context operation.
type Substrate interface {
	// Request asks for k additional vcores, returning how many were granted
	// synchronously. More may arrive asynchronously via subsequent Entry
	// calls (spec.md §4.7).
	Request(k int) int
	// Yield relinquishes the calling vcore back to the substrate. It does
	// not return; when the vcore is re-granted, Entry is called again for
	// it.
	Yield(id ID)
	// MaxVcores reports the ceiling on concurrently-granted vcores.
	MaxVcores() int
	// NumVcores reports the number currently granted.
	NumVcores() int
}

// Locals holds the per-vcore state spec.md §3 calls VcoreTls: the scheduler
// currently serviced by this vcore, and the next continuation to run on
// re-entry. It is generic over the concrete scheduler-node and task types so
// this package has no dependency on the lithe package (avoiding an import
// cycle, since lithe is the consumer of vcore, not the other way around).
type Locals[S any, T any] struct {
	// CurrentSched is the scheduler node this vcore currently services.
	CurrentSched S
	// CurrentTask is the task presently resident on this vcore, if any —
	// the original's current_uthread, set across a hijack so a signal
	// restart or re-entry knows to resume it rather than pick a new one.
	CurrentTask T
	// NextTask, if non-nil, is the task to start on next Entry.
	NextTask T
	// NextFunc, if set, is the continuation to call in vcore context on
	// next Entry. At most one of NextTask/NextFunc is set outside Entry,
	// per spec.md §3.
	NextFunc func()
}

// Table is a vcore-indexed array of Locals, standing in for the native
// per-vcore TLS the original uses (spec.md §5, §9 "Thread-local state": "a
// vcore-indexed array ... Avoid any language feature that would allocate
// heap on entry" — Go has no goroutine-local storage, so the spec's own
// preferred fallback is what we implement).
type Table[S any, T any] struct {
	slots []Locals[S, T]
}

// NewTable allocates a Table sized for up to maxVcores concurrently-live
// vcore ids.
func NewTable[S any, T any](maxVcores int) *Table[S, T] {
	return &Table[S, T]{slots: make([]Locals[S, T], maxVcores)}
}

// At returns a pointer to the Locals for id, for in-place mutation. Only the
// owning vcore's dispatcher goroutine should mutate its own slot; the one
// exception in the core is lithe's Runtime.Bootstrap, which seeds slot 0
// before vcore 0 is first requested.
func (t *Table[S, T]) At(id ID) *Locals[S, T] {
	if int(id) < 0 || int(id) >= len(t.slots) {
		panic(fmt.Sprintf("vcore: id %d out of range [0,%d)", id, len(t.slots)))
	}
	return &t.slots[id]
}
