// Package tlsvar realizes the TLS facility (the original's allocate_tls /
// get_tls_addr / begin_access_tls_vars machinery) without address
// arithmetic.
//
// The original computes the address of a variable in another context's TLS
// block by taking the offset of that variable from the current TLS base and
// adding it to the target descriptor's base address — safe only because
// every context's TLS block has identical layout. Go has no equivalent: we
// cannot take "the address of a local in goroutine B" from goroutine A. The
// facility is instead realized as a typed, indexed slot table: a Descriptor
// is a fixed-layout block of slots (identical layout per descriptor, same
// invariant the original relies on), and a Key[T] identifies "the same
// variable" across every descriptor the way an offset does in the original.
package tlsvar

import (
	"fmt"
	"sync/atomic"
)

// Descriptor is one context's TLS block: a vcore's or an unbound uthread's.
// All Descriptors share the same slot layout, so a Key[T] obtained via
// NewKey addresses "the same variable" in every Descriptor, mirroring the
// original's get_tls_addr offset trick.
type Descriptor struct {
	slots []atomic.Pointer[any]
}

var slotCount atomic.Int64

// Key identifies one TLS variable, shared across every Descriptor.
type Key[T any] struct {
	idx int
}

// NewKey allocates a new slot index, shared by every Descriptor that will
// ever exist. Keys are meant to be created at init time, one per logical TLS
// variable, not dynamically per-task.
func NewKey[T any]() Key[T] {
	idx := int(slotCount.Add(1) - 1)
	return Key[T]{idx: idx}
}

// Allocate returns a fresh Descriptor sized to hold every Key registered so
// far, mirroring allocate_tls.
func Allocate() *Descriptor {
	n := int(slotCount.Load())
	return &Descriptor{slots: make([]atomic.Pointer[any], n)}
}

// Reinit clears every slot in place, mirroring reinit_tls: the descriptor's
// identity (and thus the address any other context has cached) is
// preserved, only its contents reset.
func (d *Descriptor) Reinit() {
	for i := range d.slots {
		d.slots[i].Store(nil)
	}
}

// Get reads the value of k in d. It panics if k was registered after d was
// allocated, since that indicates a Descriptor created before its program's
// TLS layout was finalized — a programming error, not a runtime condition.
func (k Key[T]) Get(d *Descriptor) T {
	var zero T
	if k.idx >= len(d.slots) {
		panic(fmt.Sprintf("tlsvar: key registered after descriptor allocation (idx=%d, slots=%d)", k.idx, len(d.slots)))
	}
	p := d.slots[k.idx].Load()
	if p == nil {
		return zero
	}
	return (*p).(T)
}

// Set writes the value of k in d. Safe to call from any goroutine, since the
// original's cross-context TLS write is exactly what get_tls_addr exists to
// support: a vcore writing into another, not-currently-running context's
// TLS block.
func (k Key[T]) Set(d *Descriptor, v T) {
	if k.idx >= len(d.slots) {
		panic(fmt.Sprintf("tlsvar: key registered after descriptor allocation (idx=%d, slots=%d)", k.idx, len(d.slots)))
	}
	var a any = v
	d.slots[k.idx].Store(&a)
}
