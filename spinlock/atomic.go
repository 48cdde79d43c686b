package spinlock

import "sync/atomic"

func atomicCAS(addr *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(addr, old, new)
}

func atomicAddInt64(addr *int64, delta int64) int64 {
	return atomic.AddInt64(addr, delta)
}

func atomicLoadInt64(addr *int64) int64 {
	return atomic.LoadInt64(addr)
}
