package id

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

const cacheLinePadSize = unsafe.Sizeof(cpu.CacheLinePad{})

// MonotonicNonZero is a counter that only increases. Zero is reserved
// as the "unset" marker, so if it overflows, it will be reset to 1.
// Occupy a whole cache line (flag+tag+data), and a cache line data is 64 bytes.
// L1D cache: cat /sys/devices/system/cpu/cpu0/cache/index0/coherency_line_size
// MESI (Modified-Exclusive-Shared-Invalid)
// CPU register (cache hit) -> L1 cache -> L2 cache -> L3 cache -> RAM data.
type MonotonicNonZero struct {
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte // padding for CPU cache line, avoid false sharing
	val uint64
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte // padding for CPU cache line, avoid false sharing
}

// Next increases the counter and returns the new value.
// Go atomic operations are sequentially consistent, so Next
// happens-before every Load that observes its result.
// https://go.dev/ref/mem
func (id *MonotonicNonZero) Next() uint64 {
	var v uint64
	if v = atomic.AddUint64(&id.val, 1); v == 0 {
		v = atomic.AddUint64(&id.val, 1)
	}
	return v
}

// Load returns the current value, 0 before the first Next.
func (id *MonotonicNonZero) Load() uint64 {
	return atomic.LoadUint64(&id.val)
}

func NewMonotonicNonZero(init uint64) *MonotonicNonZero {
	return &MonotonicNonZero{val: init}
}
