package infra

import (
	"runtime"
)

const (
	maxSpinBackoff  = 32
	procYieldCycles = 20
)

// CASBackoff paces the retries of a goroutine that lost a compare-and-swap race.
// It spins with PAUSE first and then gives up the processor, the same way
// as a spin lock acquiring.
// A CASBackoff is owned by a single goroutine (one operation), so it is not
// concurrent safe.
type CASBackoff struct {
	budget  int64 // Non-positive means endless retry.
	retries int64
	spins   uint8
}

func NewCASBackoff(budget int64) CASBackoff {
	return CASBackoff{
		budget: budget,
		spins:  1,
	}
}

// Next blocks shortly and reports whether one more retry is permitted.
func (b *CASBackoff) Next() bool {
	if b.budget > 0 && b.retries >= b.budget {
		return false
	}
	b.retries++
	if b.spins == 0 {
		b.spins = 1
	}
	if b.spins <= maxSpinBackoff {
		for i := uint8(0); i < b.spins; i++ {
			ProcYield(procYieldCycles)
		}
		b.spins <<= 1
	} else {
		runtime.Gosched()
	}
	return true
}

func (b *CASBackoff) Retries() int64 {
	return b.retries
}

func (b *CASBackoff) Exhausted() bool {
	return b.budget > 0 && b.retries >= b.budget
}
