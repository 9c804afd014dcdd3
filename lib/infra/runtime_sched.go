package infra

import (
	_ "unsafe"
)

//go:linkname procYield runtime.procyield
func procYield(cycles uint32)

// ProcYield executes the PAUSE instruction cycles times
// without giving up the P.
func ProcYield(cycles uint32) {
	procYield(cycles)
}
