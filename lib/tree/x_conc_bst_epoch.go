package tree

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/benz9527/xtree/lib/id"
)

// References:
// https://www.cl.cam.ac.uk/techreports/UCAM-CL-TR-579.pdf (epoch based reclamation)
// https://github.com/crossbeam-rs/crossbeam/tree/master/crossbeam-epoch
//
// The ledger replaces a per node reference count. Every operation pins the
// current global epoch into a reader record before it loads the root, and
// unpins after its last dereference (for Find, after the Guard released).
//
// Pin:
//  1. e = global
//  2. record.epoch = e
//  3. if global != e goto 1
//
// Retire (after the node has been unlinked):
//  1. r = ++global
//  2. push (node, r) into the retired stack
//
// Reclaim frees (node, r) if every pinned record has epoch >= r.
// A record confirms its epoch by reloading the global after publishing it,
// so a pinned epoch >= r means the reader loaded the root after the unlink
// and can't reach the node. Go atomic operations are sequentially consistent.

const (
	epochUnpinned = 0
	reclaimBatch  = 64 // pending nodes which trigger a reclamation while readers are still active
)

type readerRecord struct {
	_     cpu.CacheLinePad // padding for CPU cache line, avoid false sharing
	epoch atomic.Uint64
	inUse atomic.Bool
	next  *readerRecord // immutable after the record is published
	_     cpu.CacheLinePad
}

type retiredNode[T any] struct {
	node  *xConcBSTNode[T]
	epoch uint64
	next  *retiredNode[T]
}

type epochLedger[T any] struct {
	global     *id.MonotonicNonZero
	readers    atomic.Pointer[readerRecord] // grows only, the records are reused
	retired    atomic.Pointer[retiredNode[T]]
	reclaiming atomic.Bool
	reclaimAt  atomic.Int64 // pending watermark of the next reclamation with active readers
	active     atomic.Int64
	pending    atomic.Int64
	retiredN   atomic.Uint64
	reclaimedN atomic.Uint64
	free       func(node *xConcBSTNode[T])
}

func newEpochLedger[T any](free func(node *xConcBSTNode[T])) *epochLedger[T] {
	l := &epochLedger[T]{
		global: id.NewMonotonicNonZero(1), // 0 is reserved as unpinned
		free:   free,
	}
	l.reclaimAt.Store(reclaimBatch)
	return l
}

func (l *epochLedger[T]) acquireRecord() *readerRecord {
	for rec := l.readers.Load(); rec != nil; rec = rec.next {
		if !rec.inUse.Load() && rec.inUse.CompareAndSwap(false, true) {
			return rec
		}
	}
	rec := &readerRecord{}
	rec.inUse.Store(true)
	for {
		head := l.readers.Load()
		rec.next = head
		if l.readers.CompareAndSwap(head, rec) {
			return rec
		}
	}
}

// pin registers an active reader.
func (l *epochLedger[T]) pin() *readerRecord {
	rec := l.acquireRecord()
	for {
		e := l.global.Load()
		rec.epoch.Store(e)
		if l.global.Load() == e {
			break
		}
	}
	l.active.Add(1)
	return rec
}

// unpin deregisters the reader. The last active reader, or any reader
// once the pending nodes reach the watermark, triggers the reclamation.
// The watermark is doubled over the nodes left behind by a long pinned
// reader, so the reclamation scans stay amortized O(1) per retirement.
func (l *epochLedger[T]) unpin(rec *readerRecord) {
	if rec == nil {
		return
	}
	rec.epoch.Store(epochUnpinned)
	rec.inUse.Store(false)
	active := l.active.Add(-1)
	if pending := l.pending.Load(); pending > 0 && (active == 0 || pending >= l.reclaimAt.Load()) {
		l.reclaim()
	}
}

// retire hands an unlinked node to the ledger.
// Only the goroutine which unlinked the node may retire it, and only once.
func (l *epochLedger[T]) retire(node *xConcBSTNode[T]) {
	r := &retiredNode[T]{
		node:  node,
		epoch: l.global.Next(),
	}
	for {
		head := l.retired.Load()
		r.next = head
		if l.retired.CompareAndSwap(head, r) {
			break
		}
	}
	l.pending.Add(1)
	l.retiredN.Add(1)
}

func (l *epochLedger[T]) minPinnedEpoch() uint64 {
	minEpoch := uint64(math.MaxUint64)
	for rec := l.readers.Load(); rec != nil; rec = rec.next {
		if e := rec.epoch.Load(); e != epochUnpinned && e < minEpoch {
			minEpoch = e
		}
	}
	return minEpoch
}

// reclaim frees all nodes retired before the oldest pinned reader's epoch.
// Only one goroutine reclaims at a time, the others skip instead of waiting.
func (l *epochLedger[T]) reclaim() int64 {
	if !l.reclaiming.CompareAndSwap(false, true) {
		return 0
	}
	defer l.reclaiming.Store(false)

	head := l.retired.Swap(nil)
	if head == nil {
		return 0
	}
	minEpoch := l.minPinnedEpoch()
	var (
		keepHead, keepTail *retiredNode[T]
		freed              int64
	)
	for r := head; r != nil; {
		next := r.next
		if r.epoch <= minEpoch {
			l.free(r.node)
			r.node = nil
			freed++
		} else {
			r.next = nil
			if keepTail == nil {
				keepHead = r
			} else {
				keepTail.next = r
			}
			keepTail = r
		}
		r = next
	}
	if keepHead != nil {
		for {
			old := l.retired.Load()
			keepTail.next = old
			if l.retired.CompareAndSwap(old, keepHead) {
				break
			}
		}
	}
	left := l.pending.Add(-freed)
	l.reclaimAt.Store(max(reclaimBatch, left*2))
	l.reclaimedN.Add(uint64(freed))
	return freed
}
