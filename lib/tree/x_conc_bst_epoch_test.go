package tree

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*epochLedger[int], *[]*xConcBSTNode[int]) {
	freed := make([]*xConcBSTNode[int], 0, 8)
	ledger := newEpochLedger[int](func(node *xConcBSTNode[int]) {
		freed = append(freed, node)
	})
	return ledger, &freed
}

func TestEpochLedger_PinAndReuseRecord(t *testing.T) {
	ledger, _ := newTestLedger()
	require.Equal(t, uint64(math.MaxUint64), ledger.minPinnedEpoch())

	rec := ledger.pin()
	require.Equal(t, uint64(1), rec.epoch.Load())
	require.True(t, rec.inUse.Load())
	require.Equal(t, int64(1), ledger.active.Load())
	require.Equal(t, uint64(1), ledger.minPinnedEpoch())

	rec2 := ledger.pin()
	require.NotSame(t, rec, rec2)

	ledger.unpin(rec)
	require.Equal(t, uint64(epochUnpinned), rec.epoch.Load())
	require.False(t, rec.inUse.Load())

	rec3 := ledger.pin()
	require.Same(t, rec, rec3)
	ledger.unpin(rec2)
	ledger.unpin(rec3)
	ledger.unpin(nil)
	require.Equal(t, int64(0), ledger.active.Load())
}

func TestEpochLedger_ReclaimAfterReadersPassed(t *testing.T) {
	ledger, freed := newTestLedger()
	pool := newXConcBSTPool[int](0)

	old := ledger.pin()
	n1 := pool.loadNode(1)
	ledger.retire(n1)
	require.Equal(t, int64(1), ledger.pending.Load())
	require.Equal(t, uint64(2), ledger.global.Load())

	// A reader pinned after the retirement can't reach n1.
	young := ledger.pin()
	require.Equal(t, uint64(2), young.epoch.Load())

	require.Equal(t, int64(0), ledger.reclaim())
	require.Empty(t, *freed)

	n2 := pool.loadNode(2)
	ledger.retire(n2)

	ledger.unpin(old) // young still active, below the batch
	require.Empty(t, *freed)
	require.Equal(t, int64(2), ledger.pending.Load())

	// n1 retired at 2 <= young 2, n2 retired at 3 > young 2.
	require.Equal(t, int64(1), ledger.reclaim())
	require.Equal(t, []*xConcBSTNode[int]{n1}, *freed)

	ledger.unpin(young) // last reader triggers the reclamation
	require.Equal(t, []*xConcBSTNode[int]{n1, n2}, *freed)
	require.Equal(t, int64(0), ledger.pending.Load())
	require.Equal(t, uint64(2), ledger.retiredN.Load())
	require.Equal(t, uint64(2), ledger.reclaimedN.Load())
}

func TestEpochLedger_ReclaimBatch(t *testing.T) {
	ledger, freed := newTestLedger()
	pool := newXConcBSTPool[int](0)

	rec := ledger.pin()
	for i := 0; i < reclaimBatch; i++ {
		ledger.retire(pool.loadNode(i))
	}
	// Pinned after all retirements, so it doesn't hold any of them back.
	young := ledger.pin()
	ledger.unpin(rec)
	require.Len(t, *freed, reclaimBatch)
	ledger.unpin(young)
}

func TestEpochLedger_ReclaimWatermark(t *testing.T) {
	ledger, freed := newTestLedger()
	pool := newXConcBSTPool[int](0)
	require.Equal(t, int64(reclaimBatch), ledger.reclaimAt.Load())

	old := ledger.pin()
	retireAndTouch := func(n int) {
		for i := 0; i < n; i++ {
			ledger.retire(pool.loadNode(i))
		}
		ledger.unpin(ledger.pin())
	}

	// The old reader holds everything back, the watermark doubles.
	retireAndTouch(reclaimBatch)
	require.Empty(t, *freed)
	require.Equal(t, int64(2*reclaimBatch), ledger.reclaimAt.Load())

	// Below the watermark, no scan.
	retireAndTouch(1)
	require.Equal(t, int64(2*reclaimBatch), ledger.reclaimAt.Load())

	retireAndTouch(reclaimBatch - 1)
	require.Empty(t, *freed)
	require.Equal(t, int64(4*reclaimBatch), ledger.reclaimAt.Load())

	// The last reader frees all of them and resets the watermark.
	ledger.unpin(old)
	require.Len(t, *freed, 2*reclaimBatch)
	require.Equal(t, int64(reclaimBatch), ledger.reclaimAt.Load())
}

func TestEpochLedger_ConcurrentPinRetire(t *testing.T) {
	var (
		lock  sync.Mutex
		freed = make(map[*xConcBSTNode[int]]struct{}, 1024)
		pool  = newXConcBSTPool[int](0)
	)
	ledger := newEpochLedger[int](func(node *xConcBSTNode[int]) {
		lock.Lock()
		defer lock.Unlock()
		_, exists := freed[node]
		assert.False(t, exists)
		freed[node] = struct{}{}
	})

	var wg sync.WaitGroup
	workers, rounds := 8, 512
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				rec := ledger.pin()
				ledger.retire(pool.loadNode(w*rounds + i))
				ledger.unpin(rec)
			}
		}(w)
	}
	wg.Wait()
	ledger.reclaim()
	require.Len(t, freed, workers*rounds)
	require.Equal(t, int64(0), ledger.pending.Load())
	require.Equal(t, int64(0), ledger.active.Load())
}
