package tree

import (
	"sync"
)

// xConcBSTPool recycles the nodes reclaimed by the epoch ledger.
type xConcBSTPool[T any] struct {
	nodePool *sync.Pool
}

func newXConcBSTPool[T any](prewarm int) *xConcBSTPool[T] {
	p := &xConcBSTPool[T]{
		nodePool: &sync.Pool{
			New: func() any {
				return new(xConcBSTNode[T])
			},
		},
	}
	for i := 0; i < prewarm; i++ {
		p.nodePool.Put(new(xConcBSTNode[T]))
	}
	return p
}

func (p *xConcBSTPool[T]) loadNode(val T) *xConcBSTNode[T] {
	return p.nodePool.Get().(*xConcBSTNode[T]).init(val)
}

func (p *xConcBSTPool[T]) loadCopy(src *xConcBSTNode[T]) *xConcBSTNode[T] {
	return p.nodePool.Get().(*xConcBSTNode[T]).initCopy(src)
}

// releaseNode only accepts the nodes that are unreachable for all readers.
// 1. The detached node lost the linking race (never published).
// 2. The retired node passed the reclamation grace period.
func (p *xConcBSTPool[T]) releaseNode(node *xConcBSTNode[T]) {
	node.reset()
	p.nodePool.Put(node)
}
