package tree

type searchKind uint8

const (
	emptyTree searchKind = iota
	found
	insertionPoint
)

// searchResult is the relaxed view of the tree observed by one walk.
// The shape may have changed once it is returned, so callers revalidate
// the position by a CAS against the observed link.
type searchResult[T any] struct {
	kind     searchKind
	node     *xConcBSTNode[T] // found: live node holds the target
	parent   *xConcBSTNode[T] // insertionPoint: nil means the root slot
	side     Direction
	slot     *childSlot[T]
	observed *link[T]
	// The first detachable node met on the path.
	// The caller removes it opportunistically.
	spliceCandidate *xConcBSTNode[T]
}

func (res *searchResult[T]) isFrozen() bool {
	return res.observed.isFrozen()
}

// search walks down from the root by left/right comparisons.
//  1. equal and live, found.
//  2. equal and tombstoned, the target belongs to the tombstoned
//     node's right subtree, keep walking right.
//  3. less, turn to left part.
//  4. greater, turn to right part.
//  5. the required child slot is empty, insertion point.
//
// A miss is only reported if the last node where the walk turned right
// is not frozen. A frozen one may be relocated, and its successor copied
// above the walker, so the walk helps it and restarts from the root.
// Otherwise no mutation and no lock.
func (bst *xConcBST[T]) search(target T) searchResult[T] {
	for {
		res, lastRight := bst.walk(target)
		if res.kind == insertionPoint && lastRight != nil && lastRight.right.load().isFrozen() {
			bst.unlink(lastRight)
			continue
		}
		return res
	}
}

func (bst *xConcBST[T]) walk(target T) (res searchResult[T], lastRight *xConcBSTNode[T]) {
	res = searchResult[T]{
		kind: emptyTree,
		side: Root,
		slot: &bst.root,
	}
	res.observed = res.slot.load()
	if res.observed.isEmpty() {
		return res, nil
	}

	for aux := res.observed.child; ; aux = res.observed.child {
		tombstoned := aux.isTombstoned()
		if res.spliceCandidate == nil && aux.isDetachable() {
			res.spliceCandidate = aux
		}

		cmp := bst.cmp(target, aux.loadVal())
		if /* equal */ cmp == 0 && !tombstoned {
			res.kind = found
			res.node = aux
			res.slot, res.observed = nil, nil
			return res, lastRight
		}
		if /* less */ cmp < 0 {
			res.side = Left
		} else /* greater or tombstoned equal */ {
			res.side = Right
			lastRight = aux
		}
		res.parent = aux
		res.slot = aux.slot(res.side)
		if res.observed = res.slot.load(); res.observed.isEmpty() {
			res.kind = insertionPoint
			return res, lastRight
		}
	}
}

// locate finds the slot which links the node now.
// The walk follows the node's value and compares the identity, because the
// tombstoned duplicates of the same value are chained in the right subtrees.
func (bst *xConcBST[T]) locate(node *xConcBSTNode[T]) (
	slot *childSlot[T],
	owner *xConcBSTNode[T],
	observed *link[T],
	ok bool,
) {
	target := node.loadVal()
	slot = &bst.root
	for {
		observed = slot.load()
		if observed.isEmpty() {
			return nil, nil, nil, false
		}
		aux := observed.child
		if aux == node {
			return slot, owner, observed, true
		}
		owner = aux
		if bst.cmp(target, aux.loadVal()) < 0 {
			slot = &aux.left
		} else {
			slot = &aux.right
		}
	}
}
