package tree

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/benz9527/xtree/lib/infra"
	"github.com/benz9527/xtree/xlog"
)

// References:
// https://dl.acm.org/doi/10.1145/1835698.1835736 (non-blocking binary search trees)
// https://www.cs.tau.ac.il/~shanir/nir-pubs-web/Papers/Lock_Free_BST.pdf
//
// Concurrent binary search tree set, all elements are stored in the
// internal nodes, no sentinel and no leaf nodes.
//
// Every child slot holds an immutable link (child, frozen). A new link is
// allocated per CAS, so the CAS compares the identity of the link instead
// of the child pointer and it is ABA free even if the nodes are recycled.
//
// Insert: CAS the observed empty slot to a link of the new node.
//
// Delete:
//  1. Logical delete, set the tombstone flag. Only one goroutine wins.
//  2. Physical delete, freeze both slots, the empty slot first.
//     A frozen slot is never changed again, the node is immutable.
//  3. At most one child (splice): CAS the parent slot which links the
//     node to a link of the only child (or empty). A frozen parent slot
//     means the parent is being spliced too, help it first.
//  4. Two children (relocation): replace the node by a copy of its
//     successor, then splice the successor, see x_conc_bst_relocate.go.
//  5. The CAS winner retires the node to the epoch ledger.
//
// A search which missed after turning right at a frozen node restarts,
// because the subtree it went into may have been relocated under a new
// parent, see the search.
//
// Every step may be completed by any goroutine (helping), so there is
// no lock and no goroutine waits for another one.

var (
	ErrXConcBSTDuplicateValue = errors.New("[x-conc-bst] value exists")
	ErrXConcBSTNotFound       = errors.New("[x-conc-bst] value not found")
	ErrXConcBSTIsEmpty        = errors.New("[x-conc-bst] tree is empty")
	ErrXConcBSTRetryExhausted = errors.New("[x-conc-bst] cas retry budget exhausted")
	ErrXConcBSTClosed         = errors.New("[x-conc-bst] tree is closed")
	ErrXConcBSTNilComparator  = errors.New("[x-conc-bst] nil comparator")
)

var (
	_ XConcBST[int] = (*xConcBST[int])(nil)
	_ Guard[int]    = (*xConcBSTGuard[int])(nil)
)

type xConcBST[T any] struct {
	root        childSlot[T] // the slot of root node, never frozen
	cmp         infra.Comparator[T]
	pool        *xConcBSTPool[T]
	ledger      *epochLedger[T]
	logger      xlog.XLogger
	stats       *xConcBSTStats
	retryBudget int64
	len         atomic.Int64
	casRetries  atomic.Uint64
	relocated   atomic.Uint64
	closed      atomic.Bool
}

func (bst *xConcBST[T]) Len() int64 {
	return bst.len.Load()
}

func (bst *xConcBST[T]) Insert(val T) (err error) {
	if bst.closed.Load() {
		return ErrXConcBSTClosed
	}
	rec := bst.ledger.pin()
	defer func() {
		bst.ledger.unpin(rec)
		bst.stats.recordOp(opInsert, err)
	}()

	var (
		node    = bst.pool.loadNode(val)
		backoff = infra.NewCASBackoff(bst.retryBudget)
	)
	for {
		res := bst.search(val)
		switch {
		case res.kind == found:
			// Never published, recycle it at once.
			bst.pool.releaseNode(node)
			return ErrXConcBSTDuplicateValue
		case res.isFrozen():
			// The parent is being spliced out, or claimed by a relocation.
			bst.help(res.parent, res.slot, res.observed)
		case res.slot.cas(res.observed, &link[T]{child: node}):
			bst.len.Add(1)
			bst.unlink(res.spliceCandidate)
			return nil
		}
		if err = bst.retry(&backoff, opInsert); err != nil {
			bst.pool.releaseNode(node)
			return err
		}
	}
}

// Find returns a guard which pins the value until it is released.
// The value of a deleted node is still readable by the guard holder,
// because the node is not recycled while any guard that may reach it
// is alive.
func (bst *xConcBST[T]) Find(val T) (Guard[T], error) {
	rec := bst.ledger.pin()
	res := bst.search(val)
	bst.unlink(res.spliceCandidate)
	if res.kind != found {
		bst.ledger.unpin(rec)
		bst.stats.recordOp(opFind, ErrXConcBSTNotFound)
		return nil, ErrXConcBSTNotFound
	}
	bst.stats.recordOp(opFind, nil)
	g := &xConcBSTGuard[T]{
		ledger: bst.ledger,
		node:   res.node,
	}
	g.rec.Store(rec)
	return g, nil
}

func (bst *xConcBST[T]) Contains(val T) bool {
	rec := bst.ledger.pin()
	defer bst.ledger.unpin(rec)
	res := bst.search(val)
	bst.unlink(res.spliceCandidate)
	return res.kind == found
}

func (bst *xConcBST[T]) Delete(val T) (err error) {
	if bst.closed.Load() {
		return ErrXConcBSTClosed
	}
	rec := bst.ledger.pin()
	defer func() {
		bst.ledger.unpin(rec)
		bst.stats.recordOp(opDelete, err)
	}()

	backoff := infra.NewCASBackoff(bst.retryBudget)
	for {
		res := bst.search(val)
		if res.kind != found {
			bst.unlink(res.spliceCandidate)
			return ErrXConcBSTNotFound
		}
		if res.node.tryTombstone() {
			bst.len.Add(-1)
			bst.unlink(res.node)
			bst.unlink(res.spliceCandidate)
			return nil
		}
		// Another goroutine tombstoned the node, search again for a
		// live duplicate inserted after it.
		if err = bst.retry(&backoff, opDelete); err != nil {
			return err
		}
	}
}

// unlink removes the detachable (tombstoned or moved) node from the tree.
// It is safe to be called by any number of goroutines for the same node,
// only one CAS wins.
func (bst *xConcBST[T]) unlink(node *xConcBSTNode[T]) {
	if node == nil || !node.isDetachable() {
		return
	}
	left, right := node.freeze()
	for {
		// A claimed successor stays until the relocation has replaced
		// the owner.
		rel := left.relocation()
		if rel == nil || rel.arb.done.Load() {
			break
		}
		bst.settle(rel, &node.left, left)
		left, right = node.freeze()
	}

	var child *xConcBSTNode[T]
	switch {
	case left.isEmpty():
		child = right.load()
	case right.isEmpty():
		child = left.load()
	default:
		bst.relocate(node, left.child, right.child)
		return
	}
	for {
		slot, owner, observed, ok := bst.locate(node)
		if !ok {
			return // Spliced by the others.
		}
		if observed.isFrozen() {
			// The root slot is never frozen, the owner is not nil.
			bst.unlink(owner)
			continue
		}
		if slot.cas(observed, &link[T]{child: child}) {
			if node.flags.atomicTrySet(nodeUnlinked) {
				bst.ledger.retire(node)
			}
			return
		}
	}
}

// help unblocks the frozen slot observed by an insertion.
func (bst *xConcBST[T]) help(parent *xConcBSTNode[T], slot *childSlot[T], observed *link[T]) {
	if rel := observed.relocation(); rel != nil {
		bst.settle(rel, slot, observed)
		return
	}
	bst.unlink(parent)
}

func (bst *xConcBST[T]) retry(backoff *infra.CASBackoff, op string) error {
	bst.casRetries.Add(1)
	if backoff.Next() {
		return nil
	}
	if bst.logger != nil {
		bst.logger.Warn("[x-conc-bst] cas retry budget exhausted",
			zap.String("op", op),
			zap.Int64("retries", backoff.Retries()),
		)
	}
	return ErrXConcBSTRetryExhausted
}

// inorder visits the reachable nodes (tombstoned included) in the
// comparator order, or the reverse order.
// It is not a snapshot, the nodes inserted or deleted concurrently
// may or may not be visited.
func (bst *xConcBST[T]) inorder(reverse bool, visit func(node *xConcBSTNode[T]) bool) {
	near, far := Left, Right
	if reverse {
		near, far = Right, Left
	}
	stack := make([]*xConcBSTNode[T], 0, 32)
	aux := bst.root.load().load()
	for aux != nil || len(stack) > 0 {
		for ; aux != nil; aux = aux.slot(near).load().load() {
			stack = append(stack, aux)
		}
		aux = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(aux) {
			return
		}
		aux = aux.slot(far).load().load()
	}
}

// edge returns the first live node in the order. The detachable nodes
// passed by are removed after the walk, a relocation during the walk
// would move a value behind the walker.
func (bst *xConcBST[T]) edge(reverse bool) *xConcBSTNode[T] {
	var (
		target *xConcBSTNode[T]
		passed []*xConcBSTNode[T]
	)
	bst.inorder(reverse, func(node *xConcBSTNode[T]) bool {
		if node.isTombstoned() {
			passed = append(passed, node)
			return true
		}
		target = node
		return false
	})
	bst.unlinkAll(passed)
	return target
}

func (bst *xConcBST[T]) unlinkAll(nodes []*xConcBSTNode[T]) {
	for _, node := range nodes {
		bst.unlink(node)
	}
}

func (bst *xConcBST[T]) peek(reverse bool) (T, error) {
	rec := bst.ledger.pin()
	defer bst.ledger.unpin(rec)
	if node := bst.edge(reverse); node != nil {
		return node.loadVal(), nil
	}
	var zero T
	return zero, ErrXConcBSTIsEmpty
}

func (bst *xConcBST[T]) Min() (T, error) {
	return bst.peek(false)
}

func (bst *xConcBST[T]) Max() (T, error) {
	return bst.peek(true)
}

func (bst *xConcBST[T]) pop(reverse bool) (val T, err error) {
	if bst.closed.Load() {
		return val, ErrXConcBSTClosed
	}
	rec := bst.ledger.pin()
	defer func() {
		bst.ledger.unpin(rec)
		bst.stats.recordOp(opPop, err)
	}()

	backoff := infra.NewCASBackoff(bst.retryBudget)
	for {
		node := bst.edge(reverse)
		if node == nil {
			return val, ErrXConcBSTIsEmpty
		}
		if node.tryTombstone() {
			// Read before the unlink, the node is pinned anyway.
			val = node.loadVal()
			bst.len.Add(-1)
			bst.unlink(node)
			return val, nil
		}
		if err = bst.retry(&backoff, opPop); err != nil {
			return val, err
		}
	}
}

// PopMin removes and returns the minimum live value.
func (bst *xConcBST[T]) PopMin() (T, error) {
	return bst.pop(false)
}

// PopMax removes and returns the maximum live value.
func (bst *xConcBST[T]) PopMax() (T, error) {
	return bst.pop(true)
}

// Foreach visits the live values in order until the action returns false.
// The walk is pinned, the values are safe to read inside the action, but
// they must not be retained after the action returns.
// The deleted nodes passed by are removed after the walk.
func (bst *xConcBST[T]) Foreach(action func(idx int64, val T) bool) {
	if action == nil {
		return
	}
	rec := bst.ledger.pin()
	defer bst.ledger.unpin(rec)

	var (
		idx    int64
		prev   *xConcBSTNode[T]
		passed []*xConcBSTNode[T]
	)
	bst.inorder(false, func(node *xConcBSTNode[T]) bool {
		if node.isTombstoned() {
			passed = append(passed, node)
			return true
		}
		// A relocated value may be met twice, by its copy and by the
		// moved node right after it.
		if prev != nil && bst.cmp(prev.loadVal(), node.loadVal()) == 0 {
			return true
		}
		prev = node
		res := action(idx, node.loadVal())
		idx++
		return res
	})
	bst.unlinkAll(passed)
}

// Reclaim recycles the retired nodes which are no longer reachable by any
// pinned reader. It returns the number of recycled nodes.
func (bst *xConcBST[T]) Reclaim() int64 {
	n := bst.ledger.reclaim()
	if n > 0 && bst.logger != nil {
		bst.logger.Debug("[x-conc-bst] nodes reclaimed",
			zap.Int64("reclaimed", n),
			zap.Int64("pending", bst.ledger.pending.Load()),
		)
	}
	return n
}

func (bst *xConcBST[T]) Stats() XConcBSTStats {
	return XConcBSTStats{
		Len:           bst.len.Load(),
		Retired:       bst.ledger.retiredN.Load(),
		Reclaimed:     bst.ledger.reclaimedN.Load(),
		Pending:       bst.ledger.pending.Load(),
		ActiveReaders: bst.ledger.active.Load(),
		CASRetries:    bst.casRetries.Load(),
		Relocated:     bst.relocated.Load(),
	}
}

// Close rejects the later mutations and reclaims the retired nodes
// which have no readers. The read operations are still available.
func (bst *xConcBST[T]) Close() error {
	if !bst.closed.CompareAndSwap(false, true) {
		return ErrXConcBSTClosed
	}
	bst.Reclaim()
	if bst.logger != nil {
		bst.logger.Info("[x-conc-bst] closed",
			zap.Int64("len", bst.len.Load()),
			zap.Int64("pending", bst.ledger.pending.Load()),
		)
	}
	return nil
}

type xConcBSTGuard[T any] struct {
	ledger *epochLedger[T]
	rec    atomic.Pointer[readerRecord]
	node   *xConcBSTNode[T]
}

func (g *xConcBSTGuard[T]) Value() T {
	if g.rec.Load() == nil {
		panic( /* debug assertion */ "[x-conc-bst] guard has been released")
	}
	return g.node.loadVal()
}

func (g *xConcBSTGuard[T]) Release() {
	if rec := g.rec.Swap(nil); rec != nil {
		g.ledger.unpin(rec)
	}
}

func NewXConcBST[T infra.OrderedKey](opts ...XConcBSTOption[T]) (XConcBST[T], error) {
	return NewXConcBSTWithComparator[T](infra.AscComparator[T], opts...)
}

func NewXConcBSTWithComparator[T any](cmp infra.Comparator[T], opts ...XConcBSTOption[T]) (XConcBST[T], error) {
	if cmp == nil {
		return nil, infra.WrapErrorStack(ErrXConcBSTNilComparator)
	}
	bstOpts := &xConcBSTOptions[T]{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(bstOpts); err != nil {
			return nil, err
		}
	}

	bst := &xConcBST[T]{
		cmp:         bstOpts.comparator(cmp),
		pool:        newXConcBSTPool[T](bstOpts.prewarm),
		logger:      bstOpts.logger,
		retryBudget: bstOpts.retryBudget,
	}
	bst.root.ptr.Store(&link[T]{})
	bst.ledger = newEpochLedger[T](bst.pool.releaseNode)
	if bstOpts.isStats {
		bst.stats = newXConcBSTStats[T](bst, bstOpts.statsName)
	}
	return bst, nil
}
