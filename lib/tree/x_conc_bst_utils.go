package tree

import (
	"errors"
)

// Concurrent bst rule validation utilities.
// They walk the tree without any pause of the writers, so the
// result is only reliable after the tree becomes quiescent.

var (
	errXConcBSTOrderViolation     = errors.New("[x-conc-bst] order violation")
	errXConcBSTDuplicateViolation = errors.New("[x-conc-bst] duplicate violation")
	errXConcBSTUnknownImpl        = errors.New("[x-conc-bst] unknown tree implementation")
)

// OrderViolationValidate checks the inorder sequence of all reachable
// nodes (tombstoned included) is non-decreasing.
func OrderViolationValidate[T any](tree XConcBST[T]) error {
	bst, ok := tree.(*xConcBST[T])
	if !ok || bst == nil {
		return errXConcBSTUnknownImpl
	}
	rec := bst.ledger.pin()
	defer bst.ledger.unpin(rec)

	var (
		prev *xConcBSTNode[T]
		err  error
	)
	bst.inorder(false, func(node *xConcBSTNode[T]) bool {
		if prev != nil && bst.cmp(prev.loadVal(), node.loadVal()) > 0 {
			err = errXConcBSTOrderViolation
			return false
		}
		prev = node
		return true
	})
	return err
}

// DuplicateViolationValidate checks no two live nodes hold equal values
// and the number of live nodes equals to the tree length.
func DuplicateViolationValidate[T any](tree XConcBST[T]) error {
	bst, ok := tree.(*xConcBST[T])
	if !ok || bst == nil {
		return errXConcBSTUnknownImpl
	}
	rec := bst.ledger.pin()
	defer bst.ledger.unpin(rec)

	var (
		prev *xConcBSTNode[T]
		live int64
		err  error
	)
	bst.inorder(false, func(node *xConcBSTNode[T]) bool {
		if node.isTombstoned() {
			return true
		}
		live++
		if prev != nil && bst.cmp(prev.loadVal(), node.loadVal()) == 0 {
			err = errXConcBSTDuplicateViolation
			return false
		}
		prev = node
		return true
	})
	if err == nil && live != bst.Len() {
		err = errXConcBSTDuplicateViolation
	}
	return err
}
