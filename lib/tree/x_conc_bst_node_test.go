package tree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlagBits(t *testing.T) {
	f := flagBits{}
	require.False(t, f.atomicIsSet(nodeTombstoned))
	require.True(t, f.atomicTrySet(nodeTombstoned))
	require.False(t, f.atomicTrySet(nodeTombstoned))
	require.True(t, f.atomicIsSet(nodeTombstoned))
	require.False(t, f.atomicIsSet(nodeUnlinked))
	require.True(t, f.atomicTrySet(nodeUnlinked))
	require.True(t, f.atomicTrySet(nodeMoved))
	require.True(t, f.atomicIsSet(nodeTombstoned|nodeUnlinked))
	f.atomicReset()
	require.False(t, f.atomicIsSet(nodeTombstoned))
	require.False(t, f.atomicIsSet(nodeUnlinked))
	require.False(t, f.atomicIsSet(nodeMoved))
}

func TestXConcBSTNode_Freeze(t *testing.T) {
	pool := newXConcBSTPool[int](0)

	t.Run("leaf", func(tt *testing.T) {
		n := pool.loadNode(5)
		left, right := n.freeze()
		require.True(tt, left.isFrozen())
		require.True(tt, right.isFrozen())
		require.True(tt, left.isEmpty())
		require.True(tt, right.isEmpty())
		require.Same(tt, left, n.left.load())
		require.Same(tt, right, n.right.load())
	})

	t.Run("left child only", func(tt *testing.T) {
		n, c := pool.loadNode(5), pool.loadNode(3)
		require.True(tt, n.left.cas(nil, &link[int]{child: c}))
		require.True(tt, n.hasAtMostOneChild())

		left, right := n.freeze()
		require.Equal(tt, c, left.load())
		require.True(tt, left.isFrozen())
		require.True(tt, right.isFrozen())
		require.True(tt, right.isEmpty())

		// Every helper observes the same frozen links.
		left2, right2 := n.freeze()
		require.Same(tt, left, left2)
		require.Same(tt, right, right2)
		require.False(tt, n.left.freezeEmpty())
		require.True(tt, n.right.freezeEmpty())
	})

	t.Run("right child only", func(tt *testing.T) {
		n, c := pool.loadNode(5), pool.loadNode(8)
		require.True(tt, n.right.cas(nil, &link[int]{child: c}))
		left, right := n.freeze()
		require.True(tt, left.isEmpty())
		require.True(tt, left.isFrozen())
		require.Equal(tt, c, right.load())
	})

	t.Run("two children", func(tt *testing.T) {
		n := pool.loadNode(5)
		l, r := pool.loadNode(3), pool.loadNode(8)
		require.True(tt, n.left.cas(nil, &link[int]{child: l}))
		require.True(tt, n.right.cas(nil, &link[int]{child: r}))
		require.False(tt, n.hasAtMostOneChild())
		left, right := n.freeze()
		require.Equal(tt, l, left.load())
		require.Equal(tt, r, right.load())
		require.True(tt, n.left.load().isFrozen())
		require.True(tt, n.right.load().isFrozen())
		require.False(tt, n.left.freezeEmpty())
		require.False(tt, n.right.freezeEmpty())
	})

	t.Run("marker counts as frozen empty", func(tt *testing.T) {
		n, c := pool.loadNode(5), pool.loadNode(8)
		require.True(tt, n.right.cas(nil, &link[int]{child: c}))
		marker := &link[int]{frozen: true, reloc: &relocation[int]{}}
		require.True(tt, n.left.cas(nil, marker))
		require.True(tt, n.left.freezeEmpty())
		left, right := n.freeze()
		require.Same(tt, marker, left)
		require.NotNil(tt, left.relocation())
		require.Equal(tt, c, right.load())
		require.Nil(tt, right.relocation())
	})
}

func TestXConcBSTNode_CopySharesTombstone(t *testing.T) {
	pool := newXConcBSTPool[string](0)
	src := pool.loadNode("abc")
	cp := pool.loadCopy(src)
	require.Equal(t, "abc", cp.loadVal())
	require.NotSame(t, src.val.Load(), cp.val.Load())
	require.False(t, src.isDetachable())

	require.True(t, cp.tryTombstone())
	require.True(t, src.isTombstoned())
	require.False(t, src.tryTombstone())
	require.True(t, src.isDetachable())

	// Physical flags are not shared.
	require.True(t, src.flags.atomicTrySet(nodeMoved))
	require.True(t, src.isMoved())
	require.False(t, cp.isMoved())
	require.True(t, src.flags.atomicTrySet(nodeUnlinked))
	require.False(t, src.isDetachable())
	require.True(t, cp.isDetachable())

	// The recycled source gets a fresh tombstone.
	life := cp.life
	src.reset()
	src.init("xyz")
	require.NotSame(t, life, src.life)
	require.False(t, src.isTombstoned())
	require.True(t, cp.isTombstoned())
}

func TestXConcBSTNode_Arbiter(t *testing.T) {
	pool := newXConcBSTPool[int](0)
	n := pool.loadNode(5)
	arb := n.arbiter()
	require.Same(t, n, arb.owner)
	require.Same(t, arb, n.arbiter())
	n.reset()
	require.Nil(t, n.arb.Load())
}

func TestXConcBSTNode_Reset(t *testing.T) {
	pool := newXConcBSTPool[string](2)
	n := pool.loadNode("abc")
	require.Equal(t, "abc", n.loadVal())
	require.True(t, n.tryTombstone())
	require.True(t, n.left.cas(nil, &link[string]{child: pool.loadNode("a")}))

	n.reset()
	require.Nil(t, n.life)
	require.False(t, n.flags.atomicIsSet(nodeUnlinked|nodeMoved))
	require.Nil(t, n.left.load())
	require.Nil(t, n.right.load())
	require.Equal(t, "", n.v)
	require.Panics(t, func() {
		n.loadVal()
	})
	require.Panics(t, func() {
		n.slot(Root)
	})
}

func TestDirection_String(t *testing.T) {
	require.Equal(t, "left", Left.String())
	require.Equal(t, "root", Root.String())
	require.Equal(t, "right", Right.String())
	require.Equal(t, "unknown", Direction(7).String())
}
