package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/verify"
	"github.com/joshuapare/regionheap/heap/work"
)

// buildTree allocates a complete binary tree of the given depth with ids in
// preorder and returns its root.
func buildTree(t *testing.T, h *Heap, depth int, next *uint64) region.Addr {
	t.Helper()
	node := newObject(t, h, 2, *next)
	*next++
	if depth == 0 {
		return node
	}
	r := h.NewRoot(node)
	left := buildTree(t, h, depth-1, next)
	require.NoError(t, h.SetField(h.Root(r), 0, left))
	right := buildTree(t, h, depth-1, next)
	require.NoError(t, h.SetField(h.Root(r), 1, right))
	node = h.Root(r)
	require.NoError(t, h.ReleaseRoot(r))
	return node
}

func checkTree(t *testing.T, h *Heap, node region.Addr, depth int, next *uint64) {
	t.Helper()
	require.Equal(t, *next, idOf(t, h, node))
	*next++
	if depth == 0 {
		return
	}
	checkTree(t, h, field(t, h, node, 0), depth-1, next)
	checkTree(t, h, field(t, h, node, 1), depth-1, next)
}

func TestParallelGC_Tree(t *testing.T) {
	const depth = 11
	h := newTestHeap(t, func(o *Options) {
		o.GCThreadNum = 4
		o.ParallelGC = true
		o.WorkNodeCapacity = 4
		o.WorkSpaceSize = 1024
	})
	require.True(t, h.IsParallelGCEnabled())

	var next uint64
	root := h.NewRoot(buildTree(t, h, depth, &next))
	nodes := int(next)
	size := h.ObjectSize(h.Root(root))

	for _, typ := range []work.GCType{work.YoungGC, work.OldGC, work.YoungGC, work.FullGC} {
		c := collect(t, h, typ)
		assert.Equal(t, c.Before, c.Survived+c.Freed, "after %s", typ)

		var id uint64
		checkTree(t, h, h.Root(root), depth, &id)
		require.Equal(t, uint64(nodes), id)
		assert.Zero(t, h.Verify(verify.PostGC), "after %s", typ)
	}
	assert.Equal(t, nodes*size, h.OldSpace().AliveObjectSize(), "the full mark credits every promoted node")
}

func TestParallelGC_Disabled(t *testing.T) {
	h := newTestHeap(t, func(o *Options) {
		o.GCThreadNum = 4
		o.ParallelGC = false
	})
	assert.False(t, h.IsParallelGCEnabled())

	var next uint64
	root := h.NewRoot(buildTree(t, h, 6, &next))
	collect(t, h, work.YoungGC)
	var id uint64
	checkTree(t, h, h.Root(root), 6, &id)
}

func TestTaskPool(t *testing.T) {
	h := newTestHeap(t, nil)
	p := newTaskPool(h, 3)
	require.True(t, p.canDistribute())

	// Outside a phase posts are dropped.
	p.post(work.TaskUndefined)
	require.NoError(t, p.wait())

	p.begin()
	p.post(work.TaskUndefined)
	p.post(work.TaskUndefined)
	p.post(work.TaskUndefined)
	require.NoError(t, p.wait())
	assert.Len(t, p.ids, 2, "every thread id is returned")
	assert.Zero(t, p.running.Load())
}

func TestTaskPool_PanicBecomesError(t *testing.T) {
	h := newTestHeap(t, nil)
	p := newTaskPool(h, 2)

	// A single-threaded heap has no work holder for thread 1.
	p.begin()
	p.post(work.TaskOldMark)
	err := p.wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gc task 1")
	assert.Len(t, p.ids, 1)
}

// Workers promote aged children and grow the old space while thread 0 is
// still evacuating roots and walking old-to-new sets. Run with -race.
func TestParallelGC_PromotesDuringRootScan(t *testing.T) {
	const n = 2500
	h := newTestHeap(t, func(o *Options) {
		o.GCThreadNum = 4
		o.ParallelGC = true
		o.WorkNodeCapacity = 2
	})

	children := make([]Root, n)
	for i := range children {
		children[i] = h.NewRoot(newObject(t, h, 0, uint64(i)))
	}
	collect(t, h, work.YoungGC)

	parents := make([]Root, n)
	for i := range parents {
		parent := newObject(t, h, 1, uint64(n+i))
		require.NoError(t, h.SetField(parent, 0, h.Root(children[i])))
		parents[i] = h.NewRoot(parent)
		require.NoError(t, h.ReleaseRoot(children[i]))
	}
	c := collect(t, h, work.YoungGC)
	assert.Equal(t, n*h.ObjectSize(field(t, h, h.Root(parents[0]), 0)), c.Promoted)

	for i, r := range parents {
		parent := h.Root(r)
		require.Equal(t, uint64(n+i), idOf(t, h, parent))
		child := field(t, h, parent, 0)
		require.Equal(t, uint64(i), idOf(t, h, child))
		require.True(t, h.Lookup(child).InOldGeneration())
	}
	assert.Zero(t, h.Verify(verify.PostGC))
}
