// Package work distributes marking and evacuation work across collector
// threads.
//
// Each thread owns an in node (push target) and an out node (pop source).
// A full in node is parked whole on the global stack and a fresh node takes
// its place; an empty thread first swaps in its own in node and only then
// steals a whole node from the global stack. Synchronization is therefore
// limited to node-full and node-empty transitions.
//
// A cycle runs Initialize, then any number of Push/Pop calls, then Finish.
// Thread ids run from 0 to ThreadNum()-1 and each id must be used by at most
// one goroutine at a time.
package work

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/format"
	"github.com/joshuapare/regionheap/internal/logger"
	"github.com/joshuapare/regionheap/internal/native"
)

const (
	// DefaultNodeCapacity is the number of objects a work node holds.
	DefaultNodeCapacity = 100

	// DefaultSpaceSize is the size of one work-node arena.
	DefaultSpaceSize = 8 * format.KB
)

// Options configures a WorkManager.
type Options struct {
	// ThreadNum is the number of collector threads, the mutator included.
	ThreadNum int

	// NodeCapacity is the number of objects per work node.
	NodeCapacity int

	// SpaceSize is the byte size of each work-node arena. It must hold at
	// least one node.
	SpaceSize int
}

// DefaultOptions returns options for threadNum threads.
func DefaultOptions(threadNum int) Options {
	return Options{
		ThreadNum:    threadNum,
		NodeCapacity: DefaultNodeCapacity,
		SpaceSize:    DefaultSpaceSize,
	}
}

type holder struct {
	inNode       *WorkNode
	outNode      *WorkNode
	weakQueue    *ProcessQueue
	allocator    PromotionAllocator
	aliveSize    int
	promotedSize int
}

// WorkManager is the per-heap work distributor.
type WorkManager struct {
	heap  Heap
	alloc native.AreaAllocator
	opts  Options

	works           []holder
	continuousQueue []*ContinuousQueue
	workStack       GlobalWorkStack

	mu         sync.Mutex
	workSpace  []byte
	spaceStart int
	agedSpaces [][]byte

	taskPhase   TaskPhase
	gcType      GCType
	initialized atomic.Bool
}

// New returns a WorkManager and allocates its first arena.
func New(heap Heap, alloc native.AreaAllocator, opts Options) (*WorkManager, error) {
	if opts.ThreadNum <= 0 || opts.NodeCapacity <= 0 {
		return nil, fmt.Errorf("%w: threads=%d capacity=%d", ErrInvalidOptions, opts.ThreadNum, opts.NodeCapacity)
	}
	if opts.SpaceSize < opts.NodeCapacity*format.WordSize {
		return nil, fmt.Errorf("%w: arena of %d bytes cannot hold a %d-slot node",
			ErrInvalidOptions, opts.SpaceSize, opts.NodeCapacity)
	}
	space, err := alloc.Allocate(opts.SpaceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArena, err)
	}
	m := &WorkManager{
		heap:            heap,
		alloc:           alloc,
		opts:            opts,
		works:           make([]holder, opts.ThreadNum),
		continuousQueue: make([]*ContinuousQueue, opts.ThreadNum),
		workSpace:       space,
	}
	for i := range m.continuousQueue {
		m.continuousQueue[i] = &ContinuousQueue{}
	}
	return m, nil
}

// ThreadNum returns the number of collector threads.
func (m *WorkManager) ThreadNum() int { return m.opts.ThreadNum }

// TaskPhase returns the phase set by Initialize.
func (m *WorkManager) TaskPhase() TaskPhase { return m.taskPhase }

// GCType returns the collection type set by Initialize.
func (m *WorkManager) GCType() GCType { return m.gcType }

// Initialized reports whether a cycle is in progress.
func (m *WorkManager) Initialized() bool { return m.initialized.Load() }

// Initialize starts a cycle. Calling it again before Finish panics.
func (m *WorkManager) Initialize(gcType GCType, taskPhase TaskPhase) {
	if m.initialized.Load() {
		panic("work: Initialize called twice without Finish")
	}
	m.taskPhase = taskPhase
	m.gcType = gcType

	m.mu.Lock()
	m.spaceStart = 0
	m.mu.Unlock()

	for i := range m.works {
		h := &m.works[i]
		h.inNode = m.AllocateWorkNode()
		h.outNode = m.AllocateWorkNode()
		h.weakQueue = &ProcessQueue{}
		h.weakQueue.BeginMarking(m.continuousQueue[i])
		h.aliveSize = 0
		h.promotedSize = 0
		if gcType != OldGC {
			h.allocator = m.heap.NewPromotionAllocator()
		}
	}
	m.initialized.Store(true)
}

// Push queues obj on the thread's in node, parking the node globally when
// it is full.
func (m *WorkManager) Push(tid int, obj region.Addr) bool {
	h := &m.works[tid]
	if !h.inNode.PushObject(obj) {
		m.PushWorkNodeToGlobal(tid, true)
		return h.inNode.PushObject(obj)
	}
	return true
}

// PushWithRegion queues obj and credits its size to r's live counter.
func (m *WorkManager) PushWithRegion(tid int, obj region.Addr, r *region.Region) bool {
	if m.Push(tid, obj) {
		r.IncreaseAliveObject(m.heap.ObjectSize(obj))
		return true
	}
	return false
}

// PushWorkNodeToGlobal parks the thread's non-empty in node on the global
// stack and, when postTask is set and the heap allows it, wakes a worker.
func (m *WorkManager) PushWorkNodeToGlobal(tid int, postTask bool) {
	h := &m.works[tid]
	if h.inNode.IsEmpty() {
		return
	}
	m.workStack.Push(h.inNode)
	h.inNode = m.AllocateWorkNode()
	if postTask && m.heap.IsParallelGCEnabled() && m.heap.CheckCanDistributeTask() &&
		!m.heap.IsIncrementalMarkTriggered() {
		m.heap.PostParallelGCTask(m.taskPhase)
	}
}

// Pop returns the next pending object for tid. It reports false only when
// both local nodes and the global stack are empty.
func (m *WorkManager) Pop(tid int) (region.Addr, bool) {
	h := &m.works[tid]
	if obj, ok := h.outNode.PopObject(); ok {
		return obj, true
	}
	if !h.inNode.IsEmpty() {
		h.inNode, h.outNode = h.outNode, h.inNode
	} else if !m.PopWorkNodeFromGlobal(tid) {
		return region.Null, false
	}
	return h.outNode.PopObject()
}

// PopWorkNodeFromGlobal steals a whole node into tid's out node. The
// drained out node is abandoned to its arena.
func (m *WorkManager) PopWorkNodeFromGlobal(tid int) bool {
	node, ok := m.workStack.Pop()
	if !ok {
		return false
	}
	m.works[tid].outNode = node
	return true
}

// GlobalEmpty reports whether no node is parked on the global stack.
func (m *WorkManager) GlobalEmpty() bool { return m.workStack.Empty() }

// GlobalLen returns the number of parked nodes.
func (m *WorkManager) GlobalLen() int { return m.workStack.Len() }

// PushWeakReference records a weak slot discovered by tid.
func (m *WorkManager) PushWeakReference(tid int, slot region.Addr) {
	m.works[tid].weakQueue.Push(slot)
}

// IterateWeakReferences drains every thread's continuous queue. Only
// slots handed over by Finish are visited.
func (m *WorkManager) IterateWeakReferences(visitor func(slot region.Addr)) {
	for _, q := range m.continuousQueue {
		q.drain(visitor)
	}
}

// PromotionAllocator returns tid's thread-local allocator, or nil for OldGC.
func (m *WorkManager) PromotionAllocator(tid int) PromotionAllocator {
	return m.works[tid].allocator
}

// IncreaseAliveSize credits n surviving bytes to tid.
func (m *WorkManager) IncreaseAliveSize(tid, n int) { m.works[tid].aliveSize += n }

// IncreasePromotedSize credits n promoted bytes to tid.
func (m *WorkManager) IncreasePromotedSize(tid, n int) { m.works[tid].promotedSize += n }

// Finish ends the cycle: weak queues are handed to the continuous queues,
// promotion allocators are finalized and aged arenas are freed. It returns
// the total alive bytes credited by every thread.
func (m *WorkManager) Finish() int {
	alive := 0
	for i := range m.works {
		h := &m.works[i]
		if h.weakQueue != nil {
			h.weakQueue.FinishMarking(m.continuousQueue[i])
			h.weakQueue = nil
		}
		if h.allocator != nil {
			h.allocator.Finalize()
			h.allocator = nil
		}
		h.inNode, h.outNode = nil, nil
		alive += h.aliveSize
	}
	m.workStack.reset()

	m.mu.Lock()
	aged := m.agedSpaces
	m.agedSpaces = nil
	m.mu.Unlock()
	for _, space := range aged {
		if err := m.alloc.Free(space); err != nil {
			logger.Warn("free aged work space", "error", err)
		}
	}
	m.initialized.Store(false)
	return alive
}

// FinishWithPromoted is Finish that also sums promoted bytes.
func (m *WorkManager) FinishWithPromoted() (alive, promoted int) {
	for i := range m.works {
		promoted += m.works[i].promotedSize
	}
	alive = m.Finish()
	return alive, promoted
}

// AllocateWorkNode carves a node from the current arena, retiring the arena
// to the aged list when it is exhausted.
func (m *WorkManager) AllocateWorkNode() *WorkNode {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.opts.NodeCapacity * format.WordSize
	begin := m.spaceStart
	if begin+size > len(m.workSpace) {
		space, err := m.alloc.Allocate(m.opts.SpaceSize)
		if err != nil {
			panic(fmt.Errorf("%w: %w", ErrArena, err))
		}
		m.agedSpaces = append(m.agedSpaces, m.workSpace)
		m.workSpace = space
		begin = 0
		logger.Debug("work space aged", "aged", len(m.agedSpaces))
	}
	m.spaceStart = begin + size
	stack := unsafe.Slice((*region.Addr)(unsafe.Pointer(&m.workSpace[begin])), m.opts.NodeCapacity)
	return &WorkNode{stack: stack[:0]}
}

// AgedSpaces returns the number of exhausted arenas awaiting Finish.
func (m *WorkManager) AgedSpaces() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agedSpaces)
}

// Close finishes any open cycle, drops queued weak references and frees the
// live arena. The manager must not be used afterwards.
func (m *WorkManager) Close() error {
	if m.initialized.Load() {
		m.Finish()
	}
	for _, q := range m.continuousQueue {
		q.destroy()
	}
	m.mu.Lock()
	space := m.workSpace
	m.workSpace = nil
	m.mu.Unlock()
	return m.alloc.Free(space)
}
