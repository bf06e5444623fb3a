package work

import "github.com/joshuapare/regionheap/heap/region"

// ContinuousQueue accumulates weak-reference slots across the lifetime of
// the work manager. One exists per thread; it is drained after marking.
type ContinuousQueue struct {
	slots []region.Addr
}

// Len returns the number of queued slots.
func (q *ContinuousQueue) Len() int { return len(q.slots) }

func (q *ContinuousQueue) drain(visitor func(slot region.Addr)) {
	for _, s := range q.slots {
		visitor(s)
	}
	q.slots = q.slots[:0]
}

func (q *ContinuousQueue) destroy() { q.slots = nil }

// ProcessQueue collects weak-reference slots discovered by one thread during
// a single marking cycle.
type ProcessQueue struct {
	target *ContinuousQueue
	slots  []region.Addr
}

// BeginMarking binds the queue to the thread's continuous queue.
func (q *ProcessQueue) BeginMarking(target *ContinuousQueue) {
	q.target = target
	q.slots = q.slots[:0]
}

// Push records a weak slot.
func (q *ProcessQueue) Push(slot region.Addr) {
	q.slots = append(q.slots, slot)
}

// Len returns the number of slots recorded this cycle.
func (q *ProcessQueue) Len() int { return len(q.slots) }

// FinishMarking moves every recorded slot to the continuous queue.
func (q *ProcessQueue) FinishMarking(target *ContinuousQueue) {
	target.slots = append(target.slots, q.slots...)
	q.slots = nil
	q.target = nil
}
