package heap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/regionheap/heap/work"
)

// taskPool runs collector worker threads. Thread ids 1..n-1 are leased to
// tasks; thread 0 is always the mutator.
type taskPool struct {
	h       *Heap
	ids     chan int
	running atomic.Int32

	mu sync.Mutex
	g  *errgroup.Group
}

func newTaskPool(h *Heap, threads int) *taskPool {
	p := &taskPool{h: h, ids: make(chan int, max(threads-1, 0))}
	for tid := 1; tid < threads; tid++ {
		p.ids <- tid
	}
	return p
}

// begin opens a phase. Posts outside a phase are dropped.
func (p *taskPool) begin() {
	g := new(errgroup.Group)
	g.SetLimit(max(cap(p.ids), 1))
	p.mu.Lock()
	p.g = g
	p.mu.Unlock()
}

func (p *taskPool) canDistribute() bool {
	return int(p.running.Load()) < cap(p.ids)
}

// post leases a free thread id and starts a task draining work for phase.
func (p *taskPool) post(phase work.TaskPhase) {
	p.mu.Lock()
	g := p.g
	p.mu.Unlock()
	if g == nil {
		return
	}
	var tid int
	select {
	case tid = <-p.ids:
	default:
		return
	}
	p.running.Add(1)
	release := func() {
		p.running.Add(-1)
		p.ids <- tid
	}
	ok := g.TryGo(func() (err error) {
		defer release()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("gc task %d (%s): %v", tid, phase, r)
			}
		}()
		p.h.runTask(tid, phase)
		return nil
	})
	if !ok {
		release()
	}
}

// wait closes the phase and blocks until every task has returned.
func (p *taskPool) wait() error {
	p.mu.Lock()
	g := p.g
	p.g = nil
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

func (h *Heap) runTask(tid int, phase work.TaskPhase) {
	switch phase {
	case work.TaskYoungMark:
		h.drainEvacuate(tid)
	case work.TaskOldMark:
		h.drainMark(tid)
	}
}

// drainParallel drains on thread 0, then waits for the workers. A worker
// panic is re-raised on the caller.
func (h *Heap) drainParallel(drain func(tid int)) time.Duration {
	var waited time.Duration
	for {
		drain(0)
		start := time.Now()
		err := h.tasks.wait()
		waited += time.Since(start)
		if err != nil {
			panic(err)
		}
		if h.work.GlobalEmpty() {
			return waited
		}
		h.tasks.begin()
	}
}
