package work

import (
	"sync"

	"github.com/joshuapare/regionheap/heap/region"
)

// WorkNode is a bounded stack of pending objects. Its storage is carved out
// of a work-node arena; the node header itself lives on the Go heap.
//
// A node is owned by one thread at a time: either as a holder's in/out node
// or, while parked, by the global stack.
type WorkNode struct {
	next  *WorkNode
	stack []region.Addr
}

// PushObject appends obj and reports false when the node is full.
func (n *WorkNode) PushObject(obj region.Addr) bool {
	if len(n.stack) == cap(n.stack) {
		return false
	}
	n.stack = append(n.stack, obj)
	return true
}

// PopObject removes the most recently pushed object.
func (n *WorkNode) PopObject() (region.Addr, bool) {
	if len(n.stack) == 0 {
		return region.Null, false
	}
	obj := n.stack[len(n.stack)-1]
	n.stack = n.stack[:len(n.stack)-1]
	return obj, true
}

// IsEmpty reports whether the node holds no objects.
func (n *WorkNode) IsEmpty() bool { return len(n.stack) == 0 }

// Len returns the number of pending objects.
func (n *WorkNode) Len() int { return len(n.stack) }

// Cap returns the node's capacity.
func (n *WorkNode) Cap() int { return cap(n.stack) }

// GlobalWorkStack is the shared stack of whole work nodes. It never holds a
// partial node handoff: nodes are pushed and popped as units.
type GlobalWorkStack struct {
	mu  sync.Mutex
	top *WorkNode
	n   int
}

// Push parks node on the stack.
func (s *GlobalWorkStack) Push(node *WorkNode) {
	s.mu.Lock()
	node.next = s.top
	s.top = node
	s.n++
	s.mu.Unlock()
}

// Pop removes the most recently parked node.
func (s *GlobalWorkStack) Pop() (*WorkNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.top
	if node == nil {
		return nil, false
	}
	s.top = node.next
	node.next = nil
	s.n--
	return node, true
}

// Len returns the number of parked nodes.
func (s *GlobalWorkStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Empty reports whether no node is parked.
func (s *GlobalWorkStack) Empty() bool { return s.Len() == 0 }

func (s *GlobalWorkStack) reset() {
	s.mu.Lock()
	s.top, s.n = nil, 0
	s.mu.Unlock()
}
