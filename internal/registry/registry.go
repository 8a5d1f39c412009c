// Package registry implements an intrusive doubly-linked list over a
// preallocated node pool. Attach and Detach are O(1) and never allocate
// after construction.
package registry

import (
	"errors"
	"fmt"
	"iter"
)

// ErrFull is returned by Attach when every node is in use.
var ErrFull = errors.New("registry: node pool exhausted")

const nilNode = -1

// Handle identifies an attached node. It stays valid until the node is
// detached.
type Handle int32

// Match is the result of a DetachWhere predicate.
type Match int

const (
	// Miss leaves the node attached and continues the scan.
	Miss Match = iota
	// Hit detaches the node and continues the scan.
	Hit
	// Stop detaches the node and ends the scan.
	Stop
)

type node[T any] struct {
	item       T
	prev, next int32
	linked     bool
}

// List is a fixed-capacity ordered list.
type List[T any] struct {
	nodes      []node[T]
	free       []int32
	head, tail int32
	count      int
}

// New returns a list able to hold capacity items. Non-positive capacities
// clamp to 1.
func New[T any](capacity int) *List[T] {
	if capacity < 1 {
		capacity = 1
	}
	l := &List[T]{
		nodes: make([]node[T], capacity),
		free:  make([]int32, 0, capacity),
	}
	l.Clear()
	return l
}

// Len returns the number of attached items.
func (l *List[T]) Len() int { return l.count }

// Cap returns the node pool size.
func (l *List[T]) Cap() int { return len(l.nodes) }

// Clear detaches every item and refills the free pool in index order.
func (l *List[T]) Clear() {
	var zero T
	l.free = l.free[:0]
	for i := len(l.nodes) - 1; i >= 0; i-- {
		l.nodes[i] = node[T]{item: zero, prev: nilNode, next: nilNode}
		l.free = append(l.free, int32(i))
	}
	l.head, l.tail = nilNode, nilNode
	l.count = 0
}

// Attach appends item at the tail.
func (l *List[T]) Attach(item T) (Handle, error) {
	if len(l.free) == 0 {
		return nilNode, ErrFull
	}
	idx := l.free[len(l.free)-1]
	l.free = l.free[:len(l.free)-1]

	n := &l.nodes[idx]
	n.item = item
	n.next = nilNode
	n.prev = l.tail
	n.linked = true
	if l.tail != nilNode {
		l.nodes[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.count++
	return Handle(idx), nil
}

// Detach unlinks the node behind h. It reports false for stale handles.
func (l *List[T]) Detach(h Handle) bool {
	if h < 0 || int(h) >= len(l.nodes) || !l.nodes[h].linked {
		return false
	}
	l.unlink(int32(h))
	return true
}

// Get returns the item behind h.
func (l *List[T]) Get(h Handle) (T, bool) {
	if h < 0 || int(h) >= len(l.nodes) || !l.nodes[h].linked {
		var zero T
		return zero, false
	}
	return l.nodes[h].item, true
}

func (l *List[T]) unlink(idx int32) {
	n := &l.nodes[idx]
	if n.prev != nilNode {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nilNode {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	var zero T
	*n = node[T]{item: zero, prev: nilNode, next: nilNode}
	l.free = append(l.free, idx)
	l.count--
}

// DetachWhere scans front to back and unlinks every node the predicate
// hits. It reports whether anything was detached.
func (l *List[T]) DetachWhere(match func(T) Match) bool {
	detached := false
	for idx := l.head; idx != nilNode; {
		next := l.nodes[idx].next
		switch match(l.nodes[idx].item) {
		case Hit:
			l.unlink(idx)
			detached = true
		case Stop:
			l.unlink(idx)
			return true
		}
		idx = next
	}
	return detached
}

// Pickup detaches and returns the first item matching fn.
func (l *List[T]) Pickup(fn func(T) bool) (T, bool) {
	for idx := l.head; idx != nilNode; idx = l.nodes[idx].next {
		if item := l.nodes[idx].item; fn(item) {
			l.unlink(idx)
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Find returns the first item matching fn without detaching it.
func (l *List[T]) Find(fn func(T) bool) (T, bool) {
	for idx := l.head; idx != nilNode; idx = l.nodes[idx].next {
		if item := l.nodes[idx].item; fn(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// ForEach visits items front to back with their ordinal. Returning false
// detaches the visited node; the scan has already moved past it.
func (l *List[T]) ForEach(fn func(no int, item T) bool) {
	no := 0
	for idx := l.head; idx != nilNode; {
		next := l.nodes[idx].next
		if !fn(no, l.nodes[idx].item) {
			l.unlink(idx)
		}
		no++
		idx = next
	}
}

// All iterates the attached items front to back.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for idx := l.head; idx != nilNode; idx = l.nodes[idx].next {
			if !yield(l.nodes[idx].item) {
				return
			}
		}
	}
}

// Validate checks that the active list and the free pool partition the
// node set.
func (l *List[T]) Validate() error {
	seen := make([]bool, len(l.nodes))
	active := 0
	prev := int32(nilNode)
	for idx := l.head; idx != nilNode; idx = l.nodes[idx].next {
		if seen[idx] {
			return fmt.Errorf("registry: cycle at node %d", idx)
		}
		if !l.nodes[idx].linked {
			return fmt.Errorf("registry: node %d reachable but unlinked", idx)
		}
		if l.nodes[idx].prev != prev {
			return fmt.Errorf("registry: node %d has prev %d, want %d", idx, l.nodes[idx].prev, prev)
		}
		seen[idx] = true
		prev = idx
		active++
	}
	if prev != l.tail {
		return fmt.Errorf("registry: tail %d, walk ended at %d", l.tail, prev)
	}
	if active != l.count {
		return fmt.Errorf("registry: count %d, walked %d", l.count, active)
	}
	for _, idx := range l.free {
		if seen[idx] {
			return fmt.Errorf("registry: node %d both free and active", idx)
		}
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("registry: node %d leaked", i)
		}
	}
	return nil
}
