package pool

import (
	"fmt"
	"slices"

	"github.com/san-kum/springsim/internal/registry"
)

// Block is a contiguous range [Start, Start+Size) of a pool's buffer.
type Block struct {
	Start int
	Size  int
}

// End returns the index one past the last element of the block.
func (b Block) End() int { return b.Start + b.Size }

// Pool is a first-fit block allocator over a fixed buffer of T.
type Pool[T any] struct {
	name string
	data []T
	free *registry.List[Block]
	used *registry.List[Block]
}

// New creates a pool of size elements able to track blockCapacity live
// allocations. Non-positive arguments clamp to 1.
func New[T any](name string, size, blockCapacity int) *Pool[T] {
	if size < 1 {
		size = 1
	}
	if blockCapacity < 1 {
		blockCapacity = 1
	}
	p := &Pool[T]{
		name: name,
		data: make([]T, size),
		// the complement of n used blocks is at most n+1 ranges
		free: registry.New[Block](blockCapacity + 1),
		used: registry.New[Block](blockCapacity),
	}
	_, _ = p.free.Attach(Block{Start: 0, Size: size})
	return p
}

// Name returns the pool's diagnostic name.
func (p *Pool[T]) Name() string { return p.name }

// Size returns the buffer length.
func (p *Pool[T]) Size() int { return len(p.data) }

// Alloc reserves size contiguous elements, zeroes them and returns the
// block with a view over it. A non-positive size returns an empty view and
// records nothing.
func (p *Pool[T]) Alloc(size int) (Block, View[T], error) {
	if size <= 0 {
		return Block{}, View[T]{}, nil
	}
	if p.used.Len() == p.used.Cap() {
		return Block{}, View[T]{}, &CapacityError{Pool: p.name, Requested: size, Blocks: true}
	}
	fit, ok := p.free.Find(func(b Block) bool { return b.Size >= size })
	if !ok {
		return Block{}, View[T]{}, &CapacityError{Pool: p.name, Requested: size, Largest: p.Largest()}
	}

	p.free.Pickup(func(b Block) bool { return b == fit })
	blk := Block{Start: fit.Start, Size: size}
	if _, err := p.used.Attach(blk); err != nil {
		// unreachable: checked above
		panic(err)
	}
	if rest := fit.Size - size; rest > 0 {
		_, _ = p.free.Attach(Block{Start: fit.Start + size, Size: rest})
	}

	clear(p.data[blk.Start:blk.End()])
	return blk, p.View(blk), nil
}

// Free releases a block returned by Alloc and merges it with adjacent free
// ranges. Freeing an empty block is a no-op.
func (p *Pool[T]) Free(blk Block) error {
	if blk.Size == 0 {
		return nil
	}
	if _, ok := p.used.Pickup(func(b Block) bool { return b == blk }); !ok {
		return fmt.Errorf("%w: %s [%d,%d)", ErrUnknownBlock, p.name, blk.Start, blk.End())
	}

	merged := blk
	if prev, ok := p.free.Pickup(func(b Block) bool { return b.End() == blk.Start }); ok {
		merged.Start = prev.Start
		merged.Size += prev.Size
	}
	if next, ok := p.free.Pickup(func(b Block) bool { return b.Start == blk.End() }); ok {
		merged.Size += next.Size
	}
	_, _ = p.free.Attach(merged)
	return nil
}

// View returns a view over blk. It panics if blk lies outside the buffer.
func (p *Pool[T]) View(blk Block) View[T] {
	return Over(p.data, blk)
}

// Largest returns the size of the largest free block.
func (p *Pool[T]) Largest() int {
	largest := 0
	for b := range p.free.All() {
		largest = max(largest, b.Size)
	}
	return largest
}

// Available returns the total number of free elements.
func (p *Pool[T]) Available() int {
	total := 0
	for b := range p.free.All() {
		total += b.Size
	}
	return total
}

// FreeBlocks returns the free list in list order.
func (p *Pool[T]) FreeBlocks() []Block { return slices.Collect(p.free.All()) }

// UsedBlocks returns the live allocations in allocation order.
func (p *Pool[T]) UsedBlocks() []Block { return slices.Collect(p.used.All()) }

// Checkpoint captures the allocator bookkeeping.
type Checkpoint struct {
	free []Block
	used []Block
}

// Checkpoint snapshots both block lists.
func (p *Pool[T]) Checkpoint() Checkpoint {
	return Checkpoint{free: p.FreeBlocks(), used: p.UsedBlocks()}
}

// Restore rewinds the bookkeeping to cp, reproducing the list order
// exactly. Buffer contents are left as they are.
func (p *Pool[T]) Restore(cp Checkpoint) {
	p.free.Clear()
	for _, b := range cp.free {
		_, _ = p.free.Attach(b)
	}
	p.used.Clear()
	for _, b := range cp.used {
		_, _ = p.used.Attach(b)
	}
}

// Validate checks that free and used blocks tile the buffer without overlap
// and that no two free blocks touch.
func (p *Pool[T]) Validate() error {
	type span struct {
		Block
		free bool
	}
	var spans []span
	for b := range p.free.All() {
		spans = append(spans, span{b, true})
	}
	for b := range p.used.All() {
		spans = append(spans, span{b, false})
	}
	slices.SortFunc(spans, func(a, b span) int { return a.Start - b.Start })

	at := 0
	for i, s := range spans {
		if s.Size <= 0 {
			return fmt.Errorf("pool %s: empty block at %d", p.name, s.Start)
		}
		if s.Start != at {
			return fmt.Errorf("pool %s: block at %d, expected %d", p.name, s.Start, at)
		}
		if i > 0 && s.free && spans[i-1].free {
			return fmt.Errorf("pool %s: uncoalesced free blocks at %d", p.name, s.Start)
		}
		at = s.End()
	}
	if at != len(p.data) {
		return fmt.Errorf("pool %s: blocks cover %d of %d", p.name, at, len(p.data))
	}
	return nil
}
