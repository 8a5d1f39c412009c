package pool

// View is a bounds-checked window onto a block of a backing buffer.
type View[T any] struct {
	block Block
	data  []T
}

// Over returns a view of data restricted to blk. Use it for arrays that
// share a pool's index space.
func Over[T any](data []T, blk Block) View[T] {
	return View[T]{block: blk, data: data[blk.Start:blk.End():blk.End()]}
}

// Block returns the range the view covers.
func (v View[T]) Block() Block { return v.block }

// Len returns the number of elements in the view.
func (v View[T]) Len() int { return len(v.data) }

// At returns element i.
func (v View[T]) At(i int) T { return v.data[i] }

// Set stores x at element i.
func (v View[T]) Set(i int, x T) { v.data[i] = x }

// Ptr returns a pointer to element i.
func (v View[T]) Ptr(i int) *T { return &v.data[i] }

// Slice exposes the view as a capacity-limited slice.
func (v View[T]) Slice() []T { return v.data }
