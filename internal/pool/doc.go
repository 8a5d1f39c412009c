// Package pool provides fixed-capacity block allocation over a single
// backing buffer.
//
// A [Pool] hands out contiguous [Block] ranges first-fit from a free list
// and coalesces neighbouring free ranges on release. Callers address their
// range through a [View], which is bounds-checked against the block and
// never reaches into a neighbour's range. The buffer never grows: a request
// the free list cannot satisfy fails with a [*CapacityError] and leaves the
// pool untouched.
//
// Blocks are released by the (Start, Size) handle returned from
// [Pool.Alloc], not by address. Parallel arrays that share the pool's
// index space (per-bone state next to per-bone properties, for example) are
// addressed with [Over].
//
// # Thread Safety
//
// A Pool is not safe for concurrent mutation. Views over disjoint blocks may
// be read and written from different goroutines.
package pool
