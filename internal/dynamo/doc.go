// Package dynamo provides core primitives shared by the spring simulation
// packages: the domain error set and bounded parallel fan-out helpers.
//
//   - [ErrCapacityExceeded]: a fixed-capacity pool refused a request
//   - [SimulationError]: wraps an error with the rig and bone it concerns
//   - [ParallelFor]: chunked fan-out bounded by a worker cap
//
// # Thread Safety
//
// [ParallelFor] blocks until every chunk has returned. Callers must make
// sure chunks never write to overlapping data.
package dynamo
