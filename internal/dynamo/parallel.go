package dynamo

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers returns the effective worker count for a cap. Non-positive caps
// and caps above the CPU count resolve to runtime.NumCPU().
func Workers(limit int) int {
	n := runtime.NumCPU()
	if limit <= 0 || limit > n {
		return n
	}
	return limit
}

// ParallelFor executes a function in parallel over a range [0, n) split into
// chunks of at least minChunk, with at most workers chunks in flight.
func ParallelFor(n, minChunk, workers int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if minChunk < 1 {
		minChunk = 1
	}
	workers = Workers(workers)
	if n <= minChunk || workers <= 1 {
		fn(0, n)
		return
	}

	chunks := workers
	if n/minChunk < chunks {
		chunks = n / minChunk
	}
	if chunks < 1 {
		chunks = 1
	}

	chunkSize := (n + chunks - 1) / chunks

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	_ = g.Wait()
}

// Batches splits [0, n) into work items of size batch. A non-positive batch
// yields one item per index.
func Batches(n, batch int) [][2]int {
	if batch < 1 {
		batch = 1
	}
	out := make([][2]int, 0, (n+batch-1)/batch)
	for start := 0; start < n; start += batch {
		end := start + batch
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
