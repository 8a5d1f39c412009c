package pool

import (
	"errors"
	"fmt"

	"github.com/san-kum/springsim/internal/dynamo"
)

// ErrUnknownBlock is returned by Free for a handle the pool never issued or
// has already released.
var ErrUnknownBlock = errors.New("pool: unknown block")

// CapacityError reports a refused allocation.
type CapacityError struct {
	Pool      string
	Requested int
	Largest   int
	Blocks    bool // block bookkeeping exhausted rather than space
}

func (e *CapacityError) Error() string {
	if e.Blocks {
		return fmt.Sprintf("pool %s: block table full (requested %d)", e.Pool, e.Requested)
	}
	return fmt.Sprintf("pool %s: requested %d, largest free block %d", e.Pool, e.Requested, e.Largest)
}

func (e *CapacityError) Unwrap() error {
	return dynamo.ErrCapacityExceeded
}
