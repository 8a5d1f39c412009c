package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrCapacityExceeded indicates a fixed-capacity buffer could not satisfy a request.
	ErrCapacityExceeded = errors.New("dynamo: capacity exceeded")

	// ErrNumericAnomaly indicates a non-finite value was produced by the kernel.
	ErrNumericAnomaly = errors.New("dynamo: numeric anomaly (NaN or Inf detected)")

	// ErrInvalidTopology indicates rig authoring data that cannot be simulated as given.
	ErrInvalidTopology = errors.New("dynamo: invalid rig topology")

	// ErrNotRegistered indicates an operation on a rig the scheduler does not own.
	ErrNotRegistered = errors.New("dynamo: rig not registered")

	// ErrAlreadyRegistered indicates a rig was registered twice.
	ErrAlreadyRegistered = errors.New("dynamo: rig already registered")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")
)

// SimulationError wraps an error with rig context.
type SimulationError struct {
	Rig     string
	Bone    int
	Wrapped error
}

func (e *SimulationError) Error() string {
	if e.Bone < 0 {
		return fmt.Sprintf("rig %q: %v", e.Rig, e.Wrapped)
	}
	return fmt.Sprintf("rig %q bone %d: %v", e.Rig, e.Bone, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
