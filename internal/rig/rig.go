package rig

import (
	"fmt"
	"sync"

	"github.com/san-kum/springsim/internal/dynamo"
	"github.com/san-kum/springsim/internal/physics"
)

// Rig is a named setup plus runtime parameters. Parameter changes are
// picked up by the scheduler at the next tick.
type Rig struct {
	name  string
	setup Setup

	mu     sync.Mutex
	params physics.Params
}

// New validates params and returns a rig.
func New(name string, setup Setup, params physics.Params) (*Rig, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: rig %q: %v", dynamo.ErrParameterBounds, name, err)
	}
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	return &Rig{name: name, setup: setup, params: params}, nil
}

// Name returns the rig's name.
func (r *Rig) Name() string { return r.name }

// Setup returns the assembled authoring data.
func (r *Rig) Setup() *Setup { return &r.setup }

// Params returns a snapshot of the runtime parameters.
func (r *Rig) Params() physics.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// SetParams replaces the runtime parameters.
func (r *Rig) SetParams(p physics.Params) error {
	return r.Update(func(dst *physics.Params) { *dst = p })
}

// Update edits the runtime parameters in place. The edit is discarded if
// the result does not validate.
func (r *Rig) Update(fn func(*physics.Params)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.params
	fn(&next)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: rig %q: %v", dynamo.ErrParameterBounds, r.name, err)
	}
	r.params = next
	return nil
}

// SetPaused stops or resumes simulation of the rig.
func (r *Rig) SetPaused(paused bool) {
	_ = r.Update(func(p *physics.Params) { p.Paused = paused })
}
