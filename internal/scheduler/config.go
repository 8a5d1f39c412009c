package scheduler

import (
	"fmt"
	"strings"
)

// Mode selects when a frame's kernel batch is joined.
type Mode int

const (
	// Synchronous joins the batch and writes rotations back within Tick.
	Synchronous Mode = iota
	// Pipelined leaves the batch running after Tick returns and joins it
	// at the start of the next Tick.
	Pipelined
)

func (m Mode) String() string {
	switch m {
	case Synchronous:
		return "sync"
	case Pipelined:
		return "pipelined"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a config name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "", "sync", "synchronous":
		return Synchronous, nil
	case "pipelined", "async":
		return Pipelined, nil
	}
	return 0, fmt.Errorf("scheduler: unknown mode %q", name)
}

// Capacities size the shared buffers. They are fixed for the scheduler's
// lifetime.
type Capacities struct {
	Rigs             int `yaml:"rigs"`
	Bones            int `yaml:"bones"`
	Colliders        int `yaml:"colliders"`
	CollisionIndices int `yaml:"collision_indices"`
	LengthLimits     int `yaml:"length_limits"`
	Forces           int `yaml:"forces"`
}

// DefaultCapacities returns the stock buffer sizes.
func DefaultCapacities() Capacities {
	return Capacities{
		Rigs:             32,
		Bones:            1024,
		Colliders:        256,
		CollisionIndices: 2048,
		LengthLimits:     256,
		Forces:           16,
	}
}

func (c Capacities) clamped() Capacities {
	for _, v := range []*int{&c.Rigs, &c.Bones, &c.Colliders, &c.CollisionIndices, &c.LengthLimits, &c.Forces} {
		if *v < 1 {
			*v = 1
		}
	}
	return c
}

// Config configures a Scheduler.
type Config struct {
	Capacities Capacities
	Mode       Mode
	// MaxWorkers caps the kernel batch parallelism. Zero uses every CPU
	// with one rig per work item.
	MaxWorkers int
	// Seed drives the wind noise field.
	Seed int64
}

// DefaultConfig returns a synchronous scheduler with stock capacities.
func DefaultConfig() Config {
	return Config{Capacities: DefaultCapacities(), Mode: Synchronous}
}
