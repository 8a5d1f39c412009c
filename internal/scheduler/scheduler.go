// Package scheduler owns the shared simulation buffers and drives one
// kernel batch per frame across all registered rigs.
package scheduler

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/dynamo"
	"github.com/san-kum/springsim/internal/force"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/logger"
	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/pool"
	"github.com/san-kum/springsim/internal/registry"
	"github.com/san-kum/springsim/internal/rig"
)

// entry is a registered rig and the ranges it owns.
type entry struct {
	rig       *rig.Rig
	handle    registry.Handle
	bones     pool.Block
	colliders pool.Block
	targets   pool.Block
	indices   []pool.Block
	limits    []pool.Block
}

// Scheduler is not safe for concurrent use; call it from the host's frame
// loop.
type Scheduler struct {
	cfg     Config
	log     *slog.Logger
	scene   hierarchy.Provider
	noise   *force.Noise
	workers int
	mode    Mode

	bones       *pool.Pool[physics.BoneProperties]
	states      []physics.BoneState
	parentPoses []hierarchy.Pose
	pivots      []mgl64.Mat4
	boneNodes   []hierarchy.NodeID

	colliders      *pool.Pool[collision.Properties]
	colliderStates []collision.State
	colliderNodes  []hierarchy.NodeID

	indices     *pool.Pool[int]
	limits      *pool.Pool[physics.LengthLimit]
	targets     *pool.Pool[mgl64.Vec3]
	targetNodes []hierarchy.NodeID

	rigs      *registry.List[*entry]
	byRig     map[*rig.Rig]*entry
	providers *registry.List[force.Provider]

	live     []*entry
	elements []physics.Element
	forces   []force.Component

	inflight  chan struct{}
	pending   bool
	frame     uint64
	anomalies atomic.Int64
}

// New allocates every buffer up front.
func New(cfg Config, scene hierarchy.Provider, log *slog.Logger) (*Scheduler, error) {
	if scene == nil {
		return nil, fmt.Errorf("scheduler: nil hierarchy provider")
	}
	log = logger.Or(log)
	c := cfg.Capacities.clamped()
	cfg.Capacities = c

	if n := runtime.NumCPU(); cfg.MaxWorkers > n {
		log.Info("worker cap above CPU count, clamping", "requested", cfg.MaxWorkers, "cpus", n)
		cfg.MaxWorkers = n
	}

	s := &Scheduler{
		cfg:     cfg,
		log:     log,
		scene:   scene,
		noise:   force.NewNoise(cfg.Seed),
		workers: dynamo.Workers(cfg.MaxWorkers),
		mode:    cfg.Mode,

		bones:       pool.New[physics.BoneProperties]("bones", c.Bones, c.Rigs),
		states:      make([]physics.BoneState, c.Bones),
		parentPoses: make([]hierarchy.Pose, c.Bones),
		pivots:      make([]mgl64.Mat4, c.Bones),
		boneNodes:   make([]hierarchy.NodeID, c.Bones),

		colliders:      pool.New[collision.Properties]("colliders", c.Colliders, c.Rigs),
		colliderStates: make([]collision.State, c.Colliders),
		colliderNodes:  make([]hierarchy.NodeID, c.Colliders),

		indices:     pool.New[int]("collision indices", c.CollisionIndices, c.Bones),
		limits:      pool.New[physics.LengthLimit]("length limits", c.LengthLimits, c.Bones),
		targets:     pool.New[mgl64.Vec3]("length targets", c.LengthLimits, c.Rigs),
		targetNodes: make([]hierarchy.NodeID, c.LengthLimits),

		rigs:      registry.New[*entry](c.Rigs),
		byRig:     make(map[*rig.Rig]*entry, c.Rigs),
		providers: registry.New[force.Provider](c.Forces),

		live:     make([]*entry, 0, c.Rigs),
		elements: make([]physics.Element, 0, c.Rigs),
		forces:   make([]force.Component, 0, c.Forces),
	}
	for _, nodes := range [][]hierarchy.NodeID{s.boneNodes, s.colliderNodes, s.targetNodes} {
		for i := range nodes {
			nodes[i] = hierarchy.InvalidNode
		}
	}
	return s, nil
}

// Mode returns the current scheduling mode.
func (s *Scheduler) Mode() Mode { return s.mode }

// SetMode switches modes. Leaving pipelined mode joins the in-flight batch
// and writes its results back immediately.
func (s *Scheduler) SetMode(m Mode) {
	if m == s.mode {
		return
	}
	if s.mode == Pipelined {
		s.Flush()
	}
	s.log.Info("scheduler mode changed", "from", s.mode, "to", m)
	s.mode = m
}

// Workers returns the effective kernel parallelism.
func (s *Scheduler) Workers() int { return s.workers }

// AddForceProvider registers a provider polled once per tick.
func (s *Scheduler) AddForceProvider(p force.Provider) error {
	s.wait()
	if _, err := s.providers.Attach(p); err != nil {
		return fmt.Errorf("%w: force providers (%d)", dynamo.ErrCapacityExceeded, s.providers.Cap())
	}
	return nil
}

// RemoveForceProvider unregisters p. It reports whether p was found.
func (s *Scheduler) RemoveForceProvider(p force.Provider) bool {
	s.wait()
	return s.providers.DetachWhere(func(q force.Provider) registry.Match {
		if q == p {
			return registry.Stop
		}
		return registry.Miss
	})
}

// Tick runs one frame: poll forces, refresh cached transforms, dispatch the
// kernel batch and, depending on mode, join and write back.
func (s *Scheduler) Tick(dt float64) {
	s.Flush()
	s.frame++

	s.pollForces(dt)
	s.collect(dt)
	if len(s.elements) == 0 {
		return
	}
	s.refresh()
	s.dispatch()
	if s.mode == Synchronous {
		s.Flush()
	}
}

// Flush joins any in-flight batch and writes its rotations back.
func (s *Scheduler) Flush() {
	s.wait()
	if s.pending {
		s.writeBack()
		s.pending = false
	}
}

// wait joins the in-flight batch without writing back.
func (s *Scheduler) wait() {
	if s.inflight != nil {
		<-s.inflight
		s.inflight = nil
	}
}

// Close joins outstanding work and releases every rig.
func (s *Scheduler) Close() {
	s.Flush()
	for _, e := range s.byRig {
		s.release(e)
	}
	s.providers.Clear()
}

func (s *Scheduler) pollForces(dt float64) {
	s.forces = s.forces[:0]
	for p := range s.providers.All() {
		s.forces = append(s.forces, p.Sample(dt))
	}
}

func (s *Scheduler) collect(dt float64) {
	s.live = s.live[:0]
	s.elements = s.elements[:0]
	s.rigs.ForEach(func(_ int, e *entry) bool {
		params := e.rig.Params()
		s.live = append(s.live, e)
		s.elements = append(s.elements, physics.Element{
			Rig:            e.rig.Name(),
			Params:         params,
			Dt:             params.Step(dt),
			Bones:          s.bones.View(e.bones),
			States:         pool.Over(s.states, e.bones),
			ParentPoses:    pool.Over(s.parentPoses, e.bones),
			PivotMatrices:  pool.Over(s.pivots, e.bones),
			Colliders:      s.colliders.View(e.colliders),
			ColliderStates: pool.Over(s.colliderStates, e.colliders),
			LengthTargets:  s.targets.View(e.targets),
			Forces:         s.forces,
			Noise:          s.noise,
			Log:            s.log,
		})
		return true
	})
}

// dispatch starts the kernel batch. With a worker cap rigs are grouped
// into ceil(rigs/workers) sized items; otherwise each rig is one item.
func (s *Scheduler) dispatch() {
	n := len(s.elements)
	batch := 1
	if s.cfg.MaxWorkers > 0 {
		batch = (n + s.workers - 1) / s.workers
	}
	items := dynamo.Batches(n, batch)
	elements := s.elements
	done := make(chan struct{})
	s.inflight = done
	s.pending = true

	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(s.workers)
		for _, it := range items {
			g.Go(func() error {
				for k := it[0]; k < it[1]; k++ {
					if r := elements[k].Execute(); r > 0 {
						s.anomalies.Add(int64(r))
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// Stats reports buffer usage and counters.
type Stats struct {
	Frame        uint64
	Mode         Mode
	Workers      int
	Rigs         int
	Bones        int
	Colliders    int
	Indices      int
	LengthLimits int
	Forces       int
	Anomalies    int64
}

// Stats returns a usage snapshot.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Frame:        s.frame,
		Mode:         s.mode,
		Workers:      s.workers,
		Rigs:         s.rigs.Len(),
		Bones:        s.bones.Size() - s.bones.Available(),
		Colliders:    s.colliders.Size() - s.colliders.Available(),
		Indices:      s.indices.Size() - s.indices.Available(),
		LengthLimits: s.limits.Size() - s.limits.Available(),
		Forces:       s.providers.Len(),
		Anomalies:    s.anomalies.Load(),
	}
}

// States copies a rig's bone states into dst. It joins an in-flight batch
// first but does not write it back.
func (s *Scheduler) States(r *rig.Rig, dst []physics.BoneState) ([]physics.BoneState, error) {
	e, ok := s.byRig[r]
	if !ok {
		return dst, &dynamo.SimulationError{Rig: r.Name(), Bone: -1, Wrapped: dynamo.ErrNotRegistered}
	}
	s.wait()
	return append(dst[:0], s.states[e.bones.Start:e.bones.End()]...), nil
}

// Registered reports whether r is registered.
func (s *Scheduler) Registered(r *rig.Rig) bool {
	_, ok := s.byRig[r]
	return ok
}
