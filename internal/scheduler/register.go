package scheduler

import (
	"fmt"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/dynamo"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/pool"
	"github.com/san-kum/springsim/internal/rig"
)

type checkpoint struct {
	bones, colliders, indices, limits, targets pool.Checkpoint
}

func (s *Scheduler) checkpoint() checkpoint {
	return checkpoint{
		bones:     s.bones.Checkpoint(),
		colliders: s.colliders.Checkpoint(),
		indices:   s.indices.Checkpoint(),
		limits:    s.limits.Checkpoint(),
		targets:   s.targets.Checkpoint(),
	}
}

func (s *Scheduler) restore(cp checkpoint) {
	s.bones.Restore(cp.bones)
	s.colliders.Restore(cp.colliders)
	s.indices.Restore(cp.indices)
	s.limits.Restore(cp.limits)
	s.targets.Restore(cp.targets)
}

// Register allocates r's ranges and snapshots its initial state from the
// hierarchy. On any capacity failure every pool is rewound and the error
// wraps dynamo.ErrCapacityExceeded.
func (s *Scheduler) Register(r *rig.Rig) error {
	s.Flush()
	if _, ok := s.byRig[r]; ok {
		return &dynamo.SimulationError{Rig: r.Name(), Bone: -1, Wrapped: dynamo.ErrAlreadyRegistered}
	}
	setup := r.Setup()
	if err := setup.Validate(); err != nil {
		return &dynamo.SimulationError{Rig: r.Name(), Bone: -1, Wrapped: err}
	}

	cp := s.checkpoint()
	e, err := s.allocate(r, setup)
	if err != nil {
		s.restore(cp)
		s.log.Error("rig registration refused", "rig", r.Name(), "bones", len(setup.Bones), "err", err)
		return &dynamo.SimulationError{Rig: r.Name(), Bone: -1, Wrapped: err}
	}
	s.initialize(e, setup)
	s.byRig[r] = e
	s.log.Debug("rig registered", "rig", r.Name(), "bones", e.bones.Size, "colliders", e.colliders.Size)
	return nil
}

func (s *Scheduler) allocate(r *rig.Rig, setup *rig.Setup) (*entry, error) {
	e := &entry{
		rig:     r,
		indices: make([]pool.Block, len(setup.Bones)),
		limits:  make([]pool.Block, len(setup.Bones)),
	}
	var err error
	if e.bones, _, err = s.bones.Alloc(len(setup.Bones)); err != nil {
		return nil, err
	}
	for i, b := range setup.Bones {
		if e.indices[i], _, err = s.indices.Alloc(len(b.Colliders)); err != nil {
			return nil, err
		}
		if e.limits[i], _, err = s.limits.Alloc(len(b.LengthLimits)); err != nil {
			return nil, err
		}
	}
	if e.colliders, _, err = s.colliders.Alloc(len(setup.Colliders)); err != nil {
		return nil, err
	}
	if e.targets, _, err = s.targets.Alloc(setup.Targets); err != nil {
		return nil, err
	}
	if e.handle, err = s.rigs.Attach(e); err != nil {
		return nil, fmt.Errorf("%w: rig registry holds %d rigs", dynamo.ErrCapacityExceeded, s.rigs.Cap())
	}
	return e, nil
}

// initialize fills the rig's ranges and snapshots its current pose.
func (s *Scheduler) initialize(e *entry, setup *rig.Setup) {
	for j, c := range setup.Colliders {
		slot := e.colliders.Start + j
		s.colliders.View(e.colliders).Set(j, c.Properties)
		s.colliderNodes[slot] = c.Node
		if pose, ok := s.scene.Pose(c.Node); ok {
			s.colliderStates[slot] = collision.NewState(pose)
		} else {
			s.colliderStates[slot] = collision.NewState(hierarchy.Identity())
		}
	}

	targets := s.targets.View(e.targets)
	props := s.bones.View(e.bones)
	for i, b := range setup.Bones {
		slot := e.bones.Start + i
		p := b.Properties

		p.Collisions = s.indices.View(e.indices[i])
		copy(p.Collisions.Slice(), b.Colliders)
		p.LengthLimits = s.limits.View(e.limits[i])
		for j, l := range b.LengthLimits {
			p.LengthLimits.Set(j, l.Limit)
			if l.Node.Valid() {
				s.targetNodes[e.targets.Start+l.Limit.Slot] = l.Node
				if pose, ok := s.scene.Pose(l.Node); ok {
					targets.Set(l.Limit.Slot, pose.Position)
				}
			}
		}
		props.Set(i, p)
		s.boneNodes[slot] = b.Node

		parent := hierarchy.Identity()
		if idx, ok := p.Parent.Index(); ok {
			ps := s.states[e.bones.Start+idx]
			parent = hierarchy.Pose{Position: ps.Position, Rotation: ps.Rotation}
		} else if node, ok := p.Parent.Node(); ok {
			if pose, ok := s.scene.Pose(node); ok {
				parent = pose
			}
		}
		s.parentPoses[slot] = parent

		s.pivots[slot] = p.PivotLocal
		if node, ok := p.Pivot.Node(); ok {
			if pose, ok := s.scene.Pose(node); ok {
				s.pivots[slot] = pose.Matrix().Mul4(p.PivotLocal)
			}
		}

		local := hierarchy.Pose{Position: p.LocalPosition, Rotation: p.InitialLocalRotation}
		world, ok := s.scene.Pose(b.Node)
		if !ok {
			world = parent.Compose(local)
		}
		tip := p.RestTip(world)
		s.states[slot] = physics.BoneState{
			Tip:           tip,
			PrevTip:       tip,
			LocalRotation: parent.Rotation.Inverse().Mul(world.Rotation),
			Position:      world.Position,
			Rotation:      world.Rotation,
		}
	}
}

// Deregister joins outstanding work, releases r's ranges and detaches it.
func (s *Scheduler) Deregister(r *rig.Rig) error {
	s.Flush()
	e, ok := s.byRig[r]
	if !ok {
		return &dynamo.SimulationError{Rig: r.Name(), Bone: -1, Wrapped: dynamo.ErrNotRegistered}
	}
	s.release(e)
	s.log.Debug("rig deregistered", "rig", r.Name())
	return nil
}

func (s *Scheduler) release(e *entry) {
	clearNodes(s.boneNodes, e.bones)
	clearNodes(s.colliderNodes, e.colliders)
	clearNodes(s.targetNodes, e.targets)

	var errs []error
	errs = append(errs, s.bones.Free(e.bones), s.colliders.Free(e.colliders), s.targets.Free(e.targets))
	for i := range e.indices {
		errs = append(errs, s.indices.Free(e.indices[i]), s.limits.Free(e.limits[i]))
	}
	for _, err := range errs {
		if err != nil {
			s.log.Error("releasing rig range", "rig", e.rig.Name(), "err", err)
		}
	}
	s.rigs.Detach(e.handle)
	delete(s.byRig, e.rig)
}

func clearNodes(nodes []hierarchy.NodeID, b pool.Block) {
	for i := b.Start; i < b.End(); i++ {
		nodes[i] = hierarchy.InvalidNode
	}
}
