// Package rig assembles spring-bone authoring data from a transform
// hierarchy and carries a rig's runtime parameters.
package rig

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/dynamo"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/logger"
	"github.com/san-kum/springsim/internal/physics"
)

// FallbackLength is the rest length given to a bone with no tip to aim at.
const FallbackLength = 0.1

// Source is the read side of a hierarchy needed to assemble a rig.
type Source interface {
	WorldPose(id hierarchy.NodeID) (hierarchy.Pose, bool)
	LocalPose(id hierarchy.NodeID) (hierarchy.Pose, bool)
	Parent(id hierarchy.NodeID) hierarchy.NodeID
	Children(id hierarchy.NodeID) []hierarchy.NodeID
}

// BoneSpec is the authoring description of one spring bone.
type BoneSpec struct {
	Node hierarchy.NodeID
	// Tip is the node the bone aims at. InvalidNode selects the first child.
	Tip hierarchy.NodeID
	// Pivot orients the angle limits. InvalidNode selects the bone's parent.
	Pivot hierarchy.NodeID

	Stiffness        float64
	Drag             float64
	SpringForce      mgl64.Vec3
	WindInfluence    float64
	AngularStiffness float64
	Radius           float64
	YLimit           physics.AngleLimit
	ZLimit           physics.AngleLimit

	// Colliders index the rig's collider list.
	Colliders     []int
	LengthTargets []hierarchy.NodeID
}

// ColliderSpec binds collider dimensions to a node.
type ColliderSpec struct {
	Node       hierarchy.NodeID
	Properties collision.Properties
}

// Bone is an assembled bone ready for registration.
type Bone struct {
	Node         hierarchy.NodeID
	Properties   physics.BoneProperties
	Colliders    []int
	LengthLimits []LengthLimit
}

// LengthLimit is an assembled length limit. Node is set for external
// targets.
type LengthLimit struct {
	Limit physics.LengthLimit
	Node  hierarchy.NodeID
}

// Setup is a rig's assembled authoring data, bones in depth order.
type Setup struct {
	Bones     []Bone
	Colliders []ColliderSpec
	// Targets counts external length-limit targets.
	Targets int
}

// Assemble derives bone axes, rest lengths, initial rotations and
// references from the current hierarchy pose. Bones are sorted so every
// simulated parent precedes its children.
func Assemble(src Source, specs []BoneSpec, colliders []ColliderSpec, log *slog.Logger) (Setup, error) {
	log = logger.Or(log)

	for i, c := range colliders {
		if _, ok := src.WorldPose(c.Node); !ok {
			return Setup{}, fmt.Errorf("%w: collider %d has no node", dynamo.ErrInvalidTopology, i)
		}
	}

	type ordered struct {
		spec  BoneSpec
		depth int
	}
	sorted := make([]ordered, 0, len(specs))
	seen := make(map[hierarchy.NodeID]bool, len(specs))
	for i, s := range specs {
		if _, ok := src.WorldPose(s.Node); !ok {
			return Setup{}, fmt.Errorf("%w: bone %d has no node", dynamo.ErrInvalidTopology, i)
		}
		if seen[s.Node] {
			return Setup{}, fmt.Errorf("%w: node %d listed twice", dynamo.ErrInvalidTopology, s.Node)
		}
		seen[s.Node] = true
		for _, c := range s.Colliders {
			if c < 0 || c >= len(colliders) {
				return Setup{}, fmt.Errorf("%w: bone %d collider %d out of range", dynamo.ErrInvalidTopology, i, c)
			}
		}
		sorted = append(sorted, ordered{spec: s, depth: depth(src, s.Node)})
	}
	slices.SortStableFunc(sorted, func(a, b ordered) int { return cmp.Compare(a.depth, b.depth) })

	index := make(map[hierarchy.NodeID]int, len(sorted))
	for i, o := range sorted {
		index[o.spec.Node] = i
	}

	setup := Setup{Colliders: slices.Clone(colliders)}
	for i, o := range sorted {
		s := o.spec
		local, _ := src.LocalPose(s.Node)
		world, _ := src.WorldPose(s.Node)

		p := physics.BoneProperties{
			Stiffness:            s.Stiffness,
			Drag:                 s.Drag,
			SpringForce:          s.SpringForce,
			WindInfluence:        s.WindInfluence,
			AngularStiffness:     s.AngularStiffness,
			Radius:               s.Radius,
			YLimit:               s.YLimit,
			ZLimit:               s.ZLimit,
			LocalPosition:        local.Position,
			InitialLocalRotation: local.Rotation,
			Parent:               ref(index, src.Parent(s.Node)),
			PivotLocal:           mgl64.Ident4(),
		}

		tipLocal, ok := tipOffset(src, s, world)
		if l := tipLocal.Len(); ok && l > 0 {
			p.Axis = tipLocal.Mul(1 / l)
			p.Length = l
		} else {
			p.Axis = mgl64.Vec3{0, 1, 0}
			p.Length = FallbackLength
			log.Warn("bone has no tip, using fallback axis",
				"bone", i, "node", s.Node, "err", dynamo.ErrInvalidTopology)
		}

		p.Pivot = pivotRef(src, s, index, world, &p)

		b := Bone{Node: s.Node, Properties: p, Colliders: slices.Clone(s.Colliders)}
		tip := world.Position.Add(world.Rotation.Rotate(p.Axis.Mul(p.Length)))
		for _, target := range s.LengthTargets {
			tw, ok := src.WorldPose(target)
			if !ok {
				return Setup{}, fmt.Errorf("%w: bone %d length target %d has no node", dynamo.ErrInvalidTopology, i, target)
			}
			ll := LengthLimit{Limit: physics.LengthLimit{
				Target:   ref(index, target),
				Distance: tw.Position.Sub(tip).Len(),
			}}
			if _, simulated := ll.Limit.Target.Index(); !simulated {
				ll.Node = target
				ll.Limit.Slot = setup.Targets
				setup.Targets++
			} else {
				ll.Node = hierarchy.InvalidNode
			}
			b.LengthLimits = append(b.LengthLimits, ll)
		}
		setup.Bones = append(setup.Bones, b)
	}
	return setup, setup.Validate()
}

func depth(src Source, node hierarchy.NodeID) int {
	d := 0
	for n := src.Parent(node); n.Valid(); n = src.Parent(n) {
		d++
	}
	return d
}

// tipOffset returns the tip position in the bone's local frame.
func tipOffset(src Source, s BoneSpec, world hierarchy.Pose) (mgl64.Vec3, bool) {
	tip := s.Tip
	if !tip.Valid() {
		children := src.Children(s.Node)
		if len(children) == 0 {
			return mgl64.Vec3{}, false
		}
		tip = children[0]
	}
	if src.Parent(tip) == s.Node {
		local, ok := src.LocalPose(tip)
		return local.Position, ok
	}
	tw, ok := src.WorldPose(tip)
	if !ok {
		return mgl64.Vec3{}, false
	}
	return world.Inverse().Compose(tw).Position, true
}

// pivotRef resolves the pivot to a simulated bone when the pivot node is a
// bone or hangs directly off one, recording the offset in PivotLocal. A
// defaulted pivot is the parent frame turned so the bone rests on its
// forward axis. A root bone has no parent to follow, so its frame is fixed
// in world space where the bone rests now.
func pivotRef(src Source, s BoneSpec, index map[hierarchy.NodeID]int, world hierarchy.Pose, p *physics.BoneProperties) physics.BoneRef {
	pivot := s.Pivot
	if !pivot.Valid() {
		pivot = src.Parent(s.Node)
		if !pivot.Valid() {
			p.PivotLocal = restPivot(world, p.Axis)
			return physics.BoneRef{}
		}
		local := hierarchy.Pose{Position: p.LocalPosition, Rotation: p.InitialLocalRotation}
		p.PivotLocal = restPivot(local, p.Axis)
		return ref(index, pivot)
	}
	if i, ok := index[pivot]; ok {
		return physics.Simulated(i)
	}
	owner := src.Parent(pivot)
	if i, ok := index[owner]; ok {
		ow, _ := src.WorldPose(owner)
		pw, _ := src.WorldPose(pivot)
		p.PivotLocal = ow.Inverse().Compose(pw).Matrix()
		return physics.Simulated(i)
	}
	return physics.External(pivot)
}

// restPivot places a frame at the bone's head pose whose -X axis is the
// bone's rest direction, in the space head is given in.
func restPivot(head hierarchy.Pose, axis mgl64.Vec3) mgl64.Mat4 {
	rest := head.Rotation.Rotate(axis)
	turn := mgl64.QuatBetweenVectors(mgl64.Vec3{-1, 0, 0}, rest)
	return hierarchy.Pose{Position: head.Position, Rotation: turn}.Matrix()
}

func ref(index map[hierarchy.NodeID]int, node hierarchy.NodeID) physics.BoneRef {
	if i, ok := index[node]; ok {
		return physics.Simulated(i)
	}
	return physics.External(node)
}

// Validate checks the ordering and index invariants the kernel relies on.
func (s Setup) Validate() error {
	for i, b := range s.Bones {
		if p, ok := b.Properties.Parent.Index(); ok && (p < 0 || p >= i) {
			return fmt.Errorf("%w: bone %d parent %d is not earlier in order", dynamo.ErrInvalidTopology, i, p)
		}
		if p, ok := b.Properties.Pivot.Index(); ok && (p < 0 || p >= len(s.Bones)) {
			return fmt.Errorf("%w: bone %d pivot %d out of range", dynamo.ErrInvalidTopology, i, p)
		}
		for _, c := range b.Colliders {
			if c < 0 || c >= len(s.Colliders) {
				return fmt.Errorf("%w: bone %d collider %d out of range", dynamo.ErrInvalidTopology, i, c)
			}
		}
		for _, l := range b.LengthLimits {
			t, ok := l.Limit.Target.Index()
			switch {
			case ok && (t < 0 || t >= len(s.Bones)):
				return fmt.Errorf("%w: bone %d length target %d out of range", dynamo.ErrInvalidTopology, i, t)
			case !ok && (l.Limit.Slot < 0 || l.Limit.Slot >= s.Targets):
				return fmt.Errorf("%w: bone %d length target slot %d out of range", dynamo.ErrInvalidTopology, i, l.Limit.Slot)
			}
		}
	}
	return nil
}

// CollisionIndices returns the total number of collider bindings.
func (s Setup) CollisionIndices() int {
	n := 0
	for _, b := range s.Bones {
		n += len(b.Colliders)
	}
	return n
}

// LengthLimits returns the total number of length limits.
func (s Setup) LengthLimits() int {
	n := 0
	for _, b := range s.Bones {
		n += len(b.LengthLimits)
	}
	return n
}
