package physics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/force"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/pool"
)

type refKind uint8

const (
	refNone refKind = iota
	refSimulated
	refExternal
)

// BoneRef points at either a simulated bone of the same rig or an external
// hierarchy node.
type BoneRef struct {
	kind  refKind
	index int
	node  hierarchy.NodeID
}

// Simulated refers to bone index within the rig.
func Simulated(index int) BoneRef {
	return BoneRef{kind: refSimulated, index: index, node: hierarchy.InvalidNode}
}

// External refers to a hierarchy node outside the simulation.
func External(node hierarchy.NodeID) BoneRef {
	return BoneRef{kind: refExternal, index: -1, node: node}
}

// Index returns the rig-local bone index for simulated references.
func (r BoneRef) Index() (int, bool) {
	return r.index, r.kind == refSimulated
}

// Node returns the hierarchy node for external references.
func (r BoneRef) Node() (hierarchy.NodeID, bool) {
	return r.node, r.kind == refExternal && r.node.Valid()
}

// IsZero reports whether the reference is unset.
func (r BoneRef) IsZero() bool { return r.kind == refNone }

func (r BoneRef) String() string {
	switch r.kind {
	case refSimulated:
		return fmt.Sprintf("bone(%d)", r.index)
	case refExternal:
		return fmt.Sprintf("node(%d)", r.node)
	}
	return "none"
}

// AngleLimit bounds the swing of a bone on one pivot plane, in degrees.
type AngleLimit struct {
	Active bool
	Min    float64
	Max    float64
}

// LengthLimit pulls a tip toward a rest distance from a target.
type LengthLimit struct {
	Target   BoneRef
	Distance float64
	// Slot indexes the rig's length-target range for external targets.
	Slot int
}

// BoneProperties are a bone's static settings. They are not written during
// a frame.
type BoneProperties struct {
	Stiffness        float64
	Drag             float64
	SpringForce      mgl64.Vec3
	WindInfluence    float64
	AngularStiffness float64
	YLimit           AngleLimit
	ZLimit           AngleLimit
	Radius           float64
	Length           float64
	Axis             mgl64.Vec3

	LocalPosition        mgl64.Vec3
	InitialLocalRotation mgl64.Quat

	Parent BoneRef
	Pivot  BoneRef
	// PivotLocal is the angle-limit frame relative to Pivot's pose, or in
	// world space when Pivot is unset. Its -X axis is the unbent bone
	// direction.
	PivotLocal mgl64.Mat4

	Collisions   pool.View[int]
	LengthLimits pool.View[LengthLimit]
}

// BoneState is a bone's per-frame simulation state.
type BoneState struct {
	Tip           mgl64.Vec3
	PrevTip       mgl64.Vec3
	LocalRotation mgl64.Quat
	Position      mgl64.Vec3
	Rotation      mgl64.Quat
}

// RestTip returns where the tip sits with no deflection for a bone at pose.
func (p *BoneProperties) RestTip(base hierarchy.Pose) mgl64.Vec3 {
	return base.Position.Add(base.Rotation.Rotate(p.Axis.Mul(p.Length)))
}

// Params are a rig's runtime settings. The scheduler snapshots them once
// per frame.
type Params struct {
	Gravity  mgl64.Vec3
	Bounce   float64
	Friction float64
	Wind     force.GustParams

	// SimulationRate fixes the step to 1/rate when positive; otherwise the
	// host frame delta is used.
	SimulationRate float64
	DynamicRatio   float64
	Paused         bool

	AngleLimits     bool
	Collisions      bool
	LengthLimits    bool
	GroundCollision bool
	GroundHeight    float64
}

// DefaultParams returns the stock rig settings.
func DefaultParams() Params {
	return Params{
		Gravity:  mgl64.Vec3{0, -10, 0},
		Bounce:   0,
		Friction: 1,
		Wind: force.GustParams{
			Influence:    1,
			Power:        mgl64.Vec3{30, 1, 1},
			Direction:    mgl64.Vec3{0.3, 0, 0},
			DistanceRate: mgl64.Vec3{30, 0, 0},
		},
		SimulationRate: 60,
		DynamicRatio:   1,
		AngleLimits:    true,
		Collisions:     true,
		LengthLimits:   true,
	}
}

// Step returns the integration step for a host frame delta.
func (p Params) Step(hostDt float64) float64 {
	if p.SimulationRate > 0 {
		return 1 / p.SimulationRate
	}
	return hostDt
}

// Validate checks settings the kernel cannot recover from.
func (p Params) Validate() error {
	if p.DynamicRatio < 0 || p.DynamicRatio > 1 {
		return fmt.Errorf("dynamic ratio %v not in [0, 1]", p.DynamicRatio)
	}
	if p.Friction < 0 || p.Friction > 1 {
		return fmt.Errorf("friction %v not in [0, 1]", p.Friction)
	}
	if p.SimulationRate < 0 {
		return fmt.Errorf("simulation rate %v is negative", p.SimulationRate)
	}
	return nil
}
