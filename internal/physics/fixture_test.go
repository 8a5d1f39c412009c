package physics_test

import (
	"io"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/pool"
)

// chain is a hanging bone chain rooted at an external node at the origin.
type chain struct {
	props    []physics.BoneProperties
	states   []physics.BoneState
	parents  []hierarchy.Pose
	pivots   []mgl64.Mat4
	cprops   []collision.Properties
	cstates  []collision.State
	indices  []int
	limits   []physics.LengthLimit
	targets  []mgl64.Vec3
	elem     physics.Element
	length   float64
	rootPose hierarchy.Pose
}

func newChain(n int, length float64, axis mgl64.Vec3) *chain {
	c := &chain{
		props:    make([]physics.BoneProperties, n),
		states:   make([]physics.BoneState, n),
		parents:  make([]hierarchy.Pose, n),
		pivots:   make([]mgl64.Mat4, n),
		length:   length,
		rootPose: hierarchy.Pose{Position: mgl64.Vec3{0, 2, 0}, Rotation: mgl64.QuatIdent()},
	}
	for i := range c.props {
		p := &c.props[i]
		p.Stiffness = 500
		p.Drag = 0.4
		p.Radius = 0.05
		p.Length = length
		p.Axis = axis
		p.InitialLocalRotation = mgl64.QuatIdent()
		p.PivotLocal = mgl64.Ident4()
		if i == 0 {
			p.Parent = physics.External(0)
			p.Pivot = physics.External(0)
		} else {
			p.LocalPosition = axis.Mul(length)
			p.Parent = physics.Simulated(i - 1)
			p.Pivot = physics.Simulated(i - 1)
		}
		c.parents[i] = c.rootPose
		c.pivots[i] = c.rootPose.Matrix()
	}

	params := physics.DefaultParams()
	params.Gravity = mgl64.Vec3{}
	params.Wind.Disabled = true

	all := func(n int) pool.Block { return pool.Block{Start: 0, Size: n} }
	c.elem = physics.Element{
		Rig:           "chain",
		Params:        params,
		Dt:            1.0 / 60,
		Bones:         pool.Over(c.props, all(n)),
		States:        pool.Over(c.states, all(n)),
		ParentPoses:   pool.Over(c.parents, all(n)),
		PivotMatrices: pool.Over(c.pivots, all(n)),
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	c.reset()
	return c
}

// reset places every bone at rest.
func (c *chain) reset() {
	pose := c.rootPose
	for i := range c.states {
		p := &c.props[i]
		pose = pose.Compose(hierarchy.Pose{Position: p.LocalPosition, Rotation: p.InitialLocalRotation})
		tip := p.RestTip(pose)
		c.states[i] = physics.BoneState{
			Tip:           tip,
			PrevTip:       tip,
			LocalRotation: p.InitialLocalRotation,
			Position:      pose.Position,
			Rotation:      pose.Rotation,
		}
	}
}

func (c *chain) withColliders(props []collision.Properties, states []collision.State, bone int) {
	c.cprops, c.cstates = props, states
	c.indices = make([]int, len(props))
	for i := range c.indices {
		c.indices[i] = i
	}
	blk := pool.Block{Start: 0, Size: len(props)}
	c.elem.Colliders = pool.Over(c.cprops, blk)
	c.elem.ColliderStates = pool.Over(c.cstates, blk)
	c.props[bone].Collisions = pool.Over(c.indices, pool.Block{Start: 0, Size: len(c.indices)})
}

func (c *chain) withLengthTarget(bone int, target mgl64.Vec3, distance float64) {
	c.targets = []mgl64.Vec3{target}
	c.limits = []physics.LengthLimit{{Target: physics.External(1), Distance: distance, Slot: 0}}
	c.elem.LengthTargets = pool.Over(c.targets, pool.Block{Start: 0, Size: 1})
	c.props[bone].LengthLimits = pool.Over(c.limits, pool.Block{Start: 0, Size: 1})
}

func (c *chain) run(frames int) int {
	resets := 0
	for i := 0; i < frames; i++ {
		resets += c.elem.Execute()
	}
	return resets
}

func (c *chain) restTip(i int) mgl64.Vec3 {
	pose := c.rootPose
	for j := 0; j <= i; j++ {
		p := &c.props[j]
		pose = pose.Compose(hierarchy.Pose{Position: p.LocalPosition, Rotation: p.InitialLocalRotation})
	}
	return c.props[i].RestTip(pose)
}
