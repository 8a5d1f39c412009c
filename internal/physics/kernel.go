package physics

import (
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/dynamo"
	"github.com/san-kum/springsim/internal/force"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/pool"
)

const (
	// degenerateLength is the tip distance below which a bone direction is
	// replaced by its rest axis.
	degenerateLength = 0.001
	bounceThreshold  = 0.0001
	lengthSpring     = 0.5
)

// Element is one rig's work item for a frame.
type Element struct {
	Rig    string
	Params Params
	Dt     float64

	Bones          pool.View[BoneProperties]
	States         pool.View[BoneState]
	ParentPoses    pool.View[hierarchy.Pose]
	PivotMatrices  pool.View[mgl64.Mat4]
	Colliders      pool.View[collision.Properties]
	ColliderStates pool.View[collision.State]
	LengthTargets  pool.View[mgl64.Vec3]

	Forces []force.Component
	Noise  *force.Noise
	Log    *slog.Logger
}

// Execute advances every bone of the rig by one step and returns the number
// of bones whose tip had to be reset after a numeric anomaly.
func (e *Element) Execute() int {
	if e.Params.Paused {
		return 0
	}
	resets := 0
	for i := 0; i < e.Bones.Len(); i++ {
		prop := e.Bones.Ptr(i)
		bone := e.States.Ptr(i)

		parent := e.ParentPoses.At(i)
		if p, ok := prop.Parent.Index(); ok {
			ps := e.States.Ptr(p)
			parent = hierarchy.Pose{Position: ps.Position, Rotation: ps.Rotation}
		}
		bone.Position = parent.Position.Add(parent.Rotation.Rotate(prop.LocalPosition))
		bone.Rotation = parent.Rotation.Mul(bone.LocalRotation)
		base := hierarchy.Pose{Position: bone.Position, Rotation: parent.Rotation.Mul(prop.InitialLocalRotation)}

		e.integrate(prop, bone, base, e.externalForce(prop, bone))
		e.constrain(i, prop, bone)
		if !e.rotate(prop, bone, base) {
			resets++
			e.log().Error("non-finite tip reset to rest",
				"rig", e.Rig, "bone", i, "err", dynamo.ErrNumericAnomaly)
		}

		bone.Rotation = parent.Rotation.Mul(bone.LocalRotation)
	}
	return resets
}

func (e *Element) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

func (e *Element) externalForce(prop *BoneProperties, bone *BoneState) mgl64.Vec3 {
	f := e.Params.Gravity
	if e.Params.Wind.Disabled {
		return f
	}
	for _, c := range e.Forces {
		if e.Noise != nil {
			f = f.Add(e.Noise.Gust(e.Params.Wind, bone.Position, c.Time))
		}
		f = f.Add(force.At(c, bone.Position, prop.WindInfluence))
	}
	return f
}

// integrate takes one Verlet step of the tip toward its rest position and
// keeps it on the rest-length sphere around the head.
func (e *Element) integrate(prop *BoneProperties, bone *BoneState, base hierarchy.Pose, ext mgl64.Vec3) {
	sqrDt := e.Dt * e.Dt
	rest := prop.RestTip(base)

	step := rest.Sub(bone.Tip).Mul(prop.Stiffness).Add(prop.SpringForce).Add(ext).Mul(0.5 * sqrDt)
	step = step.Add(bone.Tip.Sub(bone.PrevTip).Mul(1 - prop.Drag))

	bone.PrevTip = bone.Tip
	tip := bone.Tip.Add(step)

	dir := tip.Sub(bone.Position)
	if l := dir.Len(); l <= degenerateLength {
		dir = bone.Rotation.Rotate(prop.Axis)
	} else {
		dir = dir.Mul(1 / l)
	}
	bone.Tip = bone.Position.Add(dir.Mul(prop.Length))
}

func (e *Element) constrain(i int, prop *BoneProperties, bone *BoneState) {
	if e.Params.LengthLimits {
		e.applyLengthLimits(prop, bone)
	}

	grounded := false
	if e.Params.GroundCollision {
		grounded = e.collideGround(prop, bone)
	}
	if e.Params.Collisions && !grounded {
		e.collide(prop, bone)
	}

	if e.Params.AngleLimits && (prop.YLimit.Active || prop.ZLimit.Active) {
		pivot := e.PivotMatrices.At(i)
		if p, ok := prop.Pivot.Index(); ok {
			ps := e.States.Ptr(p)
			pose := hierarchy.Pose{Position: ps.Position, Rotation: ps.Rotation}
			pivot = pose.Matrix().Mul4(prop.PivotLocal)
		}
		e.applyAngleLimits(prop, bone, pivot)
	}
}

func (e *Element) applyLengthLimits(prop *BoneProperties, bone *BoneState) {
	n := prop.LengthLimits.Len()
	if n == 0 {
		return
	}
	accel := lengthSpring * e.Dt * e.Dt
	var movement mgl64.Vec3
	for j := 0; j < n; j++ {
		limit := prop.LengthLimits.At(j)
		var target mgl64.Vec3
		if idx, ok := limit.Target.Index(); ok {
			target = e.States.At(idx).Position
		} else {
			target = e.LengthTargets.At(limit.Slot)
		}
		toTarget := bone.Tip.Sub(target)
		dist := toTarget.Len()
		if dist <= 0 {
			continue
		}
		movement = movement.Sub(toTarget.Mul(accel * (dist - limit.Distance) / dist))
	}
	bone.Tip = bone.Tip.Add(movement)
}

// collideGround treats the plane y = GroundHeight as a floor. A grounded
// tip loses its velocity.
func (e *Element) collideGround(prop *BoneProperties, bone *BoneState) bool {
	h := e.Params.GroundHeight
	tail := bone.Tip
	tail[1] -= h
	tail, hit := collision.ResolvePanelOnAxis(tail, prop.Radius, collision.AxisY)
	if !hit {
		return false
	}
	tail[1] += h
	bone.Tip = fixLength(prop, bone, tail)
	bone.PrevTip = bone.Tip
	return true
}

// fixLength clamps the head-to-tail distance to [Length/2, Length].
func fixLength(prop *BoneProperties, bone *BoneState, tail mgl64.Vec3) mgl64.Vec3 {
	minLength := 0.5 * prop.Length
	headToTail := tail.Sub(bone.Position)
	mag := headToTail.Len()
	if mag <= degenerateLength {
		return bone.Position.Add(bone.Rotation.Rotate(prop.Axis).Mul(minLength))
	}
	clamped := mgl64.Clamp(mag, minLength, prop.Length)
	return bone.Position.Add(headToTail.Mul(clamped / mag))
}

// collide runs every collider the bone is bound to, then converts the
// correction into a bounce by rewriting the previous tip.
func (e *Element) collide(prop *BoneProperties, bone *BoneState) {
	n := prop.Collisions.Len()
	if n == 0 {
		return
	}
	desired := bone.Tip
	normal := mgl64.Vec3{0, 0, 1}
	hit := false
	for j := 0; j < n; j++ {
		c := prop.Collisions.At(j)
		res := collision.Resolve(e.Colliders.At(c), e.ColliderStates.At(c), bone.Position, bone.Tip, prop.Radius)
		if res.Hit {
			bone.Tip = res.Tip
			normal = res.Normal
			hit = true
		}
	}
	if !hit {
		return
	}

	incident := desired.Sub(bone.PrevTip)
	reflected := incident.Sub(normal.Mul(2 * incident.Dot(normal)))
	up := normal.Mul(reflected.Dot(normal))
	lateral := reflected.Sub(up)
	bounce := up.Mul(e.Params.Bounce).Add(lateral.Mul(1 - e.Params.Friction))

	if bounce.Dot(bounce) > bounceThreshold {
		travelled := bone.Tip.Sub(bone.PrevTip).Len()
		speed := bounce.Len()
		bone.PrevTip = bone.Tip.Sub(bounce)
		bone.Tip = bone.Tip.Add(bounce.Mul(math.Max(0, speed-travelled) / speed))
	} else {
		bone.PrevTip = bone.Tip
	}
}

func (e *Element) applyAngleLimits(prop *BoneProperties, bone *BoneState, pivot mgl64.Mat4) {
	vector := bone.Tip.Sub(bone.Position)
	forward := mgl64.TransformNormal(mgl64.Vec3{-1, 0, 0}, pivot)
	back := mgl64.TransformNormal(mgl64.Vec3{0, 0, -1}, pivot)
	down := mgl64.TransformNormal(mgl64.Vec3{0, -1, 0}, pivot)

	if prop.YLimit.Active {
		vector = prop.YLimit.Constrain(vector, down, back, forward, prop.AngularStiffness, e.Dt)
	}
	if prop.ZLimit.Active {
		vector = prop.ZLimit.Constrain(vector, back, down, forward, prop.AngularStiffness, e.Dt)
	}
	bone.Tip = bone.Position.Add(vector)
}

// rotate converts the tip into a local rotation blended by the dynamic
// ratio. It reports false when the tip was non-finite and had to be reset.
func (e *Element) rotate(prop *BoneProperties, bone *BoneState, base hierarchy.Pose) bool {
	finite := isFinite(bone.Tip)
	if !finite {
		bone.Tip = prop.RestTip(base)
		bone.PrevTip = bone.Tip
	}

	local := base.Rotation.Inverse().Rotate(bone.Tip.Sub(bone.Position))
	if l := local.Len(); l > 0 {
		local = local.Mul(1 / l)
	} else {
		local = prop.Axis
	}
	aim := mgl64.QuatBetweenVectors(prop.Axis, local)
	target := prop.InitialLocalRotation.Mul(aim)
	bone.LocalRotation = Nlerp(bone.LocalRotation, target, e.Params.DynamicRatio)
	return finite
}

// Nlerp interpolates along the shorter arc and normalises the result.
func Nlerp(a, b mgl64.Quat, t float64) mgl64.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	q := mgl64.Quat{
		W: a.W + (b.W-a.W)*t,
		V: a.V.Add(b.V.Sub(a.V).Mul(t)),
	}
	return q.Normalize()
}

func isFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
