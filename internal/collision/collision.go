// Package collision resolves a bone tip against collider primitives.
//
// Every resolver works in the collider's local space and reports the
// corrected tip and the surface normal in world space. A collider whose
// radius is at or below [DisabledRadius] never reports a hit.
package collision

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/hierarchy"
)

// DisabledRadius is the radius at or below which a collider is ignored.
const DisabledRadius = 1e-4

const epsilon = 1e-9

// Shape selects the resolver for a collider.
type Shape int

const (
	Sphere Shape = iota
	Panel
	Capsule
)

func (s Shape) String() string {
	switch s {
	case Sphere:
		return "sphere"
	case Panel:
		return "panel"
	case Capsule:
		return "capsule"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseShape maps a config name to a Shape.
func ParseShape(name string) (Shape, error) {
	switch name {
	case "sphere":
		return Sphere, nil
	case "panel":
		return Panel, nil
	case "capsule":
		return Capsule, nil
	}
	return 0, fmt.Errorf("collision: unknown shape %q", name)
}

// Properties are the static dimensions of a collider.
type Properties struct {
	Shape  Shape
	Radius float64
	Width  float64
	Height float64
}

// State is a collider's transform, refreshed once per frame.
type State struct {
	LocalToWorld mgl64.Mat4
	WorldToLocal mgl64.Mat4
}

// NewState builds both matrices from a world pose.
func NewState(p hierarchy.Pose) State {
	return State{
		LocalToWorld: p.Matrix(),
		WorldToLocal: p.Inverse().Matrix(),
	}
}

// Result is the outcome of one resolver call.
type Result struct {
	Tip    mgl64.Vec3
	Normal mgl64.Vec3
	Hit    bool
}

// Resolve dispatches to the resolver for p.Shape.
func Resolve(p Properties, s State, head, tip mgl64.Vec3, radius float64) Result {
	switch p.Shape {
	case Sphere:
		return ResolveSphere(p, s, head, tip, radius)
	case Panel:
		return ResolvePanel(p, s, head, tip, radius)
	case Capsule:
		return ResolveCapsule(p, s, head, tip, radius)
	}
	return Result{Tip: tip}
}

func (s State) local(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.TransformCoordinate(v, s.WorldToLocal)
}

func (s State) world(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.TransformCoordinate(v, s.LocalToWorld)
}

func (s State) worldNormal(n mgl64.Vec3) mgl64.Vec3 {
	return safeNormalize(mgl64.TransformNormal(n, s.LocalToWorld), n)
}

// radiusScale converts a world-space radius into collider-local units.
func (s State) radiusScale() float64 {
	return mgl64.TransformNormal(mgl64.Vec3{1, 0, 0}, s.WorldToLocal).Len()
}

func safeNormalize(v, fallback mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l <= epsilon || math.IsNaN(l) {
		return fallback
	}
	return v.Mul(1 / l)
}
