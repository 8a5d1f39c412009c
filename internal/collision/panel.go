package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Axis names a local coordinate axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Unit returns the positive unit vector of the axis.
func (a Axis) Unit() mgl64.Vec3 {
	var v mgl64.Vec3
	v[a] = 1
	return v
}

// ResolvePanelOnAxis treats the plane through the origin perpendicular to
// axis as a floor: a tip closer than radius on the negative side is raised
// to radius along that axis only.
func ResolvePanelOnAxis(tip mgl64.Vec3, radius float64, axis Axis) (mgl64.Vec3, bool) {
	if tip[axis] >= radius {
		return tip, false
	}
	tip[axis] = radius
	return tip, true
}

// ResolvePanel resolves against a plane through the collider origin facing
// local +Z. Positive Width and Height bound the panel on local X and Y.
func ResolvePanel(p Properties, s State, head, tip mgl64.Vec3, radius float64) Result {
	if p.Radius <= DisabledRadius {
		return Result{Tip: tip}
	}
	lt := s.local(tip)
	r := radius*s.radiusScale() + p.Radius
	if p.Width > 0 && math.Abs(lt.X()) > p.Width/2+r {
		return Result{Tip: tip}
	}
	if p.Height > 0 && math.Abs(lt.Y()) > p.Height/2+r {
		return Result{Tip: tip}
	}

	lt, hit := ResolvePanelOnAxis(lt, r, AxisZ)
	if !hit {
		return Result{Tip: tip}
	}
	return Result{
		Tip:    s.world(lt),
		Normal: s.worldNormal(AxisZ.Unit()),
		Hit:    true,
	}
}
