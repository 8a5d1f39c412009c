package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	falloffThreshold = 0.0001
	projectEpsilon   = 1e-5
)

func falloff(value, limit float64) float64 {
	if math.Abs(limit) <= falloffThreshold {
		return 0
	}
	x := mgl64.Clamp(value/limit, 0, 1)
	return math.Min(x, math.Sqrt(x))
}

func project(v, onto mgl64.Vec3) mgl64.Vec3 {
	sq := onto.Dot(onto)
	if sq < projectEpsilon {
		return mgl64.Vec3{}
	}
	return onto.Mul(v.Dot(onto) / sq)
}

// Constrain swings target within the limit on the plane spanned by side and
// forward. The in-plane angle is pulled toward zero by stiffness, clamped to
// [Min, Max] and eased near the bound; the component along up is kept.
func (l AngleLimit) Constrain(target, side, up, forward mgl64.Vec3, stiffness, dt float64) mgl64.Vec3 {
	upProj := project(target, up)
	proj := target.Sub(upProj)
	mag := proj.Len()
	if mag <= 0 {
		return target
	}

	sine := mgl64.Clamp(proj.Mul(1/mag).Dot(side), -1, 1)
	angle := mgl64.RadToDeg(math.Asin(sine))
	angle += -angle * stiffness * dt * dt
	angle = mgl64.Clamp(angle, l.Min, l.Max)

	limit := l.Max
	if angle < 0 {
		limit = l.Min
	}
	angle = falloff(angle, limit) * limit

	rad := mgl64.DegToRad(angle)
	swung := side.Mul(math.Sin(rad)).Add(forward.Mul(math.Cos(rad))).Mul(mag)
	return swung.Add(upProj)
}
