package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ResolveSphere pushes the tip out of a sphere centred on the collider
// origin, along the line from the centre to the tip.
func ResolveSphere(p Properties, s State, head, tip mgl64.Vec3, radius float64) Result {
	if p.Radius <= DisabledRadius {
		return Result{Tip: tip}
	}
	lt := s.local(tip)
	combined := radius*s.radiusScale() + p.Radius
	d2 := lt.Dot(lt)
	if d2 >= combined*combined {
		return Result{Tip: tip}
	}

	var n mgl64.Vec3
	if d2 > epsilon*epsilon {
		n = lt.Mul(1 / math.Sqrt(d2))
	} else {
		n = safeNormalize(s.local(head), mgl64.Vec3{0, 1, 0})
	}
	return Result{
		Tip:    s.world(n.Mul(combined)),
		Normal: s.worldNormal(n),
		Hit:    true,
	}
}
