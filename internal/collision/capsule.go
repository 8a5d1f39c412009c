package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ResolveCapsule resolves against a capsule whose axis runs along local Y
// from 0 to Height. Outside that span the nearest end cap is tested as a
// sphere; inside it the test is a circle perpendicular to Y.
func ResolveCapsule(p Properties, s State, head, tip mgl64.Vec3, radius float64) Result {
	if p.Radius <= DisabledRadius {
		return Result{Tip: tip}
	}
	lh, lt := s.local(head), s.local(tip)
	combined := radius*s.radiusScale() + p.Radius

	if lt.Y() <= 0 || lt.Y() >= p.Height {
		origin := mgl64.Vec3{}
		outward := mgl64.Vec3{0, -1, 0}
		if lt.Y() > 0 {
			origin = mgl64.Vec3{0, p.Height, 0}
			outward = mgl64.Vec3{0, 1, 0}
		}
		nt, hit := resolveCap(origin, outward, lh, lt, p.Radius, combined)
		if !hit {
			return Result{Tip: tip}
		}
		return Result{
			Tip:    s.world(nt),
			Normal: s.worldNormal(safeNormalize(nt.Sub(origin), outward)),
			Hit:    true,
		}
	}

	d2 := lt.X()*lt.X() + lt.Z()*lt.Z()
	if d2 >= combined*combined {
		return Result{Tip: tip}
	}
	var n mgl64.Vec3
	if d2 > epsilon*epsilon {
		d := math.Sqrt(d2)
		n = mgl64.Vec3{lt.X() / d, 0, lt.Z() / d}
	} else {
		n = safeNormalize(mgl64.Vec3{lh.X(), 0, lh.Z()}, mgl64.Vec3{1, 0, 0})
	}
	nt := mgl64.Vec3{n.X() * combined, lt.Y(), n.Z() * combined}
	return Result{
		Tip:    s.world(nt),
		Normal: s.worldNormal(n),
		Hit:    true,
	}
}

// resolveCap handles the spherical end of a capsule. When the head sits
// inside the cap only the tail is pushed out radially; otherwise the tail
// moves to the nearest point where the bone's reach meets the cap surface.
func resolveCap(origin, outward, head, tail mgl64.Vec3, capRadius, combined float64) (mgl64.Vec3, bool) {
	toTail := tail.Sub(origin)
	if toTail.Dot(toTail) >= combined*combined {
		return tail, false
	}

	toHead := head.Sub(origin)
	if toHead.Dot(toHead) > capRadius*capRadius {
		length := tail.Sub(head).Len()
		if c, ok := intersectSpheres(head, length, origin, combined); ok {
			return c.nearest(tail), true
		}
	}
	return origin.Add(safeNormalize(toTail, outward).Mul(combined)), true
}

// circle is the intersection of two sphere surfaces.
type circle struct {
	center mgl64.Vec3
	normal mgl64.Vec3
	radius float64
}

func intersectSpheres(a mgl64.Vec3, ra float64, b mgl64.Vec3, rb float64) (circle, bool) {
	ab := b.Sub(a)
	d := ab.Len()
	if d <= epsilon {
		return circle{}, false
	}
	x := (d*d - rb*rb + ra*ra) / (2 * d)
	y2 := ra*ra - x*x
	if y2 < 0 {
		return circle{}, false
	}
	up := ab.Mul(1 / d)
	return circle{center: a.Add(up.Mul(x)), normal: up, radius: math.Sqrt(y2)}, true
}

// nearest returns the point on the circle closest to p.
func (c circle) nearest(p mgl64.Vec3) mgl64.Vec3 {
	off := p.Sub(c.center)
	off = off.Sub(c.normal.Mul(off.Dot(c.normal)))
	dir := safeNormalize(off, anyPerpendicular(c.normal))
	return c.center.Add(dir.Mul(c.radius))
}

func anyPerpendicular(n mgl64.Vec3) mgl64.Vec3 {
	ref := mgl64.Vec3{1, 0, 0}
	if math.Abs(n.X()) > 0.9 {
		ref = mgl64.Vec3{0, 0, 1}
	}
	return n.Cross(ref).Normalize()
}
