package force

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/ojrac/opensimplex-go"
)

// GustParams are a rig's wind settings.
type GustParams struct {
	Disabled     bool
	Influence    float64
	Power        mgl64.Vec3
	Direction    mgl64.Vec3
	DistanceRate mgl64.Vec3
}

// Noise is a seeded 2D simplex field. It is read-only after construction
// and safe to share between workers.
type Noise struct {
	field opensimplex.Noise
}

// NewNoise returns a noise field for seed.
func NewNoise(seed int64) *Noise {
	return &Noise{field: opensimplex.New(seed)}
}

// Eval samples the field at (x, y).
func (n *Noise) Eval(x, y float64) float64 {
	return n.field.Eval2(x, y)
}

// Gust returns the procedural wind at pos for a provider clock t. Each axis
// blends the wind direction with a noise sample phase-shifted by the bone's
// position, scaled by the per-axis power and the rig's influence.
func (n *Noise) Gust(p GustParams, pos mgl64.Vec3, t float64) mgl64.Vec3 {
	if p.Disabled {
		return mgl64.Vec3{}
	}
	dy := pos.Y() * p.DistanceRate.Y()
	u := t + pos.X()*p.DistanceRate.X() + dy
	v := t + dy + pos.Z()*p.DistanceRate.Z()

	nx := n.Eval(0, t*0.02+v)
	ny := n.Eval(u, t*0.02+v)
	nz := n.Eval(u, t*0.03+v)

	return mgl64.Vec3{
		(p.Direction.X() + (nx-0.5)*0.25) * p.Power.X() * p.Influence,
		(p.Direction.Y() + (ny-0.5)*0.25) * p.Power.Y() * p.Influence,
		(p.Direction.Z() + (nz-0.5)*0.25) * p.Power.Z() * p.Influence,
	}
}
