// Package metrics observes simulated rigs frame by frame.
package metrics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/rig"
)

// Frame is one rig's state after a tick.
type Frame struct {
	Index  int
	Time   float64
	// Dt is the simulation step the states were produced with.
	Dt     float64
	Rig    string
	Bones  []rig.Bone
	States []physics.BoneState
}

type Metric interface {
	Name() string
	Observe(f Frame)
	Value() float64
	Reset()
}

type Observer interface {
	OnFrame(f Frame)
}

// BoneDeflection returns the angle in degrees between a bone's current
// direction and its rest direction under the same parent.
func BoneDeflection(p *physics.BoneProperties, s *physics.BoneState) float64 {
	dir := s.Tip.Sub(s.Position)
	l := dir.Len()
	if l == 0 || p.Length == 0 {
		return 0
	}
	parent := s.Rotation.Mul(s.LocalRotation.Inverse())
	rest := parent.Mul(p.InitialLocalRotation).Rotate(p.Axis)
	cos := mgl64.Clamp(dir.Mul(1/l).Dot(rest.Normalize()), -1, 1)
	return mgl64.RadToDeg(math.Acos(cos))
}

// Default returns the metrics reported by a run.
func Default() []Metric {
	return []Metric{
		NewDeflection(),
		NewMaxDeflection(),
		NewTipSpeed(),
		NewStretch(),
		NewStability(),
	}
}
