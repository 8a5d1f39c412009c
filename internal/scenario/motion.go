package scenario

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/hierarchy"
)

// Motion gives a rig root's offset from its origin at time t.
type Motion func(t float64) hierarchy.Pose

func Still(float64) hierarchy.Pose { return hierarchy.Identity() }

// Sway swings the root side to side.
func Sway(t float64) hierarchy.Pose {
	return hierarchy.Pose{
		Position: mgl64.Vec3{0.3 * math.Sin(2*t), 0, 0},
		Rotation: mgl64.QuatIdent(),
	}
}

// Spin turns the root about Y, reversing every few seconds.
func Spin(t float64) hierarchy.Pose {
	return hierarchy.Pose{
		Rotation: mgl64.QuatRotate(1.5*math.Sin(0.8*t), mgl64.Vec3{0, 1, 0}),
	}
}

// Walk bobs the root and moves it back and forth along Z.
func Walk(t float64) hierarchy.Pose {
	return hierarchy.Pose{
		Position: mgl64.Vec3{0, 0.04 * math.Abs(math.Sin(4*t)), 0.5 * math.Sin(0.5*t)},
		Rotation: mgl64.QuatRotate(0.05*math.Sin(4*t), mgl64.Vec3{0, 0, 1}),
	}
}

// Shake is a fast small oscillation on every axis.
func Shake(t float64) hierarchy.Pose {
	return hierarchy.Pose{
		Position: mgl64.Vec3{0.05 * math.Sin(37*t), 0.05 * math.Sin(29*t), 0.05 * math.Sin(31*t)},
		Rotation: mgl64.QuatIdent(),
	}
}
