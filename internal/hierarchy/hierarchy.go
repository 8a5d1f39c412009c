// Package hierarchy describes the transform hierarchy the simulation reads
// poses from and writes rotations back to.
package hierarchy

import (
	"github.com/go-gl/mathgl/mgl64"
)

// NodeID identifies a node in a transform hierarchy.
type NodeID int32

// InvalidNode marks an empty node slot.
const InvalidNode NodeID = -1

// Valid reports whether id can refer to a node.
func (id NodeID) Valid() bool { return id >= 0 }

// Pose is a rigid transform without scale.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// Identity is the pose at the origin with no rotation.
func Identity() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// Matrix returns the pose as a 4x4 local-to-world matrix.
func (p Pose) Matrix() mgl64.Mat4 {
	return mgl64.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z()).Mul4(p.Rotation.Mat4())
}

// Compose returns the world pose of a child at local relative to p.
func (p Pose) Compose(local Pose) Pose {
	return Pose{
		Position: p.Position.Add(p.Rotation.Rotate(local.Position)),
		Rotation: p.Rotation.Mul(local.Rotation),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	inv := p.Rotation.Inverse()
	return Pose{
		Position: inv.Rotate(p.Position.Mul(-1)),
		Rotation: inv,
	}
}

// Provider gives the simulation access to a host transform hierarchy.
// Nodes that are inactive or destroyed report false and are skipped.
type Provider interface {
	// Pose returns the world pose of a node.
	Pose(id NodeID) (Pose, bool)
	// SetLocalRotation writes a node's rotation relative to its parent.
	SetLocalRotation(id NodeID, rot mgl64.Quat) bool
}
