package scenario

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/config"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/rig"
)

// Build is the authoring data a Builder produces under a fresh root node.
type Build struct {
	Root      hierarchy.NodeID
	Bones     []rig.BoneSpec
	Colliders []rig.ColliderSpec
}

// Builder adds a rig's nodes to scene under a root at origin.
type Builder func(scene *hierarchy.Scene, name string, origin mgl64.Vec3, size int, bone config.Bone) Build

func at(x, y, z float64) hierarchy.Pose {
	return hierarchy.Pose{Position: mgl64.Vec3{x, y, z}, Rotation: mgl64.QuatIdent()}
}

func spec(node hierarchy.NodeID, b config.Bone) rig.BoneSpec {
	return rig.BoneSpec{
		Node:             node,
		Tip:              hierarchy.InvalidNode,
		Pivot:            hierarchy.InvalidNode,
		Stiffness:        b.Stiffness,
		Drag:             b.Drag,
		WindInfluence:    b.WindInfluence,
		AngularStiffness: b.AngularStiffness,
		Radius:           b.Radius,
		YLimit:           b.YLimit(),
		ZLimit:           b.ZLimit(),
	}
}

// strand appends n bones below parent, each offset by step, plus an end
// node for the last bone to aim at.
func strand(scene *hierarchy.Scene, prefix string, parent hierarchy.NodeID, first, step mgl64.Vec3, n int) []hierarchy.NodeID {
	nodes := make([]hierarchy.NodeID, 0, n)
	offset := first
	for i := 0; i < n; i++ {
		parent = scene.AddNode(fmt.Sprintf("%s_%d", prefix, i), parent, hierarchy.Pose{Position: offset, Rotation: mgl64.QuatIdent()})
		nodes = append(nodes, parent)
		offset = step
	}
	scene.AddNode(prefix+"_end", parent, hierarchy.Pose{Position: step, Rotation: mgl64.QuatIdent()})
	return nodes
}

// Chain is a single strand hanging behind a spherical head.
func Chain(scene *hierarchy.Scene, name string, origin mgl64.Vec3, size int, bone config.Bone) Build {
	root := scene.AddNode(name, hierarchy.InvalidNode, at(origin.X(), origin.Y(), origin.Z()))
	head := scene.AddNode(name+"_head", root, at(0, 0, 0))

	b := Build{Root: root}
	b.Colliders = append(b.Colliders, rig.ColliderSpec{
		Node:       head,
		Properties: collision.Properties{Shape: collision.Sphere, Radius: 0.12},
	})
	for _, n := range strand(scene, name+"_bone", root, mgl64.Vec3{0, -0.02, -0.14}, mgl64.Vec3{0, -0.15, -0.01}, size) {
		s := spec(n, bone)
		s.Colliders = []int{0}
		b.Bones = append(b.Bones, s)
	}
	return b
}

// skirtDepth is the number of bones per skirt strand.
const skirtDepth = 3

// Skirt is a ring of size strands around the hips with a capsule per leg.
// Neighbouring strands hold each other at rest distance.
func Skirt(scene *hierarchy.Scene, name string, origin mgl64.Vec3, size int, bone config.Bone) Build {
	size = max(size, 3)
	root := scene.AddNode(name, hierarchy.InvalidNode, at(origin.X(), origin.Y(), origin.Z()))

	b := Build{Root: root}
	for _, x := range []float64{-0.1, 0.1} {
		leg := scene.AddNode(fmt.Sprintf("%s_leg%+.1f", name, x), root, at(x, -0.9, 0))
		b.Colliders = append(b.Colliders, rig.ColliderSpec{
			Node:       leg,
			Properties: collision.Properties{Shape: collision.Capsule, Radius: 0.08, Height: 0.9},
		})
	}

	const ring = 0.25
	strands := make([][]hierarchy.NodeID, size)
	for i := range strands {
		a := 2 * math.Pi * float64(i) / float64(size)
		out := mgl64.Vec3{math.Sin(a), 0, math.Cos(a)}
		first := out.Mul(ring)
		step := out.Mul(0.03).Add(mgl64.Vec3{0, -0.12, 0})
		strands[i] = strand(scene, fmt.Sprintf("%s_s%d", name, i), root, first, step, skirtDepth)
	}
	for i, nodes := range strands {
		next := strands[(i+1)%size]
		for d, n := range nodes {
			s := spec(n, bone)
			s.Colliders = []int{0, 1}
			s.LengthTargets = []hierarchy.NodeID{next[d]}
			b.Bones = append(b.Bones, s)
		}
	}
	return b
}

// Tail is a strand that leaves the root backwards and droops toward the
// floor. A sphere on the root keeps it off the body.
func Tail(scene *hierarchy.Scene, name string, origin mgl64.Vec3, size int, bone config.Bone) Build {
	root := scene.AddNode(name, hierarchy.InvalidNode, at(origin.X(), origin.Y(), origin.Z()))
	body := scene.AddNode(name+"_body", root, at(0, 0.1, 0.2))

	b := Build{Root: root}
	b.Colliders = append(b.Colliders, rig.ColliderSpec{
		Node:       body,
		Properties: collision.Properties{Shape: collision.Sphere, Radius: 0.2},
	})
	for _, n := range strand(scene, name+"_bone", root, mgl64.Vec3{0, 0, -0.05}, mgl64.Vec3{0, -0.03, -0.16}, size) {
		s := spec(n, bone)
		s.Colliders = []int{0}
		b.Bones = append(b.Bones, s)
	}
	return b
}
