package hierarchy

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

type sceneNode struct {
	name     string
	parent   NodeID
	local    Pose
	active   bool
	alive    bool
	children []NodeID
}

// Scene is an in-memory transform hierarchy. It implements Provider and is
// safe for concurrent use.
type Scene struct {
	mu    sync.RWMutex
	nodes []sceneNode
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{}
}

// AddNode creates a node under parent (InvalidNode for a root).
func (s *Scene) AddNode(name string, parent NodeID, local Pose) NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := NodeID(len(s.nodes))
	if !s.exists(parent) {
		parent = InvalidNode
	}
	s.nodes = append(s.nodes, sceneNode{
		name:   name,
		parent: parent,
		local:  local,
		active: true,
		alive:  true,
	})
	if parent.Valid() {
		s.nodes[parent].children = append(s.nodes[parent].children, id)
	}
	return id
}

func (s *Scene) exists(id NodeID) bool {
	return id.Valid() && int(id) < len(s.nodes) && s.nodes[id].alive
}

// Len returns the number of nodes ever created.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Name returns the node's name.
func (s *Scene) Name(id NodeID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists(id) {
		return ""
	}
	return s.nodes[id].name
}

// Find returns the first live node with the given name.
func (s *Scene) Find(name string) (NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.nodes {
		if s.nodes[i].alive && s.nodes[i].name == name {
			return NodeID(i), true
		}
	}
	return InvalidNode, false
}

// Parent returns the node's parent, InvalidNode for roots.
func (s *Scene) Parent(id NodeID) NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists(id) {
		return InvalidNode
	}
	return s.nodes[id].parent
}

// Children returns the live children of a node.
func (s *Scene) Children(id NodeID) []NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists(id) {
		return nil
	}
	out := make([]NodeID, 0, len(s.nodes[id].children))
	for _, c := range s.nodes[id].children {
		if s.nodes[c].alive {
			out = append(out, c)
		}
	}
	return out
}

// LocalPose returns the pose of a node relative to its parent.
func (s *Scene) LocalPose(id NodeID) (Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists(id) {
		return Pose{}, false
	}
	return s.nodes[id].local, true
}

// SetLocalPose replaces a node's local pose.
func (s *Scene) SetLocalPose(id NodeID, local Pose) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(id) {
		return false
	}
	s.nodes[id].local = local
	return true
}

// SetLocalPosition moves a node relative to its parent.
func (s *Scene) SetLocalPosition(id NodeID, pos mgl64.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(id) {
		return false
	}
	s.nodes[id].local.Position = pos
	return true
}

// SetLocalRotation implements Provider. Inactive nodes are not written.
func (s *Scene) SetLocalRotation(id NodeID, rot mgl64.Quat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeInHierarchy(id) {
		return false
	}
	s.nodes[id].local.Rotation = rot
	return true
}

// SetActive toggles a node. Inactive nodes hide their whole subtree.
func (s *Scene) SetActive(id NodeID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists(id) {
		s.nodes[id].active = active
	}
}

// Destroy removes a node and its subtree. Their ids are never reused.
func (s *Scene) Destroy(id NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(id) {
		return
	}
	stack := []NodeID{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.nodes[n].alive = false
		stack = append(stack, s.nodes[n].children...)
	}
}

func (s *Scene) activeInHierarchy(id NodeID) bool {
	for n := id; n.Valid(); n = s.nodes[n].parent {
		if !s.exists(n) || !s.nodes[n].active {
			return false
		}
	}
	return id.Valid()
}

// Pose implements Provider.
func (s *Scene) Pose(id NodeID) (Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.activeInHierarchy(id) {
		return Pose{}, false
	}
	return s.world(id), true
}

// WorldPose returns the world pose of a node regardless of activity.
func (s *Scene) WorldPose(id NodeID) (Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists(id) {
		return Pose{}, false
	}
	return s.world(id), true
}

func (s *Scene) world(id NodeID) Pose {
	var chain []NodeID
	for n := id; n.Valid(); n = s.nodes[n].parent {
		chain = append(chain, n)
	}
	w := Identity()
	for i := len(chain) - 1; i >= 0; i-- {
		w = w.Compose(s.nodes[chain[i]].local)
	}
	return w
}
