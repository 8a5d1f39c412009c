package scheduler

import (
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/dynamo"
	"github.com/san-kum/springsim/internal/pool"
)

// refresh runs the four transform read stages concurrently and returns
// once all of them have finished. Stages write disjoint buffers.
func (s *Scheduler) refresh() {
	var g errgroup.Group
	for _, stage := range []func(e *entry){
		s.refreshParents,
		s.refreshPivots,
		s.refreshColliders,
		s.refreshTargets,
	} {
		g.Go(func() error {
			dynamo.ParallelFor(len(s.live), 1, s.workers, func(start, end int) {
				for _, e := range s.live[start:end] {
					stage(e)
				}
			})
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) refreshParents(e *entry) {
	props := s.bones.View(e.bones)
	poses := pool.Over(s.parentPoses, e.bones)
	for i := 0; i < props.Len(); i++ {
		node, ok := props.Ptr(i).Parent.Node()
		if !ok {
			continue
		}
		if pose, ok := s.scene.Pose(node); ok {
			poses.Set(i, pose)
		}
	}
}

func (s *Scheduler) refreshPivots(e *entry) {
	props := s.bones.View(e.bones)
	pivots := pool.Over(s.pivots, e.bones)
	for i := 0; i < props.Len(); i++ {
		p := props.Ptr(i)
		if !p.YLimit.Active && !p.ZLimit.Active {
			continue
		}
		node, ok := p.Pivot.Node()
		if !ok {
			continue
		}
		if pose, ok := s.scene.Pose(node); ok {
			pivots.Set(i, pose.Matrix().Mul4(p.PivotLocal))
		}
	}
}

func (s *Scheduler) refreshColliders(e *entry) {
	nodes := pool.Over(s.colliderNodes, e.colliders)
	states := pool.Over(s.colliderStates, e.colliders)
	for i := 0; i < nodes.Len(); i++ {
		if pose, ok := s.scene.Pose(nodes.At(i)); ok {
			states.Set(i, collision.NewState(pose))
		}
	}
}

func (s *Scheduler) refreshTargets(e *entry) {
	nodes := pool.Over(s.targetNodes, e.targets)
	targets := s.targets.View(e.targets)
	for i := 0; i < nodes.Len(); i++ {
		if pose, ok := s.scene.Pose(nodes.At(i)); ok {
			targets.Set(i, pose.Position)
		}
	}
}

// writeBack applies the last batch's local rotations to the hierarchy.
// Paused rigs and inactive nodes are skipped.
func (s *Scheduler) writeBack() {
	dynamo.ParallelFor(len(s.live), 1, s.workers, func(start, end int) {
		for k := start; k < end; k++ {
			if s.elements[k].Params.Paused {
				continue
			}
			e := s.live[k]
			nodes := pool.Over(s.boneNodes, e.bones)
			states := pool.Over(s.states, e.bones)
			for i := 0; i < nodes.Len(); i++ {
				if node := nodes.At(i); node.Valid() {
					s.scene.SetLocalRotation(node, states.Ptr(i).LocalRotation)
				}
			}
		}
	})
}
