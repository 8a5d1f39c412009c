package scheduler

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/dynamo"
	"github.com/san-kum/springsim/internal/force"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/pool"
	"github.com/san-kum/springsim/internal/rig"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var boneLength = math.Sqrt(0.2*0.2 + 0.05*0.05)

// world is a scene with a moving head per rig.
type world struct {
	scene *hierarchy.Scene
	heads []hierarchy.NodeID
	bones [][]hierarchy.NodeID
	rigs  []*rig.Rig
}

func newWorld(rigs, bones int, withCollider bool) *world {
	w := &world{scene: hierarchy.NewScene()}
	for r := 0; r < rigs; r++ {
		head := w.scene.AddNode(fmt.Sprintf("head%d", r), hierarchy.InvalidNode, hierarchy.Pose{
			Position: mgl64.Vec3{float64(r), 1.7, 0},
			Rotation: mgl64.QuatIdent(),
		})
		w.heads = append(w.heads, head)

		var specs []rig.BoneSpec
		var nodes []hierarchy.NodeID
		parent := head
		for b := 0; b <= bones; b++ {
			parent = w.scene.AddNode(fmt.Sprintf("r%d_b%d", r, b), parent, hierarchy.Pose{
				Position: mgl64.Vec3{0, -0.2, -0.05},
				Rotation: mgl64.QuatIdent(),
			})
			if b == bones {
				break
			}
			nodes = append(nodes, parent)
			specs = append(specs, rig.BoneSpec{
				Node:          parent,
				Tip:           hierarchy.InvalidNode,
				Pivot:         hierarchy.InvalidNode,
				Stiffness:     400,
				Drag:          0.3,
				WindInfluence: 1,
				Radius:        0.03,
				YLimit:        physics.AngleLimit{Active: true, Min: -60, Max: 60},
			})
		}

		var colliders []rig.ColliderSpec
		if withCollider {
			body := w.scene.AddNode(fmt.Sprintf("body%d", r), head, hierarchy.Pose{
				Position: mgl64.Vec3{0, -1.2, 0.25},
				Rotation: mgl64.QuatIdent(),
			})
			colliders = append(colliders, rig.ColliderSpec{
				Node:       body,
				Properties: collision.Properties{Shape: collision.Capsule, Radius: 0.15, Height: 1},
			})
			for i := range specs {
				specs[i].Colliders = []int{0}
			}
		}

		setup, err := rig.Assemble(w.scene, specs, colliders, quiet)
		Expect(err).NotTo(HaveOccurred())
		params := physics.DefaultParams()
		rg, err := rig.New(fmt.Sprintf("rig%d", r), setup, params)
		Expect(err).NotTo(HaveOccurred())
		w.rigs = append(w.rigs, rg)
		w.bones = append(w.bones, nodes)
	}
	return w
}

func (w *world) animate(frame int) {
	for r, head := range w.heads {
		x := float64(r) + 0.3*math.Sin(float64(frame)*0.15)
		w.scene.SetLocalPosition(head, mgl64.Vec3{x, 1.7, 0.2 * math.Cos(float64(frame)*0.1)})
	}
}

func (w *world) rotations() []mgl64.Quat {
	var out []mgl64.Quat
	for _, nodes := range w.bones {
		for _, n := range nodes {
			p, _ := w.scene.LocalPose(n)
			out = append(out, p.Rotation)
		}
	}
	return out
}

func newScheduler(w *world, cfg Config) *Scheduler {
	s, err := New(cfg, w.scene, quiet)
	Expect(err).NotTo(HaveOccurred())
	for _, r := range w.rigs {
		Expect(s.Register(r)).To(Succeed())
	}
	Expect(s.AddForceProvider(force.NewWindProvider(force.Component{Kind: force.Wind}))).To(Succeed())
	return s
}

func expectSameRotations(a, b []mgl64.Quat) {
	ExpectWithOffset(1, a).To(HaveLen(len(b)))
	for i := range a {
		ExpectWithOffset(1, a[i].Sub(b[i]).Len()).To(BeNumerically("<", 1e-12), "bone %d: %v vs %v", i, a[i], b[i])
	}
}

func fullPool[T any](p *pool.Pool[T]) []pool.Block {
	return []pool.Block{{Start: 0, Size: p.Size()}}
}

var _ = Describe("Root bone angle limits", func() {
	It("holds a bone with no parent inside its limit", func() {
		scene := hierarchy.NewScene()
		root := scene.AddNode("root", hierarchy.InvalidNode, hierarchy.Pose{
			Position: mgl64.Vec3{0, 1, 0},
			Rotation: mgl64.QuatIdent(),
		})
		scene.AddNode("tip", root, hierarchy.Pose{Position: mgl64.Vec3{0, -0.3, 0}, Rotation: mgl64.QuatIdent()})

		setup, err := rig.Assemble(scene, []rig.BoneSpec{{
			Node:      root,
			Tip:       hierarchy.InvalidNode,
			Pivot:     hierarchy.InvalidNode,
			Stiffness: 400,
			Drag:      0.3,
			YLimit:    physics.AngleLimit{Active: true, Min: -10, Max: 10},
		}}, nil, quiet)
		Expect(err).NotTo(HaveOccurred())
		params := physics.DefaultParams()
		params.Gravity = mgl64.Vec3{200, -10, 0}
		r, err := rig.New("root", setup, params)
		Expect(err).NotTo(HaveOccurred())

		s, err := New(DefaultConfig(), scene, quiet)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		Expect(s.Register(r)).To(Succeed())
		for f := 0; f < 120; f++ {
			s.Tick(1.0 / 60)
		}

		states, err := s.States(r, nil)
		Expect(err).NotTo(HaveOccurred())
		dir := states[0].Tip.Sub(states[0].Position).Normalize()
		swing := mgl64.RadToDeg(math.Acos(mgl64.Clamp(dir.Dot(mgl64.Vec3{0, -1, 0}), -1, 1)))
		Expect(swing).To(BeNumerically(">", 5))
		Expect(swing).To(BeNumerically("<=", 10.5))
	})
})

var _ = Describe("Scheduler", func() {
	Describe("registration", func() {
		It("returns every range on deregistration", func() {
			w := newWorld(3, 4, true)
			s := newScheduler(w, DefaultConfig())

			st := s.Stats()
			Expect(st.Rigs).To(Equal(3))
			Expect(st.Bones).To(Equal(12))
			Expect(st.Colliders).To(Equal(3))
			Expect(st.Indices).To(Equal(12))

			s.Tick(1.0 / 60)
			for _, r := range w.rigs {
				Expect(s.Deregister(r)).To(Succeed())
			}
			Expect(s.bones.FreeBlocks()).To(Equal(fullPool(s.bones)))
			Expect(s.colliders.FreeBlocks()).To(Equal(fullPool(s.colliders)))
			Expect(s.indices.FreeBlocks()).To(Equal(fullPool(s.indices)))
			Expect(s.rigs.Validate()).To(Succeed())
			Expect(s.Stats().Rigs).To(BeZero())
		})

		It("rejects double registration and unknown rigs", func() {
			w := newWorld(2, 2, false)
			s, err := New(DefaultConfig(), w.scene, quiet)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Register(w.rigs[0])).To(Succeed())
			Expect(s.Register(w.rigs[0])).To(MatchError(dynamo.ErrAlreadyRegistered))
			Expect(s.Deregister(w.rigs[1])).To(MatchError(dynamo.ErrNotRegistered))
			_, err = s.States(w.rigs[1], nil)
			Expect(err).To(MatchError(dynamo.ErrNotRegistered))
		})

		It("refuses a rig that does not fit and leaves the bone pool untouched", func() {
			w := newWorld(2, 5, false)
			cfg := DefaultConfig()
			cfg.Capacities.Bones = 8
			s, err := New(cfg, w.scene, quiet)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Register(w.rigs[0])).To(Succeed())

			before := s.bones.FreeBlocks()
			err = s.Register(w.rigs[1])
			Expect(err).To(MatchError(dynamo.ErrCapacityExceeded))
			Expect(s.bones.FreeBlocks()).To(Equal(before))
			Expect(s.Registered(w.rigs[1])).To(BeFalse())
		})

		It("refuses a setup whose references leave the rig", func() {
			w := newWorld(2, 3, false)
			s := newScheduler(w, DefaultConfig())
			Expect(s.Deregister(w.rigs[1])).To(Succeed())

			bones := w.rigs[1].Setup().Bones
			bones[0].LengthLimits = append(bones[0].LengthLimits, rig.LengthLimit{
				Limit: physics.LengthLimit{Target: physics.Simulated(len(bones)), Distance: 0.1},
				Node:  hierarchy.InvalidNode,
			})
			before := s.bones.FreeBlocks()
			Expect(s.Register(w.rigs[1])).To(MatchError(dynamo.ErrInvalidTopology))
			Expect(s.bones.FreeBlocks()).To(Equal(before))
			Expect(s.Registered(w.rigs[1])).To(BeFalse())

			Expect(func() {
				s.Tick(1.0 / 60)
				s.Flush()
			}).NotTo(Panic())
		})

		It("rewinds earlier allocations when a later pool refuses", func() {
			w := newWorld(1, 4, true)
			cfg := DefaultConfig()
			cfg.Capacities.CollisionIndices = 3
			s, err := New(cfg, w.scene, quiet)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Register(w.rigs[0])).To(MatchError(dynamo.ErrCapacityExceeded))
			Expect(s.bones.FreeBlocks()).To(Equal(fullPool(s.bones)))
			Expect(s.bones.UsedBlocks()).To(BeEmpty())
			Expect(s.colliders.UsedBlocks()).To(BeEmpty())
			Expect(s.indices.UsedBlocks()).To(BeEmpty())
		})

		It("refuses rigs beyond the registry capacity", func() {
			w := newWorld(2, 2, false)
			cfg := DefaultConfig()
			cfg.Capacities.Rigs = 1
			s, err := New(cfg, w.scene, quiet)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Register(w.rigs[0])).To(Succeed())
			Expect(s.Register(w.rigs[1])).To(MatchError(dynamo.ErrCapacityExceeded))
			Expect(s.bones.UsedBlocks()).To(HaveLen(1))
		})
	})

	Describe("modes", func() {
		const frames = 90

		It("pipelined output trails synchronous output by one frame", func() {
			ws, wp := newWorld(4, 5, true), newWorld(4, 5, true)
			sync := newScheduler(ws, DefaultConfig())
			pcfg := DefaultConfig()
			pcfg.Mode = Pipelined
			piped := newScheduler(wp, pcfg)

			var syncOut, pipedOut [][]mgl64.Quat
			for f := 0; f < frames; f++ {
				ws.animate(f)
				sync.Tick(1.0 / 60)
				syncOut = append(syncOut, ws.rotations())

				wp.animate(f)
				piped.Tick(1.0 / 60)
				pipedOut = append(pipedOut, wp.rotations())
			}
			piped.Flush()
			pipedOut = append(pipedOut, wp.rotations())

			for f := 0; f < frames; f++ {
				expectSameRotations(pipedOut[f+1], syncOut[f])
			}
		})

		It("joins and writes back immediately when leaving pipelined mode", func() {
			ws, wp := newWorld(2, 3, false), newWorld(2, 3, false)
			sync := newScheduler(ws, DefaultConfig())
			pcfg := DefaultConfig()
			pcfg.Mode = Pipelined
			piped := newScheduler(wp, pcfg)

			ws.animate(1)
			sync.Tick(1.0 / 60)
			wp.animate(1)
			piped.Tick(1.0 / 60)

			piped.SetMode(Synchronous)
			Expect(piped.Mode()).To(Equal(Synchronous))
			expectSameRotations(wp.rotations(), ws.rotations())
		})

		It("gives the same result with a worker cap", func() {
			wa, wb := newWorld(5, 4, true), newWorld(5, 4, true)
			a := newScheduler(wa, DefaultConfig())
			cfg := DefaultConfig()
			cfg.MaxWorkers = 2
			b := newScheduler(wb, cfg)

			for f := 0; f < 30; f++ {
				wa.animate(f)
				a.Tick(1.0 / 60)
				wb.animate(f)
				b.Tick(1.0 / 60)
			}
			expectSameRotations(wb.rotations(), wa.rotations())
		})
	})

	Describe("frames", func() {
		var (
			w *world
			s *Scheduler
		)

		BeforeEach(func() {
			w = newWorld(2, 4, true)
			s = newScheduler(w, DefaultConfig())
		})

		AfterEach(func() {
			s.Close()
		})

		It("writes rotations back to the hierarchy", func() {
			before := w.rotations()
			for f := 0; f < 20; f++ {
				w.animate(f)
				s.Tick(1.0 / 60)
			}
			after := w.rotations()
			moved := 0
			for i := range after {
				if after[i].Sub(before[i]).Len() > 1e-6 {
					moved++
				}
			}
			Expect(moved).To(BeNumerically(">", 0))
			Expect(s.Stats().Frame).To(Equal(uint64(20)))
			Expect(s.Stats().Anomalies).To(BeZero())
		})

		It("leaves a paused rig's bones alone", func() {
			w.rigs[0].SetPaused(true)
			before := w.rotations()[:4]
			for f := 0; f < 20; f++ {
				w.animate(f)
				s.Tick(1.0 / 60)
			}
			expectSameRotations(w.rotations()[:4], before)
		})

		It("skips inactive bones on write-back", func() {
			node := w.bones[1][2]
			w.scene.SetActive(node, false)
			before, _ := w.scene.LocalPose(node)
			for f := 0; f < 10; f++ {
				w.animate(f)
				s.Tick(1.0 / 60)
			}
			after, _ := w.scene.LocalPose(node)
			Expect(after.Rotation).To(Equal(before.Rotation))
		})

		It("keeps simulating after a rig is removed mid-run", func() {
			for f := 0; f < 5; f++ {
				s.Tick(1.0 / 60)
			}
			Expect(s.Deregister(w.rigs[0])).To(Succeed())
			for f := 5; f < 10; f++ {
				w.animate(f)
				s.Tick(1.0 / 60)
			}
			states, err := s.States(w.rigs[1], nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(states).To(HaveLen(4))
			for _, st := range states {
				l := st.Tip.Sub(st.Position).Len()
				Expect(l).To(BeNumerically("<=", boneLength+1e-9))
				Expect(l).To(BeNumerically(">=", boneLength/2-1e-9))
			}
		})

		It("applies parameter changes on the next tick", func() {
			Expect(w.rigs[1].Update(func(p *physics.Params) {
				p.Gravity = mgl64.Vec3{0, 0, 0}
				p.Wind.Disabled = true
			})).To(Succeed())
			for f := 0; f < 120; f++ {
				s.Tick(1.0 / 60)
			}
			states, err := s.States(w.rigs[1], nil)
			Expect(err).NotTo(HaveOccurred())
			setup := w.rigs[1].Setup()
			for i, st := range states {
				rest := setup.Bones[i].Properties.InitialLocalRotation
				Expect(st.LocalRotation.Sub(rest).Len()).To(BeNumerically("<", 1e-6), "bone %d", i)
			}
		})
	})

	Describe("force providers", func() {
		It("enforces the provider capacity", func() {
			w := newWorld(1, 2, false)
			cfg := DefaultConfig()
			cfg.Capacities.Forces = 1
			s, err := New(cfg, w.scene, quiet)
			Expect(err).NotTo(HaveOccurred())

			a := force.NewWindProvider(force.Component{})
			b := force.NewWindProvider(force.Component{})
			Expect(s.AddForceProvider(a)).To(Succeed())
			Expect(s.AddForceProvider(b)).To(MatchError(dynamo.ErrCapacityExceeded))
			Expect(s.RemoveForceProvider(b)).To(BeFalse())
			Expect(s.RemoveForceProvider(a)).To(BeTrue())
			Expect(s.AddForceProvider(b)).To(Succeed())
		})
	})

	DescribeTable("ParseMode",
		func(name string, want Mode, ok bool) {
			m, err := ParseMode(name)
			if !ok {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(Equal(want))
		},
		Entry("empty", "", Synchronous, true),
		Entry("sync", "sync", Synchronous, true),
		Entry("pipelined", "pipelined", Pipelined, true),
		Entry("async alias", "async", Pipelined, true),
		Entry("unknown", "eager", Synchronous, false),
	)

	It("clamps non-positive capacities to one", func() {
		c := Capacities{Rigs: 0, Bones: -4, Colliders: 3}.clamped()
		Expect(c).To(Equal(Capacities{Rigs: 1, Bones: 1, Colliders: 3, CollisionIndices: 1, LengthLimits: 1, Forces: 1}))
	})
})
