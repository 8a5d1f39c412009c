package physics_test

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/springsim/internal/collision"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/physics"
)

var down = mgl64.Vec3{0, -1, 0}

func tipLength(c *chain, i int) float64 {
	return c.states[i].Tip.Sub(c.states[i].Position).Len()
}

var _ = Describe("Element", func() {
	var c *chain

	BeforeEach(func() {
		c = newChain(3, 0.2, down)
	})

	Describe("rest state", func() {
		It("stays at rest with no external force", func() {
			Expect(c.run(240)).To(Equal(0))
			for i := range c.states {
				Expect(c.states[i].Tip.Sub(c.restTip(i)).Len()).To(BeNumerically("<", 1e-9))
				Expect(math.Abs(c.states[i].LocalRotation.W)).To(BeNumerically("~", 1, 1e-9))
			}
		})

		It("converges back to rest from a deflection", func() {
			c.states[2].Tip = c.states[2].Tip.Add(mgl64.Vec3{0.1, 0, 0.05})
			c.states[2].PrevTip = c.states[2].Tip
			c.run(600)
			Expect(c.states[2].Tip.Sub(c.restTip(2)).Len()).To(BeNumerically("<", 1e-4))
		})
	})

	It("keeps every tip on the rest-length sphere", func() {
		c.elem.Params.Gravity = mgl64.Vec3{3, -10, 0}
		for f := 0; f < 120; f++ {
			c.elem.Execute()
			for i := range c.states {
				Expect(tipLength(c, i)).To(BeNumerically("~", c.length, 1e-9))
			}
		}
	})

	It("swings the chain away from a sideways force", func() {
		c.elem.Params.Gravity = mgl64.Vec3{20, 0, 0}
		c.run(60)
		Expect(c.states[0].Tip.X()).To(BeNumerically(">", 0.01))
		Expect(c.states[2].Position.X()).To(BeNumerically(">", c.states[0].Tip.X()-1e-9))
	})

	It("leaves a paused rig untouched", func() {
		c.elem.Params.Paused = true
		c.elem.Params.Gravity = mgl64.Vec3{50, 0, 0}
		before := append([]physics.BoneState(nil), c.states...)
		c.run(10)
		Expect(c.states).To(Equal(before))
	})

	It("resets a non-finite tip to its rest position", func() {
		nan := math.NaN()
		c.states[1].Tip = mgl64.Vec3{nan, 0, 0}
		Expect(c.elem.Execute()).To(Equal(1))
		Expect(c.states[1].Tip.Sub(c.restTip(1)).Len()).To(BeNumerically("<", 1e-9))
		Expect(c.states[1].PrevTip).To(Equal(c.states[1].Tip))
	})

	It("blends rotation by the dynamic ratio", func() {
		c.elem.Params.DynamicRatio = 0
		c.elem.Params.Gravity = mgl64.Vec3{30, 0, 0}
		c.run(30)
		Expect(c.states[0].LocalRotation).To(Equal(mgl64.QuatIdent()))
	})

	Describe("ground collision", func() {
		BeforeEach(func() {
			c.elem.Params.GroundCollision = true
			c.elem.Params.GroundHeight = 1.45
		})

		It("keeps tips above the ground and drops their velocity", func() {
			c.elem.Execute()
			// the last bone's rest tip sits at y = 1.4, below the ground
			tip := c.states[2].Tip
			Expect(tip.Y()).To(BeNumerically(">=", 1.45+c.props[2].Radius-1e-9))
			Expect(c.states[2].PrevTip).To(Equal(tip))
			Expect(tipLength(c, 2)).To(BeNumerically(">=", 0.5*c.length-1e-9))
			Expect(tipLength(c, 2)).To(BeNumerically("<=", c.length+1e-9))
		})

		It("leaves bones above the ground alone", func() {
			c.elem.Execute()
			Expect(c.states[1].Tip.Sub(c.restTip(1)).Len()).To(BeNumerically("<", 1e-9))
		})
	})

	Describe("shape collisions", func() {
		It("pushes a tip out of a sphere", func() {
			sphere := collision.Properties{Shape: collision.Sphere, Radius: 0.1}
			at := collision.NewState(hierarchy.Pose{Position: c.restTip(0), Rotation: mgl64.QuatIdent()})
			c.withColliders([]collision.Properties{sphere}, []collision.State{at}, 0)

			c.elem.Execute()
			Expect(c.states[0].Tip.Sub(c.restTip(0)).Len()).To(BeNumerically(">=", 0.15-1e-9))
		})

		It("ignores colliders when collisions are disabled", func() {
			sphere := collision.Properties{Shape: collision.Sphere, Radius: 0.1}
			at := collision.NewState(hierarchy.Pose{Position: c.restTip(0), Rotation: mgl64.QuatIdent()})
			c.withColliders([]collision.Properties{sphere}, []collision.State{at}, 0)
			c.elem.Params.Collisions = false

			c.elem.Execute()
			Expect(c.states[0].Tip.Sub(c.restTip(0)).Len()).To(BeNumerically("<", 1e-9))
		})

		Context("with a panel above the first tip", func() {
			BeforeEach(func() {
				panel := collision.Properties{Shape: collision.Panel, Radius: 0.01}
				// facing +Y
				at := collision.NewState(hierarchy.Pose{
					Position: mgl64.Vec3{0, 1.85, 0},
					Rotation: mgl64.QuatRotate(-math.Pi/2, mgl64.Vec3{1, 0, 0}),
				})
				c.withColliders([]collision.Properties{panel}, []collision.State{at}, 0)
				// moving down and toward -X
				c.states[0].PrevTip = c.states[0].Tip.Add(mgl64.Vec3{0.05, 0.05, 0})
			})

			It("keeps sliding with zero friction", func() {
				c.elem.Params.Friction = 0
				c.elem.Execute()
				Expect(c.states[0].Tip.Y()).To(BeNumerically(">=", 1.85+0.06-1e-9))
				Expect(c.states[0].PrevTip.X()).To(BeNumerically(">", c.states[0].Tip.X()))
			})

			It("stops dead with full friction and no bounce", func() {
				c.elem.Execute()
				Expect(c.states[0].Tip.Y()).To(BeNumerically(">=", 1.85+0.06-1e-9))
				Expect(c.states[0].PrevTip).To(Equal(c.states[0].Tip))
			})
		})
	})

	Describe("length limits", func() {
		It("pulls the tip toward the rest distance", func() {
			c.props[0].Stiffness = 0
			c.props[0].Drag = 1
			target := mgl64.Vec3{1, 1.8, 0}
			c.withLengthTarget(0, target, 0.5)

			before := c.states[0].Tip.Sub(target).Len()
			c.elem.Execute()
			after := c.states[0].Tip.Sub(target).Len()
			Expect(after).To(BeNumerically("<", before))
			Expect(after).To(BeNumerically(">", 0.5))
		})
	})

	Describe("angle limits", func() {
		var bone *chain

		angleOf := func(v mgl64.Vec3) float64 {
			proj := mgl64.Vec3{v.X(), v.Y(), 0}
			return mgl64.RadToDeg(math.Asin(proj.Normalize().Dot(down)))
		}

		BeforeEach(func() {
			// a single bone pointing along the pivot's forward axis (-X)
			bone = newChain(1, 0.3, mgl64.Vec3{-1, 0, 0})
			bone.props[0].YLimit = physics.AngleLimit{Active: true, Min: -10, Max: 10}
			bone.pivots[0] = mgl64.Ident4()
			bone.elem.Params.Gravity = mgl64.Vec3{0, -400, 0}
			bone.props[0].Stiffness = 0
		})

		It("never exceeds the maximum", func() {
			for f := 0; f < 60; f++ {
				bone.elem.Execute()
				Expect(angleOf(bone.states[0].Tip.Sub(bone.states[0].Position))).To(BeNumerically("<=", 10+1e-6))
			}
		})

		It("never goes below the minimum", func() {
			bone.elem.Params.Gravity = mgl64.Vec3{0, 400, 0}
			for f := 0; f < 60; f++ {
				bone.elem.Execute()
				Expect(angleOf(bone.states[0].Tip.Sub(bone.states[0].Position))).To(BeNumerically(">=", -10-1e-6))
			}
		})

		It("is skipped when angle limits are disabled", func() {
			bone.elem.Params.AngleLimits = false
			bone.run(60)
			Expect(angleOf(bone.states[0].Tip.Sub(bone.states[0].Position))).To(BeNumerically(">", 10))
		})
	})
})

var _ = Describe("AngleLimit.Constrain", func() {
	side := mgl64.Vec3{0, -1, 0}
	up := mgl64.Vec3{0, 0, -1}
	forward := mgl64.Vec3{-1, 0, 0}
	limit := physics.AngleLimit{Active: true, Min: -20, Max: 20}

	at := func(deg float64) mgl64.Vec3 {
		r := mgl64.DegToRad(deg)
		return side.Mul(math.Sin(r)).Add(forward.Mul(math.Cos(r)))
	}

	It("leaves a vector inside the limit alone", func() {
		v := at(5).Add(up.Mul(0.3))
		Expect(limit.Constrain(v, side, up, forward, 0, 1.0/60).Sub(v).Len()).To(BeNumerically("<", 1e-9))
	})

	It("clamps to the boundary and keeps the out-of-plane part", func() {
		v := at(70).Mul(2).Add(up.Mul(0.5))
		got := limit.Constrain(v, side, up, forward, 0, 1.0/60)
		want := at(20).Mul(2).Add(up.Mul(0.5))
		Expect(got.Sub(want).Len()).To(BeNumerically("<", 1e-9))
	})

	It("returns the input when it has no in-plane component", func() {
		Expect(limit.Constrain(up, side, up, forward, 0, 1.0/60)).To(Equal(up))
	})
})

var _ = Describe("Nlerp", func() {
	a := mgl64.QuatIdent()
	b := mgl64.QuatRotate(1, mgl64.Vec3{0, 1, 0})

	It("hits both endpoints", func() {
		Expect(physics.Nlerp(a, b, 0).Sub(a).Len()).To(BeNumerically("<", 1e-12))
		Expect(physics.Nlerp(a, b, 1).Sub(b).Len()).To(BeNumerically("<", 1e-12))
	})

	It("takes the short way round", func() {
		q := physics.Nlerp(a, b.Scale(-1), 1)
		Expect(q.Sub(b).Len()).To(BeNumerically("<", 1e-12))
	})
})

var _ = Describe("Params", func() {
	It("uses a fixed step when a rate is set", func() {
		p := physics.DefaultParams()
		Expect(p.Step(0.5)).To(BeNumerically("~", 1.0/60, 1e-12))
		p.SimulationRate = 0
		Expect(p.Step(0.5)).To(Equal(0.5))
	})

	DescribeTable("validation",
		func(mutate func(*physics.Params), ok bool) {
			p := physics.DefaultParams()
			mutate(&p)
			if ok {
				Expect(p.Validate()).To(Succeed())
			} else {
				Expect(p.Validate()).NotTo(Succeed())
			}
		},
		Entry("defaults", func(*physics.Params) {}, true),
		Entry("ratio above one", func(p *physics.Params) { p.DynamicRatio = 1.5 }, false),
		Entry("negative friction", func(p *physics.Params) { p.Friction = -0.1 }, false),
		Entry("negative rate", func(p *physics.Params) { p.SimulationRate = -1 }, false),
	)
})
