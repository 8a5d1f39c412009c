package config

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/physics"
)

// Bone holds the per-bone authoring values a preset applies to every bone
// of a procedurally built rig.
type Bone struct {
	Stiffness        float64 `yaml:"stiffness"`
	Drag             float64 `yaml:"drag"`
	WindInfluence    float64 `yaml:"wind_influence"`
	AngularStiffness float64 `yaml:"angular_stiffness"`
	Radius           float64 `yaml:"radius"`
	// AngleLimit is a symmetric cone in degrees. Zero leaves limits off.
	AngleLimit float64 `yaml:"angle_limit"`
}

// YLimit returns the bone's limit about the pivot's Y axis.
func (b Bone) YLimit() physics.AngleLimit {
	if b.AngleLimit <= 0 {
		return physics.AngleLimit{}
	}
	return physics.AngleLimit{Active: true, Min: -b.AngleLimit, Max: b.AngleLimit}
}

// ZLimit returns the bone's limit about the pivot's Z axis.
func (b Bone) ZLimit() physics.AngleLimit {
	return b.YLimit()
}

type Preset struct {
	Description string
	Params      physics.Params
	Bone        Bone
}

func withParams(fn func(*physics.Params)) physics.Params {
	p := physics.DefaultParams()
	fn(&p)
	return p
}

var Presets = map[string]Preset{
	"hair": {
		Description: "light strands that follow wind",
		Params:      physics.DefaultParams(),
		Bone:        Bone{Stiffness: 300, Drag: 0.4, WindInfluence: 1, Radius: 0.02, AngleLimit: 60},
	},
	"cloth": {
		Description: "skirt panels that rest on the legs",
		Params: withParams(func(p *physics.Params) {
			p.Friction = 0.5
			p.Wind.Influence = 0.6
		}),
		Bone: Bone{Stiffness: 150, Drag: 0.5, WindInfluence: 0.6, Radius: 0.05, AngleLimit: 45},
	},
	"tail": {
		Description: "stiff chain with a floor",
		Params: withParams(func(p *physics.Params) {
			p.GroundCollision = true
			p.Bounce = 0.2
		}),
		Bone: Bone{Stiffness: 500, Drag: 0.3, WindInfluence: 0.3, AngularStiffness: 0.5, Radius: 0.05, AngleLimit: 80},
	},
	"heavy": {
		Description: "dense accessory that barely reacts to wind",
		Params: withParams(func(p *physics.Params) {
			p.Gravity = mgl64.Vec3{0, -20, 0}
			p.Wind.Influence = 0.2
		}),
		Bone: Bone{Stiffness: 800, Drag: 0.6, WindInfluence: 0.2, Radius: 0.08, AngleLimit: 30},
	},
}

// GetPreset returns the named preset or nil.
func GetPreset(name string) *Preset {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return &p
}

// ListPresets returns the preset names in order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Overrides are optional per-rig replacements for preset values.
type Overrides struct {
	Gravity        *[3]float64 `yaml:"gravity,omitempty"`
	Bounce         *float64    `yaml:"bounce,omitempty"`
	Friction       *float64    `yaml:"friction,omitempty"`
	WindDisabled   *bool       `yaml:"wind_disabled,omitempty"`
	WindInfluence  *float64    `yaml:"wind_influence,omitempty"`
	SimulationRate *float64    `yaml:"simulation_rate,omitempty"`
	DynamicRatio   *float64    `yaml:"dynamic_ratio,omitempty"`
	// GroundHeight enables ground collision at the given height.
	GroundHeight *float64 `yaml:"ground_height,omitempty"`

	Stiffness  *float64 `yaml:"stiffness,omitempty"`
	Drag       *float64 `yaml:"drag,omitempty"`
	Radius     *float64 `yaml:"radius,omitempty"`
	AngleLimit *float64 `yaml:"angle_limit,omitempty"`
}

func (o Overrides) apply(p *physics.Params, b *Bone) {
	if o.Gravity != nil {
		p.Gravity = mgl64.Vec3(*o.Gravity)
	}
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.Bounce, o.Bounce)
	set(&p.Friction, o.Friction)
	set(&p.Wind.Influence, o.WindInfluence)
	set(&p.SimulationRate, o.SimulationRate)
	set(&p.DynamicRatio, o.DynamicRatio)
	if o.WindDisabled != nil {
		p.Wind.Disabled = *o.WindDisabled
	}
	if o.GroundHeight != nil {
		p.GroundCollision = true
		p.GroundHeight = *o.GroundHeight
	}
	set(&b.Stiffness, o.Stiffness)
	set(&b.Drag, o.Drag)
	set(&b.Radius, o.Radius)
	set(&b.AngleLimit, o.AngleLimit)
}

// Resolve applies the rig's overrides on top of its preset.
func (r RigConfig) Resolve() (Preset, error) {
	name := r.Preset
	if name == "" {
		name = DefaultPreset
	}
	p := GetPreset(name)
	if p == nil {
		return Preset{}, fmt.Errorf("unknown preset %q", name)
	}
	out := *p
	r.Params.apply(&out.Params, &out.Bone)
	if err := out.Params.Validate(); err != nil {
		return Preset{}, err
	}
	if out.Bone.Drag < 0 || out.Bone.Drag > 1 {
		return Preset{}, fmt.Errorf("drag %v not in [0, 1]", out.Bone.Drag)
	}
	return out, nil
}
