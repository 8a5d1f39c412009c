// Package force supplies the external forces acting on spring bones: the
// per-rig procedural wind gust and the directional and wind fields sampled
// from registered providers.
package force

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/hierarchy"
)

// Kind selects how a Component acts on bones.
type Kind int

const (
	Directional Kind = iota
	Wind
)

func (k Kind) String() string {
	switch k {
	case Directional:
		return "directional"
	case Wind:
		return "wind"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a config name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "directional":
		return Directional, nil
	case "wind":
		return Wind, nil
	}
	return 0, fmt.Errorf("force: unknown kind %q", name)
}

// Component is a provider's force state for one frame.
type Component struct {
	Time         float64
	Position     mgl64.Vec3
	Rotation     mgl64.Quat
	Kind         Kind
	Strength     float64
	// Amplitude is carried for providers that modulate Strength
	// themselves. At does not read it.
	Amplitude    float64
	TimeFactor   float64
	PeakDistance float64
	Offset       mgl64.Vec3
}

// Provider is polled once per frame for its active force.
type Provider interface {
	Sample(dt float64) Component
}

// minStrength is the wind strength below which a field contributes nothing.
const minStrength = 0.0001

// At evaluates c at a bone position. Directional forces push along the
// provider's forward axis; wind forces add a travelling sine offset that
// varies with position in the provider's frame.
func At(c Component, pos mgl64.Vec3, influence float64) mgl64.Vec3 {
	if c.Kind == Directional {
		return c.Rotation.Rotate(mgl64.Vec3{0, 0, c.Strength})
	}
	if c.Strength <= minStrength || c.PeakDistance <= 0 {
		return mgl64.Vec3{}
	}

	frame := hierarchy.Pose{Position: c.Position, Rotation: c.Rotation}
	local := frame.Inverse().Compose(hierarchy.Pose{Position: pos, Rotation: mgl64.QuatIdent()}).Position
	m := 2 * math.Pi / c.PeakDistance
	positional := math.Sin(m*local.X()) + math.Cos(m*local.Z())
	offset := c.Offset.Mul(math.Sin(c.TimeFactor + positional))

	dir := c.Rotation.Rotate(mgl64.Vec3{0, 0, 1}).Add(offset)
	l := dir.Len()
	if l == 0 {
		return mgl64.Vec3{}
	}
	return dir.Mul(influence * c.Strength / l)
}

// WindProvider advances its clock at half the frame rate.
type WindProvider struct {
	mu sync.Mutex
	c  Component
}

// NewWindProvider returns a provider starting from c.
func NewWindProvider(c Component) *WindProvider {
	if c.Rotation == (mgl64.Quat{}) {
		c.Rotation = mgl64.QuatIdent()
	}
	return &WindProvider{c: c}
}

// Sample implements Provider.
func (w *WindProvider) Sample(dt float64) Component {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.Time += dt * 0.5
	return w.c
}

// SetPose moves the provider.
func (w *WindProvider) SetPose(p hierarchy.Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.Position = p.Position
	w.c.Rotation = p.Rotation
}

// StaticProvider always returns the same component.
type StaticProvider struct {
	c Component
}

// NewStaticProvider returns a provider fixed at c. A zero Rotation is
// replaced with identity.
func NewStaticProvider(c Component) *StaticProvider {
	if c.Rotation == (mgl64.Quat{}) {
		c.Rotation = mgl64.QuatIdent()
	}
	return &StaticProvider{c: c}
}

// Sample implements Provider.
func (s *StaticProvider) Sample(float64) Component { return s.c }
