package metrics

import "math"

// Stability is the fraction of frames in which every tip is finite and
// no farther from its head than limit rest lengths.
type Stability struct {
	name       string
	limit      float64
	violations int
	samples    int
}

func NewStability() *Stability {
	return &Stability{
		name:  "stability",
		limit: 2,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(f Frame) {
	s.samples++
	for i := range f.States {
		st := &f.States[i]
		l := st.Tip.Sub(st.Position).Len()
		if math.IsNaN(l) || math.IsInf(l, 0) || l > s.limit*f.Bones[i].Properties.Length {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
