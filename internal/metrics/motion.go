package metrics

import "math"

// TipSpeed averages how far tips travel per second.
type TipSpeed struct {
	name    string
	sum     float64
	samples int
}

func NewTipSpeed() *TipSpeed {
	return &TipSpeed{name: "tip_speed"}
}

func (t *TipSpeed) Name() string { return t.name }

func (t *TipSpeed) Observe(f Frame) {
	if f.Dt <= 0 {
		return
	}
	for i := range f.States {
		s := &f.States[i]
		t.sum += s.Tip.Sub(s.PrevTip).Len() / f.Dt
		t.samples++
	}
}

func (t *TipSpeed) Value() float64 {
	if t.samples == 0 {
		return 0
	}
	return t.sum / float64(t.samples)
}

func (t *TipSpeed) Reset() {
	t.sum = 0
	t.samples = 0
}

// Stretch averages the relative deviation of head-to-tip distance from
// rest length.
type Stretch struct {
	name    string
	sum     float64
	samples int
}

func NewStretch() *Stretch {
	return &Stretch{name: "stretch"}
}

func (s *Stretch) Name() string { return s.name }

func (s *Stretch) Observe(f Frame) {
	for i := range f.States {
		p := &f.Bones[i].Properties
		if p.Length == 0 {
			continue
		}
		st := &f.States[i]
		s.sum += math.Abs(st.Tip.Sub(st.Position).Len()-p.Length) / p.Length
		s.samples++
	}
}

func (s *Stretch) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *Stretch) Reset() {
	s.sum = 0
	s.samples = 0
}
