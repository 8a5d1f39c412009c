package metrics

import "math"

type Deflection struct {
	name    string
	sum     float64
	samples int
}

func NewDeflection() *Deflection {
	return &Deflection{name: "deflection"}
}

func (d *Deflection) Name() string { return d.name }

func (d *Deflection) Observe(f Frame) {
	for i := range f.States {
		d.sum += BoneDeflection(&f.Bones[i].Properties, &f.States[i])
		d.samples++
	}
}

func (d *Deflection) Value() float64 {
	if d.samples == 0 {
		return 0
	}
	return d.sum / float64(d.samples)
}

func (d *Deflection) Reset() {
	d.sum = 0
	d.samples = 0
}

type MaxDeflection struct {
	name string
	max  float64
}

func NewMaxDeflection() *MaxDeflection {
	return &MaxDeflection{name: "max_deflection"}
}

func (m *MaxDeflection) Name() string { return m.name }

func (m *MaxDeflection) Observe(f Frame) {
	for i := range f.States {
		m.max = math.Max(m.max, BoneDeflection(&f.Bones[i].Properties, &f.States[i]))
	}
}

func (m *MaxDeflection) Value() float64 { return m.max }

func (m *MaxDeflection) Reset() { m.max = 0 }
