package metrics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/rig"
)

func frame(index int, tips ...mgl64.Vec3) Frame {
	f := Frame{Index: index, Time: float64(index) / 60, Dt: 1.0 / 60, Rig: "r"}
	for _, tip := range tips {
		f.Bones = append(f.Bones, rig.Bone{Properties: physics.BoneProperties{
			Axis:                 mgl64.Vec3{0, -1, 0},
			Length:               1,
			InitialLocalRotation: mgl64.QuatIdent(),
		}})
		f.States = append(f.States, physics.BoneState{
			Tip:           tip,
			PrevTip:       tip,
			LocalRotation: mgl64.QuatIdent(),
			Rotation:      mgl64.QuatIdent(),
		})
	}
	return f
}

func TestBoneDeflection(t *testing.T) {
	tests := []struct {
		tip  mgl64.Vec3
		want float64
	}{
		{mgl64.Vec3{0, -1, 0}, 0},
		{mgl64.Vec3{1, 0, 0}, 90},
		{mgl64.Vec3{0, 1, 0}, 180},
		{mgl64.Vec3{0, -1, -1}, 45},
		{mgl64.Vec3{}, 0},
	}

	for _, tt := range tests {
		f := frame(0, tt.tip)
		got := BoneDeflection(&f.Bones[0].Properties, &f.States[0])
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("tip %v: expected %v, got %v", tt.tip, tt.want, got)
		}
	}
}

func TestBoneDeflectionFollowsParent(t *testing.T) {
	f := frame(0, mgl64.Vec3{1, 0, 0})
	// Parent turned +90 degrees about Z carries the rest direction to +X.
	parent := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	f.States[0].Rotation = parent
	if got := BoneDeflection(&f.Bones[0].Properties, &f.States[0]); math.Abs(got) > 1e-9 {
		t.Errorf("expected no deflection under rotated parent, got %v", got)
	}
}

func TestDeflectionMetrics(t *testing.T) {
	mean := NewDeflection()
	peak := NewMaxDeflection()

	f := frame(0, mgl64.Vec3{0, -1, 0}, mgl64.Vec3{1, 0, 0})
	mean.Observe(f)
	peak.Observe(f)

	if math.Abs(mean.Value()-45) > 1e-9 {
		t.Errorf("expected mean 45, got %v", mean.Value())
	}
	if math.Abs(peak.Value()-90) > 1e-9 {
		t.Errorf("expected max 90, got %v", peak.Value())
	}

	mean.Reset()
	peak.Reset()
	if mean.Value() != 0 || peak.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestTipSpeed(t *testing.T) {
	m := NewTipSpeed()
	f := frame(0, mgl64.Vec3{0, -1, 0})
	f.States[0].PrevTip = mgl64.Vec3{0, -1, 0.1}
	m.Observe(f)

	if math.Abs(m.Value()-6) > 1e-9 {
		t.Errorf("expected speed 6, got %v", m.Value())
	}

	f.Dt = 0
	m.Reset()
	m.Observe(f)
	if m.Value() != 0 {
		t.Error("zero dt frames should be ignored")
	}
}

func TestStretch(t *testing.T) {
	m := NewStretch()
	m.Observe(frame(0, mgl64.Vec3{0, -0.5, 0}))
	if math.Abs(m.Value()-0.5) > 1e-9 {
		t.Errorf("expected stretch 0.5, got %v", m.Value())
	}
}

func TestStability(t *testing.T) {
	m := NewStability()
	if m.Value() != 1 {
		t.Error("expected full stability with no samples")
	}

	m.Observe(frame(0, mgl64.Vec3{0, -1, 0}))
	m.Observe(frame(1, mgl64.Vec3{math.NaN(), 0, 0}))
	m.Observe(frame(2, mgl64.Vec3{0, -5, 0}))
	m.Observe(frame(3, mgl64.Vec3{1, 0, 0}))

	if math.Abs(m.Value()-0.5) > 1e-9 {
		t.Errorf("expected stability 0.5, got %v", m.Value())
	}
}

func TestSeries(t *testing.T) {
	s := NewSeries()

	a := frame(0, mgl64.Vec3{1, 0, 0})
	b := frame(0, mgl64.Vec3{0, -1, 0})
	b.Rig = "q"
	s.OnFrame(a)
	s.OnFrame(b)
	s.OnFrame(frame(1, mgl64.Vec3{0, -1, 0}))

	want := []string{"r/deflection", "r/tip_x", "r/tip_y", "r/tip_z", "q/deflection", "q/tip_x", "q/tip_y", "q/tip_z"}
	cols := s.Columns()
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %v", len(want), cols)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d: expected %s, got %s", i, want[i], cols[i])
		}
	}

	rows := s.Rows()
	if len(rows) != 2 || len(rows[1]) != len(want) {
		t.Fatalf("expected 2 padded rows, got %v", rows)
	}
	if d := s.Column("r/deflection"); math.Abs(d[0]-90) > 1e-9 || d[1] != 0 {
		t.Errorf("unexpected deflection column %v", d)
	}
	if s.Column("missing") != nil {
		t.Error("expected nil for unknown column")
	}
	if times := s.Times(); len(times) != 2 || times[1] != 1.0/60 {
		t.Errorf("unexpected times %v", times)
	}

	s.Reset()
	if len(s.Rows()) != 0 {
		t.Error("expected empty series after reset")
	}
}
