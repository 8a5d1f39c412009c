package metrics

import "slices"

// Series records one row per frame: mean deflection and the last tip of
// every rig. Columns are named "<rig>/<quantity>" in first-seen order.
type Series struct {
	columns []string
	index   map[string]int
	times   []float64
	rows    [][]float64
	frame   int
}

func NewSeries() *Series {
	return &Series{index: make(map[string]int)}
}

func (s *Series) OnFrame(f Frame) {
	if len(s.rows) == 0 || f.Index != s.frame {
		s.rows = append(s.rows, nil)
		s.times = append(s.times, f.Time)
		s.frame = f.Index
	}
	row := &s.rows[len(s.rows)-1]

	mean := 0.0
	for i := range f.States {
		mean += BoneDeflection(&f.Bones[i].Properties, &f.States[i])
	}
	if n := len(f.States); n > 0 {
		mean /= float64(n)
	}
	s.set(row, f.Rig+"/deflection", mean)

	if n := len(f.States); n > 0 {
		tip := f.States[n-1].Tip
		s.set(row, f.Rig+"/tip_x", tip.X())
		s.set(row, f.Rig+"/tip_y", tip.Y())
		s.set(row, f.Rig+"/tip_z", tip.Z())
	}
}

func (s *Series) set(row *[]float64, column string, v float64) {
	i, ok := s.index[column]
	if !ok {
		i = len(s.columns)
		s.columns = append(s.columns, column)
		s.index[column] = i
	}
	for len(*row) <= i {
		*row = append(*row, 0)
	}
	(*row)[i] = v
}

func (s *Series) Columns() []string { return slices.Clone(s.columns) }

func (s *Series) Times() []float64 { return slices.Clone(s.times) }

// Rows returns every row padded to the full column count.
func (s *Series) Rows() [][]float64 {
	out := make([][]float64, len(s.rows))
	for i, r := range s.rows {
		out[i] = make([]float64, len(s.columns))
		copy(out[i], r)
	}
	return out
}

// Column returns one column's values, or nil if it was never recorded.
func (s *Series) Column(name string) []float64 {
	i, ok := s.index[name]
	if !ok {
		return nil
	}
	out := make([]float64, len(s.rows))
	for k, r := range s.rows {
		if i < len(r) {
			out[k] = r[i]
		}
	}
	return out
}

func (s *Series) Reset() {
	s.columns = nil
	s.index = make(map[string]int)
	s.times = nil
	s.rows = nil
	s.frame = 0
}
