// Package storage persists run traces: a metadata.json and a frames.csv
// per run directory.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Scenario  string             `json:"scenario"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	FrameRate float64            `json:"frame_rate"`
	Frames    int                `json:"frames"`
	Mode      string             `json:"mode"`
	Workers   int                `json:"workers"`
	Rigs      []string           `json:"rigs"`
	Anomalies int64              `json:"anomalies"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Trace is a per-frame table.
type Trace struct {
	Columns []string    `json:"columns"`
	Times   []float64   `json:"times"`
	Rows    [][]float64 `json:"rows"`
}

// Column returns the named column, or an error naming the known ones.
func (t *Trace) Column(name string) ([]float64, error) {
	i := slices.Index(t.Columns, name)
	if i < 0 {
		return nil, fmt.Errorf("storage: no column %q (have %s)", name, strings.Join(t.Columns, ", "))
	}
	out := make([]float64, len(t.Rows))
	for k, r := range t.Rows {
		if i < len(r) {
			out[k] = r[i]
		}
	}
	return out, nil
}

// Save writes meta and trace under a new run id and returns the id.
func (s *Store) Save(meta RunMetadata, trace *Trace) (string, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runID := fmt.Sprintf("%s_%d", meta.Scenario, meta.Timestamp.UnixNano())
	meta.ID = runID
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "frames.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := writeCSV(csvFile, trace); err != nil {
		return "", err
	}
	return runID, nil
}

func writeCSV(out io.Writer, trace *Trace) error {
	w := csv.NewWriter(out)
	if trace == nil {
		w.Flush()
		return w.Error()
	}

	if err := w.Write(append([]string{"time"}, trace.Columns...)); err != nil {
		return err
	}
	for i, r := range trace.Rows {
		row := make([]string, 0, len(trace.Columns)+1)
		t := 0.0
		if i < len(trace.Times) {
			t = trace.Times[i]
		}
		row = append(row, strconv.FormatFloat(t, 'g', -1, 64))
		for j := range trace.Columns {
			v := 0.0
			if j < len(r) {
				v = r[j]
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	slices.SortFunc(runs, func(a, b RunMetadata) int { return a.Timestamp.Compare(b.Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadTrace(runID string) (*Trace, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "frames.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	trace := &Trace{}
	if len(records) == 0 {
		return trace, nil
	}
	if len(records[0]) > 0 {
		trace.Columns = records[0][1:]
	}

	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("storage: %s: bad time %q: %w", runID, record[0], err)
		}
		row := make([]float64, len(trace.Columns))
		for j := 1; j < len(record) && j <= len(row); j++ {
			if row[j-1], err = strconv.ParseFloat(record[j], 64); err != nil {
				return nil, fmt.Errorf("storage: %s: bad value %q: %w", runID, record[j], err)
			}
		}
		trace.Times = append(trace.Times, t)
		trace.Rows = append(trace.Rows, row)
	}
	return trace, nil
}

// LoadSeries returns one column of a stored run.
func (s *Store) LoadSeries(runID, column string) ([]float64, []float64, error) {
	trace, err := s.LoadTrace(runID)
	if err != nil {
		return nil, nil, err
	}
	values, err := trace.Column(column)
	if err != nil {
		return nil, nil, err
	}
	return values, trace.Times, nil
}
