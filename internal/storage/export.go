package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	RunMetadata
	Trace *Trace `json:"trace,omitempty"`
}

// ExportJSON writes meta and trace as one indented JSON document.
func ExportJSON(w io.Writer, meta RunMetadata, trace *Trace) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{RunMetadata: meta, Trace: trace})
}

func ExportJSONFile(path string, meta RunMetadata, trace *Trace) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, meta, trace)
}
