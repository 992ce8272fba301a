// Package project provides run bookkeeping and persistence: the registry
// as a tabular CSV, the region set as a zip archive, the pivot table and
// the run manifest, all under an operator-chosen directory and prefix.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"nuclei-tracker/internal/linkage"
)

// Run identifies one analysis session and where its outputs live.
type Run struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Dir     string    `json:"dir"`
	Prefix  string    `json:"prefix"`

	Frames   int            `json:"frames"`
	Channels int            `json:"channels"`
	Linkage  linkage.Params `json:"linkage"`
	Separate float64        `json:"separate"`
}

// NewRun creates the output directory and a fresh run with a unique id.
func NewRun(dir, prefix string) (*Run, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &Run{
		ID:      uuid.NewString(),
		Created: time.Now(),
		Dir:     dir,
		Prefix:  prefix,
	}, nil
}

// Path returns the full path for an output file with the given suffix,
// e.g. Path("tracks.csv") -> <dir>/<prefix>_tracks.csv.
func (r *Run) Path(suffix string) string {
	return filepath.Join(r.Dir, r.Prefix+"_"+suffix)
}

// SaveManifest writes the run description as JSON.
func (r *Run) SaveManifest() error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.Path("run.json"), data, 0o644)
}

// LoadManifest reads a run manifest back.
func LoadManifest(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &run, nil
}
