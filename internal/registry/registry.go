// Package registry holds the detection table: one row per detected region
// per frame, the single source of truth every other component consumes.
//
// The source tool kept rows and region geometries in two index-correlated
// stores; here each Detection owns its region directly. The count
// consistency contract survives at the bulk-ingest boundary, where detector
// output and measurement output are still two parallel lists.
package registry

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"nuclei-tracker/internal/region"
	"nuclei-tracker/pkg/geometry"
)

// ErrEmpty is returned when an operation needs at least one detection and
// the registry has none. Callers report it to the operator and no-op.
var ErrEmpty = errors.New("registry is empty")

// ConsistencyError reports a row/geometry count mismatch. It is fatal for
// the current operation: index correlation with the detector output is
// broken and must not be silently repaired.
type ConsistencyError struct {
	Rows    int
	Regions int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("registry inconsistency: %d rows vs %d regions", e.Rows, e.Regions)
}

// Detection is one observed region in one frame. TrackID 0 means
// unassigned; real track ids start at 1.
type Detection struct {
	Frame        int
	Centroid     geometry.Point2D
	Area         float64
	MajorAxis    float64
	MinorAxis    float64
	ChannelMeans []float64
	TrackID      int
	Displacement float64
	Region       *region.Region
}

// Registry owns the detection table. It is process-wide mutable state for
// one analysis session; all access is single-threaded by construction
// (one user or macro action at a time).
type Registry struct {
	rows        []*Detection
	nextTrackID int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{nextTrackID: 1}
}

// Count returns the number of detection rows.
func (r *Registry) Count() int {
	return len(r.rows)
}

// At returns the detection at index i. The index is stable only until the
// next DeleteAt.
func (r *Registry) At(i int) *Detection {
	return r.rows[i]
}

// Append adds a detection row. The detection must own a region; a nil
// region breaks the consistency contract.
func (r *Registry) Append(d *Detection) error {
	if d.Region == nil {
		return &ConsistencyError{Rows: len(r.rows) + 1, Regions: len(r.rows)}
	}
	r.rows = append(r.rows, d)
	if d.TrackID >= r.nextTrackID {
		r.nextTrackID = d.TrackID + 1
	}
	return nil
}

// IngestFrame appends one row per detected region using the parallel
// measurement list. Returns a ConsistencyError without appending anything
// if the two lists disagree in length.
func (r *Registry) IngestFrame(frame int, regions []*region.Region, measurements []region.Measurement) error {
	if len(regions) != len(measurements) {
		return &ConsistencyError{Rows: len(measurements), Regions: len(regions)}
	}
	for i, reg := range regions {
		m := measurements[i]
		r.rows = append(r.rows, &Detection{
			Frame:     frame,
			Centroid:  m.Centroid,
			Area:      m.Area,
			MajorAxis: m.MajorAxis,
			MinorAxis: m.MinorAxis,
			Region:    reg,
		})
	}
	return nil
}

// DeleteAt removes the row (and its owned region) at index i. Subsequent
// rows shift down by one, so held indices go stale; batch deleters must
// iterate in descending index order.
func (r *Registry) DeleteAt(i int) error {
	if i < 0 || i >= len(r.rows) {
		return errors.Errorf("delete index %d out of range (%d rows)", i, len(r.rows))
	}
	r.rows = append(r.rows[:i], r.rows[i+1:]...)
	return nil
}

// Check validates the consistency contract: every row owns a region.
func (r *Registry) Check() error {
	regions := 0
	for _, d := range r.rows {
		if d.Region != nil {
			regions++
		}
	}
	if regions != len(r.rows) {
		return &ConsistencyError{Rows: len(r.rows), Regions: regions}
	}
	return nil
}

// Reset discards all rows, ready for a fresh analysis pass. Track id
// minting restarts as well; a reset begins a new session.
func (r *Registry) Reset() {
	r.rows = nil
	r.nextTrackID = 1
}

// ResetLinks clears track assignment and displacement on every row without
// touching the rows themselves. Run before re-linking.
func (r *Registry) ResetLinks() {
	for _, d := range r.rows {
		d.TrackID = 0
		d.Displacement = 0
	}
}

// NextTrackID mints a fresh track id, one past any id ever seen. Ids are
// never reused after deletion; sparseness after corrections is deliberate.
func (r *Registry) NextTrackID() int {
	id := r.nextTrackID
	r.nextTrackID++
	return id
}

// NoteTrackID records an externally chosen track id (manual relabel) so
// future minted ids do not collide with it.
func (r *Registry) NoteTrackID(id int) {
	if id >= r.nextTrackID {
		r.nextTrackID = id + 1
	}
}

// MaxFrame returns the highest frame index present, or 0 for an empty
// registry.
func (r *Registry) MaxFrame() int {
	max := 0
	for _, d := range r.rows {
		if d.Frame > max {
			max = d.Frame
		}
	}
	return max
}

// ByFrame returns the indices of all rows in the given frame, in table order.
func (r *Registry) ByFrame(frame int) []int {
	var out []int
	for i, d := range r.rows {
		if d.Frame == frame {
			out = append(out, i)
		}
	}
	return out
}

// TrackIDs returns the distinct assigned track ids in ascending order.
func (r *Registry) TrackIDs() []int {
	seen := make(map[int]struct{})
	for _, d := range r.rows {
		if d.TrackID > 0 {
			seen[d.TrackID] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// TrackRows returns the indices of all rows with the given track id, in
// table order.
func (r *Registry) TrackRows(trackID int) []int {
	var out []int
	for i, d := range r.rows {
		if d.TrackID == trackID {
			out = append(out, i)
		}
	}
	return out
}
