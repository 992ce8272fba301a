// Package correction applies manual track corrections to the registry.
//
// Every correction is a Command carrying the cursor position, the frame
// and the temporal extent, decoupled from any pointing device so the whole
// state machine is testable headless. Commands run synchronously and leave
// the registry consistent before returning.
package correction

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"nuclei-tracker/internal/linkage"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/pkg/geometry"
)

// Kind selects the correction action.
type Kind int

const (
	// Delete removes the selected detection and, per extent, its track mates.
	Delete Kind = iota
	// Relabel overwrites the track id on the matching rows.
	Relabel
	// Extend duplicates the selected region into an adjacent frame.
	Extend
)

func (k Kind) String() string {
	switch k {
	case Delete:
		return "delete"
	case Relabel:
		return "relabel"
	case Extend:
		return "extend"
	default:
		return "unknown"
	}
}

// Extent is the temporal scope a delete or relabel applies over.
type Extent int

const (
	// ThisFrame affects only the selected detection.
	ThisFrame Extent = iota
	// AllFrames affects every detection of the track.
	AllFrames
	// AllPrevious affects track detections at or before the selected frame.
	AllPrevious
	// AllFollowing affects track detections at or after the selected frame.
	AllFollowing
)

func (e Extent) String() string {
	switch e {
	case ThisFrame:
		return "this-frame"
	case AllFrames:
		return "all-frames"
	case AllPrevious:
		return "all-previous"
	case AllFollowing:
		return "all-following"
	default:
		return "unknown"
	}
}

// Direction selects the adjacent frame an Extend targets.
type Direction int

const (
	// Prev extends into the previous frame.
	Prev Direction = iota
	// Next extends into the next frame.
	Next
)

// Command is one correction request.
type Command struct {
	Kind   Kind
	Extent Extent
	// Frame and At locate the detection to operate on.
	Frame int
	At    geometry.Point2D
	// NewTrackID is the operator-chosen id for Relabel.
	NewTrackID int
	// Direction picks the target frame for Extend.
	Direction Direction
}

// Result reports what a command did.
type Result struct {
	// TrackID is the track the selected detection belonged to.
	TrackID int
	// Affected is the number of rows deleted, relabeled or added.
	Affected int
}

// Apply runs one command against the registry.
func Apply(reg *registry.Registry, cmd Command) (Result, error) {
	if reg.Count() == 0 {
		return Result{}, errors.Wrap(registry.ErrEmpty, "nothing to select")
	}

	// Selection: nearest detection in the frame, unbounded ceiling.
	idx, _, ok := linkage.NearestInFrame(reg, cmd.Frame, cmd.At, math.MaxFloat64)
	if !ok {
		return Result{}, errors.Wrapf(registry.ErrEmpty, "nothing to select in frame %d", cmd.Frame)
	}
	sel := reg.At(idx)

	switch cmd.Kind {
	case Delete:
		return deleteRows(reg, idx, cmd.Extent)
	case Relabel:
		return relabelRows(reg, idx, cmd.Extent, cmd.NewTrackID)
	case Extend:
		return extendTrack(reg, idx, cmd.Direction)
	default:
		return Result{}, errors.Errorf("unknown command kind %d (track %d)", int(cmd.Kind), sel.TrackID)
	}
}

// matchingRows returns the indices the extent covers: the selected row
// plus every row sharing its track id that satisfies the frame predicate.
func matchingRows(reg *registry.Registry, selIdx int, extent Extent) []int {
	sel := reg.At(selIdx)
	if extent == ThisFrame || sel.TrackID == 0 {
		return []int{selIdx}
	}
	var out []int
	for i := 0; i < reg.Count(); i++ {
		d := reg.At(i)
		if d.TrackID != sel.TrackID {
			continue
		}
		switch extent {
		case AllFrames:
			out = append(out, i)
		case AllPrevious:
			if d.Frame <= sel.Frame {
				out = append(out, i)
			}
		case AllFollowing:
			if d.Frame >= sel.Frame {
				out = append(out, i)
			}
		}
	}
	return out
}

func deleteRows(reg *registry.Registry, selIdx int, extent Extent) (Result, error) {
	sel := reg.At(selIdx)
	rows := matchingRows(reg, selIdx, extent)

	// Deletion compacts indices, so walk them in descending order.
	sort.Sort(sort.Reverse(sort.IntSlice(rows)))
	for _, i := range rows {
		if err := reg.DeleteAt(i); err != nil {
			return Result{}, errors.Wrap(err, "delete correction")
		}
	}
	return Result{TrackID: sel.TrackID, Affected: len(rows)}, nil
}

func relabelRows(reg *registry.Registry, selIdx int, extent Extent, newID int) (Result, error) {
	if newID < 1 {
		return Result{}, errors.Errorf("new track id must be at least 1, got %d", newID)
	}
	sel := reg.At(selIdx)
	rows := matchingRows(reg, selIdx, extent)
	for _, i := range rows {
		reg.At(i).TrackID = newID
	}
	reg.NoteTrackID(newID)
	return Result{TrackID: sel.TrackID, Affected: len(rows)}, nil
}

// extendTrack bridges a single missed frame: the selected region is
// duplicated into the adjacent frame under the same track id, without
// re-detection. The next resample pass replaces the copied channel means
// with true measurements.
func extendTrack(reg *registry.Registry, selIdx int, dir Direction) (Result, error) {
	sel := reg.At(selIdx)

	target := sel.Frame + 1
	if dir == Prev {
		target = sel.Frame - 1
	}
	if target < 1 {
		return Result{}, errors.Errorf("cannot extend track %d before frame 1", sel.TrackID)
	}
	if sel.TrackID != 0 {
		for _, i := range reg.TrackRows(sel.TrackID) {
			if reg.At(i).Frame == target {
				return Result{}, errors.Errorf("track %d already has a detection in frame %d", sel.TrackID, target)
			}
		}
	}

	means := make([]float64, len(sel.ChannelMeans))
	copy(means, sel.ChannelMeans)
	dup := &registry.Detection{
		Frame:        target,
		Centroid:     sel.Centroid,
		Area:         sel.Area,
		MajorAxis:    sel.MajorAxis,
		MinorAxis:    sel.MinorAxis,
		ChannelMeans: means,
		TrackID:      sel.TrackID,
		Region:       sel.Region.Shifted(target),
	}
	if err := reg.Append(dup); err != nil {
		return Result{}, errors.Wrap(err, "extend correction")
	}
	return Result{TrackID: sel.TrackID, Affected: 1}, nil
}
