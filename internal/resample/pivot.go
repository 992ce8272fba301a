// Package resample re-measures detections against every channel plane and
// pivots the registry into per-track time series.
package resample

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"nuclei-tracker/internal/registry"
)

// Cell is one pivot entry. Present distinguishes a measured value from a
// (track, frame) pair with no observation; the legacy zero fill only
// appears on export.
type Cell struct {
	Value   float64
	Present bool
}

// Table is the pivoted per-track matrix: one column per (track, channel),
// one row per frame 1..Frames.
type Table struct {
	TrackIDs []int
	Channels int
	Frames   int

	cells map[cellKey]Cell
}

type cellKey struct {
	trackID int
	channel int
	frame   int
}

// Pivot reshapes the registry into a Table with the given channel count.
// Cells for (track, frame) pairs with no detection stay absent.
func Pivot(reg *registry.Registry, channels int) *Table {
	t := &Table{
		TrackIDs: reg.TrackIDs(),
		Channels: channels,
		Frames:   reg.MaxFrame(),
		cells:    make(map[cellKey]Cell),
	}
	for i := 0; i < reg.Count(); i++ {
		d := reg.At(i)
		if d.TrackID == 0 {
			continue
		}
		for c := 0; c < channels; c++ {
			v := 0.0
			if c < len(d.ChannelMeans) {
				v = d.ChannelMeans[c]
			}
			t.cells[cellKey{d.TrackID, c, d.Frame}] = Cell{Value: v, Present: true}
		}
	}
	return t
}

// Cell returns the entry for a track, channel and 1-based frame.
func (t *Table) Cell(trackID, channel, frame int) Cell {
	return t.cells[cellKey{trackID, channel, frame}]
}

// Value returns the zero-filled view: the measured value, or 0 when the
// pair has no observation. Real intensities are positive, so downstream
// sheets read 0 as "missing"; callers that must distinguish use Cell.
func (t *Table) Value(trackID, channel, frame int) float64 {
	return t.cells[cellKey{trackID, channel, frame}].Value
}

// Series returns the full frame series 1..Frames for one track and channel.
func (t *Table) Series(trackID, channel int) []Cell {
	out := make([]Cell, t.Frames)
	for f := 1; f <= t.Frames; f++ {
		out[f-1] = t.cells[cellKey{trackID, channel, f}]
	}
	return out
}

// ColumnName returns the export header for a (track, channel) column.
func ColumnName(trackID, channel int) string {
	return fmt.Sprintf("track_%d_ch_%d", trackID, channel)
}

// WriteCSV exports the table with the legacy zero fill for absent cells.
// Columns: frame, then one column per track per channel.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"frame"}
	for _, id := range t.TrackIDs {
		for c := 0; c < t.Channels; c++ {
			header = append(header, ColumnName(id, c))
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for f := 1; f <= t.Frames; f++ {
		row[0] = strconv.Itoa(f)
		i := 1
		for _, id := range t.TrackIDs {
			for c := 0; c < t.Channels; c++ {
				row[i] = strconv.FormatFloat(t.Value(id, c, f), 'g', -1, 64)
				i++
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
