// Package rupture flags transient nuclear-envelope rupture events in the
// pivoted per-track intensity series: a reporter drop below a moving
// baseline that later recovers.
package rupture

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"nuclei-tracker/internal/resample"
)

// Params controls event flagging.
type Params struct {
	// BaselineWindow is how many trailing observed values form the
	// baseline median.
	BaselineWindow int
	// DropFraction: a value below DropFraction*baseline is in a drop.
	DropFraction float64
	// MinDuration is the minimum drop length in frames.
	MinDuration int
}

// DefaultParams returns flagging parameters that catch the sharp drops a
// rupture produces without firing on photobleaching drift.
func DefaultParams() Params {
	return Params{BaselineWindow: 5, DropFraction: 0.6, MinDuration: 1}
}

// Validate fails fast on bad configuration.
func (p Params) Validate() error {
	if p.BaselineWindow < 1 {
		return fmt.Errorf("baseline window must be at least 1, got %d", p.BaselineWindow)
	}
	if p.DropFraction <= 0 || p.DropFraction >= 1 {
		return fmt.Errorf("drop fraction %g outside (0,1)", p.DropFraction)
	}
	if p.MinDuration < 1 {
		return fmt.Errorf("minimum duration must be at least 1, got %d", p.MinDuration)
	}
	return nil
}

// Event is one flagged rupture: the drop spans frames Start..End inclusive
// and recovered afterwards.
type Event struct {
	TrackID int
	Channel int
	Start   int
	End     int
	// Depth is 1 - min/baseline: how far the signal fell.
	Depth float64
}

// Detect flags rupture events across every track and channel in the table.
// Missing observations break a drop without producing an event; a drop the
// series never recovers from is not transient and is not flagged either.
func Detect(t *resample.Table, p Params) ([]Event, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rupture parameters: %w", err)
	}
	var events []Event
	for _, id := range t.TrackIDs {
		for c := 0; c < t.Channels; c++ {
			events = append(events, scanSeries(id, c, t.Series(id, c), p)...)
		}
	}
	return events, nil
}

func scanSeries(trackID, channel int, series []resample.Cell, p Params) []Event {
	var (
		events   []Event
		baseline []float64 // trailing observed values outside drops
		inDrop   bool
		frozen   float64 // baseline median frozen at drop start
		start    int
		last     int
		minVal   float64
	)

	for f := 1; f <= len(series); f++ {
		cell := series[f-1]

		if !cell.Present {
			// A gap breaks the run; an unobserved nucleus proves nothing.
			inDrop = false
			continue
		}

		if inDrop {
			if cell.Value < p.DropFraction*frozen {
				last = f
				if cell.Value < minVal {
					minVal = cell.Value
				}
				continue
			}
			// Recovered: transient confirmed.
			if last-start+1 >= p.MinDuration {
				events = append(events, Event{
					TrackID: trackID,
					Channel: channel,
					Start:   start,
					End:     last,
					Depth:   1 - minVal/frozen,
				})
			}
			inDrop = false
		}

		if len(baseline) >= p.BaselineWindow {
			b := medianOf(baseline)
			if cell.Value < p.DropFraction*b {
				inDrop = true
				frozen = b
				start, last = f, f
				minVal = cell.Value
				continue
			}
		}

		baseline = append(baseline, cell.Value)
		if len(baseline) > p.BaselineWindow {
			baseline = baseline[1:]
		}
	}
	return events
}

func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
