// Package linkage assigns track ids to detections by gap-bridged greedy
// nearest-neighbour matching over the registry table.
//
// The policy is deliberately the order-dependent greedy one: a single
// forward pass in table order, smallest-displacement predecessor wins on
// conflict. Correction tooling depends on that specific, explainable
// behavior; a globally optimal assignment would change results under its
// feet. The Matcher interface leaves room for a stricter strategy later.
package linkage

import (
	"math"

	"github.com/pkg/errors"

	"nuclei-tracker/internal/registry"
	"nuclei-tracker/pkg/geometry"
)

// Params controls the linker.
type Params struct {
	// MaxDisp is the maximum centroid distance (pixels) allowed for a link.
	MaxDisp float64
	// Gap is how many frames ahead to search when a frame has no candidate
	// within MaxDisp. Gap 1 means direct successors only.
	Gap int
}

// DefaultParams returns linker parameters that work for slowly moving
// nuclei at typical magnifications.
func DefaultParams() Params {
	return Params{MaxDisp: 30, Gap: 3}
}

// Validate fails fast on nonsensical parameters, before any batch pass.
func (p Params) Validate() error {
	if p.MaxDisp <= 0 {
		return errors.Errorf("max displacement must be positive, got %g", p.MaxDisp)
	}
	if p.Gap < 1 {
		return errors.Errorf("gap must be at least 1, got %d", p.Gap)
	}
	return nil
}

// Matcher links all detections in a registry. Implementations must be a
// deterministic function of table order and parameters only.
type Matcher interface {
	Run(reg *registry.Registry) error
}

// Greedy is the shipped Matcher: deterministic single-pass greedy linking.
type Greedy struct {
	params Params
}

// NewGreedy creates a greedy linker, validating parameters up front.
func NewGreedy(p Params) (*Greedy, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid linkage parameters")
	}
	return &Greedy{params: p}, nil
}

// Run links every detection. All existing assignments are cleared first,
// so re-running on an unmodified registry reproduces identical output.
func (g *Greedy) Run(reg *registry.Registry) error {
	if err := reg.Check(); err != nil {
		return err
	}
	reg.ResetLinks()

	maxFrame := reg.MaxFrame()
	nextID := 1

	for j := 0; j < reg.Count(); j++ {
		d := reg.At(j)

		// A row nobody linked starts a new track.
		if d.TrackID == 0 {
			d.TrackID = nextID
			d.Displacement = 0
			nextID++
			reg.NoteTrackID(d.TrackID)
		}

		if d.Frame >= maxFrame {
			continue
		}

		// Search frames t+1..t+gap, stopping at the first frame that
		// yields any candidate within MaxDisp. No candidate at any depth
		// is not an error; the track simply ends here.
		for depth := 1; depth <= g.params.Gap; depth++ {
			f := d.Frame + depth
			if f > maxFrame {
				break
			}
			k, dist, ok := NearestInFrame(reg, f, d.Centroid, g.params.MaxDisp)
			if !ok {
				continue
			}
			claim(reg.At(k), d.TrackID, dist)
			break
		}
	}
	return nil
}

// claim links candidate c into the given track unless it already has a
// closer predecessor. Ties keep the existing link, so the earlier row in
// table order wins.
func claim(c *registry.Detection, trackID int, dist float64) {
	if c.TrackID == 0 || c.Displacement > dist {
		c.TrackID = trackID
		c.Displacement = dist
	}
}

// NearestInFrame finds the registry row in the given frame closest to pt,
// among rows within maxDist. Ties break by table order (first found wins).
// Also the selection primitive for the correction commands, which pass an
// effectively unbounded maxDist.
func NearestInFrame(reg *registry.Registry, frame int, pt geometry.Point2D, maxDist float64) (idx int, dist float64, ok bool) {
	best := math.Inf(1)
	idx = -1
	for i := 0; i < reg.Count(); i++ {
		d := reg.At(i)
		if d.Frame != frame {
			continue
		}
		dd := pt.Distance(d.Centroid)
		if dd > maxDist {
			continue
		}
		if dd < best {
			best = dd
			idx = i
		}
	}
	if idx < 0 {
		return -1, 0, false
	}
	return idx, best, true
}
