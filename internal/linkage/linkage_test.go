package linkage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuclei-tracker/internal/region"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/pkg/geometry"
)

func det(frame int, x, y float64) *registry.Detection {
	return &registry.Detection{
		Frame:    frame,
		Centroid: geometry.Point2D{X: x, Y: y},
		Region: region.New(frame, []geometry.Point2D{
			{X: x - 2, Y: y - 2},
			{X: x + 2, Y: y - 2},
			{X: x + 2, Y: y + 2},
			{X: x - 2, Y: y + 2},
		}),
	}
}

func buildRegistry(t *testing.T, dets ...*registry.Detection) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, d := range dets {
		require.NoError(t, reg.Append(d))
	}
	return reg
}

func run(t *testing.T, reg *registry.Registry, p Params) {
	t.Helper()
	linker, err := NewGreedy(p)
	require.NoError(t, err)
	require.NoError(t, linker.Run(reg))
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		ok   bool
	}{
		{"defaults", DefaultParams(), true},
		{"zero maxdisp", Params{MaxDisp: 0, Gap: 1}, false},
		{"negative maxdisp", Params{MaxDisp: -5, Gap: 1}, false},
		{"zero gap", Params{MaxDisp: 10, Gap: 0}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSimpleChain(t *testing.T) {
	reg := buildRegistry(t,
		det(1, 10, 10),
		det(2, 12, 11),
		det(3, 14, 12),
	)
	run(t, reg, Params{MaxDisp: 10, Gap: 1})

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, reg.At(i).TrackID, "row %d", i)
	}
	assert.Equal(t, 0.0, reg.At(0).Displacement)
	assert.InDelta(t, 2.236, reg.At(1).Displacement, 0.01)
}

func TestGapBridging(t *testing.T) {
	// Detections in frames 1 and 4 within range, frames 2-3 empty.
	dets := func() []*registry.Detection {
		return []*registry.Detection{det(1, 50, 50), det(4, 52, 50)}
	}

	reg := buildRegistry(t, dets()...)
	run(t, reg, Params{MaxDisp: 10, Gap: 3})
	assert.Equal(t, reg.At(0).TrackID, reg.At(1).TrackID, "gap 3 must bridge frames 1->4")
	assert.Len(t, reg.TrackIDs(), 1)

	reg = buildRegistry(t, dets()...)
	run(t, reg, Params{MaxDisp: 10, Gap: 2})
	assert.NotEqual(t, reg.At(0).TrackID, reg.At(1).TrackID, "gap 2 must not bridge frames 1->4")
	assert.Len(t, reg.TrackIDs(), 2)
}

func TestGapStopsAtFirstFrameWithCandidate(t *testing.T) {
	// Frame 2 has a candidate within range, so frame 3's closer one is
	// never considered.
	reg := buildRegistry(t,
		det(1, 0, 0),
		det(2, 8, 0),
		det(3, 1, 0),
	)
	run(t, reg, Params{MaxDisp: 10, Gap: 3})

	assert.Equal(t, reg.At(0).TrackID, reg.At(1).TrackID)
	// Frame 3 is then linked from frame 2, not frame 1.
	assert.Equal(t, reg.At(1).TrackID, reg.At(2).TrackID)
	assert.InDelta(t, 7.0, reg.At(2).Displacement, 1e-9)
}

func TestNearestWinsConflict(t *testing.T) {
	// Two detections in frame 1 compete for a single successor; the
	// closer one claims it regardless of table order.
	for name, order := range map[string][]*registry.Detection{
		"closer first": {det(1, 10, 0), det(1, 18, 0), det(2, 11, 0)},
		"closer last":  {det(1, 18, 0), det(1, 10, 0), det(2, 11, 0)},
	} {
		t.Run(name, func(t *testing.T) {
			reg := buildRegistry(t, order...)
			run(t, reg, Params{MaxDisp: 20, Gap: 1})

			var winner *registry.Detection
			for i := 0; i < 2; i++ {
				if reg.At(i).Centroid.X == 10 {
					winner = reg.At(i)
				}
			}
			succ := reg.At(2)
			assert.Equal(t, winner.TrackID, succ.TrackID, "closer predecessor must win")
			assert.InDelta(t, 1.0, succ.Displacement, 1e-9)
			assert.Len(t, reg.TrackIDs(), 2, "loser's track terminates at frame 1")
		})
	}
}

func TestEqualDistanceKeepsFirstLink(t *testing.T) {
	// Both predecessors are exactly 5 away; the earlier row in table
	// order keeps the link.
	reg := buildRegistry(t,
		det(1, 5, 0),
		det(1, 15, 0),
		det(2, 10, 0),
	)
	run(t, reg, Params{MaxDisp: 20, Gap: 1})
	assert.Equal(t, reg.At(0).TrackID, reg.At(2).TrackID)
}

func TestOutOfRangeTerminatesTrack(t *testing.T) {
	reg := buildRegistry(t,
		det(1, 0, 0),
		det(2, 100, 100),
	)
	run(t, reg, Params{MaxDisp: 10, Gap: 1})
	assert.NotEqual(t, reg.At(0).TrackID, reg.At(1).TrackID)
}

func TestIdempotence(t *testing.T) {
	reg := buildRegistry(t,
		det(1, 10, 10), det(1, 60, 60),
		det(2, 12, 12), det(2, 61, 58),
		det(3, 15, 13),
		det(5, 16, 14), // bridged over empty frame 4
	)
	p := Params{MaxDisp: 10, Gap: 2}
	run(t, reg, p)

	type link struct {
		track int
		disp  float64
	}
	first := make([]link, reg.Count())
	for i := range first {
		first[i] = link{reg.At(i).TrackID, reg.At(i).Displacement}
	}

	run(t, reg, p)
	for i := range first {
		assert.Equal(t, first[i].track, reg.At(i).TrackID, "row %d track", i)
		assert.Equal(t, first[i].disp, reg.At(i).Displacement, "row %d displacement", i)
	}
}

func TestNearestInFrame(t *testing.T) {
	reg := buildRegistry(t,
		det(1, 10, 10),
		det(1, 20, 20),
		det(2, 15, 15),
	)

	idx, dist, ok := NearestInFrame(reg, 1, geometry.Point2D{X: 11, Y: 11}, 100)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.InDelta(t, 1.414, dist, 0.01)

	_, _, ok = NearestInFrame(reg, 3, geometry.Point2D{X: 0, Y: 0}, 100)
	assert.False(t, ok, "empty frame yields no candidate")

	_, _, ok = NearestInFrame(reg, 1, geometry.Point2D{X: 500, Y: 500}, 10)
	assert.False(t, ok, "all candidates outside the ceiling")
}
