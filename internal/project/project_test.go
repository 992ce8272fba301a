package project

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuclei-tracker/internal/linkage"
	"nuclei-tracker/internal/region"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/pkg/geometry"
)

func sampleRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	outlines := [][]geometry.Point2D{
		{{X: 1, Y: 1}, {X: 5, Y: 1}, {X: 5, Y: 5}, {X: 1, Y: 5}},
		{{X: 10, Y: 2}, {X: 14, Y: 2}, {X: 12, Y: 8}},
	}
	for i, outline := range outlines {
		frame := i + 1
		r := region.New(frame, outline)
		require.NoError(t, reg.Append(&registry.Detection{
			Frame:        frame,
			Centroid:     r.Centroid(),
			Area:         r.Area(),
			MajorAxis:    5.5,
			MinorAxis:    3.25,
			ChannelMeans: []float64{100.5, 42},
			TrackID:      i + 1,
			Displacement: float64(i) * 1.5,
			Region:       r,
		}))
	}
	return reg
}

func newTestRun(t *testing.T) *Run {
	t.Helper()
	run, err := NewRun(t.TempDir(), "exp1")
	require.NoError(t, err)
	return run
}

func TestPath(t *testing.T) {
	run := newTestRun(t)
	assert.Equal(t, run.Dir+string(os.PathSeparator)+"exp1_tracks.csv", run.Path("tracks.csv"))
}

func TestManifestRoundTrip(t *testing.T) {
	run := newTestRun(t)
	run.Frames = 12
	run.Channels = 2
	run.Linkage = linkage.DefaultParams()
	run.Separate = 0.7
	require.NoError(t, run.SaveManifest())

	loaded, err := LoadManifest(run.Path("run.json"))
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, 12, loaded.Frames)
	assert.Equal(t, run.Linkage, loaded.Linkage)
	assert.Equal(t, 0.7, loaded.Separate)
}

func TestRegistryRoundTrip(t *testing.T) {
	run := newTestRun(t)
	reg := sampleRegistry(t)

	require.NoError(t, run.SaveRegistry(reg, 2))
	require.NoError(t, run.SaveRegions(reg))

	loaded, err := LoadRegistry(run.Path("tracks.csv"), run.Path("regions.zip"))
	require.NoError(t, err)
	require.Equal(t, reg.Count(), loaded.Count())

	for i := 0; i < reg.Count(); i++ {
		want, got := reg.At(i), loaded.At(i)
		assert.Equal(t, want.Frame, got.Frame)
		assert.InDelta(t, want.Centroid.X, got.Centroid.X, 1e-9)
		assert.InDelta(t, want.Centroid.Y, got.Centroid.Y, 1e-9)
		assert.InDelta(t, want.Area, got.Area, 1e-9)
		assert.Equal(t, want.TrackID, got.TrackID)
		assert.InDelta(t, want.Displacement, got.Displacement, 1e-9)
		assert.Equal(t, want.ChannelMeans, got.ChannelMeans)
		require.NotNil(t, got.Region)
		assert.Equal(t, want.Region.Frame, got.Region.Frame)
		assert.Equal(t, want.Region.Outline, got.Region.Outline)
	}
}

func TestLoadRegistryDetectsRowRegionMismatch(t *testing.T) {
	run := newTestRun(t)
	reg := sampleRegistry(t)
	require.NoError(t, run.SaveRegistry(reg, 2))
	require.NoError(t, run.SaveRegions(reg))

	// Drop one CSV row; the archive still holds both regions.
	trimmed := registry.New()
	require.NoError(t, trimmed.Append(reg.At(0)))
	require.NoError(t, run.SaveRegistry(trimmed, 2))

	_, err := LoadRegistry(run.Path("tracks.csv"), run.Path("regions.zip"))
	var cerr *registry.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Rows)
	assert.Equal(t, 2, cerr.Regions)
}
