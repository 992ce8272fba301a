package resample

import (
	"fmt"

	"nuclei-tracker/internal/region"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/internal/stack"
)

// Channels re-measures every detection's mean intensity against each
// channel plane of the stack and fills ChannelMeans on every row. Track
// ids, displacements and frames are untouched: detections own their
// geometry, so the sweep never loses context.
//
// The pass is safe to re-run from scratch at any time.
func Channels(reg *registry.Registry, st *stack.Stack) error {
	if err := reg.Check(); err != nil {
		return err
	}
	channels := st.Channels()
	for i := 0; i < reg.Count(); i++ {
		d := reg.At(i)
		if len(d.ChannelMeans) != channels {
			d.ChannelMeans = make([]float64, channels)
		}
		for c := 0; c < channels; c++ {
			plane, err := st.Plane(c, d.Frame)
			if err != nil {
				return fmt.Errorf("resample row %d: %w", i, err)
			}
			mean, err := region.MeanIntensity(d.Region, plane)
			if err != nil {
				return fmt.Errorf("resample row %d channel %d: %w", i, c, err)
			}
			d.ChannelMeans[c] = mean
		}
	}
	return nil
}
