package main

import (
	"fmt"

	"gocv.io/x/gocv"

	"nuclei-tracker/internal/overlay"
	"nuclei-tracker/internal/project"
	"nuclei-tracker/internal/region"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/internal/stack"
)

// measureAndIngest measures each detected region against the reference
// plane and appends the rows for one frame. The region list and the
// measurement list stay index-correlated through the registry's
// consistency check.
func measureAndIngest(reg *registry.Registry, st *stack.Stack, regions []*region.Region, frame int) error {
	plane, err := st.Plane(0, frame)
	if err != nil {
		return err
	}
	measurements := make([]region.Measurement, 0, len(regions))
	for _, r := range regions {
		m, err := region.Measure(r, plane)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		measurements = append(measurements, m)
	}
	return reg.IngestFrame(frame, regions, measurements)
}

// writeOverlays renders color-coded tracks over every reference frame.
func writeOverlays(run *project.Run, reg *registry.Registry, st *stack.Stack) error {
	const trail = 10
	for f := 1; f <= st.Frames(); f++ {
		plane, err := st.Plane(0, f)
		if err != nil {
			return err
		}
		bgr := gocv.NewMat()
		gocv.CvtColor(plane, &bgr, gocv.ColorGrayToBGR)
		if err := overlay.DrawFrame(&bgr, reg, f, trail); err != nil {
			bgr.Close()
			return err
		}
		name := run.Path(fmt.Sprintf("overlay_%04d.png", f))
		if ok := gocv.IMWrite(name, bgr); !ok {
			bgr.Close()
			return fmt.Errorf("failed to write %s", name)
		}
		bgr.Close()
	}
	return nil
}
