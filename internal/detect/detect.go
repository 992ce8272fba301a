// Package detect implements the classical nucleus detector: condition the
// plane, threshold, conditionally separate touching objects, and extract
// region outlines above a minimum area.
package detect

import (
	"fmt"

	"gocv.io/x/gocv"

	"nuclei-tracker/internal/region"
	"nuclei-tracker/internal/separation"
	"nuclei-tracker/internal/stack"
	"nuclei-tracker/pkg/geometry"
)

// Params configures the detector.
type Params struct {
	// Threshold is the fixed binary threshold; 0 selects Otsu.
	Threshold int
	// MinArea discards regions smaller than this many pixels.
	MinArea float64
	// Separate is the conditional-separation threshold in [0,1]:
	// 0 splits unconditionally, 1 never splits.
	Separate float64
	// ClipLimit enables CLAHE local-contrast enhancement when > 0.
	ClipLimit float64
	// Tiles is the CLAHE tile grid size.
	Tiles int
	// BlurSigma enables gaussian smoothing when > 0.
	BlurSigma float64
}

// DefaultParams returns detection parameters tuned for fluorescently
// labelled nuclei at typical magnifications.
func DefaultParams() Params {
	return Params{
		Threshold: 0, // Otsu
		MinArea:   50,
		Separate:  0.7,
		ClipLimit: 2.0,
		Tiles:     8,
		BlurSigma: 1.5,
	}
}

// Validate fails fast on bad configuration, before any batch pass.
func (p Params) Validate() error {
	if p.Threshold < 0 || p.Threshold > 255 {
		return fmt.Errorf("threshold %d outside [0,255]", p.Threshold)
	}
	if p.MinArea < 0 {
		return fmt.Errorf("minimum area must not be negative, got %g", p.MinArea)
	}
	if p.Separate < 0 || p.Separate > 1 {
		return fmt.Errorf("separate threshold %g outside [0,1]", p.Separate)
	}
	if p.BlurSigma < 0 {
		return fmt.Errorf("blur sigma must not be negative, got %g", p.BlurSigma)
	}
	return nil
}

// Detector finds nucleus regions in conditioned planes.
type Detector struct {
	params Params
}

// New creates a detector, validating parameters up front.
func New(p Params) (*Detector, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection parameters: %w", err)
	}
	return &Detector{params: p}, nil
}

// DetectFrame detects regions in one reference plane. Regions come back in
// contour scan order, which is deterministic for a given plane.
func (d *Detector) DetectFrame(reference gocv.Mat, frame int) ([]*region.Region, error) {
	if reference.Empty() || reference.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("frame %d: reference must be a non-empty 8-bit single channel image", frame)
	}

	conditioned := d.condition(reference)
	defer conditioned.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	if d.params.Threshold == 0 {
		gocv.Threshold(conditioned, &mask, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	} else {
		gocv.Threshold(conditioned, &mask, float32(d.params.Threshold), 255, gocv.ThresholdBinary)
	}

	// The separation heuristic sees the pre-enhancement reference, not the
	// conditioned plane: enhancement flattens exactly the intensity dips
	// it relies on.
	split, _, err := separation.Split(mask, reference, d.params.Separate)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame, err)
	}
	defer split.Close()

	return d.extractRegions(split, frame), nil
}

// Run detects every frame of a channel. The result is indexed by frame-1.
func (d *Detector) Run(st *stack.Stack, channel int) ([][]*region.Region, error) {
	out := make([][]*region.Region, st.Frames())
	for f := 1; f <= st.Frames(); f++ {
		plane, err := st.Plane(channel, f)
		if err != nil {
			return nil, err
		}
		regions, err := d.DetectFrame(plane, f)
		if err != nil {
			return nil, err
		}
		out[f-1] = regions
	}
	return out, nil
}

func (d *Detector) condition(reference gocv.Mat) gocv.Mat {
	conditioned := reference.Clone()
	if d.params.ClipLimit > 0 {
		enhanced := stack.EnhanceLocalContrast(conditioned, d.params.ClipLimit, d.params.Tiles)
		conditioned.Close()
		conditioned = enhanced
	}
	if d.params.BlurSigma > 0 {
		blurred := stack.GaussianSmooth(conditioned, d.params.BlurSigma)
		conditioned.Close()
		conditioned = blurred
	}
	return conditioned
}

func (d *Detector) extractRegions(mask gocv.Mat, frame int) []*region.Region {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []*region.Region
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) < d.params.MinArea {
			continue
		}
		pts := contour.ToPoints()
		if len(pts) < 3 {
			continue
		}
		outline := make([]geometry.Point2D, len(pts))
		for j, p := range pts {
			outline[j] = geometry.Point2D{X: float64(p.X), Y: float64(p.Y)}
		}
		regions = append(regions, region.New(frame, outline))
	}
	return regions
}
