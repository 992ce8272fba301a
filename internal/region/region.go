// Package region provides the region geometry owned by detections and the
// measurement routines that turn a region plus an image plane into numbers.
package region

import (
	"math"

	"nuclei-tracker/pkg/geometry"
)

// Region is one segmented area of interest in one frame. The outline is a
// closed polygon in image coordinates, as produced by the detector's
// contour extraction. Downstream code never inspects the outline directly;
// it goes through Measure or the convenience accessors below.
type Region struct {
	Frame   int                  `json:"frame"`
	Outline []geometry.Point2D   `json:"outline"`
}

// New creates a region from a contour polygon.
func New(frame int, outline []geometry.Point2D) *Region {
	return &Region{Frame: frame, Outline: outline}
}

// Centroid returns the area-weighted centroid of the outline.
func (r *Region) Centroid() geometry.Point2D {
	return geometry.PolygonCentroid(r.Outline)
}

// Area returns the outline area in square pixels.
func (r *Region) Area() float64 {
	return geometry.PolygonArea(r.Outline)
}

// Bounds returns the axis-aligned bounding box of the outline.
func (r *Region) Bounds() geometry.RectInt {
	b := geometry.BoundingBox(r.Outline)
	return geometry.RectInt{
		X:      int(math.Floor(b.X)),
		Y:      int(math.Floor(b.Y)),
		Width:  int(math.Ceil(b.Width)) + 1,
		Height: int(math.Ceil(b.Height)) + 1,
	}
}

// Contains returns true if the image coordinate (x, y) lies inside the region.
func (r *Region) Contains(x, y float64) bool {
	return geometry.PointInPolygon(x, y, r.Outline)
}

// Shifted returns a deep copy of the region placed in another frame. The
// outline coordinates are unchanged; only the temporal position moves. Used
// by the extend correction to bridge a missed frame without re-detection.
func (r *Region) Shifted(frame int) *Region {
	out := make([]geometry.Point2D, len(r.Outline))
	copy(out, r.Outline)
	return &Region{Frame: frame, Outline: out}
}
