// Package overlay renders color-coded track markers onto frames for
// visual QC of linkage and corrections.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"nuclei-tracker/internal/registry"
)

// TrackColor returns a deterministic, well-separated color for a track id
// by stepping the hue around the wheel by the golden angle.
func TrackColor(trackID int) color.RGBA {
	hue := math.Mod(float64(trackID)*137.508, 360)
	r, g, b := hsvToRGB(hue, 0.85, 1.0)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// DrawFrame draws every track visible at the given frame onto img (BGR):
// the region outline and track id at the current detection, plus a trail
// over the previous trail frames.
func DrawFrame(img *gocv.Mat, reg *registry.Registry, frame, trail int) error {
	if img.Empty() || img.Channels() != 3 {
		return fmt.Errorf("overlay target must be a 3-channel image")
	}

	for _, id := range reg.TrackIDs() {
		rows := reg.TrackRows(id)
		sort.Slice(rows, func(i, j int) bool {
			return reg.At(rows[i]).Frame < reg.At(rows[j]).Frame
		})
		c := TrackColor(id)

		// Trail: connect centroids of the recent frames.
		var prev *registry.Detection
		for _, i := range rows {
			d := reg.At(i)
			if d.Frame > frame || d.Frame < frame-trail {
				continue
			}
			if prev != nil {
				gocv.Line(img, toPt(prev.Centroid.X, prev.Centroid.Y), toPt(d.Centroid.X, d.Centroid.Y), c, 1)
			}
			prev = d
		}

		// Current detection: outline and label.
		for _, i := range rows {
			d := reg.At(i)
			if d.Frame != frame {
				continue
			}
			pts := make([]image.Point, len(d.Region.Outline))
			for j, p := range d.Region.Outline {
				pts[j] = toPt(p.X, p.Y)
			}
			pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
			gocv.Polylines(img, pv, true, c, 1)
			pv.Close()
			gocv.PutText(img, fmt.Sprintf("%d", id),
				toPt(d.Centroid.X+4, d.Centroid.Y-4),
				gocv.FontHersheyPlain, 0.9, c, 1)
		}
	}
	return nil
}

func toPt(x, y float64) image.Point {
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

// hsvToRGB converts hue (degrees), saturation and value in [0,1] to 8-bit
// RGB.
func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255)
}
