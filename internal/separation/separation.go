// Package separation decides whether the splits a generic watershed makes
// through touching nuclei should be kept.
//
// A true touching-nuclei boundary shows a local dip in the reference
// intensity and is a short, sharp line; an oversegmentation artifact
// usually fails one of the two. Each candidate boundary is therefore
// accepted only if the median reference intensity on the line is dim
// relative to its flanks AND the line is short relative to the minor axis
// of the larger of the two objects it separates.
package separation

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// lengthRatioLimit is the maximum boundary length relative to the minor
// axis of the larger separated object.
const lengthRatioLimit = 0.35

// Stats reports what a Split call did.
type Stats struct {
	// Boundaries is the number of candidate split lines the unconditional
	// watershed produced.
	Boundaries int
	// Accepted is how many of them were kept and burned into the mask.
	Accepted int
}

// Split applies a conditional watershed to a binary mask. reference is the
// matching pre-enhancement intensity plane. separate is the median-ratio
// threshold in [0,1]: 0 keeps every split unconditionally, 1 keeps none.
//
// The returned mask is a new Mat owned by the caller; the inputs are not
// modified.
func Split(mask, reference gocv.Mat, separate float64) (gocv.Mat, Stats, error) {
	if err := validateInputs(mask, reference, separate); err != nil {
		return gocv.Mat{}, Stats{}, err
	}

	out := mask.Clone()
	if separate >= 1 {
		return out, Stats{}, nil
	}

	markers, err := watershedLabels(mask)
	if err != nil {
		out.Close()
		return gocv.Mat{}, Stats{}, err
	}
	defer markers.Close()

	stats := evaluateBoundaries(&out, mask, reference, markers, separate)
	return out, stats, nil
}

func validateInputs(mask, reference gocv.Mat, separate float64) error {
	if separate < 0 || separate > 1 {
		return fmt.Errorf("separate threshold %g outside [0,1]", separate)
	}
	if mask.Empty() || mask.Type() != gocv.MatTypeCV8UC1 {
		return fmt.Errorf("mask must be a non-empty 8-bit single channel image")
	}
	if reference.Empty() || reference.Type() != gocv.MatTypeCV8UC1 {
		return fmt.Errorf("reference must be a non-empty 8-bit single channel image")
	}
	if mask.Rows() != reference.Rows() || mask.Cols() != reference.Cols() {
		return fmt.Errorf("mask %dx%d and reference %dx%d differ in size",
			mask.Cols(), mask.Rows(), reference.Cols(), reference.Rows())
	}
	return nil
}

// watershedLabels runs the unconditional split on a working copy of the
// mask and returns the label map: -1 on watershed lines, 1 for background,
// >=2 for separated objects.
func watershedLabels(mask gocv.Mat) (gocv.Mat, error) {
	dist := gocv.NewMat()
	defer dist.Close()
	distLabels := gocv.NewMat()
	defer distLabels.Close()
	gocv.DistanceTransform(mask, &dist, &distLabels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	_, maxVal, _, _ := gocv.MinMaxLoc(dist)
	if maxVal <= 0 {
		return gocv.Mat{}, fmt.Errorf("mask has no foreground pixels")
	}

	// Peaks of the distance map seed one marker per object core.
	fg := gocv.NewMat()
	defer fg.Close()
	gocv.Threshold(dist, &fg, maxVal*0.5, 255, gocv.ThresholdBinary)
	fg8 := gocv.NewMat()
	defer fg8.Close()
	fg.ConvertTo(&fg8, gocv.MatTypeCV8U)

	markers := gocv.NewMat()
	gocv.ConnectedComponents(fg8, &markers)

	// Shift labels so background is 1, then zero the uncertain band the
	// watershed will flood: inside the mask but outside any peak.
	for y := 0; y < markers.Rows(); y++ {
		for x := 0; x < markers.Cols(); x++ {
			v := markers.GetIntAt(y, x) + 1
			if mask.GetUCharAt(y, x) > 0 && fg8.GetUCharAt(y, x) == 0 {
				v = 0
			}
			markers.SetIntAt(y, x, v)
		}
	}

	// Flood over the inverted distance map so lines settle on the ridges
	// between object cores.
	landscape := gocv.NewMat()
	defer landscape.Close()
	gocv.Normalize(dist, &landscape, 0, 255, gocv.NormMinMax)
	land8 := gocv.NewMat()
	defer land8.Close()
	landscape.ConvertTo(&land8, gocv.MatTypeCV8U)
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(land8, &inverted)
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(inverted, &bgr, gocv.ColorGrayToBGR)

	gocv.Watershed(bgr, &markers)
	return markers, nil
}

// evaluateBoundaries finds the watershed lines that actually separate two
// objects inside the mask, applies the acceptance test to each, and burns
// accepted lines (as background) into out. With separate == 0 every line
// is accepted without measurement.
func evaluateBoundaries(out *gocv.Mat, mask, reference, markers gocv.Mat, separate float64) Stats {
	rows, cols := mask.Rows(), mask.Cols()

	// Candidate line pixels: watershed boundary inside the mask touching
	// two distinct object labels. Mask-edge boundaries only touch one.
	lineMask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	defer lineMask.Close()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if mask.GetUCharAt(y, x) == 0 || markers.GetIntAt(y, x) != -1 {
				continue
			}
			if len(neighborLabels(markers, mask, x, y, 1)) >= 2 {
				lineMask.SetUCharAt(y, x, 255)
			}
		}
	}

	lineLabels := gocv.NewMat()
	defer lineLabels.Close()
	nLines := gocv.ConnectedComponents(lineMask, &lineLabels)

	var stats Stats
	for line := 1; line < nLines; line++ {
		pixels := labelPixels(lineLabels, line)
		if len(pixels) == 0 {
			continue
		}
		stats.Boundaries++
		if separate > 0 && !acceptBoundary(mask, reference, markers, pixels, separate) {
			continue
		}
		burnLine(out, mask, markers, pixels)
		stats.Accepted++
	}
	return stats
}

// burnLine writes an accepted boundary into the output mask as background.
// Watershed pixels adjacent to the line (its end caps at the object edge,
// which touch only one label) are burned too, so the cut always severs the
// object.
func burnLine(out *gocv.Mat, mask, markers gocv.Mat, line []image.Point) {
	for _, p := range line {
		out.SetUCharAt(p.Y, p.X, 0)
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				x, y := p.X+dx, p.Y+dy
				if x < 0 || y < 0 || x >= mask.Cols() || y >= mask.Rows() {
					continue
				}
				if mask.GetUCharAt(y, x) > 0 && markers.GetIntAt(y, x) == -1 {
					out.SetUCharAt(y, x, 0)
				}
			}
		}
	}
}

// acceptBoundary applies the two-part test to one candidate line.
func acceptBoundary(mask, reference, markers gocv.Mat, line []image.Point, separate float64) bool {
	// The two objects this line separates: the most frequent labels in its
	// immediate neighborhood.
	counts := make(map[int]int)
	for _, p := range line {
		for _, l := range neighborLabels(markers, mask, p.X, p.Y, 1) {
			counts[l]++
		}
	}
	a, b, ok := topTwoLabels(counts)
	if !ok {
		return false
	}

	// Median intensity on the line vs on its two flanks, sampled in a
	// narrow band so a local dip is not averaged away.
	var onLine, flankA, flankB []float64
	for _, p := range line {
		onLine = append(onLine, float64(reference.GetUCharAt(p.Y, p.X)))
		for dy := -2; dy <= 2; dy++ {
			for dx := -2; dx <= 2; dx++ {
				x, y := p.X+dx, p.Y+dy
				if x < 0 || y < 0 || x >= mask.Cols() || y >= mask.Rows() {
					continue
				}
				if mask.GetUCharAt(y, x) == 0 {
					continue
				}
				switch markers.GetIntAt(y, x) {
				case int32(a):
					flankA = append(flankA, float64(reference.GetUCharAt(y, x)))
				case int32(b):
					flankB = append(flankB, float64(reference.GetUCharAt(y, x)))
				}
			}
		}
	}
	if len(flankA) == 0 || len(flankB) == 0 {
		return false
	}
	flank := (median(flankA) + median(flankB)) / 2
	if flank <= 0 {
		return false
	}
	if median(onLine)/flank >= separate {
		return false
	}

	// Length test against the minor axis of the larger object.
	pa := labelPixels(markers, a)
	pb := labelPixels(markers, b)
	larger := pa
	if len(pb) > len(pa) {
		larger = pb
	}
	minor := pixelMinorAxis(larger)
	if minor <= 0 {
		return false
	}
	return float64(len(line))/minor < lengthRatioLimit
}

// neighborLabels returns the distinct object labels (>= 2) within radius r
// of (x, y), restricted to the mask foreground.
func neighborLabels(markers, mask gocv.Mat, x, y, r int) []int {
	seen := make(map[int]struct{})
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= markers.Cols() || ny >= markers.Rows() {
				continue
			}
			if mask.GetUCharAt(ny, nx) == 0 {
				continue
			}
			if l := int(markers.GetIntAt(ny, nx)); l >= 2 {
				seen[l] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func topTwoLabels(counts map[int]int) (a, b int, ok bool) {
	type lc struct{ label, n int }
	var all []lc
	for l, n := range counts {
		all = append(all, lc{l, n})
	}
	if len(all) < 2 {
		return 0, 0, false
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].n != all[j].n {
			return all[i].n > all[j].n
		}
		return all[i].label < all[j].label
	})
	return all[0].label, all[1].label, true
}

func labelPixels(labels gocv.Mat, want int) []image.Point {
	var out []image.Point
	for y := 0; y < labels.Rows(); y++ {
		for x := 0; x < labels.Cols(); x++ {
			if int(labels.GetIntAt(y, x)) == want {
				out = append(out, image.Pt(x, y))
			}
		}
	}
	return out
}

// pixelMinorAxis is the equivalent-ellipse minor axis of a pixel set,
// from the eigenvalues of its 2x2 covariance.
func pixelMinorAxis(pixels []image.Point) float64 {
	n := float64(len(pixels))
	if n == 0 {
		return 0
	}
	var mx, my float64
	for _, p := range pixels {
		mx += float64(p.X)
		my += float64(p.Y)
	}
	mx /= n
	my /= n
	var mu20, mu02, mu11 float64
	for _, p := range pixels {
		dx := float64(p.X) - mx
		dy := float64(p.Y) - my
		mu20 += dx * dx
		mu02 += dy * dy
		mu11 += dx * dy
	}
	sym := mat.NewSymDense(2, []float64{mu20 / n, mu11 / n, mu11 / n, mu02 / n})
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return math.Sqrt(n)
	}
	vals := eig.Values(nil)
	lo := math.Min(vals[0], vals[1])
	if lo < 0 {
		lo = 0
	}
	return 4 * math.Sqrt(lo)
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
