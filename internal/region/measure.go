package region

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"nuclei-tracker/pkg/geometry"
)

// Measurement holds everything the measurement provider reports for one
// region against one image plane.
type Measurement struct {
	Area      float64
	Centroid  geometry.Point2D
	MajorAxis float64
	MinorAxis float64
	Mean      float64
	Median    float64
}

// Measure rasterizes the region outline into a mask and measures it against
// the given single-channel 8-bit plane. The centroid and axes come from the
// rasterized pixels (not the polygon vertices), matching what a pixel-based
// measurement tool reports.
func Measure(r *Region, plane gocv.Mat) (Measurement, error) {
	if plane.Empty() {
		return Measurement{}, fmt.Errorf("empty plane")
	}
	if plane.Type() != gocv.MatTypeCV8UC1 {
		return Measurement{}, fmt.Errorf("plane must be 8-bit single channel, got type %d", int(plane.Type()))
	}
	if len(r.Outline) < 3 {
		return Measurement{}, fmt.Errorf("region outline has %d points, need at least 3", len(r.Outline))
	}

	bounds := r.Bounds()
	roi := image.Rect(bounds.X, bounds.Y, bounds.X+bounds.Width, bounds.Y+bounds.Height)
	roi = roi.Intersect(image.Rect(0, 0, plane.Cols(), plane.Rows()))
	if roi.Empty() {
		return Measurement{}, fmt.Errorf("region at frame %d lies outside the plane", r.Frame)
	}

	mask := rasterize(r, roi)
	defer mask.Close()

	planeROI := plane.Region(roi)
	defer planeROI.Close()

	var (
		values []float64
		sumX   float64
		sumY   float64
		count  float64
	)
	for y := 0; y < mask.Rows(); y++ {
		for x := 0; x < mask.Cols(); x++ {
			if mask.GetUCharAt(y, x) == 0 {
				continue
			}
			values = append(values, float64(planeROI.GetUCharAt(y, x)))
			sumX += float64(roi.Min.X + x)
			sumY += float64(roi.Min.Y + y)
			count++
		}
	}
	if count == 0 {
		return Measurement{}, fmt.Errorf("region at frame %d rasterized to zero pixels", r.Frame)
	}

	m := Measurement{
		Area:     count,
		Centroid: geometry.Point2D{X: sumX / count, Y: sumY / count},
		Mean:     meanOf(values),
		Median:   medianOf(values),
	}
	m.MajorAxis, m.MinorAxis = ellipseAxes(mask, roi, m.Centroid, count)
	return m, nil
}

// MeanIntensity is the cheap path used by the channel resampling sweep: the
// mean of the plane under the region mask, nothing else.
func MeanIntensity(r *Region, plane gocv.Mat) (float64, error) {
	if plane.Empty() || plane.Type() != gocv.MatTypeCV8UC1 {
		return 0, fmt.Errorf("plane must be a non-empty 8-bit single channel image")
	}
	bounds := r.Bounds()
	roi := image.Rect(bounds.X, bounds.Y, bounds.X+bounds.Width, bounds.Y+bounds.Height)
	roi = roi.Intersect(image.Rect(0, 0, plane.Cols(), plane.Rows()))
	if roi.Empty() {
		return 0, fmt.Errorf("region at frame %d lies outside the plane", r.Frame)
	}

	mask := rasterize(r, roi)
	defer mask.Close()
	planeROI := plane.Region(roi)
	defer planeROI.Close()

	if gocv.CountNonZero(mask) == 0 {
		return 0, fmt.Errorf("region at frame %d rasterized to zero pixels", r.Frame)
	}
	return planeROI.MeanWithMask(mask).Val1, nil
}

// rasterize fills the region outline into an 8-bit mask covering roi.
func rasterize(r *Region, roi image.Rectangle) gocv.Mat {
	mask := gocv.NewMatWithSize(roi.Dy(), roi.Dx(), gocv.MatTypeCV8UC1)
	pts := make([]image.Point, len(r.Outline))
	for i, p := range r.Outline {
		pts[i] = image.Pt(int(math.Round(p.X))-roi.Min.X, int(math.Round(p.Y))-roi.Min.Y)
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.FillPoly(&mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return mask
}

// ellipseAxes derives the lengths of the fitted ellipse axes from the
// second-order central moments of the mask pixels. The 2x2 covariance is
// diagonalized with gonum; axis length = 4*sqrt(eigenvalue), the standard
// equivalent-ellipse convention.
func ellipseAxes(mask gocv.Mat, roi image.Rectangle, centroid geometry.Point2D, count float64) (major, minor float64) {
	var mu20, mu02, mu11 float64
	for y := 0; y < mask.Rows(); y++ {
		for x := 0; x < mask.Cols(); x++ {
			if mask.GetUCharAt(y, x) == 0 {
				continue
			}
			dx := float64(roi.Min.X+x) - centroid.X
			dy := float64(roi.Min.Y+y) - centroid.Y
			mu20 += dx * dx
			mu02 += dy * dy
			mu11 += dx * dy
		}
	}
	mu20 /= count
	mu02 /= count
	mu11 /= count

	sym := mat.NewSymDense(2, []float64{mu20, mu11, mu11, mu02})
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		side := math.Sqrt(count)
		return side, side
	}
	vals := eig.Values(nil)
	lo, hi := vals[0], vals[1]
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi < 0 {
		hi = 0
	}
	return 4 * math.Sqrt(hi), 4 * math.Sqrt(lo)
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
