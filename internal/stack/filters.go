package stack

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// EnhanceLocalContrast applies CLAHE local-contrast enhancement. The
// caller owns the result.
func EnhanceLocalContrast(src gocv.Mat, clipLimit float64, tiles int) gocv.Mat {
	if tiles < 1 {
		tiles = 8
	}
	clahe := gocv.NewCLAHEWithParams(clipLimit, image.Pt(tiles, tiles))
	defer clahe.Close()
	out := gocv.NewMat()
	clahe.Apply(src, &out)
	return out
}

// GaussianSmooth blurs with the given sigma, choosing the kernel size to
// cover three standard deviations. The caller owns the result.
func GaussianSmooth(src gocv.Mat, sigma float64) gocv.Mat {
	k := 2*int(math.Ceil(3*sigma)) + 1
	out := gocv.NewMat()
	gocv.GaussianBlur(src, &out, image.Pt(k, k), sigma, sigma, gocv.BorderDefault)
	return out
}
