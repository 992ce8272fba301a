package separation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// twoLobeFixture builds a hand-labelled split of two 21x21 squares joined
// by a 3-wide, 5-tall bridge, with the watershed line down the middle of
// the bridge. Returns mask, reference and markers; lineValue is the
// reference intensity on the line itself.
func twoLobeFixture(lineValue uint8) (mask, reference, markers gocv.Mat) {
	const rows, cols = 21, 45
	mask = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	reference = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	markers = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32S)

	inMask := func(x, y int) bool {
		if x <= 20 || x >= 24 {
			return true
		}
		return y >= 8 && y <= 12 // bridge
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if !inMask(x, y) {
				markers.SetIntAt(y, x, 1) // background
				continue
			}
			mask.SetUCharAt(y, x, 255)
			switch {
			case x < 22:
				markers.SetIntAt(y, x, 2)
				reference.SetUCharAt(y, x, 100)
			case x == 22:
				markers.SetIntAt(y, x, -1) // watershed line
				reference.SetUCharAt(y, x, lineValue)
			default:
				markers.SetIntAt(y, x, 3)
				reference.SetUCharAt(y, x, 100)
			}
		}
	}
	return mask, reference, markers
}

func countLinePixels(out gocv.Mat) int {
	burned := 0
	for y := 8; y <= 12; y++ {
		if out.GetUCharAt(y, 22) == 0 {
			burned++
		}
	}
	return burned
}

func TestBoundaryWithIntensityDipIsAccepted(t *testing.T) {
	mask, reference, markers := twoLobeFixture(20)
	defer mask.Close()
	defer reference.Close()
	defer markers.Close()

	out := mask.Clone()
	defer out.Close()
	stats := evaluateBoundaries(&out, mask, reference, markers, 0.5)

	assert.Equal(t, 1, stats.Boundaries)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 5, countLinePixels(out), "accepted line must be burned into the mask")
}

func TestBoundaryWithoutDipIsRejected(t *testing.T) {
	// Same geometry, but the reference shows no dip on the line: the
	// median ratio is 1 and the split is discarded.
	mask, reference, markers := twoLobeFixture(100)
	defer mask.Close()
	defer reference.Close()
	defer markers.Close()

	out := mask.Clone()
	defer out.Close()
	stats := evaluateBoundaries(&out, mask, reference, markers, 0.5)

	assert.Equal(t, 1, stats.Boundaries)
	assert.Equal(t, 0, stats.Accepted)
	assert.Equal(t, 0, countLinePixels(out), "rejected line must leave the mask intact")
}

// longLineFixture is a solid 45x21 block split top to bottom: the line is
// long relative to the halves' minor axes, so even a perfect intensity
// dip must not be accepted.
func longLineFixture() (mask, reference, markers gocv.Mat) {
	const rows, cols = 21, 45
	mask = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	reference = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	markers = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32S)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			mask.SetUCharAt(y, x, 255)
			switch {
			case x < 22:
				markers.SetIntAt(y, x, 2)
				reference.SetUCharAt(y, x, 100)
			case x == 22:
				markers.SetIntAt(y, x, -1)
				reference.SetUCharAt(y, x, 20)
			default:
				markers.SetIntAt(y, x, 3)
				reference.SetUCharAt(y, x, 100)
			}
		}
	}
	return mask, reference, markers
}

func TestLongBoundaryIsRejected(t *testing.T) {
	mask, reference, markers := longLineFixture()
	defer mask.Close()
	defer reference.Close()
	defer markers.Close()

	out := mask.Clone()
	defer out.Close()
	stats := evaluateBoundaries(&out, mask, reference, markers, 0.5)

	assert.Equal(t, 1, stats.Boundaries)
	assert.Equal(t, 0, stats.Accepted)
}

func TestSeparateZeroAcceptsUnconditionally(t *testing.T) {
	// The long line fails both measurement tests, but separate == 0
	// bypasses them entirely.
	mask, reference, markers := longLineFixture()
	defer mask.Close()
	defer reference.Close()
	defer markers.Close()

	out := mask.Clone()
	defer out.Close()
	stats := evaluateBoundaries(&out, mask, reference, markers, 0)

	assert.Equal(t, 1, stats.Boundaries)
	assert.Equal(t, 1, stats.Accepted)
}

func TestSeparateOneNeverSplits(t *testing.T) {
	mask, reference, _ := twoLobeFixture(20)
	defer mask.Close()
	defer reference.Close()

	out, stats, err := Split(mask, reference, 1)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, Stats{}, stats)
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(mask, out, &diff)
	assert.Equal(t, 0, gocv.CountNonZero(diff), "separate=1 must return the mask untouched")
}

func TestSplitValidation(t *testing.T) {
	mask, reference, _ := twoLobeFixture(20)
	defer mask.Close()
	defer reference.Close()

	_, _, err := Split(mask, reference, -0.1)
	assert.Error(t, err)
	_, _, err = Split(mask, reference, 1.5)
	assert.Error(t, err)

	small := gocv.NewMatWithSize(5, 5, gocv.MatTypeCV8UC1)
	defer small.Close()
	_, _, err = Split(mask, small, 0.5)
	assert.Error(t, err, "mask and reference sizes must match")
}

func TestSplitSeversTouchingLobes(t *testing.T) {
	// Two overlapping discs with a narrow waist; the unconditional split
	// must cut them into two connected components.
	const rows, cols = 24, 48
	mask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	defer mask.Close()
	reference := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	defer reference.Close()

	centers := []struct{ cx, cy int }{{14, 12}, {29, 12}}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			for _, c := range centers {
				dx, dy := x-c.cx, y-c.cy
				if dx*dx+dy*dy <= 64 {
					mask.SetUCharAt(y, x, 255)
					reference.SetUCharAt(y, x, 100)
				}
			}
		}
	}

	out, stats, err := Split(mask, reference, 0)
	require.NoError(t, err)
	defer out.Close()

	assert.GreaterOrEqual(t, stats.Boundaries, 1)
	assert.Equal(t, stats.Boundaries, stats.Accepted)

	labels := gocv.NewMat()
	defer labels.Close()
	n := gocv.ConnectedComponents(out, &labels)
	assert.Equal(t, 3, n, "expected background plus two lobes")
}
