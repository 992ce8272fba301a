package region

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nuclei-tracker/pkg/geometry"
)

func square() *Region {
	return New(4, []geometry.Point2D{
		{X: 2, Y: 2}, {X: 8, Y: 2}, {X: 8, Y: 8}, {X: 2, Y: 8},
	})
}

func TestRegionGeometry(t *testing.T) {
	r := square()
	assert.Equal(t, 4, r.Frame)
	assert.InDelta(t, 36, r.Area(), 1e-9)

	c := r.Centroid()
	assert.InDelta(t, 5, c.X, 1e-9)
	assert.InDelta(t, 5, c.Y, 1e-9)

	b := r.Bounds()
	assert.Equal(t, geometry.RectInt{X: 2, Y: 2, Width: 7, Height: 7}, b)

	assert.True(t, r.Contains(5, 5))
	assert.False(t, r.Contains(9, 5))
}

func TestShiftedIsDeepCopy(t *testing.T) {
	r := square()
	s := r.Shifted(5)

	assert.Equal(t, 5, s.Frame)
	assert.Equal(t, r.Outline, s.Outline)

	s.Outline[0].X = 99
	assert.Equal(t, 2.0, r.Outline[0].X, "shifted outline must not alias the original")
}
