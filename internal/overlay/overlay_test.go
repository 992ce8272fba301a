package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackColorDeterministic(t *testing.T) {
	for id := 1; id <= 20; id++ {
		assert.Equal(t, TrackColor(id), TrackColor(id))
	}
}

func TestTrackColorsDistinct(t *testing.T) {
	seen := make(map[[3]uint8]int)
	for id := 1; id <= 20; id++ {
		c := TrackColor(id)
		key := [3]uint8{c.R, c.G, c.B}
		prev, dup := seen[key]
		assert.False(t, dup, "track %d repeats the color of track %d", id, prev)
		seen[key] = id
		assert.EqualValues(t, 255, c.A)
	}
}
