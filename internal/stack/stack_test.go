package stack

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeGrayPNG writes a 8x6 grayscale frame filled with value.
func writeGrayPNG(t *testing.T, path string, value uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// channelDir writes one directory with a frame per value, named so that
// file order matches the slice order.
func channelDir(t *testing.T, values ...uint8) string {
	t.Helper()
	dir := t.TempDir()
	for i, v := range values {
		writeGrayPNG(t, filepath.Join(dir, "frame_"+string(rune('a'+i))+".png"), v)
	}
	return dir
}

func TestLoadDirs(t *testing.T) {
	ch0 := channelDir(t, 10, 20, 30)
	ch1 := channelDir(t, 40, 50, 60)

	s, err := LoadDirs([]string{ch0, ch1})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.Frames())
	assert.Equal(t, 2, s.Channels())

	p, err := s.Plane(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, p.Rows())
	assert.Equal(t, 8, p.Cols())
	assert.EqualValues(t, 50, p.GetUCharAt(3, 4))
}

func TestLoadDirsRejectsFrameCountMismatch(t *testing.T) {
	ch0 := channelDir(t, 10, 20, 30)
	ch1 := channelDir(t, 40, 50)

	_, err := LoadDirs([]string{ch0, ch1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 1 has 2 frames")
}

func TestLoadDirsRejectsEmpty(t *testing.T) {
	_, err := LoadDirs(nil)
	assert.Error(t, err)

	_, err = LoadDirs([]string{t.TempDir()})
	assert.Error(t, err, "a directory without image files has no frames")
}

func TestPlaneRange(t *testing.T) {
	s, err := LoadDirs([]string{channelDir(t, 10, 20)})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Plane(1, 1)
	assert.Error(t, err)
	_, err = s.Plane(0, 0)
	assert.Error(t, err)
	_, err = s.Plane(0, 3)
	assert.Error(t, err)
}

func TestTemporalMax(t *testing.T) {
	s, err := LoadDirs([]string{channelDir(t, 10, 90, 30)})
	require.NoError(t, err)
	defer s.Close()

	m, err := s.TemporalMax(0, 1, 2)
	require.NoError(t, err)
	defer m.Close()
	assert.EqualValues(t, 90, m.GetUCharAt(0, 0))

	// Window past the end clamps to the last frame.
	m2, err := s.TemporalMax(0, 3, 5)
	require.NoError(t, err)
	defer m2.Close()
	assert.EqualValues(t, 30, m2.GetUCharAt(0, 0))

	_, err = s.TemporalMax(0, 1, 0)
	assert.Error(t, err)
}
