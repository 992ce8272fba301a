// Package stack provides time-lapse image stack loading and the generic
// pixel conditioning applied before detection. Detection and measurement
// only ever see the planes this package hands out.
package stack

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	_ "golang.org/x/image/tiff"
)

// Stack holds one grayscale plane per channel per frame. Frames are
// 1-based throughout, matching the registry.
type Stack struct {
	planes [][]gocv.Mat // [channel][frame-1]
}

// LoadDirs loads one channel per directory. Each directory must contain
// the same number of image files; files are ordered by name, one frame
// each. Supported formats: TIFF, PNG, JPEG.
func LoadDirs(dirs []string) (*Stack, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no channel directories given")
	}
	s := &Stack{}
	frames := -1
	for c, dir := range dirs {
		files, err := listImages(dir)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
		if frames == -1 {
			frames = len(files)
		} else if len(files) != frames {
			s.Close()
			return nil, fmt.Errorf("channel %d has %d frames, channel 0 has %d", c, len(files), frames)
		}
		var planes []gocv.Mat
		for _, f := range files {
			m, err := loadGray(f)
			if err != nil {
				s.Close()
				closeAll(planes)
				return nil, fmt.Errorf("channel %d: %w", c, err)
			}
			planes = append(planes, m)
		}
		s.planes = append(s.planes, planes)
	}
	if frames == 0 {
		return nil, fmt.Errorf("no image files found in %s", dirs[0])
	}
	return s, nil
}

// Frames returns the number of frames per channel.
func (s *Stack) Frames() int {
	if len(s.planes) == 0 {
		return 0
	}
	return len(s.planes[0])
}

// Channels returns the number of channels.
func (s *Stack) Channels() int {
	return len(s.planes)
}

// Plane returns the grayscale plane for a channel and 1-based frame. The
// Mat stays owned by the stack; callers must not Close it.
func (s *Stack) Plane(channel, frame int) (gocv.Mat, error) {
	if channel < 0 || channel >= len(s.planes) {
		return gocv.Mat{}, fmt.Errorf("channel %d out of range (%d channels)", channel, len(s.planes))
	}
	if frame < 1 || frame > len(s.planes[channel]) {
		return gocv.Mat{}, fmt.Errorf("frame %d out of range (%d frames)", frame, len(s.planes[channel]))
	}
	return s.planes[channel][frame-1], nil
}

// TemporalMax returns the pixelwise maximum over frames [frame, frame+window)
// of a channel, clamped to the stack length. The caller owns the result.
func (s *Stack) TemporalMax(channel, frame, window int) (gocv.Mat, error) {
	if window < 1 {
		return gocv.Mat{}, fmt.Errorf("window must be at least 1, got %d", window)
	}
	first, err := s.Plane(channel, frame)
	if err != nil {
		return gocv.Mat{}, err
	}
	out := first.Clone()
	for f := frame + 1; f < frame+window && f <= s.Frames(); f++ {
		p, err := s.Plane(channel, f)
		if err != nil {
			out.Close()
			return gocv.Mat{}, err
		}
		gocv.Max(out, p, &out)
	}
	return out, nil
}

// Close releases every plane.
func (s *Stack) Close() {
	for _, ch := range s.planes {
		closeAll(ch)
	}
	s.planes = nil
}

func closeAll(planes []gocv.Mat) {
	for i := range planes {
		planes[i].Close()
	}
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".tif", ".tiff", ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadGray(path string) (gocv.Mat, error) {
	f, err := os.Open(path)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("decode %s: %w", path, err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		b := img.Bounds()
		gray = image.NewGray(b)
		draw.Draw(gray, b, img, b.Min, draw.Src)
	}
	m, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert %s: %w", path, err)
	}
	return m, nil
}
