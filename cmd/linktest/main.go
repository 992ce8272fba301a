// Command linktest runs the linkage engine on synthetic detections from a
// CSV file (frame,x,y per row) and prints the resulting track table. Handy
// for checking maxdisp/gap settings without any images.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"nuclei-tracker/internal/linkage"
	"nuclei-tracker/internal/region"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/pkg/geometry"
)

func main() {
	csvPath := flag.String("csv", "", "Path to detections CSV: frame,x,y per row")
	maxDisp := flag.Float64("maxdisp", linkage.DefaultParams().MaxDisp, "Maximum linking distance in pixels")
	gap := flag.Int("gap", linkage.DefaultParams().Gap, "Frames to bridge")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: linktest -csv <detections.csv> [-maxdisp 30] [-gap 3]")
		os.Exit(1)
	}

	reg, err := loadDetections(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load detections: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d detections, %d frames\n", reg.Count(), reg.MaxFrame())

	linker, err := linkage.NewGreedy(linkage.Params{MaxDisp: *maxDisp, Gap: *gap})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := linker.Run(reg); err != nil {
		fmt.Fprintf(os.Stderr, "Linkage failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%-6s %-7s %-9s %-9s %-7s %s\n", "row", "frame", "x", "y", "track", "displacement")
	for i := 0; i < reg.Count(); i++ {
		d := reg.At(i)
		fmt.Printf("%-6d %-7d %-9.2f %-9.2f %-7d %.2f\n",
			i, d.Frame, d.Centroid.X, d.Centroid.Y, d.TrackID, d.Displacement)
	}
	fmt.Printf("\n%d tracks\n", len(reg.TrackIDs()))
}

// loadDetections builds a registry from frame,x,y rows, giving every
// detection a small synthetic square region so the consistency contract
// holds.
func loadDetections(path string) (*registry.Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("row %d: want frame,x,y", i)
		}
		frame, err1 := strconv.Atoi(rec[0])
		x, err2 := strconv.ParseFloat(rec[1], 64)
		y, err3 := strconv.ParseFloat(rec[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: bad values %v", i, rec)
		}
		err = reg.Append(&registry.Detection{
			Frame:    frame,
			Centroid: geometry.Point2D{X: x, Y: y},
			Region:   squareRegion(frame, x, y, 4),
		})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func squareRegion(frame int, x, y, half float64) *region.Region {
	return region.New(frame, []geometry.Point2D{
		{X: x - half, Y: y - half},
		{X: x + half, Y: y - half},
		{X: x + half, Y: y + half},
		{X: x - half, Y: y + half},
	})
}
