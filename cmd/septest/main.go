// Command septest runs the conditional separation heuristic on a binary
// mask and its reference intensity image and writes the split mask.
package main

import (
	"flag"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"nuclei-tracker/internal/separation"
)

func main() {
	maskPath := flag.String("mask", "", "Path to binary object mask")
	refPath := flag.String("reference", "", "Path to reference intensity image (pre-enhancement)")
	separate := flag.Float64("separate", 0.7, "Separation threshold in [0,1]: 0 always splits, 1 never")
	outPath := flag.String("out", "separated.png", "Output mask path")
	flag.Parse()

	if *maskPath == "" || *refPath == "" {
		fmt.Println("Usage: septest -mask <mask.png> -reference <ref.png> [-separate 0.7] [-out separated.png]")
		os.Exit(1)
	}

	mask := gocv.IMRead(*maskPath, gocv.IMReadGrayScale)
	defer mask.Close()
	reference := gocv.IMRead(*refPath, gocv.IMReadGrayScale)
	defer reference.Close()
	if mask.Empty() || reference.Empty() {
		fmt.Fprintln(os.Stderr, "Failed to load mask or reference image")
		os.Exit(1)
	}

	out, stats, err := separation.Split(mask, reference, *separate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Separation failed: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	fmt.Printf("Candidate boundaries: %d\n", stats.Boundaries)
	fmt.Printf("Accepted boundaries:  %d\n", stats.Accepted)

	if ok := gocv.IMWrite(*outPath, out); !ok {
		fmt.Fprintf(os.Stderr, "Failed to write %s\n", *outPath)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *outPath)
}
