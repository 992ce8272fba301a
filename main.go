// Command nuclei-tracker runs the full time-lapse analysis pipeline:
// detect nuclei per frame, link them into tracks, re-measure every channel,
// pivot into per-track series and flag rupture events. With -correct it
// drops into a console for manual track corrections between linking and
// export.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"nuclei-tracker/internal/detect"
	"nuclei-tracker/internal/linkage"
	"nuclei-tracker/internal/project"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/internal/resample"
	"nuclei-tracker/internal/rupture"
	"nuclei-tracker/internal/stack"
	"nuclei-tracker/internal/version"
)

func main() {
	channels := flag.String("channels", "", "Comma-separated channel directories; the first is the reference channel used for detection")
	outDir := flag.String("out", "results", "Output directory")
	prefix := flag.String("prefix", "run", "Output file prefix")

	maxDisp := flag.Float64("maxdisp", linkage.DefaultParams().MaxDisp, "Maximum linking distance in pixels")
	gap := flag.Int("gap", linkage.DefaultParams().Gap, "Frames to bridge when a track has no direct successor")

	threshold := flag.Int("threshold", 0, "Fixed binary threshold (0 = Otsu)")
	minArea := flag.Float64("minarea", detect.DefaultParams().MinArea, "Minimum region area in pixels")
	separate := flag.Float64("separate", detect.DefaultParams().Separate, "Conditional separation threshold in [0,1]: 0 always splits, 1 never")
	clip := flag.Float64("clip", detect.DefaultParams().ClipLimit, "CLAHE clip limit (0 disables)")
	blur := flag.Float64("blur", detect.DefaultParams().BlurSigma, "Gaussian blur sigma (0 disables)")

	correct := flag.Bool("correct", false, "Open the correction console after linking")
	writeOverlay := flag.Bool("overlay", false, "Write track overlay images")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("nuclei-tracker %s (%s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		return
	}
	if *channels == "" {
		fmt.Println("Usage: nuclei-tracker -channels <ref-dir>[,<ch1-dir>,...] [-out results] [flags]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	detParams := detect.DefaultParams()
	detParams.Threshold = *threshold
	detParams.MinArea = *minArea
	detParams.Separate = *separate
	detParams.ClipLimit = *clip
	detParams.BlurSigma = *blur

	linkParams := linkage.Params{MaxDisp: *maxDisp, Gap: *gap}

	// Fail fast on configuration before touching any image.
	detector, err := detect.New(detParams)
	if err != nil {
		log.WithError(err).Fatal("detection configuration rejected")
	}
	linker, err := linkage.NewGreedy(linkParams)
	if err != nil {
		log.WithError(err).Fatal("linkage configuration rejected")
	}

	dirs := strings.Split(*channels, ",")
	st, err := stack.LoadDirs(dirs)
	if err != nil {
		log.WithError(err).Fatal("failed to load image stack")
	}
	defer st.Close()
	log.WithFields(log.Fields{
		"frames":   st.Frames(),
		"channels": st.Channels(),
	}).Info("stack loaded")

	reg := registry.New()
	if err := runDetection(reg, detector, st); err != nil {
		log.WithError(err).Fatal("detection pass failed")
	}
	log.WithField("detections", reg.Count()).Info("detection pass complete")

	if err := linker.Run(reg); err != nil {
		log.WithError(err).Fatal("linkage pass failed")
	}
	log.WithField("tracks", len(reg.TrackIDs())).Info("linkage pass complete")

	if err := resample.Channels(reg, st); err != nil {
		log.WithError(err).Fatal("channel resampling failed")
	}

	if *correct {
		runConsole(reg, linker, st)
	}

	pivot := resample.Pivot(reg, st.Channels())
	events, err := rupture.Detect(pivot, rupture.DefaultParams())
	if err != nil {
		log.WithError(err).Fatal("rupture flagging failed")
	}
	log.WithField("events", len(events)).Info("rupture flagging complete")

	run, err := project.NewRun(*outDir, *prefix)
	if err != nil {
		log.WithError(err).Fatal("failed to create run")
	}
	run.Frames = st.Frames()
	run.Channels = st.Channels()
	run.Linkage = linkParams
	run.Separate = *separate

	if err := saveAll(run, reg, st, pivot, events); err != nil {
		log.WithError(err).Fatal("failed to save results")
	}
	if *writeOverlay {
		if err := writeOverlays(run, reg, st); err != nil {
			log.WithError(err).Fatal("failed to write overlays")
		}
	}
	log.WithFields(log.Fields{"dir": *outDir, "run": run.ID}).Info("done")
}

// runDetection fills the registry from a detection plus measurement pass
// over the reference channel.
func runDetection(reg *registry.Registry, detector *detect.Detector, st *stack.Stack) error {
	perFrame, err := detector.Run(st, 0)
	if err != nil {
		return err
	}
	for f := 1; f <= st.Frames(); f++ {
		if err := measureAndIngest(reg, st, perFrame[f-1], f); err != nil {
			return err
		}
	}
	return reg.Check()
}

func saveAll(run *project.Run, reg *registry.Registry, st *stack.Stack, pivot *resample.Table, events []rupture.Event) error {
	if err := run.SaveManifest(); err != nil {
		return err
	}
	if err := run.SaveRegistry(reg, st.Channels()); err != nil {
		return err
	}
	if err := run.SaveRegions(reg); err != nil {
		return err
	}
	if err := run.SavePivot(pivot); err != nil {
		return err
	}
	return run.SaveEvents(events)
}
