package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"nuclei-tracker/internal/correction"
	"nuclei-tracker/internal/linkage"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/internal/resample"
	"nuclei-tracker/internal/stack"
	"nuclei-tracker/pkg/geometry"
)

const consoleHelp = `correction console commands:
  delete  <x> <y> <frame> [this|all|before|after]   remove detection/track rows
  relabel <x> <y> <frame> <newid> [this|all|before|after]
  extend  <x> <y> <frame> prev|next                 duplicate region into adjacent frame
  relink                                            re-run the linkage pass
  resample                                          re-run the channel sweep
  done                                              finish corrections
`

// runConsole reads correction commands line by line until "done". Each
// command maps onto one correction.Command, keeping the state machine
// itself free of any console concern.
func runConsole(reg *registry.Registry, linker linkage.Matcher, st *stack.Stack) {
	fmt.Print(consoleHelp)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "done", "quit":
			return
		case "help":
			fmt.Print(consoleHelp)
		case "relink":
			if err := linker.Run(reg); err != nil {
				log.WithError(err).Error("relink failed")
				continue
			}
			log.WithField("tracks", len(reg.TrackIDs())).Info("relinked")
		case "resample":
			if err := resample.Channels(reg, st); err != nil {
				log.WithError(err).Error("resample failed")
			}
		case "delete", "relabel", "extend":
			cmd, err := parseCommand(fields)
			if err != nil {
				fmt.Println(err)
				continue
			}
			res, err := correction.Apply(reg, cmd)
			if err != nil {
				log.WithError(err).Error("correction rejected")
				continue
			}
			log.WithFields(log.Fields{
				"kind":     cmd.Kind.String(),
				"track":    res.TrackID,
				"affected": res.Affected,
			}).Info("correction applied")
		default:
			fmt.Printf("unknown command %q (try help)\n", fields[0])
		}
	}
}

func parseCommand(fields []string) (correction.Command, error) {
	var cmd correction.Command
	if len(fields) < 4 {
		return cmd, fmt.Errorf("usage: %s <x> <y> <frame> ...", fields[0])
	}
	x, err1 := strconv.ParseFloat(fields[1], 64)
	y, err2 := strconv.ParseFloat(fields[2], 64)
	frame, err3 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return cmd, fmt.Errorf("bad coordinates %q %q %q", fields[1], fields[2], fields[3])
	}
	cmd.At = geometry.Point2D{X: x, Y: y}
	cmd.Frame = frame

	switch fields[0] {
	case "delete":
		cmd.Kind = correction.Delete
		return cmd, parseExtent(&cmd, fields[4:])
	case "relabel":
		cmd.Kind = correction.Relabel
		if len(fields) < 5 {
			return cmd, fmt.Errorf("relabel needs a new track id")
		}
		id, err := strconv.Atoi(fields[4])
		if err != nil {
			return cmd, fmt.Errorf("bad track id %q", fields[4])
		}
		cmd.NewTrackID = id
		return cmd, parseExtent(&cmd, fields[5:])
	case "extend":
		cmd.Kind = correction.Extend
		if len(fields) < 5 {
			return cmd, fmt.Errorf("extend needs prev or next")
		}
		switch fields[4] {
		case "prev":
			cmd.Direction = correction.Prev
		case "next":
			cmd.Direction = correction.Next
		default:
			return cmd, fmt.Errorf("bad direction %q, want prev or next", fields[4])
		}
		return cmd, nil
	}
	return cmd, fmt.Errorf("unknown command %q", fields[0])
}

func parseExtent(cmd *correction.Command, rest []string) error {
	if len(rest) == 0 {
		cmd.Extent = correction.ThisFrame
		return nil
	}
	switch rest[0] {
	case "this":
		cmd.Extent = correction.ThisFrame
	case "all":
		cmd.Extent = correction.AllFrames
	case "before":
		cmd.Extent = correction.AllPrevious
	case "after":
		cmd.Extent = correction.AllFollowing
	default:
		return fmt.Errorf("bad extent %q, want this|all|before|after", rest[0])
	}
	return nil
}
