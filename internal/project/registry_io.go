package project

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"nuclei-tracker/internal/region"
	"nuclei-tracker/internal/registry"
	"nuclei-tracker/internal/resample"
	"nuclei-tracker/internal/rupture"
)

// registryHeader is the fixed part of the tracks CSV; channel mean columns
// follow it.
var registryHeader = []string{
	"id", "frame", "x", "y", "area", "major_axis", "minor_axis", "track_id", "displacement",
}

// SaveRegistry writes the detection table as CSV under the run prefix.
func (r *Run) SaveRegistry(reg *registry.Registry, channels int) error {
	f, err := os.Create(r.Path("tracks.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	return writeRegistryCSV(f, reg, channels)
}

func writeRegistryCSV(w io.Writer, reg *registry.Registry, channels int) error {
	cw := csv.NewWriter(w)

	header := append([]string{}, registryHeader...)
	for c := 0; c < channels; c++ {
		header = append(header, fmt.Sprintf("mean_ch_%d", c))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := 0; i < reg.Count(); i++ {
		d := reg.At(i)
		row := []string{
			strconv.Itoa(i),
			strconv.Itoa(d.Frame),
			formatFloat(d.Centroid.X),
			formatFloat(d.Centroid.Y),
			formatFloat(d.Area),
			formatFloat(d.MajorAxis),
			formatFloat(d.MinorAxis),
			strconv.Itoa(d.TrackID),
			formatFloat(d.Displacement),
		}
		for c := 0; c < channels; c++ {
			v := 0.0
			if c < len(d.ChannelMeans) {
				v = d.ChannelMeans[c]
			}
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveRegions archives every owned region as JSON inside a zip, one entry
// per registry row, named by row index so the table and the archive stay
// index-correlated on disk.
func (r *Run) SaveRegions(reg *registry.Registry) error {
	f, err := os.Create(r.Path("regions.zip"))
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for i := 0; i < reg.Count(); i++ {
		w, err := zw.Create(fmt.Sprintf("region_%06d.json", i))
		if err != nil {
			return err
		}
		if err := json.NewEncoder(w).Encode(reg.At(i).Region); err != nil {
			return err
		}
	}
	return zw.Close()
}

// LoadRegions reads a region archive back, in entry order.
func LoadRegions(path string) ([]*region.Region, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	regions := make([]*region.Region, 0, len(zr.File))
	for _, entry := range zr.File {
		rc, err := entry.Open()
		if err != nil {
			return nil, err
		}
		var reg region.Region
		err = json.NewDecoder(rc).Decode(&reg)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name, err)
		}
		regions = append(regions, &reg)
	}
	return regions, nil
}

// LoadRegistry restores a registry from the tracks CSV and the matching
// region archive. A row/region count mismatch is a ConsistencyError: the
// two files are index-correlated and one without the other is useless.
func LoadRegistry(tracksPath, regionsPath string) (*registry.Registry, error) {
	regions, err := LoadRegions(regionsPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(tracksPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", tracksPath, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header", tracksPath)
	}
	rows := records[1:]
	if len(rows) != len(regions) {
		return nil, &registry.ConsistencyError{Rows: len(rows), Regions: len(regions)}
	}
	channels := len(records[0]) - len(registryHeader)

	reg := registry.New()
	for i, rec := range rows {
		if len(rec) != len(records[0]) {
			return nil, fmt.Errorf("%s row %d has %d fields, want %d", tracksPath, i, len(rec), len(records[0]))
		}
		d := &registry.Detection{Region: regions[i]}
		d.Frame, _ = strconv.Atoi(rec[1])
		d.Centroid.X, _ = strconv.ParseFloat(rec[2], 64)
		d.Centroid.Y, _ = strconv.ParseFloat(rec[3], 64)
		d.Area, _ = strconv.ParseFloat(rec[4], 64)
		d.MajorAxis, _ = strconv.ParseFloat(rec[5], 64)
		d.MinorAxis, _ = strconv.ParseFloat(rec[6], 64)
		d.TrackID, _ = strconv.Atoi(rec[7])
		d.Displacement, _ = strconv.ParseFloat(rec[8], 64)
		for c := 0; c < channels; c++ {
			v, _ := strconv.ParseFloat(rec[len(registryHeader)+c], 64)
			d.ChannelMeans = append(d.ChannelMeans, v)
		}
		if err := reg.Append(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// SavePivot writes the per-track pivot table as CSV.
func (r *Run) SavePivot(t *resample.Table) error {
	f, err := os.Create(r.Path("pivot.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	return t.WriteCSV(f)
}

// SaveEvents writes flagged rupture events as CSV.
func (r *Run) SaveEvents(events []rupture.Event) error {
	f, err := os.Create(r.Path("ruptures.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"track_id", "channel", "start_frame", "end_frame", "depth"}); err != nil {
		return err
	}
	for _, e := range events {
		err := cw.Write([]string{
			strconv.Itoa(e.TrackID),
			strconv.Itoa(e.Channel),
			strconv.Itoa(e.Start),
			strconv.Itoa(e.End),
			formatFloat(e.Depth),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
