// Package report builds post-session artifacts from a recorded race:
// summary statistics, an HTML dashboard of speed, gap and position
// traces, and a PNG track map with car trails.
package report

import (
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Darshbir/toyota-gr-sim/internal/fsutil"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
)

// Data is one decoded session: the track geometry and every state
// broadcast in stream order.
type Data struct {
	SessionID string
	Track     *race.TrackPayload
	Snapshots []*race.Snapshot
}

// CarSummary aggregates one car across the session.
type CarSummary struct {
	Name         string
	FinishRank   int
	Laps         int
	PitStops     int
	BestLap      float64 // seconds; 0 when the car never completed a lap
	MeanSpeedKPH float64
	MaxSpeedKPH  float64
	FinalTyre    string
}

// Summary is the session digest that heads the report.
type Summary struct {
	SessionID   string
	SimDuration float64
	TotalLaps   int
	Finished    bool
	Weather     race.Weather
	Winner      string
	FastestLap  float64
	FastestBy   string
	Cars        []CarSummary // finish order
	EventCount  int
}

// Summarize aggregates the session into per-car and whole-race stats.
func Summarize(data Data) (*Summary, error) {
	if len(data.Snapshots) == 0 {
		return nil, fmt.Errorf("session %s has no snapshots", data.SessionID)
	}
	last := data.Snapshots[len(data.Snapshots)-1]

	speeds := make(map[string][]float64)
	lapMarks := make(map[string][]float64)
	eventCount := 0
	for _, snap := range data.Snapshots {
		for i := range snap.Cars {
			car := &snap.Cars[i]
			speeds[car.Name] = append(speeds[car.Name], car.Speed)
		}
		eventCount += len(snap.Events)
		for _, ev := range snap.Events {
			if ev.Type == race.EventLapComplete {
				lapMarks[ev.Car] = append(lapMarks[ev.Car], ev.SimTime)
			}
		}
	}

	summary := &Summary{
		SessionID:   data.SessionID,
		SimDuration: last.SimTime,
		TotalLaps:   last.TotalLaps,
		Finished:    last.RaceFinished,
		Weather:     last.Weather,
		EventCount:  eventCount,
	}

	cars := make([]CarSummary, 0, len(last.Cars))
	for i := range last.Cars {
		c := &last.Cars[i]
		cs := CarSummary{
			Name:       c.Name,
			FinishRank: c.RacePosition,
			Laps:       c.Laps,
			PitStops:   c.PitstopCount,
			BestLap:    bestLap(lapMarks[c.Name]),
			FinalTyre:  c.TyreCompound,
		}
		if s := speeds[c.Name]; len(s) > 0 {
			cs.MeanSpeedKPH = stat.Mean(s, nil)
			cs.MaxSpeedKPH = floats.Max(s)
		}
		cars = append(cars, cs)
	}
	sort.Slice(cars, func(i, j int) bool { return cars[i].FinishRank < cars[j].FinishRank })
	summary.Cars = cars

	if len(cars) > 0 {
		summary.Winner = cars[0].Name
	}
	for _, cs := range cars {
		if cs.BestLap > 0 && (summary.FastestLap == 0 || cs.BestLap < summary.FastestLap) {
			summary.FastestLap = cs.BestLap
			summary.FastestBy = cs.Name
		}
	}
	return summary, nil
}

// bestLap derives the quickest lap from a car's lap completion times.
// The first mark measures from the race start.
func bestLap(marks []float64) float64 {
	best := 0.0
	prev := 0.0
	for _, mark := range marks {
		lap := mark - prev
		prev = mark
		if lap <= 0 {
			continue
		}
		if best == 0 || lap < best {
			best = lap
		}
	}
	return best
}

// Generate writes report.html and track_map.png into outDir.
func Generate(data Data, outDir string) (*Summary, error) {
	return GenerateFS(fsutil.OSFileSystem{}, data, outDir)
}

// GenerateFS writes the report artifacts through fsys, so tests can
// render into memory.
func GenerateFS(fsys fsutil.FileSystem, data Data, outDir string) (*Summary, error) {
	summary, err := Summarize(data)
	if err != nil {
		return nil, err
	}
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	err = renderTo(fsys, filepath.Join(outDir, "report.html"), func(w io.Writer) error {
		return WriteHTML(data, summary, w)
	})
	if err != nil {
		return nil, err
	}

	if data.Track != nil {
		err = renderTo(fsys, filepath.Join(outDir, "track_map.png"), func(w io.Writer) error {
			return WriteTrackMap(data, w)
		})
		if err != nil {
			return nil, err
		}
	}

	log.Printf("[Report] session %s: %d snapshots, winner %s, artifacts in %s",
		data.SessionID, len(data.Snapshots), summary.Winner, outDir)
	return summary, nil
}

func renderTo(fsys fsutil.FileSystem, path string, render func(io.Writer) error) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// plotBounds accumulates a bounding box over plotted coordinates.
type plotBounds struct {
	minX, maxX float64
	minY, maxY float64
	any        bool
}

func newBounds() *plotBounds { return &plotBounds{} }

func (b *plotBounds) add(x, y float64) {
	if !b.any {
		b.minX, b.maxX, b.minY, b.maxY = x, x, y, y
		b.any = true
		return
	}
	b.minX = math.Min(b.minX, x)
	b.maxX = math.Max(b.maxX, x)
	b.minY = math.Min(b.minY, y)
	b.maxY = math.Max(b.maxY, y)
}

// square grows the box to a square scaled around its center, so track
// geometry renders without distortion.
func (b *plotBounds) square(scale float64) (minX, maxX, minY, maxY float64) {
	if !b.any {
		return -1, 1, -1, 1
	}
	span := math.Max(b.maxX-b.minX, b.maxY-b.minY) * scale
	if span == 0 {
		span = 2
	}
	cx := (b.minX + b.maxX) / 2
	cy := (b.minY + b.maxY) / 2
	return cx - span/2, cx + span/2, cy - span/2, cy + span/2
}

// downsample strides the snapshot list down to at most max entries so a
// long session stays renderable.
func downsample(snaps []*race.Snapshot, max int) []*race.Snapshot {
	if len(snaps) <= max {
		return snaps
	}
	stride := int(math.Ceil(float64(len(snaps)) / float64(max)))
	out := make([]*race.Snapshot, 0, max)
	for i := 0; i < len(snaps); i += stride {
		out = append(out, snaps[i])
	}
	return out
}
