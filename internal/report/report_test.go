package report

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darshbir/toyota-gr-sim/internal/fsutil"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/sim"
)

func squareTrack() *race.TrackPayload {
	return &race.TrackPayload{
		Points:      [][]float64{{0, 0}, {100, 0}, {100, 80}, {0, 80}},
		TotalLength: 360,
	}
}

// fixedSession builds a three-car session with known lap times and one
// mid-race overtake.
func fixedSession() Data {
	snaps := make([]*race.Snapshot, 0, 11)
	for i := 0; i <= 10; i++ {
		t := float64(i * 10)

		moreiraPos, kellerPos := 3, 2
		if t >= 50 {
			moreiraPos, kellerPos = 2, 3
		}

		snap := &race.Snapshot{
			SimTime:   t,
			TotalLaps: 3,
			Weather:   race.Weather{Rain: 0.2, TrackTemp: 24, Wind: 3},
			TyreDistribution: map[string]int{
				"SOFT":   2,
				"MEDIUM": 1,
			},
			RaceStarted: true,
			Cars: []race.CarState{
				{Name: "Yamashiro", Color: "#e63946", RacePosition: 1, Laps: i / 4,
					Speed: 200, X: 10 + t, Y: 5, TyreCompound: "SOFT", PitstopCount: 1},
				{Name: "Moreira", Color: "#457b9d", RacePosition: moreiraPos, Laps: i / 5,
					Speed: 100 + t, X: 8 + t, Y: 12, TyreCompound: "MEDIUM"},
				{Name: "Keller", Color: "#2a9d8f", RacePosition: kellerPos, Laps: i / 5,
					Speed: 150, X: 6 + t, Y: 20, TyreCompound: "SOFT"},
			},
		}

		switch t {
		case 30:
			snap.Events = []race.Event{{Type: race.EventLapComplete, Car: "Yamashiro", Lap: 1, SimTime: 30}}
		case 40:
			snap.Events = []race.Event{
				{Type: race.EventLapComplete, Car: "Moreira", Lap: 1, SimTime: 35},
				{Type: race.EventLapComplete, Car: "Keller", Lap: 1, SimTime: 40},
			}
		case 60:
			snap.Events = []race.Event{{Type: race.EventLapComplete, Car: "Yamashiro", Lap: 2, SimTime: 58}}
		case 90:
			snap.Events = []race.Event{{Type: race.EventLapComplete, Car: "Yamashiro", Lap: 3, SimTime: 90}}
		}
		snaps = append(snaps, snap)
	}
	snaps[len(snaps)-1].RaceFinished = true

	return Data{SessionID: "test-session", Track: squareTrack(), Snapshots: snaps}
}

func TestSummarizeComputesFinishOrderAndLaps(t *testing.T) {
	t.Parallel()

	summary, err := Summarize(fixedSession())
	require.NoError(t, err)

	assert.Equal(t, "test-session", summary.SessionID)
	assert.Equal(t, "Yamashiro", summary.Winner)
	assert.True(t, summary.Finished)
	assert.InDelta(t, 100, summary.SimDuration, 1e-9)
	assert.Equal(t, 3, summary.TotalLaps)
	assert.InDelta(t, 0.2, summary.Weather.Rain, 1e-9)
	assert.Equal(t, 5, summary.EventCount)

	require.Len(t, summary.Cars, 3)
	assert.Equal(t, []string{"Yamashiro", "Moreira", "Keller"},
		[]string{summary.Cars[0].Name, summary.Cars[1].Name, summary.Cars[2].Name})

	// Yamashiro's laps: 30, then 28, then 32 seconds.
	assert.InDelta(t, 28, summary.Cars[0].BestLap, 1e-9)
	assert.InDelta(t, 35, summary.Cars[1].BestLap, 1e-9)
	assert.InDelta(t, 40, summary.Cars[2].BestLap, 1e-9)
	assert.InDelta(t, 28, summary.FastestLap, 1e-9)
	assert.Equal(t, "Yamashiro", summary.FastestBy)

	assert.Equal(t, 1, summary.Cars[0].PitStops)
	assert.Equal(t, "MEDIUM", summary.Cars[1].FinalTyre)

	// Keller runs a constant 150; Moreira ramps 100..200 and tops at 200.
	assert.InDelta(t, 150, summary.Cars[2].MeanSpeedKPH, 1e-9)
	assert.InDelta(t, 150, summary.Cars[2].MaxSpeedKPH, 1e-9)
	assert.InDelta(t, 200, summary.Cars[1].MaxSpeedKPH, 1e-9)
}

func TestSummarizeRejectsEmptySession(t *testing.T) {
	t.Parallel()

	_, err := Summarize(Data{SessionID: "empty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshots")
}

func TestBestLapHandlesSparseMarks(t *testing.T) {
	t.Parallel()

	assert.Zero(t, bestLap(nil))
	assert.InDelta(t, 30, bestLap([]float64{30}), 1e-9)
	assert.InDelta(t, 25, bestLap([]float64{30, 55, 90}), 1e-9)
}

func TestDownsampleBoundsSeriesLength(t *testing.T) {
	t.Parallel()

	snaps := make([]*race.Snapshot, 1500)
	for i := range snaps {
		snaps[i] = &race.Snapshot{SimTime: float64(i)}
	}

	out := downsample(snaps, 600)
	assert.LessOrEqual(t, len(out), 600)
	assert.InDelta(t, 0, out[0].SimTime, 1e-9)

	same := downsample(snaps[:100], 600)
	assert.Len(t, same, 100)
}

func TestGenerateWritesDashboardAndTrackMap(t *testing.T) {
	t.Parallel()

	outDir := filepath.Join(t.TempDir(), "report")
	summary, err := Generate(fixedSession(), outDir)
	require.NoError(t, err)
	assert.Equal(t, "Yamashiro", summary.Winner)

	html, err := os.ReadFile(filepath.Join(outDir, "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Speed Traces")
	assert.Contains(t, string(html), "Gap to Leader")
	assert.Contains(t, string(html), "Yamashiro")
	assert.Contains(t, string(html), "Pit Stops")

	png, err := os.ReadFile(filepath.Join(outDir, "track_map.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "track map should be a PNG")
}

func TestWriteTrackMapRequiresTrack(t *testing.T) {
	t.Parallel()

	data := fixedSession()
	data.Track = nil
	err := WriteTrackMap(data, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no track payload")
}

func TestGenerateFSRendersIntoMemory(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	summary, err := GenerateFS(fsys, fixedSession(), "out")
	require.NoError(t, err)
	assert.Equal(t, "Yamashiro", summary.Winner)

	html, err := fsys.ReadFile(filepath.Join("out", "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Speed Traces")

	png, err := fsys.ReadFile(filepath.Join("out", "track_map.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestWriteHTMLWithoutTrackStillRenders(t *testing.T) {
	t.Parallel()

	data := fixedSession()
	data.Track = nil
	summary, err := Summarize(data)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(data, summary, &buf))
	assert.Contains(t, buf.String(), "Track Overview")
}

// TestSummarizeLiveModelSession runs the race model for a short sprint
// and feeds its broadcasts through the report pipeline.
func TestSummarizeLiveModelSession(t *testing.T) {
	t.Parallel()

	track, err := sim.BuildTrack(sim.DefaultWaypoints(), 800)
	require.NoError(t, err)
	model := sim.New(track, sim.Config{CarCount: 4, TotalLaps: 2, Seed: 3})
	model.Start()

	data := Data{
		SessionID: "model-session",
		Track: &race.TrackPayload{
			Points:      track.Points(),
			TotalLength: track.Length(),
		},
	}
	for i := 0; i < 20000 && !model.Finished(); i++ {
		for j := 0; j < 3; j++ {
			model.Step()
		}
		data.Snapshots = append(data.Snapshots, model.StatePayload())
	}
	require.True(t, model.Finished(), "model should finish a two-lap sprint")

	summary, err := Summarize(data)
	require.NoError(t, err)
	require.Len(t, summary.Cars, 4)
	assert.NotEmpty(t, summary.Winner)
	assert.Equal(t, 1, summary.Cars[0].FinishRank)
	assert.Greater(t, summary.SimDuration, 0.0)
	assert.Greater(t, summary.Cars[0].MaxSpeedKPH, 0.0)
}
