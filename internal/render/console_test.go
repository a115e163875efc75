package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/units"
)

func TestConsoleSinkPrintsLeaderboard(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, 1, units.KPH)

	sink.Consume(&Frame{
		ID:        1,
		SimTime:   73.4,
		Connected: true,
		TotalLaps: 36,
		Cars: []Car{
			{Name: "Yamada", Rank: 1, Laps: 4, Tyre: "SOFT", Speed: 281.5, Selected: true},
			{Name: "Fraga", Rank: 2, Laps: 4, Tyre: "MEDIUM", Speed: 276.0, OnPit: true},
		},
		Events: []race.Event{{Type: race.EventOvertake, Car: "Yamada"}},
	})

	out := buf.String()
	assert.Contains(t, out, "t=   73.4s lap 4/36 [live]")
	assert.Contains(t, out, "> P1  Yamada")
	assert.Contains(t, out, "  P2  Fraga")
	assert.Contains(t, out, "281.5 kph")
	assert.Contains(t, out, "PIT")
	assert.Contains(t, out, "* overtake Yamada")
	assert.NotContains(t, out, "disconnected")
}

func TestConsoleSinkThrottlesToEveryNthFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, 3, units.KPH)

	for id := uint64(1); id <= 7; id++ {
		sink.Consume(&Frame{ID: id, Connected: true})
	}

	// Only IDs 3 and 6 print.
	assert.Equal(t, 2, strings.Count(buf.String(), "[live]"))
}

func TestConsoleSinkReportsDisconnect(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, 1, units.MPH)

	sink.Consume(&Frame{
		ID:   1,
		Cars: []Car{{Name: "Hizal", Rank: 1, Speed: 100, Tyre: "HARD"}},
	})

	out := buf.String()
	assert.Contains(t, out, "[disconnected]")
	// 100 km/h displayed in mph.
	assert.Contains(t, out, "62.1 mph")
}

func TestConsoleSinkRejectsUnknownUnit(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, 1, "furlongs")

	sink.Consume(&Frame{ID: 1, Cars: []Car{{Name: "Solis", Rank: 1, Speed: 200}}})

	assert.Contains(t, buf.String(), "200.0 kph")
}
