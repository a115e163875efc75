package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapWith(simTime float64, cars ...CarState) *Snapshot {
	return &Snapshot{SimTime: simTime, Cars: cars, RaceStarted: true}
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestDetectEvents_FirstSnapshotOnlySeeds(t *testing.T) {
	t.Parallel()

	lc := newLapClock()
	next := snapWith(0,
		CarState{Name: "A", RacePosition: 1, TotalTime: 0},
		CarState{Name: "B", RacePosition: 2, TotalTime: 0},
	)

	events := detectEvents(nil, next, lc)
	assert.Empty(t, events)
	assert.True(t, lc.seeded)
	assert.Len(t, lc.lapStart, 2)
}

func TestDetectEvents_Overtake(t *testing.T) {
	t.Parallel()

	lc := newLapClock()
	prev := snapWith(10,
		CarState{Name: "A", RacePosition: 1},
		CarState{Name: "B", RacePosition: 2},
	)
	detectEvents(nil, prev, lc)

	next := snapWith(11,
		CarState{Name: "A", RacePosition: 2},
		CarState{Name: "B", RacePosition: 1, Laps: 4},
	)

	events := detectEvents(prev, next, lc)
	require.Len(t, events, 1)
	assert.Equal(t, EventOvertake, events[0].Type)
	assert.Equal(t, "B", events[0].Car)
	assert.Equal(t, "A", events[0].Target)
	assert.Equal(t, 4, events[0].Lap)
	assert.Equal(t, 11.0, events[0].SimTime)
}

func TestDetectEvents_PitEntryAndExit(t *testing.T) {
	t.Parallel()

	lc := newLapClock()
	prev := snapWith(20, CarState{Name: "A", RacePosition: 1, OnPit: false})
	detectEvents(nil, prev, lc)

	entered := snapWith(21, CarState{Name: "A", RacePosition: 1, OnPit: true, Laps: 12})
	events := detectEvents(prev, entered, lc)
	require.Len(t, events, 1)
	assert.Equal(t, EventPitIn, events[0].Type)
	assert.Equal(t, 12, events[0].Lap)

	exited := snapWith(27, CarState{Name: "A", RacePosition: 1, OnPit: false, Laps: 12})
	events = detectEvents(entered, exited, lc)
	require.Len(t, events, 1)
	assert.Equal(t, EventPitOut, events[0].Type)
}

func TestDetectEvents_LapCompletionAndFastestLap(t *testing.T) {
	t.Parallel()

	lc := newLapClock()
	start := snapWith(0, CarState{Name: "A", RacePosition: 1, Laps: 0, TotalTime: 0})
	detectEvents(nil, start, lc)

	// First lap completed in 82s: lap_complete plus an initial fastest_lap.
	lap1 := snapWith(82, CarState{Name: "A", RacePosition: 1, Laps: 1, TotalTime: 82})
	events := detectEvents(start, lap1, lc)
	assert.Equal(t, []string{EventLapComplete, EventFastestLap}, eventTypes(events))

	// Second lap is slower: no fastest_lap.
	lap2 := snapWith(170, CarState{Name: "A", RacePosition: 1, Laps: 2, TotalTime: 170})
	events = detectEvents(lap1, lap2, lc)
	assert.Equal(t, []string{EventLapComplete}, eventTypes(events))

	// Third lap beats the best: fastest_lap again.
	lap3 := snapWith(245, CarState{Name: "A", RacePosition: 1, Laps: 3, TotalTime: 245})
	events = detectEvents(lap2, lap3, lc)
	assert.Equal(t, []string{EventLapComplete, EventFastestLap}, eventTypes(events))

	assert.Equal(t, "A", lc.bestCar)
	assert.InDelta(t, 75.0, lc.bestLap, 1e-9)
}

func TestDetectEvents_NewCarMidRace(t *testing.T) {
	t.Parallel()

	lc := newLapClock()
	prev := snapWith(10, CarState{Name: "A", RacePosition: 1})
	detectEvents(nil, prev, lc)

	next := snapWith(11,
		CarState{Name: "A", RacePosition: 1},
		CarState{Name: "C", RacePosition: 2, TotalTime: 11},
	)

	events := detectEvents(prev, next, lc)
	assert.Empty(t, events, "a newly sighted car produces no comparison events")
	assert.Contains(t, lc.lapStart, "C")
}

func TestDetectEvents_StableStateIsQuiet(t *testing.T) {
	t.Parallel()

	lc := newLapClock()
	prev := snapWith(30,
		CarState{Name: "A", RacePosition: 1, Laps: 5, OnPit: false},
		CarState{Name: "B", RacePosition: 2, Laps: 5, OnPit: true},
	)
	detectEvents(nil, prev, lc)

	next := snapWith(31,
		CarState{Name: "A", RacePosition: 1, Laps: 5, OnPit: false},
		CarState{Name: "B", RacePosition: 2, Laps: 5, OnPit: true},
	)

	assert.Empty(t, detectEvents(prev, next, lc))
}
