package race

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darshbir/toyota-gr-sim/internal/testutil"
)

func TestDecodeTrackMessage(t *testing.T) {
	t.Parallel()

	raw := testutil.TrackMessageJSON([][2]float64{{0, 0}, {100, 0}, {100, 60}, {0, 60}}, 320)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindTrack, msg.Kind)
	require.NotNil(t, msg.Track)
	assert.Nil(t, msg.State)
	assert.Len(t, msg.Track.Points, 4)
	assert.Equal(t, 320.0, msg.Track.TotalLength)
}

func TestDecodeStateMessage(t *testing.T) {
	t.Parallel()

	raw := testutil.StateMessageJSON(42.5, true,
		testutil.CarFixture{Name: "Charles Leclerc", X: 10, Y: 5, Angle: 0.5, Speed: 290},
		testutil.CarFixture{Name: "Carlos Sainz", X: 12, Y: 6, Angle: 0.4, Speed: 288},
	)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindState, msg.Kind)
	require.NotNil(t, msg.State)

	snap := msg.State
	assert.Equal(t, 42.5, snap.SimTime)
	assert.True(t, snap.RaceStarted)
	assert.False(t, snap.RaceFinished)
	require.Len(t, snap.Cars, 2)
	assert.Equal(t, "Charles Leclerc", snap.Cars[0].Name)
	assert.Equal(t, 290.0, snap.Cars[0].Speed)
	assert.True(t, snap.Cars[0].HasAngle)
}

func TestDecodeStateWithoutAngle(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"time":1,"cars":[{"name":"Lance Stroll","x":3,"y":4,"speed":120}]}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindState, msg.Kind)
	require.Len(t, msg.State.Cars, 1)
	assert.False(t, msg.State.Cars[0].HasAngle, "absent angle must be flagged for the heading fallback")
	assert.Zero(t, msg.State.Cars[0].Angle)
}

func TestDecodeRejectsMalformedAndUnknown(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{"time": nope}`},
		{"no discriminator", `{"hello":"world"}`},
		{"empty object", `{}`},
		{"track with too few points", `{"type":"track","data":{"points":[[0,0],[1,1]],"total_length":2}}`},
		{"state with duplicate cars", `{"time":1,"cars":[{"name":"A"},{"name":"A"}]}`},
		{"state with unnamed car", `{"time":1,"cars":[{"x":1}]}`},
		{"state with negative clock", `{"time":-5,"cars":[{"name":"A"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeStateWithEmptyCars(t *testing.T) {
	t.Parallel()

	// A formation message with no cars yet is still a valid state payload.
	msg, err := Decode([]byte(`{"time":0,"cars":[]}`))
	require.NoError(t, err)
	assert.Equal(t, KindState, msg.Kind)
	assert.Empty(t, msg.State.Cars)
}

func TestDecodeStateCarriesEventsAndUndercuts(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"time": 95.5,
		"cars": [{"name":"Max Verstappen","position":1}],
		"race_events": [{"type":"overtake","car":"Max Verstappen","target":"Lando Norris","lap":3,"time":95.5}],
		"undercut_summary": [{"car":"Max Verstappen","rival":"Lando Norris","lap":3,"time_gained":1.8}]
	}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, msg.State.Events, 1)
	assert.Equal(t, EventOvertake, msg.State.Events[0].Type)
	assert.Equal(t, "Lando Norris", msg.State.Events[0].Target)
	require.Len(t, msg.State.UndercutSummary, 1)
	assert.Equal(t, 1.8, msg.State.UndercutSummary[0].TimeGained)
}

func TestResetRequestShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewResetRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reset"}`, string(data))
}

func TestSnapshotHelpers(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Cars: []CarState{
		{Name: "Pierre Gasly", RacePosition: 2},
		{Name: "Esteban Ocon", RacePosition: 1},
	}}

	leader := snap.Leader()
	require.NotNil(t, leader)
	assert.Equal(t, "Esteban Ocon", leader.Name)

	car := snap.CarByName("Pierre Gasly")
	require.NotNil(t, car)
	assert.Equal(t, 2, car.RacePosition)

	assert.Nil(t, snap.CarByName("nobody"))
	assert.Nil(t, (&Snapshot{}).Leader())
}
