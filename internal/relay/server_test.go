package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/sim"
)

const testTrackResolution = 400

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.Race == nil {
		track, err := sim.BuildTrack(sim.DefaultWaypoints(), testTrackResolution)
		require.NoError(t, err)
		cfg.Race = sim.New(track, sim.Config{Seed: 1})
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStream(t *testing.T, conn *websocket.Conn) *race.InboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := race.Decode(raw)
	require.NoError(t, err)
	return msg
}

type statusResponse struct {
	Started   bool         `json:"race_started"`
	Finished  bool         `json:"race_finished"`
	Time      float64      `json:"time"`
	Weather   race.Weather `json:"weather"`
	TotalLaps int          `json:"total_laps"`
}

func getStatus(t *testing.T, ts *httptest.Server) statusResponse {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/race-status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func TestRootEndpointIdentifiesServer(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info struct {
		Message  string `json:"message"`
		Version  string `json:"version"`
		Endpoint string `json:"websocket_endpoint"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Contains(t, info.Message, "race server")
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, "/ws", info.Endpoint)

	missing, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestTrackEndpoint(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/api/track")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload race.TrackPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Points, testTrackResolution)
	assert.Greater(t, payload.TotalLength, 0.0)

	post, err := http.Post(ts.URL+"/api/track", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestStartClampsWeather(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, Config{})
	body := `{"rain": 2.5, "track_temp": 100, "wind": -5}`
	resp, err := http.Post(ts.URL+"/api/start", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started struct {
		Message     string       `json:"message"`
		Weather     race.Weather `json:"weather"`
		RaceStarted bool         `json:"race_started"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.True(t, started.RaceStarted)
	assert.Equal(t, 1.0, started.Weather.Rain)
	assert.Equal(t, 50.0, started.Weather.TrackTemp)
	assert.Equal(t, 0.0, started.Weather.Wind)

	assert.True(t, getStatus(t, ts).Started)
}

func TestStartRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, Config{})
	resp, err := http.Post(ts.URL+"/api/start", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, getStatus(t, ts).Started)
}

func TestResetEndpoint(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, Config{})
	resp, err := http.Post(ts.URL+"/api/start", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	require.True(t, getStatus(t, ts).Started)

	reset, err := http.Post(ts.URL+"/api/reset", "application/json", nil)
	require.NoError(t, err)
	defer reset.Body.Close()
	require.Equal(t, http.StatusOK, reset.StatusCode)

	status := getStatus(t, ts)
	assert.False(t, status.Started)
	assert.Zero(t, status.Time)
}

func TestStatusDefaults(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, Config{})
	status := getStatus(t, ts)
	assert.False(t, status.Started)
	assert.False(t, status.Finished)
	assert.Zero(t, status.Time)
	assert.Equal(t, 36, status.TotalLaps)
}

func TestFieldChartEndpointRendersHTML(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/debug/field-chart")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)
	assert.Contains(t, page, "Race Field")
	assert.Contains(t, page, "Tyre Wear")
	assert.Contains(t, page, "echarts")

	post, err := http.Post(ts.URL+"/debug/field-chart", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestWebSocketDeliversTrackThenState(t *testing.T) {
	t.Parallel()

	s, ts := newTestServer(t, Config{})
	conn := dialWS(t, ts)

	first := readStream(t, conn)
	require.Equal(t, race.KindTrack, first.Kind)
	assert.Len(t, first.Track.Points, testTrackResolution)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	s.BroadcastOnce()
	second := readStream(t, conn)
	require.Equal(t, race.KindState, second.Kind)
	assert.Len(t, second.State.Cars, 20)
	assert.Equal(t, uint64(1), s.Stats().Broadcasts)
}

func TestWebSocketResetControl(t *testing.T) {
	t.Parallel()

	s, ts := newTestServer(t, Config{})
	conn := dialWS(t, ts)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/start", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()

	s.BroadcastOnce()
	require.Equal(t, race.KindTrack, readStream(t, conn).Kind)
	state := readStream(t, conn)
	require.Equal(t, race.KindState, state.Kind)
	assert.True(t, state.State.RaceStarted)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reset"}`)))
	require.Eventually(t, func() bool { return !getStatus(t, ts).Started },
		time.Second, 5*time.Millisecond)

	s.BroadcastOnce()
	after := readStream(t, conn)
	require.Equal(t, race.KindState, after.Kind)
	assert.False(t, after.State.RaceStarted)
	assert.Zero(t, after.State.SimTime)
}

func TestBroadcastSkipsWithoutClients(t *testing.T) {
	t.Parallel()

	s, ts := newTestServer(t, Config{})
	s.BroadcastOnce()
	assert.Zero(t, s.Stats().Broadcasts)
	assert.Zero(t, getStatus(t, ts).Time, "model must not advance for an empty room")
}

func TestAutoResetAfterFinishPause(t *testing.T) {
	t.Parallel()

	track, err := sim.BuildTrack(sim.DefaultWaypoints(), testTrackResolution)
	require.NoError(t, err)
	model := sim.New(track, sim.Config{Seed: 7, TotalLaps: 1})
	model.Start()
	for i := 0; i < 20000 && !model.Finished(); i++ {
		model.Step()
	}
	require.True(t, model.Finished())

	s, ts := newTestServer(t, Config{
		Race:           model,
		BroadcastEvery: 100 * time.Millisecond,
		FinishPause:    250 * time.Millisecond,
	})
	dialWS(t, ts)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	// Pause spans two full broadcast intervals; the third tick regrids.
	s.BroadcastOnce()
	s.BroadcastOnce()
	assert.True(t, model.Finished(), "classification still showing")
	s.BroadcastOnce()
	assert.False(t, model.Finished())
	assert.False(t, model.Started())
	assert.Zero(t, model.SimTime())
}
