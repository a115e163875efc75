package viewer

import (
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darshbir/toyota-gr-sim/internal/control"
	"github.com/Darshbir/toyota-gr-sim/internal/httputil"
	"github.com/Darshbir/toyota-gr-sim/internal/interp"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/render"
	"github.com/Darshbir/toyota-gr-sim/internal/view"
)

func newTestApp() *App {
	a := New(Config{Camera: view.New(view.Config{})})
	a.fitScale = 2 // pixels per world unit at zoom 1
	return a
}

func frameWithCars(cars ...render.Car) *render.Frame {
	return &render.Frame{Cars: cars}
}

func carAtWorld(name string, x, z float64) render.Car {
	return render.Car{Name: name, Position: interp.Vec3{X: x, Y: 0.5, Z: z}}
}

func TestTransformRoundTrip(t *testing.T) {
	t.Parallel()

	tr := transform{centerX: 50, centerZ: -20, scale: 3, w: 1280, h: 720}
	sx, sy := tr.toScreen(50, -20)
	assert.InDelta(t, 640, sx, 1e-9)
	assert.InDelta(t, 360, sy, 1e-9)

	x, z := tr.toWorld(sx+30, sy-15)
	assert.InDelta(t, 60, x, 1e-9)
	assert.InDelta(t, -25, z, 1e-9)
}

func TestFitScaleFramesBounds(t *testing.T) {
	t.Parallel()

	// A 1000x200 track in a 1280x720 window: width is the tight side.
	s := fitScale(0, 0, 1000, 200, 1280, 720)
	assert.InDelta(t, 1280.0/(1000*1.15), s, 1e-9)

	// Degenerate bounds fall back to unit scale.
	assert.Equal(t, 1.0, fitScale(5, 5, 5, 5, 1280, 720))
}

func TestCarTriangleFollowsRenderHeading(t *testing.T) {
	t.Parallel()

	// Render angle zero points down-screen.
	c := carTriangle(100, 100, 0, 10)
	assert.InDelta(t, 100, c[0][0], 1e-9)
	assert.InDelta(t, 110, c[0][1], 1e-9)

	// pi/2 points right.
	c = carTriangle(100, 100, math.Pi/2, 10)
	assert.InDelta(t, 110, c[0][0], 1e-9)
	assert.InDelta(t, 100, c[0][1], 1e-9)

	// Base corners sit behind the tip, symmetric about the heading.
	backMidX := (c[1][0] + c[2][0]) / 2
	backMidY := (c[1][1] + c[2][1]) / 2
	assert.Less(t, backMidX, 100.0)
	assert.InDelta(t, 100, backMidY, 1e-9)
}

func TestParseHexColor(t *testing.T) {
	t.Parallel()

	fallback := color.RGBA{1, 2, 3, 0xff}
	assert.Equal(t, color.RGBA{0xff, 0x52, 0x52, 0xff}, parseHexColor("#ff5252", fallback))
	assert.Equal(t, fallback, parseHexColor("red", fallback))
	assert.Equal(t, fallback, parseHexColor("", fallback))
}

func TestZoomAtKeepsCursorPointFixed(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	cursorX, cursorY := 900, 200

	before := a.transform()
	wx, wz := before.toWorld(float64(cursorX), float64(cursorY))

	a.zoomAt(cursorX, cursorY, 1.5)

	after := a.transform()
	ax, az := after.toWorld(float64(cursorX), float64(cursorY))
	assert.InDelta(t, wx, ax, 1e-9)
	assert.InDelta(t, wz, az, 1e-9)
	assert.InDelta(t, 1.5, a.cfg.Camera.Zoom(), 1e-9)
}

func TestWheelZoomClampDoesNotDriftView(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	a.cfg.Camera.SetZoom(4.0) // already at the configured max

	before := a.transform()
	wx, wz := before.toWorld(900, 200)
	a.zoomAt(900, 200, 2.0)

	after := a.transform()
	ax, az := after.toWorld(900, 200)
	assert.InDelta(t, wx, ax, 1e-9)
	assert.InDelta(t, wz, az, 1e-9)
	assert.InDelta(t, 4.0, a.cfg.Camera.Zoom(), 1e-9)
}

func TestDragPansCameraWithoutSelecting(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	a.frame = frameWithCars(carAtWorld("Keller", 0, 0))

	require.NoError(t, a.applyInput(inputState{cursorX: 640, cursorY: 360, leftPressed: true, leftJustPressed: true}))
	require.NoError(t, a.applyInput(inputState{cursorX: 680, cursorY: 340, leftPressed: true}))
	require.NoError(t, a.applyInput(inputState{cursorX: 680, cursorY: 340}))

	// Dragging right moves the view center left, in world units.
	cx, cz := a.cfg.Camera.Center()
	assert.InDelta(t, -40.0/2, cx, 1e-9)
	assert.InDelta(t, 20.0/2, cz, 1e-9)

	_, following := a.cfg.Camera.FollowedCar()
	assert.False(t, following, "a drag must not toggle follow")
}

func TestClickOnCarTogglesFollow(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	// World origin maps to screen center at 1280x720.
	a.frame = frameWithCars(carAtWorld("Keller", 0, 0), carAtWorld("Moreira", 100, 100))

	press := inputState{cursorX: 642, cursorY: 361, leftPressed: true, leftJustPressed: true}
	release := inputState{cursorX: 642, cursorY: 361}
	require.NoError(t, a.applyInput(press))
	require.NoError(t, a.applyInput(release))

	name, ok := a.cfg.Camera.FollowedCar()
	require.True(t, ok)
	assert.Equal(t, "Keller", name)

	// Clicking the same car again drops back to free mode.
	require.NoError(t, a.applyInput(press))
	require.NoError(t, a.applyInput(release))
	_, ok = a.cfg.Camera.FollowedCar()
	assert.False(t, ok)
}

func TestClickOnEmptyTrackKeepsMode(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	a.frame = frameWithCars(carAtWorld("Keller", 500, 500))

	require.NoError(t, a.applyInput(inputState{cursorX: 100, cursorY: 100, leftPressed: true, leftJustPressed: true}))
	require.NoError(t, a.applyInput(inputState{cursorX: 100, cursorY: 100}))

	_, ok := a.cfg.Camera.FollowedCar()
	assert.False(t, ok)
}

func TestResetKeyRestoresDefaultFraming(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	a.cfg.Camera.Pan(40, -25)
	a.cfg.Camera.SetZoom(3)

	require.NoError(t, a.applyInput(inputState{resetView: true}))
	cx, cz := a.cfg.Camera.Center()
	assert.Zero(t, cx)
	assert.Zero(t, cz)
	assert.InDelta(t, 1.0, a.cfg.Camera.Zoom(), 1e-9)
}

func TestEscapeTerminatesGame(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	err := a.applyInput(inputState{quit: true})
	assert.ErrorIs(t, err, ebiten.Termination)
}

func TestSpaceStartsRaceViaControlClient(t *testing.T) {
	t.Parallel()

	client := httputil.NewMockHTTPClient()
	client.AddResponse(200, `{}`)
	a := New(Config{
		Camera:       view.New(view.Config{}),
		Control:      control.NewClient("http://sim.local", client),
		StartOptions: control.StartOptions{Rain: 0.3},
	})

	require.NoError(t, a.applyInput(inputState{startRace: true}))
	require.Eventually(t, func() bool {
		return client.RequestCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	req := client.GetRequest(0)
	require.NotNil(t, req)
	assert.Equal(t, "http://sim.local/api/start", req.URL.String())

	require.Eventually(t, func() bool {
		s, _ := a.status.Load().(string)
		return s == "race control: race started"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSpaceWithoutControlClientIsIgnored(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	require.NoError(t, a.applyInput(inputState{startRace: true}))
	s, _ := a.status.Load().(string)
	assert.Empty(t, s)
}

func TestSelectedCarLineFormatsTelemetry(t *testing.T) {
	t.Parallel()

	frame := frameWithCars(
		render.Car{Name: "Keller", Rank: 2, Speed: 250, Fuel: 61, Wear: 34, Laps: 12},
		render.Car{Name: "Moreira", Rank: 1, Selected: true, Speed: 252.4, Fuel: 58, Wear: 40, Laps: 12, OnPit: true, Clamped: true},
	)
	line, ok := selectedCarLine(frame, "kph")
	require.True(t, ok)
	assert.Equal(t, "P1 Moreira  252 kph  fuel 58%  wear 40%  lap 12  PIT  OFF TRACK", line)

	_, ok = selectedCarLine(frameWithCars(render.Car{Name: "Keller"}), "kph")
	assert.False(t, ok)
}

func TestGapStringLeaderAndChasers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "LEADER", gapString(&render.Car{Rank: 1}))
	assert.Equal(t, "+2.4s", gapString(&render.Car{Rank: 2, TimeInterval: 2.44}))
}

func TestTruncateName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Keller", truncateName("Keller", 18))
	assert.Equal(t, "a very long drive~", truncateName("a very long driver name", 18))
}

func TestMaxLapsAcrossField(t *testing.T) {
	t.Parallel()

	frame := frameWithCars(render.Car{Laps: 3}, render.Car{Laps: 7}, render.Car{Laps: 5})
	assert.Equal(t, 7, maxLaps(frame))
	assert.Zero(t, maxLaps(&render.Frame{}))
}

func TestHitTestPrefersNearestCar(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	// Two cars close together in world space; at fitScale 2 they are
	// 10 screen pixels apart.
	a.frame = frameWithCars(carAtWorld("Keller", 0, 0), carAtWorld("Moreira", 5, 0))

	name, ok := a.carAt(640+10, 360)
	require.True(t, ok)
	assert.Equal(t, "Moreira", name)

	name, ok = a.carAt(640, 360)
	require.True(t, ok)
	assert.Equal(t, "Keller", name)

	_, ok = a.carAt(640, 360+100)
	assert.False(t, ok)
}

func TestRaceEventsUnchangedByViewerState(t *testing.T) {
	t.Parallel()

	// The ticker draws frame events as-is; guard the shared frame is
	// not mutated by input handling.
	a := newTestApp()
	frame := &render.Frame{Events: []race.Event{{Type: race.EventLapComplete, Car: "Keller"}}}
	a.frame = frame
	require.NoError(t, a.applyInput(inputState{cursorX: 10, cursorY: 10, leftPressed: true, leftJustPressed: true}))
	require.NoError(t, a.applyInput(inputState{cursorX: 10, cursorY: 10}))
	assert.Len(t, frame.Events, 1)
}

func TestViewKeyTogglesPerspective(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	assert.Equal(t, "2D", a.mode.String())

	require.NoError(t, a.applyInput(inputState{toggleView: true}))
	assert.Equal(t, modePerspective, a.mode)
	assert.Equal(t, "3D", a.mode.String())

	require.NoError(t, a.applyInput(inputState{toggleView: true}))
	assert.Equal(t, modeTopDown, a.mode)
}

func TestPerspectiveWheelZoomSkipsCursorAnchor(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	a.mode = modePerspective

	// Off-center wheel zoom: the eye moves along the view axis, so the
	// camera center must not drift toward the cursor.
	require.NoError(t, a.applyInput(inputState{cursorX: 900, cursorY: 200, wheelY: 1}))
	cx, cz := a.cfg.Camera.Center()
	assert.Zero(t, cx)
	assert.Zero(t, cz)
	assert.Greater(t, a.cfg.Camera.Zoom(), 1.0)
}

func TestPerspectiveClickFollowsProjectedCar(t *testing.T) {
	t.Parallel()

	a := newTestApp()
	a.mode = modePerspective

	// A car at the camera focus projects to the screen center.
	a.frame = frameWithCars(carAtWorld("Keller", 0, 0))
	a.scene.Consume(a.frame)

	require.NoError(t, a.applyInput(inputState{cursorX: 640, cursorY: 360, leftPressed: true, leftJustPressed: true}))
	require.NoError(t, a.applyInput(inputState{cursorX: 640, cursorY: 360}))

	name, ok := a.cfg.Camera.FollowedCar()
	require.True(t, ok)
	assert.Equal(t, "Keller", name)
}
