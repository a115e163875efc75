// Package viewer is the interactive race window: an ebiten app that
// paints engine frames and turns mouse and keyboard input into camera
// moves and race control calls.
package viewer

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/bitmapfont/v3"
	"github.com/hajimehoshi/ebiten/v2"
	text "github.com/hajimehoshi/ebiten/v2/text/v2"

	"github.com/Darshbir/toyota-gr-sim/internal/control"
	"github.com/Darshbir/toyota-gr-sim/internal/render"
	"github.com/Darshbir/toyota-gr-sim/internal/units"
	"github.com/Darshbir/toyota-gr-sim/internal/view"
)

const controlTimeout = 5 * time.Second

// Config holds the app's collaborators and window tuning.
type Config struct {
	Engine *render.Engine
	Camera *view.Camera

	// Control sends start/reset to the server. Nil disables the race
	// control keys.
	Control *control.Client

	// StartOptions is the weather sent with the start command.
	StartOptions control.StartOptions

	// Width and Height set the logical screen size. Default 1280x720.
	Width  int
	Height int

	Title     string
	SpeedUnit string // units identifier for HUD speeds
}

func (c *Config) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.Title == "" {
		c.Title = "Pitwall"
	}
	if !units.IsValid(c.SpeedUnit) {
		c.SpeedUnit = units.KPH
	}
}

// viewMode selects how the world is painted. The HUD is identical in
// both modes.
type viewMode int

const (
	modeTopDown viewMode = iota
	modePerspective
)

func (m viewMode) String() string {
	if m == modePerspective {
		return "3D"
	}
	return "2D"
}

// App implements ebiten.Game. Update and Draw run on the game loop
// goroutine only; control calls go out on their own goroutines.
type App struct {
	cfg  Config
	face text.Face

	frame *render.Frame
	mode  viewMode
	scene *render.ScenePainter

	pointer  pointer
	fitScale float64 // pixels per world unit at zoom 1; 0 until geometry

	track *trackBatch // cached ribbon vertex data

	controlBusy atomic.Bool
	status      atomic.Value // string, last control feedback line
}

// New creates the app. Run starts the window loop.
func New(cfg Config) *App {
	cfg.applyDefaults()
	a := &App{
		cfg:   cfg,
		face:  text.NewGoXFace(bitmapfont.Face),
		scene: render.NewScenePainter(render.SceneConfig{Width: cfg.Width, Height: cfg.Height}),
	}
	a.status.Store("")
	return a
}

// Run opens the window and blocks until it is closed.
func (a *App) Run() error {
	ebiten.SetWindowSize(a.cfg.Width, a.cfg.Height)
	ebiten.SetWindowTitle(a.cfg.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	log.Printf("[Viewer] window %dx%d", a.cfg.Width, a.cfg.Height)
	return ebiten.RunGame(a)
}

// Update handles input and assembles the frame for the next Draw.
func (a *App) Update() error {
	if a.cfg.Engine.RefreshGeometry() && a.fitScale == 0 {
		if geom, ok := a.cfg.Engine.Geometry(); ok {
			minX, minY, maxX, maxY := geom.Bounds()
			a.fitScale = fitScale(minX, minY, maxX, maxY, a.cfg.Width, a.cfg.Height)
			a.track = newTrackBatch(geom)
		}
	}

	if err := a.applyInput(readInput()); err != nil {
		return err
	}

	a.frame = a.cfg.Engine.BuildFrame()
	if a.mode == modePerspective {
		a.scene.Consume(a.frame)
	}
	return nil
}

// Draw paints the last assembled frame.
func (a *App) Draw(screen *ebiten.Image) {
	frame := a.frame
	if frame == nil {
		screen.Fill(backgroundColor)
		a.drawCentered(screen, "connecting...", float64(a.cfg.Height)/2, 2, hudDimColor)
		return
	}

	screen.Fill(backgroundColor)
	if a.mode == modePerspective {
		a.paintScene(screen)
	} else {
		tr := a.transform()
		if a.track != nil {
			a.track.draw(screen, tr)
		}
		a.paintCars(screen, tr, frame)
	}
	a.paintHUD(screen, frame)
}

// Layout fixes the logical resolution; ebiten scales it to the window.
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return a.cfg.Width, a.cfg.Height
}

// transform maps the track plane onto the screen for the camera's
// current center and zoom.
func (a *App) transform() transform {
	scale := a.fitScale
	if scale <= 0 {
		scale = 1
	}
	cx, cz := a.cfg.Camera.Center()
	return transform{
		centerX: cx,
		centerZ: cz,
		scale:   scale * a.cfg.Camera.Zoom(),
		w:       a.cfg.Width,
		h:       a.cfg.Height,
	}
}

// startRace posts the start command without blocking the game loop. One
// call in flight at a time; further presses are ignored until it lands.
func (a *App) startRace() {
	if a.cfg.Control == nil || !a.controlBusy.CompareAndSwap(false, true) {
		return
	}
	a.status.Store("race control: starting...")
	go func() {
		defer a.controlBusy.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		if err := a.cfg.Control.StartRace(ctx, a.cfg.StartOptions); err != nil {
			log.Printf("[Viewer] start race: %v", err)
			a.status.Store("race control: start failed (" + err.Error() + ")")
			return
		}
		a.status.Store("race control: race started")
	}()
}

// fitScale returns the pixels per world unit that frame the whole track
// at zoom 1, with a margin around the bounds.
func fitScale(minX, minY, maxX, maxY float64, w, h int) float64 {
	const margin = 1.15
	spanX := (maxX - minX) * margin
	spanY := (maxY - minY) * margin
	if spanX <= 0 || spanY <= 0 {
		return 1
	}
	sx := float64(w) / spanX
	sy := float64(h) / spanY
	if sx < sy {
		return sx
	}
	return sy
}

// transform maps between the track plane (X east, Z south) and screen
// pixels. Screen Y grows downward, matching plane Z.
type transform struct {
	centerX, centerZ float64
	scale            float64
	w, h             int
}

func (tr transform) toScreen(x, z float64) (sx, sy float64) {
	return (x-tr.centerX)*tr.scale + float64(tr.w)/2,
		(z-tr.centerZ)*tr.scale + float64(tr.h)/2
}

func (tr transform) toWorld(sx, sy float64) (x, z float64) {
	return (sx-float64(tr.w)/2)/tr.scale + tr.centerX,
		(sy-float64(tr.h)/2)/tr.scale + tr.centerZ
}
