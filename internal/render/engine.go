// Package render turns the latest race state into per-frame draw input:
// interpolated car tuples, camera framing and HUD context. Renderer
// backends are sinks of the same Frame type; a 2D painter and a headless
// console consumer differ only in what they do with it.
package render

import (
	"log"
	"sync/atomic"

	"github.com/Darshbir/toyota-gr-sim/internal/interp"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/trackgeom"
	"github.com/Darshbir/toyota-gr-sim/internal/view"
)

// Car is one car's draw tuple for the current frame.
type Car struct {
	Name     string
	Color    string
	Position interp.Vec3
	Angle    float64
	Selected bool
	Clamped  bool

	// Leaderboard context carried through for HUD drawing.
	Rank         int
	Laps         int
	Tyre         string
	Wear         float64
	Fuel         float64
	Speed        float64 // km/h
	OnPit        bool
	TimeInterval float64
	DRSActive    bool
}

// Frame is one complete render pass input. Frames are built fresh every
// pass and never mutated afterwards, so sinks may retain them.
type Frame struct {
	ID        uint64
	SimTime   float64
	Connected bool

	RaceStarted  bool
	RaceFinished bool
	TotalLaps    int
	Weather      race.Weather

	Cars   []Car
	Events []race.Event

	// Geometry is the installed track mesh, nil until built. It is
	// immutable and shared across frames.
	Geometry *trackgeom.Geometry

	CenterX     float64
	CenterZ     float64
	Zoom        float64
	FollowedCar string // empty when the camera is free
}

// Sink consumes completed frames.
type Sink interface {
	Consume(frame *Frame)
}

// ConnectionStatus reports transport health for the HUD indicator.
type ConnectionStatus interface {
	Connected() bool
}

// Config holds the engine's collaborators.
type Config struct {
	Store      *race.Store
	Interp     *interp.Interpolator
	Camera     *view.Camera
	Connection ConnectionStatus // nil reads as disconnected

	// Track tunes ribbon construction when RefreshGeometry builds the
	// geometry from the store's payload.
	Track trackgeom.Config

	// MaxEvents bounds the event ticker shown per frame. Default 5.
	MaxEvents int
}

// Engine assembles frames from the store, interpolator and camera. It is
// driven from the render loop only.
type Engine struct {
	cfg       Config
	geom      *trackgeom.Geometry
	triedGeom *race.TrackPayload // last payload a build was attempted for
	frameID   atomic.Uint64
}

// NewEngine creates a frame assembler.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 5
	}
	return &Engine{cfg: cfg}
}

// SetGeometry installs the track geometry once it is built: the
// interpolator gains its elevation/clamp surface and the camera gets a
// default framing centered on the track bounds.
func (e *Engine) SetGeometry(g *trackgeom.Geometry) {
	e.geom = g
	if e.cfg.Interp != nil {
		e.cfg.Interp.SetSurface(g)
	}
	if e.cfg.Camera != nil {
		minX, minY, maxX, maxY := g.Bounds()
		e.cfg.Camera.SetDefaultFraming((minX+maxX)/2, (minY+maxY)/2, e.cfg.Camera.Zoom())
	}
}

// Geometry returns the installed track geometry, if any.
func (e *Engine) Geometry() (*trackgeom.Geometry, bool) {
	return e.geom, e.geom != nil
}

// RefreshGeometry builds and installs geometry the first time the store
// holds a track payload. Safe to call every frame; a payload that fails
// to build is not retried until a different payload arrives. Returns
// true once geometry is installed.
func (e *Engine) RefreshGeometry() bool {
	if e.geom != nil {
		return true
	}
	payload, ok := e.cfg.Store.Track()
	if !ok || payload == e.triedGeom {
		return e.geom != nil
	}
	e.triedGeom = payload

	pts := make([]trackgeom.Point, 0, len(payload.Points))
	for _, p := range payload.Points {
		if len(p) < 2 {
			continue
		}
		pts = append(pts, trackgeom.Point{X: p[0], Y: p[1]})
	}
	g, err := trackgeom.Build(pts, e.cfg.Track)
	if err != nil {
		log.Printf("[Render] track geometry rejected: %v", err)
		return false
	}
	e.SetGeometry(g)
	log.Printf("[Render] track geometry ready: %d rings, length %.0fm", len(g.Samples()), g.Length())
	return true
}

// BuildFrame advances interpolation and camera motion one step and
// assembles the draw input for this pass. Cars appear in snapshot
// (leaderboard) order.
func (e *Engine) BuildFrame() *Frame {
	snap := e.cfg.Store.CurrentSnapshot()
	motions := e.cfg.Interp.Advance(snap.Cars, e.cfg.Store.Generation())
	if e.cfg.Interp.CarCount() > len(snap.Cars) {
		names := make([]string, len(snap.Cars))
		for i := range snap.Cars {
			names[i] = snap.Cars[i].Name
		}
		e.cfg.Interp.Prune(names)
	}
	e.cfg.Camera.Advance(motions)

	followed, following := e.cfg.Camera.FollowedCar()
	centerX, centerZ := e.cfg.Camera.Center()

	frame := &Frame{
		ID:           e.frameID.Add(1),
		SimTime:      snap.SimTime,
		Connected:    e.cfg.Connection != nil && e.cfg.Connection.Connected(),
		RaceStarted:  snap.RaceStarted,
		RaceFinished: snap.RaceFinished,
		TotalLaps:    snap.TotalLaps,
		Weather:      snap.Weather,
		Cars:         make([]Car, 0, len(motions)),
		Events:       e.cfg.Store.RecentEvents(e.cfg.MaxEvents),
		Geometry:     e.geom,
		CenterX:      centerX,
		CenterZ:      centerZ,
		Zoom:         e.cfg.Camera.Zoom(),
	}
	if following {
		frame.FollowedCar = followed
	}

	for i := range motions {
		src := &snap.Cars[i]
		m := &motions[i]
		frame.Cars = append(frame.Cars, Car{
			Name:         src.Name,
			Color:        src.Color,
			Position:     m.Position,
			Angle:        m.Angle,
			Selected:     following && src.Name == followed,
			Clamped:      m.Clamped,
			Rank:         src.RacePosition,
			Laps:         src.Laps,
			Tyre:         src.TyreCompound,
			Wear:         src.TyreWear,
			Fuel:         src.Fuel,
			Speed:        src.Speed,
			OnPit:        src.OnPit,
			TimeInterval: src.TimeInterval,
			DRSActive:    src.DRSActive,
		})
	}
	return frame
}
