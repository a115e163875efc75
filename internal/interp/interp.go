// Package interp smooths discrete car snapshots into continuous render
// motion. Position catches up to each new target with a speed-adaptive
// blend, heading blends through the shortest angular arc, and cars are
// snapped rather than interpolated on first sight and on teleports.
package interp

import (
	"math"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
)

// Server angles use the mathematical convention, zero along +x and
// counter-clockwise positive. The renderer wants a mirrored quarter turn.
// These are visually tuned constants; do not re-derive them.
const (
	RenderAngleSign   = -1.0
	RenderAngleOffset = math.Pi / 2
)

// RenderAngle converts a server-convention angle to the renderer
// convention, normalized into (-pi, pi].
func RenderAngle(sourceAngle float64) float64 {
	return normalizeAngle(RenderAngleSign*sourceAngle + RenderAngleOffset)
}

// normalizeAngle wraps into (-pi, pi].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// State is the per-car interpolation lifecycle.
type State int

const (
	// StateUnseen means the car name has never appeared in a snapshot.
	StateUnseen State = iota
	// StateInitialized means the first snapshot was applied verbatim.
	StateInitialized
	// StateTracking means the car is being interpolated frame to frame.
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateUnseen:
		return "UNSEEN"
	case StateInitialized:
		return "INITIALIZED"
	case StateTracking:
		return "TRACKING"
	default:
		return "INVALID"
	}
}

// Vec3 is a render-space coordinate. Y is up; the track plane maps to X/Z.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func dist3(a, b Vec3) float64 {
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func lerp3(a, b Vec3, t float64) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// Surface resolves a plane position to a drawable point on the track. A
// nil surface renders cars at height zero with no off-track recovery.
type Surface interface {
	ClampToTrack(x, y float64) (cx, cy, height float64, clamped bool)
}

// CarMotion is one car's render output for the current frame.
type CarMotion struct {
	Name     string
	Position Vec3
	Angle    float64 // renderer convention, radians
	State    State
	Speed    float64 // km/h, passed through for HUD use
	Clamped  bool    // position was pulled back onto the track
}

// Config tunes the blend behaviour. Zero values select the defaults from
// the tuning file.
type Config struct {
	// Position blend: factor = clamp(base + min(dist/10, 1.5)*scale,
	// base, max). The factor stays below 1 so position never overshoots
	// its target.
	PositionBaseFactor  float64
	PositionScaleFactor float64
	PositionMaxFactor   float64

	// Heading blend: factor = clamp(base + min(|delta|/pi, 1)*scale,
	// base, max). Sharper turns blend faster.
	HeadingBaseFactor  float64
	HeadingScaleFactor float64
	HeadingMaxFactor   float64

	// MinMotionThreshold gates the displacement-derived heading
	// fallback so a near-stationary car does not jitter its heading.
	MinMotionThreshold float64

	// TeleportDistance snaps instead of interpolating when the target
	// jumps farther than this in one frame (pit lane warps, resets).
	TeleportDistance float64

	// VerticalOffset lifts the car above the surface height.
	VerticalOffset float64
}

func (c *Config) applyDefaults() {
	if c.PositionBaseFactor <= 0 {
		c.PositionBaseFactor = 0.15
	}
	if c.PositionScaleFactor <= 0 {
		c.PositionScaleFactor = 0.25
	}
	if c.PositionMaxFactor <= 0 {
		c.PositionMaxFactor = 0.85
	}
	if c.HeadingBaseFactor <= 0 {
		c.HeadingBaseFactor = 0.12
	}
	if c.HeadingScaleFactor <= 0 {
		c.HeadingScaleFactor = 0.35
	}
	if c.HeadingMaxFactor <= 0 {
		c.HeadingMaxFactor = 0.65
	}
	if c.MinMotionThreshold <= 0 {
		c.MinMotionThreshold = 0.01
	}
	if c.TeleportDistance <= 0 {
		c.TeleportDistance = 30.0
	}
	if c.VerticalOffset == 0 {
		c.VerticalOffset = 0.5
	}
}

// carState is the retained smoothing state for one car name.
type carState struct {
	state   State
	pos     Vec3
	prevPos Vec3 // previous frame's render position, kept one frame
	angle   float64
}

// Interpolator holds per-car smoothing state keyed by car name. It is
// driven from the render loop only and is not safe for concurrent use.
type Interpolator struct {
	cfg        Config
	surface    Surface
	cars       map[string]*carState
	generation uint64
}

// New creates an Interpolator. surface may be nil until track geometry
// becomes available; see SetSurface.
func New(cfg Config, surface Surface) *Interpolator {
	cfg.applyDefaults()
	return &Interpolator{
		cfg:     cfg,
		surface: surface,
		cars:    make(map[string]*carState),
	}
}

// SetSurface swaps the elevation/clamp source, typically once when the
// track payload arrives after the first car snapshots.
func (ip *Interpolator) SetSurface(surface Surface) {
	ip.surface = surface
}

// Reset drops all per-car state. The next frame re-initializes every car
// directly at its source position.
func (ip *Interpolator) Reset() {
	ip.cars = make(map[string]*carState)
}

// Prune drops retained state for cars absent from names. A retired car
// otherwise keeps its entry until the next race generation.
func (ip *Interpolator) Prune(names []string) {
	if len(ip.cars) == 0 {
		return
	}
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	for name := range ip.cars {
		if _, ok := keep[name]; !ok {
			delete(ip.cars, name)
		}
	}
}

// CarCount returns the number of cars with retained smoothing state.
func (ip *Interpolator) CarCount() int { return len(ip.cars) }

// Advance runs one render frame against the latest snapshot cars. The
// same snapshot may be seen across many frames and snapshots may be
// skipped entirely; only the latest matters. A generation change prunes
// all retained state so stale cars never leak across race resets.
// Results are returned in input order.
func (ip *Interpolator) Advance(cars []race.CarState, generation uint64) []CarMotion {
	if generation != ip.generation {
		ip.generation = generation
		ip.cars = make(map[string]*carState)
	}

	out := make([]CarMotion, 0, len(cars))
	for i := range cars {
		out = append(out, ip.advanceCar(&cars[i]))
	}
	return out
}

func (ip *Interpolator) advanceCar(car *race.CarState) CarMotion {
	target, clamped := ip.resolveTarget(car.X, car.Y)

	cs, ok := ip.cars[car.Name]
	if !ok {
		// First sight: apply source values verbatim so the car does
		// not visibly fly in from the origin.
		cs = &carState{
			state:   StateInitialized,
			pos:     target,
			prevPos: target,
		}
		if car.HasAngle {
			cs.angle = RenderAngle(car.Angle)
		}
		ip.cars[car.Name] = cs
		return ip.motion(car, cs, clamped)
	}

	dist := dist3(cs.pos, target)
	if dist > ip.cfg.TeleportDistance {
		cs.pos = target
		cs.prevPos = target
		if car.HasAngle {
			cs.angle = RenderAngle(car.Angle)
		}
		cs.state = StateTracking
		return ip.motion(car, cs, clamped)
	}

	factor := clampFactor(
		ip.cfg.PositionBaseFactor+math.Min(dist/10, 1.5)*ip.cfg.PositionScaleFactor,
		ip.cfg.PositionBaseFactor, ip.cfg.PositionMaxFactor)
	cs.prevPos = cs.pos
	cs.pos = lerp3(cs.pos, target, factor)

	targetAngle, haveAngle := ip.resolveHeading(car, cs)
	if haveAngle {
		delta := normalizeAngle(targetAngle - cs.angle)
		blend := clampFactor(
			ip.cfg.HeadingBaseFactor+math.Min(math.Abs(delta)/math.Pi, 1.0)*ip.cfg.HeadingScaleFactor,
			ip.cfg.HeadingBaseFactor, ip.cfg.HeadingMaxFactor)
		cs.angle = normalizeAngle(cs.angle + delta*blend)
	}

	cs.state = StateTracking
	return ip.motion(car, cs, clamped)
}

// resolveTarget maps a source plane position to the 3D render target.
func (ip *Interpolator) resolveTarget(x, y float64) (Vec3, bool) {
	cx, cy, height := x, y, 0.0
	clamped := false
	if ip.surface != nil {
		cx, cy, height, clamped = ip.surface.ClampToTrack(x, y)
	}
	return Vec3{X: cx, Y: height + ip.cfg.VerticalOffset, Z: cy}, clamped
}

// resolveHeading picks the heading target: the explicit source angle when
// present, otherwise the displacement of the interpolated position across
// this frame once it exceeds the minimum-motion threshold.
func (ip *Interpolator) resolveHeading(car *race.CarState, cs *carState) (float64, bool) {
	if car.HasAngle {
		return RenderAngle(car.Angle), true
	}
	dx := cs.pos.X - cs.prevPos.X
	dz := cs.pos.Z - cs.prevPos.Z
	if math.Hypot(dx, dz) <= ip.cfg.MinMotionThreshold {
		return 0, false
	}
	return RenderAngle(math.Atan2(dz, dx)), true
}

func (ip *Interpolator) motion(car *race.CarState, cs *carState, clamped bool) CarMotion {
	return CarMotion{
		Name:     car.Name,
		Position: cs.pos,
		Angle:    cs.angle,
		State:    cs.state,
		Speed:    car.Speed,
		Clamped:  clamped,
	}
}

func clampFactor(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
