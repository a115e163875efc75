// Package view tracks what the user is looking at: a pan/zoom camera over
// the track plane with an optional follow target.
package view

import (
	"github.com/Darshbir/toyota-gr-sim/internal/interp"
)

// Mode is the camera steering mode.
type Mode int

const (
	// ModeFree leaves the center wherever the user last dragged it.
	ModeFree Mode = iota
	// ModeFollow pulls the center toward a chosen car every frame.
	ModeFollow
)

func (m Mode) String() string {
	if m == ModeFollow {
		return "FOLLOW"
	}
	return "FREE"
}

// Config tunes the camera. Zero values select the tuning-file defaults.
type Config struct {
	ZoomMin     float64
	ZoomMax     float64
	ZoomDefault float64

	// PullFactor is the per-frame blend toward the followed car. Kept
	// below 1 so the camera glides rather than snaps.
	PullFactor float64
}

func (c *Config) applyDefaults() {
	if c.ZoomMin <= 0 {
		c.ZoomMin = 0.5
	}
	if c.ZoomMax <= c.ZoomMin {
		c.ZoomMax = 4.0
	}
	if c.ZoomDefault <= 0 {
		c.ZoomDefault = 1.0
	}
	if c.PullFactor <= 0 || c.PullFactor >= 1 {
		c.PullFactor = 0.12
	}
}

// Camera is the view state machine. It is driven from the render loop and
// input handlers only and is not safe for concurrent use.
type Camera struct {
	cfg Config

	mode       Mode
	followName string

	centerX float64
	centerZ float64
	zoom    float64

	defaultX    float64
	defaultZ    float64
	defaultZoom float64

	touched bool // user panned or zoomed since the default framing
}

// New creates a camera at the default framing centered on the origin.
func New(cfg Config) *Camera {
	cfg.applyDefaults()
	c := &Camera{cfg: cfg}
	c.defaultZoom = clampZoom(cfg.ZoomDefault, cfg)
	c.zoom = c.defaultZoom
	return c
}

// SetDefaultFraming records the framing ResetView returns to, typically
// the track bounds center once geometry is built. If the user has not
// panned or zoomed yet, the camera snaps there immediately.
func (c *Camera) SetDefaultFraming(x, z, zoom float64) {
	c.defaultX = x
	c.defaultZ = z
	c.defaultZoom = clampZoom(zoom, c.cfg)
	if !c.touched && c.mode == ModeFree {
		c.centerX = x
		c.centerZ = z
		c.zoom = c.defaultZoom
	}
}

// Mode returns the current steering mode.
func (c *Camera) Mode() Mode { return c.mode }

// FollowedCar returns the follow target, if any.
func (c *Camera) FollowedCar() (string, bool) {
	if c.mode != ModeFollow {
		return "", false
	}
	return c.followName, true
}

// Center returns the view center on the track plane.
func (c *Camera) Center() (x, z float64) { return c.centerX, c.centerZ }

// Zoom returns the current zoom level.
func (c *Camera) Zoom() float64 { return c.zoom }

// ToggleFollow selects a car to follow. Selecting the car already being
// followed drops back to free mode; selecting a different car retargets
// the follow without a mode round-trip.
func (c *Camera) ToggleFollow(name string) {
	if c.mode == ModeFollow && c.followName == name {
		c.mode = ModeFree
		c.followName = ""
		return
	}
	c.mode = ModeFollow
	c.followName = name
}

// Pan shifts the view center. Panning while following nudges the center
// but does not break the follow; the next frames pull it back.
func (c *Camera) Pan(dx, dz float64) {
	c.centerX += dx
	c.centerZ += dz
	c.touched = true
}

// ZoomBy scales the zoom level multiplicatively, clamped to the
// configured range.
func (c *Camera) ZoomBy(factor float64) {
	if factor <= 0 {
		return
	}
	c.zoom = clampZoom(c.zoom*factor, c.cfg)
	c.touched = true
}

// SetZoom sets the zoom level directly, clamped to the configured range.
func (c *Camera) SetZoom(zoom float64) {
	c.zoom = clampZoom(zoom, c.cfg)
	c.touched = true
}

// ResetView returns to the default framing and free mode. Calling it any
// number of times lands on exactly the same state.
func (c *Camera) ResetView() {
	c.mode = ModeFree
	c.followName = ""
	c.centerX = c.defaultX
	c.centerZ = c.defaultZ
	c.zoom = c.defaultZoom
	c.touched = false
}

// Advance runs one frame of camera motion. In follow mode the center is
// pulled toward the followed car's render position with a bounded blend;
// a follow target missing from this frame leaves the center where it is.
func (c *Camera) Advance(motions []interp.CarMotion) {
	if c.mode != ModeFollow {
		return
	}
	for i := range motions {
		if motions[i].Name != c.followName {
			continue
		}
		pos := motions[i].Position
		c.centerX += (pos.X - c.centerX) * c.cfg.PullFactor
		c.centerZ += (pos.Z - c.centerZ) * c.cfg.PullFactor
		return
	}
}

func clampZoom(z float64, cfg Config) float64 {
	if z < cfg.ZoomMin {
		return cfg.ZoomMin
	}
	if z > cfg.ZoomMax {
		return cfg.ZoomMax
	}
	return z
}
