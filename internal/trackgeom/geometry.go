// Package trackgeom turns the one-time track centerline payload into
// renderable geometry: a closed spline fit, a twist-free ribbon surface
// with synthetic elevation, boundary marking ribbons, and nearest-point
// queries used to keep cars visually on the track.
package trackgeom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// Point is a 2D coordinate on the track plane.
type Point struct {
	X float64
	Y float64
}

// Vertex is a 3D render coordinate. Y is up; the track plane maps to X/Z.
type Vertex struct {
	X float64
	Y float64
	Z float64
}

// Sample is one resampled station along the closed spline.
type Sample struct {
	Pos     Point   // plane position
	Height  float64 // synthetic elevation
	Tangent Point   // unit tangent along travel direction
	Normal  Point   // unit in-plane normal (world-up cross tangent)
	U       float64 // fractional index into the original centerline
}

// Ring is one cross-section of a ribbon mesh.
type Ring struct {
	Center Vertex
	Left   Vertex
	Right  Vertex
}

// Mesh is a triangle strip around the loop. Vertices holds two entries per
// ring (left edge, right edge); Indices holds two triangles per segment,
// including the closing segment back to ring zero.
type Mesh struct {
	Rings    []Ring
	Vertices []Vertex
	Indices  []uint32
}

// Config controls ribbon construction. Zero values select the defaults
// used by the viewer tuning file.
type Config struct {
	// Width is the full track surface width.
	Width float64

	// SampleCount is the number of rings along the spline. Zero means
	// one ring per original centerline point.
	SampleCount int

	// BoundaryWidth is the full width of the edge marking ribbons.
	BoundaryWidth float64

	// BoundaryMultiplier scales the boundary sampling density relative
	// to SampleCount.
	BoundaryMultiplier int

	// Elevation wave parameters. Heights are
	// amp1*|sin(freq1*phase)| + amp2*|sin(freq2*phase)| with phase one
	// full turn per lap, so every height is >= 0.
	ElevationAmp1  float64
	ElevationFreq1 float64
	ElevationAmp2  float64
	ElevationFreq2 float64

	// ClampTolerance extends the half-width when deciding whether a
	// query point is off the surface.
	ClampTolerance float64
}

func (c *Config) applyDefaults(pointCount int) {
	if c.Width <= 0 {
		c.Width = 10.0
	}
	if c.SampleCount < 3 {
		c.SampleCount = pointCount
	}
	if c.BoundaryWidth <= 0 {
		c.BoundaryWidth = 0.8
	}
	if c.BoundaryMultiplier < 1 {
		c.BoundaryMultiplier = 2
	}
	if c.ElevationAmp1 == 0 && c.ElevationAmp2 == 0 {
		c.ElevationAmp1 = 1.5
		c.ElevationAmp2 = 0.8
	}
	if c.ElevationFreq1 == 0 {
		c.ElevationFreq1 = 3.0
	}
	if c.ElevationFreq2 == 0 {
		c.ElevationFreq2 = 7.0
	}
	if c.ClampTolerance <= 0 {
		c.ClampTolerance = 2.0
	}
}

// boundaryLift keeps edge markings fractionally above the surface so the
// two ribbons do not coincide.
const boundaryLift = 0.02

// Geometry is the immutable product of Build. All methods are safe for
// concurrent readers.
type Geometry struct {
	cfg        Config
	period     float64 // original centerline point count
	samples    []Sample
	surface    *Mesh
	boundaries [2]*Mesh
	length     float64
	minX, minY float64
	maxX, maxY float64
}

// Build fits a closed spline through the centerline and constructs the
// surface and boundary ribbons. The centerline must contain at least three
// distinct points; a duplicated closing point is tolerated and removed.
func Build(centerline []Point, cfg Config) (*Geometry, error) {
	pts := dedupClosed(centerline)
	if len(pts) < 3 {
		return nil, fmt.Errorf("track centerline needs at least 3 distinct points, got %d", len(pts))
	}
	cfg.applyDefaults(len(pts))

	curve, err := fitClosed(pts)
	if err != nil {
		return nil, fmt.Errorf("fit track spline: %w", err)
	}

	g := &Geometry{cfg: cfg, period: float64(len(pts))}
	g.samples = g.resample(curve, cfg.SampleCount)

	half := cfg.Width / 2
	g.surface = buildRibbon(g.samples, 0, half, 0)
	dense := g.samples
	if cfg.BoundaryMultiplier > 1 {
		dense = g.resample(curve, cfg.SampleCount*cfg.BoundaryMultiplier)
	}
	g.boundaries[0] = buildRibbon(dense, -half, cfg.BoundaryWidth/2, boundaryLift)
	g.boundaries[1] = buildRibbon(dense, +half, cfg.BoundaryWidth/2, boundaryLift)

	g.measure()
	return g, nil
}

// dedupClosed drops trailing points that coincide with the first point.
// Periodic resamplers commonly emit the seam point twice.
func dedupClosed(pts []Point) []Point {
	out := pts
	for len(out) > 1 {
		last := out[len(out)-1]
		dx, dy := last.X-out[0].X, last.Y-out[0].Y
		if dx*dx+dy*dy > 1e-12 {
			break
		}
		out = out[:len(out)-1]
	}
	return out
}

// splinePad is the number of wrapped points added on each side of the fit
// so the evaluated stretch behaves periodically across the seam.
const splinePad = 3

type closedCurve struct {
	x, y   interp.AkimaSpline
	period float64
}

func fitClosed(pts []Point) (*closedCurve, error) {
	n := len(pts)
	total := n + 2*splinePad
	ts := make([]float64, total)
	xs := make([]float64, total)
	ys := make([]float64, total)
	for i := 0; i < total; i++ {
		idx := i - splinePad
		ts[i] = float64(idx)
		p := pts[((idx%n)+n)%n]
		xs[i] = p.X
		ys[i] = p.Y
	}

	c := &closedCurve{period: float64(n)}
	if err := c.x.Fit(ts, xs); err != nil {
		return nil, err
	}
	if err := c.y.Fit(ts, ys); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *closedCurve) at(u float64) Point {
	return Point{X: c.x.Predict(u), Y: c.y.Predict(u)}
}

func (c *closedCurve) derivative(u float64) Point {
	return Point{X: c.x.PredictDerivative(u), Y: c.y.PredictDerivative(u)}
}

func (g *Geometry) resample(curve *closedCurve, count int) []Sample {
	samples := make([]Sample, count)
	for i := 0; i < count; i++ {
		u := curve.period * float64(i) / float64(count)
		samples[i] = Sample{
			Pos:    curve.at(u),
			U:      u,
			Height: g.ElevationAtIndex(u),
		}
	}
	for i := range samples {
		d := curve.derivative(samples[i].U)
		norm := math.Hypot(d.X, d.Y)
		if norm < 1e-9 {
			// Degenerate analytic tangent; fall back to the chord
			// between the neighbouring rings.
			prev := samples[(i-1+count)%count].Pos
			next := samples[(i+1)%count].Pos
			d = Point{X: next.X - prev.X, Y: next.Y - prev.Y}
			norm = math.Hypot(d.X, d.Y)
			if norm < 1e-9 {
				d, norm = Point{X: 1}, 1
			}
		}
		t := Point{X: d.X / norm, Y: d.Y / norm}
		samples[i].Tangent = t
		// World up cross tangent, projected to the plane: a fixed up
		// vector keeps consecutive rings from twisting.
		samples[i].Normal = Point{X: t.Y, Y: -t.X}
	}
	return samples
}

// buildRibbon offsets each sample's center by centerOffset along its
// normal and emits edge vertices at +-halfWidth, then stitches consecutive
// rings into quads, wrapping the final ring back to the first.
func buildRibbon(samples []Sample, centerOffset, halfWidth, lift float64) *Mesh {
	n := len(samples)
	m := &Mesh{
		Rings:    make([]Ring, n),
		Vertices: make([]Vertex, 0, 2*n),
		Indices:  make([]uint32, 0, 6*n),
	}
	for i, s := range samples {
		cx := s.Pos.X + s.Normal.X*centerOffset
		cy := s.Pos.Y + s.Normal.Y*centerOffset
		h := s.Height + lift
		ring := Ring{
			Center: Vertex{X: cx, Y: h, Z: cy},
			Left:   Vertex{X: cx - s.Normal.X*halfWidth, Y: h, Z: cy - s.Normal.Y*halfWidth},
			Right:  Vertex{X: cx + s.Normal.X*halfWidth, Y: h, Z: cy + s.Normal.Y*halfWidth},
		}
		m.Rings[i] = ring
		m.Vertices = append(m.Vertices, ring.Left, ring.Right)
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		li, ri := uint32(2*i), uint32(2*i+1)
		lj, rj := uint32(2*j), uint32(2*j+1)
		m.Indices = append(m.Indices, li, ri, lj, ri, rj, lj)
	}
	return m
}

func (g *Geometry) measure() {
	g.minX, g.minY = math.Inf(1), math.Inf(1)
	g.maxX, g.maxY = math.Inf(-1), math.Inf(-1)
	for i, s := range g.samples {
		g.minX = math.Min(g.minX, s.Pos.X)
		g.minY = math.Min(g.minY, s.Pos.Y)
		g.maxX = math.Max(g.maxX, s.Pos.X)
		g.maxY = math.Max(g.maxY, s.Pos.Y)
		next := g.samples[(i+1)%len(g.samples)].Pos
		g.length += math.Hypot(next.X-s.Pos.X, next.Y-s.Pos.Y)
	}
}

// ElevationAtIndex returns the synthetic height for a fractional original
// centerline index. The waves are periodic over one lap and non-negative
// everywhere.
func (g *Geometry) ElevationAtIndex(u float64) float64 {
	phase := 2 * math.Pi * u / g.period
	return g.cfg.ElevationAmp1*math.Abs(math.Sin(g.cfg.ElevationFreq1*phase)) +
		g.cfg.ElevationAmp2*math.Abs(math.Sin(g.cfg.ElevationFreq2*phase))
}

// Samples returns the surface sample rings. Callers must not modify the
// returned slice.
func (g *Geometry) Samples() []Sample { return g.samples }

// Surface returns the main track ribbon.
func (g *Geometry) Surface() *Mesh { return g.surface }

// Boundaries returns the left and right edge marking ribbons.
func (g *Geometry) Boundaries() [2]*Mesh { return g.boundaries }

// HalfWidth returns half the configured surface width.
func (g *Geometry) HalfWidth() float64 { return g.cfg.Width / 2 }

// Length returns the polygonal perimeter of the sampled loop.
func (g *Geometry) Length() float64 { return g.length }

// Bounds returns the plane-axis extents of the sampled centerline.
func (g *Geometry) Bounds() (minX, minY, maxX, maxY float64) {
	return g.minX, g.minY, g.maxX, g.maxY
}
