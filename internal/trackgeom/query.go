package trackgeom

import "math"

// Nearest returns the surface sample closest to the query point and the
// distance to it.
func (g *Geometry) Nearest(x, y float64) (Sample, float64) {
	bestIdx := 0
	bestD2 := math.Inf(1)
	for i, s := range g.samples {
		dx, dy := x-s.Pos.X, y-s.Pos.Y
		d2 := dx*dx + dy*dy
		if d2 < bestD2 {
			bestD2 = d2
			bestIdx = i
		}
	}
	return g.samples[bestIdx], math.Sqrt(bestD2)
}

// ElevationAt returns the surface height under an arbitrary plane
// position, via nearest-sample lookup.
func (g *Geometry) ElevationAt(x, y float64) float64 {
	s, _ := g.Nearest(x, y)
	return s.Height
}

// ClampToTrack pulls a query point that drifted beyond the surface back to
// the boundary. Small mismatches between the path a car was simulated on
// and the spline it is rendered on otherwise show up as cars floating off
// the track edge.
//
// The point is moved along the centerline-to-query direction onto the
// circle of radius halfWidth+tolerance around the nearest sample. Points
// already within that radius pass through unchanged. The returned height
// is the surface height at the nearest sample either way.
func (g *Geometry) ClampToTrack(x, y float64) (cx, cy, height float64, clamped bool) {
	s, dist := g.Nearest(x, y)
	radius := g.HalfWidth() + g.cfg.ClampTolerance
	if dist <= radius {
		return x, y, s.Height, false
	}
	scale := radius / dist
	cx = s.Pos.X + (x-s.Pos.X)*scale
	cy = s.Pos.Y + (y-s.Pos.Y)*scale
	return cx, cy, s.Height, true
}
