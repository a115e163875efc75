// Package sim implements the kinematic race model behind the development
// relay server. It is not a vehicle dynamics simulation: cars ride the
// track centerline with speeds bounded by a grip/curvature budget, which
// is enough to exercise the wire protocol and everything downstream of it.
package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/Darshbir/toyota-gr-sim/internal/trackgeom"
)

// Track is the arc-length view of a closed circuit. Built once from
// waypoints, then shared read-only by every car.
type Track struct {
	points    [][]float64 // resampled centerline, broadcast to clients
	arc       []float64   // cumulative arc length at each sample
	curvature []float64   // unsigned curvature at each sample
	length    float64
}

// DefaultWaypoints returns the built-in grand prix style circuit.
func DefaultWaypoints() [][]float64 {
	return [][]float64{
		{700, 120},
		{550, 110},
		{500, 150},
		{400, 200},
		{350, 300},
		{320, 380},
		{280, 520},
		{500, 560},
		{650, 540},
		{640, 460},
		{610, 360},
		{580, 280},
		{650, 300},
		{760, 320},
		{840, 360},
		{900, 350},
		{1000, 300},
		{950, 200},
		{850, 150},
	}
}

// BuildTrack fits a closed spline through the waypoints and resamples it
// to resolution points with arc-length and curvature lookup tables. The
// resampled points are what clients receive in the track payload, so the
// geometry a viewer rebuilds matches what the cars drive on.
func BuildTrack(waypoints [][]float64, resolution int) (*Track, error) {
	pts := make([]trackgeom.Point, 0, len(waypoints))
	for i, wp := range waypoints {
		if len(wp) < 2 {
			return nil, fmt.Errorf("waypoint %d has %d coordinates, need 2", i, len(wp))
		}
		pts = append(pts, trackgeom.Point{X: wp[0], Y: wp[1]})
	}
	geom, err := trackgeom.Build(pts, trackgeom.Config{SampleCount: resolution})
	if err != nil {
		return nil, fmt.Errorf("fit track spline: %w", err)
	}

	samples := geom.Samples()
	n := len(samples)
	t := &Track{
		points:    make([][]float64, n),
		arc:       make([]float64, n),
		curvature: make([]float64, n),
	}
	for i, s := range samples {
		t.points[i] = []float64{s.Pos.X, s.Pos.Y}
		if i > 0 {
			prev := samples[i-1].Pos
			t.arc[i] = t.arc[i-1] + math.Hypot(s.Pos.X-prev.X, s.Pos.Y-prev.Y)
		}
	}
	last := samples[n-1].Pos
	first := samples[0].Pos
	t.length = t.arc[n-1] + math.Hypot(first.X-last.X, first.Y-last.Y)

	// Discrete curvature: tangent heading change per meter of arc between
	// neighbouring samples.
	for i := range samples {
		j := (i + 1) % n
		theta0 := math.Atan2(samples[i].Tangent.Y, samples[i].Tangent.X)
		theta1 := math.Atan2(samples[j].Tangent.Y, samples[j].Tangent.X)
		dTheta := wrapAngle(theta1 - theta0)
		ds := t.segmentLength(i)
		if ds < 1e-9 {
			ds = 1e-9
		}
		t.curvature[i] = math.Abs(dTheta) / ds
	}
	return t, nil
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// segmentLength returns the arc length of the segment starting at sample i.
func (t *Track) segmentLength(i int) float64 {
	if i == len(t.arc)-1 {
		return t.length - t.arc[i]
	}
	return t.arc[i+1] - t.arc[i]
}

// segmentAt locates the sample segment containing arc position s, which
// may be any real number; laps wrap.
func (t *Track) segmentAt(s float64) (idx int, frac float64) {
	s = math.Mod(s, t.length)
	if s < 0 {
		s += t.length
	}
	idx = sort.SearchFloat64s(t.arc, s)
	if idx == len(t.arc) || t.arc[idx] > s {
		idx--
	}
	seg := t.segmentLength(idx)
	if seg < 1e-9 {
		return idx, 0
	}
	return idx, (s - t.arc[idx]) / seg
}

// PosAt returns the world position at arc distance s from the start line.
func (t *Track) PosAt(s float64) (x, y float64) {
	i, frac := t.segmentAt(s)
	j := (i + 1) % len(t.points)
	a, b := t.points[i], t.points[j]
	return a[0] + (b[0]-a[0])*frac, a[1] + (b[1]-a[1])*frac
}

// HeadingAt returns the direction of travel at arc distance s, in math
// convention radians, taken from a one-meter forward difference.
func (t *Track) HeadingAt(s float64) float64 {
	x0, y0 := t.PosAt(s)
	x1, y1 := t.PosAt(s + 1.0)
	return math.Atan2(y1-y0, x1-x0)
}

// CurvatureAt returns the unsigned centerline curvature at arc distance s.
func (t *Track) CurvatureAt(s float64) float64 {
	i, _ := t.segmentAt(s)
	return t.curvature[i]
}

// Length returns the circuit's total arc length in meters.
func (t *Track) Length() float64 { return t.length }

// Points returns the resampled centerline as [x,y] pairs.
func (t *Track) Points() [][]float64 { return t.points }
