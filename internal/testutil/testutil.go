// Package testutil holds the wire-format fixtures shared by the race
// state, codec and render tests: a parametric closed centerline and
// builders for the two stream message shapes.
package testutil

import (
	"fmt"
	"math"
	"strings"
)

// OvalCenterline returns n points on an ellipse with radii rx, ry centred
// at the origin, ordered counter-clockwise. The loop is implicitly closed:
// the last point does not repeat the first. Used as a track fixture by the
// geometry, interpolation and relay tests.
func OvalCenterline(n int, rx, ry float64) [][2]float64 {
	points := make([][2]float64, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		points[i] = [2]float64{rx * math.Cos(theta), ry * math.Sin(theta)}
	}
	return points
}

// TrackMessageJSON builds the one-time track payload as it appears on the
// wire: {"type":"track","data":{"points":[[x,y],...],"total_length":L}}.
func TrackMessageJSON(points [][2]float64, totalLength float64) []byte {
	var b strings.Builder
	b.WriteString(`{"type":"track","data":{"points":[`)
	for i, p := range points {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "[%g,%g]", p[0], p[1])
	}
	fmt.Fprintf(&b, `],"total_length":%g}}`, totalLength)
	return []byte(b.String())
}

// CarFixture is the minimal car description used to build state payloads
// in tests.
type CarFixture struct {
	Name  string
	X     float64
	Y     float64
	Angle float64
	Speed float64 // km/h
	Laps  int
	Rank  int
}

// StateMessageJSON builds a flat state payload with the given race clock
// and cars, the shape the server broadcasts every tick.
func StateMessageJSON(simTime float64, started bool, cars ...CarFixture) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `{"time":%g,"race_started":%t,"race_finished":false,"total_laps":36,"weather":{"rain":0.1,"track_temp":25,"wind":2},"tyre_distribution":{},"cars":[`, simTime, started)
	for i, c := range cars {
		if i > 0 {
			b.WriteByte(',')
		}
		rank := c.Rank
		if rank == 0 {
			rank = i + 1
		}
		fmt.Fprintf(&b,
			`{"name":%q,"color":"#DC0000","position":%d,"laps":%d,"wear":0.1,"tyre":"SOFT","fuel":90,"speed":%g,"x":%g,"y":%g,"angle":%g,"total_time":%g,"on_pit":false}`,
			c.Name, rank, c.Laps, c.Speed, c.X, c.Y, c.Angle, simTime)
	}
	b.WriteString(`]}`)
	return []byte(b.String())
}
