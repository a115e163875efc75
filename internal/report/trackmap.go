package report

import (
	"fmt"
	"image/color"
	"io"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
)

// maxTrailCars bounds how many car trails the map draws; more than a
// handful turns the plot to mud.
const maxTrailCars = 6

// maxTrailSamples bounds the per-trail point count.
const maxTrailSamples = 2000

// WriteTrackMap renders the track centerline with the top finishers'
// trails and final positions as a PNG to w.
func WriteTrackMap(data Data, w io.Writer) error {
	if data.Track == nil {
		return fmt.Errorf("session %s has no track payload", data.SessionID)
	}
	if len(data.Snapshots) == 0 {
		return fmt.Errorf("session %s has no snapshots", data.SessionID)
	}

	p := plot.New()
	p.Title.Text = "Track Map"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	bounds := newBounds()

	centerline := make(plotter.XYs, 0, len(data.Track.Points)+1)
	for _, pt := range data.Track.Points {
		centerline = append(centerline, plotter.XY{X: pt[0], Y: pt[1]})
		bounds.add(pt[0], pt[1])
	}
	if len(centerline) > 0 {
		centerline = append(centerline, centerline[0])
	}
	trackLine, err := plotter.NewLine(centerline)
	if err != nil {
		return fmt.Errorf("centerline: %w", err)
	}
	trackLine.Color = color.Gray{Y: 0x60}
	trackLine.Width = vg.Points(2)
	p.Add(trackLine)
	p.Legend.Add("centerline", trackLine)

	last := data.Snapshots[len(data.Snapshots)-1]
	leaders := topFinishers(last, maxTrailCars)
	palette := trailColors(len(leaders))
	snaps := downsample(data.Snapshots, maxTrailSamples)

	finals := make(plotter.XYs, 0, len(leaders))
	for i, name := range leaders {
		trail := make(plotter.XYs, 0, len(snaps))
		var lineColor color.Color = palette[i]
		for _, snap := range snaps {
			car := snap.CarByName(name)
			if car == nil {
				continue
			}
			trail = append(trail, plotter.XY{X: car.X, Y: car.Y})
		}
		if final := last.CarByName(name); final != nil {
			finals = append(finals, plotter.XY{X: final.X, Y: final.Y})
			lineColor = carColor(final.Color, palette[i])
		}
		if len(trail) == 0 {
			continue
		}
		trailLine, err := plotter.NewLine(trail)
		if err != nil {
			return fmt.Errorf("trail for %s: %w", name, err)
		}
		trailLine.Color = lineColor
		trailLine.Width = vg.Points(1)
		p.Add(trailLine)
		p.Legend.Add(name, trailLine)
	}

	if len(finals) > 0 {
		markers, err := plotter.NewScatter(finals)
		if err != nil {
			return fmt.Errorf("final markers: %w", err)
		}
		markers.GlyphStyle.Color = color.RGBA{R: 0xff, G: 0x52, B: 0x52, A: 0xff}
		markers.GlyphStyle.Radius = vg.Points(3)
		p.Add(markers)
	}

	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = bounds.square(1.1)
	p.Legend.Top = true
	p.Legend.Left = false

	wt, err := p.WriterTo(10*vg.Inch, 10*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render track map: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write track map: %w", err)
	}
	return nil
}

// topFinishers returns up to n car names in final classified order.
func topFinishers(last *race.Snapshot, n int) []string {
	cars := make([]race.CarState, len(last.Cars))
	copy(cars, last.Cars)
	sort.Slice(cars, func(i, j int) bool { return cars[i].RacePosition < cars[j].RacePosition })
	if len(cars) > n {
		cars = cars[:n]
	}
	names := make([]string, len(cars))
	for i := range cars {
		names[i] = cars[i].Name
	}
	return names
}

// carColor parses a #rrggbb wire color, falling back when malformed.
func carColor(hex string, fallback color.Color) color.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// trailColors spreads n hues evenly so adjacent trails stay tellable
// when a car color is missing.
func trailColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := range colors {
		h := float64(i) / float64(n)
		colors[i] = color.RGBA{
			R: hueChannel(h + 1.0/3.0),
			G: hueChannel(h),
			B: hueChannel(h - 1.0/3.0),
			A: 0xff,
		}
	}
	return colors
}

// hueChannel evaluates one RGB channel of an HSL color at s=0.7, l=0.5.
func hueChannel(h float64) uint8 {
	const p, q = 0.15, 0.85
	for h < 0 {
		h++
	}
	for h > 1 {
		h--
	}
	switch {
	case h < 1.0/6.0:
		return uint8(255 * (p + (q-p)*6*h))
	case h < 1.0/2.0:
		v := float64(255 * q)
		return uint8(v)
	case h < 2.0/3.0:
		return uint8(255 * (p + (q-p)*(2.0/3.0-h)*6))
	default:
		v := float64(255 * p)
		return uint8(v)
	}
}
