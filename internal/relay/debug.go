package relay

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Darshbir/toyota-gr-sim/internal/httputil"
)

// fieldCar is the slice of model state the debug chart needs, copied out
// under the server mutex so chart rendering happens without it.
type fieldCar struct {
	name  string
	x, y  float64
	rank  int
	laps  int
	wear  float64
	tyre  string
	onPit bool
}

// handleFieldChart renders the live field as an echarts page: car dots
// over the track centerline plus a tyre wear bar. Debugging-only
// endpoint (no auth) to eyeball the model without attaching a viewer.
func (s *Server) handleFieldChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	s.mu.Lock()
	track := s.race.Track()
	if len(track.Points()) == 0 {
		s.mu.Unlock()
		httputil.NotFound(w, "no track geometry available")
		return
	}
	field := make([]fieldCar, 0, len(s.race.Cars()))
	for _, c := range s.race.Cars() {
		x, y := track.PosAt(c.Distance)
		field = append(field, fieldCar{
			name: c.Name, x: x, y: y,
			rank: c.Rank, laps: c.Laps,
			wear: c.Wear, tyre: c.Tyre, onPit: c.OnPit,
		})
	}
	simTime := s.race.SimTime()
	totalLaps := s.race.TotalLaps()
	clients := len(s.clients)
	s.mu.Unlock()

	sort.Slice(field, func(i, j int) bool { return field[i].rank < field[j].rank })
	leadLaps := 0
	for _, c := range field {
		if c.laps > leadLaps {
			leadLaps = c.laps
		}
	}
	subtitle := fmt.Sprintf("t=%.1fs lap=%d/%d clients=%d", simTime, leadLaps, totalLaps, clients)

	page := components.NewPage()
	page.AddCharts(fieldScatter(track.Points(), field, subtitle), wearBar(field, subtitle))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render field chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// fieldScatter plots the field over the centerline, axes padded around
// the track bounds so geometry is not distorted.
func fieldScatter(points [][]float64, field []fieldCar, subtitle string) *charts.Scatter {
	minX, maxX := points[0][0], points[0][0]
	minY, maxY := points[0][1], points[0][1]
	centerline := make([]opts.ScatterData, 0, len(points))
	for _, pt := range points {
		centerline = append(centerline, opts.ScatterData{Value: []interface{}{pt[0], pt[1]}})
		minX, maxX = math.Min(minX, pt[0]), math.Max(maxX, pt[0])
		minY, maxY = math.Min(minY, pt[1]), math.Max(maxY, pt[1])
	}
	pad := 0.05 * math.Max(maxX-minX, maxY-minY)
	if pad == 0 {
		pad = 1.0
	}

	running := make([]opts.ScatterData, 0, len(field))
	pitted := make([]opts.ScatterData, 0)
	for _, c := range field {
		pt := opts.ScatterData{
			Name:  fmt.Sprintf("P%d %s (%s)", c.rank, c.name, c.tyre),
			Value: []interface{}{c.x, c.y},
		}
		if c.onPit {
			pitted = append(pitted, pt)
		} else {
			running = append(running, pt)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Race Field", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Race Field", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - pad, Max: maxX + pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY - pad, Max: maxY + pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("centerline", centerline,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("running", running,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	scatter.AddSeries("in pit", pitted,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#40c4ff"}))
	return scatter
}

// wearBar charts tyre wear per car in rank order.
func wearBar(field []fieldCar, subtitle string) *charts.Bar {
	names := make([]string, len(field))
	wear := make([]opts.BarData, len(field))
	for i, c := range field {
		names[i] = c.name
		wear[i] = opts.BarData{Value: math.Round(c.wear*1000) / 10}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tyre Wear (%)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("wear", wear,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
