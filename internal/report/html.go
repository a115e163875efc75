package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
)

// maxChartSamples bounds the per-series point count in the HTML charts.
const maxChartSamples = 600

// WriteHTML renders the session dashboard: speed traces, gap to leader,
// position history, tyre and pit stop breakdowns, and a track overview.
func WriteHTML(data Data, summary *Summary, w io.Writer) error {
	snaps := downsample(data.Snapshots, maxChartSamples)
	times := make([]string, len(snaps))
	for i, s := range snaps {
		times[i] = fmt.Sprintf("%.0f", s.SimTime)
	}

	page := components.NewPage()
	page.AddCharts(
		headerChart(summary),
		carTraceChart(snaps, times, summary, "Speed Traces", "km/h over race time (s)",
			func(c *race.CarState) float64 { return c.Speed }),
		carTraceChart(snaps, times, summary, "Gap to Leader", "seconds behind P1",
			func(c *race.CarState) float64 { return c.TimeInterval }),
		carTraceChart(snaps, times, summary, "Race Position", "running order (P1 at the bottom)",
			func(c *race.CarState) float64 { return float64(c.RacePosition) }),
		tyrePie(data.Snapshots[len(data.Snapshots)-1]),
		pitStopBar(summary),
		trackScatter(data),
	)
	return page.Render(w)
}

// headerChart carries the session digest as a title-only bar so the page
// opens with the result before any trace.
func headerChart(summary *Summary) *charts.Bar {
	subtitle := fmt.Sprintf(
		"winner %s | fastest lap %.1fs (%s) | %d/%d laps | rain %.2f | %d events",
		summary.Winner, summary.FastestLap, summary.FastestBy,
		maxLaps(summary), summary.TotalLaps, summary.Weather.Rain, summary.EventCount,
	)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Race Report " + summary.SessionID,
			Theme:     "dark",
			Width:     "1200px",
			Height:    "280px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Race Report", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	names := make([]string, len(summary.Cars))
	bestLaps := make([]opts.BarData, len(summary.Cars))
	for i, cs := range summary.Cars {
		names[i] = cs.Name
		bestLaps[i] = opts.BarData{Value: cs.BestLap}
	}
	bar.SetXAxis(names).AddSeries("best lap (s)", bestLaps)
	return bar
}

func maxLaps(summary *Summary) int {
	laps := 0
	for _, cs := range summary.Cars {
		if cs.Laps > laps {
			laps = cs.Laps
		}
	}
	return laps
}

// carTraceChart draws one line per car, in finish order, of an arbitrary
// per-car value over time.
func carTraceChart(snaps []*race.Snapshot, times []string, summary *Summary, title, subtitle string, value func(*race.CarState) float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(times)
	for _, cs := range summary.Cars {
		series := make([]opts.LineData, len(snaps))
		for i, snap := range snaps {
			var v float64
			if car := snap.CarByName(cs.Name); car != nil {
				v = value(car)
			}
			series[i] = opts.LineData{Value: v}
		}
		line.AddSeries(cs.Name, series)
	}
	return line
}

func tyrePie(last *race.Snapshot) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "600px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tyre Compounds", Subtitle: "fitted at session end"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	compounds := make([]string, 0, len(last.TyreDistribution))
	for compound := range last.TyreDistribution {
		compounds = append(compounds, compound)
	}
	sort.Strings(compounds)

	items := make([]opts.PieData, 0, len(compounds))
	for _, compound := range compounds {
		items = append(items, opts.PieData{Name: compound, Value: last.TyreDistribution[compound]})
	}
	pie.AddSeries("tyres", items)
	return pie
}

func pitStopBar(summary *Summary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pit Stops", Subtitle: "per car, finish order"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	names := make([]string, len(summary.Cars))
	stops := make([]opts.BarData, len(summary.Cars))
	for i, cs := range summary.Cars {
		names[i] = cs.Name
		stops[i] = opts.BarData{Value: cs.PitStops}
	}
	bar.SetXAxis(names).
		AddSeries("pit stops", stops,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// trackScatter overlays the final car positions on the track centerline,
// axes forced square so geometry is not distorted.
func trackScatter(data Data) *charts.Scatter {
	centerline := make([]opts.ScatterData, 0)
	finals := make([]opts.ScatterData, 0)

	bounds := newBounds()
	if data.Track != nil {
		for _, pt := range data.Track.Points {
			centerline = append(centerline, opts.ScatterData{Value: []interface{}{pt[0], pt[1]}})
			bounds.add(pt[0], pt[1])
		}
	}
	last := data.Snapshots[len(data.Snapshots)-1]
	for i := range last.Cars {
		car := &last.Cars[i]
		finals = append(finals, opts.ScatterData{Value: []interface{}{car.X, car.Y}})
		bounds.add(car.X, car.Y)
	}
	minX, maxX, minY, maxY := bounds.square(1.05)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Track Overview", Subtitle: "centerline and finishing positions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX, Max: maxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY, Max: maxY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("centerline", centerline,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("final positions", finals,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 9}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	return scatter
}
