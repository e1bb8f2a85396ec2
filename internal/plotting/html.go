package plotting

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteLineHTML renders the series as a standalone interactive line chart.
// All series share the x axis of the first one.
func WriteLineHTML(w io.Writer, title string, series ...Series) error {
	if len(series) == 0 {
		return fmt.Errorf("plotting: no series for %q", title)
	}

	axis := make([]string, 0, len(series[0].X))
	for _, x := range series[0].X {
		axis = append(axis, strconv.FormatFloat(x, 'g', -1, 64))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(axis)
	for _, s := range series {
		data := make([]opts.LineData, 0, len(s.Y))
		for _, y := range s.Y {
			if math.IsNaN(y) {
				data = append(data, opts.LineData{Value: nil})
				continue
			}
			data = append(data, opts.LineData{Value: y})
		}
		line.AddSeries(s.Name, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render line chart: %w", err)
	}
	return nil
}

// WriteScatterHTML renders the series as a standalone interactive scatter
// chart.
func WriteScatterHTML(w io.Writer, title string, series ...Series) error {
	if len(series) == 0 {
		return fmt.Errorf("plotting: no series for %q", title)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	for _, s := range series {
		data := make([]opts.ScatterData, 0, len(s.Y))
		for i, y := range s.Y {
			if i >= len(s.X) || math.IsNaN(s.X[i]) || math.IsNaN(y) {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{s.X[i], y}})
		}
		scatter.AddSeries(s.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render scatter chart: %w", err)
	}
	return nil
}
