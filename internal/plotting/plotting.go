// Package plotting renders the toolkit's charts: static PNG plots that
// feed the PDF reports and standalone HTML pages for interactive review.
package plotting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/openadas/stk/internal/security"
)

// Series is one named data series. X and Y run in lockstep; NaN samples
// are dropped when rendering, so signal vectors with uncovered cycles can
// be plotted as-is.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

// points converts the series to plot coordinates, skipping NaN samples.
func (s Series) points() plotter.XYs {
	pts := make(plotter.XYs, 0, len(s.Y))
	for i, y := range s.Y {
		if i >= len(s.X) {
			break
		}
		if math.IsNaN(s.X[i]) || math.IsNaN(y) {
			continue
		}
		pts = append(pts, plotter.XY{X: s.X[i], Y: y})
	}
	return pts
}

// Plotter writes static charts into an output directory.
type Plotter struct {
	Dir    string
	Width  vg.Length
	Height vg.Length
}

// New creates a plotter writing into dir, creating the directory if
// needed.
func New(dir string) (*Plotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot dir: %w", err)
	}
	return &Plotter{Dir: dir, Width: 14 * vg.Inch, Height: 6 * vg.Inch}, nil
}

// newPlot builds an empty chart with the house layout: titled, labelled
// axes, background grid, legend in the top right.
func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

// file returns the sanitized output path for a chart name.
func (p *Plotter) file(name, ext string) string {
	return filepath.Join(p.Dir, security.SanitizeFilename(name)+ext)
}

// SaveLine renders the series as a line chart and returns the written PNG
// path.
func (p *Plotter) SaveLine(name, title, xLabel, yLabel string, series ...Series) (string, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("plotting: no series for %q", name)
	}
	chart := newPlot(title, xLabel, yLabel)
	for i, s := range series {
		line, err := plotter.NewLine(s.points())
		if err != nil {
			return "", fmt.Errorf("failed to build line %q: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		chart.Add(line)
		chart.Legend.Add(s.Name, line)
	}

	out := p.file(name, ".png")
	if err := chart.Save(p.Width, p.Height, out); err != nil {
		return "", fmt.Errorf("failed to save line plot: %w", err)
	}
	return out, nil
}

// SaveScatter renders the series as a scatter chart and returns the
// written PNG path.
func (p *Plotter) SaveScatter(name, title, xLabel, yLabel string, series ...Series) (string, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("plotting: no series for %q", name)
	}
	chart := newPlot(title, xLabel, yLabel)
	for i, s := range series {
		sc, err := plotter.NewScatter(s.points())
		if err != nil {
			return "", fmt.Errorf("failed to build scatter %q: %w", s.Name, err)
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Radius = vg.Points(2)
		chart.Add(sc)
		chart.Legend.Add(s.Name, sc)
	}

	out := p.file(name, ".png")
	if err := chart.Save(p.Width, p.Height, out); err != nil {
		return "", fmt.Errorf("failed to save scatter plot: %w", err)
	}
	return out, nil
}

// SaveHistogram bins the values and renders the distribution. NaN values
// are dropped before binning.
func (p *Plotter) SaveHistogram(name, title, xLabel string, values []float64, bins int) (string, error) {
	clean := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return "", fmt.Errorf("plotting: no values for histogram %q", name)
	}

	chart := newPlot(title, xLabel, "count")
	hist, err := plotter.NewHist(clean, bins)
	if err != nil {
		return "", fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.FillColor = plotutil.Color(0)
	chart.Add(hist)

	out := p.file(name, ".png")
	if err := chart.Save(p.Width, p.Height, out); err != nil {
		return "", fmt.Errorf("failed to save histogram: %w", err)
	}
	return out, nil
}

// SaveBars renders one value per label as a bar chart, labels under the
// bars.
func (p *Plotter) SaveBars(name, title, yLabel string, labels []string, values []float64) (string, error) {
	if len(labels) != len(values) {
		return "", fmt.Errorf("plotting: %d labels for %d values", len(labels), len(values))
	}
	if len(values) == 0 {
		return "", fmt.Errorf("plotting: no values for bar chart %q", name)
	}

	chart := newPlot(title, "", yLabel)
	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(20))
	if err != nil {
		return "", fmt.Errorf("failed to build bar chart: %w", err)
	}
	bars.Color = plotutil.Color(0)
	chart.Add(bars)
	chart.NominalX(labels...)

	out := p.file(name, ".png")
	if err := chart.Save(p.Width, p.Height, out); err != nil {
		return "", fmt.Errorf("failed to save bar chart: %w", err)
	}
	return out, nil
}

// Timestamp formats t for chart directory names.
func Timestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// RunDir builds the output directory for one evaluation run:
// <base>/<recording stem>/<timestamp>, or <base>/session_<timestamp> when
// no recording is given.
func RunDir(base, recording string, t time.Time) string {
	ts := Timestamp(t)
	if recording == "" {
		return filepath.Join(base, "session_"+ts)
	}
	stem := filepath.Base(recording)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]
	return filepath.Join(base, security.SanitizeFilename(stem), ts)
}
