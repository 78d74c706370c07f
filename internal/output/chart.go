/*
PURPOSE:
  Renders the sweep summary as an HTML page of charts.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run when output.chart is set.
  - Uses: go-echarts

ERROR HANDLING:
  - Returns file creation and render errors; the caller logs them.
*/

package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// RenderChart writes an HTML page with mean decode throughput per
// combination and per temperature.
func RenderChart(path string, s model.SweepSummary) error {
	if len(s.Combinations) == 0 {
		return nil
	}

	combos := charts.NewBar()
	combos.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Decode throughput per combination",
			Subtitle: fmt.Sprintf("%s (run %s)", s.Model, s.RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "tok/s"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	labels := make([]string, 0, len(s.Combinations))
	means := make([]opts.BarData, 0, len(s.Combinations))
	maxes := make([]opts.BarData, 0, len(s.Combinations))
	for _, c := range s.Combinations {
		labels = append(labels, c.Key)
		means = append(means, opts.BarData{Value: c.Mean})
		maxes = append(maxes, opts.BarData{Value: c.Max})
	}
	combos.SetXAxis(labels).
		AddSeries("mean", means).
		AddSeries("max", maxes)

	page := components.NewPage()
	page.PageTitle = "ollama-sweep " + s.RunID
	page.AddCharts(combos)

	if len(s.Temperatures) > 0 {
		temps := charts.NewLine()
		temps.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: "Mean decode throughput by temperature"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "tok/s"}),
		)
		byMode := map[model.Mode][]opts.LineData{}
		var xs []string
		seen := map[string]bool{}
		for _, t := range s.Temperatures {
			x := fmt.Sprintf("%g", t.Temperature)
			if !seen[x] {
				seen[x] = true
				xs = append(xs, x)
			}
			byMode[t.Mode] = append(byMode[t.Mode], opts.LineData{Value: []any{x, t.Mean}})
		}
		temps.SetXAxis(xs)
		for _, mode := range []model.Mode{model.ModeText, model.ModeVision} {
			if data, ok := byMode[mode]; ok {
				temps.AddSeries(string(mode), data)
			}
		}
		page.AddCharts(temps)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &model.PersistenceError{Sink: "chart", Path: path, Err: err}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return &model.PersistenceError{Sink: "chart", Path: path, Err: err}
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return &model.PersistenceError{Sink: "chart", Path: path, Err: err}
	}
	return f.Close()
}
