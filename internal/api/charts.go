package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"slices"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/dataq/internal/httputil"
	"github.com/banshee-data/dataq/internal/scene"
)

// occupancyChart renders the recorded occupancy history as an HTML line
// chart with one series per class. Query params:
//   - window (optional; default 1h) how far back to plot
func (s *Server) occupancyChart(w http.ResponseWriter, r *http.Request) {
	window, err := occupancyWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	now := s.clock.Now()
	history, err := s.db.RecentOccupancy(now.Add(-window), 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load occupancy: %v", err))
		return
	}

	classSet := make(map[string]bool)
	for _, snap := range history {
		for class := range snap.Counts {
			classSet[class] = true
		}
	}
	classes := make([]string, 0, len(classSet))
	for class := range classSet {
		classes = append(classes, class)
	}
	slices.Sort(classes)

	x := make([]string, len(history))
	for i, snap := range history {
		x[i] = time.UnixMilli(snap.Timestamp).Format("15:04:05")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy", Subtitle: fmt.Sprintf("window=%s snapshots=%d", window, len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	line.SetXAxis(x)
	for _, class := range classes {
		data := make([]opts.LineData, len(history))
		for i, snap := range history {
			data[i] = opts.LineData{Value: snap.Counts[class]}
		}
		line.AddSeries(class, data)
	}

	page := components.NewPage()
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// pathColors cycles through a small palette so neighbouring paths differ.
var pathColors = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
}

// pathsPlot renders the most recent stored paths in scene coordinates as a
// PNG. Query params:
//   - class (optional) restricts to one class
//   - limit (optional; default 50)
func (s *Server) pathsPlot(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 50, 1, 500)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	records, err := s.db.ListPaths(r.URL.Query().Get("class"), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list paths: %v", err))
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Paths (%d)", len(records))
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.X.Min, p.X.Max = 0, scene.Space
	p.Y.Min, p.Y.Max = 0, scene.Space
	// scene y grows downwards
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	for i, rec := range records {
		pts := make(plotter.XYs, len(rec.Path.Samples))
		for j, sample := range rec.Path.Samples {
			pts[j] = plotter.XY{X: sample.X, Y: sample.Y}
		}
		if len(pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to plot path %s: %v", rec.ID, err))
			return
		}
		l.Width = vg.Points(1)
		l.Color = pathColors[i%len(pathColors)]
		if rec.Path.Anomaly != "" {
			l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(l)
	}

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		return
	}
}
