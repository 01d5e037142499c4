package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/touch.report/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis palette shared by all grid charts
var gridPalette = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// renderGridHeatmap renders a rows x cols grid of cell values as an ECharts
// heatmap. Row 0 is drawn at the top to match the physical sensor layout.
func renderGridHeatmap(w http.ResponseWriter, title, subtitle string, rows, cols int, values []float64, maxVal float64) {
	xLabels := make([]string, cols)
	for c := 0; c < cols; c++ {
		xLabels[c] = fmt.Sprintf("c%d", c)
	}
	yLabels := make([]string, rows)
	for r := 0; r < rows; r++ {
		yLabels[r] = fmt.Sprintf("r%d", rows-1-r)
	}

	data := make([]opts.HeatMapData, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := values[r*cols+c]
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, rows - 1 - r, v}})
		}
	}

	if maxVal == 0 {
		maxVal = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xLabels, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: yLabels, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			InRange:    &opts.VisualMapInRange{Color: gridPalette},
		}),
	)
	hm.AddSeries("cells", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		httputil.InternalError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleFieldHeatmapChart renders the most recent intensity field as a
// heatmap. This is a debugging-only endpoint (no auth) to eyeball the
// conditioned output without a UI.
func (ws *WebServer) handleFieldHeatmapChart(w http.ResponseWriter, r *http.Request) {
	snap := ws.pipeline.Snapshot()
	if snap == nil {
		httputil.NotFound(w, "no field emitted yet")
		return
	}

	subtitle := fmt.Sprintf("cycle=%d state=%s quiet=%v vmax=%.1f peak=%d",
		snap.Cycle, snap.StateName, snap.Quiet, snap.VMax, snap.PeakCell)
	renderGridHeatmap(w, "Touch Intensity Field", subtitle, snap.Rows, snap.Cols, snap.Field, 1)
}

// handleBaselineChart renders the calibrated per-cell baseline as a heatmap.
func (ws *WebServer) handleBaselineChart(w http.ResponseWriter, r *http.Request) {
	baseline := ws.pipeline.Baseline()
	if len(baseline) == 0 {
		httputil.NotFound(w, "no baseline available")
		return
	}

	maxVal := 0.0
	for _, v := range baseline {
		if v > maxVal {
			maxVal = v
		}
	}

	subtitle := fmt.Sprintf("state=%s cells=%d", ws.pipeline.State(), len(baseline))
	renderGridHeatmap(w, "Calibrated Baseline", subtitle, ws.pipeline.Rows(), ws.pipeline.Cols(), baseline, maxVal)
}

// handleStatsChart renders a simple bar chart of cycle throughput.
func (ws *WebServer) handleStatsChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		httputil.NotFound(w, "no cycle stats available")
		return
	}

	snap := ws.stats.GetLatestSnapshot()
	if snap == nil {
		snap = &StatsSnapshot{Timestamp: time.Now()}
	}

	x := []string{"Cycles/s", "Fields/s", "Quiet fraction", "Dropped (recent)"}
	y := []opts.BarData{
		{Value: snap.CyclesPerSec},
		{Value: snap.FieldsPerSec},
		{Value: snap.QuietFraction},
		{Value: snap.DroppedCount},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Skin Throughput", Subtitle: snap.Timestamp.Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("throughput", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
