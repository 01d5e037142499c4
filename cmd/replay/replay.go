// replay runs recorded raw frames from a capture session back through the
// conditioning pipeline, prints summary statistics of the conditioned output
// and optionally renders a per-cycle chart. Useful for comparing tuning
// parameters offline against the same bench recording.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/touch.report/internal/config"
	"github.com/banshee-data/touch.report/internal/db"
	"github.com/banshee-data/touch.report/internal/skin"
)

var (
	dbFile     = flag.String("db", "skin_data.db", "Path to the sqlite database")
	sessionID  = flag.String("session", "", "Session to replay (default: most recent)")
	tuningFile = flag.String("tuning", "", "Optional JSON tuning config to replay with")
	chartFile  = flag.String("chart", "", "Optional path for an HTML chart of per-cycle peaks")
)

// replaySummary aggregates the conditioned output of one replay run.
type replaySummary struct {
	Frames       int
	Emitted      int
	QuietCycles  int
	Calibrations int
	MeanVMax     float64
	StdDevVMax   float64
	MedianVMax   float64
	P95VMax      float64
}

// replayFrames pushes decoded frames through a fresh pipeline, calibrating on
// the head of the recording the way the daemon does at startup. Returns the
// emitted snapshots and the number of completed calibrations.
func replayFrames(frames []skin.Frame, rows, cols int, params skin.Params) ([]skin.FieldSnapshot, int) {
	pl := skin.NewPipeline(rows, cols, params)

	calibrations := 0
	pl.OnCalibrated(func(int) { calibrations++ })
	pl.BeginCalibration()

	var snaps []skin.FieldSnapshot
	for _, f := range frames {
		if snap := pl.Ingest(f); snap != nil {
			snaps = append(snaps, *snap)
		}
	}
	return snaps, calibrations
}

// summarize reduces the emitted snapshots to the numbers a tuning comparison
// cares about.
func summarize(frames int, snaps []skin.FieldSnapshot) replaySummary {
	s := replaySummary{
		Frames:  frames,
		Emitted: len(snaps),
	}
	if len(snaps) == 0 {
		return s
	}

	vmax := make([]float64, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Quiet {
			s.QuietCycles++
		}
		vmax = append(vmax, snap.VMax)
	}

	s.MeanVMax = stat.Mean(vmax, nil)
	s.StdDevVMax = stat.StdDev(vmax, nil)

	sort.Float64s(vmax)
	s.MedianVMax = stat.Quantile(0.5, stat.Empirical, vmax, nil)
	s.P95VMax = stat.Quantile(0.95, stat.Empirical, vmax, nil)
	return s
}

// renderVMaxChart writes a line chart of per-cycle peak deltas to path.
func renderVMaxChart(path string, snaps []skin.FieldSnapshot) error {
	x := make([]int64, len(snaps))
	y := make([]opts.LineData, len(snaps))
	for i, snap := range snaps {
		x[i] = snap.Cycle
		y[i] = opts.LineData{Value: snap.VMax}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Replay Peak Deltas", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Peak delta per cycle", Subtitle: fmt.Sprintf("%d cycles", len(snaps))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).AddSeries("vmax", y)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}

func main() {
	flag.Parse()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	session := *sessionID
	if session == "" {
		sessions, err := database.Sessions(1)
		if err != nil || len(sessions) == 0 {
			log.Fatalf("no sessions recorded: %v", err)
		}
		session = sessions[0].ID
	}

	rows, cols, err := database.SessionGeometry(session)
	if err != nil {
		log.Fatalf("failed to load session geometry: %v", err)
	}

	raw, err := database.RawFrames(session)
	if err != nil {
		log.Fatalf("failed to load raw frames: %v", err)
	}
	if len(raw) == 0 {
		log.Fatalf("session %s has no recorded frames (run the daemon with -record)", session)
	}

	frames := make([]skin.Frame, 0, len(raw))
	for _, r := range raw {
		f, err := skin.DecodeFrameBlob(r.Readings, rows*cols)
		if err != nil {
			log.Printf("skipping cycle %d: %v", r.Cycle, err)
			continue
		}
		frames = append(frames, f)
	}

	params := skin.DefaultParams()
	if *tuningFile != "" {
		cfg, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		params = cfg.Apply(params)
	}

	snaps, calibrations := replayFrames(frames, rows, cols, params)
	summary := summarize(len(frames), snaps)
	summary.Calibrations = calibrations

	fmt.Printf("session %s (%dx%d)\n", session, rows, cols)
	fmt.Printf("  frames:        %d\n", summary.Frames)
	fmt.Printf("  emitted:       %d\n", summary.Emitted)
	fmt.Printf("  calibrations:  %d\n", summary.Calibrations)
	fmt.Printf("  quiet cycles:  %d\n", summary.QuietCycles)
	fmt.Printf("  vmax mean:     %.2f\n", summary.MeanVMax)
	fmt.Printf("  vmax stddev:   %.2f\n", summary.StdDevVMax)
	fmt.Printf("  vmax median:   %.2f\n", summary.MedianVMax)
	fmt.Printf("  vmax p95:      %.2f\n", summary.P95VMax)

	if *chartFile != "" {
		if err := renderVMaxChart(*chartFile, snaps); err != nil {
			log.Fatalf("failed to render chart: %v", err)
		}
		fmt.Printf("chart written to %s\n", *chartFile)
	}
}
