package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/touch.report/internal/db"
	"github.com/banshee-data/touch.report/internal/skin"
)

// recordedFrames builds a deterministic 2x2 recording: a calibration run of
// flat frames, one touch, then enough flat frames for quiet blanking.
func recordedFrames() []skin.Frame {
	flat := skin.Frame{10, 10, 10, 10}
	frames := []skin.Frame{flat, flat} // consumed by calibration
	frames = append(frames, skin.Frame{10, 10, 60, 10})
	frames = append(frames, flat, flat, flat)
	return frames
}

func testParams() skin.Params {
	p := skin.DefaultParams()
	p.CalibrationDurationFrames = 2
	return p
}

func TestReplayFrames(t *testing.T) {
	snaps, calibrations := replayFrames(recordedFrames(), 2, 2, testParams())

	// 6 frames, 2 consumed by calibration
	if len(snaps) != 4 {
		t.Fatalf("emitted %d snapshots, want 4", len(snaps))
	}
	if calibrations != 1 {
		t.Errorf("calibrations = %d, want 1", calibrations)
	}

	if snaps[0].VMax != 50 || snaps[0].PeakCell != 2 {
		t.Errorf("touch cycle = vmax %.1f peak %d, want 50/2", snaps[0].VMax, snaps[0].PeakCell)
	}
	last := snaps[len(snaps)-1]
	if !last.Quiet {
		t.Error("trailing flat cycles should end quiet")
	}
}

func TestSummarize(t *testing.T) {
	snaps, _ := replayFrames(recordedFrames(), 2, 2, testParams())
	got := summarize(6, snaps)

	want := replaySummary{
		Frames:      6,
		Emitted:     4,
		QuietCycles: 2,
		MeanVMax:    12.5,
		MedianVMax:  0,
		P95VMax:     50,
	}
	// stddev is order-dependent noise for this check
	got.StdDevVMax = 0

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := summarize(3, nil)
	want := replaySummary{Frames: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderVMaxChart(t *testing.T) {
	snaps, _ := replayFrames(recordedFrames(), 2, 2, testParams())
	path := filepath.Join(t.TempDir(), "vmax.html")

	if err := renderVMaxChart(path, snaps); err != nil {
		t.Fatalf("renderVMaxChart: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	if !strings.Contains(string(data), "echarts") {
		t.Error("chart output should reference echarts")
	}
}

func TestReplayRoundTripThroughDB(t *testing.T) {
	d, err := db.NewDB(filepath.Join(t.TempDir(), "replay.db"))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	defer d.Close()

	session, err := d.BeginSession(2, 2)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	for i, f := range recordedFrames() {
		if err := d.RecordRawFrame(session, int64(i+1), skin.EncodeFrameBlob(f)); err != nil {
			t.Fatalf("RecordRawFrame: %v", err)
		}
	}

	raw, err := d.RawFrames(session)
	if err != nil {
		t.Fatalf("RawFrames: %v", err)
	}
	frames := make([]skin.Frame, len(raw))
	for i, r := range raw {
		frames[i], err = skin.DecodeFrameBlob(r.Readings, 4)
		if err != nil {
			t.Fatalf("DecodeFrameBlob cycle %d: %v", r.Cycle, err)
		}
	}

	snaps, _ := replayFrames(frames, 2, 2, testParams())
	if len(snaps) != 4 {
		t.Fatalf("emitted %d snapshots after round trip, want 4", len(snaps))
	}
	if snaps[0].VMax != 50 {
		t.Errorf("vmax = %.1f after round trip, want 50", snaps[0].VMax)
	}
}
