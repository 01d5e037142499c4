package skin

import (
	"testing"
)

func makeTestPipeline(rows, cols int) *Pipeline {
	p := DefaultParams()
	p.CalibrationDurationFrames = 2
	p.HardNoiseFloor = 15
	p.StabilityThreshold = 25
	return NewPipeline(rows, cols, p)
}

// End-to-end scenario: calibrate on constant frames, then a single touched
// cell shows the expected gated delta while its baseline stays put.
func TestPipeline_CalibrateThenTouch(t *testing.T) {
	pl := makeTestPipeline(2, 2)

	if !pl.BeginCalibration() {
		t.Fatal("expected calibration trigger to be accepted")
	}

	// both calibration frames are suppressed
	for i := 0; i < 2; i++ {
		if snap := pl.Ingest(Frame{10, 10, 10, 10}); snap != nil {
			t.Fatalf("cycle %d: expected no output while calibrating", i)
		}
	}
	if pl.State() != CalibrationReady {
		t.Fatalf("state = %v, want Ready", pl.State())
	}
	for i, b := range pl.Baseline() {
		if b != 10 {
			t.Fatalf("baseline[%d] = %v, want 10", i, b)
		}
	}

	snap := pl.Ingest(Frame{10, 10, 60, 10})
	if snap == nil {
		t.Fatal("expected output once Ready")
	}
	if snap.VMax != 50 {
		t.Fatalf("vmax = %v, want 50", snap.VMax)
	}
	if snap.PeakCell != 2 {
		t.Fatalf("peak cell = %d, want 2", snap.PeakCell)
	}

	// touched cell (delta 50 > stability threshold) left the baseline alone;
	// untouched cells were already at the reading so the drift update is a
	// no-op there.
	for i, b := range pl.Baseline() {
		if b != 10 {
			t.Fatalf("baseline[%d] = %v after touch, want 10", i, b)
		}
	}
}

func TestPipeline_SuppressionWhileCalibrating(t *testing.T) {
	pl := makeTestPipeline(1, 2)
	pl.SetParams(func() Params {
		p := pl.Params()
		p.CalibrationDurationFrames = 3
		return p
	}())

	pl.BeginCalibration()
	// wildly different content must still produce no output
	for _, f := range []Frame{{0, 0}, {65535, 65535}, {1, 2}} {
		if snap := pl.Ingest(f); snap != nil {
			t.Fatal("expected suppression for every calibrating cycle")
		}
	}
	if pl.State() != CalibrationReady {
		t.Fatalf("state = %v, want Ready after 3 frames", pl.State())
	}
}

// Before any calibration the pipeline emits an all-zero field with Idle state.
func TestPipeline_IdleEmitsZeroField(t *testing.T) {
	pl := makeTestPipeline(1, 2)
	snap := pl.Ingest(Frame{500, 900})
	if snap == nil {
		t.Fatal("expected a snapshot while Idle")
	}
	if snap.State != CalibrationIdle {
		t.Fatalf("state = %v, want Idle", snap.State)
	}
	for i, v := range snap.Field {
		if v != 0 {
			t.Fatalf("field[%d] = %v while Idle, want 0", i, v)
		}
	}
}

// Wrong-length frames are dropped without advancing the cycle or corrupting
// state.
func TestPipeline_ShortFrameDropped(t *testing.T) {
	pl := makeTestPipeline(2, 2)
	if snap := pl.Ingest(Frame{1, 2, 3}); snap != nil {
		t.Fatal("expected short frame to be dropped")
	}
	if pl.DroppedFrames() != 1 {
		t.Fatalf("dropped = %d, want 1", pl.DroppedFrames())
	}
	// previous output (none) is simply not advanced
	if pl.Snapshot() != nil {
		t.Fatal("expected no snapshot after only a dropped frame")
	}
}

// Quiet hysteresis at the pipeline level: the computed field is replaced by
// zeros only after the configured number of consecutive quiet cycles.
func TestPipeline_QuietBlanksField(t *testing.T) {
	pl := makeTestPipeline(1, 2)
	p := pl.Params()
	p.CalibrationDurationFrames = 1
	p.QuietCutoff = 35
	p.QuietHysteresisFrames = 2
	pl.SetParams(p)

	pl.BeginCalibration()
	pl.Ingest(Frame{100, 100})

	// loud cycle: field has signal
	snap := pl.Ingest(Frame{100, 300})
	if snap.Quiet {
		t.Fatal("loud cycle must not be quiet")
	}
	hasSignal := false
	for _, v := range snap.Field {
		if v > 0 {
			hasSignal = true
		}
	}
	if !hasSignal {
		t.Fatal("expected nonzero intensity on loud cycle")
	}

	// first quiet cycle passes through un-blanked
	snap = pl.Ingest(Frame{100, 100})
	if snap.Quiet {
		t.Fatal("one quiet cycle must not blank")
	}

	// second consecutive quiet cycle blanks
	snap = pl.Ingest(Frame{100, 100})
	if !snap.Quiet {
		t.Fatal("expected quiet after second consecutive quiet cycle")
	}
	for i, v := range snap.Field {
		if v != 0 {
			t.Fatalf("field[%d] = %v while quiet, want 0", i, v)
		}
	}

	// a touch immediately un-blanks
	snap = pl.Ingest(Frame{100, 300})
	if snap.Quiet {
		t.Fatal("expected touch to un-blank")
	}
}

func TestPipeline_SettersApplyBetweenCycles(t *testing.T) {
	pl := makeTestPipeline(1, 2)

	if err := pl.SetThresholds(5, 80); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	p := pl.Params()
	if p.AutoRangeEnabled {
		t.Fatal("pinning thresholds must disable auto-range")
	}
	if p.ThresholdMin != 5 || p.ThresholdMax != 80 {
		t.Fatalf("thresholds = [%v, %v], want [5, 80]", p.ThresholdMin, p.ThresholdMax)
	}

	if err := pl.SetThresholds(80, 5); err == nil {
		t.Fatal("expected inverted thresholds to be rejected")
	}

	pl.SetAutoRange(true)
	if !pl.Params().AutoRangeEnabled {
		t.Fatal("expected auto-range re-enabled")
	}
}

func TestPipeline_CallbacksFire(t *testing.T) {
	pl := makeTestPipeline(1, 2)

	var calibrated int
	var fields int
	pl.OnCalibrated(func(duration int) {
		calibrated++
		if duration != 2 {
			t.Fatalf("calibration duration = %d, want 2", duration)
		}
	})
	pl.OnField(func(FieldSnapshot) { fields++ })

	pl.BeginCalibration()
	pl.Ingest(Frame{10, 10})
	pl.Ingest(Frame{10, 10})
	pl.Ingest(Frame{10, 60})

	if calibrated != 1 {
		t.Fatalf("calibrated callbacks = %d, want 1", calibrated)
	}
	if fields != 1 {
		t.Fatalf("field callbacks = %d, want 1 (calibrating cycles suppressed)", fields)
	}
}

func TestPipeline_StatusSnapshot(t *testing.T) {
	pl := makeTestPipeline(2, 3)
	st := pl.Status()
	if st["cells"].(int) != 6 {
		t.Fatalf("cells = %v, want 6", st["cells"])
	}
	if st["state"].(string) != "idle" {
		t.Fatalf("state = %v, want idle", st["state"])
	}
	pl.BeginCalibration()
	st = pl.Status()
	if st["state"].(string) != "calibrating" {
		t.Fatalf("state = %v, want calibrating", st["state"])
	}
	if st["calibration_remaining"].(int) != 2 {
		t.Fatalf("calibration_remaining = %v, want 2", st["calibration_remaining"])
	}
}
