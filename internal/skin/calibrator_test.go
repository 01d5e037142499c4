package skin

import (
	"math"
	"testing"
)

func constantFrame(cells int, v uint16) Frame {
	f := make(Frame, cells)
	for i := range f {
		f[i] = v
	}
	return f
}

// Constant input for the full calibration window must reproduce the input
// exactly in the baseline and leave the state Ready.
func TestCalibrator_ConstantFramesYieldExactBaseline(t *testing.T) {
	c := NewCalibrator(4)
	p := DefaultParams()

	if !c.Begin(3) {
		t.Fatal("expected Begin to be accepted from Idle")
	}
	if c.State() != Calibrating {
		t.Fatalf("state = %v, want Calibrating", c.State())
	}

	for i := 0; i < 3; i++ {
		c.Ingest(constantFrame(4, 120), p)
	}

	if c.State() != CalibrationReady {
		t.Fatalf("state = %v, want Ready", c.State())
	}
	for i, b := range c.Baseline() {
		if b != 120 {
			t.Fatalf("baseline[%d] = %v, want 120", i, b)
		}
	}
}

func TestCalibrator_FramesRemainingDecreases(t *testing.T) {
	c := NewCalibrator(2)
	p := DefaultParams()
	c.Begin(4)
	for want := 3; want >= 1; want-- {
		c.Ingest(constantFrame(2, 10), p)
		if got := c.FramesRemaining(); got != want {
			t.Fatalf("frames remaining = %d, want %d", got, want)
		}
	}
	c.Ingest(constantFrame(2, 10), p)
	if c.FramesRemaining() != 0 {
		t.Fatalf("frames remaining = %d after completion, want 0", c.FramesRemaining())
	}
}

// A re-trigger while a calibration is running must not restart or corrupt the
// accumulation.
func TestCalibrator_BeginWhileCalibratingIgnored(t *testing.T) {
	c := NewCalibrator(2)
	p := DefaultParams()
	c.Begin(2)
	c.Ingest(constantFrame(2, 50), p)

	if c.Begin(10) {
		t.Fatal("expected Begin to be rejected while calibrating")
	}
	c.Ingest(constantFrame(2, 50), p)

	if c.State() != CalibrationReady {
		t.Fatalf("state = %v, want Ready (original 2-frame window)", c.State())
	}
	if b := c.Baseline()[0]; b != 50 {
		t.Fatalf("baseline = %v, want 50", b)
	}
}

func TestCalibrator_IngestWhileIdleIsNoOp(t *testing.T) {
	c := NewCalibrator(2)
	p := DefaultParams()
	c.Ingest(constantFrame(2, 200), p)
	if c.State() != CalibrationIdle {
		t.Fatalf("state = %v, want Idle", c.State())
	}
	for i, b := range c.Baseline() {
		if b != 0 {
			t.Fatalf("baseline[%d] = %v, want 0 while Idle", i, b)
		}
	}
}

// Drift gating: a cell whose delta exceeds the stability threshold keeps its
// baseline; a cell within the threshold moves toward the reading by alpha.
func TestCalibrator_DriftGating(t *testing.T) {
	c := NewCalibrator(2)
	p := DefaultParams()
	p.StabilityThreshold = 25
	p.BaselineLearningRate = 0.1

	c.Begin(1)
	c.Ingest(Frame{100, 100}, p)
	if !c.Ready() {
		t.Fatal("expected Ready after 1-frame calibration")
	}

	// cell 0 drifts by +10 (within threshold), cell 1 jumps by +60 (touch)
	c.Ingest(Frame{110, 160}, p)
	base := c.Baseline()

	want0 := 0.1*110 + 0.9*100
	if math.Abs(base[0]-want0) > 1e-9 {
		t.Fatalf("drifting cell baseline = %v, want %v", base[0], want0)
	}
	if base[0] <= 100 || base[0] >= 110 {
		t.Fatalf("drifting cell baseline = %v, want strictly between 100 and 110", base[0])
	}
	if base[1] != 100 {
		t.Fatalf("touched cell baseline = %v, want unchanged 100", base[1])
	}
}

func TestAdaptBaseline_BoundaryDelta(t *testing.T) {
	// delta exactly at the threshold still counts as drift
	got := adaptBaseline(125, 100, 25, 0.5)
	if got != 112.5 {
		t.Fatalf("adaptBaseline at threshold = %v, want 112.5", got)
	}
	// one unit past the threshold is a touch
	got = adaptBaseline(126, 100, 25, 0.5)
	if got != 100 {
		t.Fatalf("adaptBaseline past threshold = %v, want 100", got)
	}
}

// Averaging must be a true batch average, not a running filter.
func TestCalibrator_BatchAverage(t *testing.T) {
	c := NewCalibrator(1)
	p := DefaultParams()
	c.Begin(4)
	for _, v := range []uint16{10, 20, 30, 40} {
		c.Ingest(Frame{v}, p)
	}
	if b := c.Baseline()[0]; b != 25 {
		t.Fatalf("baseline = %v, want batch average 25", b)
	}
}

func TestCalibrator_RecalibrationReplacesBaseline(t *testing.T) {
	c := NewCalibrator(1)
	p := DefaultParams()
	c.Begin(1)
	c.Ingest(Frame{100}, p)

	if !c.Begin(2) {
		t.Fatal("expected Begin to be accepted from Ready")
	}
	if c.Ready() {
		t.Fatal("baseline must be invalid while recalibrating")
	}
	c.Ingest(Frame{200}, p)
	c.Ingest(Frame{200}, p)
	if b := c.Baseline()[0]; b != 200 {
		t.Fatalf("baseline = %v after recalibration, want 200", b)
	}
	if c.CompletedCount() != 2 {
		t.Fatalf("completed count = %d, want 2", c.CompletedCount())
	}
}
