package skin

import (
	"math"

	"github.com/banshee-data/touch.report/internal/monitoring"
)

// CalibrationState is the lifecycle of the baseline reference.
type CalibrationState int

const (
	// CalibrationIdle means no baseline has ever been computed; deltas are
	// meaningless and the engine emits a zero field.
	CalibrationIdle CalibrationState = iota
	// Calibrating means the calibrator is accumulating frames for the batch
	// average; output is suppressed entirely until it completes.
	Calibrating
	// CalibrationReady means the baseline is valid for delta computation and
	// tracks slow drift via the gated EMA.
	CalibrationReady
)

func (s CalibrationState) String() string {
	switch s {
	case CalibrationIdle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case CalibrationReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Calibrator owns the per-cell baseline and its state machine. Initialization
// is a single-shot batch average over a fixed number of frames; after that a
// gated exponential filter tracks drift cell by cell. The two-phase scheme
// avoids a slow cold start while keeping a sustained touch from corrupting
// the reference.
//
// Calibrator is not safe for concurrent use; the owning Pipeline serializes
// all access.
type Calibrator struct {
	cells           int
	state           CalibrationState
	baseline        []float64
	accum           []float64
	framesRemaining int
	durationFrames  int
	completedCount  int64
}

// NewCalibrator creates a calibrator for a matrix with the given cell count.
// The baseline starts invalid (Idle); callers must trigger Begin before the
// engine can produce deltas.
func NewCalibrator(cells int) *Calibrator {
	return &Calibrator{
		cells:    cells,
		state:    CalibrationIdle,
		baseline: make([]float64, cells),
		accum:    make([]float64, cells),
	}
}

// Begin starts a batch calibration over durationFrames frames. The baseline
// is marked invalid until the average completes. A Begin while a calibration
// is already running is ignored so partial accumulation is never thrown away;
// the return value reports whether the request was accepted.
func (c *Calibrator) Begin(durationFrames int) bool {
	if c.state == Calibrating {
		return false
	}
	if durationFrames < 1 {
		durationFrames = 1
	}
	for i := range c.accum {
		c.accum[i] = 0
	}
	c.durationFrames = durationFrames
	c.framesRemaining = durationFrames
	c.state = Calibrating
	monitoring.Logf("[skin] calibration started: averaging %d frames over %d cells", durationFrames, c.cells)
	return true
}

// Ingest feeds one frame to the calibrator.
//
// While Calibrating it accumulates the frame; when the last frame of the
// batch arrives the baseline becomes the per-cell average and the state moves
// to Ready. While Ready it applies the gated drift update. While Idle it is
// a no-op. The frame length must equal the cell count (the pipeline validates
// before calling).
func (c *Calibrator) Ingest(frame Frame, p Params) {
	switch c.state {
	case Calibrating:
		for i, v := range frame {
			c.accum[i] += float64(v)
		}
		c.framesRemaining--
		if c.framesRemaining == 0 {
			n := float64(c.durationFrames)
			for i := range c.baseline {
				c.baseline[i] = c.accum[i] / n
				c.accum[i] = 0
			}
			c.state = CalibrationReady
			c.completedCount++
			monitoring.Logf("[skin] calibration complete after %d frames", c.durationFrames)
		}
	case CalibrationReady:
		for i, v := range frame {
			c.baseline[i] = adaptBaseline(float64(v), c.baseline[i], p.StabilityThreshold, p.BaselineLearningRate)
		}
	case CalibrationIdle:
		// baseline stays invalid until an explicit calibration request
	}
}

// adaptBaseline is the per-cell drift filter: if the reading is within
// stabilityThreshold of the current baseline it is treated as drift and the
// baseline moves toward the reading by factor alpha; otherwise the reading
// looks like an active touch and the baseline is left alone.
func adaptBaseline(reading, baseline, stabilityThreshold, alpha float64) float64 {
	if math.Abs(reading-baseline) > stabilityThreshold {
		return baseline
	}
	return alpha*reading + (1-alpha)*baseline
}

// State returns the current calibration state.
func (c *Calibrator) State() CalibrationState { return c.state }

// Ready reports whether the baseline is valid for delta computation.
func (c *Calibrator) Ready() bool { return c.state == CalibrationReady }

// FramesRemaining returns how many frames the running calibration still
// needs, or 0 when not calibrating.
func (c *Calibrator) FramesRemaining() int {
	if c.state != Calibrating {
		return 0
	}
	return c.framesRemaining
}

// CompletedCount returns how many calibrations have finished since startup.
func (c *Calibrator) CompletedCount() int64 { return c.completedCount }

// Baseline returns a copy of the per-cell baseline. The copy is safe for the
// caller to inspect without further synchronization.
func (c *Calibrator) Baseline() []float64 {
	out := make([]float64, len(c.baseline))
	copy(out, c.baseline)
	return out
}

// baselineRef exposes the live baseline slice to the pipeline for the
// per-cycle delta pass without an allocation per frame.
func (c *Calibrator) baselineRef() []float64 { return c.baseline }
