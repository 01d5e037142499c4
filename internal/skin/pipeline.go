package skin

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/touch.report/internal/monitoring"
)

// FieldSnapshot is the per-cycle output of the pipeline: the normalized
// intensity field plus the diagnostics downstream consumers read but never
// mutate.
type FieldSnapshot struct {
	Cycle      int64            `json:"cycle"`
	Timestamp  time.Time        `json:"timestamp"`
	Rows       int              `json:"rows"`
	Cols       int              `json:"cols"`
	Field      []float64        `json:"field"` // row-major, each value in [0,1]
	Thresholds RangeThresholds  `json:"thresholds"`
	State      CalibrationState `json:"-"`
	StateName  string           `json:"state"`
	Quiet      bool             `json:"quiet"`
	VMin       float64          `json:"vmin"`
	VMax       float64          `json:"vmax"`
	PeakCell   int              `json:"peak_cell"`
}

// Pipeline wires the calibrator, conditioner and quiet detector into the
// per-cycle transformation. One mutex guards the params, all core state and
// the published snapshot: Ingest holds it for the whole cycle, and every
// external write (params, thresholds, calibration trigger) takes the same
// lock, so configuration changes land exactly at cycle boundaries and never
// mid-computation.
type Pipeline struct {
	mu     sync.RWMutex
	rows   int
	cols   int
	params Params

	cal   *Calibrator
	cond  *Conditioner
	quiet *QuietDetector

	cycles        int64
	emitted       int64
	droppedFrames int64
	last          *FieldSnapshot

	// onField, when set, receives a copy of every emitted snapshot. It is
	// invoked while the cycle lock is held, so sinks must not call back into
	// the pipeline; fan anything slow out through a channel.
	onField func(FieldSnapshot)
	// onCalibrated fires once per completed calibration, same constraints.
	onCalibrated func(durationFrames int)
}

// NewPipeline creates a conditioning pipeline for a rows x cols matrix.
func NewPipeline(rows, cols int, params Params) *Pipeline {
	cells := rows * cols
	return &Pipeline{
		rows:   rows,
		cols:   cols,
		params: params.sanitized(),
		cal:    NewCalibrator(cells),
		cond:   NewConditioner(cells),
		quiet:  &QuietDetector{},
	}
}

// OnField registers the snapshot sink. Must be called before frames flow.
func (pl *Pipeline) OnField(fn func(FieldSnapshot)) { pl.onField = fn }

// OnCalibrated registers the calibration-complete hook. Must be called
// before frames flow.
func (pl *Pipeline) OnCalibrated(fn func(durationFrames int)) { pl.onCalibrated = fn }

// Cells returns the number of cells per frame.
func (pl *Pipeline) Cells() int { return pl.rows * pl.cols }

// Rows returns the matrix row count.
func (pl *Pipeline) Rows() int { return pl.rows }

// Cols returns the matrix column count.
func (pl *Pipeline) Cols() int { return pl.cols }

// Ingest runs one complete conditioning cycle on the frame and returns the
// emitted snapshot, or nil when the cycle produced no output (wrong-length
// frame, or output suppressed while calibrating). The cycle is a single
// blocking transformation; the next frame must not be ingested until it
// returns.
func (pl *Pipeline) Ingest(frame Frame) *FieldSnapshot {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if len(frame) != pl.rows*pl.cols {
		pl.droppedFrames++
		return nil
	}
	pl.cycles++

	if pl.cal.State() == Calibrating {
		pl.cal.Ingest(frame, pl.params)
		if pl.cal.Ready() && pl.onCalibrated != nil {
			pl.onCalibrated(pl.cal.durationFrames)
		}
		// no output while calibrating, regardless of frame content
		pl.quiet.Observe(0, false, pl.params)
		return nil
	}

	// drift update first, then condition against the adapted baseline
	pl.cal.Ingest(frame, pl.params)

	if pl.cal.Ready() {
		pl.cond.Process(frame, pl.cal.baselineRef(), pl.params)
	} else {
		pl.cond.Zero()
	}

	if pl.quiet.Observe(pl.cond.VMax(), pl.cal.Ready(), pl.params) {
		pl.cond.Blank()
	}

	snap := pl.buildSnapshotLocked()
	pl.last = snap
	pl.emitted++
	if pl.onField != nil {
		pl.onField(*snap)
	}
	return snap
}

// buildSnapshotLocked assembles the output snapshot for the cycle that just
// ran. Caller holds pl.mu.
func (pl *Pipeline) buildSnapshotLocked() *FieldSnapshot {
	field := pl.cond.Field()
	peak := 0
	work := pl.cond.work
	for i := 1; i < len(work); i++ {
		if work[i] > work[peak] {
			peak = i
		}
	}
	return &FieldSnapshot{
		Cycle:      pl.cycles,
		Timestamp:  time.Now(),
		Rows:       pl.rows,
		Cols:       pl.cols,
		Field:      field,
		Thresholds: pl.cond.Thresholds(),
		State:      pl.cal.State(),
		StateName:  pl.cal.State().String(),
		Quiet:      pl.quiet.Quiet(),
		VMin:       pl.cond.VMin(),
		VMax:       pl.cond.VMax(),
		PeakCell:   peak,
	}
}

// BeginCalibration triggers a baseline calibration using the configured
// duration. The trigger is idempotent: a request while a calibration is
// already running is ignored and the method reports false.
func (pl *Pipeline) BeginCalibration() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.cal.Begin(pl.params.CalibrationDurationFrames)
}

// Params returns a copy of the current tuning parameters.
func (pl *Pipeline) Params() Params {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.params
}

// SetParams replaces the tuning parameters atomically between cycles.
func (pl *Pipeline) SetParams(p Params) {
	pl.mu.Lock()
	pl.params = p.sanitized()
	pl.mu.Unlock()
}

// SetThresholds overrides the intensity-mapping window and disables
// auto-range, the way a UI slider pins the window.
func (pl *Pipeline) SetThresholds(min, max float64) error {
	if max < min {
		return fmt.Errorf("threshold max %v below min %v", max, min)
	}
	pl.mu.Lock()
	pl.params.ThresholdMin = min
	pl.params.ThresholdMax = max
	pl.params.AutoRangeEnabled = false
	pl.mu.Unlock()
	monitoring.Logf("[skin] thresholds pinned to [%v, %v], auto-range off", min, max)
	return nil
}

// SetAutoRange toggles per-cycle recomputation of the mapping window.
func (pl *Pipeline) SetAutoRange(enabled bool) {
	pl.mu.Lock()
	pl.params.AutoRangeEnabled = enabled
	pl.mu.Unlock()
}

// Snapshot returns the most recently emitted snapshot, or nil if nothing has
// been emitted yet. The snapshot is a copy and safe to hold.
func (pl *Pipeline) Snapshot() *FieldSnapshot {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	if pl.last == nil {
		return nil
	}
	out := *pl.last
	out.Field = make([]float64, len(pl.last.Field))
	copy(out.Field, pl.last.Field)
	return &out
}

// Baseline returns a copy of the current per-cell baseline.
func (pl *Pipeline) Baseline() []float64 {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.cal.Baseline()
}

// State returns the current calibration state.
func (pl *Pipeline) State() CalibrationState {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.cal.State()
}

// DroppedFrames returns how many wrong-length frames were rejected.
func (pl *Pipeline) DroppedFrames() int64 {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.droppedFrames
}

// Status returns a snapshot of pipeline-level statistics for the monitoring
// surface.
func (pl *Pipeline) Status() map[string]interface{} {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return map[string]interface{}{
		"rows":                   pl.rows,
		"cols":                   pl.cols,
		"cells":                  pl.rows * pl.cols,
		"state":                  pl.cal.State().String(),
		"calibration_remaining":  pl.cal.FramesRemaining(),
		"calibrations_completed": pl.cal.CompletedCount(),
		"cycles":                 pl.cycles,
		"fields_emitted":         pl.emitted,
		"dropped_frames":         pl.droppedFrames,
		"quiet":                  pl.quiet.Quiet(),
		"quiet_streak":           pl.quiet.Streak(),
		"thresholds":             pl.cond.Thresholds(),
		"auto_range":             pl.params.AutoRangeEnabled,
	}
}
