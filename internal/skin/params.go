package skin

// Params is the externally tunable configuration surface of the conditioning
// engine. The values are read by the pipeline on every cycle and written only
// through the pipeline's setter methods, which apply changes between cycles.
//
// The trim and span constants were tuned empirically against the original
// sensor's voltage range; they are parameters rather than hard values because
// no general derivation exists for other matrices.
type Params struct {
	// StabilityThreshold is the largest per-cell delta (raw units) still
	// considered drift rather than touch. Cells at or below it feed the
	// baseline filter; cells above it leave the baseline untouched so a
	// sustained press is never absorbed into the reference.
	StabilityThreshold float64

	// BaselineLearningRate is the EMA alpha for the drift update.
	BaselineLearningRate float64

	// HardNoiseFloor clamps any delta below this value (raw units) to zero.
	// Rejects jitter that is neither drift nor a real touch.
	HardNoiseFloor float64

	// AutoRangeEnabled recomputes the intensity-mapping window each cycle
	// from the observed delta extremes. When false, ThresholdMin and
	// ThresholdMax are used as-is.
	AutoRangeEnabled bool

	// ThresholdMin and ThresholdMax define the mapping window in manual mode.
	// In auto-range mode they are outputs, observable via the pipeline.
	ThresholdMin float64
	ThresholdMax float64

	// MinRangeSpan floors vmax-vmin before the window is derived, so a flat
	// frame never collapses the mapping denominator.
	MinRangeSpan float64

	// RangeTrimDivisor trims span/RangeTrimDivisor off each end of the
	// observed range before mapping (20 means 5% per side), reducing
	// sensitivity to single-cell outliers.
	RangeTrimDivisor float64

	// QuietCutoff is the peak-delta level (raw units) at or below which a
	// whole frame counts as quiet.
	QuietCutoff float64

	// QuietHysteresisFrames is the number of consecutive quiet frames
	// required before the output is blanked. A single borderline frame must
	// not flicker the display.
	QuietHysteresisFrames int

	// CalibrationDurationFrames is how many frames a triggered calibration
	// averages over.
	CalibrationDurationFrames int
}

// DefaultParams returns the tuning defaults for the Unipd skin.
func DefaultParams() Params {
	return Params{
		StabilityThreshold:        25,
		BaselineLearningRate:      0.01,
		HardNoiseFloor:            15,
		AutoRangeEnabled:          true,
		ThresholdMin:              0,
		ThresholdMax:              255,
		MinRangeSpan:              10,
		RangeTrimDivisor:          20,
		QuietCutoff:               35,
		QuietHysteresisFrames:     2,
		CalibrationDurationFrames: 32,
	}
}

// sanitized returns a copy with degenerate values replaced so the per-cycle
// math cannot divide by zero or loop forever. Callers may set anything via
// the HTTP params surface; the engine defends here instead of erroring
// mid-cycle.
func (p Params) sanitized() Params {
	if p.MinRangeSpan < 1 {
		p.MinRangeSpan = 1
	}
	if p.RangeTrimDivisor < 2 {
		p.RangeTrimDivisor = 2
	}
	if p.QuietHysteresisFrames < 1 {
		p.QuietHysteresisFrames = 1
	}
	if p.CalibrationDurationFrames < 1 {
		p.CalibrationDurationFrames = 1
	}
	if p.BaselineLearningRate < 0 {
		p.BaselineLearningRate = 0
	} else if p.BaselineLearningRate > 1 {
		p.BaselineLearningRate = 1
	}
	return p
}
