package skin

import "math"

// RangeThresholds is the current intensity-mapping window. In auto-range mode
// it is recomputed every cycle from the observed delta extremes; in manual
// mode it mirrors the configured thresholds.
type RangeThresholds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Conditioner turns one frame plus the baseline into a normalized intensity
// field. It owns two scratch buffers that are recomputed every cycle and have
// no cross-cycle identity: the work buffer of noise-gated absolute deltas and
// the output field of intensities in [0,1].
//
// Conditioner is not safe for concurrent use; the owning Pipeline serializes
// all access.
type Conditioner struct {
	work       []float64
	field      []float64
	vmin, vmax float64
	thresholds RangeThresholds
}

// NewConditioner creates a conditioner for a matrix with the given cell count.
func NewConditioner(cells int) *Conditioner {
	return &Conditioner{
		work:  make([]float64, cells),
		field: make([]float64, cells),
	}
}

// Process runs one conditioning cycle against a Ready baseline: delta
// extraction with the hard noise floor, range tracking, threshold derivation
// and intensity mapping. The baseline slice must have the same length as the
// frame.
func (s *Conditioner) Process(frame Frame, baseline []float64, p Params) {
	s.vmin = math.MaxFloat64
	s.vmax = 0
	for i, v := range frame {
		d := math.Abs(float64(v) - baseline[i])
		if d < p.HardNoiseFloor {
			d = 0
		}
		s.work[i] = d
		if d < s.vmin {
			s.vmin = d
		}
		if d > s.vmax {
			s.vmax = d
		}
	}

	if p.AutoRangeEnabled {
		// Trim the extremes of the observed range before mapping so a single
		// hot cell cannot dominate the window. The span floor keeps the
		// window from collapsing on a flat frame.
		span := s.vmax - s.vmin
		if span < p.MinRangeSpan {
			span = p.MinRangeSpan
		}
		trim := span / p.RangeTrimDivisor
		s.thresholds = RangeThresholds{Min: s.vmin + trim, Max: s.vmax - trim}
	} else {
		s.thresholds = RangeThresholds{Min: p.ThresholdMin, Max: p.ThresholdMax}
	}

	// Denominator floor guards against a window that collapsed to a point
	// (or inverted manual thresholds); the field degrades to a uniform low
	// value instead of blowing up.
	den := s.thresholds.Max - s.thresholds.Min
	if den < 1 {
		den = 1
	}
	for i, d := range s.work {
		t := (d - s.thresholds.Min) / den
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		s.field[i] = t
	}
}

// Zero clears the work buffer and field for cycles where the baseline is not
// Ready. Range thresholds are left untouched (there is nothing to derive
// them from).
func (s *Conditioner) Zero() {
	for i := range s.work {
		s.work[i] = 0
		s.field[i] = 0
	}
	s.vmin = 0
	s.vmax = 0
}

// Blank zeroes the output field only, used when the quiet detector overrides
// the cycle. The work buffer and thresholds keep their computed values so
// diagnostics still reflect what was observed.
func (s *Conditioner) Blank() {
	for i := range s.field {
		s.field[i] = 0
	}
}

// VMin returns the smallest gated delta of the current cycle.
func (s *Conditioner) VMin() float64 { return s.vmin }

// VMax returns the peak gated delta of the current cycle.
func (s *Conditioner) VMax() float64 { return s.vmax }

// Thresholds returns the mapping window used on the current cycle.
func (s *Conditioner) Thresholds() RangeThresholds { return s.thresholds }

// Work returns a copy of the current work buffer of gated deltas.
func (s *Conditioner) Work() []float64 {
	out := make([]float64, len(s.work))
	copy(out, s.work)
	return out
}

// Field returns a copy of the current intensity field.
func (s *Conditioner) Field() []float64 {
	out := make([]float64, len(s.field))
	copy(out, s.field)
	return out
}
