package skin

// QuietDetector is a hysteresis gate over the per-cycle peak delta. A single
// below-cutoff frame must not blank the display (borderline signal would
// flicker), so the detector requires several consecutive quiet frames before
// it overrides the output, and one loud frame immediately un-blanks.
//
// QuietDetector is not safe for concurrent use; the owning Pipeline
// serializes all access.
type QuietDetector struct {
	streak int
	quiet  bool
}

// Observe feeds the peak delta of one cycle and reports whether the output
// should be blanked. While the baseline is not Ready there is nothing to
// blank (upstream already forces a zero field) and the streak resets.
func (q *QuietDetector) Observe(vmax float64, ready bool, p Params) bool {
	if !ready || vmax > p.QuietCutoff {
		q.streak = 0
		q.quiet = false
		return false
	}
	q.streak++
	if q.streak >= p.QuietHysteresisFrames {
		q.quiet = true
	}
	return q.quiet
}

// Streak returns the current count of consecutive quiet cycles.
func (q *QuietDetector) Streak() int { return q.streak }

// Quiet reports whether the detector is currently blanking the output.
func (q *QuietDetector) Quiet() bool { return q.quiet }
