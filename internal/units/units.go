// Package units provides shared constants and validation for intensity
// output scales.
package units

// Scale constants. The pipeline computes intensities in [0,1]; consumers may
// ask the API for a scaled representation.
const (
	Norm    = "norm"    // [0,1] as produced by the pipeline
	Byte    = "byte"    // [0,255], the scale most display sinks expect
	Percent = "percent" // [0,100]
)

// ValidScales contains all valid scale values.
var ValidScales = []string{Norm, Byte, Percent}

// IsValid checks if the given scale is in the list of valid scales.
func IsValid(scale string) bool {
	for _, s := range ValidScales {
		if scale == s {
			return true
		}
	}
	return false
}

// GetValidScalesString returns a comma-separated string of valid scales for
// error messages.
func GetValidScalesString() string {
	return "norm, byte, percent"
}

// ConvertIntensity converts a normalized intensity to the target scale.
// Unknown scales fall back to the normalized value.
func ConvertIntensity(norm float64, targetScale string) float64 {
	switch targetScale {
	case Byte:
		return norm * 255
	case Percent:
		return norm * 100
	case Norm:
		return norm
	default:
		return norm
	}
}

// ConvertField converts a whole intensity field to the target scale,
// returning a new slice.
func ConvertField(field []float64, targetScale string) []float64 {
	out := make([]float64, len(field))
	for i, v := range field {
		out[i] = ConvertIntensity(v, targetScale)
	}
	return out
}
