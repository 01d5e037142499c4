package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/touch.report/internal/skin"
)

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/skin/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Baseline params
	StabilityThreshold        *float64 `json:"stability_threshold,omitempty"`
	BaselineLearningRate      *float64 `json:"baseline_learning_rate,omitempty"`
	CalibrationDurationFrames *int     `json:"calibration_duration_frames,omitempty"`

	// Conditioning params
	HardNoiseFloor   *float64 `json:"hard_noise_floor,omitempty"`
	AutoRangeEnabled *bool    `json:"auto_range_enabled,omitempty"`
	ThresholdMin     *float64 `json:"threshold_min,omitempty"`
	ThresholdMax     *float64 `json:"threshold_max,omitempty"`
	MinRangeSpan     *float64 `json:"min_range_span,omitempty"`
	RangeTrimDivisor *float64 `json:"range_trim_divisor,omitempty"`

	// Quiet detection params
	QuietCutoff           *float64 `json:"quiet_cutoff,omitempty"`
	QuietHysteresisFrames *int     `json:"quiet_hysteresis_frames,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.BaselineLearningRate != nil {
		if *c.BaselineLearningRate < 0 || *c.BaselineLearningRate > 1 {
			return fmt.Errorf("baseline_learning_rate must be between 0 and 1, got %f", *c.BaselineLearningRate)
		}
	}
	if c.StabilityThreshold != nil && *c.StabilityThreshold < 0 {
		return fmt.Errorf("stability_threshold must be non-negative, got %f", *c.StabilityThreshold)
	}
	if c.HardNoiseFloor != nil && *c.HardNoiseFloor < 0 {
		return fmt.Errorf("hard_noise_floor must be non-negative, got %f", *c.HardNoiseFloor)
	}
	if c.ThresholdMin != nil && c.ThresholdMax != nil {
		if *c.ThresholdMax < *c.ThresholdMin {
			return fmt.Errorf("threshold_max (%f) must not be below threshold_min (%f)", *c.ThresholdMax, *c.ThresholdMin)
		}
	}
	if c.RangeTrimDivisor != nil && *c.RangeTrimDivisor <= 0 {
		return fmt.Errorf("range_trim_divisor must be positive, got %f", *c.RangeTrimDivisor)
	}
	if c.QuietHysteresisFrames != nil && *c.QuietHysteresisFrames < 1 {
		return fmt.Errorf("quiet_hysteresis_frames must be at least 1, got %d", *c.QuietHysteresisFrames)
	}
	if c.CalibrationDurationFrames != nil && *c.CalibrationDurationFrames < 1 {
		return fmt.Errorf("calibration_duration_frames must be at least 1, got %d", *c.CalibrationDurationFrames)
	}
	return nil
}

// Apply overlays the set fields of the config onto the given params and
// returns the result. Unset fields pass base through unchanged.
func (c *TuningConfig) Apply(base skin.Params) skin.Params {
	p := base
	if c == nil {
		return p
	}
	if c.StabilityThreshold != nil {
		p.StabilityThreshold = *c.StabilityThreshold
	}
	if c.BaselineLearningRate != nil {
		p.BaselineLearningRate = *c.BaselineLearningRate
	}
	if c.CalibrationDurationFrames != nil {
		p.CalibrationDurationFrames = *c.CalibrationDurationFrames
	}
	if c.HardNoiseFloor != nil {
		p.HardNoiseFloor = *c.HardNoiseFloor
	}
	if c.AutoRangeEnabled != nil {
		p.AutoRangeEnabled = *c.AutoRangeEnabled
	}
	if c.ThresholdMin != nil {
		p.ThresholdMin = *c.ThresholdMin
	}
	if c.ThresholdMax != nil {
		p.ThresholdMax = *c.ThresholdMax
	}
	if c.MinRangeSpan != nil {
		p.MinRangeSpan = *c.MinRangeSpan
	}
	if c.RangeTrimDivisor != nil {
		p.RangeTrimDivisor = *c.RangeTrimDivisor
	}
	if c.QuietCutoff != nil {
		p.QuietCutoff = *c.QuietCutoff
	}
	if c.QuietHysteresisFrames != nil {
		p.QuietHysteresisFrames = *c.QuietHysteresisFrames
	}
	return p
}

// FromParams converts resolved params into a fully populated TuningConfig,
// used when echoing the effective configuration over the API.
func FromParams(p skin.Params) *TuningConfig {
	return &TuningConfig{
		StabilityThreshold:        &p.StabilityThreshold,
		BaselineLearningRate:      &p.BaselineLearningRate,
		CalibrationDurationFrames: &p.CalibrationDurationFrames,
		HardNoiseFloor:            &p.HardNoiseFloor,
		AutoRangeEnabled:          &p.AutoRangeEnabled,
		ThresholdMin:              &p.ThresholdMin,
		ThresholdMax:              &p.ThresholdMax,
		MinRangeSpan:              &p.MinRangeSpan,
		RangeTrimDivisor:          &p.RangeTrimDivisor,
		QuietCutoff:               &p.QuietCutoff,
		QuietHysteresisFrames:     &p.QuietHysteresisFrames,
	}
}
