// Package config holds the tunable parameters of the pipeline stages.
// All fields are optional pointers so a partial JSON file overrides only
// what it names; the Get* accessors supply the shipping defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amtellezfernandez/lidar-pc/internal/keyframe"
	"github.com/amtellezfernandez/lidar-pc/internal/recon"
	"github.com/amtellezfernandez/lidar-pc/internal/tracking"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// TuningConfig is the root pipeline configuration. The same flat JSON
// schema serves the config file and the CLI overrides.
type TuningConfig struct {
	// Keyframe selection
	KeyframeInterval    *int     `json:"keyframe_interval,omitempty"`
	BlurThreshold       *float64 `json:"blur_threshold,omitempty"`
	PixelDeltaThreshold *float64 `json:"pixel_delta_threshold,omitempty"`

	// Capture
	MaxFrames *int `json:"max_frames,omitempty"`

	// Pose tracking
	MinInliers *int     `json:"min_inliers,omitempty"`
	StepScaleM *float64 `json:"step_scale_m,omitempty"`

	// Reconstruction
	QualityProfile *string `json:"quality_profile,omitempty"`
	ReconWorkers   *int    `json:"recon_workers,omitempty"`

	// Randomized estimation; 0 seeds from the clock.
	Seed *int64 `json:"seed,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset, so
// every accessor falls back to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the set fields carry usable values.
func (c *TuningConfig) Validate() error {
	if c.KeyframeInterval != nil && *c.KeyframeInterval < 1 {
		return fmt.Errorf("keyframe_interval must be at least 1, got %d", *c.KeyframeInterval)
	}
	if c.BlurThreshold != nil && *c.BlurThreshold < 0 {
		return fmt.Errorf("blur_threshold must be non-negative, got %f", *c.BlurThreshold)
	}
	if c.PixelDeltaThreshold != nil && *c.PixelDeltaThreshold < 0 {
		return fmt.Errorf("pixel_delta_threshold must be non-negative, got %f", *c.PixelDeltaThreshold)
	}
	if c.MaxFrames != nil && *c.MaxFrames < 0 {
		return fmt.Errorf("max_frames must be non-negative, got %d", *c.MaxFrames)
	}
	if c.MinInliers != nil && *c.MinInliers < 8 {
		return fmt.Errorf("min_inliers must be at least 8, got %d", *c.MinInliers)
	}
	if c.StepScaleM != nil && *c.StepScaleM <= 0 {
		return fmt.Errorf("step_scale_m must be positive, got %f", *c.StepScaleM)
	}
	if c.QualityProfile != nil {
		switch *c.QualityProfile {
		case recon.QualityHigh, recon.QualityMedium:
		default:
			return fmt.Errorf("quality_profile must be %q or %q, got %q",
				recon.QualityHigh, recon.QualityMedium, *c.QualityProfile)
		}
	}
	if c.ReconWorkers != nil && *c.ReconWorkers < 0 {
		return fmt.Errorf("recon_workers must be non-negative, got %d", *c.ReconWorkers)
	}
	return nil
}

// GetKeyframeInterval returns the keyframe_interval value or the default.
func (c *TuningConfig) GetKeyframeInterval() int {
	if c.KeyframeInterval == nil {
		return keyframe.DefaultParams().Interval
	}
	return *c.KeyframeInterval
}

// GetBlurThreshold returns the blur_threshold value or the default.
func (c *TuningConfig) GetBlurThreshold() float64 {
	if c.BlurThreshold == nil {
		return keyframe.DefaultParams().BlurThreshold
	}
	return *c.BlurThreshold
}

// GetPixelDeltaThreshold returns the pixel_delta_threshold value or the default.
func (c *TuningConfig) GetPixelDeltaThreshold() float64 {
	if c.PixelDeltaThreshold == nil {
		return keyframe.DefaultParams().PixelDeltaThreshold
	}
	return *c.PixelDeltaThreshold
}

// GetMaxFrames returns the max_frames value or the default (unlimited).
func (c *TuningConfig) GetMaxFrames() int {
	if c.MaxFrames == nil {
		return 0
	}
	return *c.MaxFrames
}

// GetMinInliers returns the min_inliers value or the default.
func (c *TuningConfig) GetMinInliers() int {
	if c.MinInliers == nil {
		return tracking.DefaultParams().MinInliers
	}
	return *c.MinInliers
}

// GetStepScaleM returns the step_scale_m value or the default.
func (c *TuningConfig) GetStepScaleM() float64 {
	if c.StepScaleM == nil {
		return tracking.DefaultParams().StepScaleM
	}
	return *c.StepScaleM
}

// GetQualityProfile returns the quality_profile value or the default.
func (c *TuningConfig) GetQualityProfile() string {
	if c.QualityProfile == nil {
		return recon.QualityHigh
	}
	return *c.QualityProfile
}

// GetReconWorkers returns the recon_workers value or the default
// (one worker per CPU).
func (c *TuningConfig) GetReconWorkers() int {
	if c.ReconWorkers == nil {
		return 0
	}
	return *c.ReconWorkers
}

// GetSeed returns the seed value or the default (clock-seeded).
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// KeyframeParams assembles the keyframe selector parameters.
func (c *TuningConfig) KeyframeParams() keyframe.Params {
	return keyframe.Params{
		Interval:            c.GetKeyframeInterval(),
		BlurThreshold:       c.GetBlurThreshold(),
		PixelDeltaThreshold: c.GetPixelDeltaThreshold(),
	}
}

// TrackingParams assembles the pose tracker parameters.
func (c *TuningConfig) TrackingParams() tracking.Params {
	return tracking.Params{
		MinInliers: c.GetMinInliers(),
		StepScaleM: c.GetStepScaleM(),
		Seed:       c.GetSeed(),
	}
}

// ReconParams assembles the reconstructor parameters.
func (c *TuningConfig) ReconParams() recon.Params {
	return recon.Params{
		Quality: c.GetQualityProfile(),
		Workers: c.GetReconWorkers(),
		Seed:    c.GetSeed(),
	}
}
