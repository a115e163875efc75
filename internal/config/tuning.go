package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig captures the empirically tuned constants of the viewer
// pipeline. Several of these (angle offset, car height, interpolation
// factors) are visual calibration values with no derivation; they are kept
// here as named configuration rather than re-derived in code. Fields are
// pointers so a partial JSON file overrides only what it names.
type TuningConfig struct {
	// Motion interpolation params
	PositionBaseFactor  *float64 `json:"position_base_factor,omitempty"`
	PositionScaleFactor *float64 `json:"position_scale_factor,omitempty"`
	PositionMaxFactor   *float64 `json:"position_max_factor,omitempty"`
	HeadingBaseFactor   *float64 `json:"heading_base_factor,omitempty"`
	HeadingScaleFactor  *float64 `json:"heading_scale_factor,omitempty"`
	HeadingMaxFactor    *float64 `json:"heading_max_factor,omitempty"`
	MinMotionThreshold  *float64 `json:"min_motion_threshold,omitempty"`
	TeleportDistance    *float64 `json:"teleport_distance,omitempty"`
	CarVerticalOffset   *float64 `json:"car_vertical_offset,omitempty"`

	// Track geometry params
	TrackWidth         *float64 `json:"track_width,omitempty"`
	SurfaceSamples     *int     `json:"surface_samples,omitempty"`
	BoundaryMultiplier *int     `json:"boundary_sample_multiplier,omitempty"`
	BoundaryWidth      *float64 `json:"boundary_width,omitempty"`
	ElevationAmp1      *float64 `json:"elevation_amp1,omitempty"`
	ElevationFreq1     *float64 `json:"elevation_freq1,omitempty"`
	ElevationAmp2      *float64 `json:"elevation_amp2,omitempty"`
	ElevationFreq2     *float64 `json:"elevation_freq2,omitempty"`
	ClampTolerance     *float64 `json:"clamp_tolerance,omitempty"`

	// Camera params
	ZoomMin          *float64 `json:"zoom_min,omitempty"`
	ZoomMax          *float64 `json:"zoom_max,omitempty"`
	ZoomDefault      *float64 `json:"zoom_default,omitempty"`
	FollowPullFactor *float64 `json:"follow_pull_factor,omitempty"`

	// Transport params
	ReconnectBaseDelay *string `json:"reconnect_base_delay,omitempty"` // duration string like "1s"
	ReconnectMaxDelay  *string `json:"reconnect_max_delay,omitempty"`  // duration string like "30s"
	WriteTimeout       *string `json:"write_timeout,omitempty"`

	// Broadcast pacing for the sim and replay servers
	BroadcastInterval *string `json:"broadcast_interval,omitempty"` // duration string like "100ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching upward from the current directory.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.PositionMaxFactor != nil {
		if *c.PositionMaxFactor <= 0 || *c.PositionMaxFactor >= 1 {
			return fmt.Errorf("position_max_factor must be in (0,1), got %f", *c.PositionMaxFactor)
		}
	}
	if c.PositionBaseFactor != nil && c.PositionMaxFactor != nil {
		if *c.PositionBaseFactor > *c.PositionMaxFactor {
			return fmt.Errorf("position_base_factor %f exceeds position_max_factor %f",
				*c.PositionBaseFactor, *c.PositionMaxFactor)
		}
	}
	if c.HeadingMaxFactor != nil {
		if *c.HeadingMaxFactor <= 0 || *c.HeadingMaxFactor >= 1 {
			return fmt.Errorf("heading_max_factor must be in (0,1), got %f", *c.HeadingMaxFactor)
		}
	}
	if c.TrackWidth != nil && *c.TrackWidth <= 0 {
		return fmt.Errorf("track_width must be positive, got %f", *c.TrackWidth)
	}
	if c.SurfaceSamples != nil && *c.SurfaceSamples < 3 {
		return fmt.Errorf("surface_samples must be at least 3, got %d", *c.SurfaceSamples)
	}
	if c.ZoomMin != nil && c.ZoomMax != nil && *c.ZoomMin > *c.ZoomMax {
		return fmt.Errorf("zoom_min %f exceeds zoom_max %f", *c.ZoomMin, *c.ZoomMax)
	}

	for name, v := range map[string]*string{
		"reconnect_base_delay": c.ReconnectBaseDelay,
		"reconnect_max_delay":  c.ReconnectMaxDelay,
		"write_timeout":        c.WriteTimeout,
		"broadcast_interval":   c.BroadcastInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

// GetPositionBaseFactor returns the position_base_factor value or the default.
func (c *TuningConfig) GetPositionBaseFactor() float64 {
	if c.PositionBaseFactor == nil {
		return 0.15
	}
	return *c.PositionBaseFactor
}

// GetPositionScaleFactor returns the position_scale_factor value or the default.
func (c *TuningConfig) GetPositionScaleFactor() float64 {
	if c.PositionScaleFactor == nil {
		return 0.25
	}
	return *c.PositionScaleFactor
}

// GetPositionMaxFactor returns the position_max_factor value or the default.
func (c *TuningConfig) GetPositionMaxFactor() float64 {
	if c.PositionMaxFactor == nil {
		return 0.85
	}
	return *c.PositionMaxFactor
}

// GetHeadingBaseFactor returns the heading_base_factor value or the default.
func (c *TuningConfig) GetHeadingBaseFactor() float64 {
	if c.HeadingBaseFactor == nil {
		return 0.12
	}
	return *c.HeadingBaseFactor
}

// GetHeadingScaleFactor returns the heading_scale_factor value or the default.
func (c *TuningConfig) GetHeadingScaleFactor() float64 {
	if c.HeadingScaleFactor == nil {
		return 0.35
	}
	return *c.HeadingScaleFactor
}

// GetHeadingMaxFactor returns the heading_max_factor value or the default.
func (c *TuningConfig) GetHeadingMaxFactor() float64 {
	if c.HeadingMaxFactor == nil {
		return 0.65
	}
	return *c.HeadingMaxFactor
}

// GetMinMotionThreshold returns the min_motion_threshold value or the default.
func (c *TuningConfig) GetMinMotionThreshold() float64 {
	if c.MinMotionThreshold == nil {
		return 0.01
	}
	return *c.MinMotionThreshold
}

// GetTeleportDistance returns the teleport_distance value or the default.
func (c *TuningConfig) GetTeleportDistance() float64 {
	if c.TeleportDistance == nil {
		return 30.0
	}
	return *c.TeleportDistance
}

// GetCarVerticalOffset returns the car_vertical_offset value or the default.
func (c *TuningConfig) GetCarVerticalOffset() float64 {
	if c.CarVerticalOffset == nil {
		return 0.5
	}
	return *c.CarVerticalOffset
}

// GetTrackWidth returns the track_width value or the default.
func (c *TuningConfig) GetTrackWidth() float64 {
	if c.TrackWidth == nil {
		return 10.0
	}
	return *c.TrackWidth
}

// GetSurfaceSamples returns the surface_samples value or the default.
func (c *TuningConfig) GetSurfaceSamples() int {
	if c.SurfaceSamples == nil {
		return 600
	}
	return *c.SurfaceSamples
}

// GetBoundaryMultiplier returns the boundary_sample_multiplier value or the default.
func (c *TuningConfig) GetBoundaryMultiplier() int {
	if c.BoundaryMultiplier == nil {
		return 2
	}
	return *c.BoundaryMultiplier
}

// GetBoundaryWidth returns the boundary_width value or the default.
func (c *TuningConfig) GetBoundaryWidth() float64 {
	if c.BoundaryWidth == nil {
		return 0.8
	}
	return *c.BoundaryWidth
}

// GetElevationAmp1 returns the elevation_amp1 value or the default.
func (c *TuningConfig) GetElevationAmp1() float64 {
	if c.ElevationAmp1 == nil {
		return 1.5
	}
	return *c.ElevationAmp1
}

// GetElevationFreq1 returns the elevation_freq1 value or the default.
func (c *TuningConfig) GetElevationFreq1() float64 {
	if c.ElevationFreq1 == nil {
		return 3.0
	}
	return *c.ElevationFreq1
}

// GetElevationAmp2 returns the elevation_amp2 value or the default.
func (c *TuningConfig) GetElevationAmp2() float64 {
	if c.ElevationAmp2 == nil {
		return 0.8
	}
	return *c.ElevationAmp2
}

// GetElevationFreq2 returns the elevation_freq2 value or the default.
func (c *TuningConfig) GetElevationFreq2() float64 {
	if c.ElevationFreq2 == nil {
		return 7.0
	}
	return *c.ElevationFreq2
}

// GetClampTolerance returns the clamp_tolerance value or the default.
func (c *TuningConfig) GetClampTolerance() float64 {
	if c.ClampTolerance == nil {
		return 2.0
	}
	return *c.ClampTolerance
}

// GetZoomMin returns the zoom_min value or the default.
func (c *TuningConfig) GetZoomMin() float64 {
	if c.ZoomMin == nil {
		return 0.5
	}
	return *c.ZoomMin
}

// GetZoomMax returns the zoom_max value or the default.
func (c *TuningConfig) GetZoomMax() float64 {
	if c.ZoomMax == nil {
		return 4.0
	}
	return *c.ZoomMax
}

// GetZoomDefault returns the zoom_default value or the default.
func (c *TuningConfig) GetZoomDefault() float64 {
	if c.ZoomDefault == nil {
		return 1.0
	}
	return *c.ZoomDefault
}

// GetFollowPullFactor returns the follow_pull_factor value or the default.
func (c *TuningConfig) GetFollowPullFactor() float64 {
	if c.FollowPullFactor == nil {
		return 0.12
	}
	return *c.FollowPullFactor
}

// GetReconnectBaseDelay parses and returns the reconnect_base_delay as a Duration.
func (c *TuningConfig) GetReconnectBaseDelay() time.Duration {
	return c.duration(c.ReconnectBaseDelay, time.Second)
}

// GetReconnectMaxDelay parses and returns the reconnect_max_delay as a Duration.
func (c *TuningConfig) GetReconnectMaxDelay() time.Duration {
	return c.duration(c.ReconnectMaxDelay, 30*time.Second)
}

// GetWriteTimeout parses and returns the write_timeout as a Duration.
func (c *TuningConfig) GetWriteTimeout() time.Duration {
	return c.duration(c.WriteTimeout, 5*time.Second)
}

// GetBroadcastInterval parses and returns the broadcast_interval as a Duration.
func (c *TuningConfig) GetBroadcastInterval() time.Duration {
	return c.duration(c.BroadcastInterval, 100*time.Millisecond)
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}
