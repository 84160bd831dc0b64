// Package config loads and validates the pipeline tuning parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the tunable parameters of the capture and
// estimation pipeline. The schema matches the /api/config endpoint so the
// same JSON serves as both a startup file and an API echo. Fields omitted
// from the JSON file retain their defaults via the Get* methods, so partial
// configs are safe. Values are fixed at initialization; they are not
// re-tunable mid-run.
type TuningConfig struct {
	// Pipeline params
	BufferSize      *int     `json:"buffer_size,omitempty"`
	SmoothingWindow *int     `json:"smoothing_window,omitempty"`
	TargetFPS       *float64 `json:"target_fps,omitempty"`

	// Passband params. Carried through to the band-limit filter, which
	// accepts but does not apply them; see internal/ppg.
	MinHz *float64 `json:"min_hz,omitempty"`
	MaxHz *float64 `json:"max_hz,omitempty"`

	// Capture params (camera producer)
	ROIWidth  *int `json:"roi_width,omitempty"`
	ROIHeight *int `json:"roi_height,omitempty"`

	// Visualization params (live view)
	SignalScale     *float64 `json:"signal_scale,omitempty"`
	SignalSmoothing *float64 `json:"signal_smoothing,omitempty"`
}

// Default tuning values.
const (
	defaultBufferSize      = 256
	defaultSmoothingWindow = 5
	defaultTargetFPS       = 30.0
	defaultMinHz           = 0.7
	defaultMaxHz           = 3.5
	defaultROIWidth        = 150
	defaultROIHeight       = 150
	defaultSignalScale     = 50.0
	defaultSignalSmoothing = 0.7
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultTuningConfig returns a config with every field set to its default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		BufferSize:      ptrInt(defaultBufferSize),
		SmoothingWindow: ptrInt(defaultSmoothingWindow),
		TargetFPS:       ptrFloat64(defaultTargetFPS),
		MinHz:           ptrFloat64(defaultMinHz),
		MaxHz:           ptrFloat64(defaultMaxHz),
		ROIWidth:        ptrInt(defaultROIWidth),
		ROIHeight:       ptrInt(defaultROIHeight),
		SignalScale:     ptrFloat64(defaultSignalScale),
		SignalSmoothing: ptrFloat64(defaultSignalSmoothing),
	}
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size.
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that any set values are usable.
func (c *TuningConfig) Validate() error {
	if c.BufferSize != nil && *c.BufferSize < 2 {
		return fmt.Errorf("buffer_size must be at least 2, got %d", *c.BufferSize)
	}
	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
	}
	if c.TargetFPS != nil && *c.TargetFPS <= 0 {
		return fmt.Errorf("target_fps must be positive, got %f", *c.TargetFPS)
	}
	if c.MinHz != nil && *c.MinHz <= 0 {
		return fmt.Errorf("min_hz must be positive, got %f", *c.MinHz)
	}
	if c.MinHz != nil && c.MaxHz != nil && *c.MaxHz <= *c.MinHz {
		return fmt.Errorf("max_hz %f must exceed min_hz %f", *c.MaxHz, *c.MinHz)
	}
	if c.ROIWidth != nil && *c.ROIWidth < 1 {
		return fmt.Errorf("roi_width must be positive, got %d", *c.ROIWidth)
	}
	if c.ROIHeight != nil && *c.ROIHeight < 1 {
		return fmt.Errorf("roi_height must be positive, got %d", *c.ROIHeight)
	}
	if c.SignalSmoothing != nil && (*c.SignalSmoothing < 0 || *c.SignalSmoothing >= 1) {
		return fmt.Errorf("signal_smoothing must be in [0, 1), got %f", *c.SignalSmoothing)
	}
	return nil
}

// GetBufferSize returns the buffer size or its default.
func (c *TuningConfig) GetBufferSize() int {
	if c.BufferSize == nil {
		return defaultBufferSize
	}
	return *c.BufferSize
}

// GetSmoothingWindow returns the smoothing window or its default.
func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return defaultSmoothingWindow
	}
	return *c.SmoothingWindow
}

// GetTargetFPS returns the target frame rate or its default.
func (c *TuningConfig) GetTargetFPS() float64 {
	if c.TargetFPS == nil {
		return defaultTargetFPS
	}
	return *c.TargetFPS
}

// GetMinHz returns the passband floor or its default.
func (c *TuningConfig) GetMinHz() float64 {
	if c.MinHz == nil {
		return defaultMinHz
	}
	return *c.MinHz
}

// GetMaxHz returns the passband ceiling or its default.
func (c *TuningConfig) GetMaxHz() float64 {
	if c.MaxHz == nil {
		return defaultMaxHz
	}
	return *c.MaxHz
}

// GetROIWidth returns the region-of-interest width or its default.
func (c *TuningConfig) GetROIWidth() int {
	if c.ROIWidth == nil {
		return defaultROIWidth
	}
	return *c.ROIWidth
}

// GetROIHeight returns the region-of-interest height or its default.
func (c *TuningConfig) GetROIHeight() int {
	if c.ROIHeight == nil {
		return defaultROIHeight
	}
	return *c.ROIHeight
}

// GetSignalScale returns the live-view amplitude scale or its default.
func (c *TuningConfig) GetSignalScale() float64 {
	if c.SignalScale == nil {
		return defaultSignalScale
	}
	return *c.SignalScale
}

// GetSignalSmoothing returns the live-view smoothing factor or its default.
func (c *TuningConfig) GetSignalSmoothing() float64 {
	if c.SignalSmoothing == nil {
		return defaultSignalSmoothing
	}
	return *c.SignalSmoothing
}
