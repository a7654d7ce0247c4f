package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the runtime tuning parameters. The schema matches
// the /api/params endpoint so the same JSON can be used for both startup
// configuration and runtime updates. All fields are optional; omitted fields
// keep their defaults.
type TuningConfig struct {
	// Tracker params
	TrackerKind    *string  `json:"tracker_kind,omitempty"` // "centroid" or "overlap"
	MaxDisappeared *int     `json:"max_disappeared,omitempty"`
	MaxDistance    *float64 `json:"max_distance,omitempty"`
	HistoryLength  *int     `json:"history_length,omitempty"`

	// Counting params
	LinePosition     *int         `json:"line_position,omitempty"`
	LineOrientation  *string      `json:"line_orientation,omitempty"` // "horizontal" or "vertical"
	MaxCapacity      *int         `json:"max_capacity,omitempty"`
	ConfidenceMin    *float64     `json:"confidence_min,omitempty"`
	HysteresisMargin *int         `json:"hysteresis_margin,omitempty"`
	Segment          *SegmentSpec `json:"segment,omitempty"` // oblique counting segment; omitted = axis-aligned line

	// Persistence params
	SaveInterval *string `json:"save_interval,omitempty"` // duration string like "60s"
}

// SegmentSpec selects the oblique-segment counter geometry: the directed
// segment from (X1,Y1) to (X2,Y2) in pixel coordinates.
type SegmentSpec struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size. Fields omitted from the
// JSON retain their default values, so partial configs are safe.
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
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values outside their operating ranges. A nil field is
// always valid (it means "keep the default").
func (c *TuningConfig) Validate() error {
	if c.TrackerKind != nil && *c.TrackerKind != "centroid" && *c.TrackerKind != "overlap" {
		return fmt.Errorf("tracker_kind must be \"centroid\" or \"overlap\", got %q", *c.TrackerKind)
	}
	if c.MaxDisappeared != nil && *c.MaxDisappeared < 1 {
		return fmt.Errorf("max_disappeared must be >= 1, got %d", *c.MaxDisappeared)
	}
	if c.MaxDistance != nil && *c.MaxDistance <= 0 {
		return fmt.Errorf("max_distance must be positive, got %v", *c.MaxDistance)
	}
	if c.HistoryLength != nil && *c.HistoryLength < 1 {
		return fmt.Errorf("history_length must be >= 1, got %d", *c.HistoryLength)
	}
	if c.LinePosition != nil && *c.LinePosition < 0 {
		return fmt.Errorf("line_position must be non-negative, got %d", *c.LinePosition)
	}
	if c.LineOrientation != nil && *c.LineOrientation != "horizontal" && *c.LineOrientation != "vertical" {
		return fmt.Errorf("line_orientation must be \"horizontal\" or \"vertical\", got %q", *c.LineOrientation)
	}
	if c.MaxCapacity != nil && *c.MaxCapacity <= 0 {
		return fmt.Errorf("max_capacity must be positive, got %d", *c.MaxCapacity)
	}
	if c.ConfidenceMin != nil && (*c.ConfidenceMin <= 0 || *c.ConfidenceMin >= 1) {
		return fmt.Errorf("confidence_min must be in (0, 1), got %v", *c.ConfidenceMin)
	}
	if c.HysteresisMargin != nil && *c.HysteresisMargin < 0 {
		return fmt.Errorf("hysteresis_margin must be non-negative, got %d", *c.HysteresisMargin)
	}
	if c.Segment != nil && c.Segment.X1 == c.Segment.X2 && c.Segment.Y1 == c.Segment.Y2 {
		return fmt.Errorf("segment endpoints must be distinct, got (%d,%d)", c.Segment.X1, c.Segment.Y1)
	}
	if c.SaveInterval != nil {
		if _, err := time.ParseDuration(*c.SaveInterval); err != nil {
			return fmt.Errorf("save_interval is not a valid duration: %w", err)
		}
	}
	return nil
}

// Merge overlays non-nil fields from other onto c. Used by the runtime
// params endpoint to apply partial updates.
func (c *TuningConfig) Merge(other *TuningConfig) {
	if other.TrackerKind != nil {
		c.TrackerKind = other.TrackerKind
	}
	if other.MaxDisappeared != nil {
		c.MaxDisappeared = other.MaxDisappeared
	}
	if other.MaxDistance != nil {
		c.MaxDistance = other.MaxDistance
	}
	if other.HistoryLength != nil {
		c.HistoryLength = other.HistoryLength
	}
	if other.LinePosition != nil {
		c.LinePosition = other.LinePosition
	}
	if other.LineOrientation != nil {
		c.LineOrientation = other.LineOrientation
	}
	if other.MaxCapacity != nil {
		c.MaxCapacity = other.MaxCapacity
	}
	if other.ConfidenceMin != nil {
		c.ConfidenceMin = other.ConfidenceMin
	}
	if other.HysteresisMargin != nil {
		c.HysteresisMargin = other.HysteresisMargin
	}
	if other.Segment != nil {
		c.Segment = other.Segment
	}
	if other.SaveInterval != nil {
		c.SaveInterval = other.SaveInterval
	}
}

// Accessors with coded defaults. These are the fallbacks when a field was
// omitted from the config file.

func (c *TuningConfig) GetTrackerKind() string {
	if c.TrackerKind != nil {
		return *c.TrackerKind
	}
	return "centroid"
}

func (c *TuningConfig) GetMaxDisappeared() int {
	if c.MaxDisappeared != nil {
		return *c.MaxDisappeared
	}
	return 60
}

func (c *TuningConfig) GetMaxDistance() float64 {
	if c.MaxDistance != nil {
		return *c.MaxDistance
	}
	return 150
}

func (c *TuningConfig) GetHistoryLength() int {
	if c.HistoryLength != nil {
		return *c.HistoryLength
	}
	return 10
}

func (c *TuningConfig) GetLinePosition() int {
	if c.LinePosition != nil {
		return *c.LinePosition
	}
	return 240
}

func (c *TuningConfig) GetLineOrientation() string {
	if c.LineOrientation != nil {
		return *c.LineOrientation
	}
	return "horizontal"
}

func (c *TuningConfig) GetMaxCapacity() int {
	if c.MaxCapacity != nil {
		return *c.MaxCapacity
	}
	return 10
}

func (c *TuningConfig) GetConfidenceMin() float64 {
	if c.ConfidenceMin != nil {
		return *c.ConfidenceMin
	}
	return 0.4
}

func (c *TuningConfig) GetHysteresisMargin() int {
	if c.HysteresisMargin != nil {
		return *c.HysteresisMargin
	}
	return 0
}

func (c *TuningConfig) GetSaveInterval() time.Duration {
	if c.SaveInterval != nil {
		if d, err := time.ParseDuration(*c.SaveInterval); err == nil {
			return d
		}
	}
	return 60 * time.Second
}
