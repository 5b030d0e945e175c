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

// BodySegment names a human body part by the indices of its two endpoint
// measurements and the thickness bound around the connecting line.
type BodySegment struct {
	A      int     `json:"a"`
	B      int     `json:"b"`
	Radius float64 `json:"radius"`
}

// TuningConfig represents the root configuration for shield tuning
// parameters. The schema matches the /api/status payload so the same JSON
// can be inspected at runtime. Fields omitted from the JSON file retain
// their defaults, so partial configs are safe.
type TuningConfig struct {
	// Shield params
	ActivateShield *bool    `json:"activate_shield,omitempty"`
	NbJoints       *int     `json:"nb_joints,omitempty"`
	SampleTime     *string  `json:"sample_time,omitempty"` // duration string like "4ms"
	TBuff          *float64 `json:"t_buff,omitempty"`
	MaxSStop       *float64 `json:"max_s_stop,omitempty"`

	// Per-joint motion limits. A single-element slice applies to all
	// joints; nil falls back to the built-in defaults.
	VMaxAllowed []float64 `json:"v_max_allowed,omitempty"`
	AMaxAllowed []float64 `json:"a_max_allowed,omitempty"`
	JMaxAllowed []float64 `json:"j_max_allowed,omitempty"`
	AMaxLTT     []float64 `json:"a_max_ltt,omitempty"`
	JMaxLTT     []float64 `json:"j_max_ltt,omitempty"`

	// Robot geometry params
	BaseX       *float64  `json:"base_x,omitempty"`
	BaseY       *float64  `json:"base_y,omitempty"`
	BaseZ       *float64  `json:"base_z,omitempty"`
	LinkLengths []float64 `json:"link_lengths,omitempty"`
	LinkRadii   []float64 `json:"link_radii,omitempty"`

	// Human model params
	HumanVMax        *float64      `json:"human_v_max,omitempty"`
	MeasurementDelay *string       `json:"measurement_delay,omitempty"` // duration string like "20ms"
	BodySegments     []BodySegment `json:"body_segments,omitempty"`

	// Verification params
	VerifyMode   *string  `json:"verify_mode,omitempty"` // "distance" or "ssm"
	MinDist      *float64 `json:"min_dist,omitempty"`
	ReactionTime *float64 `json:"reaction_time,omitempty"`
	BrakeTime    *float64 `json:"brake_time,omitempty"`

	// Trajectory generator params
	TrajectorySampleTime *string `json:"trajectory_sample_time,omitempty"` // duration string
	WindowK              *int    `json:"window_k,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its default value. Intended for writing a starter config file and
// for test setup.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ActivateShield:       ptrBool(true),
		NbJoints:             ptrInt(6),
		SampleTime:           ptrString("4ms"),
		TBuff:                ptrFloat64(0.02),
		MaxSStop:             ptrFloat64(0.6),
		VMaxAllowed:          []float64{1.5},
		AMaxAllowed:          []float64{10.0},
		JMaxAllowed:          []float64{400.0},
		AMaxLTT:              []float64{2.0},
		JMaxLTT:              []float64{15.0},
		BaseX:                ptrFloat64(0),
		BaseY:                ptrFloat64(0),
		BaseZ:                ptrFloat64(0),
		LinkLengths:          []float64{0.33, 0.33, 0.21, 0.21, 0.19, 0.12},
		LinkRadii:            []float64{0.09, 0.09, 0.07, 0.07, 0.05, 0.05},
		HumanVMax:            ptrFloat64(2.0),
		MeasurementDelay:     ptrString("20ms"),
		VerifyMode:           ptrString("distance"),
		MinDist:              ptrFloat64(0.05),
		ReactionTime:         ptrFloat64(0.1),
		BrakeTime:            ptrFloat64(0.3),
		TrajectorySampleTime: ptrString("4ms"),
		WindowK:              ptrInt(25),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.NbJoints != nil && *c.NbJoints <= 0 {
		return fmt.Errorf("nb_joints must be positive, got %d", *c.NbJoints)
	}

	// Validate SampleTime can be parsed if set
	if c.SampleTime != nil && *c.SampleTime != "" {
		d, err := time.ParseDuration(*c.SampleTime)
		if err != nil {
			return fmt.Errorf("invalid sample_time '%s': %w", *c.SampleTime, err)
		}
		if d <= 0 {
			return fmt.Errorf("sample_time must be positive, got %s", d)
		}
	}

	// Validate MeasurementDelay can be parsed if set
	if c.MeasurementDelay != nil && *c.MeasurementDelay != "" {
		if _, err := time.ParseDuration(*c.MeasurementDelay); err != nil {
			return fmt.Errorf("invalid measurement_delay '%s': %w", *c.MeasurementDelay, err)
		}
	}

	// Validate TrajectorySampleTime can be parsed if set
	if c.TrajectorySampleTime != nil && *c.TrajectorySampleTime != "" {
		if _, err := time.ParseDuration(*c.TrajectorySampleTime); err != nil {
			return fmt.Errorf("invalid trajectory_sample_time '%s': %w", *c.TrajectorySampleTime, err)
		}
	}

	if c.MaxSStop != nil && *c.MaxSStop <= 0 {
		return fmt.Errorf("max_s_stop must be positive, got %f", *c.MaxSStop)
	}
	if c.TBuff != nil && *c.TBuff < 0 {
		return fmt.Errorf("t_buff must be non-negative, got %f", *c.TBuff)
	}
	if c.MinDist != nil && *c.MinDist < 0 {
		return fmt.Errorf("min_dist must be non-negative, got %f", *c.MinDist)
	}
	if c.HumanVMax != nil && *c.HumanVMax < 0 {
		return fmt.Errorf("human_v_max must be non-negative, got %f", *c.HumanVMax)
	}

	if c.VerifyMode != nil {
		switch *c.VerifyMode {
		case "", "distance", "ssm":
		default:
			return fmt.Errorf("verify_mode must be 'distance' or 'ssm', got %q", *c.VerifyMode)
		}
	}

	for _, lim := range [][]float64{c.VMaxAllowed, c.AMaxAllowed, c.JMaxAllowed, c.AMaxLTT, c.JMaxLTT} {
		for _, v := range lim {
			if v <= 0 {
				return fmt.Errorf("motion limits must be positive, got %f", v)
			}
		}
	}

	if len(c.LinkLengths) != len(c.LinkRadii) {
		return fmt.Errorf("link_lengths and link_radii must match, got %d/%d",
			len(c.LinkLengths), len(c.LinkRadii))
	}
	if c.NbJoints != nil && len(c.LinkLengths) > 0 && len(c.LinkLengths) != *c.NbJoints {
		return fmt.Errorf("link_lengths has %d entries, nb_joints is %d",
			len(c.LinkLengths), *c.NbJoints)
	}

	for i, seg := range c.BodySegments {
		if seg.A < 0 || seg.B < 0 || seg.Radius <= 0 {
			return fmt.Errorf("body_segments[%d] is invalid: %+v", i, seg)
		}
	}

	return nil
}

// GetActivateShield returns the activate_shield value or the default.
func (c *TuningConfig) GetActivateShield() bool {
	if c.ActivateShield == nil {
		return true // default: the shield verifies
	}
	return *c.ActivateShield
}

// GetNbJoints returns the nb_joints value or the default.
func (c *TuningConfig) GetNbJoints() int {
	if c.NbJoints == nil {
		if len(c.LinkLengths) > 0 {
			return len(c.LinkLengths)
		}
		return 6 // default
	}
	return *c.NbJoints
}

// GetSampleTime parses and returns the SampleTime as a time.Duration.
func (c *TuningConfig) GetSampleTime() time.Duration {
	if c.SampleTime == nil || *c.SampleTime == "" {
		return 4 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.SampleTime)
	if err != nil {
		return 4 * time.Millisecond // default on parse error
	}
	return d
}

// GetTBuff returns the t_buff value or the default.
func (c *TuningConfig) GetTBuff() float64 {
	if c.TBuff == nil {
		return 0.02 // default
	}
	return *c.TBuff
}

// GetMaxSStop returns the max_s_stop value or the default.
func (c *TuningConfig) GetMaxSStop() float64 {
	if c.MaxSStop == nil {
		return 0.6 // default
	}
	return *c.MaxSStop
}

// perJoint expands a configured limit slice to one entry per joint.
// A single-element slice broadcasts to all joints.
func (c *TuningConfig) perJoint(lim []float64, def float64) []float64 {
	nb := c.GetNbJoints()
	out := make([]float64, nb)
	for i := range out {
		switch {
		case len(lim) == 0:
			out[i] = def
		case len(lim) == 1:
			out[i] = lim[0]
		case i < len(lim):
			out[i] = lim[i]
		default:
			out[i] = lim[len(lim)-1]
		}
	}
	return out
}

// GetVMaxAllowed returns the per-joint velocity limit.
func (c *TuningConfig) GetVMaxAllowed() []float64 { return c.perJoint(c.VMaxAllowed, 1.5) }

// GetAMaxAllowed returns the per-joint hard acceleration limit.
func (c *TuningConfig) GetAMaxAllowed() []float64 { return c.perJoint(c.AMaxAllowed, 10.0) }

// GetJMaxAllowed returns the per-joint hard jerk limit.
func (c *TuningConfig) GetJMaxAllowed() []float64 { return c.perJoint(c.JMaxAllowed, 400.0) }

// GetAMaxLTT returns the per-joint trajectory segment acceleration limit.
func (c *TuningConfig) GetAMaxLTT() []float64 { return c.perJoint(c.AMaxLTT, 2.0) }

// GetJMaxLTT returns the per-joint trajectory segment jerk limit.
func (c *TuningConfig) GetJMaxLTT() []float64 { return c.perJoint(c.JMaxLTT, 15.0) }

// GetBase returns the robot base position components.
func (c *TuningConfig) GetBase() (x, y, z float64) {
	if c.BaseX != nil {
		x = *c.BaseX
	}
	if c.BaseY != nil {
		y = *c.BaseY
	}
	if c.BaseZ != nil {
		z = *c.BaseZ
	}
	return x, y, z
}

// GetLinkLengths returns the link lengths or a uniform default chain.
func (c *TuningConfig) GetLinkLengths() []float64 {
	if len(c.LinkLengths) > 0 {
		return append([]float64(nil), c.LinkLengths...)
	}
	out := make([]float64, c.GetNbJoints())
	for i := range out {
		out[i] = 0.25 // default link length, metres
	}
	return out
}

// GetLinkRadii returns the link radii or a uniform default.
func (c *TuningConfig) GetLinkRadii() []float64 {
	if len(c.LinkRadii) > 0 {
		return append([]float64(nil), c.LinkRadii...)
	}
	out := make([]float64, c.GetNbJoints())
	for i := range out {
		out[i] = 0.07 // default link radius, metres
	}
	return out
}

// GetHumanVMax returns the human_v_max value or the default.
func (c *TuningConfig) GetHumanVMax() float64 {
	if c.HumanVMax == nil {
		return 2.0 // default, m/s
	}
	return *c.HumanVMax
}

// GetMeasurementDelay parses and returns the MeasurementDelay as a
// time.Duration.
func (c *TuningConfig) GetMeasurementDelay() time.Duration {
	if c.MeasurementDelay == nil || *c.MeasurementDelay == "" {
		return 20 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.MeasurementDelay)
	if err != nil {
		return 20 * time.Millisecond // default on parse error
	}
	return d
}

// GetBodySegments returns the configured body segments or a default
// single-segment torso model over the first two measured points.
func (c *TuningConfig) GetBodySegments() []BodySegment {
	if len(c.BodySegments) > 0 {
		return append([]BodySegment(nil), c.BodySegments...)
	}
	return []BodySegment{{A: 0, B: 1, Radius: 0.3}}
}

// GetVerifyMode returns the verify_mode value or the default.
func (c *TuningConfig) GetVerifyMode() string {
	if c.VerifyMode == nil || *c.VerifyMode == "" {
		return "distance" // default
	}
	return *c.VerifyMode
}

// GetMinDist returns the min_dist value or the default.
func (c *TuningConfig) GetMinDist() float64 {
	if c.MinDist == nil {
		return 0.05 // default, metres
	}
	return *c.MinDist
}

// GetReactionTime returns the reaction_time value or the default.
func (c *TuningConfig) GetReactionTime() float64 {
	if c.ReactionTime == nil {
		return 0.1 // default, seconds
	}
	return *c.ReactionTime
}

// GetBrakeTime returns the brake_time value or the default.
func (c *TuningConfig) GetBrakeTime() float64 {
	if c.BrakeTime == nil {
		return 0.3 // default, seconds
	}
	return *c.BrakeTime
}

// GetTrajectorySampleTime parses and returns the TrajectorySampleTime as a
// time.Duration.
func (c *TuningConfig) GetTrajectorySampleTime() time.Duration {
	if c.TrajectorySampleTime == nil || *c.TrajectorySampleTime == "" {
		return 4 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.TrajectorySampleTime)
	if err != nil {
		return 4 * time.Millisecond // default on parse error
	}
	return d
}

// GetWindowK returns the window_k value or the default.
func (c *TuningConfig) GetWindowK() int {
	if c.WindowK == nil {
		return 25 // default, samples
	}
	return *c.WindowK
}
