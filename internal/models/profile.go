package models

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Profile holds the physics and sensor configuration shared by every vehicle
// in an episode. It is passed by value into an episode and never mutated
// while the episode runs; edits take effect on the next reset.
type Profile struct {
	Name          string    `json:"name"`
	MaxSpeed      float64   `json:"max_speed"`
	Acceleration  float64   `json:"acceleration"`
	BrakeForce    float64   `json:"brake_force"`
	RotationSpeed float64   `json:"rotation_speed"`
	DriftEnabled  bool      `json:"drift_enabled"`
	Grip          float64   `json:"grip"`
	RayCount      int       `json:"ray_count"`
	RayLength     float64   `json:"ray_length"`
	RaySpreadDeg  float64   `json:"ray_spread_angle"`
	RayAnglesDeg  []float64 `json:"ray_angles,omitempty"`
	MaxTicks      int       `json:"max_ticks"`
	StallTimeout  int       `json:"stall_timeout"`
}

// DefaultProfile returns the stock vehicle configuration.
func DefaultProfile() Profile {
	return Profile{
		Name:          "default",
		MaxSpeed:      10.0,
		Acceleration:  0.5,
		BrakeForce:    0.8,
		RotationSpeed: 4.0,
		DriftEnabled:  false,
		Grip:          0.7,
		RayCount:      5,
		RayLength:     200.0,
		RaySpreadDeg:  180.0,
		MaxTicks:      2000,
		StallTimeout:  200,
	}
}

// EffectiveRayCount is the number of sensor rays after resolving explicit
// angles against the count/spread pair.
func (p Profile) EffectiveRayCount() int {
	if len(p.RayAnglesDeg) > 0 {
		return len(p.RayAnglesDeg)
	}
	if p.RayCount < 1 {
		return 1
	}
	return p.RayCount
}

// RayAngles returns the ray angular offsets in radians, relative to the
// vehicle heading. A single-ray profile gets one forward ray at offset 0.
func (p Profile) RayAngles() []float64 {
	if len(p.RayAnglesDeg) > 0 {
		out := make([]float64, len(p.RayAnglesDeg))
		for i, deg := range p.RayAnglesDeg {
			out[i] = deg * math.Pi / 180.0
		}
		return out
	}
	count := p.EffectiveRayCount()
	if count == 1 {
		return []float64{0}
	}
	half := p.RaySpreadDeg * math.Pi / 360.0
	step := 2 * half / float64(count-1)
	out := make([]float64, count)
	for i := range out {
		out[i] = -half + float64(i)*step
	}
	return out
}

// NumInputs is the policy input vector length: one entry per ray, plus
// normalized speed, heading and acceleration state, plus the drift angle
// when drift is modeled.
func (p Profile) NumInputs() int {
	n := p.EffectiveRayCount() + 3
	if p.DriftEnabled {
		n++
	}
	return n
}

// TopologyCompatible reports whether a policy trained under p can resume
// under other. Ray count and drift flag determine the input vector length,
// so a mismatch is a hard error at validation time.
func (p Profile) TopologyCompatible(other Profile) bool {
	return p.EffectiveRayCount() == other.EffectiveRayCount() &&
		p.DriftEnabled == other.DriftEnabled
}

// CompatibilityWarnings lists profile changes that keep the input topology
// intact but are likely to degrade an already-trained policy.
func (p Profile) CompatibilityWarnings(other Profile) []string {
	var warnings []string
	if p.RayLength != other.RayLength {
		warnings = append(warnings, fmt.Sprintf("ray_length changed from %.1f to %.1f", p.RayLength, other.RayLength))
	}
	if p.RaySpreadDeg != other.RaySpreadDeg {
		warnings = append(warnings, fmt.Sprintf("ray_spread_angle changed from %.1f to %.1f", p.RaySpreadDeg, other.RaySpreadDeg))
	}
	if len(p.RayAnglesDeg) != len(other.RayAnglesDeg) {
		warnings = append(warnings, "explicit ray angles changed")
	} else {
		for i := range p.RayAnglesDeg {
			if p.RayAnglesDeg[i] != other.RayAnglesDeg[i] {
				warnings = append(warnings, "explicit ray angles changed")
				break
			}
		}
	}
	return warnings
}

// Validate checks the profile for values the physics step cannot work with.
func (p Profile) Validate() error {
	if p.MaxSpeed <= 0 {
		return fmt.Errorf("profile %q: max_speed must be positive", p.Name)
	}
	if p.Acceleration <= 0 {
		return fmt.Errorf("profile %q: acceleration must be positive", p.Name)
	}
	if p.RayLength <= 0 {
		return fmt.Errorf("profile %q: ray_length must be positive", p.Name)
	}
	if p.MaxTicks < 1 {
		return fmt.Errorf("profile %q: max_ticks must be at least 1", p.Name)
	}
	if p.StallTimeout < 1 {
		return fmt.Errorf("profile %q: stall_timeout must be at least 1", p.Name)
	}
	return nil
}

// LoadProfile reads a profile JSON document from disk. Missing fields keep
// their defaults.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	p := DefaultProfile()
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SaveProfile writes the profile JSON document to disk.
func SaveProfile(path string, p Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}
