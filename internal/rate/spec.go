package rate

import (
	"fmt"
	"time"
)

// RampSpec describes a linear increase from StartRPS to TargetRPS over
// Duration.
type RampSpec struct {
	StartRPS  float64       `json:"startRps" yaml:"startRps"`
	TargetRPS float64       `json:"targetRps" yaml:"targetRps"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Validate checks the ramp parameters.
func (r RampSpec) Validate() error {
	if r.StartRPS <= 0 {
		return fmt.Errorf("ramp-up start rate must be positive, got %v", r.StartRPS)
	}
	if r.TargetRPS <= 0 {
		return fmt.Errorf("ramp-up target rate must be positive, got %v", r.TargetRPS)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("ramp-up duration must be positive, got %v", r.Duration)
	}
	return nil
}

// Slope returns the rate change per second.
func (r RampSpec) Slope() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return (r.TargetRPS - r.StartRPS) / r.Duration.Seconds()
}

// RateAt returns the target rate at elapsed time t, clamped to TargetRPS
// once the ramp is over.
func (r RampSpec) RateAt(t time.Duration) float64 {
	switch {
	case t <= 0:
		return r.StartRPS
	case t >= r.Duration:
		return r.TargetRPS
	default:
		return r.StartRPS + r.Slope()*t.Seconds()
	}
}

// DelayAt returns the inter-item delay at elapsed time t.
func (r RampSpec) DelayAt(t time.Duration) time.Duration {
	rate := r.RateAt(t)
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rate)
}

// ThrottleSpec caps the stream at RPS items per Window.
type ThrottleSpec struct {
	RPS    int           `json:"rps" yaml:"rps"`
	Window time.Duration `json:"window" yaml:"window"`
}

// Validate checks the throttle parameters.
func (t ThrottleSpec) Validate() error {
	if t.RPS <= 0 {
		return fmt.Errorf("throttle rate must be positive, got %d", t.RPS)
	}
	if t.Window <= 0 {
		return fmt.Errorf("throttle window must be positive, got %v", t.Window)
	}
	return nil
}

// Interval is the tick period releasing one item.
func (t ThrottleSpec) Interval() time.Duration {
	return t.Window / time.Duration(t.RPS)
}
