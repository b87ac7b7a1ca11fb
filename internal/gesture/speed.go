package gesture

import "math"

// SpeedMode selects how progress along a path maps to time.
type SpeedMode string

const (
	EaseInOut SpeedMode = "ease_in_out"
	EaseIn    SpeedMode = "ease_in"
	EaseOut   SpeedMode = "ease_out"
	Linear    SpeedMode = "linear"
	Random    SpeedMode = "random"
)

// ParseSpeedMode reports whether s names a speed mode.
func ParseSpeedMode(s string) (SpeedMode, bool) {
	switch m := SpeedMode(s); m {
	case EaseInOut, EaseIn, EaseOut, Linear, Random:
		return m, true
	}
	return EaseInOut, false
}

// Trajectory selects the path shape of a drag.
type Trajectory string

const (
	Bezier       Trajectory = "bezier"
	LinearJitter Trajectory = "linear_jitter"
)

// ParseTrajectory reports whether s names a trajectory.
func ParseTrajectory(s string) (Trajectory, bool) {
	switch t := Trajectory(s); t {
	case Bezier, LinearJitter:
		return t, true
	}
	return Bezier, false
}

// ease maps normalized time t in [0,1] to normalized progress. Random is
// handled by the synthesizer and behaves like Linear here.
func ease(mode SpeedMode, t float64) float64 {
	switch mode {
	case EaseInOut:
		return (1 - math.Cos(math.Pi*t)) / 2
	case EaseIn:
		return t * t
	case EaseOut:
		return 1 - (1-t)*(1-t)
	}
	return t
}
