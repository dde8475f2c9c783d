package audio

import "math"

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3. Used for declick ramps on instance start/stop.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// PanGains converts a pan position in [-1,1] into per-channel gain factors
// using an equal-power law: center keeps both channels at ~0.707 so hard
// pans do not sound louder than center.
func PanGains(pan float64) (left, right float64) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	angle := (pan + 1) * math.Pi / 4
	return math.Cos(angle), math.Sin(angle)
}

// Clip folds a float sample into the int16 range.
func Clip(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// DeclickRamp is the number of per-channel frames over which instances fade
// in and out. ~5ms: long enough to kill the step transient, short enough to
// stay inaudible as an envelope.
const DeclickRamp = SampleRate / 200
