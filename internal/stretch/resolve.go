// Package stretch translates a desired (tempo ratio, pitch shift) pair into
// concrete playback parameters, and delegates the actual time-stretch /
// pitch-shift rendering to an external processor.
//
// The hybrid works like this: raising the native playback rate is essentially
// free but shifts pitch proportionally, while an independent processor can
// decouple pitch from tempo at a real processing cost and with bounded
// quality at extreme ratios. Speed-ups therefore use the native rate and let
// the processor correct only the pitch; slow-downs keep the native rate at
// 1.0 and hand the whole job to the processor.
package stretch

import "math"

const (
	// accelEpsilon separates "speeding up" from unity; ratios within
	// epsilon of 1.0 take the processor path.
	accelEpsilon = 1e-6

	// MinProcessorPitch and MaxProcessorPitch bound the pitch ratio the
	// external processor is asked for.
	MinProcessorPitch = 0.25
	MaxProcessorPitch = 4.0
)

// Targets are the concrete parameters applied to every live stem instance.
// They are derived state: recomputed whenever tempo ratio or pitch shift
// changes, never stored.
type Targets struct {
	Acceleration   bool    // tempo ratio above 1.0
	PlaybackRate   float64 // native sample playback rate
	ProcessorTempo float64 // time-stretch factor requested from the processor
	ProcessorPitch float64 // pitch ratio requested from the processor
	SyncRatio      float64 // speed of logical time relative to hardware time
}

// Resolve computes Targets for a tempo ratio and a pitch shift in semitones.
// It is a pure function; out-of-range values are clamped, never rejected.
func Resolve(tempoRatio, semitones float64) Targets {
	if tempoRatio <= 0 {
		tempoRatio = 1
	}
	pitchRatio := math.Pow(2, semitones/12)

	t := Targets{Acceleration: tempoRatio > 1+accelEpsilon}
	if t.Acceleration {
		// Native rate achieves the speed-up; the processor only undoes
		// the pitch side effect of the rate change.
		t.PlaybackRate = tempoRatio
		t.ProcessorTempo = 1.0
		t.ProcessorPitch = clampPitch(pitchRatio / tempoRatio)
		t.SyncRatio = t.PlaybackRate
	} else {
		t.PlaybackRate = 1.0
		t.ProcessorTempo = tempoRatio
		t.ProcessorPitch = clampPitch(pitchRatio)
		t.SyncRatio = t.ProcessorTempo
	}
	return t
}

// Unity reports whether the targets leave the audio path untouched.
func (t Targets) Unity() bool {
	return !t.Acceleration && t.ProcessorTempo == 1 && t.ProcessorPitch == 1
}

func clampPitch(r float64) float64 {
	if r < MinProcessorPitch {
		return MinProcessorPitch
	}
	if r > MaxProcessorPitch {
		return MaxProcessorPitch
	}
	return r
}
