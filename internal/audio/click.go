package audio

import "math"

// Click synthesizes a short metronome tick: an exponentially decaying sine
// burst. Accented clicks (downbeats) are pitched a fifth up and slightly
// louder.
func Click(accent bool) *Buffer {
	freq := 880.0
	amp := 0.5
	if accent {
		freq = 1320.0
		amp = 0.7
	}

	frames := SampleRate / 20 // 50ms
	samples := make([]int16, frames*Channels)
	for i := 0; i < frames; i++ {
		t := float64(i) / SampleRate
		env := math.Exp(-t * 60)
		v := Clip(amp * env * math.Sin(2*math.Pi*freq*t) * 32767)
		samples[i*Channels] = v
		samples[i*Channels+1] = v
	}
	return &Buffer{Samples: samples}
}
