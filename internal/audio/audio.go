package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer holds one decoded stem: interleaved stereo int16 PCM at 48kHz.
// Buffers are immutable after decode; playback reads through them but never
// writes.
type Buffer struct {
	Samples []int16
}

// Frames returns the number of per-channel sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.Samples) / Channels
}

// Duration returns the buffer length as wall time at the native sample rate.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / SampleRate
}

// Sample returns the left/right pair at per-channel frame index i, or
// silence when i is out of range.
func (b *Buffer) Sample(i int) (l, r int16) {
	if b == nil || i < 0 || i >= b.Frames() {
		return 0, 0
	}
	return b.Samples[i*Channels], b.Samples[i*Channels+1]
}

// SampleAt reads the buffer at a fractional per-channel position using
// linear interpolation between neighbouring frames. Positions outside the
// buffer are silent.
func (b *Buffer) SampleAt(pos float64) (l, r float64) {
	if b == nil || pos < 0 {
		return 0, 0
	}
	i := int(pos)
	frac := pos - float64(i)
	l0, r0 := b.Sample(i)
	l1, r1 := b.Sample(i + 1)
	l = float64(l0) + (float64(l1)-float64(l0))*frac
	r = float64(r0) + (float64(r1)-float64(r0))*frac
	return l, r
}
