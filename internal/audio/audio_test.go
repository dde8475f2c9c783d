package audio

import (
	"math"
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Buffer ---

func TestBufferDuration(t *testing.T) {
	b := &Buffer{Samples: make([]int16, SampleRate*Channels)} // 1s of stereo
	if got := b.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	var nilBuf *Buffer
	if nilBuf.Frames() != 0 {
		t.Error("nil buffer should report zero frames")
	}
}

func TestBufferSampleOutOfRange(t *testing.T) {
	b := &Buffer{Samples: []int16{100, 200}}
	if l, r := b.Sample(-1); l != 0 || r != 0 {
		t.Errorf("Sample(-1) = (%d,%d), want silence", l, r)
	}
	if l, r := b.Sample(1); l != 0 || r != 0 {
		t.Errorf("Sample(1) past end = (%d,%d), want silence", l, r)
	}
}

func TestBufferSampleAtInterpolates(t *testing.T) {
	b := &Buffer{Samples: []int16{0, 0, 1000, 2000}}
	l, r := b.SampleAt(0.5)
	if l != 500 || r != 1000 {
		t.Errorf("SampleAt(0.5) = (%v,%v), want (500,1000)", l, r)
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := Smoothstep(tt.input)
		if got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic at %v: %v < %v", x, val, prev)
		}
		prev = val
	}
}

// --- PanGains ---

func TestPanGainsExtremes(t *testing.T) {
	l, r := PanGains(-1)
	if math.Abs(l-1) > 1e-9 || math.Abs(r) > 1e-9 {
		t.Errorf("PanGains(-1) = (%v,%v), want (1,0)", l, r)
	}
	l, r = PanGains(1)
	if math.Abs(l) > 1e-9 || math.Abs(r-1) > 1e-9 {
		t.Errorf("PanGains(1) = (%v,%v), want (0,1)", l, r)
	}
}

func TestPanGainsCenterEqualPower(t *testing.T) {
	l, r := PanGains(0)
	if math.Abs(l-r) > 1e-9 {
		t.Errorf("Center pan not balanced: l=%v r=%v", l, r)
	}
	if got := l*l + r*r; math.Abs(got-1) > 1e-9 {
		t.Errorf("Center pan power = %v, want 1", got)
	}
}

func TestPanGainsClampsInput(t *testing.T) {
	l1, r1 := PanGains(-5)
	l2, r2 := PanGains(-1)
	if l1 != l2 || r1 != r2 {
		t.Errorf("PanGains(-5) = (%v,%v), want same as PanGains(-1)", l1, r1)
	}
}

// --- Clip ---

func TestClip(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{40000, 32767},
		{-40000, -32768},
		{123.7, 123},
	}
	for _, tt := range tests {
		if got := Clip(tt.in); got != tt.want {
			t.Errorf("Clip(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	recovered := BytesToSamples(SamplesToBytes(original))
	for i, v := range original {
		if recovered[i] != v {
			t.Errorf("Round-trip sample[%d]: got %d, want %d", i, recovered[i], v)
		}
	}
}

// --- Click ---

func TestClickDecaysToSilence(t *testing.T) {
	c := Click(false)
	if c.Frames() == 0 {
		t.Fatal("Click produced empty buffer")
	}
	start, _ := c.Sample(10)
	end, _ := c.Sample(c.Frames() - 1)
	if abs16(end) >= abs16(start) && start != 0 {
		t.Errorf("Click does not decay: start=%d end=%d", start, end)
	}
}

func TestClickAccentIsLouder(t *testing.T) {
	peak := func(b *Buffer) int16 {
		var p int16
		for _, s := range b.Samples {
			if abs16(s) > p {
				p = abs16(s)
			}
		}
		return p
	}
	if peak(Click(true)) <= peak(Click(false)) {
		t.Error("Accented click should peak louder than plain click")
	}
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}
