package stretch

import (
	"context"

	"github.com/stemjam/stemjam/internal/audio"
)

// Processor renders a stem buffer for a set of targets. Implementations are
// opaque: the engine only cares that the returned buffer plays at native
// rate 1.0 with the requested tempo stretch and pitch shift baked in.
type Processor interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Render produces a new buffer stretched by 1/ProcessorTempo and
	// pitch-shifted by ProcessorPitch. The input buffer is never modified.
	Render(ctx context.Context, src *audio.Buffer, t Targets) (*audio.Buffer, error)
}

// NativeOnly is the capability-degraded fallback used when no external
// processor is available: tempo is still honoured through the native
// playback rate, but pitch stays coupled to it.
type NativeOnly struct{}

func (NativeOnly) Name() string { return "native-only" }

func (NativeOnly) Render(_ context.Context, src *audio.Buffer, _ Targets) (*audio.Buffer, error) {
	return src, nil
}

// NativeRate converts targets into the rate the mixer should advance the
// rendered buffer at, given the processor in use. A NativeOnly processor
// cannot stretch, so slow-downs fall back to playing the untouched buffer at
// the tempo ratio directly.
func NativeRate(p Processor, t Targets) float64 {
	if _, degraded := p.(NativeOnly); degraded && !t.Acceleration {
		return t.ProcessorTempo
	}
	return t.PlaybackRate
}

// CursorScale maps logical song seconds onto rendered-buffer seconds. A
// buffer stretched to tempo 0.8 is 1/0.8 times longer than the source, so a
// logical position p lands at p/0.8 within it. NativeOnly buffers are the
// source itself.
func CursorScale(p Processor, t Targets) float64 {
	if _, degraded := p.(NativeOnly); degraded {
		return 1
	}
	if t.ProcessorTempo <= 0 {
		return 1
	}
	return 1 / t.ProcessorTempo
}
