package stretch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/stemjam/stemjam/internal/audio"
)

// Rubberband shells out to the rubberband CLI for high-quality independent
// time-stretch and pitch-shift. The binary is the opaque capability; this
// type only moves PCM in and out of it.
type Rubberband struct {
	bin string
}

// NewRubberband probes for the rubberband binary. It returns an error when
// the binary is not on PATH so callers can degrade to NativeOnly.
func NewRubberband(bin string) (*Rubberband, error) {
	if bin == "" {
		bin = "rubberband"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("rubberband not available: %w", err)
	}
	return &Rubberband{bin: path}, nil
}

func (r *Rubberband) Name() string { return "rubberband" }

// Render stretches src by 1/ProcessorTempo and shifts pitch by
// ProcessorPitch through a temp-file round trip. Unity targets skip the
// process entirely.
func (r *Rubberband) Render(ctx context.Context, src *audio.Buffer, t Targets) (*audio.Buffer, error) {
	if t.ProcessorTempo == 1 && t.ProcessorPitch == 1 {
		return src, nil
	}

	dir, err := os.MkdirTemp("", "stemjam-stretch-")
	if err != nil {
		return nil, fmt.Errorf("stretch temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	if err := audio.WriteWAV(in, src); err != nil {
		return nil, err
	}

	// --time is an output duration ratio: tempo 0.8 makes the result
	// 1/0.8 times longer.
	args := []string{"--fine", "--formant"}
	if t.ProcessorTempo != 1 {
		args = append(args, "--time", fmt.Sprintf("%.6f", 1/t.ProcessorTempo))
	}
	if t.ProcessorPitch != 1 {
		args = append(args, "--frequency", fmt.Sprintf("%.6f", t.ProcessorPitch))
	}
	args = append(args, in, out)

	cmd := exec.CommandContext(ctx, r.bin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("rubberband: %w: %s", err, output)
	}

	return audio.DecodeFile(ctx, out)
}
