// Package output plays the monitor mix on the local audio device via oto.
package output

import (
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/stemjam/stemjam/internal/audio"
	"github.com/stemjam/stemjam/internal/stream"
)

// underrunWait is how long a device read waits for the next frame before
// padding with silence. The engine emits a frame every 20ms, so anything
// beyond two frame times means the producer has stalled.
const underrunWait = 50 * time.Millisecond

// Device is the local playback endpoint: it subscribes to the broadcaster
// and feeds the hardware from the pull side.
type Device struct {
	ctx      *oto.Context
	player   *oto.Player
	b        *stream.Broadcaster
	listener *stream.Listener
}

// Open initializes the audio device and starts playing the monitor mix.
func Open(b *stream.Broadcaster) (*Device, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   audio.SampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, err
	}
	<-ready

	listener := b.Subscribe("local-output")
	player := ctx.NewPlayer(newFrameReader(listener))
	player.Play()

	return &Device{ctx: ctx, player: player, b: b, listener: listener}, nil
}

// Close stops playback and releases the device.
func (d *Device) Close() error {
	d.b.Unsubscribe(d.listener)
	return d.player.Close()
}

// frameReader adapts a frame listener to the byte-oriented io.Reader oto
// pulls from. A stalled producer yields silence, never a blocked device.
type frameReader struct {
	listener *stream.Listener
	wait     time.Duration
	rem      []byte
}

func newFrameReader(l *stream.Listener) *frameReader {
	return &frameReader{listener: l, wait: underrunWait}
}

func (r *frameReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.rem) == 0 {
			select {
			case frame, ok := <-r.listener.C:
				if !ok {
					return r.pad(p, n), io.EOF
				}
				r.rem = audio.SamplesToBytes(frame)
			case <-r.listener.Done():
				return r.pad(p, n), io.EOF
			case <-time.After(r.wait):
				return r.pad(p, n), nil
			}
			continue
		}
		c := copy(p[n:], r.rem)
		r.rem = r.rem[c:]
		n += c
	}
	return n, nil
}

// pad fills the rest of p with silence.
func (r *frameReader) pad(p []byte, n int) int {
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p)
}
