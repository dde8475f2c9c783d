package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/stemjam/stemjam/internal/audio"
)

// HTTPHandler serves the monitor mix as a chunked MP3 stream. Each
// connection runs its own ffmpeg process encoding PCM to MP3 in real time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	bitrate     int // kbit/s
	name        string
}

// NewHTTPHandler creates an MP3 monitor stream handler.
func NewHTTPHandler(b *Broadcaster, bitrateKbps int, name string) *HTTPHandler {
	if bitrateKbps <= 0 {
		bitrateKbps = 192
	}
	if name == "" {
		name = "stemjam monitor"
	}
	return &HTTPHandler{broadcaster: b, bitrate: bitrateKbps, name: name}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", h.name)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(h.bitrate)+"k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("mp3 stream: stdin pipe: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("mp3 stream: stdout pipe: %v", err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("mp3 stream: ffmpeg start: %v", err)
		return
	}

	listener := h.broadcaster.Subscribe("mp3:" + r.RemoteAddr)
	defer h.broadcaster.Unsubscribe(listener)

	log.Printf("mp3 listener connected from %s (total: %d)", r.RemoteAddr, h.broadcaster.ListenerCount())
	defer log.Printf("mp3 listener from %s disconnected", r.RemoteAddr)

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("mp3 stream: ffmpeg read: %v", err)
			}
			break
		}
	}

	cmd.Wait()
}
