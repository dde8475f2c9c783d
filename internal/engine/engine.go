// Package engine is the playback core: it owns the session transport state,
// schedules per-stem playback instances against a hardware time base, runs
// the precount state machine, and mixes everything into 20ms PCM frames.
//
// Concurrency model: one goroutine (Run) renders frames and advances the
// hardware clock; control operations from HTTP handlers or jam messages
// mutate state under a single mutex between frames, so every mutation is
// atomic with respect to one frame step.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/stemjam/stemjam/internal/audio"
	"github.com/stemjam/stemjam/internal/clock"
	"github.com/stemjam/stemjam/internal/grid"
	"github.com/stemjam/stemjam/internal/stem"
	"github.com/stemjam/stemjam/internal/stretch"
)

// Config holds engine behaviour knobs.
type Config struct {
	PrecountBeats int  // count-in length; 0 disables the precount
	Metronome     bool // steady click while playing
}

// LyricEvent is a lyric line at a point in song time.
type LyricEvent struct {
	Time float64 `json:"time"`
	Text string  `json:"text"`
}

// Metadata describes a loaded track.
type Metadata struct {
	Title       string            `json:"title"`
	BPM         float64           `json:"bpm"`
	Key         string            `json:"key"`
	BeatOffset  float64           `json:"beat_offset"`
	BeatsPerBar int               `json:"beats_per_bar"`
	BeatMap     []float64         `json:"beat_map,omitempty"`
	Chords      []grid.ChordEvent `json:"chords,omitempty"`
	Lyrics      []LyricEvent      `json:"lyrics,omitempty"`
}

type pcState int

const (
	pcIdle pcState = iota
	pcCounting
)

// Engine is the playback core. Create with New, drive with Run.
type Engine struct {
	mu   sync.Mutex
	reg  *stem.Registry
	clk  *clock.Clock
	proc stretch.Processor
	cfg  Config

	meta       Metadata
	tempoRatio float64
	currentBPM float64
	semitones  float64
	targets    stretch.Targets
	grid       *grid.Grid
	duration   time.Duration
	playing    bool
	metronome  bool

	hw        time.Duration // hardware clock: one frame per step
	instances map[string]*instance
	clicks    []*instance
	rendered  map[string]*audio.Buffer
	renderGen int

	state       pcState
	pcStemStart time.Duration
	pcBeats     int
	lastBeat    int

	frameCh chan []int16
	notify  func(Event)
	pending []Event
}

// New creates an engine around a stem registry and a stretch processor.
func New(reg *stem.Registry, proc stretch.Processor, cfg Config) *Engine {
	return &Engine{
		reg:        reg,
		clk:        clock.New(),
		proc:       proc,
		cfg:        cfg,
		tempoRatio: 1,
		targets:    stretch.Resolve(1, 0),
		grid:       grid.New(0, 4, 0, 0),
		metronome:  cfg.Metronome,
		instances:  make(map[string]*instance),
		rendered:   make(map[string]*audio.Buffer),
		lastBeat:   -1,
		frameCh:    make(chan []int16, 100),
	}
}

// Frames returns the mixed output: one 20ms interleaved stereo frame per
// hardware tick, silence included. Frames are dropped, not queued, when no
// consumer keeps up; the hardware clock must never stall on a listener.
func (e *Engine) Frames() <-chan []int16 { return e.frameCh }

// SetNotifier installs the callback that observes transport events. The jam
// host uses this to broadcast; passing nil silences events (guest mode never
// re-broadcasts applied commands).
func (e *Engine) SetNotifier(fn func(Event)) {
	e.mu.Lock()
	e.notify = fn
	e.mu.Unlock()
}

// Run renders frames at the hardware rate until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := e.step()
			select {
			case e.frameCh <- frame:
			default:
				// consumer too slow; dropping keeps the clock honest
			}
		}
	}
}

// step renders one hardware frame and advances all time-dependent state.
// Exposed within the package so tests drive the engine tick by tick.
func (e *Engine) step() []int16 {
	e.mu.Lock()

	frameStart := e.hw
	e.hw += audio.FrameDuration

	if e.state == pcCounting && e.hw >= e.pcStemStart {
		e.finishPrecountLocked()
	}

	var ended bool
	if e.playing {
		_, ended = e.clk.Tick(e.hw)
		e.tickMetronomeLocked(frameStart)
	}

	frame := e.mixFrameLocked(frameStart)

	if ended {
		e.stopLocked()
		e.queueEvent(Event{Type: EventStop})
	}

	events := e.takePending()
	e.mu.Unlock()

	e.fire(events)
	return frame
}

// Now returns the engine's hardware clock reading.
func (e *Engine) Now() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hw
}

// LoadStems decodes the given stem sources (name -> file path) and installs
// them with the track metadata. A stem that fails to decode is logged and
// skipped; the rest of the set still plays in sync.
func (e *Engine) LoadStems(ctx context.Context, sources map[string]string, meta Metadata) error {
	buffers := make(map[string]*audio.Buffer, len(sources))
	for name, path := range sources {
		buf, err := audio.DecodeFile(ctx, path)
		if err != nil {
			log.Printf("stem %q: decode failed, skipping: %v", name, err)
			continue
		}
		buffers[name] = buf
	}
	e.LoadBuffers(buffers, meta)
	return nil
}

// LoadBuffers installs already-decoded stems with the track metadata,
// replacing any previous track. Playback stops and the position resets.
func (e *Engine) LoadBuffers(buffers map[string]*audio.Buffer, meta Metadata) {
	e.mu.Lock()

	e.stopAllLocked(false)
	e.playing = false
	e.state = pcIdle
	e.reg.Clear()
	e.rendered = make(map[string]*audio.Buffer)

	var duration time.Duration
	for name, buf := range buffers {
		e.reg.Add(name, buf)
		e.rendered[name] = buf
		if d := buf.Duration(); d > duration {
			duration = d
		}
	}

	e.meta = meta
	e.duration = duration
	e.tempoRatio = 1
	e.currentBPM = meta.BPM
	e.semitones = 0
	e.targets = stretch.Resolve(1, 0)
	e.lastBeat = -1
	e.rebuildGridLocked()

	e.clk.SetDuration(duration)
	e.clk.SetRatio(1)
	e.clk.SetPlaying(false)
	e.clk.ResetAnchor(e.hw, 0)

	e.queueEvent(Event{Type: EventLoad, Title: meta.Title, BPM: meta.BPM, Key: meta.Key})
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)

	log.Printf("track loaded: %q (%d stems, %.1fs, bpm %.1f)",
		meta.Title, len(buffers), duration.Seconds(), meta.BPM)
}

func (e *Engine) rebuildGridLocked() {
	g := grid.New(e.meta.BPM, e.meta.BeatsPerBar, e.meta.BeatOffset, e.duration.Seconds())
	if len(e.meta.BeatMap) > 0 {
		g = g.WithBeatMap(e.meta.BeatMap)
	}
	if len(e.meta.Chords) > 0 {
		g = g.WithChords(e.meta.Chords)
	}
	e.grid = g
}

// Metadata returns the loaded track's metadata.
func (e *Engine) Metadata() Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// Grid returns the current beat grid (never nil).
func (e *Engine) Grid() *grid.Grid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid
}

func (e *Engine) queueEvent(ev Event) {
	ev.Position = e.clk.Position().Seconds()
	e.pending = append(e.pending, ev)
}

func (e *Engine) takePending() []Event {
	events := e.pending
	e.pending = nil
	return events
}

func (e *Engine) fire(events []Event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	notify := e.notify
	e.mu.Unlock()
	if notify == nil {
		return
	}
	for _, ev := range events {
		notify(ev)
	}
}
