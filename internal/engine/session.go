package engine

import (
	"context"
	"log"
	"time"

	"github.com/stemjam/stemjam/internal/audio"
	"github.com/stemjam/stemjam/internal/stretch"
)

const (
	minBPM = 50.0
	maxBPM = 300.0
)

// Play starts playback. With a precount configured and a known BPM the
// stems are pre-scheduled behind a count-in; otherwise they start now.
// Returns immediately in either case.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.playing || e.state == pcCounting || e.duration <= 0 {
		e.mu.Unlock()
		return
	}
	if e.cfg.PrecountBeats > 0 && e.meta.BPM > 0 {
		e.beginPrecountLocked(e.cfg.PrecountBeats)
	} else {
		e.startPlaybackLocked()
	}
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)
}

// PlayWithPrecount starts playback behind an explicit count-in length,
// regardless of the configured default. Used by guests replaying a host's
// play command.
func (e *Engine) PlayWithPrecount(beats int) {
	e.mu.Lock()
	if e.playing || e.state == pcCounting || e.duration <= 0 {
		e.mu.Unlock()
		return
	}
	if beats > 0 && e.meta.BPM > 0 {
		e.beginPrecountLocked(beats)
	} else {
		e.startPlaybackLocked()
	}
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)
}

// Pause halts playback keeping the position. Pausing during a count-in
// cancels it before a single stem sample has sounded.
func (e *Engine) Pause() {
	e.mu.Lock()
	switch {
	case e.state == pcCounting:
		e.cancelPrecountLocked()
	case e.playing:
		e.clk.Tick(e.hw)
		e.stopAllLocked(true)
		e.playing = false
		e.clk.SetPlaying(false)
		e.clk.ResetAnchor(e.hw, e.clk.Position())
	default:
		e.mu.Unlock()
		return
	}
	e.queueEvent(Event{Type: EventPause})
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)
}

// Stop halts playback and rewinds to the start.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopLocked()
	e.queueEvent(Event{Type: EventStop})
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)
}

func (e *Engine) stopLocked() {
	if e.state == pcCounting {
		e.cancelPrecountLocked()
	}
	e.stopAllLocked(true)
	e.playing = false
	e.clk.SetPlaying(false)
	e.clk.ResetAnchor(e.hw, 0)
	e.lastBeat = -1
}

// Seek jumps to the given position (seconds, clamped to the track). Live
// instances restart from the new offset; the anchor reset is the last step
// so no tick computes against a stale anchor.
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	pos := time.Duration(seconds * float64(time.Second))
	if pos < 0 {
		pos = 0
	}
	if pos > e.duration {
		pos = e.duration
	}
	switch {
	case e.playing:
		e.stopAllLocked(true)
		e.startAllLocked(e.hw, pos)
	case e.state == pcCounting:
		// Pre-scheduled instances haven't sounded yet; move their cursors
		// so the count-in still lands on the new position.
		scale := stretch.CursorScale(e.proc, e.targets)
		cursor := pos.Seconds() * scale * audio.SampleRate
		for _, inst := range e.instances {
			inst.cursor = cursor
		}
	}
	e.lastBeat = -1
	e.clk.ResetAnchor(e.hw, pos)
	e.queueEvent(Event{Type: EventSeek})
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)
}

// SetTempo sets the tempo ratio (currentBPM / originalBPM). The resulting
// BPM is clamped to [50,300] when the original BPM is known; the ratio
// itself is clamped to the processor's range otherwise. Idempotent.
func (e *Engine) SetTempo(ratio float64) {
	e.mu.Lock()
	if e.meta.BPM > 0 {
		bpm := e.meta.BPM * ratio
		if bpm < minBPM {
			bpm = minBPM
		} else if bpm > maxBPM {
			bpm = maxBPM
		}
		e.currentBPM = bpm
		ratio = bpm / e.meta.BPM
	} else {
		if ratio < stretch.MinProcessorPitch {
			ratio = stretch.MinProcessorPitch
		} else if ratio > stretch.MaxProcessorPitch {
			ratio = stretch.MaxProcessorPitch
		}
	}
	if ratio == e.tempoRatio {
		e.mu.Unlock()
		return
	}
	e.tempoRatio = ratio
	e.applyTargetsLocked()
	e.queueEvent(Event{
		Type:        EventTempo,
		BPM:         e.currentBPM,
		OriginalBPM: e.meta.BPM,
		SyncRatio:   e.targets.SyncRatio,
	})
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)
}

// SetPitch sets the pitch shift in semitones, clamped to [-12,12].
// Idempotent.
func (e *Engine) SetPitch(semitones float64) {
	e.mu.Lock()
	if semitones < -12 {
		semitones = -12
	} else if semitones > 12 {
		semitones = 12
	}
	if semitones == e.semitones {
		e.mu.Unlock()
		return
	}
	e.semitones = semitones
	e.applyTargetsLocked()
	e.queueEvent(Event{
		Type:      EventPitch,
		Semitones: semitones,
		Key:       TransposeKey(e.meta.Key, int(semitones)),
	})
	events := e.takePending()
	e.mu.Unlock()
	e.fire(events)
}

// applyTargetsLocked recomputes the tempo/pitch targets, pushes the native
// rate onto live instances without restarting them, kicks off background
// re-rendering through the processor, and re-anchors the clock last.
func (e *Engine) applyTargetsLocked() {
	e.clk.Tick(e.hw)
	e.targets = stretch.Resolve(e.tempoRatio, e.semitones)

	rate := stretch.NativeRate(e.proc, e.targets)
	scale := stretch.CursorScale(e.proc, e.targets)
	pos := e.clk.Position().Seconds()
	for _, inst := range e.instances {
		inst.rate = rate
		inst.cursor = pos * scale * audio.SampleRate
	}

	e.renderStemsLocked()

	e.clk.SetRatio(e.targets.SyncRatio)
	e.clk.ResetAnchor(e.hw, e.clk.Position())
}

// renderStemsLocked re-renders every stem buffer for the current targets.
// NativeOnly is instant and applied inline; real processors run in the
// background and swap buffers in when done, discarding stale generations.
func (e *Engine) renderStemsLocked() {
	e.renderGen++
	gen := e.renderGen

	if _, degraded := e.proc.(stretch.NativeOnly); degraded || e.targets.Unity() {
		for _, name := range e.reg.Names() {
			if src := e.reg.Buffer(name); src != nil {
				e.installRenderLocked(name, src, gen)
			}
		}
		return
	}

	targets := e.targets
	names := e.reg.Names()
	go func() {
		for _, name := range names {
			src := e.reg.Buffer(name)
			if src == nil {
				continue
			}
			buf, err := e.proc.Render(context.Background(), src, targets)
			if err != nil {
				log.Printf("stem %q: %s render failed, using source: %v", name, e.proc.Name(), err)
				buf = src
			}
			e.mu.Lock()
			e.installRenderLocked(name, buf, gen)
			e.mu.Unlock()
		}
	}()
}

// installRenderLocked swaps a freshly rendered buffer into the cache and
// into the stem's live instance, remapping its cursor so the logical
// position is preserved.
func (e *Engine) installRenderLocked(name string, buf *audio.Buffer, gen int) {
	if gen != e.renderGen {
		return // a newer tempo/pitch change superseded this render
	}
	e.rendered[name] = buf
	if inst, ok := e.instances[name]; ok {
		scale := stretch.CursorScale(e.proc, e.targets)
		inst.buf = buf
		inst.cursor = e.clk.Position().Seconds() * scale * audio.SampleRate
	}
}

// SetMetronome toggles the steady click while playing.
func (e *Engine) SetMetronome(on bool) {
	e.mu.Lock()
	e.metronome = on
	e.mu.Unlock()
}

// tickMetronomeLocked spawns a click whenever the playhead crosses a beat.
func (e *Engine) tickMetronomeLocked(frameStart time.Duration) {
	if !e.metronome {
		return
	}
	b := e.grid.BeatIndexAt(e.clk.Position().Seconds())
	if b < 0 || b == e.lastBeat {
		return
	}
	e.lastBeat = b
	beats := e.grid.Beats()
	e.spawnClickLocked(frameStart, beats[b].Index == 0)
}

// --- per-stem operations (delegate to the registry; live instances pick
// the new values up on the next frame) ---

func (e *Engine) SetVolume(name string, v float64) { e.reg.SetVolume(name, v) }
func (e *Engine) SetPan(name string, p float64)    { e.reg.SetPan(name, p) }
func (e *Engine) ToggleMute(name string) bool      { return e.reg.ToggleMute(name) }
func (e *Engine) ToggleSolo(name string) bool      { return e.reg.ToggleSolo(name) }
