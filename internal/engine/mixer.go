package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemjam/stemjam/internal/audio"
	"github.com/stemjam/stemjam/internal/stretch"
)

// instance is one live playback of a stem (or a metronome click). At most
// one stem instance exists per stem name; starting a new one detaches the
// old one first.
type instance struct {
	id      string
	stem    string // empty for clicks
	buf     *audio.Buffer
	startHW time.Duration
	cursor  float64 // fractional per-channel frame position in buf
	rate    float64 // cursor advance per output frame
	gain    float64 // fixed gain for clicks; stems read the registry live
	faded   int     // fade-in progress, per-channel frames
	fading  int     // fade-out remaining; 0 = not stopping
	done    bool
}

// startAllLocked creates a fresh instance for every stem with a loaded
// buffer, scheduled to begin at the given hardware time from the given
// logical position. Stems whose buffers failed to load are skipped; every
// sounding instance starts from the same offset.
func (e *Engine) startAllLocked(atHW time.Duration, pos time.Duration) {
	scale := stretch.CursorScale(e.proc, e.targets)
	rate := stretch.NativeRate(e.proc, e.targets)
	cursor := pos.Seconds() * scale * audio.SampleRate

	for _, name := range e.reg.Names() {
		if e.reg.Buffer(name) == nil {
			continue
		}
		e.stopInstanceLocked(name)
		buf := e.rendered[name]
		if buf == nil {
			buf = e.reg.Buffer(name)
		}
		e.instances[name] = &instance{
			id:      uuid.NewString(),
			stem:    name,
			buf:     buf,
			startHW: atHW,
			cursor:  cursor,
			rate:    rate,
		}
	}
}

// stopAllLocked stops every live stem instance. With fade set, instances
// that already sounded ramp out over the declick window; silent ones (still
// pre-scheduled) are dropped immediately.
func (e *Engine) stopAllLocked(fade bool) {
	// Pending clicks vanish; sounding ones ramp out with the stems.
	kept := e.clicks[:0]
	for _, c := range e.clicks {
		if fade && c.startHW <= e.hw && !c.done {
			c.fading = audio.DeclickRamp
			kept = append(kept, c)
		}
	}
	e.clicks = kept

	for name := range e.instances {
		if fade {
			e.fadeOutInstanceLocked(name)
		} else {
			e.stopInstanceLocked(name)
		}
	}
}

func (e *Engine) stopInstanceLocked(name string) {
	delete(e.instances, name)
}

func (e *Engine) fadeOutInstanceLocked(name string) {
	inst, ok := e.instances[name]
	if !ok {
		return
	}
	delete(e.instances, name)
	if inst.startHW > e.hw {
		return // never sounded; nothing to declick
	}
	// Detach from the registry and ramp out with a frozen gain.
	inst.gain = e.reg.EffectiveGain(inst.stem) * 0.707
	inst.stem = ""
	inst.fading = audio.DeclickRamp
	e.clicks = append(e.clicks, inst)
}

// spawnClickLocked schedules a metronome click at the given hardware time.
func (e *Engine) spawnClickLocked(atHW time.Duration, accent bool) {
	e.clicks = append(e.clicks, &instance{
		id:      uuid.NewString(),
		buf:     audio.Click(accent),
		startHW: atHW,
		rate:    1,
		gain:    1,
		faded:   audio.DeclickRamp, // clicks keep their attack transient
	})
}

// mixFrameLocked renders one 20ms output frame starting at hardware time
// frameStart, mixing every live instance with its effective gain and pan.
func (e *Engine) mixFrameLocked(frameStart time.Duration) []int16 {
	acc := make([]float64, audio.FrameSamples)

	for _, inst := range e.instances {
		st, ok := e.reg.Get(inst.stem)
		if !ok {
			inst.done = true
			continue
		}
		g := e.reg.EffectiveGain(inst.stem)
		l, r := audio.PanGains(st.Pan)
		e.mixInstance(acc, inst, frameStart, g*l, g*r)
	}
	for _, inst := range e.clicks {
		e.mixInstance(acc, inst, frameStart, inst.gain, inst.gain)
	}

	for name, inst := range e.instances {
		if inst.done {
			delete(e.instances, name)
		}
	}
	live := e.clicks[:0]
	for _, inst := range e.clicks {
		if !inst.done {
			live = append(live, inst)
		}
	}
	e.clicks = live

	frame := make([]int16, audio.FrameSamples)
	for i, v := range acc {
		frame[i] = audio.Clip(v)
	}
	return frame
}

// mixInstance adds one instance's contribution to the accumulator,
// sample-accurately honouring a start time that falls inside this frame.
func (e *Engine) mixInstance(acc []float64, inst *instance, frameStart time.Duration, gainL, gainR float64) {
	if inst.done {
		return
	}
	frameEnd := frameStart + audio.FrameDuration
	if inst.startHW >= frameEnd {
		return // scheduled for a later frame
	}

	start := 0
	if inst.startHW > frameStart {
		start = int(float64(inst.startHW-frameStart) / float64(time.Second) * audio.SampleRate)
		if start >= audio.FrameSize {
			return
		}
	}

	frames := inst.buf.Frames()
	for j := start; j < audio.FrameSize; j++ {
		if inst.cursor >= float64(frames) {
			inst.done = true
			return
		}
		l, r := inst.buf.SampleAt(inst.cursor)

		f := 1.0
		if inst.faded < audio.DeclickRamp {
			f = audio.Smoothstep(float64(inst.faded) / audio.DeclickRamp)
			inst.faded++
		}
		if inst.fading > 0 {
			f *= audio.Smoothstep(float64(inst.fading) / audio.DeclickRamp)
			inst.fading--
			if inst.fading == 0 {
				inst.done = true
			}
		}

		acc[j*audio.Channels] += l * gainL * f
		acc[j*audio.Channels+1] += r * gainR * f
		inst.cursor += inst.rate
		if inst.done {
			return
		}
	}
}
