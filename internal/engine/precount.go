package engine

import (
	"log"
	"time"
)

// beginPrecountLocked pre-schedules every stem to start exactly when the
// count-in ends, then schedules the audible clicks against the hardware
// clock. Nothing here uses wall timers; the mixer's frame loop is the only
// scheduler, so the count stays sample-aligned with the stem start.
func (e *Engine) beginPrecountLocked(beats int) {
	pcDur := e.grid.PrecountDuration(beats)
	if pcDur <= 0 {
		e.startPlaybackLocked()
		return
	}

	e.pcStemStart = e.hw + pcDur
	e.pcBeats = beats
	e.startAllLocked(e.pcStemStart, e.clk.Position())

	t := e.hw
	bar := e.grid.BeatsPerBar
	if bar <= 0 {
		bar = 4
	}
	for i := 0; i < beats; i++ {
		e.spawnClickLocked(t, i%bar == 0)
		t += time.Duration(e.grid.BeatSpacing(i) * float64(time.Second))
	}

	e.state = pcCounting
	log.Printf("precount: %d beats, stems start in %v", beats, pcDur)
}

// finishPrecountLocked transitions Counting -> Playing. The anchor is pinned
// to the exact stem start time, not the frame boundary that noticed it, so
// logical position tracks the pre-scheduled instances sample-accurately.
func (e *Engine) finishPrecountLocked() {
	e.state = pcIdle
	e.playing = true
	e.clk.SetPlaying(true)
	e.clk.ResetAnchor(e.pcStemStart, e.clk.Position())
	e.queueEvent(Event{Type: EventPlay, PrecountBeats: e.pcBeats})
}

// cancelPrecountLocked aborts a count-in: the pre-scheduled stem instances
// have not produced a sample yet and are dropped outright; clicks already
// sounding ramp out.
func (e *Engine) cancelPrecountLocked() {
	e.state = pcIdle
	e.pcBeats = 0
	e.stopAllLocked(true)
	log.Printf("precount cancelled")
}

// startPlaybackLocked starts all stems immediately at the current position.
func (e *Engine) startPlaybackLocked() {
	e.startAllLocked(e.hw, e.clk.Position())
	e.playing = true
	e.clk.SetPlaying(true)
	e.clk.ResetAnchor(e.hw, e.clk.Position())
	e.queueEvent(Event{Type: EventPlay})
}
