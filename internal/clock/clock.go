// Package clock converts a monotonic hardware time base into a logical song
// position under a variable-rate regime. Every state-changing operation
// (play, seek, tempo, pitch) re-anchors the clock; ticks recompute position
// from the fixed anchor instead of integrating deltas, so repeated ticks
// accumulate no error.
package clock

import "time"

// Clock derives the current logical position from its last anchor. It is not
// safe for concurrent use; the engine goroutine owns it.
type Clock struct {
	anchorHW  time.Duration // hardware time at last sync
	anchorPos time.Duration // logical position at last sync
	ratio     float64       // logical seconds per hardware second
	duration  time.Duration
	playing   bool
	position  time.Duration
}

// New returns a stopped clock at position zero with unity rate.
func New() *Clock {
	return &Clock{ratio: 1}
}

// SetDuration sets the song length. A non-positive duration marks the clock
// as unloaded: Tick becomes a no-op.
func (c *Clock) SetDuration(d time.Duration) {
	c.duration = d
}

// SetRatio updates the effective speed of logical time relative to hardware
// time. Callers must ResetAnchor afterwards; changing the ratio against a
// stale anchor would replay the elapsed delta at the new rate.
func (c *Clock) SetRatio(r float64) {
	if r <= 0 {
		r = 1
	}
	c.ratio = r
}

// Ratio returns the active sync ratio.
func (c *Clock) Ratio() float64 { return c.ratio }

// SetPlaying starts or stops logical time advancement.
func (c *Clock) SetPlaying(playing bool) {
	c.playing = playing
}

// Playing reports whether the clock is advancing.
func (c *Clock) Playing() bool { return c.playing }

// ResetAnchor pins the given logical position to the given hardware time.
func (c *Clock) ResetAnchor(now time.Duration, pos time.Duration) {
	c.anchorHW = now
	c.anchorPos = c.clamp(pos)
	c.position = c.anchorPos
}

// Position returns the last computed logical position.
func (c *Clock) Position() time.Duration { return c.position }

// Tick recomputes the logical position for the given hardware time. It
// returns the position and whether the song end was reached. With an unknown
// duration or while stopped, Tick leaves the position unchanged.
func (c *Clock) Tick(now time.Duration) (pos time.Duration, ended bool) {
	if !c.playing || c.duration <= 0 {
		return c.position, false
	}
	delta := now - c.anchorHW
	pos = c.anchorPos + time.Duration(float64(delta)*c.ratio)
	pos = c.clamp(pos)
	c.position = pos
	return pos, pos >= c.duration
}

func (c *Clock) clamp(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if c.duration > 0 && pos > c.duration {
		return c.duration
	}
	return pos
}
