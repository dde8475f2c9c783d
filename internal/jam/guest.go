package jam

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/stemjam/stemjam/internal/engine"
)

// ErrHostGone is returned by Guest.Run when the host stayed away past the
// wait countdown.
var ErrHostGone = errors.New("jam: host gone")

// DefaultDriftThreshold is the audible drift (seconds) past which a guest
// snaps to the host's position.
const DefaultDriftThreshold = 0.5

// DefaultHostWait is how long a guest waits for the host to come back before
// declaring the session over.
const DefaultHostWait = 10 * time.Second

// GuestState describes where the guest stands relative to its host.
type GuestState int

const (
	GuestSynced GuestState = iota
	GuestWaitingHost
	GuestStalled
)

func (s GuestState) String() string {
	switch s {
	case GuestWaitingHost:
		return "waiting-host"
	case GuestStalled:
		return "stalled"
	default:
		return "synced"
	}
}

// GuestConfig tunes a jam guest.
type GuestConfig struct {
	DriftThreshold float64       // seconds; DefaultDriftThreshold when zero
	HostWait       time.Duration // DefaultHostWait when zero

	// Loader fetches and installs the announced track's stems into the
	// engine. Commands received before it succeeds are buffered and
	// replayed afterwards.
	Loader func(context.Context, LoadTrackPayload) error
}

// Guest replays a host's session on a local engine. It never re-broadcasts:
// the engine's notifier stays untouched, so applied commands are silent.
type Guest struct {
	eng *engine.Engine
	tr  Transport
	cfg GuestConfig

	mu          sync.Mutex
	loaded      bool
	pending     []Message
	state       GuestState
	waitUntil   time.Time
	corrections int
}

// GuestStatus is a guest's view of the session for status output.
type GuestStatus struct {
	State       string  `json:"state"`
	Corrections int     `json:"corrections"`
	WaitSeconds float64 `json:"wait_seconds,omitempty"`
}

// NewGuest wires a guest onto an engine and a transport.
func NewGuest(eng *engine.Engine, tr Transport, cfg GuestConfig) *Guest {
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = DefaultDriftThreshold
	}
	if cfg.HostWait <= 0 {
		cfg.HostWait = DefaultHostWait
	}
	return &Guest{
		eng:    eng,
		tr:     tr,
		cfg:    cfg,
		loaded: eng.Status().Loaded,
	}
}

// Run applies host messages until the transport drops or ctx is cancelled.
// When the host disappears it pauses local playback, waits out the countdown
// and returns ErrHostGone; the caller decides whether to redial.
func (g *Guest) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-g.tr.Messages():
			if !ok {
				return g.awaitHost(ctx)
			}
			g.Handle(ctx, m)
		}
	}
}

// awaitHost holds the session in the waiting state for the countdown window.
func (g *Guest) awaitHost(ctx context.Context) error {
	g.eng.Pause()
	g.mu.Lock()
	g.state = GuestWaitingHost
	g.waitUntil = time.Now().Add(g.cfg.HostWait)
	wait := g.cfg.HostWait
	g.mu.Unlock()
	log.Printf("jam: host connection lost, waiting %s", wait)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	g.mu.Lock()
	g.state = GuestStalled
	g.mu.Unlock()
	return ErrHostGone
}

// Handle applies one host message. Commands that arrive before the track's
// stems are loaded are buffered and replayed once loading succeeds, so a
// mid-session joiner lands in the right state.
func (g *Guest) Handle(ctx context.Context, m Message) {
	switch m.Type {
	case MsgLoadTrack:
		g.handleLoad(ctx, m)
		return
	case MsgHostStatus:
		g.handleHostStatus(m)
		return
	}

	g.mu.Lock()
	if !g.loaded {
		g.pending = append(g.pending, m)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.apply(m)
}

func (g *Guest) handleLoad(ctx context.Context, m Message) {
	var p LoadTrackPayload
	if err := m.Decode(&p); err != nil {
		log.Printf("jam: %v", err)
		return
	}
	if g.cfg.Loader == nil {
		log.Printf("jam: no stem loader configured, cannot join track %q", p.Title)
		return
	}
	if err := g.cfg.Loader(ctx, p); err != nil {
		log.Printf("jam: load track %q: %v", p.Title, err)
		return
	}

	g.mu.Lock()
	g.loaded = true
	replay := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, buffered := range replay {
		g.apply(buffered)
	}
}

func (g *Guest) handleHostStatus(m Message) {
	var p HostStatusPayload
	if err := m.Decode(&p); err != nil {
		log.Printf("jam: %v", err)
		return
	}
	if p.Online {
		// A returning host is adopted as stopped; it will say play when
		// it means play.
		g.eng.Stop()
		g.mu.Lock()
		g.state = GuestSynced
		g.mu.Unlock()
		return
	}
	g.eng.Pause()
	wait := g.cfg.HostWait
	if p.WaitSeconds > 0 {
		wait = time.Duration(p.WaitSeconds) * time.Second
	}
	g.mu.Lock()
	g.state = GuestWaitingHost
	g.waitUntil = time.Now().Add(wait)
	g.mu.Unlock()
}

func (g *Guest) apply(m Message) {
	switch m.Type {
	case MsgPlayback:
		var p PlaybackPayload
		if err := m.Decode(&p); err != nil {
			log.Printf("jam: %v", err)
			return
		}
		g.applyPlayback(p)
	case MsgTempo:
		var p TempoPayload
		if err := m.Decode(&p); err != nil {
			log.Printf("jam: %v", err)
			return
		}
		if p.OriginalBPM > 0 {
			g.eng.SetTempo(p.BPM / p.OriginalBPM)
		} else if p.SyncRatio > 0 {
			g.eng.SetTempo(p.SyncRatio)
		}
	case MsgPitch:
		var p PitchPayload
		if err := m.Decode(&p); err != nil {
			log.Printf("jam: %v", err)
			return
		}
		g.eng.SetPitch(p.Semitones)
	case MsgSync:
		var p SyncPayload
		if err := m.Decode(&p); err != nil {
			log.Printf("jam: %v", err)
			return
		}
		g.applySync(p)
	}
}

func (g *Guest) applyPlayback(p PlaybackPayload) {
	switch p.Command {
	case "play":
		g.eng.Seek(p.Position)
		g.eng.PlayWithPrecount(p.PrecountBeats)
	case "pause":
		g.eng.Pause()
		g.eng.Seek(p.Position)
	case "stop":
		g.eng.Stop()
	case "seek":
		g.eng.Seek(p.Position)
	default:
		log.Printf("jam: unknown playback command %q", p.Command)
	}
}

// applySync reconciles against a heartbeat: catch up a stopped guest, halt a
// runaway one, and snap the position only when drift is audible.
func (g *Guest) applySync(p SyncPayload) {
	st := g.eng.Status()
	if st.Counting {
		return
	}

	switch {
	case p.Playing && !st.Playing:
		g.eng.Seek(p.Position)
		g.eng.PlayWithPrecount(0)
	case !p.Playing && st.Playing:
		g.eng.Pause()
	case p.Playing && st.Playing:
		if math.Abs(st.Position-p.Position) > g.cfg.DriftThreshold {
			g.eng.Seek(p.Position)
			g.mu.Lock()
			g.corrections++
			g.mu.Unlock()
		}
	}
}

// Status reports the guest's session state.
func (g *Guest) Status() GuestStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := GuestStatus{State: g.state.String(), Corrections: g.corrections}
	if g.state == GuestWaitingHost {
		if remain := time.Until(g.waitUntil).Seconds(); remain > 0 {
			s.WaitSeconds = remain
		}
	}
	return s
}

// Corrections returns how many drift corrections have been applied.
func (g *Guest) Corrections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.corrections
}
