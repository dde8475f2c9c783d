package jam

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stemjam/stemjam/internal/engine"
)

// DefaultHeartbeat is how often the host emits a sync message while playing.
const DefaultHeartbeat = 5 * time.Second

// HostConfig tunes a jam host.
type HostConfig struct {
	Code        string        // session code; generated when empty
	Heartbeat   time.Duration // sync interval; DefaultHeartbeat when zero
	WaitSeconds int           // countdown guests show after the host leaves
}

// Host mirrors one engine's transport state out to guests. All emission is
// centralized here: engine events become broadcast commands, and a heartbeat
// carries the authoritative position while playing. Inbound guest traffic is
// logged and dropped.
type Host struct {
	eng  *engine.Engine
	tr   Transport
	code string
	cfg  HostConfig
}

// NewHost wires a host onto an engine and a transport. It takes over the
// engine's event notifier.
func NewHost(eng *engine.Engine, tr Transport, cfg HostConfig) *Host {
	if cfg.Code == "" {
		cfg.Code = uuid.NewString()[:8]
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 10
	}
	h := &Host{eng: eng, tr: tr, code: cfg.Code, cfg: cfg}
	eng.SetNotifier(h.emit)
	return h
}

// Code returns the session code guests join with.
func (h *Host) Code() string { return h.code }

// Run drives the heartbeat and drains guest traffic until ctx is cancelled,
// then announces the host going away.
func (h *Host) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.send(MsgHostStatus, HostStatusPayload{Online: false, WaitSeconds: h.cfg.WaitSeconds})
			return
		case <-ticker.C:
			st := h.eng.Status()
			if !st.Playing {
				continue // a heartbeat during a count-in would double-start guests
			}
			h.send(MsgSync, SyncPayload{
				Position:  st.Position,
				BPM:       st.CurrentBPM,
				Playing:   true,
				Timestamp: time.Now().UnixMilli(),
			})
		case m, ok := <-h.tr.Messages():
			if !ok {
				return
			}
			log.Printf("jam: ignoring guest %s message in session %s", m.Type, h.code)
		}
	}
}

// Snapshot builds the greeting for a late joiner: session presence, the
// loaded track, and any non-default tempo/pitch. Playback is deliberately
// absent so a fresh guest starts stopped and waits for an explicit play.
func (h *Host) Snapshot() []Message {
	st := h.eng.Status()

	msgs := make([]Message, 0, 4)
	msgs = h.append(msgs, MsgHostStatus, HostStatusPayload{Online: true})

	if st.Loaded {
		meta := h.eng.Metadata()
		names := make([]string, 0, len(st.Stems))
		for _, s := range st.Stems {
			names = append(names, s.Name)
		}
		msgs = h.append(msgs, MsgLoadTrack, LoadTrackPayload{
			Title:       meta.Title,
			BPM:         meta.BPM,
			Key:         meta.Key,
			BeatOffset:  meta.BeatOffset,
			BeatsPerBar: meta.BeatsPerBar,
			Chords:      meta.Chords,
			Stems:       names,
		})
	}
	if st.TempoRatio != 1 {
		msgs = h.append(msgs, MsgTempo, TempoPayload{
			BPM:         st.CurrentBPM,
			OriginalBPM: st.OriginalBPM,
			SyncRatio:   st.SyncRatio,
		})
	}
	if st.Semitones != 0 {
		msgs = h.append(msgs, MsgPitch, PitchPayload{
			Semitones: st.Semitones,
			Key:       st.Key,
		})
	}
	return msgs
}

func (h *Host) emit(ev engine.Event) {
	switch ev.Type {
	case engine.EventLoad:
		meta := h.eng.Metadata()
		st := h.eng.Status()
		names := make([]string, 0, len(st.Stems))
		for _, s := range st.Stems {
			names = append(names, s.Name)
		}
		h.send(MsgLoadTrack, LoadTrackPayload{
			Title:       meta.Title,
			BPM:         meta.BPM,
			Key:         meta.Key,
			BeatOffset:  meta.BeatOffset,
			BeatsPerBar: meta.BeatsPerBar,
			Chords:      meta.Chords,
			Stems:       names,
		})
	case engine.EventPlay:
		h.send(MsgPlayback, PlaybackPayload{
			Command:       "play",
			Position:      ev.Position,
			PrecountBeats: ev.PrecountBeats,
		})
	case engine.EventPause:
		h.send(MsgPlayback, PlaybackPayload{Command: "pause", Position: ev.Position})
	case engine.EventStop:
		h.send(MsgPlayback, PlaybackPayload{Command: "stop"})
	case engine.EventSeek:
		h.send(MsgPlayback, PlaybackPayload{Command: "seek", Position: ev.Position})
	case engine.EventTempo:
		h.send(MsgTempo, TempoPayload{
			BPM:         ev.BPM,
			OriginalBPM: ev.OriginalBPM,
			SyncRatio:   ev.SyncRatio,
		})
	case engine.EventPitch:
		h.send(MsgPitch, PitchPayload{Semitones: ev.Semitones, Key: ev.Key})
	}
}

func (h *Host) send(t MsgType, payload any) {
	m, err := NewMessage(t, h.code, payload)
	if err != nil {
		log.Printf("jam: build %s message: %v", t, err)
		return
	}
	if err := h.tr.Send(m); err != nil {
		log.Printf("jam: broadcast %s: %v", t, err)
	}
}

func (h *Host) append(msgs []Message, t MsgType, payload any) []Message {
	m, err := NewMessage(t, h.code, payload)
	if err != nil {
		log.Printf("jam: build %s message: %v", t, err)
		return msgs
	}
	return append(msgs, m)
}
