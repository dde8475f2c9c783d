// Package jam keeps one host's playback session reproduced on any number of
// guest clients within a bounded audible drift. The host owns ground truth
// and broadcasts commands plus a periodic sync heartbeat; guests apply
// commands through the same engine operations the local UI would use and
// self-correct drift. Message loss is tolerated: state is self-healing via
// the heartbeat, and no message is acknowledged.
package jam

import (
	"encoding/json"
	"fmt"

	"github.com/stemjam/stemjam/internal/grid"
)

// MsgType identifies a jam wire message.
type MsgType string

const (
	MsgLoadTrack  MsgType = "load-track"
	MsgPlayback   MsgType = "playback"
	MsgTempo      MsgType = "tempo"
	MsgPitch      MsgType = "pitch"
	MsgSync       MsgType = "sync"
	MsgHostStatus MsgType = "host-status"
)

// Message is the transport-agnostic envelope for all jam traffic.
type Message struct {
	Type    MsgType         `json:"type"`
	Code    string          `json:"code"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LoadTrackPayload announces the track a session plays.
type LoadTrackPayload struct {
	Title       string            `json:"title"`
	BPM         float64           `json:"bpm"`
	Key         string            `json:"key"`
	BeatOffset  float64           `json:"beat_offset"`
	BeatsPerBar int               `json:"beats_per_bar"`
	Chords      []grid.ChordEvent `json:"chords,omitempty"`
	Stems       []string          `json:"stems,omitempty"`
}

// PlaybackPayload carries a transport command.
type PlaybackPayload struct {
	Command       string  `json:"command"` // play, pause, stop, seek
	Position      float64 `json:"position"`
	PrecountBeats int     `json:"precount_beats,omitempty"`
}

// TempoPayload carries a tempo change.
type TempoPayload struct {
	BPM         float64 `json:"bpm"`
	OriginalBPM float64 `json:"original_bpm"`
	SyncRatio   float64 `json:"sync_ratio"`
}

// PitchPayload carries a pitch change.
type PitchPayload struct {
	Semitones float64 `json:"semitones"`
	Key       string  `json:"key,omitempty"`
}

// SyncPayload is the periodic heartbeat emitted while the host plays.
type SyncPayload struct {
	Position  float64 `json:"position"`
	BPM       float64 `json:"bpm"`
	Playing   bool    `json:"playing"`
	Timestamp int64   `json:"timestamp"` // host unix millis when emitted
}

// HostStatusPayload announces host presence changes.
type HostStatusPayload struct {
	Online      bool `json:"online"`
	WaitSeconds int  `json:"wait_seconds,omitempty"`
}

// NewMessage wraps a payload into an envelope.
func NewMessage(t MsgType, code string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Message{Type: t, Code: code, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
