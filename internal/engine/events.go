package engine

// EventType identifies a transport event.
type EventType string

const (
	EventLoad  EventType = "load"
	EventPlay  EventType = "play"
	EventPause EventType = "pause"
	EventStop  EventType = "stop"
	EventSeek  EventType = "seek"
	EventTempo EventType = "tempo"
	EventPitch EventType = "pitch"
)

// Event describes a state change the engine performed. The jam host relays
// these to guests; local consumers (UI) read the same stream.
type Event struct {
	Type     EventType
	Position float64 // seconds, at the moment the event fired

	// EventPlay
	PrecountBeats int // beats counted in before the audible start

	// EventTempo
	BPM         float64
	OriginalBPM float64
	SyncRatio   float64

	// EventPitch
	Semitones float64
	Key       string

	// EventLoad
	Title string
}
