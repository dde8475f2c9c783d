package engine

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stemjam/stemjam/internal/audio"
	"github.com/stemjam/stemjam/internal/stem"
	"github.com/stemjam/stemjam/internal/stretch"
)

func toneBuffer(seconds float64, value int16) *audio.Buffer {
	frames := int(seconds * audio.SampleRate)
	samples := make([]int16, frames*audio.Channels)
	for i := range samples {
		samples[i] = value
	}
	return &audio.Buffer{Samples: samples}
}

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := New(stem.NewRegistry(), stretch.NativeOnly{}, cfg)
	e.LoadBuffers(map[string]*audio.Buffer{
		"vocals": toneBuffer(10, 1000),
		"drums":  toneBuffer(10, 1000),
	}, Metadata{Title: "test track", BPM: 120, Key: "C", BeatsPerBar: 4})
	return e
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func steps(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.step()
	}
}

func frameEnergy(frame []int16) int {
	total := 0
	for _, s := range frame {
		if s < 0 {
			total -= int(s)
		} else {
			total += int(s)
		}
	}
	return total
}

// --- immediate playback ---

func TestPlayStartsImmediatelyWithoutPrecount(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()

	st := e.Status()
	if !st.Playing || st.Counting {
		t.Fatalf("status after Play = playing=%v counting=%v, want playing", st.Playing, st.Counting)
	}

	steps(e, 50) // 1s
	st = e.Status()
	if math.Abs(st.Position-1.0) > 0.001 {
		t.Errorf("position after 1s = %v, want 1.0", st.Position)
	}
}

func TestPlaybackProducesAudio(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()
	steps(e, 30) // past the declick ramp
	if got := frameEnergy(e.step()); got == 0 {
		t.Error("playing engine produced a silent frame")
	}
}

func TestPositionMonotonicWhilePlaying(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()
	prev := -1.0
	for i := 0; i < 200; i++ {
		e.step()
		pos := e.Status().Position
		if pos < prev {
			t.Fatalf("position went backwards at step %d: %v after %v", i, pos, prev)
		}
		prev = pos
	}
}

func TestPlayIsIdempotentWhilePlaying(t *testing.T) {
	e := testEngine(t, Config{})
	rec := &eventRecorder{}
	e.SetNotifier(rec.record)
	e.Play()
	e.Play()
	e.Play()
	plays := 0
	for _, typ := range rec.types() {
		if typ == EventPlay {
			plays++
		}
	}
	if plays != 1 {
		t.Errorf("got %d play events, want 1", plays)
	}
}

func TestPlayWithoutTrackIsNoOp(t *testing.T) {
	e := New(stem.NewRegistry(), stretch.NativeOnly{}, Config{})
	e.Play()
	if e.Status().Playing {
		t.Error("empty engine should not enter playing state")
	}
}

// --- pause / stop / seek ---

func TestPauseKeepsPosition(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()
	steps(e, 100) // 2s
	e.Pause()

	st := e.Status()
	if st.Playing {
		t.Error("still playing after Pause")
	}
	pos := st.Position
	steps(e, 50)
	if got := e.Status().Position; got != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, got)
	}

	e.Play()
	steps(e, 50)
	if got := e.Status().Position; math.Abs(got-pos-1.0) > 0.001 {
		t.Errorf("position after resume+1s = %v, want %v", got, pos+1.0)
	}
}

func TestStopRewinds(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()
	steps(e, 100)
	e.Stop()
	st := e.Status()
	if st.Playing || st.Position != 0 {
		t.Errorf("after Stop: playing=%v position=%v, want stopped at 0", st.Playing, st.Position)
	}
}

func TestSeekClampsAndMoves(t *testing.T) {
	e := testEngine(t, Config{})
	e.Seek(4.5)
	if got := e.Status().Position; math.Abs(got-4.5) > 1e-9 {
		t.Errorf("position after Seek(4.5) = %v", got)
	}
	e.Seek(-3)
	if got := e.Status().Position; got != 0 {
		t.Errorf("position after Seek(-3) = %v, want 0", got)
	}
	e.Seek(99)
	if got := e.Status().Position; math.Abs(got-10) > 1e-9 {
		t.Errorf("position after Seek(99) = %v, want clamp at duration", got)
	}
}

func TestSeekWhilePlayingContinuesFromTarget(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()
	steps(e, 10)
	e.Seek(5)
	steps(e, 50) // 1s
	if got := e.Status().Position; math.Abs(got-6.0) > 0.001 {
		t.Errorf("position = %v, want 6.0", got)
	}
}

func TestEndOfPlaybackStops(t *testing.T) {
	e := New(stem.NewRegistry(), stretch.NativeOnly{}, Config{})
	e.LoadBuffers(map[string]*audio.Buffer{"vocals": toneBuffer(0.1, 500)}, Metadata{BPM: 120})
	rec := &eventRecorder{}
	e.SetNotifier(rec.record)

	e.Play()
	steps(e, 20) // 0.4s, past the 0.1s track
	if e.Status().Playing {
		t.Error("engine still playing past the end of the track")
	}
	sawStop := false
	for _, typ := range rec.types() {
		if typ == EventStop {
			sawStop = true
		}
	}
	if !sawStop {
		t.Error("end of playback did not emit a stop event")
	}
}

// --- precount ---

func TestPrecountSchedulesStems(t *testing.T) {
	// BPM=120, 8 beats: count-in is exactly 4s.
	e := testEngine(t, Config{PrecountBeats: 8})
	e.Play()

	st := e.Status()
	if !st.Counting || st.Playing {
		t.Fatalf("after Play: counting=%v playing=%v, want counting", st.Counting, st.Playing)
	}

	e.mu.Lock()
	if want := 4 * time.Second; e.pcStemStart-e.hw != want {
		t.Errorf("stem start in %v, want %v", e.pcStemStart-e.hw, want)
	}
	if len(e.instances) != 2 {
		t.Errorf("%d pre-scheduled instances, want 2", len(e.instances))
	}
	for name, inst := range e.instances {
		if inst.startHW <= e.hw {
			t.Errorf("stem %q scheduled in the past", name)
		}
	}
	if len(e.clicks) != 8 {
		t.Errorf("%d clicks scheduled, want 8", len(e.clicks))
	}
	e.mu.Unlock()

	// Nothing stem-audible during the count; position stays put.
	steps(e, 100) // 2s into the count
	st = e.Status()
	if !st.Counting || st.Position != 0 {
		t.Errorf("mid-count: counting=%v position=%v", st.Counting, st.Position)
	}

	steps(e, 100) // completes the 4s count
	st = e.Status()
	if st.Counting || !st.Playing {
		t.Errorf("after count: counting=%v playing=%v, want playing", st.Counting, st.Playing)
	}
}

func TestPrecountEmitsPlayWithBeats(t *testing.T) {
	e := testEngine(t, Config{PrecountBeats: 4})
	rec := &eventRecorder{}
	e.SetNotifier(rec.record)

	e.Play()
	steps(e, 101) // 4 beats at 120bpm = 2s

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) == 0 {
		t.Fatal("no events emitted")
	}
	ev := rec.events[0]
	if ev.Type != EventPlay || ev.PrecountBeats != 4 {
		t.Errorf("first event = %+v, want play with 4 precount beats", ev)
	}
}

func TestPauseDuringPrecountCancelsSilently(t *testing.T) {
	e := testEngine(t, Config{PrecountBeats: 8})
	e.Play()
	steps(e, 10)
	e.Pause()

	st := e.Status()
	if st.Counting || st.Playing {
		t.Errorf("after cancel: counting=%v playing=%v", st.Counting, st.Playing)
	}
	if st.Position != 0 {
		t.Errorf("position = %v after cancelled count, want 0", st.Position)
	}
	e.mu.Lock()
	if len(e.instances) != 0 {
		t.Errorf("%d stem instances survive a cancelled count, want 0", len(e.instances))
	}
	e.mu.Unlock()
}

func TestSeekDuringPrecountMovesScheduledStems(t *testing.T) {
	// BPM=120, 8 beats: count-in is exactly 4s.
	e := testEngine(t, Config{PrecountBeats: 8})
	e.Play()
	steps(e, 10) // 0.2s into the count
	e.Seek(5)

	st := e.Status()
	if !st.Counting || st.Position != 5.0 {
		t.Fatalf("mid-count seek: counting=%v position=%v, want counting at 5.0", st.Counting, st.Position)
	}

	steps(e, 240) // count completes at 4s, then 1s of playback
	st = e.Status()
	if st.Counting || !st.Playing {
		t.Fatalf("after count: counting=%v playing=%v, want playing", st.Counting, st.Playing)
	}
	if math.Abs(st.Position-6.0) > 1e-9 {
		t.Fatalf("position = %v, want 6.0", st.Position)
	}

	// The pre-scheduled instances must sound from the seek target, not the
	// position the count started at.
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, inst := range e.instances {
		at := inst.cursor / audio.SampleRate
		if math.Abs(at-st.Position) > 1e-9 {
			t.Errorf("stem %q sounding at %.2fs while the clock reports %.2fs", name, at, st.Position)
		}
	}
}

func TestPrecountBypassedWithoutBPM(t *testing.T) {
	e := New(stem.NewRegistry(), stretch.NativeOnly{}, Config{PrecountBeats: 8})
	e.LoadBuffers(map[string]*audio.Buffer{"vocals": toneBuffer(5, 500)}, Metadata{})
	e.Play()
	st := e.Status()
	if st.Counting || !st.Playing {
		t.Errorf("unknown BPM: counting=%v playing=%v, want immediate playback", st.Counting, st.Playing)
	}
}

// --- tempo / pitch ---

func TestSetTempoAcceleratesClock(t *testing.T) {
	e := testEngine(t, Config{})
	e.SetTempo(1.5)

	st := e.Status()
	if st.CurrentBPM != 180 {
		t.Errorf("CurrentBPM = %v, want 180", st.CurrentBPM)
	}
	if st.SyncRatio != 1.5 {
		t.Errorf("SyncRatio = %v, want 1.5", st.SyncRatio)
	}

	e.Play()
	steps(e, 100) // 2s hardware -> 3s logical
	if got := e.Status().Position; math.Abs(got-3.0) > 0.001 {
		t.Errorf("position = %v, want 3.0", got)
	}
}

func TestSetTempoClampsBPM(t *testing.T) {
	e := testEngine(t, Config{})
	e.SetTempo(10)
	if got := e.Status().CurrentBPM; got != 300 {
		t.Errorf("CurrentBPM = %v, want clamp at 300", got)
	}
	e.SetTempo(0.1)
	if got := e.Status().CurrentBPM; got != 50 {
		t.Errorf("CurrentBPM = %v, want clamp at 50", got)
	}
}

func TestSetTempoMidPlaybackKeepsPosition(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()
	steps(e, 100) // 2s
	e.SetTempo(0.8)
	pos := e.Status().Position
	if math.Abs(pos-2.0) > 0.05 {
		t.Fatalf("position right after tempo change = %v, want ~2.0", pos)
	}
	steps(e, 50) // 1s hardware -> 0.8s logical
	if got := e.Status().Position; math.Abs(got-pos-0.8) > 0.001 {
		t.Errorf("position = %v, want %v", got, pos+0.8)
	}
}

func TestSetPitchClampsAndTransposesKey(t *testing.T) {
	e := testEngine(t, Config{})
	rec := &eventRecorder{}
	e.SetNotifier(rec.record)

	e.SetPitch(25)
	st := e.Status()
	if st.Semitones != 12 {
		t.Errorf("semitones = %v, want clamp at 12", st.Semitones)
	}

	e.SetPitch(3)
	if got := e.Status().Key; got != "D#" {
		t.Errorf("key = %q, want D# (C +3)", got)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := rec.events[len(rec.events)-1]
	if last.Type != EventPitch || last.Semitones != 3 || last.Key != "D#" {
		t.Errorf("pitch event = %+v", last)
	}
}

func TestSetTempoIdempotent(t *testing.T) {
	e := testEngine(t, Config{})
	rec := &eventRecorder{}
	e.SetNotifier(rec.record)
	e.SetTempo(1.2)
	e.SetTempo(1.2)
	if n := len(rec.types()); n != 1 {
		t.Errorf("%d tempo events for repeated identical SetTempo, want 1", n)
	}
}

// --- mix state ---

func TestMuteSilencesStem(t *testing.T) {
	e := New(stem.NewRegistry(), stretch.NativeOnly{}, Config{})
	e.LoadBuffers(map[string]*audio.Buffer{"vocals": toneBuffer(5, 2000)}, Metadata{BPM: 120})
	e.Play()
	steps(e, 30)
	if frameEnergy(e.step()) == 0 {
		t.Fatal("expected audio before mute")
	}
	e.ToggleMute("vocals")
	if got := frameEnergy(e.step()); got != 0 {
		t.Errorf("muted stem still audible: energy %d", got)
	}
}

func TestSoloSilencesOthers(t *testing.T) {
	e := testEngine(t, Config{})
	e.Play()
	e.ToggleSolo("drums")
	steps(e, 30)

	// vocals should be gated, drums audible: overall energy equals a
	// single-stem mix.
	solo := frameEnergy(e.step())
	if solo == 0 {
		t.Fatal("soloed stem silent")
	}
	e.ToggleSolo("drums")
	steps(e, 30) // past re-gating ramp
	both := frameEnergy(e.step())
	if both <= solo {
		t.Errorf("full mix energy %d not above solo energy %d", both, solo)
	}
}

// --- events ---

func TestTransportEventSequence(t *testing.T) {
	e := testEngine(t, Config{})
	rec := &eventRecorder{}
	e.SetNotifier(rec.record)

	e.Play()
	steps(e, 10)
	e.Pause()
	e.Seek(3)
	e.Play()
	steps(e, 10)
	e.Stop()

	want := []EventType{EventPlay, EventPause, EventSeek, EventPlay, EventStop}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}

// --- key transposition ---

func TestTransposeKey(t *testing.T) {
	tests := []struct {
		key   string
		semis int
		want  string
	}{
		{"C", 0, "C"},
		{"C", 3, "D#"},
		{"A", 3, "C"},
		{"Am", 2, "Bm"},
		{"F#m", -2, "Em"},
		{"Bb", 2, "C"},
		{"C", -1, "B"},
		{"", 5, ""},
		{"?", 5, "?"},
	}
	for _, tt := range tests {
		if got := TransposeKey(tt.key, tt.semis); got != tt.want {
			t.Errorf("TransposeKey(%q, %d) = %q, want %q", tt.key, tt.semis, got, tt.want)
		}
	}
}
