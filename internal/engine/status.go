package engine

// StemStatus is one stem's mix state for status output.
type StemStatus struct {
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
	Pan    float64 `json:"pan"`
	Muted  bool    `json:"muted"`
	Solo   bool    `json:"solo"`
	Loaded bool    `json:"loaded"`
}

// Status is a consistent snapshot of the playback session.
type Status struct {
	Title     string  `json:"title"`
	Playing   bool    `json:"playing"`
	Counting  bool    `json:"counting"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Loaded    bool    `json:"loaded"`
	Metronome bool    `json:"metronome"`

	TempoRatio  float64 `json:"tempo_ratio"`
	CurrentBPM  float64 `json:"current_bpm"`
	OriginalBPM float64 `json:"original_bpm"`
	Semitones   float64 `json:"pitch_semitones"`
	Key         string  `json:"key"`
	SyncRatio   float64 `json:"sync_ratio"`
	Processor   string  `json:"processor"`

	Beat    int `json:"beat"`    // beat index under the playhead, -1 before the grid
	Measure int `json:"measure"` // measure of that beat

	Stems []StemStatus `json:"stems"`
}

// Status returns the current session state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{
		Title:       e.meta.Title,
		Playing:     e.playing,
		Counting:    e.state == pcCounting,
		Position:    e.clk.Position().Seconds(),
		Duration:    e.duration.Seconds(),
		Loaded:      e.duration > 0,
		Metronome:   e.metronome,
		TempoRatio:  e.tempoRatio,
		CurrentBPM:  e.currentBPM,
		OriginalBPM: e.meta.BPM,
		Semitones:   e.semitones,
		Key:         TransposeKey(e.meta.Key, int(e.semitones)),
		SyncRatio:   e.targets.SyncRatio,
		Processor:   e.proc.Name(),
		Beat:        -1,
	}

	if b := e.grid.BeatIndexAt(s.Position); b >= 0 {
		beats := e.grid.Beats()
		s.Beat = beats[b].Index
		s.Measure = beats[b].Measure
	}

	for _, st := range e.reg.Snapshot() {
		s.Stems = append(s.Stems, StemStatus{
			Name:   st.Name,
			Volume: st.Volume,
			Pan:    st.Pan,
			Muted:  st.Muted,
			Solo:   st.Solo,
			Loaded: st.Buffer != nil,
		})
	}
	return s
}
