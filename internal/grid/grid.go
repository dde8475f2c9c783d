// Package grid derives a renderable beat/measure grid from BPM, time
// signature, and a beat offset, and snaps noisy chord timestamps onto it.
package grid

import (
	"math"
	"sort"
	"time"
)

// ChordEvent is a chord label at a point in song time (seconds).
type ChordEvent struct {
	Time  float64 `json:"time"`
	Label string  `json:"label"`
}

// Beat is one grid slot. A beat either starts a chord, continues the
// previous one for display, or carries no chord at all.
type Beat struct {
	Time         float64
	Measure      int
	Index        int // beat index within the measure
	Chord        string
	Continuation bool
}

// Grid is an immutable beat grid. Rebuild it (New/WithChords/WithBeatMap)
// when BPM, offset, or the chord list changes.
type Grid struct {
	BPM         float64
	BeatsPerBar int
	Offset      float64 // seconds of pickup/silence before the first downbeat
	Duration    float64 // seconds

	beatMap []float64 // optional explicit beat timestamps (non-uniform grids)
	beats   []Beat
}

// New builds a uniform grid. A non-positive BPM or duration yields an empty
// grid whose precount duration is zero.
func New(bpm float64, beatsPerBar int, offset, duration float64) *Grid {
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	g := &Grid{BPM: bpm, BeatsPerBar: beatsPerBar, Offset: offset, Duration: duration}
	g.build()
	return g
}

// WithBeatMap returns a copy of the grid using explicit beat timestamps
// instead of uniform spacing. The map drives beat lookup, precount spacing,
// and chord placement.
func (g *Grid) WithBeatMap(times []float64) *Grid {
	ng := *g
	ng.beatMap = append([]float64(nil), times...)
	sort.Float64s(ng.beatMap)
	ng.build()
	return &ng
}

// WithChords returns a copy of the grid with the given raw chord events
// quantized onto it.
func (g *Grid) WithChords(events []ChordEvent) *Grid {
	ng := *g
	ng.build()
	if len(ng.beats) == 0 {
		return &ng
	}

	if len(ng.beatMap) > 0 {
		ng.placeOnBeatMap(events)
	} else if ng.BPM > 0 {
		quantized := Quantize(events, ng.BPM, ng.BeatsPerBar, ng.Offset)
		bd := ng.BeatDuration()
		for _, ev := range quantized {
			idx := int(math.Round((ev.Time - ng.Offset) / bd))
			if idx < 0 || idx >= len(ng.beats) {
				continue
			}
			ng.beats[idx].Chord = ev.Label
			ng.beats[idx].Continuation = false
		}
	}

	// Following beats inherit the active chord as a continuation for
	// display; only the first beat of a run is the change itself.
	active := ""
	for i := range ng.beats {
		if ng.beats[i].Chord != "" && !ng.beats[i].Continuation {
			active = ng.beats[i].Chord
			continue
		}
		if active != "" {
			ng.beats[i].Chord = active
			ng.beats[i].Continuation = true
		}
	}
	return &ng
}

// placeOnBeatMap snaps chords onto the measured beat timestamps: a strong
// beat (even index within its measure) within the tolerance of the local
// beat spacing wins over the literal nearest beat. Runs of identical labels
// collapse to their first occurrence, as in Quantize.
func (g *Grid) placeOnBeatMap(events []ChordEvent) {
	evs := append([]ChordEvent(nil), events...)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time })

	last := ""
	for _, ev := range evs {
		if ev.Label == last {
			continue
		}
		idx := g.nearestBeatIndex(ev.Time)
		if idx < 0 {
			continue
		}
		if g.beats[idx].Index%2 != 0 {
			tol := strongSnapTolerance * g.beatSpacing(idx)
			bestDist := math.Inf(1)
			for _, cand := range []int{idx - 1, idx + 1} {
				if cand < 0 || cand >= len(g.beats) {
					continue
				}
				if d := math.Abs(g.beats[cand].Time - ev.Time); d <= tol && d < bestDist {
					idx, bestDist = cand, d
				}
			}
		}
		g.beats[idx].Chord = ev.Label
		g.beats[idx].Continuation = false
		last = ev.Label
	}
}

func (g *Grid) nearestBeatIndex(t float64) int {
	if len(g.beats) == 0 {
		return -1
	}
	i := sort.Search(len(g.beats), func(k int) bool { return g.beats[k].Time >= t })
	switch {
	case i == 0:
		return 0
	case i == len(g.beats):
		return len(g.beats) - 1
	case t-g.beats[i-1].Time <= g.beats[i].Time-t:
		return i - 1
	default:
		return i
	}
}

// BeatDuration returns the nominal length of one beat in seconds.
func (g *Grid) BeatDuration() float64 {
	if g.BPM <= 0 {
		return 0
	}
	return 60 / g.BPM
}

// Beats returns the grid slots in time order.
func (g *Grid) Beats() []Beat { return g.beats }

// BeatIndexAt projects a playhead position onto the grid, returning the
// index of the beat the position falls in, or -1 before the first beat.
func (g *Grid) BeatIndexAt(pos float64) int {
	if len(g.beats) == 0 || pos < g.beats[0].Time {
		return -1
	}
	idx := sort.Search(len(g.beats), func(i int) bool { return g.beats[i].Time > pos })
	return idx - 1
}

// PrecountDuration returns the exact length of an n-beat count-in. With a
// beat map present the spacing of the song's first beats is used, so a
// humanized or rubato opening counts in at its actual feel; otherwise beats
// are uniform at the nominal BPM.
func (g *Grid) PrecountDuration(beats int) time.Duration {
	if beats <= 0 || g.BPM <= 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < beats; i++ {
		total += g.beatSpacing(i)
	}
	return time.Duration(total * float64(time.Second))
}

// BeatSpacing returns the length in seconds of beat i of the song.
func (g *Grid) BeatSpacing(i int) float64 { return g.beatSpacing(i) }

func (g *Grid) beatSpacing(i int) float64 {
	if i >= 0 && i+1 < len(g.beatMap) {
		return g.beatMap[i+1] - g.beatMap[i]
	}
	return g.BeatDuration()
}

func (g *Grid) build() {
	g.beats = nil
	if len(g.beatMap) > 0 {
		for i, t := range g.beatMap {
			if g.Duration > 0 && t > g.Duration {
				break
			}
			g.beats = append(g.beats, Beat{Time: t, Measure: i / g.BeatsPerBar, Index: i % g.BeatsPerBar})
		}
		return
	}
	if g.BPM <= 0 || g.Duration <= 0 {
		return
	}
	bd := g.BeatDuration()
	for i := 0; ; i++ {
		t := g.Offset + float64(i)*bd
		if t > g.Duration {
			break
		}
		g.beats = append(g.beats, Beat{Time: t, Measure: i / g.BeatsPerBar, Index: i % g.BeatsPerBar})
	}
}
