package grid

import (
	"math"
	"sort"
)

// strongSnapTolerance is the fraction of a beat within which a chord prefers
// a strong-beat anchor over the literal nearest beat. Chord changes land on
// strong beats far more often than detectors place them there.
const strongSnapTolerance = 0.7

// Quantize snaps raw chord timestamps onto the beat grid. Each event is
// pulled to a strong beat (beat 1 or 3 in 4/4, the nearest multiple-of-two
// beat in other meters) when it falls within the tolerance, and to the
// nearest beat otherwise. The result is re-sorted and runs of identical
// labels collapse to their first occurrence. The output is deterministic for
// identical input.
func Quantize(events []ChordEvent, bpm float64, beatsPerBar int, offset float64) []ChordEvent {
	if bpm <= 0 || len(events) == 0 {
		return nil
	}
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	bd := 60 / bpm
	md := bd * float64(beatsPerBar)

	out := make([]ChordEvent, 0, len(events))
	for _, ev := range events {
		t := ev.Time - offset
		if t < 0 {
			t = 0
		}

		measure := math.Floor(t / md)
		base := measure * md

		// Strong anchors sit on even beat indices within the measure.
		snapped := math.Round(t/bd) * bd
		bestDist := math.Inf(1)
		for k := 0; 2*k < beatsPerBar; k++ {
			anchor := base + float64(2*k)*bd
			if d := math.Abs(t - anchor); d < bestDist {
				bestDist = d
				if d <= strongSnapTolerance*bd {
					snapped = anchor
				}
			}
		}

		out = append(out, ChordEvent{Time: snapped + offset, Label: ev.Label})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	// Collapse runs: only the first occurrence of a label run is a change.
	collapsed := out[:0]
	for _, ev := range out {
		if n := len(collapsed); n > 0 && collapsed[n-1].Label == ev.Label {
			continue
		}
		collapsed = append(collapsed, ev)
	}
	return collapsed
}
