package timeline

import (
	"math"
	"sort"
)

// Highlight maps a span of playback time to the source text that produced it.
type Highlight struct {
	StartMs      float64
	EndMs        float64
	SourceOffset int
	SourceLength int
}

// Highlights lists one entry per audible event, in time order.
func Highlights(events []NoteEvent) []Highlight {
	var out []Highlight
	now := 0.0
	for _, ev := range events {
		if !ev.IsRest() && ev.SourceLength > 0 {
			out = append(out, Highlight{
				StartMs:      now,
				EndMs:        now + ev.DurationMs,
				SourceOffset: ev.SourceOffset,
				SourceLength: ev.SourceLength,
			})
		}
		now += ev.DurationMs
	}
	return out
}

// HighlightAt returns the entry sounding at ms, or false during rests.
func HighlightAt(hs []Highlight, ms float64) (Highlight, bool) {
	i := sort.Search(len(hs), func(i int) bool { return hs[i].EndMs > ms })
	if i < len(hs) && hs[i].StartMs <= ms {
		return hs[i], true
	}
	return Highlight{}, false
}

// Position folds an elapsed playback time into the song, wrapping into the
// loop section when the song loops.
func (r *Result) Position(elapsedMs float64) float64 {
	if elapsedMs < r.DurationMs || !r.Loops() {
		return elapsedMs
	}
	span := r.DurationMs - r.LoopStartMs
	if span <= 0 {
		return r.LoopStartMs
	}
	return r.LoopStartMs + math.Mod(elapsedMs-r.DurationMs, span)
}
