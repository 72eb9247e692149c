// Package timeline turns parsed MML commands into timed note events.
package timeline

import (
	"math"

	"github.com/cbegin/mzmml-go/internal/mml"
)

const frameMs = 1000.0 / 60.0

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// NoteEvent is one note or rest. Frequency 0 marks a rest.
type NoteEvent struct {
	Frequency       float64
	DurationMs      float64
	GateMs          float64
	Volume          int
	EnvelopeID      int
	PitchEnvelopeID int
	NoiseMode       int
	IntegrateNoise  int
	DetuneCents     int
	SweepPerTick    int
	LoopPoint       bool
	SourceOffset    int
	SourceLength    int
}

func (e NoteEvent) IsRest() bool {
	return e.Frequency <= 0 || e.Volume <= 0
}

type Config struct {
	Tempo     float64
	Length    int
	Octave    int
	Volume    int
	Quantize  int
	NoiseMode int
	MinOctave int
	MaxOctave int
	LoopCount int
}

func DefaultConfig() Config {
	return Config{
		Tempo:     120,
		Length:    4,
		Octave:    4,
		Volume:    15,
		Quantize:  7,
		NoiseMode: 1,
		MinOctave: 0,
		MaxOctave: 8,
		LoopCount: 2,
	}
}

// Selection limits expansion to commands whose source offset lies in [Start, End).
type Selection struct {
	Start int
	End   int
}

func (s *Selection) contains(offset int) bool {
	return s == nil || (offset >= s.Start && offset < s.End)
}

type Result struct {
	Events     []NoteEvent
	Beats      []float64
	DurationMs float64
	// LoopStartMs is where playback resumes after the end, or -1.
	LoopStartMs float64
}

func (r *Result) Loops() bool { return r.LoopStartMs >= 0 }

type Expander struct{ cfg Config }

func NewExpander(cfg Config) *Expander { return &Expander{cfg: cfg} }

type state struct {
	tempo         float64
	length        int
	lengthDots    int
	octave        int
	volume        int
	quantize      int
	frameQuantize int
	envelope      int
	pitchEnvelope int
	noiseMode     int
	integrate     int
	detune        int
	transpose     int
	sweep         int
	loopPending   bool
	loopOffset    int
	nowMs         float64
	beatPos       float64
}

// Expand flattens loops and walks cmds once, producing events in time order.
func (x *Expander) Expand(cmds []mml.Command, sel *Selection) *Result {
	st := &state{
		tempo:         x.cfg.Tempo,
		length:        x.cfg.Length,
		octave:        x.cfg.Octave,
		volume:        x.cfg.Volume,
		quantize:      x.cfg.Quantize,
		envelope:      -1,
		pitchEnvelope: -1,
		noiseMode:     x.cfg.NoiseMode,
	}
	res := &Result{LoopStartMs: -1}
	x.walk(flattenLoops(cmds, x.cfg.LoopCount), sel, st, res, 0)

	if st.loopPending {
		res.Events = append(res.Events, NoteEvent{
			EnvelopeID:      st.envelope,
			PitchEnvelopeID: st.pitchEnvelope,
			NoiseMode:       st.noiseMode,
			IntegrateNoise:  st.integrate,
			LoopPoint:       true,
			SourceOffset:    st.loopOffset,
			SourceLength:    1,
		})
		res.LoopStartMs = st.nowMs
	}
	res.DurationMs = st.nowMs
	return res
}

// walk processes cmds. A non-zero unitMs forces every note, rest and tie to
// that length, which is how tuplets divide their span.
func (x *Expander) walk(cmds []mml.Command, sel *Selection, st *state, res *Result, unitMs float64) {
	for _, c := range cmds {
		switch c.Kind {
		case mml.CmdTempo:
			if c.Value > 0 {
				st.tempo = float64(c.Value)
			}
		case mml.CmdFrameTempo:
			if c.Value > 0 && c.Length > 0 {
				st.tempo = 14400.0 / float64(c.Value*c.Length)
			}
		case mml.CmdOctave:
			st.octave = clampInt(c.Value, x.cfg.MinOctave, x.cfg.MaxOctave)
		case mml.CmdRelativeOctave:
			st.octave = clampInt(st.octave+c.Value, x.cfg.MinOctave, x.cfg.MaxOctave)
		case mml.CmdDefaultLength:
			if c.Length > 0 {
				st.length, st.lengthDots = c.Length, c.Dots
			}
		case mml.CmdVolume:
			st.volume = clampInt(c.Value, 0, 15)
		case mml.CmdQuantize:
			st.quantize = clampInt(c.Value, 0, 8)
			st.frameQuantize = 0
		case mml.CmdFrameQuantize:
			st.frameQuantize = max(c.Value, 0)
		case mml.CmdEnvelope:
			st.envelope = offOr(c.Value)
		case mml.CmdPitchEnvelope:
			st.pitchEnvelope = offOr(c.Value)
		case mml.CmdNoiseWave:
			st.noiseMode = c.Value
		case mml.CmdIntegrateNoise:
			st.integrate = c.Value
		case mml.CmdDetune:
			st.detune = c.Value
		case mml.CmdTranspose:
			st.transpose = c.Value
		case mml.CmdSweep:
			st.sweep = c.Value
		case mml.CmdInfiniteLoop:
			if sel.contains(c.Offset) {
				st.loopPending = true
				st.loopOffset = c.Offset
			}
		case mml.CmdTie:
			if !sel.contains(c.Offset) || len(res.Events) == 0 {
				continue
			}
			dur := unitMs
			if dur == 0 {
				dur = st.duration(c.Length, c.Dots)
			}
			last := &res.Events[len(res.Events)-1]
			last.DurationMs += dur
			last.GateMs += dur
			if c.Offset+c.TextLen > last.SourceOffset+last.SourceLength {
				last.SourceLength = c.Offset + c.TextLen - last.SourceOffset
			}
			x.advance(st, res, dur)
		case mml.CmdNote, mml.CmdRest:
			if !sel.contains(c.Offset) {
				continue
			}
			dur := unitMs
			if dur == 0 {
				dur = st.duration(c.Length, c.Dots)
			}
			x.emit(c, dur, st, res)
		case mml.CmdTuplet:
			units := countUnits(c.Inner)
			if units == 0 {
				continue
			}
			total := st.duration(c.Length, c.Dots)
			x.walk(flattenLoops(c.Inner, x.cfg.LoopCount), sel, st, res, total/float64(units))
		case mml.CmdLoopBegin, mml.CmdLoopEnd, mml.CmdVoice:
			// loops are flattened beforehand; voices have no effect on PSG output
		}
	}
}

func (x *Expander) emit(c mml.Command, dur float64, st *state, res *Result) {
	ev := NoteEvent{
		DurationMs:      dur,
		Volume:          st.volume,
		EnvelopeID:      st.envelope,
		PitchEnvelopeID: st.pitchEnvelope,
		NoiseMode:       st.noiseMode,
		IntegrateNoise:  st.integrate,
		DetuneCents:     st.detune,
		SweepPerTick:    st.sweep,
		LoopPoint:       st.loopPending,
		SourceOffset:    c.Offset,
		SourceLength:    c.TextLen,
	}
	if c.Kind == mml.CmdNote {
		ev.Frequency = Frequency(c.Note, c.Semitone+st.transpose, st.octave)
		if st.detune != 0 {
			ev.Frequency *= math.Pow(2, float64(st.detune)/1200)
		}
		ev.GateMs = st.gate(dur)
		if ev.Volume > 0 && ev.GateMs < frameMs {
			ev.GateMs = math.Min(frameMs, dur)
		}
	} else {
		ev.Volume = 0
	}
	if st.loopPending {
		res.LoopStartMs = st.nowMs
		st.loopPending = false
	}
	res.Events = append(res.Events, ev)
	x.advance(st, res, dur)
}

// advance moves the clock forward and records every quarter-note boundary passed.
func (x *Expander) advance(st *state, res *Result, dur float64) {
	quarterMs := 60000 / st.tempo
	end := st.beatPos + dur/quarterMs
	const eps = 1e-9
	for b := math.Ceil(st.beatPos - eps); b < end-eps; b++ {
		res.Beats = append(res.Beats, st.nowMs+(b-st.beatPos)*quarterMs)
	}
	st.beatPos = end
	st.nowMs += dur
}

func (st *state) duration(length, dots int) float64 {
	if length <= 0 {
		length, dots = st.length, st.lengthDots
	}
	return DurationMs(st.tempo, length, dots)
}

func (st *state) gate(dur float64) float64 {
	var g float64
	if st.frameQuantize > 0 {
		g = dur - float64(st.frameQuantize)*frameMs
	} else {
		g = dur * float64(st.quantize) / 8
	}
	return math.Max(0, math.Min(g, dur))
}

// DurationMs is the length of an n-th note at tempo; each dot adds half of
// the previous addition.
func DurationMs(tempo float64, length, dots int) float64 {
	d := (60000 / tempo * 4) / float64(length)
	add := d / 2
	for i := 0; i < dots; i++ {
		d += add
		add /= 2
	}
	return d
}

// Frequency is equal temperament with A4 = 440 Hz.
func Frequency(letter byte, semitone, octave int) float64 {
	idx := noteOffsets[letter] + semitone
	return 440 * math.Pow(2, float64(idx-9+(octave-4)*12)/12)
}

// flattenLoops unrolls [...]n blocks, innermost first. An unterminated block
// runs to the end of the sequence with the default count.
func flattenLoops(cmds []mml.Command, defaultCount int) []mml.Command {
	out := make([]mml.Command, 0, len(cmds))
	for i := 0; i < len(cmds); i++ {
		if cmds[i].Kind != mml.CmdLoopBegin {
			if cmds[i].Kind != mml.CmdLoopEnd {
				out = append(out, cmds[i])
			}
			continue
		}
		depth, j := 1, i+1
		for ; j < len(cmds); j++ {
			if cmds[j].Kind == mml.CmdLoopBegin {
				depth++
			} else if cmds[j].Kind == mml.CmdLoopEnd {
				depth--
				if depth == 0 {
					break
				}
			}
		}
		count := defaultCount
		if j < len(cmds) && cmds[j].Value > 0 {
			count = cmds[j].Value
		}
		inner := flattenLoops(cmds[i+1:min(j, len(cmds))], defaultCount)
		for n := 0; n < count; n++ {
			out = append(out, inner...)
		}
		i = j
	}
	return out
}

func countUnits(cmds []mml.Command) int {
	n := 0
	for _, c := range flattenLoops(cmds, 2) {
		switch c.Kind {
		case mml.CmdNote, mml.CmdRest, mml.CmdTie:
			n++
		}
	}
	return n
}

func offOr(id int) int {
	if id < 0 || id == 255 {
		return -1
	}
	return id
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
