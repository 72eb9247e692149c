package bytecode

import (
	"errors"
	"math"

	"github.com/cbegin/mzmml-go/internal/hw"
	"github.com/cbegin/mzmml-go/internal/mml"
	"github.com/cbegin/mzmml-go/internal/timeline"
	"github.com/cbegin/mzmml-go/internal/translate"
)

var ErrTooManyPitchTables = errors.New(translate.From("too many pitch envelope tables"))

// PitchTable is a pitch envelope resolved to absolute dividers for one note.
type PitchTable struct {
	Registers []int
	LoopIndex int
	Channel   int
	Aux       bool
}

type pitchKey struct {
	base     int
	envelope int
	channel  int
	aux      bool
	detune   int
}

// Compiler turns note events into opcode streams. The pitch table cache
// belongs to the instance and is shared by every track it compiles.
type Compiler struct {
	volume map[int]*mml.Envelope
	pitch  map[int]*mml.Envelope
	tables []PitchTable
	index  map[pitchKey]int
}

func NewCompiler(volume, pitch map[int]*mml.Envelope) *Compiler {
	return &Compiler{
		volume: volume,
		pitch:  pitch,
		index:  map[pitchKey]int{},
	}
}

// PitchTables returns every table resolved so far; PENV operands index into it.
func (c *Compiler) PitchTables() []PitchTable {
	return c.tables
}

const unknown = -1

type track struct {
	c       *Compiler
	out     []byte
	channel int
	aux     bool
	noise   bool

	vol  int
	env  int
	penv int

	release     []int
	releaseFrom int
	releasing   bool

	lastTone  [2]byte
	lastNoise byte
}

// CompileTrack compiles one channel. channel is the PSG channel index
// (3 selects the noise generator); aux selects the 8253 beeper.
func (c *Compiler) CompileTrack(events []timeline.NoteEvent, channel int, aux bool) ([]byte, error) {
	t := &track{
		c:       c,
		channel: channel,
		aux:     aux,
		noise:   !aux && channel == hw.NoiseSelect,
		vol:     unknown,
		env:     int(Off),
		penv:    int(Off),
	}

	var nowMs float64
	emitted := 0
	for _, ev := range events {
		if ev.LoopPoint {
			t.out = append(t.out, byte(OpLoopMarker))
			// state after the marker must not depend on what ran before the jump back
			t.vol, t.env, t.penv = unknown, unknown, unknown
		}
		endFrame := frames(nowMs + ev.DurationMs)
		gateEnd := frames(nowMs + ev.GateMs)
		nowMs += ev.DurationMs
		if ev.DurationMs <= 0 {
			continue
		}

		total := max(endFrame-emitted, 1)
		gate := min(gateEnd-emitted, total)
		if !ev.IsRest() && ev.GateMs > 0 && gate < 1 {
			gate = 1
		}
		emitted += total

		if ev.IsRest() || gate <= 0 {
			t.silence(total)
			continue
		}
		if err := t.note(ev, gate); err != nil {
			return nil, err
		}
		if total > gate {
			t.silence(total - gate)
		}
	}
	t.out = append(t.out, byte(OpEnd))
	return t.out, nil
}

func frames(ms float64) int {
	return int(math.Round(ms * hw.FrameRate / 1000))
}

func (t *track) note(ev timeline.NoteEvent, gate int) error {
	env := t.envelopeOperand(ev.EnvelopeID)
	t.setVolume(hw.Attenuation(ev.Volume))
	t.setEnvelope(env)

	t.release, t.releaseFrom, t.releasing = nil, 0, false
	if e := t.c.volume[ev.EnvelopeID]; env != int(Off) && e.HasRelease() {
		t.release, t.releasing = e.Release, true
	}

	if t.noise {
		t.setPitchEnvelope(int(Off))
		t.noiseNote(ev, gate)
		return nil
	}

	reg := t.register(ev.Frequency)
	penv := int(Off)
	if ev.SweepPerTick == 0 {
		var err error
		if penv, err = t.c.pitchTable(ev, reg, t.channel, t.aux); err != nil {
			return err
		}
	}
	t.setPitchEnvelope(penv)

	if ev.SweepPerTick == 0 {
		t.tone(reg, gate, false)
		return nil
	}
	limit := hw.MaxToneRegister
	if t.aux {
		limit = hw.MaxAuxRegister
	}
	for f := 0; f < gate; f++ {
		t.tone(hw.Clamp(reg+f*ev.SweepPerTick, 1, limit), 1, f > 0)
	}
	return nil
}

func (t *track) noiseNote(ev timeline.NoteEvent, gate int) {
	mode := hw.NoiseMode(ev.NoiseMode)
	if ev.IntegrateNoise == 1 {
		ctrl := hw.NoiseByte(mode, hw.NoiseRateTone2)
		b1, b2 := hw.ToneBytes(2, hw.ToneRegister(ev.Frequency))
		t.lastNoise, t.lastTone = ctrl, [2]byte{b1, b2}
		for gate > 0 {
			n := min(gate, MaxFrames)
			t.out = append(t.out, byte(OpSyncNoise), ctrl, b1, b2, byte(n), byte(n>>8))
			gate -= n
		}
		return
	}
	ctrl := hw.NoiseByte(mode, hw.NoiseRateFor(ev.Frequency))
	t.lastNoise, t.lastTone = ctrl, [2]byte{}
	t.noiseFrames(ctrl, gate)
}

func (t *track) noiseFrames(ctrl byte, n int) {
	for n > 0 {
		k := min(n, MaxFrames)
		t.out = append(t.out, byte(OpNoise), ctrl, byte(k), byte(k>>8))
		n -= k
	}
}

// tone emits a TONE for n frames, splitting waits that do not fit 15 bits.
func (t *track) tone(reg, n int, cont bool) {
	var b1, b2 byte
	if t.aux {
		b1, b2 = byte(reg), byte(reg>>8)
	} else {
		b1, b2 = hw.ToneBytes(t.channel, reg)
	}
	t.toneBytes(b1, b2, n, cont)
}

func (t *track) toneBytes(b1, b2 byte, n int, cont bool) {
	t.lastTone = [2]byte{b1, b2}
	for n > 0 {
		k := min(n, MaxFrames)
		w := k
		if cont {
			w |= Continuation
		}
		t.out = append(t.out, byte(OpTone), b1, b2, byte(w), byte(w>>8))
		n -= k
		cont = true
	}
}

// silence fills n frames after a note: the release tail of the last
// envelope if one is still running, then a plain rest.
func (t *track) silence(n int) {
	for n > 0 && t.releasing {
		if t.releaseFrom >= len(t.release) {
			t.releasing = false
			break
		}
		t.setEnvelope(int(Off))
		t.setVolume(hw.Attenuation(t.release[t.releaseFrom]))
		t.releaseFrom++
		if t.noise {
			if t.lastTone != ([2]byte{}) {
				t.out = append(t.out, byte(OpSyncNoise), t.lastNoise, t.lastTone[0], t.lastTone[1], 1, 0)
			} else {
				t.noiseFrames(t.lastNoise, 1)
			}
		} else {
			t.toneBytes(t.lastTone[0], t.lastTone[1], 1, true)
		}
		n--
	}
	for n > 0 {
		k := min(n, 0xFFFF)
		t.out = append(t.out, byte(OpRest), byte(k), byte(k>>8))
		n -= k
	}
}

func (t *track) setVolume(atten int) {
	if t.vol == atten {
		return
	}
	t.vol = atten
	t.out = append(t.out, byte(OpVolume), hw.VolumeByte(t.channel, atten))
}

func (t *track) setEnvelope(id int) {
	if t.env == id {
		return
	}
	t.env = id
	t.out = append(t.out, byte(OpEnvelope), byte(id))
}

func (t *track) setPitchEnvelope(index int) {
	if t.penv == index {
		return
	}
	t.penv = index
	t.out = append(t.out, byte(OpPitchEnvelope), byte(index))
}

// envelopeOperand maps an event's envelope id to an ENV operand. Undefined
// or unencodable ids play without an envelope.
func (t *track) envelopeOperand(id int) int {
	e, ok := t.c.volume[id]
	if id < 0 || id >= int(Off) || !ok || len(e.Values) == 0 {
		return int(Off)
	}
	return id
}

func (t *track) register(freq float64) int {
	if t.aux {
		return hw.AuxRegister(freq)
	}
	return hw.ToneRegister(freq)
}

// pitchTable resolves ev's pitch envelope against reg, reusing a cached
// table when the same note, envelope, channel and detune were seen before.
func (c *Compiler) pitchTable(ev timeline.NoteEvent, reg, channel int, aux bool) (int, error) {
	env, ok := c.pitch[ev.PitchEnvelopeID]
	if ev.PitchEnvelopeID < 0 || !ok || len(env.Values) == 0 {
		return int(Off), nil
	}
	undetuned := ev.Frequency / math.Pow(2, float64(ev.DetuneCents)/1200)
	limit := hw.MaxToneRegister
	base := hw.ToneRegister(undetuned)
	if aux {
		limit = hw.MaxAuxRegister
		base = hw.AuxRegister(undetuned)
	}
	detune := base - reg

	key := pitchKey{base: base, envelope: ev.PitchEnvelopeID, channel: channel, aux: aux, detune: detune}
	if i, ok := c.index[key]; ok {
		return i, nil
	}
	if len(c.tables) >= int(Off) {
		return 0, ErrTooManyPitchTables
	}
	regs := make([]int, len(env.Values))
	for i, delta := range env.Values {
		regs[i] = hw.Clamp(base-detune-delta, 0, limit)
	}
	c.tables = append(c.tables, PitchTable{
		Registers: regs,
		LoopIndex: env.LoopIndex,
		Channel:   channel,
		Aux:       aux,
	})
	c.index[key] = len(c.tables) - 1
	return len(c.tables) - 1, nil
}
