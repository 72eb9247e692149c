// Package psg interprets channel opcode streams in software, emulating the
// SN76489 tone and noise generators and the 8253 beeper.
package psg

import (
	"math"

	"github.com/cbegin/mzmml-go/internal/bytecode"
	"github.com/cbegin/mzmml-go/internal/hw"
	"github.com/cbegin/mzmml-go/internal/mml"
)

type Params struct {
	// ChannelGain is the peak amplitude of one channel at full volume.
	ChannelGain float64
	NoiseSeed   uint16
	FrameRate   int
}

func DefaultParams() Params {
	return Params{
		ChannelGain: 0.2,
		NoiseSeed:   0x4000,
		FrameRate:   hw.FrameRate,
	}
}

type Kind int

const (
	KindTone Kind = iota
	KindNoise
	KindAux
)

// Tables holds the envelope data referenced by ENV and PENV operands.
type Tables struct {
	Volume map[int]*mml.Envelope
	Pitch  []bytecode.PitchTable
}

// pinnedWait is loaded when END is reached twice with nothing timed in
// between, so an empty loop cannot spin within one frame.
const pinnedWait = 0xFFFF

// VM plays one channel. It is not safe for concurrent use; the Mixer
// serializes access.
type VM struct {
	program    []byte
	kind       Kind
	tables     *Tables
	sampleRate int
	frameRate  int
	amp        [16]float64

	pc     int
	wait   int
	loopPC int
	looped bool
	ended  bool
	noteOn bool
	vol    int
	acc    int
	frames int64

	env     *mml.Envelope
	envPos  int
	level   int
	penv    *bytecode.PitchTable
	penvPos int

	reg   int
	phase float64

	lfsr      uint16
	seed      uint16
	white     bool
	noiseRate hw.NoiseRate
}

func NewVM(program []byte, kind Kind, tables *Tables, sampleRate int, params Params) *VM {
	if tables == nil {
		tables = &Tables{}
	}
	if params.FrameRate <= 0 {
		params.FrameRate = hw.FrameRate
	}
	if params.NoiseSeed == 0 {
		params.NoiseSeed = 0x4000
	}
	v := &VM{
		program:    program,
		kind:       kind,
		tables:     tables,
		sampleRate: sampleRate,
		frameRate:  params.FrameRate,
		loopPC:     -1,
		vol:        hw.Silent,
		lfsr:       params.NoiseSeed,
		seed:       params.NoiseSeed,
		white:      true,
	}
	for i := 0; i < 15; i++ {
		v.amp[i] = params.ChannelGain * math.Pow(10, -2*float64(i)/20)
	}
	return v
}

// Ended reports whether the program ran off its END without a loop.
func (v *VM) Ended() bool { return v.ended }

// Frames is the number of 60 Hz ticks executed so far.
func (v *VM) Frames() int64 { return v.frames }

// Attenuation is the 4-bit level currently driving the output, 15 = silent.
func (v *VM) Attenuation() int {
	if !v.noteOn {
		return hw.Silent
	}
	atten := v.vol
	if v.env != nil {
		atten = hw.Attenuation(v.level)
	}
	if v.kind == KindAux && atten < hw.Silent {
		// the beeper is either gated on or off
		atten = 0
	}
	return atten
}

// Register is the divider currently loaded in the oscillator.
func (v *VM) Register() int { return v.reg }

// Render fills dst with mono samples.
func (v *VM) Render(dst []float32) {
	for i := range dst {
		if v.acc <= 0 {
			v.Tick()
			v.acc += v.sampleRate
		}
		v.acc -= v.frameRate
		dst[i] = float32(v.sample())
	}
}

// Tick advances the channel by one frame: envelope, pitch envelope, then
// the wait counter or the next instruction.
func (v *VM) Tick() {
	v.frames++
	v.advanceEnvelope()
	v.advancePitch()
	if v.ended {
		return
	}
	if v.wait > 0 {
		v.wait--
		return
	}
	v.fetch()
}

func (v *VM) advanceEnvelope() {
	if v.env == nil || len(v.env.Values) == 0 {
		return
	}
	v.envPos = nextPos(v.envPos, len(v.env.Values), v.env.LoopIndex)
	v.level = v.env.Values[v.envPos]
}

func (v *VM) advancePitch() {
	if v.penv == nil || len(v.penv.Registers) == 0 {
		return
	}
	v.penvPos = nextPos(v.penvPos, len(v.penv.Registers), v.penv.LoopIndex)
	v.reg = v.penv.Registers[v.penvPos]
}

func nextPos(pos, n, loop int) int {
	pos++
	if pos < n {
		return pos
	}
	if loop >= 0 && loop < n {
		return loop
	}
	return n - 1
}

func (v *VM) fetch() {
	for {
		if v.pc >= len(v.program) {
			v.stop()
			return
		}
		op := bytecode.Opcode(v.program[v.pc])
		n := bytecode.OperandSize(op)
		if n < 0 || v.pc+1+n > len(v.program) {
			panic("psg: malformed program")
		}
		args := v.program[v.pc+1 : v.pc+1+n]
		v.pc += 1 + n

		switch op {
		case bytecode.OpTone:
			w := int(args[2]) | int(args[3])<<8
			if v.kind == KindAux {
				v.reg = int(args[0]) | int(args[1])<<8
			} else {
				v.reg = hw.ToneFromBytes(args[0], args[1])
			}
			if w&bytecode.Continuation == 0 || !v.noteOn {
				v.onset()
			} else if v.penv != nil {
				v.reg = v.penv.Registers[v.penvPos]
			}
			v.timed(w & bytecode.MaxFrames)
			return
		case bytecode.OpRest:
			v.noteOn = false
			v.timed(int(args[0]) | int(args[1])<<8)
			return
		case bytecode.OpVolume:
			v.vol = int(args[0] & 0x0F)
		case bytecode.OpEnvelope:
			v.env = nil
			if e, ok := v.tables.Volume[int(args[0])]; ok && args[0] != bytecode.Off && len(e.Values) > 0 {
				v.env = e
			}
		case bytecode.OpPitchEnvelope:
			v.penv = nil
			if idx := int(args[0]); args[0] != bytecode.Off && idx < len(v.tables.Pitch) {
				v.penv = &v.tables.Pitch[idx]
			}
		case bytecode.OpNoise:
			v.setNoise(args[0])
			v.onset()
			v.timed(int(args[1]) | int(args[2])<<8)
			return
		case bytecode.OpSyncNoise:
			v.setNoise(args[0])
			v.reg = hw.ToneFromBytes(args[1], args[2])
			v.onset()
			v.timed(int(args[3]) | int(args[4])<<8)
			return
		case bytecode.OpLoopMarker:
			v.loopPC = v.pc
		case bytecode.OpEnd:
			if v.loopPC < 0 {
				v.stop()
				return
			}
			if v.looped {
				v.noteOn = false
				v.wait = pinnedWait
				v.looped = false
				v.pc = v.loopPC
				return
			}
			v.pc = v.loopPC
			v.looped = true
		}
	}
}

// onset starts a note and seeds both envelopes so the first frame already
// uses their first entries.
func (v *VM) onset() {
	v.noteOn = true
	v.envPos = 0
	if v.env != nil {
		v.level = v.env.Values[0]
	}
	v.penvPos = 0
	if v.penv != nil && len(v.penv.Registers) > 0 {
		v.reg = v.penv.Registers[0]
	}
}

func (v *VM) timed(frames int) {
	v.looped = false
	v.wait = max(frames-1, 0)
}

func (v *VM) stop() {
	v.ended = true
	v.noteOn = false
}

func (v *VM) setNoise(ctrl byte) {
	mode, rate := hw.DecodeNoiseByte(ctrl)
	v.white = mode == hw.WhiteNoise
	v.noiseRate = rate
	// writing the noise register restarts the shift register
	v.lfsr = v.seed
}

func (v *VM) frequency() float64 {
	switch {
	case v.kind == KindNoise && v.noiseRate == hw.NoiseRateTone2:
		return 2 * hw.RegisterFrequency(v.reg, false)
	case v.kind == KindNoise:
		return hw.NoiseShiftFrequency(v.noiseRate)
	case v.reg <= 0:
		return hw.RegisterFrequency(hw.MaxToneRegister+1, v.kind == KindAux)
	}
	return hw.RegisterFrequency(v.reg, v.kind == KindAux)
}

func (v *VM) sample() float64 {
	atten := v.Attenuation()
	if atten >= hw.Silent {
		return 0
	}
	amp := v.amp[atten]
	v.phase += v.frequency() / float64(v.sampleRate)
	if v.kind == KindNoise {
		for v.phase >= 1 {
			v.phase--
			v.shift()
		}
		if v.lfsr&1 == 1 {
			return amp
		}
		return -amp
	}
	v.phase -= math.Floor(v.phase)
	if v.phase < 0.5 {
		return amp
	}
	return -amp
}

func (v *VM) shift() {
	fb := v.lfsr & 1
	if v.white {
		fb ^= (v.lfsr >> 1) & 1
	}
	v.lfsr = v.lfsr>>1 | fb<<14
}
