package driver

import (
	"github.com/cbegin/mzmml-go/internal/bytecode"
	"github.com/cbegin/mzmml-go/internal/hw"
	"github.com/cbegin/mzmml-go/internal/z80"
)

// routine emits the per-frame subroutine of one channel. Every frame it
// advances the volume and pitch envelopes, then counts down the current
// wait or fetches opcodes until one takes time, and finally writes the
// channel volume.
type routine struct {
	a  *z80.Assembler
	ch Channel
}

func newRoutine(a *z80.Assembler, ch Channel) *routine {
	return &routine{a: a, ch: ch}
}

func (r *routine) l(name string) string { return r.ch.Name + "_" + name }

func (r *routine) aux() bool { return r.ch.Kind == KindAux }

func (r *routine) emit() {
	a := r.a
	a.Label(r.ch.Name)
	r.advanceEnvelope()
	r.advancePitch()

	a.LD(z80.A, z80.At(r.l("Ended")))
	a.OR(z80.A)
	a.JP(z80.NZ, z80.Ref(r.l("Output")))
	a.LD(z80.HL, z80.At(r.l("Wait")))
	a.LD(z80.A, z80.H)
	a.OR(z80.L)
	a.JP(z80.Z, z80.Ref(r.l("Fetch")))
	a.DEC(z80.HL)
	a.LD(z80.At(r.l("Wait")), z80.HL)
	a.JP(z80.Ref(r.l("Output")))

	r.fetch()
	r.opcodes()
	r.timed()
	r.output()
	r.subroutines()
	r.state()
}

// advanceEnvelope moves the volume envelope pointer one entry: FF holds
// the current entry, FE <offset> jumps back into the table.
func (r *routine) advanceEnvelope() {
	a := r.a
	a.LD(z80.HL, z80.At(r.l("EnvBase")))
	a.LD(z80.A, z80.H)
	a.OR(z80.L)
	a.JP(z80.Z, z80.Ref(r.l("Pitch")))
	a.LD(z80.HL, z80.At(r.l("EnvPtr")))
	a.INC(z80.HL)
	r.followSentinel("Env", "EnvBase", 1)
	a.LD(z80.At(r.l("EnvPtr")), z80.HL)
}

func (r *routine) advancePitch() {
	a := r.a
	a.Label(r.l("Pitch"))
	a.LD(z80.HL, z80.At(r.l("PitchBase")))
	a.LD(z80.A, z80.H)
	a.OR(z80.L)
	a.JP(z80.Z, z80.Ref(r.l("Tick")))
	a.LD(z80.HL, z80.At(r.l("PitchPtr")))
	a.INC(z80.HL)
	a.INC(z80.HL)
	r.followSentinel("Pitch", "PitchBase", 2)
	a.LD(z80.At(r.l("PitchPtr")), z80.HL)
	a.CALL(z80.Ref(r.l("PitchOut")))
	a.Label(r.l("Tick"))
}

// followSentinel expects HL at the next entry and leaves HL at the entry
// to use.
func (r *routine) followSentinel(prefix, base string, width int) {
	a := r.a
	a.LD(z80.A, z80.IndHL)
	a.CP(z80.Imm(tableHold))
	a.JP(z80.NZ, z80.Ref(r.l(prefix+"Loop")))
	for i := 0; i < width; i++ {
		a.DEC(z80.HL)
	}
	a.JP(z80.Ref(r.l(prefix + "Store")))
	a.Label(r.l(prefix + "Loop"))
	a.CP(z80.Imm(tableLoop))
	a.JP(z80.NZ, z80.Ref(r.l(prefix+"Store")))
	a.INC(z80.HL)
	a.LD(z80.E, z80.IndHL)
	a.INC(z80.HL)
	a.LD(z80.D, z80.IndHL)
	a.LD(z80.HL, z80.At(r.l(base)))
	a.ADD(z80.HL, z80.DE)
	a.Label(r.l(prefix + "Store"))
}

// fetch reads opcodes through DE and dispatches with a compare chain.
func (r *routine) fetch() {
	a := r.a
	a.Label(r.l("Fetch"))
	a.LD(z80.DE, z80.At(r.l("Pos")))
	a.Label(r.l("Next"))
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	for _, op := range []struct {
		code  bytecode.Opcode
		label string
	}{
		{bytecode.OpTone, "Tone"},
		{bytecode.OpRest, "Rest"},
		{bytecode.OpVolume, "Volume"},
		{bytecode.OpEnvelope, "Envelope"},
		{bytecode.OpPitchEnvelope, "PitchEnvelope"},
		{bytecode.OpNoise, "Noise"},
		{bytecode.OpSyncNoise, "SyncNoise"},
		{bytecode.OpLoopMarker, "Marker"},
	} {
		a.CP(z80.Imm(byte(op.code)))
		a.JP(z80.Z, z80.Ref(r.l(op.label)))
	}

	// END, or anything unknown
	a.LD(z80.HL, z80.At(r.l("Loop")))
	a.LD(z80.A, z80.H)
	a.OR(z80.L)
	a.JP(z80.NZ, z80.Ref(r.l("Refold")))
	a.LD(z80.A, z80.Imm(1))
	a.LD(z80.At(r.l("Ended")), z80.A)
	a.XOR(z80.A)
	a.LD(z80.At(r.l("On")), z80.A)
	a.JP(z80.Ref(r.l("Output")))

	// a second END with nothing timed since the marker pins the wait
	a.Label(r.l("Refold"))
	a.EXDEHL()
	a.LD(z80.A, z80.At(r.l("Looped")))
	a.OR(z80.A)
	a.JP(z80.NZ, z80.Ref(r.l("Pin")))
	a.LD(z80.A, z80.Imm(1))
	a.LD(z80.At(r.l("Looped")), z80.A)
	a.JP(z80.Ref(r.l("Next")))
	a.Label(r.l("Pin"))
	a.XOR(z80.A)
	a.LD(z80.At(r.l("Looped")), z80.A)
	a.LD(z80.At(r.l("On")), z80.A)
	a.LD(z80.HL, z80.Imm16(0xFFFF))
	a.LD(z80.At(r.l("Wait")), z80.HL)
	a.LD(z80.At(r.l("Pos")), z80.DE)
	a.JP(z80.Ref(r.l("Output")))
}

func (r *routine) readFrames() {
	a := r.a
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	a.LD(z80.C, z80.A)
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	a.LD(z80.B, z80.A)
}

func (r *routine) opcodes() {
	a := r.a

	a.Label(r.l("Tone"))
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	a.LD(z80.At(r.l("Reg")), z80.A)
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	a.LD(z80.At(r.l("RegHi")), z80.A)
	r.readFrames()
	a.AND(z80.Imm(byte(bytecode.Continuation >> 8)))
	a.JP(z80.Z, z80.Ref(r.l("Onset")))
	a.LD(z80.A, z80.At(r.l("On")))
	a.OR(z80.A)
	a.JP(z80.NZ, z80.Ref(r.l("ToneWrite")))
	a.Label(r.l("Onset"))
	a.CALL(z80.Ref(r.l("NoteOn")))
	a.Label(r.l("ToneWrite"))
	// a running pitch envelope owns the divider
	a.LD(z80.HL, z80.At(r.l("PitchBase")))
	a.LD(z80.A, z80.H)
	a.OR(z80.L)
	a.JP(z80.NZ, z80.Ref(r.l("Timed")))
	a.CALL(z80.Ref(r.l("ToneOut")))
	a.JP(z80.Ref(r.l("Timed")))

	a.Label(r.l("Rest"))
	r.readFrames()
	a.XOR(z80.A)
	a.LD(z80.At(r.l("On")), z80.A)
	a.JP(z80.Ref(r.l("Timed")))

	a.Label(r.l("Volume"))
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	a.LD(z80.At(r.l("Vol")), z80.A)
	a.JP(z80.Ref(r.l("Next")))

	r.selectTable("Envelope", "EnvTable", "EnvBase", "EnvPtr")
	r.selectTable("PitchEnvelope", "PitchTable", "PitchBase", "PitchPtr")

	a.Label(r.l("Noise"))
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	a.OUT(r.ch.Port)
	r.readFrames()
	a.CALL(z80.Ref(r.l("NoteOn")))
	a.JP(z80.Ref(r.l("Timed")))

	// control byte, then the tone 2 divider that clocks the noise
	a.Label(r.l("SyncNoise"))
	for i := 0; i < 3; i++ {
		a.LD(z80.A, z80.IndDE)
		a.INC(z80.DE)
		a.OUT(r.ch.Port)
	}
	r.readFrames()
	a.CALL(z80.Ref(r.l("NoteOn")))
	a.JP(z80.Ref(r.l("Timed")))

	a.Label(r.l("Marker"))
	a.LD(z80.At(r.l("Loop")), z80.DE)
	a.JP(z80.Ref(r.l("Next")))
}

// selectTable handles ENV and PENV: FF clears the table, anything else is
// an index into the address table at index.
func (r *routine) selectTable(op, index, base, ptr string) {
	a := r.a
	a.Label(r.l(op))
	a.LD(z80.A, z80.IndDE)
	a.INC(z80.DE)
	a.LD(z80.HL, z80.Imm16(0))
	a.CP(z80.Imm(bytecode.Off))
	a.JP(z80.Z, z80.Ref(r.l(op+"Set")))
	a.PUSH(z80.DE)
	a.LD(z80.L, z80.A)
	a.LD(z80.H, z80.Imm(0))
	a.ADD(z80.HL, z80.HL)
	a.LD(z80.DE, z80.Ref(index))
	a.ADD(z80.HL, z80.DE)
	a.LD(z80.E, z80.IndHL)
	a.INC(z80.HL)
	a.LD(z80.D, z80.IndHL)
	a.EXDEHL()
	a.POP(z80.DE)
	a.Label(r.l(op + "Set"))
	a.LD(z80.At(r.l(base)), z80.HL)
	a.LD(z80.At(r.l(ptr)), z80.HL)
	a.JP(z80.Ref(r.l("Next")))
}

// timed stores BC (continuation bit masked) less one as the wait, the
// first frame being the current one.
func (r *routine) timed() {
	a := r.a
	a.Label(r.l("Timed"))
	a.LD(z80.A, z80.B)
	a.AND(z80.Imm(byte(bytecode.MaxFrames >> 8)))
	a.LD(z80.B, z80.A)
	a.OR(z80.C)
	a.JP(z80.Z, z80.Ref(r.l("TimedStore")))
	a.DEC(z80.BC)
	a.Label(r.l("TimedStore"))
	a.LD(z80.At(r.l("Wait")), z80.BC)
	a.XOR(z80.A)
	a.LD(z80.At(r.l("Looped")), z80.A)
	a.LD(z80.At(r.l("Pos")), z80.DE)
}

// output writes the effective volume: silent when the note is off,
// otherwise the envelope level merged into the channel's volume byte.
func (r *routine) output() {
	a := r.a
	a.Label(r.l("Output"))
	a.LD(z80.A, z80.At(r.l("On")))
	a.OR(z80.A)
	a.JP(z80.Z, z80.Ref(r.l("Silent")))
	a.LD(z80.HL, z80.At(r.l("EnvBase")))
	a.LD(z80.A, z80.H)
	a.OR(z80.L)
	a.JP(z80.Z, z80.Ref(r.l("Plain")))
	a.LD(z80.HL, z80.At(r.l("EnvPtr")))
	a.LD(z80.B, z80.IndHL)
	a.LD(z80.A, z80.Imm(hw.Silent))
	a.SUB(z80.B)
	a.LD(z80.B, z80.A)
	a.LD(z80.A, z80.At(r.l("Vol")))
	a.AND(z80.Imm(0xF0))
	a.OR(z80.B)
	a.JP(z80.Ref(r.l("Write")))
	a.Label(r.l("Plain"))
	a.LD(z80.A, z80.At(r.l("Vol")))
	a.JP(z80.Ref(r.l("Write")))
	a.Label(r.l("Silent"))
	a.LD(z80.A, z80.At(r.l("Vol")))
	a.OR(z80.Imm(0x0F))
	a.Label(r.l("Write"))
	if !r.aux() {
		a.OUT(r.ch.Port)
		a.RET()
		return
	}
	// the beeper only has a gate
	a.AND(z80.Imm(0x0F))
	a.CP(z80.Imm(0x0F))
	a.LD(z80.A, z80.Imm(0))
	a.JP(z80.Z, z80.Ref(r.l("Gate")))
	a.INC(z80.A)
	a.Label(r.l("Gate"))
	a.LD(z80.Addr(hw.BeeperGate), z80.A)
	a.RET()
}

func (r *routine) subroutines() {
	a := r.a

	// NoteOn restarts both envelopes at their first entry.
	a.Label(r.l("NoteOn"))
	a.LD(z80.A, z80.Imm(1))
	a.LD(z80.At(r.l("On")), z80.A)
	a.LD(z80.HL, z80.At(r.l("EnvBase")))
	a.LD(z80.At(r.l("EnvPtr")), z80.HL)
	a.LD(z80.HL, z80.At(r.l("PitchBase")))
	a.LD(z80.At(r.l("PitchPtr")), z80.HL)
	a.LD(z80.A, z80.H)
	a.OR(z80.L)
	a.RET(z80.Z)

	// PitchOut writes the pitch table entry at PitchPtr.
	a.Label(r.l("PitchOut"))
	a.LD(z80.HL, z80.At(r.l("PitchPtr")))
	if r.aux() {
		a.INC(z80.HL)
		a.LD(z80.A, z80.IndHL)
		a.LD(z80.Addr(hw.Timer0Data), z80.A)
		a.DEC(z80.HL)
		a.LD(z80.A, z80.IndHL)
		a.LD(z80.Addr(hw.Timer0Data), z80.A)
	} else {
		a.LD(z80.A, z80.IndHL)
		a.OUT(r.ch.Port)
		a.INC(z80.HL)
		a.LD(z80.A, z80.IndHL)
		a.OUT(r.ch.Port)
	}
	a.RET()

	a.Label(r.l("ToneOut"))
	a.LD(z80.A, z80.At(r.l("Reg")))
	r.writeRegister()
	a.LD(z80.A, z80.At(r.l("RegHi")))
	r.writeRegister()
	a.RET()
}

func (r *routine) writeRegister() {
	if r.aux() {
		r.a.LD(z80.Addr(hw.Timer0Data), z80.A)
		return
	}
	r.a.OUT(r.ch.Port)
}

func (r *routine) state() {
	a := r.a
	a.Label(r.l("Pos"))
	a.DW(z80.Ref(songLabel(r.ch.Name)))
	for _, name := range []string{"Loop", "Wait", "EnvBase", "EnvPtr", "PitchBase", "PitchPtr"} {
		a.Label(r.l(name))
		a.DW(z80.Imm16(0))
	}
	for _, name := range []string{"On", "Ended", "Looped", "Reg", "RegHi"} {
		a.Label(r.l(name))
		a.DB(0)
	}
	a.Label(r.l("Vol"))
	a.DB(hw.VolumeByte(r.ch.Index, hw.Silent))
}
