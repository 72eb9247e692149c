// Package driver generates the Z80 program that plays compiled channel
// programs on a real MZ-1500.
package driver

import (
	"errors"
	"fmt"

	"github.com/cbegin/mzmml-go/internal/bytecode"
	"github.com/cbegin/mzmml-go/internal/hw"
	"github.com/cbegin/mzmml-go/internal/mml"
	"github.com/cbegin/mzmml-go/internal/translate"
	"github.com/cbegin/mzmml-go/internal/z80"
)

const (
	Origin = 0x1200
	// interruptVector holds the handler address the monitor jumps through.
	interruptVector = 0x1039

	// ImageSize is a 320x200 picture as three 8000-byte PCG planes.
	ImageSize = 3 * planeSize
	planeSize = 8000

	tableLoop = 0xFE
	tableHold = 0xFF
)

var ErrImageSize = errors.New(translate.From("invalid image payload"))

type Kind int

const (
	KindTone Kind = iota
	KindNoise
	KindAux
)

// Channel is one compiled track and the hardware it drives.
type Channel struct {
	Name string
	Kind Kind
	// Port is the PSG I/O port; ignored for the beeper.
	Port byte
	// Index is the PSG channel select used in volume bytes.
	Index   int
	Program []byte
}

type Song struct {
	Channels []Channel
	Volume   map[int]*mml.Envelope
	Pitch    []bytecode.PitchTable
	// Image is an optional PCG picture shown while playing.
	Image []byte
}

type Generator struct {
	song Song
	asm  *z80.Assembler
}

func NewGenerator(song Song) *Generator {
	return &Generator{song: song}
}

// Build assembles the complete driver: setup, interrupt handler, one
// routine per channel, envelope tables and channel programs.
func (g *Generator) Build() ([]byte, error) {
	if g.song.Image != nil && len(g.song.Image) != ImageSize {
		return nil, fmt.Errorf("%w: %s", ErrImageSize, translate.From("image payload must be %d bytes, got %d", ImageSize, len(g.song.Image)))
	}
	a := z80.NewAssembler(Origin)
	g.asm = a

	g.setup()
	g.handler()
	for _, ch := range g.song.Channels {
		newRoutine(a, ch).emit()
	}
	g.volumeTables()
	g.pitchTables()
	for _, ch := range g.song.Channels {
		a.Label(songLabel(ch.Name))
		a.DB(ch.Program...)
	}
	if g.song.Image != nil {
		g.imageData()
	}
	return a.Build()
}

// Address returns a label's address after Build.
func (g *Generator) Address(label string) (uint16, bool) {
	if g.asm == nil {
		return 0, false
	}
	return g.asm.Address(label)
}

func songLabel(name string) string { return name + "_DataSong" }

func (g *Generator) setup() {
	a := g.asm
	a.Label("main")
	a.DI()
	a.IM1()

	a.LD(z80.HL, z80.Imm16(interruptVector))
	a.LD(z80.DE, z80.Ref("sound"))
	a.LD(z80.IndHL, z80.E)
	a.INC(z80.HL)
	a.LD(z80.IndHL, z80.D)

	// 8253: counter 2 mode 0 and counter 1 mode 2 chained into the 60 Hz tick
	a.LD(z80.HL, z80.Imm16(hw.TimerControl))
	a.LD(z80.IndHL, z80.Imm(0xB0))
	a.LD(z80.IndHL, z80.Imm(0x74))
	a.DEC(z80.HL)
	a.LD(z80.IndHL, z80.Imm(0x83))
	a.LD(z80.IndHL, z80.Imm(0x00))
	a.DEC(z80.HL)
	a.LD(z80.IndHL, z80.Imm(0x02))
	a.LD(z80.IndHL, z80.Imm(0x00))

	a.LD(z80.A, z80.Imm(0x05))
	a.LD(z80.Addr(hw.InterruptMask), z80.A)

	// beeper: gate enabled, counter 0 in square-wave mode
	a.LD(z80.A, z80.Imm(0x01))
	a.LD(z80.HL, z80.Imm16(hw.BeeperGate))
	a.LD(z80.IndHL, z80.A)
	a.LD(z80.HL, z80.Imm16(hw.TimerControl))
	a.LD(z80.IndHL, z80.Imm(0x36))

	g.silence()
	if g.song.Image != nil {
		g.loadImage()
	} else {
		g.banner()
	}

	a.EI()
	a.Label("loop")
	a.JP(z80.Ref("loop"))
}

// silence mutes every channel of both PSGs.
func (g *Generator) silence() {
	a := g.asm
	for _, port := range []byte{hw.PSG1Port, hw.PSG2Port} {
		for ch := 0; ch < 4; ch++ {
			a.LD(z80.A, z80.Imm(hw.VolumeByte(ch, hw.Silent)))
			a.OUT(port)
		}
	}
	a.XOR(z80.A)
	a.LD(z80.Addr(hw.BeeperGate), z80.A)
}

func (g *Generator) handler() {
	a := g.asm
	a.Label("sound")
	for _, r := range []z80.Operand{z80.AF, z80.BC, z80.DE, z80.HL} {
		a.PUSH(r)
	}
	a.LD(z80.HL, z80.Imm16(hw.Timer2Data))
	a.LD(z80.IndHL, z80.Imm(0x83))
	a.LD(z80.IndHL, z80.Imm(0x00))
	for _, ch := range g.song.Channels {
		a.CALL(z80.Ref(ch.Name))
	}
	for _, r := range []z80.Operand{z80.HL, z80.DE, z80.BC, z80.AF} {
		a.POP(r)
	}
	a.EI()
	a.RET()
}

// volumeTables emits an address table indexed by envelope id, then each
// envelope as levels followed by FE <offset> or FF.
func (g *Generator) volumeTables() {
	a := g.asm
	maxID := -1
	for id, env := range g.song.Volume {
		if env != nil && len(env.Values) > 0 && id > maxID {
			maxID = id
		}
	}
	a.Label("EnvTable")
	for id := 0; id <= maxID; id++ {
		if env := g.song.Volume[id]; env != nil && len(env.Values) > 0 {
			a.DW(z80.Ref(fmt.Sprintf("Env_%d", id)))
		} else {
			a.DW(z80.Imm16(0))
		}
	}
	for id := 0; id <= maxID; id++ {
		env := g.song.Volume[id]
		if env == nil || len(env.Values) == 0 {
			continue
		}
		a.Label(fmt.Sprintf("Env_%d", id))
		a.DB(VolumeTable(env)...)
	}
}

func (g *Generator) pitchTables() {
	a := g.asm
	a.Label("PitchTable")
	for i := range g.song.Pitch {
		a.DW(z80.Ref(fmt.Sprintf("Pitch_%d", i)))
	}
	for i, pt := range g.song.Pitch {
		a.Label(fmt.Sprintf("Pitch_%d", i))
		a.DB(PitchTableBytes(pt)...)
	}
}

// VolumeTable encodes envelope levels for the driver.
func VolumeTable(env *mml.Envelope) []byte {
	out := make([]byte, 0, len(env.Values)+3)
	for _, v := range env.Values {
		out = append(out, byte(hw.Clamp(v, 0, hw.MaxVolume)))
	}
	return appendSentinel(out, env.LoopIndex, len(env.Values), 1)
}

// PitchTableBytes encodes a resolved pitch table. PSG entries are the two
// register bytes as written to the port; beeper entries are the divider
// high byte first so no entry starts with a sentinel.
func PitchTableBytes(pt bytecode.PitchTable) []byte {
	out := make([]byte, 0, 2*len(pt.Registers)+3)
	for _, reg := range pt.Registers {
		if pt.Aux {
			reg = hw.Clamp(reg, 1, hw.MaxAuxRegister)
			out = append(out, byte(reg>>8), byte(reg))
		} else {
			b1, b2 := hw.ToneBytes(pt.Channel, hw.Clamp(reg, 1, hw.MaxToneRegister))
			out = append(out, b1, b2)
		}
	}
	return appendSentinel(out, pt.LoopIndex, len(pt.Registers), 2)
}

func appendSentinel(out []byte, loop, n, width int) []byte {
	if loop < 0 || loop >= n-1 {
		return append(out, tableHold)
	}
	off := loop * width
	return append(out, tableLoop, byte(off), byte(off>>8))
}
