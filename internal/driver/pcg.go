package driver

import "github.com/cbegin/mzmml-go/internal/z80"

const (
	vram      = 0xD000
	vramSize  = 1000
	attrRAM   = 0xD800
	pcgBank   = 0xE5
	pcgClose  = 0xE6
	priority  = 0xF0
	pcgSelect = 0x08
)

// playing is "PLAYING" in display codes.
var playing = []byte{0x10, 0x0C, 0x01, 0x19, 0x09, 0x0E, 0x07}

// banner clears text VRAM and writes PLAYING in the top-left corner so the
// machine does not look hung.
func (g *Generator) banner() {
	a := g.asm
	g.fill(vram, 0x00, 0x400)
	a.LD(z80.HL, z80.Imm16(vram))
	for i, c := range playing {
		a.LD(z80.IndHL, z80.Imm(c))
		if i < len(playing)-1 {
			a.INC(z80.HL)
		}
	}
}

// fill sets n bytes from addr to v with an overlapping LDIR.
func (g *Generator) fill(addr uint16, v byte, n uint16) {
	a := g.asm
	a.LD(z80.HL, z80.Imm16(addr))
	a.LD(z80.DE, z80.Imm16(addr+1))
	a.LD(z80.BC, z80.Imm16(n-1))
	a.LD(z80.IndHL, z80.Imm(v))
	a.LDIR()
}

var planes = []struct {
	label string
	bank  byte
}{
	{"PcgGreen", 3},
	{"PcgRed", 2},
	{"PcgBlue", 1},
}

// loadImage copies the three planes into PCG RAM, then fills the screen
// with character codes 0-999 in PCG mode.
func (g *Generator) loadImage() {
	a := g.asm
	for _, p := range planes {
		a.LD(z80.A, z80.Imm(p.bank))
		a.OUT(pcgBank)
		a.LD(z80.HL, z80.Ref(p.label))
		a.LD(z80.DE, z80.Imm16(vram))
		a.LD(z80.BC, z80.Imm16(planeSize))
		a.LDIR()
	}
	a.OUT(pcgClose)

	a.LD(z80.HL, z80.Imm16(vram))
	a.LD(z80.BC, z80.Imm16(vramSize))
	a.XOR(z80.A)
	a.Label("PcgCodes")
	a.LD(z80.IndHL, z80.A)
	a.INC(z80.HL)
	a.INC(z80.A)
	a.DEC(z80.BC)
	a.LD(z80.D, z80.A)
	a.LD(z80.A, z80.B)
	a.OR(z80.C)
	a.LD(z80.A, z80.D)
	a.JP(z80.NZ, z80.Ref("PcgCodes"))

	// attribute bits 6-7 carry the high bits of the character code
	for page := uint16(0); page < 4; page++ {
		n := uint16(256)
		if page == 3 {
			n = vramSize - 3*256
		}
		g.fill(attrRAM+page*256, byte(page)<<6|pcgSelect, n)
	}

	a.LD(z80.A, z80.Imm(1))
	a.OUT(priority)
}

func (g *Generator) imageData() {
	a := g.asm
	for i, p := range planes {
		a.Label(p.label)
		a.DB(g.song.Image[i*planeSize : (i+1)*planeSize]...)
	}
}
