package driver

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/mzmml-go/internal/bytecode"
	"github.com/cbegin/mzmml-go/internal/hw"
	"github.com/cbegin/mzmml-go/internal/mml"
)

func testSong() Song {
	b1, b2 := hw.ToneBytes(0, 428)
	return Song{
		Channels: []Channel{
			{Name: "A", Kind: KindTone, Port: hw.PSG1Port, Index: 0, Program: []byte{
				byte(bytecode.OpVolume), hw.VolumeByte(0, 0),
				byte(bytecode.OpTone), b1, b2, 30, 0,
				byte(bytecode.OpEnd),
			}},
			{Name: "H", Kind: KindNoise, Port: hw.PSG2Port, Index: 3, Program: []byte{
				byte(bytecode.OpNoise), hw.NoiseByte(hw.WhiteNoise, hw.NoiseRateLow), 10, 0,
				byte(bytecode.OpEnd),
			}},
			{Name: "P", Kind: KindAux, Program: []byte{
				byte(bytecode.OpLoopMarker),
				byte(bytecode.OpTone), 0xD8, 0x09, 4, 0,
				byte(bytecode.OpEnd),
			}},
		},
		Volume: map[int]*mml.Envelope{
			1: {Values: []int{15, 10, 5}, LoopIndex: 1},
			3: {Values: []int{12}, LoopIndex: 0},
		},
		Pitch: []bytecode.PitchTable{
			{Registers: []int{428, 420}, LoopIndex: 0, Channel: 0},
		},
	}
}

func buildSong(t *testing.T, song Song) (*Generator, []byte) {
	t.Helper()
	g := NewGenerator(song)
	code, err := g.Build()
	require.NoError(t, err)
	return g, code
}

func addr(t *testing.T, g *Generator, label string) int {
	t.Helper()
	v, ok := g.Address(label)
	require.True(t, ok, label)
	return int(v)
}

func word(code []byte, at int) int {
	return int(code[at]) | int(code[at+1])<<8
}

func TestSetupSequence(t *testing.T) {
	assert := assert.New(t)
	g, code := buildSong(t, testSong())

	assert.Equal([]byte{0xF3, 0xED, 0x56}, code[0:3], "DI; IM 1")
	assert.Equal([]byte{0x21, 0x39, 0x10, 0x11}, code[3:7], "vector address")
	assert.Equal(addr(t, g, "sound"), word(code, 7))
	assert.Equal([]byte{0x73, 0x23, 0x72}, code[9:12])

	timer := []byte{
		0x21, 0x07, 0xE0,
		0x36, 0xB0, 0x36, 0x74,
		0x2B, 0x36, 0x83, 0x36, 0x00,
		0x2B, 0x36, 0x02, 0x36, 0x00,
		0x3E, 0x05, 0x32, 0x03, 0xE0,
	}
	assert.Equal(timer, code[12:12+len(timer)])
	assert.True(bytes.Contains(code, []byte{0x3E, 0x01, 0x21, 0x08, 0xE0, 0x77, 0x21, 0x07, 0xE0, 0x36, 0x36}), "beeper init")
}

func TestBannerWithoutImage(t *testing.T) {
	_, code := buildSong(t, testSong())
	assert.True(t, bytes.Contains(code, []byte{0x21, 0x00, 0xD0, 0x11, 0x01, 0xD0, 0x01, 0xFF, 0x03, 0x36, 0x00, 0xED, 0xB0}), "VRAM clear")
	assert.True(t, bytes.Contains(code, []byte{0x36, 0x10, 0x23, 0x36, 0x0C, 0x23, 0x36, 0x01}), "PLAYING")
}

func TestHandlerCallsEveryChannel(t *testing.T) {
	g, code := buildSong(t, testSong())
	start := addr(t, g, "sound") - Origin
	end := addr(t, g, "A") - Origin
	handler := code[start:end]

	assert.Equal(t, []byte{0xF5, 0xC5, 0xD5, 0xE5}, handler[:4])
	assert.Equal(t, []byte{0xE1, 0xD1, 0xC1, 0xF1, 0xFB, 0xC9}, handler[len(handler)-6:])
	for _, name := range []string{"A", "H", "P"} {
		a := addr(t, g, name)
		assert.True(t, bytes.Contains(handler, []byte{0xCD, byte(a), byte(a >> 8)}), "CALL %s", name)
	}
}

func TestProgramsAreEmbedded(t *testing.T) {
	song := testSong()
	g, code := buildSong(t, song)
	for _, ch := range song.Channels {
		at := addr(t, g, songLabel(ch.Name))
		assert.Equal(t, ch.Program, code[at-Origin:at-Origin+len(ch.Program)], ch.Name)
		// the read pointer starts at the program
		pos := addr(t, g, ch.Name+"_Pos") - Origin
		assert.Equal(t, at, word(code, pos), ch.Name)
	}
}

func TestInitialVolumeIsSilent(t *testing.T) {
	g, code := buildSong(t, testSong())
	assert.Equal(t, hw.VolumeByte(0, hw.Silent), code[addr(t, g, "A_Vol")-Origin])
	assert.Equal(t, hw.VolumeByte(3, hw.Silent), code[addr(t, g, "H_Vol")-Origin])
}

func TestEnvelopeIndexTable(t *testing.T) {
	assert := assert.New(t)
	g, code := buildSong(t, testSong())
	table := addr(t, g, "EnvTable") - Origin
	assert.Equal(0, word(code, table))
	assert.Equal(addr(t, g, "Env_1"), word(code, table+2))
	assert.Equal(0, word(code, table+4))
	assert.Equal(addr(t, g, "Env_3"), word(code, table+6))

	env1 := addr(t, g, "Env_1") - Origin
	assert.Equal([]byte{15, 10, 5, 0xFE, 1, 0}, code[env1:env1+6])
	env3 := addr(t, g, "Env_3") - Origin
	assert.Equal([]byte{12, 0xFF}, code[env3:env3+2])

	pitch := addr(t, g, "PitchTable") - Origin
	assert.Equal(addr(t, g, "Pitch_0"), word(code, pitch))
}

func TestVolumeTable(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]byte{15, 10, 5, 0xFE, 1, 0}, VolumeTable(&mml.Envelope{Values: []int{15, 10, 5}, LoopIndex: 1}))
	assert.Equal([]byte{15, 10, 5, 0xFF}, VolumeTable(&mml.Envelope{Values: []int{15, 10, 5}, LoopIndex: 2}))
	assert.Equal([]byte{15, 0, 0xFF}, VolumeTable(&mml.Envelope{Values: []int{20, -3}, LoopIndex: -1}))
}

func TestPitchTableBytes(t *testing.T) {
	assert := assert.New(t)
	b1, b2 := hw.ToneBytes(1, 0x1AC)
	c1, c2 := hw.ToneBytes(1, 0x1A0)
	assert.Equal([]byte{b1, b2, c1, c2, 0xFE, 0, 0},
		PitchTableBytes(bytecode.PitchTable{Registers: []int{0x1AC, 0x1A0}, LoopIndex: 0, Channel: 1}))
	assert.Equal([]byte{0x09, 0xD8, 0x09, 0xC0, 0x09, 0xB0, 0xFE, 2, 0},
		PitchTableBytes(bytecode.PitchTable{Registers: []int{0x9D8, 0x9C0, 0x9B0}, LoopIndex: 1, Aux: true}))
	assert.Equal([]byte{0xFD, 0xFF, 0xFF},
		PitchTableBytes(bytecode.PitchTable{Registers: []int{0xFFFF}, LoopIndex: 0, Aux: true}))
}

func TestChannelRoutinesUseTheirHardware(t *testing.T) {
	g, code := buildSong(t, testSong())
	a := code[addr(t, g, "A")-Origin : addr(t, g, "H")-Origin]
	h := code[addr(t, g, "H")-Origin : addr(t, g, "P")-Origin]
	p := code[addr(t, g, "P")-Origin : addr(t, g, "EnvTable")-Origin]

	assert.True(t, bytes.Contains(a, []byte{0xD3, hw.PSG1Port}))
	assert.False(t, bytes.Contains(a, []byte{0xD3, hw.PSG2Port}))
	assert.True(t, bytes.Contains(h, []byte{0xD3, hw.PSG2Port}))
	// beeper writes the counter and the gate instead of a port
	assert.True(t, bytes.Contains(p, []byte{0x32, 0x04, 0xE0}))
	assert.True(t, bytes.Contains(p, []byte{0x32, 0x08, 0xE0}))
	assert.False(t, bytes.Contains(p, []byte{0xD3, hw.PSG1Port}))
}

func TestDispatchCoversEveryOpcode(t *testing.T) {
	g, code := buildSong(t, testSong())
	routine := code[addr(t, g, "A_Next")-Origin:]
	for _, op := range []bytecode.Opcode{
		bytecode.OpTone, bytecode.OpRest, bytecode.OpVolume, bytecode.OpEnvelope,
		bytecode.OpPitchEnvelope, bytecode.OpNoise, bytecode.OpSyncNoise, bytecode.OpLoopMarker,
	} {
		assert.True(t, bytes.Contains(routine[:80], []byte{0xFE, byte(op), 0xCA}), "CP %s; JP Z", op)
	}
}

func TestImagePayload(t *testing.T) {
	assert := assert.New(t)

	song := testSong()
	song.Image = make([]byte, 100)
	_, err := NewGenerator(song).Build()
	assert.True(errors.Is(err, ErrImageSize))

	_, plain := buildSong(t, testSong())
	song.Image = make([]byte, ImageSize)
	for i := range song.Image {
		song.Image[i] = byte(i / planeSize)
	}
	g, code := buildSong(t, song)
	assert.Greater(len(code), len(plain)+ImageSize)
	for i, p := range planes {
		at := addr(t, g, p.label) - Origin
		assert.Equal(byte(i), code[at])
		assert.Equal(byte(i), code[at+planeSize-1])
	}
	assert.True(bytes.Contains(code, []byte{0x3E, 0x03, 0xD3, 0xE5}), "green plane bank")
	assert.False(bytes.Contains(code, []byte{0x36, 0x10, 0x23, 0x36, 0x0C}), "no banner with an image")
}
