package psg

import (
	"math"
	"testing"

	"github.com/cbegin/mzmml-go/internal/bytecode"
	"github.com/cbegin/mzmml-go/internal/hw"
	"github.com/cbegin/mzmml-go/internal/mml"
)

func tone(reg, frames int) []byte {
	b1, b2 := hw.ToneBytes(0, reg)
	return []byte{byte(bytecode.OpTone), b1, b2, byte(frames), byte(frames >> 8)}
}

func program(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	end  = []byte{byte(bytecode.OpEnd)}
	loop = []byte{byte(bytecode.OpLoopMarker)}
	vol0 = []byte{byte(bytecode.OpVolume), 0x90}
)

func TestEnvelopeLoopsToIndex(t *testing.T) {
	tables := &Tables{Volume: map[int]*mml.Envelope{
		1: {Values: []int{15, 10, 5}, LoopIndex: 1},
	}}
	prog := program(vol0, []byte{byte(bytecode.OpEnvelope), 1}, tone(428, 10), end)
	vm := NewVM(prog, KindTone, tables, 44100, DefaultParams())

	want := []int{15, 10, 5, 10, 5, 10}
	for i, level := range want {
		vm.Tick()
		if got := hw.Silent - vm.Attenuation(); got != level {
			t.Fatalf("frame %d level = %d, want %d", i, got, level)
		}
	}
}

func TestVolumeWithoutEnvelope(t *testing.T) {
	prog := program([]byte{byte(bytecode.OpVolume), hw.VolumeByte(0, 6)}, tone(428, 2), end)
	vm := NewVM(prog, KindTone, nil, 44100, DefaultParams())
	vm.Tick()
	if vm.Attenuation() != 6 {
		t.Fatalf("attenuation = %d, want 6", vm.Attenuation())
	}
	if vm.Register() != 428 {
		t.Fatalf("register = %d, want 428", vm.Register())
	}
}

func TestRestIsSilent(t *testing.T) {
	prog := program(vol0, []byte{byte(bytecode.OpRest), 5, 0}, end)
	vm := NewVM(prog, KindTone, nil, 44100, DefaultParams())
	buf := make([]float32, 2000)
	vm.Render(buf)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestToneLastsItsFrames(t *testing.T) {
	prog := program(vol0, tone(428, 3), tone(200, 1), end)
	vm := NewVM(prog, KindTone, nil, 44100, DefaultParams())
	regs := []int{}
	for i := 0; i < 4; i++ {
		vm.Tick()
		regs = append(regs, vm.Register())
	}
	want := []int{428, 428, 428, 200}
	for i := range want {
		if regs[i] != want[i] {
			t.Fatalf("registers = %v, want %v", regs, want)
		}
	}
	vm.Tick()
	if !vm.Ended() || vm.Attenuation() != hw.Silent {
		t.Fatalf("expected END to stop the channel")
	}
}

func TestLoopMarkerFoldsBack(t *testing.T) {
	prog := program(vol0, tone(428, 2), loop, tone(200, 1), tone(300, 1), end)
	vm := NewVM(prog, KindTone, nil, 44100, DefaultParams())
	var regs []int
	for i := 0; i < 8; i++ {
		vm.Tick()
		regs = append(regs, vm.Register())
	}
	want := []int{428, 428, 200, 300, 200, 300, 200, 300}
	for i := range want {
		if regs[i] != want[i] {
			t.Fatalf("registers = %v, want %v", regs, want)
		}
	}
	if vm.Ended() {
		t.Fatalf("looping channel must not end")
	}
}

func TestEmptyLoopPinsWait(t *testing.T) {
	prog := program(vol0, tone(428, 1), loop, end)
	vm := NewVM(prog, KindTone, nil, 44100, DefaultParams())
	vm.Tick()
	vm.Tick()
	if vm.Ended() {
		t.Fatalf("looping channel must not end")
	}
	if vm.wait != pinnedWait {
		t.Fatalf("wait = %d, want %d", vm.wait, pinnedWait)
	}
	if vm.Attenuation() != hw.Silent {
		t.Fatalf("pinned channel should be silent")
	}
}

func TestPitchEnvelopeSeedsOnOnset(t *testing.T) {
	tables := &Tables{Pitch: []bytecode.PitchTable{{Registers: []int{100, 200, 300}, LoopIndex: 1}}}
	prog := program(vol0, []byte{byte(bytecode.OpPitchEnvelope), 0}, tone(428, 10), end)
	vm := NewVM(prog, KindTone, tables, 44100, DefaultParams())
	want := []int{100, 200, 300, 200, 300}
	for i, reg := range want {
		vm.Tick()
		if vm.Register() != reg {
			t.Fatalf("frame %d register = %d, want %d", i, vm.Register(), reg)
		}
	}
}

func TestContinuationKeepsEnvelopePosition(t *testing.T) {
	tables := &Tables{Volume: map[int]*mml.Envelope{
		1: {Values: []int{15, 12, 9, 6}, LoopIndex: 3},
	}}
	b1, b2 := hw.ToneBytes(0, 300)
	cont := []byte{byte(bytecode.OpTone), b1, b2, 2, 0x80}
	prog := program(vol0, []byte{byte(bytecode.OpEnvelope), 1}, tone(428, 2), cont, end)
	vm := NewVM(prog, KindTone, tables, 44100, DefaultParams())
	var levels []int
	for i := 0; i < 4; i++ {
		vm.Tick()
		levels = append(levels, hw.Silent-vm.Attenuation())
	}
	want := []int{15, 12, 9, 6}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("levels = %v, want %v", levels, want)
		}
	}
	if vm.Register() != 300 {
		t.Fatalf("register = %d, want 300", vm.Register())
	}
}

func TestTicksAtSixtyHertz(t *testing.T) {
	prog := program(vol0, tone(428, 0x7FFF), end)
	vm := NewVM(prog, KindTone, nil, 44100, DefaultParams())
	vm.Render(make([]float32, 44100))
	if vm.Frames() != 60 {
		t.Fatalf("frames = %d, want 60", vm.Frames())
	}
}

func TestSquareWaveAmplitude(t *testing.T) {
	prog := program(vol0, tone(428, 100), end)
	params := DefaultParams()
	vm := NewVM(prog, KindTone, nil, 44100, params)
	buf := make([]float32, 1000)
	vm.Render(buf)
	pos, neg := 0, 0
	for _, s := range buf {
		switch {
		case math.Abs(float64(s)-params.ChannelGain) < 1e-6:
			pos++
		case math.Abs(float64(s)+params.ChannelGain) < 1e-6:
			neg++
		default:
			t.Fatalf("unexpected sample %v", s)
		}
	}
	if pos == 0 || neg == 0 {
		t.Fatalf("square wave never toggled: %d/%d", pos, neg)
	}
}

func TestVolumeTableStepsTwoDecibels(t *testing.T) {
	vm := NewVM(nil, KindTone, nil, 44100, DefaultParams())
	for i := 1; i < 15; i++ {
		db := 20 * math.Log10(vm.amp[i]/vm.amp[i-1])
		if math.Abs(db+2) > 1e-9 {
			t.Fatalf("step %d = %v dB, want -2", i, db)
		}
	}
	if vm.amp[15] != 0 {
		t.Fatalf("last entry = %v, want 0", vm.amp[15])
	}
}

func TestNoisePeriods(t *testing.T) {
	for _, tc := range []struct {
		white  bool
		period int
	}{
		{white: false, period: 15},
		{white: true, period: 32767},
	} {
		vm := NewVM(nil, KindNoise, nil, 44100, DefaultParams())
		vm.white = tc.white
		n := 0
		for {
			vm.shift()
			n++
			if vm.lfsr == 0x4000 || n > 40000 {
				break
			}
		}
		if n != tc.period {
			t.Fatalf("white=%v period = %d, want %d", tc.white, n, tc.period)
		}
	}
}

func TestAuxChannelIsGated(t *testing.T) {
	prog := program([]byte{byte(bytecode.OpVolume), hw.VolumeByte(0, 9)}, []byte{byte(bytecode.OpTone), 0xD8, 0x09, 4, 0}, end)
	vm := NewVM(prog, KindAux, nil, 44100, DefaultParams())
	vm.Tick()
	if vm.Register() != 0x09D8 {
		t.Fatalf("register = %#x, want 0x9d8", vm.Register())
	}
	if vm.Attenuation() != 0 {
		t.Fatalf("beeper attenuation = %d, want 0", vm.Attenuation())
	}
}
