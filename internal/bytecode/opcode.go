// Package bytecode compiles note events into the per-channel opcode stream
// shared by the software VM and the Z80 driver.
package bytecode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cbegin/mzmml-go/internal/hw"
	"github.com/cbegin/mzmml-go/internal/translate"
)

type Opcode byte

const (
	OpTone          Opcode = 0x01
	OpRest          Opcode = 0x02
	OpVolume        Opcode = 0x03
	OpEnvelope      Opcode = 0x04
	OpPitchEnvelope Opcode = 0x05
	OpNoise         Opcode = 0x06
	OpSyncNoise     Opcode = 0x07
	OpLoopMarker    Opcode = 0x08
	OpEnd           Opcode = 0xFF
)

const (
	// Off disables an envelope or pitch envelope.
	Off byte = 0xFF
	// Continuation marks a TONE whose envelopes keep running from the previous note.
	Continuation = 0x8000
	MaxFrames    = 0x7FFF
)

var opcodeNames = map[Opcode]string{
	OpTone:          "TONE",
	OpRest:          "REST",
	OpVolume:        "VOL",
	OpEnvelope:      "ENV",
	OpPitchEnvelope: "PENV",
	OpNoise:         "NOISE",
	OpSyncNoise:     "SYNC_NOISE",
	OpLoopMarker:    "LOOP",
	OpEnd:           "END",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("0x%02X", byte(op))
}

// OperandSize is the number of bytes following op, or -1 for unknown opcodes.
func OperandSize(op Opcode) int {
	switch op {
	case OpTone:
		return 4
	case OpRest:
		return 2
	case OpVolume, OpEnvelope, OpPitchEnvelope:
		return 1
	case OpNoise:
		return 3
	case OpSyncNoise:
		return 5
	case OpLoopMarker, OpEnd:
		return 0
	}
	return -1
}

var ErrTruncated = errors.New("truncated instruction")

// Instruction is one decoded opcode with its raw operand bytes.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []byte
}

// Frames is the wait of a timed instruction without the continuation bit.
func (in Instruction) Frames() int {
	switch in.Op {
	case OpTone:
		return int(le16(in.Operands[2:])) & MaxFrames
	case OpRest:
		return int(le16(in.Operands))
	case OpNoise:
		return int(le16(in.Operands[1:]))
	case OpSyncNoise:
		return int(le16(in.Operands[3:]))
	}
	return 0
}

func (in Instruction) Continues() bool {
	return in.Op == OpTone && le16(in.Operands[2:])&Continuation != 0
}

// Register decodes the divider of a TONE or SYNC_NOISE instruction.
func (in Instruction) Register(aux bool) int {
	switch in.Op {
	case OpTone:
		if aux {
			return int(le16(in.Operands))
		}
		return hw.ToneFromBytes(in.Operands[0], in.Operands[1])
	case OpSyncNoise:
		return hw.ToneFromBytes(in.Operands[1], in.Operands[2])
	}
	return 0
}

// Decode splits program into instructions. It stops after the first END.
func Decode(program []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(program); {
		op := Opcode(program[pc])
		n := OperandSize(op)
		if n < 0 {
			return out, errors.New(translate.From("unknown opcode 0x%02X at offset %d", byte(op), pc))
		}
		if pc+1+n > len(program) {
			return out, fmt.Errorf("%w: %s", ErrTruncated, translate.From("truncated instruction at offset %d", pc))
		}
		out = append(out, Instruction{Offset: pc, Op: op, Operands: program[pc+1 : pc+1+n]})
		pc += 1 + n
		if op == OpEnd {
			break
		}
	}
	return out, nil
}

// Disassemble renders program one instruction per line.
func Disassemble(program []byte, aux bool) string {
	ins, err := Decode(program)
	var sb strings.Builder
	for _, in := range ins {
		fmt.Fprintf(&sb, "%04X  %-10s", in.Offset, in.Op)
		switch in.Op {
		case OpTone:
			fmt.Fprintf(&sb, " reg=%d frames=%d", in.Register(aux), in.Frames())
			if in.Continues() {
				sb.WriteString(" cont")
			}
		case OpRest:
			fmt.Fprintf(&sb, " frames=%d", in.Frames())
		case OpVolume:
			fmt.Fprintf(&sb, " atten=%d", in.Operands[0]&0x0F)
		case OpEnvelope, OpPitchEnvelope:
			if in.Operands[0] == Off {
				sb.WriteString(" off")
			} else {
				fmt.Fprintf(&sb, " id=%d", in.Operands[0])
			}
		case OpNoise:
			mode, rate := hw.DecodeNoiseByte(in.Operands[0])
			fmt.Fprintf(&sb, " mode=%d rate=%d frames=%d", mode, rate, in.Frames())
		case OpSyncNoise:
			mode, _ := hw.DecodeNoiseByte(in.Operands[0])
			fmt.Fprintf(&sb, " mode=%d reg=%d frames=%d", mode, in.Register(aux), in.Frames())
		}
		sb.WriteString("\n")
	}
	if err != nil {
		fmt.Fprintf(&sb, "error: %v\n", err)
	}
	return sb.String()
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
