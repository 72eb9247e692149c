// Package z80 is a small table-driven Z80 assembler covering the
// instruction subset used by the MZ-1500 sound driver.
package z80

import "fmt"

type Kind int

const (
	KindRegister Kind = iota
	KindImmediate
	KindLabel
)

// Operand is a register, an immediate value or a label reference. Indirect
// operands stand for a memory access through the value, as in LD A,(nn).
type Operand struct {
	Kind     Kind
	Name     string
	Value    uint16
	Wide     bool
	Indirect bool
}

func Reg(name string) Operand { return Operand{Kind: KindRegister, Name: name} }

func Imm(v byte) Operand { return Operand{Kind: KindImmediate, Value: uint16(v)} }

func Imm16(v uint16) Operand { return Operand{Kind: KindImmediate, Value: v, Wide: true} }

// Addr is the memory operand (nn).
func Addr(v uint16) Operand {
	return Operand{Kind: KindImmediate, Value: v, Wide: true, Indirect: true}
}

// Ref resolves to the address of label.
func Ref(label string) Operand { return Operand{Kind: KindLabel, Name: label} }

// At is the memory operand (label).
func At(label string) Operand { return Operand{Kind: KindLabel, Name: label, Indirect: true} }

var (
	A  = Reg("A")
	B  = Reg("B")
	C  = Reg("C")
	D  = Reg("D")
	E  = Reg("E")
	H  = Reg("H")
	L  = Reg("L")
	AF = Reg("AF")
	BC = Reg("BC")
	DE = Reg("DE")
	HL = Reg("HL")

	// IndHL and IndDE are (HL) and (DE).
	IndHL = Reg("(HL)")
	IndDE = Reg("(DE)")

	Z  = Reg("Z")
	NZ = Reg("NZ")
)

// keyPart is how the operand appears in an instruction table key.
// Immediates and labels share the "n" slot; their width comes from the
// operand, not the table.
func (o Operand) keyPart() string {
	if o.Kind == KindRegister {
		return o.Name
	}
	if o.Indirect {
		return "(n)"
	}
	return "n"
}

func (o Operand) String() string {
	switch o.Kind {
	case KindRegister:
		return o.Name
	case KindLabel:
		if o.Indirect {
			return "(" + o.Name + ")"
		}
		return o.Name
	}
	s := fmt.Sprintf("%02Xh", o.Value)
	if o.Wide {
		s = fmt.Sprintf("%04Xh", o.Value)
	}
	if o.Indirect {
		return "(" + s + ")"
	}
	return s
}
