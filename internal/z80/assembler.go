package z80

import (
	"strings"

	"github.com/cbegin/mzmml-go/internal/translate"
)

// InstructionNotFoundError is raised (as a panic) when no table entry
// matches an instruction even after dropping every operand.
type InstructionNotFoundError struct {
	Instruction string
}

func (e *InstructionNotFoundError) Error() string {
	return translate.From("instruction not found: %s", e.Instruction)
}

// LabelError reports an undefined or duplicate label found by Build.
type LabelError struct {
	Label     string
	Duplicate bool
}

func (e *LabelError) Error() string {
	if e.Duplicate {
		return translate.From("duplicate label %q", e.Label)
	}
	return translate.From("undefined label %q", e.Label)
}

type nodeKind int

const (
	nodeByte nodeKind = iota
	nodeLabel
	nodeRef
)

type node struct {
	kind nodeKind
	b    byte
	name string
}

// Assembler collects instructions and data in order and resolves labels in
// two passes. Labels take no space; a label reference takes two bytes.
type Assembler struct {
	origin  uint16
	nodes   []node
	symbols map[string]uint16
}

func NewAssembler(origin uint16) *Assembler {
	return &Assembler{origin: origin}
}

func (a *Assembler) Origin() uint16 { return a.origin }

// Append encodes one instruction. The full operand key is tried first,
// then trailing operands are dropped until an entry matches, so JP NZ,label
// is encoded as JP NZ followed by the label address.
func (a *Assembler) Append(mnemonic string, ops ...Operand) {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.keyPart()
	}
	var code []byte
	for n := len(parts); ; n-- {
		key := mnemonic
		if n > 0 {
			key += " " + strings.Join(parts[:n], ",")
		}
		if c, ok := table[key]; ok {
			code = c
			break
		}
		if n == 0 {
			panic(&InstructionNotFoundError{Instruction: describe(mnemonic, ops)})
		}
	}
	a.DB(code...)
	for _, op := range ops {
		switch op.Kind {
		case KindImmediate:
			if op.Wide {
				a.DB(byte(op.Value), byte(op.Value>>8))
			} else {
				a.DB(byte(op.Value))
			}
		case KindLabel:
			a.nodes = append(a.nodes, node{kind: nodeRef, name: op.Name})
		}
	}
}

func describe(mnemonic string, ops []Operand) string {
	if len(ops) == 0 {
		return mnemonic
	}
	s := make([]string, len(ops))
	for i, op := range ops {
		s[i] = op.String()
	}
	return mnemonic + " " + strings.Join(s, ",")
}

// Label marks the current address.
func (a *Assembler) Label(name string) {
	a.nodes = append(a.nodes, node{kind: nodeLabel, name: name})
}

func (a *Assembler) DB(data ...byte) {
	for _, b := range data {
		a.nodes = append(a.nodes, node{kind: nodeByte, b: b})
	}
}

// DW emits a little-endian word: an immediate value or a label address.
func (a *Assembler) DW(op Operand) {
	if op.Kind == KindLabel {
		a.nodes = append(a.nodes, node{kind: nodeRef, name: op.Name})
		return
	}
	a.DB(byte(op.Value), byte(op.Value>>8))
}

// Build assigns addresses and returns the machine code.
func (a *Assembler) Build() ([]byte, error) {
	symbols := make(map[string]uint16)
	addr := a.origin
	size := 0
	for _, n := range a.nodes {
		switch n.kind {
		case nodeLabel:
			if _, dup := symbols[n.name]; dup {
				return nil, &LabelError{Label: n.name, Duplicate: true}
			}
			symbols[n.name] = addr
		case nodeRef:
			addr += 2
			size += 2
		default:
			addr++
			size++
		}
	}

	out := make([]byte, 0, size)
	for _, n := range a.nodes {
		switch n.kind {
		case nodeByte:
			out = append(out, n.b)
		case nodeRef:
			v, ok := symbols[n.name]
			if !ok {
				return nil, &LabelError{Label: n.name}
			}
			out = append(out, byte(v), byte(v>>8))
		}
	}
	a.symbols = symbols
	return out, nil
}

// Address returns a label's address as resolved by the last Build.
func (a *Assembler) Address(label string) (uint16, bool) {
	v, ok := a.symbols[label]
	return v, ok
}

// Size is the number of bytes emitted so far.
func (a *Assembler) Size() int {
	n := 0
	for _, nd := range a.nodes {
		switch nd.kind {
		case nodeByte:
			n++
		case nodeRef:
			n += 2
		}
	}
	return n
}

func (a *Assembler) LD(dst, src Operand)  { a.Append("LD", dst, src) }
func (a *Assembler) INC(op Operand)       { a.Append("INC", op) }
func (a *Assembler) DEC(op Operand)       { a.Append("DEC", op) }
func (a *Assembler) ADD(dst, src Operand) { a.Append("ADD", dst, src) }
func (a *Assembler) SUB(op Operand)       { a.Append("SUB", op) }
func (a *Assembler) AND(op Operand)       { a.Append("AND", op) }
func (a *Assembler) OR(op Operand)        { a.Append("OR", op) }
func (a *Assembler) XOR(op Operand)       { a.Append("XOR", op) }
func (a *Assembler) CP(op Operand)        { a.Append("CP", op) }
func (a *Assembler) PUSH(op Operand)      { a.Append("PUSH", op) }
func (a *Assembler) POP(op Operand)       { a.Append("POP", op) }
func (a *Assembler) CALL(op Operand)      { a.Append("CALL", op) }
func (a *Assembler) OUT(port byte)        { a.Append("OUT", Imm(port)) }
func (a *Assembler) DI()                  { a.Append("DI") }
func (a *Assembler) EI()                  { a.Append("EI") }
func (a *Assembler) IM1()                 { a.Append("IM 1") }
func (a *Assembler) LDIR()                { a.Append("LDIR") }
func (a *Assembler) EXDEHL()              { a.Append("EX", DE, HL) }

// JP takes either a target or a condition and a target.
func (a *Assembler) JP(ops ...Operand) { a.Append("JP", ops...) }

// RET takes an optional condition.
func (a *Assembler) RET(cond ...Operand) { a.Append("RET", cond...) }
