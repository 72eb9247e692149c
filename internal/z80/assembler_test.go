package z80

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, a *Assembler) []byte {
	t.Helper()
	code, err := a.Build()
	require.NoError(t, err)
	return code
}

func TestEncodesTableEntries(t *testing.T) {
	assert := assert.New(t)
	for _, tc := range []struct {
		name string
		emit func(a *Assembler)
		want []byte
	}{
		{"DI", func(a *Assembler) { a.DI() }, []byte{0xF3}},
		{"IM 1", func(a *Assembler) { a.IM1() }, []byte{0xED, 0x56}},
		{"LD A,n", func(a *Assembler) { a.LD(A, Imm(0x05)) }, []byte{0x3E, 0x05}},
		{"LD (HL),n", func(a *Assembler) { a.LD(IndHL, Imm(0xB0)) }, []byte{0x36, 0xB0}},
		{"LD HL,nn", func(a *Assembler) { a.LD(HL, Imm16(0xE007)) }, []byte{0x21, 0x07, 0xE0}},
		{"LD (nn),A", func(a *Assembler) { a.LD(Addr(0xE003), A) }, []byte{0x32, 0x03, 0xE0}},
		{"LD A,(nn)", func(a *Assembler) { a.LD(A, Addr(0x1234)) }, []byte{0x3A, 0x34, 0x12}},
		{"LD DE,(nn)", func(a *Assembler) { a.LD(DE, Addr(0x1234)) }, []byte{0xED, 0x5B, 0x34, 0x12}},
		{"LD A,(DE)", func(a *Assembler) { a.LD(A, IndDE) }, []byte{0x1A}},
		{"LD B,A", func(a *Assembler) { a.LD(B, A) }, []byte{0x47}},
		{"LD E,(HL)", func(a *Assembler) { a.LD(E, IndHL) }, []byte{0x5E}},
		{"LD (HL),D", func(a *Assembler) { a.LD(IndHL, D) }, []byte{0x72}},
		{"LD HL,DE", func(a *Assembler) { a.LD(HL, DE) }, []byte{0x62, 0x6B}},
		{"ADD HL,DE", func(a *Assembler) { a.ADD(HL, DE) }, []byte{0x19}},
		{"ADD HL,HL", func(a *Assembler) { a.ADD(HL, HL) }, []byte{0x29}},
		{"SUB B", func(a *Assembler) { a.SUB(B) }, []byte{0x90}},
		{"AND n", func(a *Assembler) { a.AND(Imm(0xF0)) }, []byte{0xE6, 0xF0}},
		{"OR A", func(a *Assembler) { a.OR(A) }, []byte{0xB7}},
		{"CP n", func(a *Assembler) { a.CP(Imm(0xFE)) }, []byte{0xFE, 0xFE}},
		{"CP (HL)", func(a *Assembler) { a.CP(IndHL) }, []byte{0xBE}},
		{"INC (HL)", func(a *Assembler) { a.INC(IndHL) }, []byte{0x34}},
		{"DEC HL", func(a *Assembler) { a.DEC(HL) }, []byte{0x2B}},
		{"PUSH AF", func(a *Assembler) { a.PUSH(AF) }, []byte{0xF5}},
		{"POP DE", func(a *Assembler) { a.POP(DE) }, []byte{0xD1}},
		{"OUT (n),A", func(a *Assembler) { a.OUT(0xF2) }, []byte{0xD3, 0xF2}},
		{"RET Z", func(a *Assembler) { a.RET(Z) }, []byte{0xC8}},
		{"EX DE,HL", func(a *Assembler) { a.EXDEHL() }, []byte{0xEB}},
		{"LDIR", func(a *Assembler) { a.LDIR() }, []byte{0xED, 0xB0}},
	} {
		a := NewAssembler(0)
		tc.emit(a)
		assert.Equal(tc.want, build(t, a), tc.name)
	}
}

func TestConditionalJumpDropsTrailingOperand(t *testing.T) {
	a := NewAssembler(0x1200)
	a.Label("top")
	a.JP(NZ, Ref("top"))
	a.JP(Z, Ref("top"))
	a.JP(Ref("top"))
	a.CALL(Ref("top"))
	assert.Equal(t, []byte{
		0xC2, 0x00, 0x12,
		0xCA, 0x00, 0x12,
		0xC3, 0x00, 0x12,
		0xCD, 0x00, 0x12,
	}, build(t, a))
}

func TestForwardReferences(t *testing.T) {
	assert := assert.New(t)
	a := NewAssembler(0x1200)
	a.LD(HL, Ref("data"))
	a.LD(A, At("data"))
	a.Label("data")
	a.DB(0xAA)
	a.DW(Ref("data"))
	a.DW(Imm16(0xBEEF))

	code := build(t, a)
	assert.Equal([]byte{0x21, 0x06, 0x12, 0x3A, 0x06, 0x12, 0xAA, 0x06, 0x12, 0xEF, 0xBE}, code)
	addr, ok := a.Address("data")
	assert.True(ok)
	assert.Equal(uint16(0x1206), addr)
	assert.Equal(len(code), a.Size())
}

func TestLabelsTakeNoSpace(t *testing.T) {
	a := NewAssembler(0x1000)
	a.Label("a")
	a.Label("b")
	a.DB(1)
	a.Label("c")
	build(t, a)
	for name, want := range map[string]uint16{"a": 0x1000, "b": 0x1000, "c": 0x1001} {
		got, ok := a.Address(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestUndefinedLabel(t *testing.T) {
	a := NewAssembler(0)
	a.JP(Ref("nowhere"))
	_, err := a.Build()
	var le *LabelError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "nowhere", le.Label)
	assert.False(t, le.Duplicate)
}

func TestDuplicateLabel(t *testing.T) {
	a := NewAssembler(0)
	a.Label("x")
	a.DB(0)
	a.Label("x")
	_, err := a.Build()
	var le *LabelError
	require.True(t, errors.As(err, &le))
	assert.True(t, le.Duplicate)
}

func TestMissingInstructionPanics(t *testing.T) {
	a := NewAssembler(0)
	defer func() {
		r := recover()
		require.NotNil(t, r)
		e, ok := r.(*InstructionNotFoundError)
		require.True(t, ok)
		assert.Equal(t, "HALT", e.Instruction)
	}()
	a.Append("HALT")
}
