package z80

// table maps "MNEMONIC op1,op2" keys to opcode bytes. Operand bytes are
// appended by the assembler after the opcode.
var table = buildTable()

var (
	regs8  = []string{"B", "C", "D", "E", "H", "L", "(HL)", "A"}
	regs16 = []string{"BC", "DE", "HL"}
)

func buildTable() map[string][]byte {
	t := map[string][]byte{
		"DI":     {0xF3},
		"EI":     {0xFB},
		"IM 1":   {0xED, 0x56},
		"LDIR":   {0xED, 0xB0},
		"RET":    {0xC9},
		"RET Z":  {0xC8},
		"RET NZ": {0xC0},
		"JP n":   {0xC3},
		"JP Z":   {0xCA},
		"JP NZ":  {0xC2},
		"CALL n": {0xCD},
		"OUT n":  {0xD3},

		"EX DE,HL": {0xEB},
		"LD HL,DE": {0x62, 0x6B},

		"LD A,(DE)": {0x1A},
		"LD (DE),A": {0x12},
		"LD A,(n)":  {0x3A},
		"LD (n),A":  {0x32},
		"LD HL,(n)": {0x2A},
		"LD (n),HL": {0x22},
		"LD DE,(n)": {0xED, 0x5B},
		"LD (n),DE": {0xED, 0x53},
		"LD BC,(n)": {0xED, 0x4B},
		"LD (n),BC": {0xED, 0x43},

		"SLA A": {0xCB, 0x27},
		"SRL A": {0xCB, 0x3F},

		"PUSH AF": {0xF5},
		"POP AF":  {0xF1},
	}

	alu := []struct {
		key string
		reg byte
		imm byte
	}{
		{"ADD A,", 0x80, 0xC6},
		{"ADC A,", 0x88, 0xCE},
		{"SUB ", 0x90, 0xD6},
		{"SBC A,", 0x98, 0xDE},
		{"AND ", 0xA0, 0xE6},
		{"XOR ", 0xA8, 0xEE},
		{"OR ", 0xB0, 0xF6},
		{"CP ", 0xB8, 0xFE},
	}
	for _, op := range alu {
		for i, r := range regs8 {
			t[op.key+r] = []byte{op.reg | byte(i)}
		}
		t[op.key+"n"] = []byte{op.imm}
	}

	for i, dst := range regs8 {
		code := byte(i) << 3
		for j, src := range regs8 {
			if dst == "(HL)" && src == "(HL)" {
				continue // HALT
			}
			t["LD "+dst+","+src] = []byte{0x40 | code | byte(j)}
		}
		t["LD "+dst+",n"] = []byte{0x06 | code}
		t["INC "+dst] = []byte{0x04 | code}
		t["DEC "+dst] = []byte{0x05 | code}
	}

	for i, rr := range regs16 {
		code := byte(i) << 4
		t["LD "+rr+",n"] = []byte{0x01 | code}
		t["INC "+rr] = []byte{0x03 | code}
		t["DEC "+rr] = []byte{0x0B | code}
		t["ADD HL,"+rr] = []byte{0x09 | code}
		t["PUSH "+rr] = []byte{0xC5 | code}
		t["POP "+rr] = []byte{0xC1 | code}
	}
	return t
}
