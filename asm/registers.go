// Package asm implements the core of the assembler: schema-based operand
// matching and binary encoding (registers, operands, ModR/M, instruction
// templates) and the two-pass layout engine that assigns addresses,
// shrinks instructions and expands times blocks.
package asm

// Register is an immutable descriptor for one register name. A small fixed
// set is known at startup; Registers is never mutated after init().
type Register struct {
	Name    string
	Index   uint8 // encoding index 0-7 (ModR/M reg/rm field, or opcode +r)
	Size    int   // byte size: 1, 2, 4, or 10 for x87
	Segment bool
	X87     bool
}

// Registers maps every recognized register name (lower-case) to its descriptor.
var Registers = buildRegisterTable()

func buildRegisterTable() map[string]*Register {
	regs := map[string]*Register{}
	add := func(name string, idx uint8, size int, seg, x87 bool) {
		regs[name] = &Register{Name: name, Index: idx, Size: size, Segment: seg, X87: x87}
	}

	byte8 := []string{"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"}
	for i, n := range byte8 {
		add(n, uint8(i), 1, false, false)
	}
	word16 := []string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}
	for i, n := range word16 {
		add(n, uint8(i), 2, false, false)
	}
	dword32 := []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}
	for i, n := range dword32 {
		add(n, uint8(i), 4, false, false)
	}
	segs := []string{"es", "cs", "ss", "ds", "fs", "gs"}
	for i, n := range segs {
		add(n, uint8(i), 2, true, false)
	}
	for i := 0; i < 8; i++ {
		add(fmtSt(i), uint8(i), 10, false, true)
	}
	return regs
}

func fmtSt(i int) string {
	digits := "0123456789"
	return "st" + string(digits[i])
}

// Lookup returns the descriptor for name (case handled by caller: names are
// stored lower-case), or nil if name is not a register.
func Lookup(name string) *Register {
	return Registers[name]
}

// GPR8, GPR16, GPR32 list general-purpose registers of a given size, in
// encoding-index order, excluding segment and x87 registers.
func gprOfSize(size int) []*Register {
	order := map[int][]string{
		1: {"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"},
		2: {"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"},
		4: {"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"},
	}
	var out []*Register
	for _, name := range order[size] {
		out = append(out, Registers[name])
	}
	return out
}

// segOverridePrefix maps a segment register name to its override prefix byte.
var segOverridePrefix = map[string]byte{
	"es": 0x26, "cs": 0x2E, "ss": 0x36, "ds": 0x3E, "fs": 0x64, "gs": 0x65,
}
