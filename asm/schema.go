package asm

import "fmt"

// ArgType enumerates the operand-matcher kinds from spec 4.1/4.3. Each
// instance of a schema's Args lists the matchers a candidate's operands must
// satisfy, in order.
type ArgType int

const (
	ArgReg8 ArgType = iota
	ArgReg16
	ArgReg32
	ArgRM8
	ArgRM16
	ArgRM32
	ArgImm8
	ArgImm16
	ArgImm32
	ArgImm8S // ib_s: imm8, sign-extended to the sibling's width
	ArgRel8
	ArgRel16
	ArgMoffs8
	ArgMoffs16
	ArgFarPtr16 // 16:16 far pointer immediate
	ArgFarPtr32 // 16:32 far pointer immediate
	ArgAL
	ArgAX
	ArgEAX
	ArgCL
	ArgDX
	ArgOne // literal immediate 1 (shift/rotate single-bit form)
	ArgSTi // any st0-st7
	ArgST0
	ArgSegReg
)

// Schema is one candidate binary encoding for a mnemonic: an ordered operand
// matcher list plus the opcode template needed to emit it.
type Schema struct {
	Mnemonic  string
	Args      []ArgType
	Opcode    []byte
	OpcodeReg bool // add the register operand's index to the last opcode byte
	Digit     int  // ModR/M reg field is forced to this value; -1 if the reg field instead encodes a register operand
	HasModRM  bool
	MinBits   int // 16 (8086) or 32 (80386+); 0 means no minimum
}

// schemaRegistry maps a lower-case mnemonic to its candidate schemas, tried
// in registration order; the first whose Args all match wins.
var schemaRegistry = buildSchemaRegistry()

// LookupSchemas returns the candidate schemas for mnemonic, or nil if unknown.
func LookupSchemas(mnemonic string) []*Schema {
	return schemaRegistry[mnemonic]
}

func buildSchemaRegistry() map[string][]*Schema {
	reg := map[string][]*Schema{}
	add := func(s *Schema) { reg[s.Mnemonic] = append(reg[s.Mnemonic], s) }

	for _, g := range aluGroups {
		for _, s := range buildALUGroup(g.mnemonic, g.index) {
			add(s)
		}
	}

	// mov
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgRM8, ArgReg8}, Opcode: []byte{0x88}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgRM16, ArgReg16}, Opcode: []byte{0x89}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgRM32, ArgReg32}, Opcode: []byte{0x89}, HasModRM: true, Digit: -1, MinBits: 32})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgReg8, ArgRM8}, Opcode: []byte{0x8A}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgReg16, ArgRM16}, Opcode: []byte{0x8B}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgReg32, ArgRM32}, Opcode: []byte{0x8B}, HasModRM: true, Digit: -1, MinBits: 32})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgReg8, ArgImm8}, Opcode: []byte{0xB0}, OpcodeReg: true, Digit: -1})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgReg16, ArgImm16}, Opcode: []byte{0xB8}, OpcodeReg: true, Digit: -1})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgReg32, ArgImm32}, Opcode: []byte{0xB8}, OpcodeReg: true, Digit: -1, MinBits: 32})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgRM8, ArgImm8}, Opcode: []byte{0xC6}, HasModRM: true, Digit: 0})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgRM16, ArgImm16}, Opcode: []byte{0xC7}, HasModRM: true, Digit: 0})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgAL, ArgMoffs8}, Opcode: []byte{0xA0}})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgAX, ArgMoffs16}, Opcode: []byte{0xA1}})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgMoffs8, ArgAL}, Opcode: []byte{0xA2}})
	add(&Schema{Mnemonic: "mov", Args: []ArgType{ArgMoffs16, ArgAX}, Opcode: []byte{0xA3}})

	// lea
	add(&Schema{Mnemonic: "lea", Args: []ArgType{ArgReg16, ArgRM16}, Opcode: []byte{0x8D}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "lea", Args: []ArgType{ArgReg32, ArgRM32}, Opcode: []byte{0x8D}, HasModRM: true, Digit: -1, MinBits: 32})

	// xchg
	add(&Schema{Mnemonic: "xchg", Args: []ArgType{ArgAX, ArgReg16}, Opcode: []byte{0x90}, OpcodeReg: true})
	add(&Schema{Mnemonic: "xchg", Args: []ArgType{ArgReg16, ArgAX}, Opcode: []byte{0x90}, OpcodeReg: true})
	add(&Schema{Mnemonic: "xchg", Args: []ArgType{ArgRM8, ArgReg8}, Opcode: []byte{0x86}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "xchg", Args: []ArgType{ArgRM16, ArgReg16}, Opcode: []byte{0x87}, HasModRM: true, Digit: -1})

	// test
	add(&Schema{Mnemonic: "test", Args: []ArgType{ArgRM8, ArgReg8}, Opcode: []byte{0x84}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "test", Args: []ArgType{ArgRM16, ArgReg16}, Opcode: []byte{0x85}, HasModRM: true, Digit: -1})
	add(&Schema{Mnemonic: "test", Args: []ArgType{ArgAL, ArgImm8}, Opcode: []byte{0xA8}})
	add(&Schema{Mnemonic: "test", Args: []ArgType{ArgAX, ArgImm16}, Opcode: []byte{0xA9}})
	add(&Schema{Mnemonic: "test", Args: []ArgType{ArgRM8, ArgImm8}, Opcode: []byte{0xF6}, HasModRM: true, Digit: 0})
	add(&Schema{Mnemonic: "test", Args: []ArgType{ArgRM16, ArgImm16}, Opcode: []byte{0xF7}, HasModRM: true, Digit: 0})

	// inc/dec
	add(&Schema{Mnemonic: "inc", Args: []ArgType{ArgReg16}, Opcode: []byte{0x40}, OpcodeReg: true})
	add(&Schema{Mnemonic: "inc", Args: []ArgType{ArgRM8}, Opcode: []byte{0xFE}, HasModRM: true, Digit: 0})
	add(&Schema{Mnemonic: "inc", Args: []ArgType{ArgRM16}, Opcode: []byte{0xFF}, HasModRM: true, Digit: 0})
	add(&Schema{Mnemonic: "dec", Args: []ArgType{ArgReg16}, Opcode: []byte{0x48}, OpcodeReg: true})
	add(&Schema{Mnemonic: "dec", Args: []ArgType{ArgRM8}, Opcode: []byte{0xFE}, HasModRM: true, Digit: 1})
	add(&Schema{Mnemonic: "dec", Args: []ArgType{ArgRM16}, Opcode: []byte{0xFF}, HasModRM: true, Digit: 1})

	// push/pop
	add(&Schema{Mnemonic: "push", Args: []ArgType{ArgReg16}, Opcode: []byte{0x50}, OpcodeReg: true})
	add(&Schema{Mnemonic: "push", Args: []ArgType{ArgRM16}, Opcode: []byte{0xFF}, HasModRM: true, Digit: 6})
	add(&Schema{Mnemonic: "push", Args: []ArgType{ArgSegReg}, Opcode: []byte{0x06}, OpcodeReg: true})
	add(&Schema{Mnemonic: "push", Args: []ArgType{ArgImm8S}, Opcode: []byte{0x6A}})
	add(&Schema{Mnemonic: "push", Args: []ArgType{ArgImm16}, Opcode: []byte{0x68}})
	add(&Schema{Mnemonic: "pop", Args: []ArgType{ArgReg16}, Opcode: []byte{0x58}, OpcodeReg: true})
	add(&Schema{Mnemonic: "pop", Args: []ArgType{ArgRM16}, Opcode: []byte{0x8F}, HasModRM: true, Digit: 0})
	add(&Schema{Mnemonic: "pop", Args: []ArgType{ArgSegReg}, Opcode: []byte{0x07}, OpcodeReg: true})

	// control flow
	add(&Schema{Mnemonic: "jmp", Args: []ArgType{ArgRel8}, Opcode: []byte{0xEB}})
	add(&Schema{Mnemonic: "jmp", Args: []ArgType{ArgRel16}, Opcode: []byte{0xE9}})
	add(&Schema{Mnemonic: "jmp", Args: []ArgType{ArgFarPtr16}, Opcode: []byte{0xEA}})
	add(&Schema{Mnemonic: "call", Args: []ArgType{ArgRel16}, Opcode: []byte{0xE8}})
	add(&Schema{Mnemonic: "call", Args: []ArgType{ArgFarPtr16}, Opcode: []byte{0x9A}})
	add(&Schema{Mnemonic: "call", Args: []ArgType{ArgRM16}, Opcode: []byte{0xFF}, HasModRM: true, Digit: 2})
	add(&Schema{Mnemonic: "ret", Args: nil, Opcode: []byte{0xC3}})
	add(&Schema{Mnemonic: "ret", Args: []ArgType{ArgImm16}, Opcode: []byte{0xC2}})
	add(&Schema{Mnemonic: "retf", Args: nil, Opcode: []byte{0xCB}})

	for cc, op := range conditionCodes {
		add(&Schema{Mnemonic: cc, Args: []ArgType{ArgRel8}, Opcode: []byte{0x70 + op}})
		add(&Schema{Mnemonic: cc, Args: []ArgType{ArgRel16}, Opcode: []byte{0x0F, 0x80 + op}, MinBits: 32})
	}

	// zero-operand / misc
	add(&Schema{Mnemonic: "nop", Args: nil, Opcode: []byte{0x90}})
	add(&Schema{Mnemonic: "hlt", Args: nil, Opcode: []byte{0xF4}})
	add(&Schema{Mnemonic: "cli", Args: nil, Opcode: []byte{0xFA}})
	add(&Schema{Mnemonic: "sti", Args: nil, Opcode: []byte{0xFB}})
	add(&Schema{Mnemonic: "cld", Args: nil, Opcode: []byte{0xFC}})
	add(&Schema{Mnemonic: "std", Args: nil, Opcode: []byte{0xFD}})
	add(&Schema{Mnemonic: "clc", Args: nil, Opcode: []byte{0xF8}})
	add(&Schema{Mnemonic: "stc", Args: nil, Opcode: []byte{0xF9}})
	add(&Schema{Mnemonic: "cmc", Args: nil, Opcode: []byte{0xF5}})
	add(&Schema{Mnemonic: "int3", Args: nil, Opcode: []byte{0xCC}})
	add(&Schema{Mnemonic: "int", Args: []ArgType{ArgImm8}, Opcode: []byte{0xCD}})
	add(&Schema{Mnemonic: "iret", Args: nil, Opcode: []byte{0xCF}})
	add(&Schema{Mnemonic: "pushf", Args: nil, Opcode: []byte{0x9C}})
	add(&Schema{Mnemonic: "popf", Args: nil, Opcode: []byte{0x9D}})
	add(&Schema{Mnemonic: "cbw", Args: nil, Opcode: []byte{0x98}})
	add(&Schema{Mnemonic: "cwd", Args: nil, Opcode: []byte{0x99}})

	return reg
}

type aluGroupDef struct {
	mnemonic string
	index    int
}

var aluGroups = []aluGroupDef{
	{"add", 0}, {"or", 1}, {"adc", 2}, {"sbb", 3},
	{"and", 4}, {"sub", 5}, {"xor", 6}, {"cmp", 7},
}

// buildALUGroup generates the nine standard encodings shared by every
// arithmetic/logic group opcode (add, or, adc, sbb, and, sub, xor, cmp).
func buildALUGroup(mnemonic string, group int) []*Schema {
	base := byte(group * 8)
	return []*Schema{
		{Mnemonic: mnemonic, Args: []ArgType{ArgRM8, ArgReg8}, Opcode: []byte{base + 0x00}, HasModRM: true, Digit: -1},
		{Mnemonic: mnemonic, Args: []ArgType{ArgRM16, ArgReg16}, Opcode: []byte{base + 0x01}, HasModRM: true, Digit: -1},
		{Mnemonic: mnemonic, Args: []ArgType{ArgRM32, ArgReg32}, Opcode: []byte{base + 0x01}, HasModRM: true, Digit: -1, MinBits: 32},
		{Mnemonic: mnemonic, Args: []ArgType{ArgReg8, ArgRM8}, Opcode: []byte{base + 0x02}, HasModRM: true, Digit: -1},
		{Mnemonic: mnemonic, Args: []ArgType{ArgReg16, ArgRM16}, Opcode: []byte{base + 0x03}, HasModRM: true, Digit: -1},
		{Mnemonic: mnemonic, Args: []ArgType{ArgReg32, ArgRM32}, Opcode: []byte{base + 0x03}, HasModRM: true, Digit: -1, MinBits: 32},
		{Mnemonic: mnemonic, Args: []ArgType{ArgAL, ArgImm8}, Opcode: []byte{base + 0x04}},
		{Mnemonic: mnemonic, Args: []ArgType{ArgAX, ArgImm16}, Opcode: []byte{base + 0x05}},
		{Mnemonic: mnemonic, Args: []ArgType{ArgRM8, ArgImm8}, Opcode: []byte{0x80}, HasModRM: true, Digit: group},
		{Mnemonic: mnemonic, Args: []ArgType{ArgRM16, ArgImm8S}, Opcode: []byte{0x83}, HasModRM: true, Digit: group},
		{Mnemonic: mnemonic, Args: []ArgType{ArgRM16, ArgImm16}, Opcode: []byte{0x81}, HasModRM: true, Digit: group},
	}
}

// conditionCodes maps a jcc mnemonic to its 4-bit condition field.
var conditionCodes = map[string]byte{
	"jo": 0x0, "jno": 0x1, "jb": 0x2, "jc": 0x2, "jnae": 0x2,
	"jnb": 0x3, "jnc": 0x3, "jae": 0x3, "jz": 0x4, "je": 0x4,
	"jnz": 0x5, "jne": 0x5, "jbe": 0x6, "jna": 0x6, "ja": 0x7, "jnbe": 0x7,
	"js": 0x8, "jns": 0x9, "jp": 0xA, "jpe": 0xA, "jnp": 0xB, "jpo": 0xB,
	"jl": 0xC, "jnge": 0xC, "jge": 0xD, "jnl": 0xD,
	"jle": 0xE, "jng": 0xE, "jg": 0xF, "jnle": 0xF,
}

// matchArg reports whether op satisfies matcher kind t in the given bits
// mode. relFits8 tells the ArgRel8/ArgRel16 matchers whether the branch
// target's computed relative displacement fits a signed byte; the caller
// (the layout engine, which alone knows the instruction's candidate address)
// supplies it per spec 4.7's shrinking pass.
func matchArg(t ArgType, op *Operand, bits int, relFits8 bool) bool {
	switch t {
	case ArgReg8:
		return op.Kind == OpRegister && op.Reg.Size == 1 && !op.Reg.Segment
	case ArgReg16:
		return op.Kind == OpRegister && op.Reg.Size == 2 && !op.Reg.Segment
	case ArgReg32:
		return op.Kind == OpRegister && op.Reg.Size == 4
	case ArgSegReg:
		return op.Kind == OpRegister && op.Reg.Segment
	case ArgRM8:
		return (op.Kind == OpRegister && op.Reg.Size == 1 && !op.Reg.Segment) || (op.Kind == OpMemory && op.Size == 1)
	case ArgRM16:
		return (op.Kind == OpRegister && op.Reg.Size == 2 && !op.Reg.Segment) || (op.Kind == OpMemory && op.Size == 2)
	case ArgRM32:
		return (op.Kind == OpRegister && op.Reg.Size == 4) || (op.Kind == OpMemory && op.Size == 4)
	case ArgImm8:
		return op.Kind == OpNumber && fitsUnsigned(op, 1)
	case ArgImm16:
		return op.Kind == OpNumber && fitsUnsigned(op, 2)
	case ArgImm32:
		return op.Kind == OpNumber
	case ArgImm8S:
		return op.Kind == OpNumber && fitsSigned8(op)
	case ArgRel8:
		return op.Kind == OpNumber && relFits8
	case ArgRel16:
		return op.Kind == OpNumber && !relFits8
	case ArgMoffs8:
		return op.Kind == OpMemory && op.Size == 1 && op.Mem.Base == "" && op.Mem.Index == ""
	case ArgMoffs16:
		return op.Kind == OpMemory && op.Size == 2 && op.Mem.Base == "" && op.Mem.Index == ""
	case ArgFarPtr16, ArgFarPtr32:
		return op.Kind == OpFarPointer
	case ArgAL:
		return op.Kind == OpRegister && op.Reg.Name == "al"
	case ArgAX:
		return op.Kind == OpRegister && op.Reg.Name == "ax"
	case ArgEAX:
		return op.Kind == OpRegister && op.Reg.Name == "eax"
	case ArgCL:
		return op.Kind == OpRegister && op.Reg.Name == "cl"
	case ArgDX:
		return op.Kind == OpRegister && op.Reg.Name == "dx"
	case ArgOne:
		return op.Kind == OpNumber && !op.Unresolved && op.Value == 1
	case ArgSTi:
		return op.Kind == OpRegister && op.Reg.X87
	case ArgST0:
		return op.Kind == OpRegister && op.Reg.X87 && op.Reg.Name == "st0"
	}
	return false
}

func fitsUnsigned(op *Operand, size int) bool {
	if op.Unresolved {
		return size >= 2 // pessimistic: an unresolved value is assumed to need a word
	}
	switch size {
	case 1:
		return op.Value >= 0 && op.Value <= 0xFF
	case 2:
		return op.Value >= 0 && op.Value <= 0xFFFF
	}
	return true
}

func fitsSigned8(op *Operand) bool {
	if op.Unresolved {
		return false
	}
	return op.Value >= -128 && op.Value <= 127
}

// MatchSchema picks the first registered schema for mnemonic whose operand
// matchers all accept the given operands, under the active bits mode.
// relFits8 is consulted only for branch mnemonics; non-branch callers may
// pass false.
func MatchSchema(mnemonic string, operands []*Operand, bits int, relFits8 bool) (*Schema, error) {
	candidates := LookupSchemas(mnemonic)
	if candidates == nil {
		return nil, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}
	for _, s := range candidates {
		if s.MinBits != 0 && bits < s.MinBits {
			continue
		}
		if len(s.Args) != len(operands) {
			continue
		}
		ok := true
		for i, a := range s.Args {
			if !matchArg(a, operands[i], bits, relFits8) {
				ok = false
				break
			}
		}
		if ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no encoding of %q matches the given operands", mnemonic)
}

// HasBranchTarget reports whether mnemonic has both a rel8 and a rel16/32
// candidate schema, i.e. whether the caller must decide relFits8 before
// calling MatchSchema.
func HasBranchTarget(mnemonic string) bool {
	hasRel8, hasRel16 := false, false
	for _, s := range LookupSchemas(mnemonic) {
		if len(s.Args) == 1 && s.Args[0] == ArgRel8 {
			hasRel8 = true
		}
		if len(s.Args) == 1 && s.Args[0] == ArgRel16 {
			hasRel16 = true
		}
	}
	return hasRel8 && hasRel16
}
