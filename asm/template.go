package asm

import "fmt"

// EncodeContext carries the address information an Encoder needs: the
// instruction's own start address (for rel8/rel16 targets and $) and the
// section origin (for $$), plus the label/equ resolver.
type EncodeContext struct {
	ExprContext
	InstrAddr uint32
	InstrLen  uint32 // total encoded length, fixed before rel8/rel16 bytes are filled in
}

// Encoder turns a matched Schema + its operands into the final byte stream.
type Encoder struct{}

// Encode emits the prefix, opcode, ModR/M, displacement and immediate bytes
// for one instruction. A segment-override byte is emitted when the rm memory
// operand carries an explicit segment register; lockRep holds any
// `lock`/`rep*` mnemonic prefixes, emitted in program order ahead of the
// segment override.
func (e *Encoder) Encode(schema *Schema, operands []*Operand, bits int, ectx EncodeContext, lockRep []string) ([]byte, error) {
	var out []byte

	for _, p := range lockRep {
		switch p {
		case "lock":
			out = append(out, 0xF0)
		case "rep", "repe", "repz":
			out = append(out, 0xF3)
		case "repne", "repnz":
			out = append(out, 0xF2)
		}
	}

	memOp := memoryOperand(schema, operands)
	if memOp != nil && memOp.Mem.Sreg != "" {
		out = append(out, segOverridePrefix[memOp.Mem.Sreg])
	}

	opcode := append([]byte(nil), schema.Opcode...)

	_, regField, haveReg := regFieldOperand(schema, operands)
	if schema.OpcodeReg {
		if !haveReg {
			return nil, fmt.Errorf("%s: opcode+r encoding requires a register operand", schema.Mnemonic)
		}
		opcode[len(opcode)-1] += regField
	}
	out = append(out, opcode...)

	if schema.HasModRM {
		reg := byte(schema.Digit)
		if schema.Digit < 0 {
			if !haveReg {
				return nil, fmt.Errorf("%s: ModR/M encoding requires a register operand for the reg field", schema.Mnemonic)
			}
			reg = regField
		}
		rmOp := rmOperand(schema, operands)
		if rmOp == nil {
			return nil, fmt.Errorf("%s: ModR/M encoding requires an rm operand", schema.Mnemonic)
		}
		modrmBytes, err := encodeModRM(rmOp, reg, bits)
		if err != nil {
			return nil, err
		}
		out = append(out, modrmBytes...)
	}

	for i, a := range schema.Args {
		op := operands[i]
		switch a {
		case ArgImm8:
			out = append(out, byte(op.Value))
		case ArgImm8S:
			out = append(out, byte(op.Value))
		case ArgImm16:
			out = append(out, le16(uint16(op.Value))...)
		case ArgImm32:
			out = append(out, le32(uint32(op.Value))...)
		case ArgMoffs8, ArgMoffs16:
			out = append(out, le16(uint16(op.Mem.Displacement))...)
		case ArgRel8:
			rel := op.Value - int64(ectx.InstrAddr) - int64(ectx.InstrLen)
			out = append(out, byte(int8(rel)))
		case ArgRel16:
			rel := op.Value - int64(ectx.InstrAddr) - int64(ectx.InstrLen)
			out = append(out, le16(uint16(int16(rel)))...)
		case ArgFarPtr16:
			out = append(out, le16(uint16(op.OffValue))...)
			out = append(out, le16(uint16(op.SegValue))...)
		}
	}

	if uint32(len(out)) != ectx.InstrLen && ectx.InstrLen != 0 {
		return nil, fmt.Errorf("%s: encoded length %d does not match predicted length %d", schema.Mnemonic, len(out), ectx.InstrLen)
	}
	return out, nil
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func memoryOperand(schema *Schema, operands []*Operand) *Operand {
	for i, a := range schema.Args {
		if (a == ArgRM8 || a == ArgRM16 || a == ArgRM32) && operands[i].Kind == OpMemory {
			return operands[i]
		}
	}
	return nil
}

func rmOperand(schema *Schema, operands []*Operand) *Operand {
	for i, a := range schema.Args {
		if a == ArgRM8 || a == ArgRM16 || a == ArgRM32 {
			return operands[i]
		}
	}
	return nil
}

// regFieldOperand finds the operand supplying the ModR/M reg field or the
// opcode+r register index: the first operand whose matcher names an
// unambiguous register class.
func regFieldOperand(schema *Schema, operands []*Operand) (op *Operand, index byte, ok bool) {
	for i, a := range schema.Args {
		switch a {
		case ArgReg8, ArgReg16, ArgReg32, ArgSegReg, ArgSTi, ArgST0, ArgAX, ArgAL, ArgEAX:
			if operands[i].Kind == OpRegister {
				return operands[i], operands[i].Reg.Index, true
			}
		}
	}
	return nil, 0, false
}

// encodeModRM synthesizes the ModR/M byte (and any SIB/displacement bytes)
// for rmOp with the given reg field.
func encodeModRM(rmOp *Operand, reg byte, bits int) ([]byte, error) {
	if rmOp.Kind == OpRegister {
		modrm := byte(0xC0) | (reg << 3) | (rmOp.Reg.Index & 0x7)
		return []byte{modrm}, nil
	}
	if bits == 16 {
		return encodeModRM16(rmOp.Mem, reg)
	}
	return encodeModRM32Simple(rmOp.Mem, reg)
}

// encodeModRM16 implements the classic 8086/80186 16-bit addressing table
// (spec 4.4): bx+si, bx+di, bp+si, bp+di, si, di, bp (disp-only forces
// mod=01), bx, or a direct disp16 with no base/index.
func encodeModRM16(mem *MemAddressDescription, reg byte) ([]byte, error) {
	var base, index string
	for _, r := range []string{mem.Base, mem.Index} {
		switch r {
		case "":
		case "bx", "bp":
			if base != "" {
				return nil, fmt.Errorf("invalid 16-bit addressing mode: two base registers")
			}
			base = r
		case "si", "di":
			if index != "" {
				return nil, fmt.Errorf("invalid 16-bit addressing mode: two index registers")
			}
			index = r
		default:
			return nil, fmt.Errorf("invalid 16-bit addressing mode: %s cannot be used as a base/index register", r)
		}
	}

	var rm byte
	switch {
	case base == "bx" && index == "si":
		rm = 0
	case base == "bx" && index == "di":
		rm = 1
	case base == "bp" && index == "si":
		rm = 2
	case base == "bp" && index == "di":
		rm = 3
	case base == "" && index == "si":
		rm = 4
	case base == "" && index == "di":
		rm = 5
	case base == "bp" && index == "":
		rm = 6
	case base == "bx" && index == "":
		rm = 7
	case base == "" && index == "":
		rm = 6
	default:
		return nil, fmt.Errorf("invalid 16-bit addressing mode")
	}

	out := []byte{0}
	var mod byte
	var disp []byte
	switch {
	case base == "" && index == "":
		mod = 0
		disp = le16(uint16(mem.Displacement))
	case mem.Unresolved:
		mod = 2
		disp = le16(uint16(mem.Displacement))
	case base == "bp" && index == "" && !mem.HasDisp:
		mod = 1
		disp = []byte{0}
	case !mem.HasDisp:
		mod = 0
	case mem.SignedDispSize == 1:
		mod = 1
		disp = []byte{byte(int8(mem.Displacement))}
	default:
		mod = 2
		disp = le16(uint16(mem.Displacement))
	}

	out[0] = (mod << 6) | (reg << 3) | rm
	out = append(out, disp...)
	return out, nil
}

// encodeModRM32Simple handles 80386+ 32-bit memory operands limited to a
// single base register (no SIB byte): scaled/double-register indexing is
// out of scope (see DESIGN.md).
func encodeModRM32Simple(mem *MemAddressDescription, reg byte) ([]byte, error) {
	if mem.Index != "" || mem.Scale != 1 {
		return nil, fmt.Errorf("scaled/SIB 32-bit addressing is not supported")
	}
	if mem.Base == "" {
		return nil, fmt.Errorf("32-bit disp32-only addressing requires a SIB byte, which is not supported")
	}
	baseReg := Lookup(mem.Base)
	if baseReg == nil || baseReg.Size != 4 {
		return nil, fmt.Errorf("invalid 32-bit base register %q", mem.Base)
	}
	if baseReg.Index == 4 { // esp requires a SIB byte even for base-only forms
		return nil, fmt.Errorf("esp as a base register requires a SIB byte, which is not supported")
	}

	var mod byte
	var disp []byte
	switch {
	case mem.Unresolved:
		mod = 2
		disp = le32(uint32(mem.Displacement))
	case baseReg.Index == 5 && !mem.HasDisp: // ebp disp-only forces mod=01
		mod = 1
		disp = []byte{0}
	case !mem.HasDisp:
		mod = 0
	case mem.SignedDispSize == 1:
		mod = 1
		disp = []byte{byte(int8(mem.Displacement))}
	default:
		mod = 2
		disp = le32(uint32(mem.Displacement))
	}

	out := []byte{(mod << 6) | (reg << 3) | (baseReg.Index & 0x7)}
	out = append(out, disp...)
	return out, nil
}

// InstructionLength predicts the encoded byte length of schema applied to
// operands without needing rel8/rel16 target values yet (ectx.InstrLen may
// be left 0 for this call).
func InstructionLength(schema *Schema, operands []*Operand, bits int) (int, error) {
	n := len(schema.Opcode)
	if memOp := memoryOperand(schema, operands); memOp != nil && memOp.Mem.Sreg != "" {
		n++
	}
	if schema.HasModRM {
		rmOp := rmOperand(schema, operands)
		if rmOp == nil {
			return 0, fmt.Errorf("%s: ModR/M encoding requires an rm operand", schema.Mnemonic)
		}
		if rmOp.Kind == OpRegister {
			n++
		} else if bits == 16 {
			bytes, err := encodeModRM16(rmOp.Mem, 0)
			if err != nil {
				return 0, err
			}
			n += len(bytes)
		} else {
			bytes, err := encodeModRM32Simple(rmOp.Mem, 0)
			if err != nil {
				return 0, err
			}
			n += len(bytes)
		}
	}
	for _, a := range schema.Args {
		switch a {
		case ArgImm8, ArgImm8S, ArgRel8:
			n++
		case ArgImm16, ArgRel16, ArgMoffs8, ArgMoffs16:
			n += 2
		case ArgImm32:
			n += 4
		case ArgFarPtr16:
			n += 4
		}
	}
	return n, nil
}
