package asm

import "testing"

func TestParseOperand_Register(t *testing.T) {
	op, err := ParseOperand("ax", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind != OpRegister || op.Reg == nil || op.Reg.Name != "ax" || op.Size != 2 {
		t.Errorf("unexpected operand: %#v", op)
	}
}

func TestParseOperand_Immediate(t *testing.T) {
	op, err := ParseOperand("0x10", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind != OpNumber || op.Value != 0x10 || op.Size != 0 {
		t.Errorf("unexpected operand: %#v", op)
	}
}

func TestParseOperand_ExplicitSize(t *testing.T) {
	op, err := ParseOperand("byte 5", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Size != 1 || !op.Explicit {
		t.Errorf("expected explicit byte size, got %#v", op)
	}
}

func TestParseOperand_SizePtrKeyword(t *testing.T) {
	op, err := ParseOperand("word ptr [bx]", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind != OpMemory || op.Size != 2 {
		t.Errorf("expected word-sized memory operand, got %#v", op)
	}
}

func TestParseOperand_Memory(t *testing.T) {
	op, err := ParseOperand("[bx+si]", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind != OpMemory || op.Mem == nil {
		t.Fatalf("expected memory operand, got %#v", op)
	}
	if op.Mem.Base != "bx" {
		t.Errorf("expected base bx, got %q", op.Mem.Base)
	}
	if op.Mem.Index != "si" {
		t.Errorf("expected index si, got %q", op.Mem.Index)
	}
}

func TestParseOperand_String(t *testing.T) {
	// A quoted-string instruction operand (e.g. `mov ax, 'hi'`) must pack
	// into a little-endian Number immediate, not the define-directive-only
	// OpString kind, or it can never match an ArgImm* schema.
	op, err := ParseOperand(`"hi"`, 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind != OpNumber {
		t.Fatalf("expected OpNumber, got %v", op.Kind)
	}
	// 'h'=0x68 is the low byte, 'i'=0x69 the high byte.
	if op.Value != 0x6968 {
		t.Errorf("expected packed value 0x6968, got 0x%X", op.Value)
	}
	if op.Size != 2 {
		t.Errorf("expected size 2, got %d", op.Size)
	}
	if op.Str != "hi" {
		t.Errorf("expected Str to retain the original text, got %q", op.Str)
	}
}

func TestParseOperand_StringEscapes(t *testing.T) {
	op, err := ParseOperand(`"a\nb"`, 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Str != "a\nb" {
		t.Errorf("expected escape-processed string, got %q", op.Str)
	}
	// 'a'=0x61, '\n'=0x0A, 'b'=0x62, packed little-endian across 3 bytes.
	if op.Value != 0x620A61 {
		t.Errorf("expected packed value 0x620A61, got 0x%X", op.Value)
	}
	if op.Size != 3 {
		t.Errorf("expected size 3, got %d", op.Size)
	}
}

func TestParseOperand_FarPointer(t *testing.T) {
	op, err := ParseOperand("0x40:0x10", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind != OpFarPointer || op.SegValue != 0x40 || op.OffValue != 0x10 {
		t.Errorf("unexpected operand: %#v", op)
	}
}

func TestParseOperand_UnresolvedLabel(t *testing.T) {
	op, err := ParseOperand("not_yet_defined", 16, ExprContext{
		Resolve: func(string) (int64, bool) { return 0, false },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind != OpNumber || !op.Unresolved {
		t.Errorf("expected unresolved number operand, got %#v", op)
	}
}

func TestParseOperand_Empty(t *testing.T) {
	if _, err := ParseOperand("   ", 16, ExprContext{}); err == nil {
		t.Error("expected error for empty operand")
	}
}

func TestResolveOperandSizes_PropagatesFromRegister(t *testing.T) {
	dst := &Operand{Kind: OpRegister, Size: 2}
	src := &Operand{Kind: OpNumber, Size: 0}
	if err := ResolveOperandSizes(dst, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Size != 2 {
		t.Errorf("expected src size to inherit 2, got %d", src.Size)
	}
}

func TestResolveOperandSizes_MemoryWithNoSizeIsError(t *testing.T) {
	dst := &Operand{Kind: OpMemory, Size: 0, Raw: "[bx]"}
	src := &Operand{Kind: OpNumber, Size: 0}
	if err := ResolveOperandSizes(dst, src); err == nil {
		t.Error("expected error for ambiguous memory operand size")
	}
}

func TestResolveOperandSizes_RegisterMismatchIsError(t *testing.T) {
	dst := &Operand{Kind: OpRegister, Size: 1}
	src := &Operand{Kind: OpRegister, Size: 2}
	if err := ResolveOperandSizes(dst, src); err == nil {
		t.Error("expected error for register size mismatch")
	}
}

func TestResolveOperandSizes_NilIsNoop(t *testing.T) {
	if err := ResolveOperandSizes(nil, nil); err != nil {
		t.Errorf("expected no error for nil operands, got %v", err)
	}
}
