package asm

import "testing"

func TestParseMemoryExpression_BaseOnly(t *testing.T) {
	desc, err := ParseMemoryExpression("bx", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Base != "bx" || desc.Index != "" || desc.HasDisp {
		t.Errorf("unexpected descriptor: %#v", desc)
	}
}

func TestParseMemoryExpression_BaseAndIndex(t *testing.T) {
	desc, err := ParseMemoryExpression("bx+si", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Base != "bx" || desc.Index != "si" {
		t.Errorf("unexpected descriptor: %#v", desc)
	}
}

func TestParseMemoryExpression_BaseWithDisplacement(t *testing.T) {
	desc, err := ParseMemoryExpression("si+0x5", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Base != "si" || !desc.HasDisp || desc.Displacement != 5 {
		t.Errorf("unexpected descriptor: %#v", desc)
	}
	if desc.SignedDispSize != 1 {
		t.Errorf("expected byte-sized displacement, got %d", desc.SignedDispSize)
	}
}

func TestParseMemoryExpression_NegativeDisplacement(t *testing.T) {
	desc, err := ParseMemoryExpression("bp-2", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Base != "bp" || desc.Displacement != -2 {
		t.Errorf("unexpected descriptor: %#v", desc)
	}
}

func TestParseMemoryExpression_PureDisplacement(t *testing.T) {
	desc, err := ParseMemoryExpression("0x1234", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Base != "" || desc.Index != "" || !desc.HasDisp || desc.Displacement != 0x1234 {
		t.Errorf("unexpected descriptor: %#v", desc)
	}
}

func TestParseMemoryExpression_SegmentOverride(t *testing.T) {
	desc, err := ParseMemoryExpression("es:bx", 16, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Sreg != "es" || desc.Base != "bx" {
		t.Errorf("unexpected descriptor: %#v", desc)
	}
}

func TestParseMemoryExpression_SegmentOverrideRejectsNonSegmentRegister(t *testing.T) {
	if _, err := ParseMemoryExpression("ax:bx", 16, ExprContext{}); err == nil {
		t.Error("expected error for non-segment register used as override")
	}
}

func TestParseMemoryExpression_TooManyRegisters(t *testing.T) {
	if _, err := ParseMemoryExpression("bx+si+di", 16, ExprContext{}); err == nil {
		t.Error("expected error for three registers in one memory operand")
	}
}

func TestParseMemoryExpression_16BitRejectsScaledIndex(t *testing.T) {
	if _, err := ParseMemoryExpression("si*2", 16, ExprContext{}); err == nil {
		t.Error("expected error for scaled index in 16-bit mode")
	}
}

func TestParseMemoryExpression_16BitRejects32BitRegister(t *testing.T) {
	if _, err := ParseMemoryExpression("ebx", 16, ExprContext{}); err == nil {
		t.Error("expected error for a 32-bit base register in 16-bit mode")
	}
}

func TestParseMemoryExpression_32BitScaledIndex(t *testing.T) {
	desc, err := ParseMemoryExpression("eax+ebx*4", 32, ExprContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Base != "eax" || desc.Index != "ebx" || desc.Scale != 4 {
		t.Errorf("unexpected descriptor: %#v", desc)
	}
}

func TestParseMemoryExpression_InvalidScale(t *testing.T) {
	if _, err := ParseMemoryExpression("eax*3", 32, ExprContext{}); err == nil {
		t.Error("expected error for invalid scale factor")
	}
}

func TestParseMemoryExpression_UnresolvedDisplacement(t *testing.T) {
	desc, err := ParseMemoryExpression("bx+label_ahead", 16, ExprContext{
		Resolve: func(string) (int64, bool) { return 0, false },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !desc.Unresolved {
		t.Error("expected unresolved displacement")
	}
	if desc.DispByteSize != 2 || desc.SignedDispSize != 2 {
		t.Errorf("expected pessimistic 2-byte sizing for unresolved displacement, got %#v", desc)
	}
}

func TestDisplacementSizes(t *testing.T) {
	cases := []struct {
		value              int64
		wantUnsigned, want int
	}{
		{0, 1, 1},
		{127, 1, 1},
		{128, 2, 2},
		{-128, 2, 1},
		{-129, 2, 2},
		{255, 2, 2},
		{256, 2, 2},
	}
	for _, c := range cases {
		gotU, gotS := displacementSizes(c.value, false)
		if gotU != c.wantUnsigned || gotS != c.want {
			t.Errorf("displacementSizes(%d): expected (%d,%d), got (%d,%d)", c.value, c.wantUnsigned, c.want, gotU, gotS)
		}
	}
}
