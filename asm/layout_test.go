package asm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lookbusy1344/nasm8086/asm"
	"github.com/lookbusy1344/nasm8086/parser"
)

func layoutSource(t *testing.T, src string) *asm.LayoutResult {
	t.Helper()
	p := parser.NewParser(src, "test.asm")
	prog, err := p.Parse()
	require.NoError(t, err)
	l := asm.NewLayouter()
	result, err := l.Layout(prog)
	require.NoError(t, err)
	return result
}

func TestLayout_MovVariants(t *testing.T) {
	result := layoutSource(t, "mov ax, bx\nmov al, 0x10\nmov word [bx], 0x1234")
	require.Len(t, result.Items, 3)
	require.Equal(t, []byte{0x89, 0xD8}, result.Items[0].Bytes)
	require.Equal(t, []byte{0xB0, 0x10}, result.Items[1].Bytes)
	require.Equal(t, []byte{0xC7, 0x07, 0x34, 0x12}, result.Items[2].Bytes)
}

func TestLayout_JmpShortToForwardLabel(t *testing.T) {
	result := layoutSource(t, "jmp short done\nnop\ndone:\nnop")
	require.Len(t, result.Items, 3)
	require.Equal(t, []byte{0xEB, 0x01}, result.Items[0].Bytes)
}

func TestLayout_JncShort(t *testing.T) {
	result := layoutSource(t, "start:\njnc start")
	require.Len(t, result.Items, 1)
	require.Equal(t, []byte{0x73, 0xFE}, result.Items[0].Bytes)
}

func TestLayout_Int3(t *testing.T) {
	result := layoutSource(t, "int3")
	require.Len(t, result.Items, 1)
	require.Equal(t, []byte{0xCC}, result.Items[0].Bytes)
}

func TestLayout_NopAndTimes(t *testing.T) {
	result := layoutSource(t, "times 4 nop")
	require.Len(t, result.Items, 4)
	for _, item := range result.Items {
		require.Equal(t, []byte{0x90}, item.Bytes)
	}
	require.Equal(t, uint32(0), result.Items[0].Address)
	require.Equal(t, uint32(3), result.Items[3].Address)
}

func TestLayout_TimesDb(t *testing.T) {
	result := layoutSource(t, "times 3 db 0xAA")
	require.Len(t, result.Items, 3)
	for i, item := range result.Items {
		require.Equal(t, []byte{0xAA}, item.Bytes, "item %d", i)
	}
}

func TestLayout_ByteDisplacementAddressing(t *testing.T) {
	result := layoutSource(t, "mov ax, [si+0x5]")
	require.Len(t, result.Items, 1)
	// mov reg16, rm16 (0x8B), ModR/M for [si+disp8]: mod=01 rm=100 reg=000 -> 0x44
	require.Equal(t, []byte{0x8B, 0x44, 0x05}, result.Items[0].Bytes)
}

func TestLayout_ExplicitZeroDisplacementOnBpIsNotTruncated(t *testing.T) {
	// [bp+0] must still emit the disp8=0x00 byte: collapsing it to the bare
	// mod=00/rm=110 encoding would reinterpret the instruction as the
	// pure-disp16 form and corrupt everything that follows in the image.
	result := layoutSource(t, "mov ax, [bp+0]\nnop")
	require.Len(t, result.Items, 2)
	require.Equal(t, []byte{0x8B, 0x46, 0x00}, result.Items[0].Bytes)
	require.Equal(t, uint32(3), result.Items[1].Address)
}

func TestLayout_BareBpHasSameEncodingAsExplicitZeroDisplacement(t *testing.T) {
	result := layoutSource(t, "mov ax, [bp]")
	require.Len(t, result.Items, 1)
	require.Equal(t, []byte{0x8B, 0x46, 0x00}, result.Items[0].Bytes)
}

func TestLayout_QuotedStringImmediateOperand(t *testing.T) {
	// A quoted-string instruction operand must pack into a little-endian
	// immediate so it can match an ArgImm16 schema like any other number.
	result := layoutSource(t, "mov ax, 'AB'")
	require.Len(t, result.Items, 1)
	// mov ax, imm16 (0xB8 + reg): 'A'=0x41 low byte, 'B'=0x42 high byte.
	require.Equal(t, []byte{0xB8, 0x41, 0x42}, result.Items[0].Bytes)
}

func TestLayout_OrgDirective(t *testing.T) {
	result := layoutSource(t, "[org 0x7C00]\nnop")
	require.Equal(t, uint32(0x7C00), result.Origin)
	require.Equal(t, uint32(0x7C00), result.Items[0].Address)
}

func TestLayout_BitsDirectiveSwitchesTo32(t *testing.T) {
	result := layoutSource(t, "[bits 32]\nmov eax, ebx")
	require.Equal(t, 32, result.Bits)
	require.Len(t, result.Items, 1)
	require.Equal(t, []byte{0x89, 0xD8}, result.Items[0].Bytes)
}

func TestLayout_ShrinkingConvergesAcrossPasses(t *testing.T) {
	// The forward label "near_target" is unresolved on the first pass, so
	// the first-pass guess is the near (E9) jmp form, but since the actual
	// gap fits in a signed byte the engine converges on the short (EB)
	// encoding once it resolves addresses.
	src := "jmp near_target\n" +
		"nop\n" +
		"near_target:\n" +
		"nop"
	result := layoutSource(t, src)
	require.Equal(t, []byte{0xEB, 0x01}, result.Items[0].Bytes)
	require.Greater(t, result.Passes, 0)
}

func TestLayout_UndefinedSymbolIsError(t *testing.T) {
	p := parser.NewParser("jmp undefined_label", "test.asm")
	prog, err := p.Parse()
	require.NoError(t, err)
	l := asm.NewLayouter()
	_, err = l.Layout(prog)
	require.Error(t, err)
}

func TestLayout_TimesCountForwardReferenceIsError(t *testing.T) {
	p := parser.NewParser("times count nop\ncount equ 3", "test.asm")
	prog, err := p.Parse()
	require.NoError(t, err)
	l := asm.NewLayouter()
	_, err = l.Layout(prog)
	require.Error(t, err)
}

func TestLayout_LocalLabelScoping(t *testing.T) {
	src := "first:\n.loop:\njnz .loop\nsecond:\n.loop:\njnz .loop"
	result := layoutSource(t, src)
	require.Len(t, result.Items, 2)
	// Both local .loop labels resolve to their own enclosing global label,
	// so both jnz instructions should encode as a short backward branch to
	// their own position (rel = -2).
	require.Equal(t, []byte{0x75, 0xFE}, result.Items[0].Bytes)
	require.Equal(t, []byte{0x75, 0xFE}, result.Items[1].Bytes)
}

func TestLayout_DefaultBitsAndOriginFromLayouter(t *testing.T) {
	p := parser.NewParser("mov eax, ebx", "test.asm")
	prog, err := p.Parse()
	require.NoError(t, err)
	l := asm.NewLayouter()
	l.DefaultBits = 32
	l.DefaultOrigin = 0x1000
	result, err := l.Layout(prog)
	require.NoError(t, err)
	require.Equal(t, 32, result.Bits)
	require.Equal(t, uint32(0x1000), result.Origin)
	require.Equal(t, uint32(0x1000), result.Items[0].Address)
}
