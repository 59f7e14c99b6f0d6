package asm

import (
	"fmt"
	"strings"

	"github.com/lookbusy1344/nasm8086/parser"
)

// OperandKind distinguishes the operand forms the matcher (schema.go) needs
// to tell apart.
type OperandKind int

const (
	OpRegister OperandKind = iota
	OpNumber             // immediate or label-valued address expression
	OpMemory             // `[...]`
	OpFarPointer         // `seg:offset` immediate, e.g. a far jmp/call target
	OpString             // quoted string inside a db/dw/dd define directive (handled directly by encodeDefine, not via ParseOperand)
)

// Operand is the parsed, but not yet schema-matched, form of one raw operand
// phrase. Size is the operand's byte width: explicit (from a byte/word/dword
// override or a register), or 0 if it must be deduced from its sibling
// operand per the mixed-size rule.
type Operand struct {
	Kind     OperandKind
	Raw      string
	Reg      *Register
	Value    int64
	Label    string // the identifier text, when Value came from a name (for diagnostics)
	Mem      *MemAddressDescription
	SegValue int64
	OffValue int64
	Str      string
	Size     int
	Explicit bool // true if Size came from an explicit byte/word/dword keyword
	Unresolved bool
}

// ParseOperand parses one comma-split operand phrase (already trimmed of
// surrounding whitespace by the caller) into an Operand. bits is the active
// `[bits 16]`/`[bits 32]` mode, needed to validate memory addressing forms.
func ParseOperand(text string, bits int, ctx ExprContext) (*Operand, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("empty operand")
	}

	size := 0
	explicit := false
	if w, rest, ok := stripSizeKeyword(s); ok {
		size = w
		explicit = true
		s = rest
	}

	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		mem, err := ParseMemoryExpression(s[1:len(s)-1], bits, ctx)
		if err != nil {
			return nil, err
		}
		return &Operand{Kind: OpMemory, Raw: text, Mem: mem, Size: size, Explicit: explicit, Unresolved: mem.Unresolved}, nil
	}

	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		str := parser.ProcessEscapeSequences(s[1 : len(s)-1])
		val, packedSize := packStringLiteral(str)
		if size == 0 {
			size = packedSize
		}
		return &Operand{Kind: OpNumber, Raw: text, Value: val, Str: str, Size: size, Explicit: explicit}, nil
	}

	if reg := Lookup(strings.ToLower(s)); reg != nil {
		return &Operand{Kind: OpRegister, Raw: text, Reg: reg, Size: reg.Size, Explicit: true}, nil
	}

	if idx := farPointerColonIdx(s); idx >= 0 {
		segExpr := strings.TrimSpace(s[:idx])
		offExpr := strings.TrimSpace(s[idx+1:])
		segVal, segResolved, err := EvalExpr(segExpr, ctx)
		if err != nil {
			return nil, err
		}
		offVal, offResolved, err := EvalExpr(offExpr, ctx)
		if err != nil {
			return nil, err
		}
		return &Operand{
			Kind: OpFarPointer, Raw: text, SegValue: segVal, OffValue: offVal,
			Size: size, Explicit: explicit, Unresolved: !segResolved || !offResolved,
		}, nil
	}

	value, resolved, err := EvalExpr(s, ctx)
	if err != nil {
		return nil, err
	}
	return &Operand{
		Kind: OpNumber, Raw: text, Value: value, Label: s,
		Size: size, Explicit: explicit, Unresolved: !resolved,
	}, nil
}

// stripSizeKeyword recognizes a leading `byte`/`word`/`dword` size override,
// optionally followed by `ptr`, and returns the byte width and remaining text.
func stripSizeKeyword(s string) (size int, rest string, ok bool) {
	word, tail := splitFirstWord(s)
	var w int
	switch strings.ToLower(word) {
	case "byte":
		w = 1
	case "word":
		w = 2
	case "dword":
		w = 4
	default:
		return 0, s, false
	}
	if word2, tail2 := splitFirstWord(tail); strings.ToLower(word2) == "ptr" {
		tail = tail2
	}
	return w, strings.TrimSpace(tail), true
}

// packStringLiteral packs a quoted-string operand's bytes into a little-
// endian immediate value the way NASM does for `mov ax, 'AB'`-style
// character constants: the first character becomes the low-order byte.
func packStringLiteral(s string) (value int64, size int) {
	b := []byte(s)
	for i := 0; i < len(b) && i < 8; i++ {
		value |= int64(b[i]) << (8 * uint(i))
	}
	return value, len(b)
}

func splitFirstWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// farPointerColonIdx finds a top-level ':' outside brackets/quotes that
// separates a segment expression from an offset expression, e.g. `0x40:0x10`.
func farPointerColonIdx(s string) int {
	depth := 0
	inQuote := rune(0)
	for i, c := range s {
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == '[':
			depth++
		case c == ']':
			if depth > 0 {
				depth--
			}
		case c == ':' && depth == 0:
			return i
		}
	}
	return -1
}

// ResolveOperandSizes applies the mixed-size rule (spec 4.2): a Number
// operand with no explicit size takes the other operand's size; a Memory
// operand with no explicit size and no register sibling is an error.
func ResolveOperandSizes(dst, src *Operand) error {
	if dst == nil || src == nil {
		return nil
	}
	if dst.Kind == OpMemory && dst.Size == 0 && src.Kind != OpRegister {
		return fmt.Errorf("cannot determine operand size for memory reference %q", dst.Raw)
	}
	if src.Kind == OpMemory && src.Size == 0 && dst.Kind != OpRegister {
		return fmt.Errorf("cannot determine operand size for memory reference %q", src.Raw)
	}
	if dst.Size == 0 && src.Size != 0 {
		dst.Size = src.Size
	}
	if src.Size == 0 && dst.Size != 0 {
		src.Size = dst.Size
	}
	if dst.Kind == OpMemory && dst.Size == 0 {
		return fmt.Errorf("cannot determine operand size for memory reference %q", dst.Raw)
	}
	if src.Kind == OpMemory && src.Size == 0 {
		return fmt.Errorf("cannot determine operand size for memory reference %q", src.Raw)
	}
	if dst.Kind == OpRegister && src.Kind == OpRegister && dst.Size != src.Size {
		return fmt.Errorf("operand size mismatch: %s is %d bytes, %s is %d bytes", dst.Raw, dst.Size, src.Raw, src.Size)
	}
	return nil
}
