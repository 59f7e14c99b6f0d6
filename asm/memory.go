package asm

import (
	"fmt"
	"strings"
)

// MemAddressDescription is the resolved form of a `[...]` memory operand:
// an optional segment override, an optional base/index pair with scale,
// and a folded displacement.
type MemAddressDescription struct {
	Sreg           string // "" or a segment register name
	Base           string // "" or a 16/32-bit GPR name
	Index          string // "" or a 16/32-bit GPR name
	Scale          int    // 1, 2, 4, or 8; always 1 in 16-bit mode
	Displacement   int64
	HasDisp        bool
	DispByteSize   int  // 1 or 2 (16-bit mode); also set (to 1) when HasDisp is false
	SignedDispSize int  // smallest size (1 or 2) the signed displacement fits in
	Unresolved     bool // true if the displacement referenced an unresolved label
}

// ParseMemoryExpression reduces the text inside `[...]` to a
// MemAddressDescription, folding any constant arithmetic via EvalExpr.
// bits is the active operand-size mode (16 or 32); scaled indexing and
// 32-bit index registers are rejected outside bits==32.
func ParseMemoryExpression(phrase string, bits int, ctx ExprContext) (*MemAddressDescription, error) {
	phrase = strings.TrimSpace(phrase)

	desc := &MemAddressDescription{Scale: 1}

	if idx := topLevelColonIdx(phrase); idx >= 0 {
		segName := strings.ToLower(strings.TrimSpace(phrase[:idx]))
		reg := Lookup(segName)
		if reg == nil || !reg.Segment {
			return nil, fmt.Errorf("%s: register is not a segment register", segName)
		}
		desc.Sreg = segName
		phrase = strings.TrimSpace(phrase[idx+1:])
	}

	toks, err := tokenizeExpr(phrase)
	if err != nil {
		return nil, err
	}

	var dispExpr strings.Builder
	scaleSet := false

	i := 0
	for i < len(toks) {
		sign := "+"
		if toks[i].kind == exprOp && (toks[i].text == "+" || toks[i].text == "-") {
			sign = toks[i].text
			i++
			if i >= len(toks) {
				return nil, fmt.Errorf("incorrect memory expression %q", phrase)
			}
		}

		// num * reg
		if toks[i].kind == exprNumber && i+2 < len(toks) &&
			toks[i+1].kind == exprOp && toks[i+1].text == "*" &&
			toks[i+2].kind == exprIdent && Lookup(strings.ToLower(toks[i+2].text)) != nil {
			scaleVal, _ := ParseNumberLiteral(toks[i].text)
			if scaleSet {
				return nil, fmt.Errorf("scale is already defined in %q", phrase)
			}
			if scaleVal != 1 && scaleVal != 2 && scaleVal != 4 && scaleVal != 8 {
				return nil, fmt.Errorf("scale must be 1, 2, 4 or 8, got %d", scaleVal)
			}
			desc.Index = strings.ToLower(toks[i+2].text)
			desc.Scale = int(scaleVal)
			scaleSet = true
			i += 3
			continue
		}

		if toks[i].kind == exprIdent {
			if reg := Lookup(strings.ToLower(toks[i].text)); reg != nil && !reg.Segment && !reg.X87 {
				regName := strings.ToLower(toks[i].text)
				i++
				// reg * num
				if i+1 < len(toks) && toks[i].kind == exprOp && toks[i].text == "*" && toks[i+1].kind == exprNumber {
					scaleVal, _ := ParseNumberLiteral(toks[i+1].text)
					if scaleSet {
						return nil, fmt.Errorf("scale is already defined in %q", phrase)
					}
					if scaleVal != 1 && scaleVal != 2 && scaleVal != 4 && scaleVal != 8 {
						return nil, fmt.Errorf("scale must be 1, 2, 4 or 8, got %d", scaleVal)
					}
					desc.Index = regName
					desc.Scale = int(scaleVal)
					scaleSet = true
					i += 2
					continue
				}
				switch {
				case desc.Base == "" && desc.Index == "":
					desc.Base = regName
				case desc.Index == "":
					desc.Index = regName
				default:
					return nil, fmt.Errorf("incorrect memory expression %q: too many registers", phrase)
				}
				continue
			}
		}

		// plain numeric/label atom: contributes to the displacement expression
		dispExpr.WriteString(sign)
		dispExpr.WriteString(toks[i].text)
		i++
	}

	if bits == 16 {
		if desc.Scale != 1 {
			return nil, fmt.Errorf("scaled indexing is unsupported in 16-bit mode")
		}
		for _, r := range []string{desc.Base, desc.Index} {
			if r == "" {
				continue
			}
			if reg := Lookup(r); reg != nil && reg.Size != 2 {
				return nil, fmt.Errorf("%s is unsupported as a memory base/index in 16-bit mode", r)
			}
		}
	}

	exprStr := dispExpr.String()
	if exprStr == "" {
		desc.HasDisp = desc.Base == "" && desc.Index == ""
		desc.Displacement = 0
	} else {
		value, resolved, err := EvalExpr(exprStr, ctx)
		if err != nil {
			return nil, err
		}
		desc.HasDisp = true
		desc.Displacement = value
		desc.Unresolved = !resolved
	}

	desc.DispByteSize, desc.SignedDispSize = displacementSizes(desc.Displacement, desc.Unresolved)
	return desc, nil
}

// displacementSizes picks the unsigned and signed byte widths needed to
// represent value; an unresolved displacement is sized pessimistically (2).
func displacementSizes(value int64, unresolved bool) (unsignedSize, signedSize int) {
	if unresolved {
		return 2, 2
	}
	if value >= -128 && value <= 127 {
		signedSize = 1
	} else {
		signedSize = 2
	}
	if value >= 0 && value <= 0xFF {
		unsignedSize = 1
	} else {
		unsignedSize = 2
	}
	if signedSize > unsignedSize {
		unsignedSize = signedSize
	}
	return unsignedSize, signedSize
}

// topLevelColonIdx returns the index of the first ':' in s, or -1.
func topLevelColonIdx(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
