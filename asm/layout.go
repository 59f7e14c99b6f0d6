package asm

import (
	"fmt"
	"strings"

	"github.com/lookbusy1344/nasm8086/parser"
)

// InstructionLayout is one emitted item's final placement: its address,
// encoded bytes, and the AST node it came from (for listings/diagnostics).
type InstructionLayout struct {
	Address uint32
	Bytes   []byte
	Node    parser.Node
}

// LayoutResult is the output of a successful two-pass assembly: the final
// byte image plus enough per-item detail to drive a listing or map file.
type LayoutResult struct {
	Bits    int
	Origin  uint32
	Bytes   []byte
	Items   []InstructionLayout
	Symbols *parser.SymbolTable
	Passes  int
}

// Layouter runs the fixpoint two-pass (in practice, multi-pass) layout
// engine described in spec 4.7: pessimistic first pass, then repeated
// address-assignment passes that shrink branch/displacement encodings as
// labels resolve, until addresses stop moving or MaxPasses is exhausted.
type Layouter struct {
	MaxPasses int
	// DefaultBits and DefaultOrigin seed the layout when the source has no
	// [bits]/[org] directive of its own.
	DefaultBits   int
	DefaultOrigin uint32
}

func NewLayouter() *Layouter {
	return &Layouter{MaxPasses: 50, DefaultBits: 16}
}

// flatItem is one schedulable unit of the program: every node except a bare
// label/equ/compiler-option consumes address space.
type flatItem struct {
	node  parser.Node
	times *parser.TimesNode // non-nil if node is the repeated body of a TimesNode
}

func flatten(nodes []parser.Node) []flatItem {
	items := make([]flatItem, 0, len(nodes))
	for _, n := range nodes {
		if t, ok := n.(*parser.TimesNode); ok {
			items = append(items, flatItem{node: t.Inner, times: t})
			continue
		}
		items = append(items, flatItem{node: n})
	}
	return items
}

// Layout assigns addresses to every node in prog, resolving labels, shrinking
// branch and displacement encodings, and expanding times blocks.
func (l *Layouter) Layout(prog *parser.Program) (*LayoutResult, error) {
	items := flatten(prog.Nodes)

	defaultBits := l.DefaultBits
	if defaultBits == 0 {
		defaultBits = 16
	}
	bits := defaultBits
	origin := l.DefaultOrigin
	var prevSyms *parser.SymbolTable
	var lastAddrs []uint32

	pass := 0
	for ; pass < l.MaxPasses; pass++ {
		cur := parser.NewSymbolTable()
		addrs := make([]uint32, len(items))
		addr := origin
		parentLabel := ""
		curBits := defaultBits
		curOrigin := origin
		seenOrg := false

		resolve := func(name string) (int64, bool) {
			if v, ok := cur.Lookup(name, parentLabel); ok {
				return int64(v), true
			}
			if prevSyms != nil {
				if v, ok := prevSyms.Lookup(name, parentLabel); ok {
					return int64(v), true
				}
			}
			return 0, false
		}

		for i, it := range items {
			addrs[i] = addr
			ctx := ExprContext{CurrentAddr: int64(addr), OriginAddr: int64(curOrigin), Resolve: resolve}

			switch n := it.node.(type) {
			case *parser.LabelNode:
				if strings.HasPrefix(n.Name, ".") {
					if err := cur.Define(n.Name, parentLabel, parser.SymbolLabel, addr, n.Pos); err != nil {
						return nil, err
					}
				} else {
					if err := cur.Define(n.Name, "", parser.SymbolLabel, addr, n.Pos); err != nil {
						return nil, err
					}
					parentLabel = n.Name
				}

			case *parser.EquNode:
				value, _, err := EvalExpr(n.ValueExpr, ctx)
				if err != nil {
					return nil, parser.NewError(n.Pos, parser.ErrSyntax, err.Error())
				}
				if err := cur.Define(n.Name, "", parser.SymbolConstant, uint32(value), n.Pos); err != nil {
					return nil, err
				}

			case *parser.CompilerOptionNode:
				switch n.Name {
				case "bits":
					switch strings.TrimSpace(n.Value) {
					case "16":
						curBits = 16
					case "32":
						curBits = 32
					default:
						return nil, parser.NewError(n.Pos, parser.ErrUnknownCompilerInstruction, "bits must be 16 or 32")
					}
				case "org":
					value, resolved, err := EvalExpr(n.Value, ctx)
					if err != nil {
						return nil, parser.NewError(n.Pos, parser.ErrSyntax, err.Error())
					}
					if !resolved {
						return nil, parser.NewError(n.Pos, parser.ErrOriginRedefined, "org must not forward-reference a label")
					}
					if seenOrg {
						return nil, parser.NewError(n.Pos, parser.ErrOriginRedefined, "org redefined")
					}
					if value < 0 || (curBits == 16 && value > 0xFFFF) || value > 0xFFFFFFFF {
						return nil, parser.NewError(n.Pos, parser.ErrUnsupportedCompilerMode, fmt.Sprintf("org 0x%X exceeds the %d-bit address range", value, curBits))
					}
					seenOrg = true
					curOrigin = uint32(value)
					addr = curOrigin
					addrs[i] = addr
					continue
				}

			case *parser.DefineNode:
				b, err := encodeDefine(n, curBits, ctx, false)
				if err != nil {
					return nil, parser.NewErrorWithContext(n.Pos, parser.ErrSyntax, err.Error(), n.Directive)
				}
				addr += uint32(len(b))

			case *parser.InstructionNode:
				length, err := instructionLength(n, curBits, addr, resolve)
				if err != nil {
					return nil, parser.NewErrorWithContext(n.Pos, parser.ErrSyntax, err.Error(), n.RawLine)
				}
				addr += uint32(length)
			}

			if it.times != nil {
				countVal, resolved, err := EvalExpr(it.times.CountExpr, ctx)
				if err != nil {
					return nil, parser.NewError(it.times.Pos, parser.ErrIncorrectTimesValue, err.Error())
				}
				if !resolved {
					return nil, parser.NewError(it.times.Pos, parser.ErrIncorrectTimesValue, "times count must not forward-reference a label")
				}
				if countVal < 0 {
					return nil, parser.NewError(it.times.Pos, parser.ErrIncorrectTimesValue, "times count must not be negative")
				}
				var unitLen int
				switch inner := it.node.(type) {
				case *parser.DefineNode:
					b, err := encodeDefine(inner, curBits, ctx, false)
					if err != nil {
						return nil, err
					}
					unitLen = len(b)
				case *parser.InstructionNode:
					unitLen, err = instructionLength(inner, curBits, addr, resolve)
					if err != nil {
						return nil, err
					}
				}
				// The single unit already consumed above is repeated (count-1)
				// more times; addr already advanced once for it.
				addr += uint32(unitLen) * uint32(countVal-1)
			}
		}

		bits = curBits
		origin = curOrigin
		prevSyms = cur

		if lastAddrs != nil && equalAddrs(lastAddrs, addrs) {
			return l.finalize(prog, items, cur, bits, origin, pass+1)
		}
		lastAddrs = addrs
	}
	return nil, parser.NewError(parser.Position{}, parser.ErrUnableToCompileFile, fmt.Sprintf("layout did not converge within %d passes", l.MaxPasses))
}

func equalAddrs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// finalize re-walks the converged layout once more, this time emitting the
// actual encoded bytes with a fully-resolved symbol table.
func (l *Layouter) finalize(prog *parser.Program, items []flatItem, syms *parser.SymbolTable, bits int, origin uint32, passes int) (*LayoutResult, error) {
	result := &LayoutResult{Bits: bits, Origin: origin, Symbols: syms, Passes: passes}
	addr := origin
	parentLabel := ""
	curBits := bits
	curOrigin := origin
	enc := &Encoder{}

	resolve := func(name string) (int64, bool) {
		v, ok := syms.Lookup(name, parentLabel)
		return int64(v), ok
	}

	for _, it := range items {
		switch n := it.node.(type) {
		case *parser.LabelNode:
			if !strings.HasPrefix(n.Name, ".") {
				parentLabel = n.Name
			}
			continue
		case *parser.EquNode:
			continue
		case *parser.CompilerOptionNode:
			switch n.Name {
			case "bits":
				if n.Value == "32" {
					curBits = 32
				} else {
					curBits = 16
				}
			case "org":
				ctx := ExprContext{CurrentAddr: int64(addr), OriginAddr: int64(curOrigin), Resolve: resolve}
				value, _, _ := EvalExpr(n.Value, ctx)
				curOrigin = uint32(value)
				addr = curOrigin
			}
			continue
		}

		ctx := ExprContext{CurrentAddr: int64(addr), OriginAddr: int64(curOrigin), Resolve: resolve}
		start := addr

		switch n := it.node.(type) {
		case *parser.DefineNode:
			b, err := encodeDefine(n, curBits, ctx, true)
			if err != nil {
				return nil, err
			}
			result.Items = append(result.Items, InstructionLayout{Address: start, Bytes: b, Node: n})
			result.Bytes = append(result.Bytes, b...)
			addr += uint32(len(b))

		case *parser.InstructionNode:
			b, err := encodeInstruction(n, curBits, addr, resolve, enc)
			if err != nil {
				return nil, parser.NewErrorWithContext(n.Pos, parser.ErrSyntax, err.Error(), n.RawLine)
			}
			result.Items = append(result.Items, InstructionLayout{Address: start, Bytes: b, Node: n})
			result.Bytes = append(result.Bytes, b...)
			addr += uint32(len(b))
		}

		if it.times != nil {
			countVal, _, err := EvalExpr(it.times.CountExpr, ctx)
			if err != nil {
				return nil, err
			}
			for rep := int64(1); rep < countVal; rep++ {
				rctx := ExprContext{CurrentAddr: int64(addr), OriginAddr: int64(curOrigin), Resolve: resolve}
				var b []byte
				switch inner := it.node.(type) {
				case *parser.DefineNode:
					b, err = encodeDefine(inner, curBits, rctx, true)
				case *parser.InstructionNode:
					b, err = encodeInstruction(inner, curBits, addr, resolve, enc)
				}
				if err != nil {
					return nil, err
				}
				result.Items = append(result.Items, InstructionLayout{Address: addr, Bytes: b, Node: it.node})
				result.Bytes = append(result.Bytes, b...)
				addr += uint32(len(b))
			}
		}
	}

	if undef := syms.Undefined(); len(undef) > 0 {
		return nil, fmt.Errorf("undefined symbol %q referenced at %s", undef[0].Name, undef[0].Pos.String())
	}
	return result, nil
}

// instructionLength parses n's operands and predicts the encoded length
// without requiring the rel8/rel16 target to be final yet.
func instructionLength(n *parser.InstructionNode, bits int, addr uint32, resolve Resolver) (int, error) {
	schema, operands, err := resolveInstruction(n, bits, addr, resolve)
	if err != nil {
		return 0, err
	}
	length, err := InstructionLength(schema, operands, bits)
	return length + len(n.Prefixes), err
}

// encodeInstruction parses n's operands against the final address and emits
// its bytes.
func encodeInstruction(n *parser.InstructionNode, bits int, addr uint32, resolve Resolver, enc *Encoder) ([]byte, error) {
	schema, operands, err := resolveInstruction(n, bits, addr, resolve)
	if err != nil {
		return nil, err
	}
	for _, op := range operands {
		if op.Unresolved || (op.Mem != nil && op.Mem.Unresolved) {
			return nil, fmt.Errorf("undefined symbol in operand %q", op.Raw)
		}
	}
	length, err := InstructionLength(schema, operands, bits)
	if err != nil {
		return nil, err
	}
	length += len(n.Prefixes)
	ectx := EncodeContext{
		ExprContext: ExprContext{CurrentAddr: int64(addr), Resolve: resolve},
		InstrAddr:   addr,
		InstrLen:    uint32(length),
	}
	return enc.Encode(schema, operands, bits, ectx, n.Prefixes)
}

// resolveInstruction parses an InstructionNode's raw operand text into
// Operands and matches a Schema, choosing rel8 vs rel16 per the current
// address estimate (spec 4.7's shrinking step).
func resolveInstruction(n *parser.InstructionNode, bits int, addr uint32, resolve Resolver) (*Schema, []*Operand, error) {
	ctx := ExprContext{CurrentAddr: int64(addr), Resolve: resolve}

	operands := make([]*Operand, 0, len(n.Operands))
	for _, raw := range n.Operands {
		op, err := ParseOperand(raw, bits, ctx)
		if err != nil {
			return nil, nil, err
		}
		operands = append(operands, op)
	}
	if len(operands) == 2 {
		if err := ResolveOperandSizes(operands[0], operands[1]); err != nil {
			return nil, nil, err
		}
	}

	relFits8 := false
	if HasBranchTarget(n.Mnemonic) {
		switch n.BranchHint {
		case "short":
			relFits8 = true
		case "near", "far":
			relFits8 = false
		default:
			if len(operands) == 1 && !operands[0].Unresolved {
				rel := operands[0].Value - (int64(addr) + 2)
				relFits8 = rel >= -128 && rel <= 127
			}
		}
	}

	schema, err := MatchSchema(n.Mnemonic, operands, bits, relFits8)
	if err != nil && !relFits8 && n.BranchHint == "" && len(operands) == 1 && operands[0].Unresolved {
		// No near form in this mode (e.g. jcc rel16 needs bits 32): guess short
		// until the target resolves.
		schema, err = MatchSchema(n.Mnemonic, operands, bits, true)
	}
	if err != nil {
		return nil, nil, err
	}
	return schema, operands, nil
}

func encodeDefine(n *parser.DefineNode, bits int, ctx ExprContext, strict bool) ([]byte, error) {
	unitSize := map[string]int{"db": 1, "dw": 2, "dd": 4}[n.Directive]
	var out []byte
	for _, arg := range n.Args {
		s := strings.TrimSpace(arg)
		if unitSize == 1 && len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
			out = append(out, []byte(parser.ProcessEscapeSequences(s[1:len(s)-1]))...)
			continue
		}
		val, resolved, err := EvalExpr(s, ctx)
		if err != nil {
			return nil, err
		}
		if strict && !resolved {
			return nil, fmt.Errorf("undefined symbol in %q", s)
		}
		switch unitSize {
		case 1:
			out = append(out, byte(val))
		case 2:
			out = append(out, le16(uint16(val))...)
		case 4:
			out = append(out, le32(uint32(val))...)
		}
	}
	return out, nil
}
