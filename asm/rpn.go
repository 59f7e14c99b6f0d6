package asm

import (
	"fmt"
	"strings"
)

// Resolver looks up a label or equ name's absolute value. ok is false if
// the name is not yet defined (a forward reference); EvalExpr treats that
// as "unresolved", not a hard error, so the caller can retry later.
type Resolver func(name string) (value int64, ok bool)

// ExprContext supplies the free variables an expression may reference:
// the current address ($) and the section origin ($$), plus a label
// resolver used for everything else.
type ExprContext struct {
	CurrentAddr int64
	OriginAddr  int64
	Resolve     Resolver
}

type exprTokenKind int

const (
	exprNumber exprTokenKind = iota
	exprIdent
	exprOp
	exprLParen
	exprRParen
)

type exprToken struct {
	kind exprTokenKind
	text string
}

func tokenizeExpr(s string) ([]exprToken, error) {
	var toks []exprToken
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, exprToken{exprLParen, "("})
			i++
		case c == ')':
			toks = append(toks, exprToken{exprRParen, ")"})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, exprToken{exprOp, string(c)})
			i++
		case c == '$':
			if i+1 < len(s) && s[i+1] == '$' {
				toks = append(toks, exprToken{exprIdent, "$$"})
				i += 2
			} else {
				toks = append(toks, exprToken{exprIdent, "$"})
				i++
			}
		case isDigit(c):
			j := i
			for j < len(s) && (isIdentChar(s[j])) {
				j++
			}
			toks = append(toks, exprToken{exprNumber, s[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			toks = append(toks, exprToken{exprIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q in expression %q", c, s)
		}
	}
	return toks, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentChar(c byte) bool  { return isIdentStart(c) || isDigit(c) }

// precedence of binary operators; unary +/- are handled separately as
// "u+"/"u-" with the highest precedence.
var precedence = map[string]int{"+": 1, "-": 1, "*": 2, "/": 2, "u-": 3, "u+": 3}

// shuntingYard converts infix tokens to a postfix (RPN) token queue.
func shuntingYard(toks []exprToken) ([]exprToken, error) {
	var output, ops []exprToken
	prevWasOperand := false

	popHigherOrEqual := func(op string) {
		for len(ops) > 0 {
			top := ops[len(ops)-1]
			if top.kind != exprOp {
				break
			}
			if precedence[top.text] < precedence[op] {
				break
			}
			output = append(output, top)
			ops = ops[:len(ops)-1]
		}
	}

	for _, t := range toks {
		switch t.kind {
		case exprNumber, exprIdent:
			output = append(output, t)
			prevWasOperand = true
		case exprLParen:
			ops = append(ops, t)
			prevWasOperand = false
		case exprRParen:
			found := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.kind == exprLParen {
					found = true
					break
				}
				output = append(output, top)
			}
			if !found {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
			prevWasOperand = true
		case exprOp:
			op := t.text
			if op == "-" && !prevWasOperand {
				op = "u-"
			} else if op == "+" && !prevWasOperand {
				op = "u+"
			}
			popHigherOrEqual(op)
			ops = append(ops, exprToken{exprOp, op})
			prevWasOperand = false
		}
	}
	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.kind == exprLParen {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		output = append(output, top)
	}
	return output, nil
}

// EvalExpr folds a constant arithmetic expression (as found inside a memory
// bracket or an immediate operand) via RPN evaluation. resolved is false
// when the expression references a name ctx.Resolve could not find; in that
// case the caller should retry once more labels are known, not treat it as
// a hard error.
func EvalExpr(expr string, ctx ExprContext) (value int64, resolved bool, err error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, false, fmt.Errorf("empty expression")
	}
	toks, err := tokenizeExpr(expr)
	if err != nil {
		return 0, false, err
	}
	rpn, err := shuntingYard(toks)
	if err != nil {
		return 0, false, err
	}

	var stack []int64
	resolvedAll := true
	for _, t := range rpn {
		switch t.kind {
		case exprNumber:
			n, perr := ParseNumberLiteral(t.text)
			if perr != nil {
				return 0, false, perr
			}
			stack = append(stack, n)
		case exprIdent:
			switch t.text {
			case "$":
				stack = append(stack, ctx.CurrentAddr)
			case "$$":
				stack = append(stack, ctx.OriginAddr)
			default:
				if ctx.Resolve == nil {
					resolvedAll = false
					stack = append(stack, 0)
					continue
				}
				v, ok := ctx.Resolve(t.text)
				if !ok {
					resolvedAll = false
					stack = append(stack, 0)
					continue
				}
				stack = append(stack, v)
			}
		case exprOp:
			if t.text == "u-" || t.text == "u+" {
				if len(stack) < 1 {
					return 0, false, fmt.Errorf("malformed expression %q", expr)
				}
				if t.text == "u-" {
					stack[len(stack)-1] = -stack[len(stack)-1]
				}
				continue
			}
			if len(stack) < 2 {
				return 0, false, fmt.Errorf("malformed expression %q", expr)
			}
			b := stack[len(stack)-1]
			a := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			var r int64
			switch t.text {
			case "+":
				r = a + b
			case "-":
				r = a - b
			case "*":
				r = a * b
			case "/":
				if b == 0 {
					return 0, false, fmt.Errorf("division by zero in expression %q", expr)
				}
				r = a / b
			}
			stack = append(stack, r)
		}
	}
	if len(stack) != 1 {
		return 0, false, fmt.Errorf("malformed expression %q", expr)
	}
	return stack[0], resolvedAll, nil
}
