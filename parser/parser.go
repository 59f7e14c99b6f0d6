package parser

import (
	"fmt"
	"strings"
)

// prefixKeywords are instruction prefixes that precede the mnemonic proper.
var prefixKeywords = map[string]bool{
	"lock": true, "rep": true, "repe": true, "repz": true, "repne": true, "repnz": true,
}

var branchHintSet = map[string]bool{"short": true, "near": true, "far": true}

var dataDirectives = map[string]bool{"db": true, "dw": true, "dd": true}

// Parser turns preprocessed NASM-syntax source into a Program AST. It is a
// line-oriented recursive-descent parser: each source line produces zero,
// one, or two nodes (a label followed by a statement on the same line).
type Parser struct {
	source   string
	filename string
	errors   *ErrorList
}

// NewParser creates a parser over already-preprocessed source text.
func NewParser(source, filename string) *Parser {
	return &Parser{source: source, filename: filename, errors: &ErrorList{}}
}

func (p *Parser) Errors() *ErrorList { return p.errors }

// Parse consumes the source line by line and returns the resulting Program.
// Per-line errors are accumulated in p.Errors() rather than aborting, so a
// single call surfaces every syntax error in the source, not just the first.
func (p *Parser) Parse() (*Program, error) {
	prog := &Program{SymbolTable: NewSymbolTable(), Filename: p.filename}

	lines := strings.Split(p.source, "\n")
	for i, raw := range lines {
		pos := Position{Filename: p.filename, Line: i + 1, Column: 1}
		nodes, err := p.parseLine(pos, raw)
		if err != nil {
			if ae, ok := err.(*Error); ok {
				p.errors.AddError(ae)
			} else {
				p.errors.AddError(NewErrorWithContext(pos, ErrSyntax, err.Error(), strings.TrimSpace(raw)))
			}
			continue
		}
		prog.Nodes = append(prog.Nodes, nodes...)
	}

	if p.errors.HasErrors() {
		return prog, p.errors
	}
	return prog, nil
}

// parseLine produces the AST nodes for one raw source line (label plus an
// optional trailing statement, or a single bracketed compiler option).
func (p *Parser) parseLine(pos Position, raw string) ([]Node, error) {
	line := stripComment(raw)
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}

	if trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']' {
		inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		word, rest := firstWord(inner)
		switch strings.ToLower(word) {
		case "bits", "org":
			return []Node{&CompilerOptionNode{Pos: pos, Name: strings.ToLower(word), Value: strings.TrimSpace(rest)}}, nil
		default:
			// Unrecognized bracket directive (e.g. NASM's [list], [warning]):
			// not part of this assembler's scope, treated as a no-op.
			return nil, nil
		}
	}

	if idx, ok := topLevelColon(trimmed); ok {
		candidate := strings.TrimSpace(trimmed[:idx])
		if isValidLabelName(candidate) {
			labelNode := &LabelNode{Pos: pos, Name: candidate}
			remainder := strings.TrimSpace(trimmed[idx+1:])
			if remainder == "" {
				return []Node{labelNode}, nil
			}
			stmt, err := p.parseStatement(pos, raw, remainder)
			if err != nil {
				return []Node{labelNode}, err
			}
			if stmt == nil {
				return []Node{labelNode}, nil
			}
			return []Node{labelNode, stmt}, nil
		}
	}

	stmt, err := p.parseStatement(pos, raw, trimmed)
	if stmt == nil {
		return nil, err
	}
	return []Node{stmt}, err
}

// parseStatement parses everything after an optional label: equ, times,
// a data-define directive, or an instruction with prefixes/branch hint.
func (p *Parser) parseStatement(pos Position, rawLine, s string) (Node, error) {
	word1, rest1 := firstWord(s)
	if word1 == "" {
		return nil, nil
	}
	lower1 := strings.ToLower(word1)

	if word2, rest2 := firstWord(rest1); strings.ToLower(word2) == "equ" {
		if strings.TrimSpace(rest2) == "" {
			return nil, NewError(pos, ErrIncorrectEquArgsCount, "equ requires a value expression")
		}
		return &EquNode{Pos: pos, Name: word1, ValueExpr: strings.TrimSpace(rest2)}, nil
	}

	if lower1 == "times" {
		countTok, rest2 := firstWord(rest1)
		if countTok == "" {
			return nil, NewError(pos, ErrIncorrectTimesValue, "times requires a count expression")
		}
		inner, err := p.parseStatement(pos, rawLine, rest2)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, NewError(pos, ErrIncorrectTimesValue, "times requires a repeated instruction or define")
		}
		return &TimesNode{Pos: pos, CountExpr: countTok, Inner: inner}, nil
	}

	if dataDirectives[lower1] {
		args := splitTopLevel(rest1, ',')
		if len(args) == 0 {
			return nil, NewError(pos, ErrSyntax, fmt.Sprintf("%s requires at least one argument", lower1))
		}
		return &DefineNode{Pos: pos, Directive: lower1, Args: args}, nil
	}

	// Instruction: zero or more prefixes, mnemonic, optional branch hint,
	// comma-separated raw operand phrases.
	var prefixes []string
	word, rest := word1, rest1
	for prefixKeywords[strings.ToLower(word)] {
		prefixes = append(prefixes, strings.ToLower(word))
		word, rest = firstWord(rest)
	}
	if word == "" {
		return nil, NewError(pos, ErrSyntax, "expected instruction after prefix")
	}
	mnemonic := strings.ToLower(word)

	branchHint := ""
	operandsText := rest
	if hint, afterHint := firstWord(rest); branchHintSet[strings.ToLower(hint)] {
		branchHint = strings.ToLower(hint)
		operandsText = afterHint
	}

	operands := splitTopLevel(operandsText, ',')
	return &InstructionNode{
		Pos:        pos,
		RawLine:    strings.TrimSpace(rawLine),
		Prefixes:   prefixes,
		Mnemonic:   mnemonic,
		BranchHint: branchHint,
		Operands:   operands,
	}, nil
}

// stripComment removes a trailing `;` comment, ignoring semicolons inside
// quoted strings.
func stripComment(line string) string {
	inQuote := rune(0)
	for i, c := range line {
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == ';':
			return line[:i]
		}
	}
	return line
}

// firstWord splits s into its first whitespace-delimited word and the
// trimmed remainder.
func firstWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// splitTopLevel splits s on sep, ignoring separators inside [...] or quotes,
// and trims + drops empty fields.
func splitTopLevel(s string, sep rune) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	inQuote := rune(0)
	flush := func() {
		field := strings.TrimSpace(cur.String())
		if field != "" {
			out = append(out, field)
		}
		cur.Reset()
	}
	for _, c := range s {
		switch {
		case inQuote != 0:
			cur.WriteRune(c)
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			cur.WriteRune(c)
		case c == '[':
			depth++
			cur.WriteRune(c)
		case c == ']':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(c)
		case c == sep && depth == 0:
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return out
}

// topLevelColon finds the index of the first ':' outside [...] and quotes.
func topLevelColon(s string) (int, bool) {
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
			return i, true
		}
	}
	return 0, false
}

func isValidLabelName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if i == 0 {
			if !(c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
				return false
			}
			continue
		}
		if !isIdentifierByte(byte(c)) {
			return false
		}
	}
	return true
}
