package parser

import "fmt"

// SymbolKind distinguishes a label (address) from an equ constant.
type SymbolKind int

const (
	SymbolLabel SymbolKind = iota
	SymbolConstant
)

// Symbol is an entry in the SymbolTable: a label or equ name bound to a
// value, plus every source position that referenced it before it was
// resolved (for error reporting on undefined symbols).
type Symbol struct {
	Name       string
	Kind       SymbolKind
	Value      uint32
	Defined    bool
	Pos        Position
	References []Position
}

// SymbolTable tracks label and equ definitions across a compile, including
// local (.name) labels scoped under their enclosing global label.
type SymbolTable struct {
	symbols map[string]*Symbol
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*Symbol)}
}

// qualify composes the lookup key for a possibly-local name. A name that
// doesn't start with '.' is already absolute.
func qualify(name, parent string) (string, error) {
	if len(name) == 0 || name[0] != '.' {
		return name, nil
	}
	if parent == "" {
		return "", fmt.Errorf("missing parent label for local label %q", name)
	}
	return parent + name, nil
}

// Define binds name (qualified against parent, if local) to value at pos.
// Redefining an already-defined symbol is an error.
func (st *SymbolTable) Define(name, parent string, kind SymbolKind, value uint32, pos Position) error {
	key, err := qualify(name, parent)
	if err != nil {
		return err
	}
	if sym, exists := st.symbols[key]; exists && sym.Defined {
		return fmt.Errorf("symbol %q already defined at %s", key, sym.Pos)
	}
	sym, exists := st.symbols[key]
	if !exists {
		sym = &Symbol{Name: key}
		st.symbols[key] = sym
	}
	sym.Kind = kind
	sym.Value = value
	sym.Defined = true
	sym.Pos = pos
	return nil
}

// Reference records a use of name (qualified against parent) at pos,
// creating a forward-reference placeholder if it isn't yet defined.
func (st *SymbolTable) Reference(name, parent string, pos Position) error {
	key, err := qualify(name, parent)
	if err != nil {
		return err
	}
	sym, exists := st.symbols[key]
	if !exists {
		sym = &Symbol{Name: key}
		st.symbols[key] = sym
	}
	sym.References = append(sym.References, pos)
	return nil
}

// Lookup resolves name (qualified against parent) to its current value.
// ok is false if the symbol is unknown or not yet defined.
func (st *SymbolTable) Lookup(name, parent string) (value uint32, ok bool) {
	key, err := qualify(name, parent)
	if err != nil {
		return 0, false
	}
	sym, exists := st.symbols[key]
	if !exists || !sym.Defined {
		return 0, false
	}
	return sym.Value, true
}

// Get is like Lookup but returns an error describing why resolution failed.
func (st *SymbolTable) Get(name, parent string) (uint32, error) {
	key, err := qualify(name, parent)
	if err != nil {
		return 0, err
	}
	sym, exists := st.symbols[key]
	if !exists {
		return 0, fmt.Errorf("undefined symbol: %q", key)
	}
	if !sym.Defined {
		return 0, fmt.Errorf("symbol %q used but not defined", key)
	}
	return sym.Value, nil
}

// Undefined returns every symbol that was referenced but never defined.
func (st *SymbolTable) Undefined() []*Symbol {
	var out []*Symbol
	for _, sym := range st.symbols {
		if !sym.Defined {
			out = append(out, sym)
		}
	}
	return out
}

// All returns every defined symbol, in no particular order.
func (st *SymbolTable) All() []*Symbol {
	out := make([]*Symbol, 0, len(st.symbols))
	for _, sym := range st.symbols {
		if sym.Defined {
			out = append(out, sym)
		}
	}
	return out
}

// Reset clears all symbols, for re-running the first pass from scratch.
func (st *SymbolTable) Reset() {
	st.symbols = make(map[string]*Symbol)
}

// Shift subtracts delta from every defined label address greater than
// afterAddr. The layout engine does not call it: it recomputes every
// address on each pass.
func (st *SymbolTable) Shift(afterAddr, delta uint32) {
	for _, sym := range st.symbols {
		if sym.Kind == SymbolLabel && sym.Defined && sym.Value > afterAddr {
			sym.Value -= delta
		}
	}
}
