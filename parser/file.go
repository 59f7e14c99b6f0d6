package parser

import (
	"os"
	"path/filepath"
)

// ParseFileOptions configures ParseFile.
type ParseFileOptions struct {
	// Defines seeds %define/%ifdef state before preprocessing, each entry
	// either "NAME" or "NAME value".
	Defines []string
	// EnablePreprocessor runs %include/%define/%if expansion first (%macro
	// definitions are recorded and removed; macro calls are not expanded).
	EnablePreprocessor bool
}

func DefaultParseFileOptions() ParseFileOptions {
	return ParseFileOptions{EnablePreprocessor: true}
}

// ParseFile reads filePath, preprocesses it (unless disabled), and parses
// the result into a Program. It is the top-level entry point external
// collaborators (the CLI) use to go from disk to AST.
func ParseFile(filePath string, opts ParseFileOptions) (*Program, *Parser, error) {
	content, err := os.ReadFile(filePath) // #nosec G304 -- user-provided assembly file path
	if err != nil {
		return nil, nil, err
	}

	filename := filepath.Base(filePath)
	source := string(content)

	if opts.EnablePreprocessor {
		pp := NewPreprocessor(filepath.Dir(filePath))
		for _, def := range opts.Defines {
			pp.Define(def)
		}
		processed, err := pp.ProcessContent(source, filename)
		if err != nil {
			return nil, nil, err
		}
		if pp.Errors().HasErrors() {
			return nil, nil, pp.Errors().Errors[0]
		}
		source = processed
	}

	p := NewParser(source, filename)
	program, err := p.Parse()
	if err != nil {
		return nil, p, err
	}
	return program, p, nil
}

// ParseFileSimple parses filePath with default preprocessing enabled.
func ParseFileSimple(filePath string) (*Program, *Parser, error) {
	return ParseFile(filePath, DefaultParseFileOptions())
}
