package parser_test

import (
	"strings"
	"testing"

	"github.com/lookbusy1344/nasm8086/parser"
)

func TestPreprocessor_DefineSubstitution(t *testing.T) {
	p := parser.NewPreprocessor(".")
	out, err := p.ProcessContent("%define WIDTH 80\nmov ax, WIDTH", "test.asm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "mov ax, 80") {
		t.Errorf("expected WIDTH to be substituted, got %q", out)
	}
}

func TestPreprocessor_DefineDoesNotSubstitutePartialIdentifier(t *testing.T) {
	p := parser.NewPreprocessor(".")
	out, err := p.ProcessContent("%define X 1\nmov ax, XAVIER", "test.asm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "XAVIER") {
		t.Errorf("expected whole-word match only, got %q", out)
	}
}

func TestPreprocessor_Undef(t *testing.T) {
	p := parser.NewPreprocessor(".")
	p.Define("FOO 1")
	if !p.IsDefined("FOO") {
		t.Fatal("expected FOO to be defined")
	}
	p.Undefine("FOO")
	if p.IsDefined("FOO") {
		t.Fatal("expected FOO to be undefined after Undefine")
	}
}

func TestPreprocessor_Ifdef(t *testing.T) {
	p := parser.NewPreprocessor(".")
	out, err := p.ProcessContent("%define DEBUG 1\n%ifdef DEBUG\nnop\n%endif\nhlt", "test.asm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nop") || !strings.Contains(out, "hlt") {
		t.Errorf("expected both nop and hlt present, got %q", out)
	}
}

func TestPreprocessor_IfdefSkipsUndefined(t *testing.T) {
	p := parser.NewPreprocessor(".")
	out, err := p.ProcessContent("%ifdef DEBUG\nnop\n%endif\nhlt", "test.asm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "nop") {
		t.Errorf("expected nop to be skipped, got %q", out)
	}
	if !strings.Contains(out, "hlt") {
		t.Errorf("expected hlt to survive, got %q", out)
	}
}

func TestPreprocessor_IfndefElse(t *testing.T) {
	p := parser.NewPreprocessor(".")
	out, err := p.ProcessContent("%ifndef DEBUG\nmov ax, 1\n%else\nmov ax, 2\n%endif", "test.asm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "mov ax, 1") || strings.Contains(out, "mov ax, 2") {
		t.Errorf("expected the ifndef branch to survive, got %q", out)
	}
}

func TestPreprocessor_ElseWithoutIfIsError(t *testing.T) {
	p := parser.NewPreprocessor(".")
	if _, err := p.ProcessContent("%else\nnop", "test.asm"); err != nil {
		t.Fatalf("ProcessContent itself should not error, got %v", err)
	}
	if !p.Errors().HasErrors() {
		t.Fatal("expected an accumulated error for unmatched %else")
	}
}

func TestPreprocessor_UnclosedConditionalIsError(t *testing.T) {
	p := parser.NewPreprocessor(".")
	if _, err := p.ProcessContent("%ifdef FOO\nnop", "test.asm"); err != nil {
		t.Fatalf("ProcessContent itself should not error, got %v", err)
	}
	if !p.Errors().HasErrors() {
		t.Fatal("expected an accumulated error for unclosed conditional")
	}
}

func TestPreprocessor_MacroBodyConsumedFromOutput(t *testing.T) {
	p := parser.NewPreprocessor(".")
	out, err := p.ProcessContent("%macro double 1\nadd %1, %1\n%endmacro\nhlt", "test.asm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "add") {
		t.Errorf("expected macro body to be captured, not emitted directly, got %q", out)
	}
	if !strings.Contains(out, "hlt") {
		t.Errorf("expected hlt to survive after the macro definition, got %q", out)
	}
	if p.Errors().HasErrors() {
		t.Errorf("unexpected errors: %v", p.Errors())
	}
}

func TestPreprocessor_DuplicateMacroDefinitionIsError(t *testing.T) {
	p := parser.NewPreprocessor(".")
	_, err := p.ProcessContent("%macro double 1\nadd %1, %1\n%endmacro\n%macro double 1\nadd %1, %1\n%endmacro", "test.asm")
	if err != nil {
		t.Fatalf("ProcessContent itself should not error, got %v", err)
	}
	if !p.Errors().HasErrors() {
		t.Fatal("expected an accumulated error for redefining macro 'double'")
	}
}
