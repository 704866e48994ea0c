package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/intern"
	"github.com/raymyers/kuicc/pkg/lexer"
	"gopkg.in/yaml.v3"
)

// recorder is a Visitor that writes one trace line per call. Handles are
// the names v1, v2, ... handed out in call order.
type recorder struct {
	n     int
	lines []string
	// fail makes the named method return an error
	fail string
}

func (r *recorder) fresh() string {
	r.n++
	return fmt.Sprintf("v%d", r.n)
}

func (r *recorder) emit(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recorder) err(method string) error {
	if r.fail == method {
		return diag.Internalf("%s refused", method)
	}
	return nil
}

func (r *recorder) IntegerLiteral(v int64) (string, error) {
	h := r.fresh()
	r.emit("%s = int %d", h, v)
	return h, r.err("IntegerLiteral")
}

func (r *recorder) FloatLiteral(v float64) (string, error) {
	h := r.fresh()
	r.emit("%s = float %g", h, v)
	return h, r.err("FloatLiteral")
}

func (r *recorder) Binop(op lexer.TokenType, left, right string) (string, error) {
	h := r.fresh()
	r.emit("%s = binop %s %s %s", h, op, left, right)
	return h, r.err("Binop")
}

func (r *recorder) Assign(dest, src string) (string, error) {
	h := r.fresh()
	r.emit("%s = assign %s %s", h, dest, src)
	return h, r.err("Assign")
}

func (r *recorder) Declaration(t ctypes.Type, name string) (string, error) {
	h := r.fresh()
	r.emit("%s = decl %s %s", h, t, name)
	return h, r.err("Declaration")
}

func (r *recorder) FunctionStart(name string, fn ctypes.Tfunction) error {
	r.emit("start %s %s", name, fn)
	return r.err("FunctionStart")
}

func (r *recorder) FunctionParam(t ctypes.Type, name string) (string, error) {
	h := r.fresh()
	r.emit("%s = param %s %s", h, t, name)
	return h, r.err("FunctionParam")
}

func (r *recorder) FunctionEnd() error {
	r.emit("end")
	return r.err("FunctionEnd")
}

func (r *recorder) ArrayReference(array, index string, lvalue bool) (string, error) {
	h := r.fresh()
	suffix := ""
	if lvalue {
		suffix = " lvalue"
	}
	r.emit("%s = aref %s %s%s", h, array, index, suffix)
	return h, r.err("ArrayReference")
}

func (r *recorder) StructReference(object string, m *ctypes.Member) (string, error) {
	h := r.fresh()
	r.emit("%s = sref %s %s@%d", h, object, m.Name, m.Offset)
	return h, r.err("StructReference")
}

func (r *recorder) ZeroObject(object string) error {
	r.emit("zero %s", object)
	return r.err("ZeroObject")
}

func (r *recorder) AssignOffset(object string, offset int64, t ctypes.Type, value string) error {
	r.emit("store %s+%d %s %s", object, offset, t, value)
	return r.err("AssignOffset")
}

func (r *recorder) Return(value string, ok bool) error {
	if ok {
		r.emit("ret %s", value)
	} else {
		r.emit("ret")
	}
	return r.err("Return")
}

func (r *recorder) Finalize() error {
	r.emit("finalize")
	return r.err("Finalize")
}

func parse(t *testing.T, input string, r *recorder) error {
	t.Helper()
	toks, err := lexer.New("test.c", []byte(input), intern.New()).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	return New[string](toks, r).ParseTranslationUnit()
}

// TestSpec is one case of parse.yaml. A case either succeeds with the
// given trace or fails with an error containing Error.
type TestSpec struct {
	Name  string `yaml:"name"`
	Input string `yaml:"input"`
	Trace string `yaml:"trace"`
	Error string `yaml:"error"`
}

// TestFile represents the parse.yaml file structure
type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func TestParseYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}

	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			r := &recorder{}
			err := parse(t, tc.Input, r)
			if tc.Error != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, trace:\n%s", tc.Error, strings.Join(r.lines, "\n"))
				}
				if !strings.Contains(err.Error(), tc.Error) {
					t.Errorf("error %q does not contain %q", err, tc.Error)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := strings.Join(r.lines, "\n")
			want := strings.TrimSpace(tc.Trace)
			if got != want {
				t.Errorf("trace mismatch\ngot:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		input string
		kind  diag.Kind
		line  int
	}{
		{"int x;\nint x;", diag.ParseSyntax, 2},
		{"int f() {\n  return y;\n}", diag.ParseSyntax, 2},
		{"int f() {\n\n  while (1);\n}", diag.Internal, 3},
		{"enum E { A };", diag.Internal, 1},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := parse(t, tt.input, &recorder{})
			var de *diag.Error
			if !errors.As(err, &de) {
				t.Fatalf("expected *diag.Error, got %T (%v)", err, err)
			}
			if de.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", de.Kind, tt.kind)
			}
			if de.Pos.Line != tt.line {
				t.Errorf("line = %d, want %d", de.Pos.Line, tt.line)
			}
			if de.Pos.File != "test.c" {
				t.Errorf("file = %q, want test.c", de.Pos.File)
			}
		})
	}
}

func TestUnimplementedIsMarked(t *testing.T) {
	inputs := []string{
		"int f() { int x; return x ? 1 : 2; }",
		"int f() { int x; return x && 1; }",
		"int f() { return f(); }",
		`int f() { return "s"; }`,
		"int f() { int x; x++; return x; }",
		"int f() { int x; return -x; }",
		"int f() { return - 1; }",
		"int a[0-1];",
		"int f() { return (int)1; }",
		"int f() { int x; return sizeof x; }",
		"int a[2] = {.x = 1};",
		"int f(int n) { int a[n]; return 0; }",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			err := parse(t, input, &recorder{})
			if !errors.Is(err, diag.ErrUnimplemented) {
				t.Errorf("expected unimplemented error, got %v", err)
			}
		})
	}
}

func TestVisitorErrorStopsParse(t *testing.T) {
	methods := []string{"IntegerLiteral", "Binop", "Declaration", "FunctionStart", "FunctionParam", "FunctionEnd", "Return"}
	input := "int g;\nint f(int a) {\n  return a + 1;\n}"
	for _, m := range methods {
		t.Run(m, func(t *testing.T) {
			r := &recorder{fail: m}
			err := parse(t, input, r)
			if err == nil {
				t.Fatalf("expected error from %s", m)
			}
			if !strings.Contains(err.Error(), m+" refused") {
				t.Errorf("error %q does not carry the visitor's message", err)
			}
			var de *diag.Error
			if !errors.As(err, &de) || !de.Pos.IsValid() {
				t.Errorf("visitor error should be positioned, got %v", err)
			}
		})
	}
}

// The parser never calls Finalize; the driver does.
func TestParserDoesNotFinalize(t *testing.T) {
	r := &recorder{}
	if err := parse(t, "int x;", r); err != nil {
		t.Fatal(err)
	}
	for _, line := range r.lines {
		if line == "finalize" {
			t.Error("parser called Finalize")
		}
	}
}

func TestEmptyTranslationUnit(t *testing.T) {
	r := &recorder{}
	if err := parse(t, "", r); err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if len(r.lines) != 0 {
		t.Errorf("empty input produced %v", r.lines)
	}
}

func TestNewAppendsEOF(t *testing.T) {
	toks, err := lexer.New("t.c", []byte("int x;"), intern.New()).Tokenize()
	if err != nil {
		t.Fatal(err)
	}
	r := &recorder{}
	if err := New[string](toks[:len(toks)-1], r).ParseTranslationUnit(); err != nil {
		t.Fatalf("parse without EOF token: %v", err)
	}
	if len(r.lines) != 1 {
		t.Errorf("trace = %v", r.lines)
	}
}

func TestSlotCounting(t *testing.T) {
	b := ctypes.NewBuilder(true)
	if _, err := b.Add("c", 1, ctypes.Char()); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Add("l", 2, ctypes.Long()); err != nil {
		t.Fatal(err)
	}
	u := b.Union("U", 3)

	tests := []struct {
		typ  ctypes.Type
		want int
	}{
		{ctypes.Int(), 1},
		{ctypes.Array(ctypes.Int(), 4), 4},
		{ctypes.Array(ctypes.Array(ctypes.Char(), 3), 2), 6},
		{u, 1},
		{ctypes.Array(u, 3), 3},
	}
	for _, tt := range tests {
		if got := countSlots(tt.typ); got != tt.want {
			t.Errorf("countSlots(%s) = %d, want %d", tt.typ, got, tt.want)
		}
	}

	arr := ctypes.Array(ctypes.Array(ctypes.Short(), 3), 2)
	typ, off := scalarAt(arr, 4)
	if off != 8 || !ctypes.Equal(typ, ctypes.Short()) {
		t.Errorf("scalarAt(4) = %s@%d, want short@8", typ, off)
	}
	sub, off, first := braceTarget(arr, 3)
	if first != 3 || off != 6 || sub.String() != "short[3]" {
		t.Errorf("braceTarget(3) = %s@%d first %d", sub, off, first)
	}
	sub, off, first = braceTarget(arr, 4)
	if first != 4 || off != 8 || !ctypes.Equal(sub, ctypes.Short()) {
		t.Errorf("braceTarget(4) = %s@%d first %d", sub, off, first)
	}
}
