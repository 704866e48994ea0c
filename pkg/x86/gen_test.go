package x86

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/intern"
	"github.com/raymyers/kuicc/pkg/lexer"
	"github.com/raymyers/kuicc/pkg/parser"
)

func generate(t *testing.T, input string) (*Generator, error) {
	t.Helper()
	toks, err := lexer.New("test.c", []byte(input), intern.New()).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	g := NewGenerator(&bytes.Buffer{})
	return g, parser.New[Value](toks, g).ParseTranslationUnit()
}

// code prints the instructions of every function, without directives
func code(t *testing.T, input string) string {
	t.Helper()
	g, err := generate(t, input)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	var buf bytes.Buffer
	p := &Printer{w: &buf}
	for _, f := range g.Program().Functions {
		for _, inst := range f.Code {
			p.printInstruction(inst)
		}
	}
	return buf.String()
}

func asm(lines ...string) string {
	return "\t" + strings.Join(lines, "\n\t") + "\n"
}

func TestGenerateFunctions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "parameter plus constant",
			input: "int f(int a) { int x = a + 1; return x; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movl\t%edi, -4(%rbp)",
				"movl\t-4(%rbp), %eax",
				"movl\t$1, %ecx",
				"addl\t%ecx, %eax",
				"movl\t%eax, -12(%rbp)",
				"movl\t-12(%rbp), %eax",
				"movl\t%eax, -8(%rbp)",
				"movl\t-8(%rbp), %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "long division sign extends the int operand",
			input: "long f(long a, int b) { return a / b; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$32, %rsp",
				"movq\t%rdi, -8(%rbp)",
				"movl\t%esi, -12(%rbp)",
				"movq\t-8(%rbp), %rax",
				"movslq\t-12(%rbp), %rcx",
				"cqto",
				"idivq\t%rcx",
				"movq\t%rax, -24(%rbp)",
				"movq\t-24(%rbp), %rax",
				"leave",
				"retq",
			),
		},
		{
			name:  "unsigned remainder",
			input: "unsigned f(unsigned a, unsigned b) { return a % b; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movl\t%edi, -4(%rbp)",
				"movl\t%esi, -8(%rbp)",
				"movl\t-4(%rbp), %eax",
				"movl\t-8(%rbp), %ecx",
				"xorl\t%edx, %edx",
				"divl\t%ecx",
				"movl\t%edx, -12(%rbp)",
				"movl\t-12(%rbp), %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "char comparison",
			input: "int f(char c) { return c < 10; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movb\t%dil, -1(%rbp)",
				"movsbl\t-1(%rbp), %eax",
				"movl\t$10, %ecx",
				"cmpl\t%ecx, %eax",
				"setl\t%al",
				"movzbl\t%al, %eax",
				"movl\t%eax, -8(%rbp)",
				"movl\t-8(%rbp), %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "shift count in cl",
			input: "int f(int a, int b) { return a << b; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movl\t%edi, -4(%rbp)",
				"movl\t%esi, -8(%rbp)",
				"movl\t-4(%rbp), %eax",
				"movl\t-8(%rbp), %ecx",
				"shll\t%cl, %eax",
				"movl\t%eax, -12(%rbp)",
				"movl\t-12(%rbp), %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "array element address and load",
			input: "int f(int i) { int a[3]; a[i] = 7; return a[1]; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$48, %rsp",
				"movl\t%edi, -4(%rbp)",
				"leaq\t-16(%rbp), %rax",
				"movslq\t-4(%rbp), %rcx",
				"imulq\t$4, %rcx",
				"addq\t%rcx, %rax",
				"movq\t%rax, -24(%rbp)",
				"movl\t$7, %eax",
				"movq\t-24(%rbp), %r11",
				"movl\t%eax, (%r11)",
				"leaq\t-16(%rbp), %rax",
				"movq\t$1, %rcx",
				"imulq\t$4, %rcx",
				"addq\t%rcx, %rax",
				"movq\t%rax, -32(%rbp)",
				"movq\t-32(%rbp), %r11",
				"movl\t(%r11), %eax",
				"movl\t%eax, -36(%rbp)",
				"movl\t-36(%rbp), %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "struct member of a global",
			input: "struct P { char c; int i; } p; int f() { p.i = 2; return p.i; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"movl\t$2, %eax",
				"movl\t%eax, p+4(%rip)",
				"movl\tp+4(%rip), %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "initializer list zeroes then stores",
			input: "int f() { int a[3] = {5}; return 0; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movq\t$0, -12(%rbp)",
				"movl\t$0, -4(%rbp)",
				"movl\t$5, %eax",
				"movl\t%eax, -12(%rbp)",
				"movl\t$0, %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "int converted to double on return",
			input: "double f(int i) { return i; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movl\t%edi, -4(%rbp)",
				"movslq\t-4(%rbp), %rax",
				"cvtsi2sdq\t%rax, %xmm0",
				"leave",
				"retq",
			),
		},
		{
			name:  "float literal as bit pattern",
			input: "double f() { double d = 2.5; return d; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movabsq\t$4612811918334230528, %rax",
				"movq\t%rax, %xmm0",
				"movsd\t%xmm0, -8(%rbp)",
				"movsd\t-8(%rbp), %xmm0",
				"leave",
				"retq",
			),
		},
		{
			name:  "conversion to _Bool",
			input: "_Bool f(int x) { return x; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$16, %rsp",
				"movl\t%edi, -4(%rbp)",
				"movl\t-4(%rbp), %eax",
				"cmpl\t$0, %eax",
				"setne\t%al",
				"movzbl\t%al, %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "seventh argument comes from the stack",
			input: "long f(long a, long b, long c, long d, long e, long g, long h) { return h; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"subq\t$64, %rsp",
				"movq\t%rdi, -8(%rbp)",
				"movq\t%rsi, -16(%rbp)",
				"movq\t%rdx, -24(%rbp)",
				"movq\t%rcx, -32(%rbp)",
				"movq\t%r8, -40(%rbp)",
				"movq\t%r9, -48(%rbp)",
				"movq\t16(%rbp), %rax",
				"movq\t%rax, -56(%rbp)",
				"movq\t-56(%rbp), %rax",
				"leave",
				"retq",
			),
		},
		{
			name:  "main falls off the end",
			input: "int main() { }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"movl\t$0, %eax",
				"leave",
				"retq",
			),
		},
		{
			name:  "comma discards the left value",
			input: "int f() { return 1, 2; }",
			want: asm(
				"pushq\t%rbp",
				"movq\t%rsp, %rbp",
				"movl\t$2, %eax",
				"leave",
				"retq",
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := code(t, tt.input); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestLargeLocalIsClearedWithRepStos(t *testing.T) {
	got := code(t, "int f() { int a[17] = {1}; return 0; }")
	for _, want := range []string{", %rdi\n", "\tmovq\t$8, %rcx\n", "\trep stosq\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "movq\t$0, ") {
		t.Errorf("quadword stores should be folded into rep stosq:\n%s", got)
	}
	// 68 bytes leaves one dword after the loop
	if n := strings.Count(got, "movl\t$0, -"); n != 1 {
		t.Errorf("got %d tail stores, want 1:\n%s", n, got)
	}

	small := code(t, "int f() { int a[3] = {5}; return 0; }")
	if strings.Contains(small, "rep stos") {
		t.Errorf("small objects should be cleared inline:\n%s", small)
	}
}

func TestGlobalInitializersAreFolded(t *testing.T) {
	tests := []struct {
		input string
		want  []byte
	}{
		{"int g = 2 * 3 + 1;", []byte{7, 0, 0, 0}},
		{"int g = 7 / 2;", []byte{3, 0, 0, 0}},
		{"int g = 7 % 3;", []byte{1, 0, 0, 0}},
		{"int g = 1 << 4;", []byte{16, 0, 0, 0}},
		{"int g = 5 > 3;", []byte{1, 0, 0, 0}},
		{"int g = (12 & 10) | (12 ^ 5);", []byte{9, 0, 0, 0}},
		{"int g = 2.5 * 2;", []byte{5, 0, 0, 0}},
		{"unsigned g = 4294967295 + 1;", []byte{0, 0, 0, 0}},
		{"char g = 300;", []byte{44}},
		{"_Bool g = 7;", []byte{1}},
		{"double g = 1;", []byte{0, 0, 0, 0, 0, 0, 240, 63}},
		{"double g = 1.0 / 2;", []byte{0, 0, 0, 0, 0, 0, 224, 63}},
		{"char g[3] = {1, 2};", []byte{1, 2, 0}},
		{"struct { char c; short s; } g = {1, 2};", []byte{1, 0, 2, 0}},
		{"long g[2] = {[1] = 9};", []byte{0, 0, 0, 0, 0, 0, 0, 0, 9, 0, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			g, err := generate(t, tt.input)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			globals := g.Program().Globals
			if len(globals) != 1 {
				t.Fatalf("got %d globals, want 1", len(globals))
			}
			if !bytes.Equal(globals[0].Init, tt.want) {
				t.Errorf("Init = %v, want %v", globals[0].Init, tt.want)
			}
		})
	}
}

func TestUninitializedGlobalIsZeroFilled(t *testing.T) {
	g, err := generate(t, "long m[2][3];")
	if err != nil {
		t.Fatal(err)
	}
	want := GlobVar{Name: "m", Size: 48, Align: 8}
	got := g.Program().Globals[0]
	if got.Name != want.Name || got.Size != want.Size || got.Align != want.Align || got.Init != nil {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		kind          diag.Kind
		unimplemented bool
		msg           string
	}{
		{"non-constant global", "int a = 1; int b = a;", diag.ParseSyntax, false, "not a compile-time constant"},
		{"constant division by zero", "int a = 1 / 0;", diag.ParseSyntax, false, "division by zero"},
		{"constant shift out of range", "int a = 1 << 40;", diag.ParseSyntax, false, "out of range"},
		{"float arithmetic", "double f(double x) { return x + 1; }", diag.Internal, true, "floating-point operator"},
		{"struct parameter", "struct S { int a; }; int f(struct S s) { return 0; }", diag.Internal, true, "parameter s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := generate(t, tt.input)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !diag.IsKind(err, tt.kind) {
				t.Errorf("kind = %v, want %v (%v)", diag.KindOf(err), tt.kind, err)
			}
			if errors.Is(err, diag.ErrUnimplemented) != tt.unimplemented {
				t.Errorf("unimplemented = %v, want %v", !tt.unimplemented, tt.unimplemented)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q should contain %q", err, tt.msg)
			}
			if !strings.Contains(err.Error(), "test.c:1:") {
				t.Errorf("error %q should carry a position", err)
			}
		})
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestFinalizeReportsWriteErrors(t *testing.T) {
	g := NewGenerator(failWriter{})
	if _, err := g.Declaration(ctypes.Int(), "x"); err != nil {
		t.Fatal(err)
	}
	err := g.Finalize()
	if !diag.IsKind(err, diag.System) {
		t.Fatalf("Finalize error = %v, want a system error", err)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error %q should carry the cause", err)
	}
}
