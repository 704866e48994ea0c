package llvm

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

func generate(t *testing.T, input string) (string, error) {
	t.Helper()
	toks, err := lexer.New("test.c", []byte(input), intern.New()).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	var buf bytes.Buffer
	g := NewGenerator(&buf)
	if err := parser.New[Value](toks, g).ParseTranslationUnit(); err != nil {
		return "", err
	}
	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return buf.String(), nil
}

func TestGenerateModule(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   []string
		absent []string
	}{
		{
			name:  "parameter plus constant",
			input: "int f(int a) { int x = a + 1; return x; }",
			want: []string{
				"define i32 @f(i32 %a)",
				"entry:",
				"alloca i32, align 4",
				"store i32 %a, i32*",
				"load i32, i32*",
				"add i32",
				"ret i32 %",
			},
		},
		{
			name:  "signed division widens to long",
			input: "long f(int a, long b) { return a / b; }",
			want:  []string{"define i64 @f(i32 %a, i64 %b)", "sext i32", "sdiv i64", "ret i64"},
		},
		{
			name:   "unsigned remainder",
			input:  "unsigned f(unsigned a) { return a % 3; }",
			want:   []string{"urem i32"},
			absent: []string{"srem"},
		},
		{
			name:  "comparison yields int",
			input: "int f(char c) { return c < 3; }",
			want:  []string{"sext i8", "icmp slt i32", "zext i1"},
		},
		{
			name:  "unsigned right shift",
			input: "unsigned long f(unsigned long x) { return x >> 2; }",
			want:  []string{"lshr i64"},
		},
		{
			name:  "local array element",
			input: "int f(void) { int a[2]; a[1] = 5; return a[1]; }",
			want: []string{
				"alloca [2 x i32], align 4",
				"getelementptr [2 x i32], [2 x i32]* ",
				"store i32 5, i32*",
			},
		},
		{
			name:  "global struct member",
			input: "struct P { int x; int y; } p; int f(void) { return p.y; }",
			want: []string{
				"@p = global [8 x i8] zeroinitializer",
				"bitcast [8 x i8]* @p to i8*",
				"getelementptr i8, i8* ",
				"load i32, i32*",
			},
		},
		{
			name:  "local initializer list",
			input: "void f(void) { int a[3] = {1, [2] = 3}; }",
			want: []string{
				"store [3 x i32] zeroinitializer, [3 x i32]*",
				"store i32 1, i32*",
				"store i32 3, i32*",
				"ret void",
			},
		},
		{
			name:  "floating arithmetic",
			input: "double f(int a, double d) { return a * d; }",
			want:  []string{"define double @f(i32 %a, double %d)", "sitofp i32", "fmul double", "ret double"},
		},
		{
			name:  "float narrows and compares",
			input: "int f(float x, double y) { return x != y; }",
			want:  []string{"fpext float", "fcmp une double"},
		},
		{
			name:  "conversion to _Bool",
			input: "_Bool f(int a) { return a; }",
			want:  []string{"define i8 @f(i32 %a)", "icmp ne i32", "zext i1", "ret i8"},
		},
		{
			name:  "main falls off the end",
			input: "int main(void) { int x; x = 2; }",
			want:  []string{"define i32 @main()", "ret i32 0"},
		},
		{
			name:  "comma yields the right operand",
			input: "int f(void) { return 1, 2; }",
			want:  []string{"ret i32 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generate(t, tt.input)
			if err != nil {
				t.Fatalf("generate failed: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q:\n%s", w, got)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("output should not contain %q:\n%s", a, got)
				}
			}
		})
	}
}

func TestReturnClosesBlock(t *testing.T) {
	got, err := generate(t, "int f(int a) { return a; }")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(got, "ret "); n != 1 {
		t.Errorf("got %d ret instructions, want 1:\n%s", n, got)
	}

	got, err = generate(t, "int f(int a) { return a; a = 2; }")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(got, "ret "); n != 2 {
		t.Errorf("code after return should get its own terminated block:\n%s", got)
	}
}

func TestAllocasOpenEntryBlock(t *testing.T) {
	got, err := generate(t, "int f(int a) { int x = a; int y = x; return y; }")
	if err != nil {
		t.Fatal(err)
	}
	lastAlloca := strings.LastIndex(got, "alloca")
	firstStore := strings.Index(got, "store")
	if lastAlloca < 0 || firstStore < 0 || lastAlloca > firstStore {
		t.Errorf("allocas should precede all other code:\n%s", got)
	}
	if n := strings.Count(got, "alloca"); n != 3 {
		t.Errorf("got %d allocas, want 3", n)
	}
}

func TestGlobalInitializers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"int g = 2 * 3 + 1;", "@g = global i32 7"},
		{"char c = 300;", "@c = global i8 44"},
		{"unsigned u = -1;", "@u = global i32 -1"},
		{"long z;", "@z = global i64 zeroinitializer"},
		{"int a[3] = {1, 2};", "@a = global [3 x i32] [i32 1, i32 2, i32 0]"},
		{"unsigned char uc = 200;", "@uc = global i8 -56"},
		{"struct P { int x; int y; } p = {1, 2};", "@p = global [8 x i8] c\""},
		{"int b = 1 < 2;", "@b = global i32 1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := generate(t, tt.input)
			if err != nil {
				t.Fatalf("generate failed: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, got)
			}
		})
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
		{"constant division by zero", "int a = 1 % 0;", diag.ParseSyntax, false, "division by zero"},
		{"global array element", "int a[2]; int b = a[0];", diag.ParseSyntax, false, "not a compile-time constant"},
		{"long double constant", "long double x; void f(void) { x = 1; }", diag.Internal, true, "long double"},
		{"struct assignment", "struct S { int a; char b; }; void f(void) { struct S x; struct S y; x = y; }", diag.Internal, true, "assignment of"},
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
		})
	}
}

func TestType(t *testing.T) {
	rec := ctypes.NewBuilder(false)
	if _, err := rec.Add("a", 1, ctypes.Long()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		t    ctypes.Type
		want string
	}{
		{ctypes.Bool(), "i8"},
		{ctypes.UChar(), "i8"},
		{ctypes.Short(), "i16"},
		{ctypes.UInt(), "i32"},
		{ctypes.LongLong(), "i64"},
		{ctypes.Float(), "float"},
		{ctypes.Double(), "double"},
		{ctypes.LongDouble(), "x86_fp80"},
		{ctypes.Pointer(ctypes.Void()), "i8*"},
		{ctypes.Pointer(ctypes.Int()), "i32*"},
		{ctypes.Array(ctypes.Char(), 4), "[4 x i8]"},
		{rec.Struct("S", 1), "[8 x i8]"},
		{ctypes.Function(ctypes.Int(), ctypes.Double()), "i32 (double)"},
	}
	for _, tt := range tests {
		if got := Type(tt.t).String(); got != tt.want {
			t.Errorf("Type(%s) = %s, want %s", tt.t, got, tt.want)
		}
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
