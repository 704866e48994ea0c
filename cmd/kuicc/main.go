package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/raymyers/kuicc/pkg/ast"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/intern"
	"github.com/raymyers/kuicc/pkg/lexer"
	"github.com/raymyers/kuicc/pkg/llvm"
	"github.com/raymyers/kuicc/pkg/parser"
	"github.com/raymyers/kuicc/pkg/ssa"
	"github.com/raymyers/kuicc/pkg/visitor"
	"github.com/raymyers/kuicc/pkg/x86"
)

var version = "0.1.0"

const defaultVisitor = "x86_64"

var (
	visitorName string
	outputPath  string
	dTokens     bool
)

// ErrNotImplemented indicates a feature is not yet implemented
var ErrNotImplemented = errors.New("not yet implemented")

// compile parses toks, driving v, and lets v write its output
func compile[H any](toks []lexer.Token, v visitor.Visitor[H]) error {
	if err := parser.New[H](toks, v).ParseTranslationUnit(); err != nil {
		return err
	}
	return v.Finalize()
}

// backends maps -v names to the code generators behind them
var backends = map[string]func(toks []lexer.Token, out io.Writer) error{
	"x86_64": func(toks []lexer.Token, out io.Writer) error {
		return compile[x86.Value](toks, x86.NewGenerator(out))
	},
	"ssa": func(toks []lexer.Token, out io.Writer) error {
		return compile[ssa.Value](toks, ssa.NewBuilder(out))
	},
	"ast": func(toks []lexer.Token, out io.Writer) error {
		return compile[ast.Expr](toks, ast.NewDumper(out))
	},
	"llvm": func(toks []lexer.Token, out io.Writer) error {
		return compile[llvm.Value](toks, llvm.NewGenerator(out))
	},
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func main() {
	os.Exit(run())
}

func run() int {
	return execute(normalizeFlags(os.Args[1:]), os.Stdout, os.Stderr)
}

// execute runs the root command on args and returns the exit status
func execute(args []string, out, errOut io.Writer) int {
	rootCmd := newRootCmd(out, errOut)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(errOut, "kuicc: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps err to a process status: 1 for bad input or usage, 2 for
// system failures, 3 for internal and unimplemented paths
func exitCode(err error) int {
	var de *diag.Error
	switch {
	case errors.As(err, &de):
		return diag.ExitCode(err)
	case errors.Is(err, ErrNotImplemented):
		return 3
	}
	return 1
}

// debugFlagNames lists the debug flags that also accept a single dash
var debugFlagNames = []string{"dtokens"}

// normalizeFlags converts single-dash debug flags like -dtokens to --dtokens
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

// flagAliases maps accepted spellings to the registered flag names
var flagAliases = map[string]string{
	"backend": "visitor",
	"dtoken":  "dtokens",
	"out":     "output",
}

func normalizeName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	if alias, ok := flagAliases[name]; ok {
		name = alias
	}
	return pflag.NormalizedName(name)
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kuicc [file]",
		Short: "kuicc compiles a small subset of C in a single pass",
		Long: `kuicc is a single-pass compiler for a small subset of C. The parser
drives a code generator directly as it recognizes declarations,
expressions and statements; -v picks which one.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			filename := args[0]

			gen, ok := backends[visitorName]
			if !ok {
				fmt.Fprintf(errOut, "kuicc: warning: visitor %q is not one of %v\n", visitorName, backendNames())
				return fmt.Errorf("visitor %s: %w", visitorName, ErrNotImplemented)
			}

			toks, err := readTokens(filename)
			if err != nil {
				return err
			}
			if dTokens {
				return doTokens(toks, out)
			}

			// nothing is written unless the whole unit compiles
			var buf bytes.Buffer
			if err := gen(toks, &buf); err != nil {
				return err
			}
			return writeOutput(buf.Bytes(), out)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.Flags()
	flags.SetNormalizeFunc(normalizeName)
	flags.StringVarP(&visitorName, "visitor", "v", defaultVisitor, fmt.Sprintf("Code generator to drive (%v)", backendNames()))
	flags.StringVarP(&outputPath, "output", "o", "", "Write output to file instead of stdout")
	flags.BoolVarP(&dTokens, "dtokens", "", false, "Dump the token stream")

	return rootCmd
}

// readTokens reads and scans a whole source file
func readTokens(filename string) ([]lexer.Token, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, diag.Systemf(err, "reading %s", filename)
	}
	return lexer.New(filename, content, intern.New()).Tokenize()
}

// doTokens prints one token per line with its position (--dtokens)
func doTokens(toks []lexer.Token, out io.Writer) error {
	var buf bytes.Buffer
	for _, tok := range toks {
		fmt.Fprintf(&buf, "%d:%d\t%s\t%q\n", tok.Span.Line, tok.Span.Column, tok.Type, tok.Literal)
	}
	return writeOutput(buf.Bytes(), out)
}

func writeOutput(data []byte, out io.Writer) error {
	if outputPath == "" {
		if _, err := out.Write(data); err != nil {
			return diag.Systemf(err, "writing output")
		}
		return nil
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return diag.Systemf(err, "writing %s", outputPath)
	}
	return nil
}
