// Package diag defines the compiler's single error channel.
//
// Every failure is an *Error with one of four kinds. Lexical and parse
// errors describe malformed input and carry a source position; internal
// errors describe compiler bugs or unimplemented paths; system errors come
// from the operating system.
package diag

import (
	"errors"
	"fmt"
)

// Kind classifies an error
type Kind int

const (
	System Kind = iota
	Internal
	ParseSyntax
	LexSyntax
)

func (k Kind) String() string {
	switch k {
	case System:
		return "system"
	case Internal:
		return "internal compiler"
	case ParseSyntax:
		return "parse syntax"
	case LexSyntax:
		return "lex syntax"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Pos is a 1-based source position. The zero Pos means unknown.
type Pos struct {
	File   string
	Line   int
	Column int
}

// IsValid reports whether the position refers to a line
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	switch {
	case p.File != "" && p.IsValid():
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	case p.IsValid():
		return fmt.Sprintf("line %d, col %d", p.Line, p.Column)
	}
	return p.File
}

// ErrUnimplemented marks constructs the compiler recognizes but cannot translate.
var ErrUnimplemented = errors.New("unimplemented")

// Error is the value raised by every compiler phase
type Error struct {
	Kind Kind
	Msg  string
	Pos  Pos
	// Err is an optional wrapped cause such as ErrUnimplemented or an *os.PathError
	Err error
}

func (e *Error) Error() string {
	if where := e.Pos.String(); where != "" {
		return fmt.Sprintf("%s: %s error: %s", where, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an error of the given kind at pos
func Errorf(kind Kind, pos Pos, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Pos: pos}
}

// Internalf reports a broken compiler invariant
func Internalf(format string, args ...any) *Error {
	return &Error{Kind: Internal, Msg: fmt.Sprintf(format, args...)}
}

// Unimplementedf reports a construct with no translation yet
func Unimplementedf(format string, args ...any) *Error {
	return &Error{
		Kind: Internal,
		Msg:  "unimplemented: " + fmt.Sprintf(format, args...),
		Err:  ErrUnimplemented,
	}
}

// Systemf wraps an operating system failure
func Systemf(err error, format string, args ...any) *Error {
	return &Error{Kind: System, Msg: fmt.Sprintf(format, args...) + ": " + err.Error(), Err: err}
}

// KindOf returns the kind of err, treating errors that are not *Error as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// At fills in the position of err when it does not have one yet. Errors
// raised by backends have no position; the parser attaches the token's.
func At(err error, pos Pos) error {
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: Internal, Msg: err.Error(), Pos: pos, Err: err}
	}
	if !e.Pos.IsValid() {
		e.Pos.Line, e.Pos.Column = pos.Line, pos.Column
		if e.Pos.File == "" {
			e.Pos.File = pos.File
		}
	}
	return e
}

// ExitCode maps an error to the driver's process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case LexSyntax, ParseSyntax:
		return 1
	case System:
		return 2
	}
	return 3
}
