// Package visitor defines the contract between the parser and a code
// generation backend.
//
// The parser calls a Visitor in source order as it recognizes constructs.
// Each backend chooses its own handle type H; the parser stores handles in
// its symbol table and passes them back but never looks inside one.
package visitor

import (
	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/lexer"
)

// Visitor is implemented by every backend
type Visitor[H any] interface {
	// IntegerLiteral materializes an integer constant
	IntegerLiteral(v int64) (H, error)
	// FloatLiteral materializes a double constant
	FloatLiteral(v float64) (H, error)

	// Binop combines two values. For lexer.TokenComma the left value is
	// discarded and right is returned unchanged.
	Binop(op lexer.TokenType, left, right H) (H, error)
	// Assign stores src into the location dest and returns the stored value
	Assign(dest, src H) (H, error)

	// Declaration allocates storage for a new object. Inside a function
	// this is a local; otherwise it is a file-scope object.
	Declaration(t ctypes.Type, name string) (H, error)

	FunctionStart(name string, fn ctypes.Tfunction) error
	// FunctionParam declares the next incoming parameter and copies its
	// value into the returned location.
	FunctionParam(t ctypes.Type, name string) (H, error)
	FunctionEnd() error

	// ArrayReference addresses array[index]. With lvalue set the handle
	// names the element's location, otherwise its loaded value.
	ArrayReference(array, index H, lvalue bool) (H, error)
	// StructReference addresses member m of a struct or union object
	StructReference(object H, m *ctypes.Member) (H, error)

	// ZeroObject clears object before an initializer list fills it
	ZeroObject(object H) error
	// AssignOffset stores value, converted to t, offset bytes into object
	AssignOffset(object H, offset int64, t ctypes.Type, value H) error

	// Return leaves the current function. ok is false for a bare return.
	Return(value H, ok bool) error

	// Finalize writes the backend's output
	Finalize() error
}
