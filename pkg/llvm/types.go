package llvm

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/fold"
)

var bytePtr = types.NewPointer(types.I8)

// Type maps a C type to its LLVM type. _Bool is stored as i8, records
// are opaque byte arrays whose members are reached by byte offset.
func Type(t ctypes.Type) types.Type {
	switch t := ctypes.Unqualified(t).(type) {
	case ctypes.Tint:
		switch t.Kind {
		case ctypes.IBool, ctypes.IChar:
			return types.I8
		case ctypes.IShort:
			return types.I16
		case ctypes.IInt:
			return types.I32
		}
		return types.I64
	case ctypes.Tfloat:
		switch t.Kind {
		case ctypes.F32:
			return types.Float
		case ctypes.F64:
			return types.Double
		}
		return types.X86_FP80
	case ctypes.Tpointer:
		if _, ok := t.Elem.(ctypes.Tvoid); ok || t.Elem == nil {
			return bytePtr
		}
		return types.NewPointer(Type(t.Elem))
	case ctypes.Tarray:
		return types.NewArray(uint64(t.Len), Type(t.Elem))
	case ctypes.Tfunction:
		params := make([]types.Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = Type(p)
		}
		sig := types.NewFunc(Type(t.Return), params...)
		sig.Variadic = t.VarArg
		return sig
	case ctypes.Tstruct, ctypes.Tunion:
		if !ctypes.IsComplete(t) {
			return types.I8
		}
		return types.NewArray(uint64(t.Size()), types.I8)
	}
	return types.Void
}

// initializer builds the constant for an object of type t from its data
// image
func initializer(image []byte, t ctypes.Type) constant.Constant {
	t = ctypes.Unqualified(t)
	switch tt := t.(type) {
	case ctypes.Tarray:
		at := Type(tt).(*types.ArrayType)
		size := tt.Elem.Size()
		elems := make([]constant.Constant, tt.Len)
		for i := range elems {
			elems[i] = initializer(image[int64(i)*size:], tt.Elem)
		}
		return constant.NewArray(at, elems...)
	case ctypes.Tstruct, ctypes.Tunion:
		return constant.NewCharArray(image[:t.Size()])
	}
	return scalar(fold.Decode(image, t), t)
}

// scalar returns the constant c converted to the scalar type t
func scalar(c fold.Const, t ctypes.Type) constant.Constant {
	c = fold.Convert(c, t)
	lt := Type(t)
	switch lt := lt.(type) {
	case *types.FloatType:
		return constant.NewFloat(lt, c.F)
	case *types.PointerType:
		if c.I == 0 {
			return constant.NewNull(lt)
		}
		return constant.NewIntToPtr(constant.NewInt(types.I64, c.I), lt)
	case *types.IntType:
		// LLVM integers carry no sign; print them in two's complement
		shift := 64 - lt.BitSize
		return constant.NewInt(lt, c.I<<shift>>shift)
	}
	return constant.NewZeroInitializer(lt)
}
