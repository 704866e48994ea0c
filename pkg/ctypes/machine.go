package ctypes

// Machine describes the scalar sizes of a target. Alignment equals size
// for every scalar.
type Machine struct {
	Name       string
	Bool       int64
	Char       int64
	Short      int64
	Int        int64
	Long       int64
	LongLong   int64
	Pointer    int64
	Float      int64
	Double     int64
	LongDouble int64
}

// X86_64 is the LP64 System V target
var X86_64 = Machine{
	Name:       "x86_64",
	Bool:       1,
	Char:       1,
	Short:      2,
	Int:        4,
	Long:       8,
	LongLong:   8,
	Pointer:    8,
	Float:      4,
	Double:     8,
	LongDouble: 16,
}

func (m Machine) intSize(k IntKind) int64 {
	switch k {
	case IBool:
		return m.Bool
	case IChar:
		return m.Char
	case IShort:
		return m.Short
	case IInt:
		return m.Int
	case ILong:
		return m.Long
	case ILongLong:
		return m.LongLong
	}
	return m.Int
}

func (m Machine) floatSize(k FloatKind) int64 {
	switch k {
	case F32:
		return m.Float
	case F64:
		return m.Double
	}
	return m.LongDouble
}
