package x86

const stackAlignment = 16 // System V requires 16-byte stack alignment at calls

// x86-64 frame layout (called function's view):
//
//	+---------------------------+
//	| Incoming stack arguments  |  +16 from %rbp onward
//	| Return address            |  +8 from %rbp
//	+---------------------------+
//	| Old %rbp                  |  <- %rbp points here
//	| Locals and temporaries    |  negative offsets from %rbp
//	+---------------------------+  <- %rsp (16-byte aligned)

// incomingArgOffset is the %rbp offset of the first stack argument
const incomingArgOffset = 16

// Frame hands out %rbp-relative slots from a decreasing offset
type Frame struct {
	offset int64 // lowest offset in use, <= 0
}

// Alloc reserves size bytes aligned to align and returns the slot's
// offset from %rbp
func (f *Frame) Alloc(size, align int64) int64 {
	if align < 1 {
		align = 1
	}
	f.offset = -alignUp(-f.offset+size, align)
	return f.offset
}

// Size returns the number of bytes the prologue must reserve
func (f *Frame) Size() int64 {
	return alignUp(-f.offset, stackAlignment)
}

// alignUp rounds n up to a multiple of align
func alignUp(n, align int64) int64 {
	return (n + align - 1) / align * align
}
