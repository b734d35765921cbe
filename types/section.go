package types

// LoadCommandHeader is the common prefix of every load command: enough to
// identify it and to skip to the next one without understanding its payload.
type LoadCommandHeader struct {
	Cmd     LoadCmd
	Cmdsize uint32
}

// SectionFlag packs a section's type (low byte) and attributes (remaining
// three bytes) as described by mach-o/loader.h's section_64.flags.
type SectionFlag uint32

const (
	SectionTypeMask SectionFlag = 0xff

	S_REGULAR                  SectionFlag = 0x0
	S_LAZY_SYMBOL_POINTERS     SectionFlag = 0x7
	S_NON_LAZY_SYMBOL_POINTERS SectionFlag = 0x6
)

// Type extracts the section type from a full flags word.
func (f SectionFlag) Type() SectionFlag { return f & SectionTypeMask }

// IsSymbolPointerSection reports whether f names one of the two section
// types whose entries are backed by the indirect symbol table.
func (f SectionFlag) IsSymbolPointerSection() bool {
	switch f.Type() {
	case S_LAZY_SYMBOL_POINTERS, S_NON_LAZY_SYMBOL_POINTERS:
		return true
	default:
		return false
	}
}

// Section32 is a 32-bit Mach-O section header as it appears inside a
// segment command's section array.
type Section32 struct {
	Name      [16]byte
	Seg       [16]byte
	Addr      uint32
	Size      uint32
	Offset    uint32
	Align     uint32
	Reloff    uint32
	Nreloc    uint32
	Flags     SectionFlag
	Reserved1 uint32
	Reserved2 uint32
}

// Section64 is a 64-bit Mach-O section header.
type Section64 struct {
	Name      [16]byte
	Seg       [16]byte
	Addr      uint64
	Size      uint64
	Offset    uint32
	Align     uint32
	Reloff    uint32
	Nreloc    uint32
	Flags     SectionFlag
	Reserved1 uint32
	Reserved2 uint32
	Reserved3 uint32
}

// Indirect symbol table sentinels (mach-o/loader.h INDIRECT_SYMBOL_*):
// an entry carrying one of these values, rather than a symbol table index,
// marks a slot that binds to nothing external.
const (
	IndirectSymbolLocal uint32 = 0x80000000
	IndirectSymbolAbs   uint32 = 0x40000000
)

// IsIndirectSentinel reports whether idx is one of the reserved markers
// (ABS, LOCAL, or their bitwise-or) rather than a real index into the
// symbol table.
func IsIndirectSentinel(idx uint32) bool {
	switch idx {
	case IndirectSymbolLocal, IndirectSymbolAbs, IndirectSymbolLocal | IndirectSymbolAbs:
		return true
	default:
		return false
	}
}
