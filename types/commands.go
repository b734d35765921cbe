package types

// LoadCmd is a Mach-O load command opcode, the the first word of every
// command in the load-command stream.
type LoadCmd uint32

const (
	LC_REQ_DYLD LoadCmd = 0x80000000

	LC_SEGMENT    LoadCmd = 0x1 // 32-bit segment of this file to be mapped
	LC_SYMTAB     LoadCmd = 0x2 // link-edit symbol table info
	LC_DYSYMTAB   LoadCmd = 0xb // dynamic link-edit symbol table info
	LC_SEGMENT_64 LoadCmd = 0x19 // 64-bit segment of this file to be mapped
	LC_UUID       LoadCmd = 0x1b

	// kept for completeness of the load-command traversal; the walker skips
	// these by cmdsize without interpreting their payload.
	LC_LOAD_DYLIB    LoadCmd = 0xc
	LC_ID_DYLIB      LoadCmd = 0xd
	LC_LOAD_DYLINKER LoadCmd = 0xe
	LC_DYLD_INFO     LoadCmd = 0x22
	LC_MAIN          LoadCmd = 0x28 | LC_REQ_DYLD
	LC_BUILD_VERSION LoadCmd = 0x32
)

// SegFlag is the flags field of a segment load command.
type SegFlag uint32

const (
	SegFlagReadOnly SegFlag = 0x10
)

// Segment32 is a 32-bit Mach-O LC_SEGMENT command, exactly as laid out in a
// loaded image (its fields are naturally aligned, so Go adds no padding).
type Segment32 struct {
	Cmd     LoadCmd
	Len     uint32
	Name    [16]byte
	Addr    uint32
	Memsz   uint32
	Offset  uint32
	Filesz  uint32
	Maxprot VmProtection
	Prot    VmProtection
	Nsect   uint32
	Flag    SegFlag
}

// Segment64 is a 64-bit Mach-O LC_SEGMENT_64 command.
type Segment64 struct {
	Cmd     LoadCmd
	Len     uint32
	Name    [16]byte
	Addr    uint64
	Memsz   uint64
	Offset  uint64
	Filesz  uint64
	Maxprot VmProtection
	Prot    VmProtection
	Nsect   uint32
	Flag    SegFlag
}

// SymtabCmd is a Mach-O LC_SYMTAB command: locates the nlist array and its
// companion string table.
type SymtabCmd struct {
	Cmd     LoadCmd
	Len     uint32
	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32
}

// DysymtabCmd is a Mach-O LC_DYSYMTAB command. Only Indirectsymoff and
// Nindirectsyms are consulted by this engine; the rest describe the
// module/table-of-contents layout that a static linker cares about.
type DysymtabCmd struct {
	Cmd            LoadCmd
	Len            uint32
	Ilocalsym      uint32
	Nlocalsym      uint32
	Iextdefsym     uint32
	Nextdefsym     uint32
	Iundefsym      uint32
	Nundefsym      uint32
	Tocoffset      uint32
	Ntoc           uint32
	Modtaboff      uint32
	Nmodtab        uint32
	Extrefsymoff   uint32
	Nextrefsyms    uint32
	Indirectsymoff uint32
	Nindirectsyms  uint32
	Extreloff      uint32
	Nextrel        uint32
	Locreloff      uint32
	Nlocrel        uint32
}
