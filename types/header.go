package types

import (
	"fmt"
	"strings"
)

// FileHeader mirrors the in-memory layout of mach_header / mach_header_64 as
// it sits at the start of a loaded image. Reserved is only meaningful for a
// 64-bit image; on a 32-bit image the field past SizeCommands/Flags simply
// isn't there, so callers must size their read by Magic.Is64().
type FileHeader struct {
	Magic        Magic
	CPU          CPU
	SubCPU       CPUSubtype
	Type         HeaderFileType
	NCommands    uint32
	SizeCommands uint32
	Flags        HeaderFlag
	Reserved     uint32
}

const (
	FileHeaderSize32 = 7 * 4
	FileHeaderSize64 = 8 * 4
)

// Magic identifies the word width of a Mach-O image.
type Magic uint32

const (
	Magic32  Magic = 0xfeedface
	Magic64  Magic = 0xfeedfacf
	MagicFat Magic = 0xcafebabe
)

var magicStrings = []IntName{
	{uint32(Magic32), "32-bit MachO"},
	{uint32(Magic64), "64-bit MachO"},
	{uint32(MagicFat), "Fat MachO"},
}

func (m Magic) String() string { return StringName(uint32(m), magicStrings, false) }

// Is64 reports whether the magic indicates a 64-bit image, which determines
// the width of every load command and table entry that follows the header.
func (m Magic) Is64() bool { return m == Magic64 }

// HeaderFileType is the Mach-O file type, e.g. an object file, executable, or dynamic library.
type HeaderFileType uint32

const (
	MH_OBJECT      HeaderFileType = 0x1 // relocatable object file
	MH_EXECUTE     HeaderFileType = 0x2 // demand paged executable file
	MH_DYLIB       HeaderFileType = 0x6 // dynamically bound shared library
	MH_DYLINKER    HeaderFileType = 0x7 // dynamic link editor
	MH_BUNDLE      HeaderFileType = 0x8 // dynamically bound bundle file
	MH_DYLIB_STUB  HeaderFileType = 0x9 // shared library stub, no section contents
	MH_KEXT_BUNDLE HeaderFileType = 0xb
	MH_FILESET     HeaderFileType = 0xc // image composed of other Mach-Os sharing one linkedit
)

var fileTypeStrings = []IntName{
	{uint32(MH_OBJECT), "OBJECT"},
	{uint32(MH_EXECUTE), "EXECUTE"},
	{uint32(MH_DYLIB), "DYLIB"},
	{uint32(MH_DYLINKER), "DYLINKER"},
	{uint32(MH_BUNDLE), "BUNDLE"},
	{uint32(MH_DYLIB_STUB), "DYLIB_STUB"},
	{uint32(MH_KEXT_BUNDLE), "KEXT_BUNDLE"},
	{uint32(MH_FILESET), "FILESET"},
}

func (t HeaderFileType) String() string { return StringName(uint32(t), fileTypeStrings, false) }

type HeaderFlag uint32

const (
	HeaderFlagNone        HeaderFlag = 0x0
	HeaderFlagBindAtLoad  HeaderFlag = 0x8
	HeaderFlagTwoLevel    HeaderFlag = 0x80
	HeaderFlagPIE         HeaderFlag = 0x200000
	HeaderFlagDylibInCache HeaderFlag = 0x80000000
)

var headerFlagNames = []IntName{
	{uint32(HeaderFlagBindAtLoad), "BindAtLoad"},
	{uint32(HeaderFlagTwoLevel), "TwoLevel"},
	{uint32(HeaderFlagPIE), "PIE"},
	{uint32(HeaderFlagDylibInCache), "DylibInCache"},
}

// List returns the set bits of f as their symbolic names.
func (f HeaderFlag) List() []string {
	var out []string
	for _, n := range headerFlagNames {
		if f&HeaderFlag(n.I) != 0 {
			out = append(out, n.S)
		}
	}
	return out
}

func (f HeaderFlag) String() string { return strings.Join(f.List(), "|") }

func (h FileHeader) String() string {
	return fmt.Sprintf("Magic=%s Type=%s CPU=%s,%s NCmds=%d Flags=%s",
		h.Magic, h.Type, h.CPU, h.SubCPU.String(h.CPU), h.NCommands, h.Flags)
}
