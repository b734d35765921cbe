package types

import "fmt"

// CPU is a Mach-O cpu_type_t.
type CPU uint32

const (
	cpuArch64 = 0x01000000 // 64 bit ABI
)

const (
	CPUAmd64 CPU = 7 | cpuArch64
	CPUArm64 CPU = 12 | cpuArch64
)

var cpuStrings = []IntName{
	{uint32(CPUAmd64), "x86_64"},
	{uint32(CPUArm64), "arm64"},
}

func (i CPU) String() string { return StringName(uint32(i), cpuStrings, false) }

// CPUSubtype is a Mach-O cpu_subtype_t.
type CPUSubtype uint32

const (
	CPUSubtypeX8664All CPUSubtype = 3
	CPUSubtypeX86_64H  CPUSubtype = 8
	CPUSubtypeArm64All CPUSubtype = 0
	CPUSubtypeArm64E   CPUSubtype = 2
)

const (
	cpuSubtypeFeatureMask  CPUSubtype = 0xff000000
	cpuSubtypeMask                    = CPUSubtype(^cpuSubtypeFeatureMask)
	cpuSubtypePtrauthUser             = 0x40000000
	cpuSubtypeArm64PtrMask            = 0x0f000000
)

var cpuSubtypeX86Strings = []IntName{
	{uint32(CPUSubtypeX8664All), "x86_64"},
	{uint32(CPUSubtypeX86_64H), "x86_64 (Haswell)"},
}

var cpuSubtypeArm64Strings = []IntName{
	{uint32(CPUSubtypeArm64All), "ARM64"},
	{uint32(CPUSubtypeArm64E), "ARM64e"},
}

// String renders a subtype in the context of its owning CPU, since the
// subtype namespace (and the feature bits packed into its high byte) differ
// per architecture.
func (st CPUSubtype) String(cpu CPU) string {
	switch cpu {
	case CPUAmd64:
		return StringName(uint32(st&cpuSubtypeMask), cpuSubtypeX86Strings, false)
	case CPUArm64:
		caps := st & cpuSubtypeFeatureMask
		name := StringName(uint32(st&cpuSubtypeMask), cpuSubtypeArm64Strings, false)
		if caps == 0 {
			return name
		}
		kind := "PAC"
		if caps&cpuSubtypePtrauthUser != 0 {
			kind = "PAK"
		}
		return fmt.Sprintf("%s caps:%s%02d", name, kind, (caps&cpuSubtypeArm64PtrMask)>>24)
	default:
		return "unknown"
	}
}
