// Package rebind retargets calls to dynamically-imported symbols inside the
// running process by rewriting Mach-O indirect symbol pointer tables. It
// never touches executable code: lazy and non-lazy imports are bound through
// a writable indirection table in __DATA/__DATA_CONST, and this package
// patches entries in that table in place.
package rebind

import "errors"

// Rebinding describes one imported symbol to retarget. Name is matched
// without the leading underscore the linker prepends to every C symbol.
// Replacement must be the address of a function with the same C calling
// convention as the symbol it replaces. OriginalSlot, if non-nil, receives
// the address a slot held each time a slot for this name is rewritten; a
// slot that already holds Replacement is left alone and not captured, so a
// repeated walk never stores Replacement itself. Callers chain to it to
// preserve the original behavior.
type Rebinding struct {
	Name         string
	Replacement  uintptr
	OriginalSlot *uintptr
}

var (
	// ErrAllocationFailure is returned by RegisterGlobal/RegisterLocal when
	// the batch copy could not be made. The global registry is left
	// unchanged when this is returned.
	ErrAllocationFailure = errors.New("rebind: could not allocate registry batch")

	// ErrUnsupportedPlatform is returned by every public entry point when
	// built without darwin+cgo. Mach-O symbol rebinding has no meaning on
	// any other target.
	ErrUnsupportedPlatform = errors.New("rebind: requires darwin and cgo")

	// errProtectionQueryFailed and errProtectionSetFailed report a failed
	// mach_vm_region/mach_vm_protect call. They never escape this package:
	// a failure is logged via trace(). A failure before the rewrite skips
	// the affected section, since a half-rewritten pointer table is worse
	// than an unrewritten one; a failed restore after the rewrite is only
	// logged.
	errProtectionQueryFailed = errors.New("rebind: mach_vm_region failed")
	errProtectionSetFailed   = errors.New("rebind: mach_vm_protect failed")
)

// Backend reports which platform engine is active: "dyld-cgo" on a real
// darwin+cgo build, "stub" otherwise.
func Backend() string { return backendMode }
