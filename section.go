package rebind

import (
	"unsafe"

	"github.com/appsworld/go-rebind/types"
)

// referenceHeapSentinel is an arbitrary, definitely-writable heap address.
// Before rewriting a __DATA_CONST section this package queries the VM
// protection covering this address, not the section's own address, to learn
// what "normal read-write" looks like on this process's heap, then restores
// that protection once the rewrite is done. This mirrors upstream fishhook's
// own behavior (it queries the protection of its own rebindings array for
// the same purpose) rather than querying the section being patched; see
// DESIGN.md.
var referenceHeapSentinel = new(byte)

func referenceHeapAddr() uintptr {
	return uintptr(unsafe.Pointer(referenceHeapSentinel))
}

// rewriteSection is the Section Rewriter: it walks every indirect symbol
// pointer slot in one __DATA/__DATA_CONST section, resolves each slot's
// symbol name against batch, and patches any slot whose name matches a
// registered Rebinding. __DATA_CONST sections are read-only at rest, so a
// write-protection bracket surrounds the patch loop; __DATA sections are
// already writable and skip it.
func rewriteSection(batch *rebindingBatch, sec sectionInfo, is64 bool, inDataConst bool, slide int64, symtabBase, strtabBase, indirectBase unsafe.Pointer) {
	word := uintptr(8)
	if !is64 {
		word = 4
	}
	if sec.size < word {
		return
	}
	count := sec.size / word

	slotsAddr := uintptr(int64(sec.addr) + slide)
	slots := unsafe.Pointer(slotsAddr)
	indices := unsafe.Add(indirectBase, uintptr(sec.reserved1)*4)

	var restoreProt types.VmProtection
	if inDataConst {
		prot, err := active.queryProtection(referenceHeapAddr())
		if err != nil {
			trace("protection query failed, skipping __DATA_CONST section at 0x%x: %v", slotsAddr, err)
			return
		}
		restoreProt = prot
		if err := active.setProtection(slotsAddr, sec.size, types.VmProtRead|types.VmProtWrite); err != nil {
			trace("protection set rw failed, skipping section at 0x%x: %v", slotsAddr, err)
			return
		}
	}

	patchSlots(batch, count, word, slots, indices, symtabBase, strtabBase, is64)

	if inDataConst {
		if err := active.setProtection(slotsAddr, sec.size, restoreProt); err != nil {
			trace("protection restore failed for section at 0x%x: %v", slotsAddr, err)
		}
	}
}

func patchSlots(batch *rebindingBatch, count, word uintptr, slots, indices, symtabBase, strtabBase unsafe.Pointer, is64 bool) {
slotLoop:
	for i := uintptr(0); i < count; i++ {
		symIdx := *(*uint32)(unsafe.Add(indices, i*4))
		if types.IsIndirectSentinel(symIdx) {
			continue
		}

		strx := symbolStrx(symtabBase, symIdx, is64)
		raw := cStringAt(unsafe.Add(strtabBase, uintptr(strx)))
		// Only requires name[0] and name[1] to both be non-zero, not that
		// name[0] is literally '_'; every real Mach-O symbol is
		// linker-prefixed so this matches in practice regardless.
		if len(raw) < 2 {
			continue
		}
		name := raw[1:]

		slot := (*uintptr)(unsafe.Add(slots, i*word))
		for b := batch; b != nil; b = b.next {
			for _, r := range b.entries {
				if r.Name != name {
					continue
				}
				if *slot != r.Replacement {
					if r.OriginalSlot != nil {
						*r.OriginalSlot = *slot
					}
					*slot = r.Replacement
				}
				continue slotLoop
			}
		}
	}
}
