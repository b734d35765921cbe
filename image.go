package rebind

import (
	"unsafe"

	"github.com/appsworld/go-rebind/types"
)

// commandIter walks a Mach-O load-command stream one command at a time,
// advancing by each command's own declared size. It is bounded by the
// header's ncmds count; it does not otherwise validate that a command's
// cmdsize keeps it inside the image, matching the direct-memory-trust model
// the walker and rewriter share throughout this package.
type commandIter struct {
	ptr unsafe.Pointer
	n   uint32
	i   uint32
}

func newCommandIter(header unsafe.Pointer, is64 bool, ncmds uint32) commandIter {
	headerSize := uintptr(types.FileHeaderSize32)
	if is64 {
		headerSize = types.FileHeaderSize64
	}
	return commandIter{ptr: unsafe.Add(header, headerSize), n: ncmds}
}

func (c *commandIter) next() (cmd types.LoadCmd, body unsafe.Pointer, ok bool) {
	if c.i >= c.n {
		return 0, nil, false
	}
	h := (*types.LoadCommandHeader)(c.ptr)
	cmd, body = h.Cmd, c.ptr
	c.ptr = unsafe.Add(c.ptr, h.Cmdsize)
	c.i++
	return cmd, body, true
}

// linkeditInfo is what the first command pass needs out of __LINKEDIT:
// together with the symtab/dysymtab file offsets, enough to compute the live
// addresses of the symbol table, string table, and indirect symbol table.
type linkeditInfo struct {
	vmaddr  uintptr
	fileoff uintptr
}

// walkImage is the Image Walker: given one loaded image, it locates
// __LINKEDIT plus the symtab/dysymtab commands, then dispatches every
// lazy/non-lazy symbol pointer section in __DATA/__DATA_CONST to the
// Section Rewriter. batch is the registry snapshot to rewrite against — the
// full global registry for a RegisterGlobal-driven walk, or a private
// single-batch registry for RegisterLocal.
func walkImage(batch *rebindingBatch, header uintptr, slide int64) {
	if header == 0 || batch == nil {
		return
	}
	if !active.resolveImage(header) {
		trace("image at 0x%x not yet resolvable, skipping", header)
		return
	}

	hp := unsafe.Pointer(header)
	hdr := (*types.FileHeader)(hp)
	is64 := hdr.Magic.Is64()

	var (
		linkedit     linkeditInfo
		haveLinkedit bool
		symtab       types.SymtabCmd
		haveSymtab   bool
		dysymtab     types.DysymtabCmd
		haveDysymtab bool
	)

	for it := newCommandIter(hp, is64, hdr.NCommands); ; {
		cmd, body, ok := it.next()
		if !ok {
			break
		}
		switch cmd {
		case types.LC_SEGMENT, types.LC_SEGMENT_64:
			name, vmaddr, fileoff, _, _ := segmentView(body, is64)
			if name == "__LINKEDIT" {
				linkedit = linkeditInfo{vmaddr: vmaddr, fileoff: fileoff}
				haveLinkedit = true
			}
		case types.LC_SYMTAB:
			symtab = *(*types.SymtabCmd)(body)
			haveSymtab = true
		case types.LC_DYSYMTAB:
			dysymtab = *(*types.DysymtabCmd)(body)
			haveDysymtab = true
		}
	}

	if !haveLinkedit || !haveSymtab || !haveDysymtab || dysymtab.Nindirectsyms == 0 {
		trace("image at 0x%x has no indirect symbol table, skipping", header)
		return
	}

	// linkedit.vmaddr is where __LINKEDIT says it will be mapped, once
	// slide is applied; fileoff is where its contents sit in the file.
	// Every *off field in symtab/dysymtab is itself a file offset, so this
	// base converts any of them to a live address in one step.
	linkeditBase := uintptr(int64(linkedit.vmaddr)+slide) - linkedit.fileoff
	symtabBase := unsafe.Pointer(linkeditBase + uintptr(symtab.Symoff))
	strtabBase := unsafe.Pointer(linkeditBase + uintptr(symtab.Stroff))
	indirectBase := unsafe.Pointer(linkeditBase + uintptr(dysymtab.Indirectsymoff))

	for it := newCommandIter(hp, is64, hdr.NCommands); ; {
		cmd, body, ok := it.next()
		if !ok {
			break
		}
		if cmd != types.LC_SEGMENT && cmd != types.LC_SEGMENT_64 {
			continue
		}
		name, _, _, nsect, _ := segmentView(body, is64)
		if name != "__DATA" && name != "__DATA_CONST" {
			continue
		}
		inDataConst := name == "__DATA_CONST"
		forEachSection(body, is64, nsect, func(sec sectionInfo) {
			if !sec.flags.IsSymbolPointerSection() {
				return
			}
			rewriteSection(batch, sec, is64, inDataConst, slide, symtabBase, strtabBase, indirectBase)
		})
	}
}

// segmentView reads the fields shared by Segment32/Segment64 that the
// walker needs, plus the address immediately following the command — where
// its section array, if any, begins.
func segmentView(body unsafe.Pointer, is64 bool) (name string, vmaddr, fileoff uintptr, nsect uint32, sectionsBase unsafe.Pointer) {
	if is64 {
		s := (*types.Segment64)(body)
		return cstringFixed(s.Name[:]), uintptr(s.Addr), uintptr(s.Offset), s.Nsect, unsafe.Add(body, unsafe.Sizeof(types.Segment64{}))
	}
	s := (*types.Segment32)(body)
	return cstringFixed(s.Name[:]), uintptr(s.Addr), uintptr(s.Offset), s.Nsect, unsafe.Add(body, unsafe.Sizeof(types.Segment32{}))
}

// sectionInfo is the bitness-erased view of a Section32/Section64 that the
// rewriter operates on.
type sectionInfo struct {
	addr      uintptr
	size      uintptr
	flags     types.SectionFlag
	reserved1 uint32
}

func forEachSection(segBody unsafe.Pointer, is64 bool, nsect uint32, fn func(sectionInfo)) {
	_, _, _, _, base := segmentView(segBody, is64)
	stride := unsafe.Sizeof(types.Section64{})
	if !is64 {
		stride = unsafe.Sizeof(types.Section32{})
	}
	p := base
	for i := uint32(0); i < nsect; i++ {
		if is64 {
			s := (*types.Section64)(p)
			fn(sectionInfo{addr: uintptr(s.Addr), size: uintptr(s.Size), flags: s.Flags, reserved1: s.Reserved1})
		} else {
			s := (*types.Section32)(p)
			fn(sectionInfo{addr: uintptr(s.Addr), size: uintptr(s.Size), flags: s.Flags, reserved1: s.Reserved1})
		}
		p = unsafe.Add(p, stride)
	}
}

func cstringFixed(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// cStringAt reads a NUL-terminated string starting at p, as found in a
// Mach-O string table. There is no bound on how far this can read: a
// corrupt strx offset is undefined behavior, same as in the format it reads.
func cStringAt(p unsafe.Pointer) string {
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

func symbolStrx(symtabBase unsafe.Pointer, idx uint32, is64 bool) uint32 {
	if is64 {
		return (*types.Nlist64)(unsafe.Add(symtabBase, uintptr(idx)*unsafe.Sizeof(types.Nlist64{}))).Strx
	}
	return (*types.Nlist32)(unsafe.Add(symtabBase, uintptr(idx)*unsafe.Sizeof(types.Nlist32{}))).Strx
}
