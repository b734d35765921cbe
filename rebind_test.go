package rebind

import (
	"testing"
	"unsafe"

	"github.com/appsworld/go-rebind/types"
)

type fakeEngine struct {
	resolvable bool
	imgs       []loadedImage

	queries int
	sets    int
}

func (f *fakeEngine) resolveImage(uintptr) bool { return f.resolvable }

func (f *fakeEngine) queryProtection(uintptr) (types.VmProtection, error) {
	f.queries++
	return types.VmProtRead, nil
}

func (f *fakeEngine) setProtection(uintptr, uintptr, types.VmProtection) error {
	f.sets++
	return nil
}

func (f *fakeEngine) images() []loadedImage { return f.imgs }

func (f *fakeEngine) registerAddImageCallback(func(uintptr, int64)) {}

func align8(n int) int { return (n + 7) &^ 7 }

// syntheticImage builds a minimal, self-consistent 64-bit Mach-O image in a
// Go byte slice: one __LINKEDIT segment, one segment named segName holding
// a single lazy symbol pointer section bound to symName, and the
// symtab/dysymtab/string-table machinery the walker needs to find it. The
// returned slots slice aliases the section's pointer table directly, so
// tests can observe in-place rewrites.
func syntheticImage(t *testing.T, segName, symName string, initial uintptr) (mem []byte, slots []uintptr) {
	t.Helper()

	const strtabRoom = 64

	hdrSize := int(types.FileHeaderSize64)
	linkeditCmdSize := int(unsafe.Sizeof(types.Segment64{}))
	symtabCmdSize := int(unsafe.Sizeof(types.SymtabCmd{}))
	dysymtabCmdSize := int(unsafe.Sizeof(types.DysymtabCmd{}))
	segCmdSize := int(unsafe.Sizeof(types.Segment64{}))
	secSize := int(unsafe.Sizeof(types.Section64{}))
	dataCmdSize := segCmdSize + secSize
	nlistSize := int(unsafe.Sizeof(types.Nlist64{}))

	cmdsEnd := hdrSize + linkeditCmdSize + symtabCmdSize + dysymtabCmdSize + dataCmdSize

	symtabOff := align8(cmdsEnd)
	strtabOff := align8(symtabOff + nlistSize)
	indirectOff := align8(strtabOff + strtabRoom)
	slotsOff := align8(indirectOff + 4)
	total := slotsOff + 8

	mem = make([]byte, total)
	base := uintptr(unsafe.Pointer(&mem[0]))

	hdr := (*types.FileHeader)(unsafe.Pointer(&mem[0]))
	*hdr = types.FileHeader{Magic: types.Magic64, CPU: types.CPUArm64, Type: types.MH_EXECUTE, NCommands: 4}

	p := hdrSize

	linkedit := (*types.Segment64)(unsafe.Pointer(&mem[p]))
	*linkedit = types.Segment64{Cmd: types.LC_SEGMENT_64, Len: uint32(linkeditCmdSize), Addr: uint64(base), Offset: 0}
	copy(linkedit.Name[:], "__LINKEDIT")
	p += linkeditCmdSize

	symtab := (*types.SymtabCmd)(unsafe.Pointer(&mem[p]))
	*symtab = types.SymtabCmd{
		Cmd: types.LC_SYMTAB, Len: uint32(symtabCmdSize),
		Symoff: uint32(symtabOff), Nsyms: 1,
		Stroff: uint32(strtabOff), Strsize: strtabRoom,
	}
	p += symtabCmdSize

	dysymtab := (*types.DysymtabCmd)(unsafe.Pointer(&mem[p]))
	*dysymtab = types.DysymtabCmd{
		Cmd: types.LC_DYSYMTAB, Len: uint32(dysymtabCmdSize),
		Indirectsymoff: uint32(indirectOff), Nindirectsyms: 1,
	}
	p += dysymtabCmdSize

	data := (*types.Segment64)(unsafe.Pointer(&mem[p]))
	*data = types.Segment64{Cmd: types.LC_SEGMENT_64, Len: uint32(dataCmdSize), Nsect: 1}
	copy(data.Name[:], segName)
	sec := (*types.Section64)(unsafe.Pointer(&mem[p+segCmdSize]))
	*sec = types.Section64{Addr: uint64(base) + uint64(slotsOff), Size: 8, Flags: types.S_LAZY_SYMBOL_POINTERS}
	copy(sec.Name[:], "__la_symbol_ptr")
	copy(sec.Seg[:], segName)

	nl := (*types.Nlist64)(unsafe.Pointer(&mem[symtabOff]))
	*nl = types.Nlist64{Strx: 0}

	copy(mem[strtabOff:], "_"+symName+"\x00")

	*(*uint32)(unsafe.Pointer(&mem[indirectOff])) = 0

	*(*uintptr)(unsafe.Pointer(&mem[slotsOff])) = initial
	slots = unsafe.Slice((*uintptr)(unsafe.Pointer(&mem[slotsOff])), 1)
	return mem, slots
}

func withFakeEngine(t *testing.T, e *fakeEngine) {
	t.Helper()
	savedActive, savedMode := active, backendMode
	active, backendMode = e, "fake-cgo"
	t.Cleanup(func() { active, backendMode = savedActive, savedMode })
}

func TestRegisterLocalPatchesMatchingSlot(t *testing.T) {
	const original, replacement = uintptr(0xdeadbeef), uintptr(0xcafef00d)
	mem, slots := syntheticImage(t, "__DATA", "widget_open", original)
	withFakeEngine(t, &fakeEngine{resolvable: true})

	var capturedOriginal uintptr
	if err := RegisterLocal(uintptr(unsafe.Pointer(&mem[0])), 0, []Rebinding{
		{Name: "widget_open", Replacement: replacement, OriginalSlot: &capturedOriginal},
	}); err != nil {
		t.Fatalf("RegisterLocal: %v", err)
	}
	if slots[0] != replacement {
		t.Fatalf("slot = 0x%x, want 0x%x", slots[0], replacement)
	}
	if capturedOriginal != original {
		t.Fatalf("captured original = 0x%x, want 0x%x", capturedOriginal, original)
	}
}

func TestRegisterLocalLeavesNonMatchingSlotAlone(t *testing.T) {
	const original = uintptr(0x1111)
	mem, slots := syntheticImage(t, "__DATA", "widget_open", original)
	withFakeEngine(t, &fakeEngine{resolvable: true})

	if err := RegisterLocal(uintptr(unsafe.Pointer(&mem[0])), 0, []Rebinding{
		{Name: "something_else", Replacement: 0x2222},
	}); err != nil {
		t.Fatalf("RegisterLocal: %v", err)
	}
	if slots[0] != original {
		t.Fatalf("slot changed to 0x%x, want unchanged 0x%x", slots[0], original)
	}
}

func TestRegisterLocalIdempotentCapture(t *testing.T) {
	const original, replacement = uintptr(0x3333), uintptr(0x4444)
	mem, slots := syntheticImage(t, "__DATA", "widget_open", original)
	withFakeEngine(t, &fakeEngine{resolvable: true})

	header := uintptr(unsafe.Pointer(&mem[0]))
	var slot1, slot2 uintptr
	if err := RegisterLocal(header, 0, []Rebinding{{Name: "widget_open", Replacement: replacement, OriginalSlot: &slot1}}); err != nil {
		t.Fatal(err)
	}
	if err := RegisterLocal(header, 0, []Rebinding{{Name: "widget_open", Replacement: replacement, OriginalSlot: &slot2}}); err != nil {
		t.Fatal(err)
	}
	if slots[0] != replacement {
		t.Fatalf("slot = 0x%x, want 0x%x", slots[0], replacement)
	}
	if slot1 != original {
		t.Fatalf("first capture = 0x%x, want original 0x%x", slot1, original)
	}
	if slot2 != 0 {
		t.Fatalf("second capture fired when slot already matched: got 0x%x", slot2)
	}
}

func TestResolveImageGateSkipsUnresolvedImage(t *testing.T) {
	mem, slots := syntheticImage(t, "__DATA", "widget_open", 0x5555)
	withFakeEngine(t, &fakeEngine{resolvable: false})

	if err := RegisterLocal(uintptr(unsafe.Pointer(&mem[0])), 0, []Rebinding{
		{Name: "widget_open", Replacement: 0x6666},
	}); err != nil {
		t.Fatal(err)
	}
	if slots[0] != 0x5555 {
		t.Fatalf("slot changed despite unresolved image: 0x%x", slots[0])
	}
}

func TestDataConstSectionBracketsProtection(t *testing.T) {
	const original, replacement = uintptr(0x7777), uintptr(0x8888)
	mem, slots := syntheticImage(t, "__DATA_CONST", "widget_open", original)
	eng := &fakeEngine{resolvable: true}
	withFakeEngine(t, eng)

	if err := RegisterLocal(uintptr(unsafe.Pointer(&mem[0])), 0, []Rebinding{
		{Name: "widget_open", Replacement: replacement},
	}); err != nil {
		t.Fatal(err)
	}
	if slots[0] != replacement {
		t.Fatalf("slot = 0x%x, want 0x%x", slots[0], replacement)
	}
	if eng.queries != 1 || eng.sets != 2 {
		t.Fatalf("protection query/set calls = %d/%d, want 1/2 (rw then restore)", eng.queries, eng.sets)
	}
}

func TestRegisterGlobalNewerBatchWinsOnNameCollision(t *testing.T) {
	mem, slots := syntheticImage(t, "__DATA", "widget_open", 0x10)
	withFakeEngine(t, &fakeEngine{resolvable: true})

	savedHead := registryHead.Load()
	registryHead.Store(nil)
	t.Cleanup(func() { registryHead.Store(savedHead) })

	if err := RegisterGlobal([]Rebinding{{Name: "widget_open", Replacement: 0x20}}); err != nil {
		t.Fatal(err)
	}
	if err := RegisterGlobal([]Rebinding{{Name: "widget_open", Replacement: 0x30}}); err != nil {
		t.Fatal(err)
	}

	// Neither call above walked this image directly (RegisterGlobal's
	// non-first path only walks images the fake engine already reports,
	// and its images() is empty here). Drive the same path dyld's
	// callback would take for an image loaded after both registrations.
	onImageAdded(uintptr(unsafe.Pointer(&mem[0])), 0)

	if slots[0] != 0x30 {
		t.Fatalf("slot = 0x%x, want newest batch's replacement 0x30", slots[0])
	}
}

func TestRegisterGlobalAndLocalFailFastOnStubBackend(t *testing.T) {
	savedActive, savedMode := active, backendMode
	active, backendMode = stubEngine{}, "stub"
	t.Cleanup(func() { active, backendMode = savedActive, savedMode })

	if err := RegisterGlobal([]Rebinding{{Name: "widget_open", Replacement: 0x1}}); err != ErrUnsupportedPlatform {
		t.Fatalf("RegisterGlobal on stub backend = %v, want ErrUnsupportedPlatform", err)
	}
	if err := RegisterLocal(1, 0, []Rebinding{{Name: "widget_open", Replacement: 0x1}}); err != ErrUnsupportedPlatform {
		t.Fatalf("RegisterLocal on stub backend = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestBackendReflectsActiveEngine(t *testing.T) {
	savedMode := backendMode
	backendMode = "fake-backend"
	t.Cleanup(func() { backendMode = savedMode })

	if got := Backend(); got != "fake-backend" {
		t.Fatalf("Backend() = %q, want %q", got, "fake-backend")
	}
}
