//go:build darwin && cgo

package rebind

/*
#include <dlfcn.h>
#include <mach-o/dyld.h>
#include <mach-o/loader.h>
#include <mach/mach.h>
#include <mach/mach_vm.h>
#include <stdint.h>

// goAddImageCallback is implemented in Go (see the //export comment below)
// and is the only function dyld ever calls back into from this file.
extern void goAddImageCallback(const struct mach_header *mh, intptr_t slide);

static void rebindAddImageTrampoline(const struct mach_header *mh, intptr_t slide) {
	goAddImageCallback(mh, slide);
}

static void rebindRegisterAddImageHook(void) {
	_dyld_register_func_for_add_image(rebindAddImageTrampoline);
}

// rebindResolveImage mirrors the dladdr gate the loader integration
// describes: an add-image callback can fire for a header dyld has not
// finished wiring up, and dladdr is the cheapest way to ask "is this a real,
// resolvable image yet".
static int rebindResolveImage(void *addr) {
	Dl_info info;
	return dladdr(addr, &info) != 0;
}

static int rebindQueryProtection(mach_vm_address_t addr, vm_prot_t *prot) {
	mach_vm_address_t region_addr = addr;
	mach_vm_size_t region_size = 0;
	vm_region_basic_info_data_64_t info;
	mach_msg_type_number_t info_count = VM_REGION_BASIC_INFO_COUNT_64;
	mach_port_t object_name;

	kern_return_t kr = mach_vm_region(mach_task_self(), &region_addr, &region_size,
		VM_REGION_BASIC_INFO_64, (vm_region_info_t)&info, &info_count, &object_name);
	if (kr != KERN_SUCCESS) {
		return -1;
	}
	*prot = info.protection;
	return 0;
}

static int rebindSetProtection(mach_vm_address_t addr, mach_vm_size_t size, vm_prot_t prot) {
	kern_return_t kr = mach_vm_protect(mach_task_self(), addr, size, 0, prot);
	return kr == KERN_SUCCESS ? 0 : -1;
}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/appsworld/go-rebind/types"
)

// dyldEngine is the real platformEngine: every method is a thin wrapper
// around a C helper above. There is exactly one instance, since dyld only
// ever supports one registered add-image callback per process and this
// package installs it once, from RegisterGlobal's first call.
type dyldEngine struct {
	mu       sync.Mutex
	callback func(header uintptr, slide int64)
}

var globalDyldEngine = &dyldEngine{}

func newPlatformEngine() (platformEngine, string) {
	return globalDyldEngine, "dyld-cgo"
}

func (e *dyldEngine) resolveImage(header uintptr) bool {
	return C.rebindResolveImage(unsafe.Pointer(header)) != 0
}

func (e *dyldEngine) queryProtection(addr uintptr) (types.VmProtection, error) {
	var prot C.vm_prot_t
	if C.rebindQueryProtection(C.mach_vm_address_t(addr), &prot) != 0 {
		return 0, errProtectionQueryFailed
	}
	return types.VmProtection(prot), nil
}

func (e *dyldEngine) setProtection(addr uintptr, length uintptr, prot types.VmProtection) error {
	if C.rebindSetProtection(C.mach_vm_address_t(addr), C.mach_vm_size_t(length), C.vm_prot_t(prot)) != 0 {
		return errProtectionSetFailed
	}
	return nil
}

func (e *dyldEngine) images() []loadedImage {
	n := int(C._dyld_image_count())
	out := make([]loadedImage, 0, n)
	for i := 0; i < n; i++ {
		hdr := C._dyld_get_image_header(C.uint32_t(i))
		if hdr == nil {
			continue
		}
		slide := C._dyld_get_image_vmaddr_slide(C.uint32_t(i))
		out = append(out, loadedImage{
			header: uintptr(unsafe.Pointer(hdr)),
			slide:  int64(slide),
		})
	}
	return out
}

func (e *dyldEngine) registerAddImageCallback(cb func(header uintptr, slide int64)) {
	e.mu.Lock()
	e.callback = cb
	e.mu.Unlock()
	C.rebindRegisterAddImageHook()
}

//export goAddImageCallback
func goAddImageCallback(mh *C.struct_mach_header, slide C.intptr_t) {
	globalDyldEngine.mu.Lock()
	cb := globalDyldEngine.callback
	globalDyldEngine.mu.Unlock()
	if cb != nil {
		cb(uintptr(unsafe.Pointer(mh)), int64(slide))
	}
}
