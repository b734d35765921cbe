package rebind

import (
	"log"
	"os"

	"github.com/appsworld/go-rebind/types"
)

// Environment variables controlling the engine, mirroring the teacher
// package's GO_MACHO_SWIFT_* convention: no config file or flag parser, just
// env vars read once at package init.
const (
	envTrace      = "GO_REBIND_TRACE"
	envDisableCgo = "GO_REBIND_DISABLE_CGO"
)

var tracing = os.Getenv(envTrace) != ""

func trace(format string, args ...interface{}) {
	if tracing {
		log.Printf("rebind: "+format, args...)
	}
}

// loadedImage is a (header, slide) pair as reported by the dynamic loader:
// header is the address of the image's mach_header(_64), slide is the ASLR
// offset added to every vmaddr recorded in its load commands.
type loadedImage struct {
	header uintptr
	slide  int64
}

// platformEngine is the seam between the portable registry/walker/rewriter
// logic and the handful of OS primitives the spec treats as external
// collaborators: resolving an address to a loaded image, querying and
// setting VM protection, and subscribing to the dynamic loader's
// image-added notifications. Exactly one implementation is linked in,
// selected at compile time by build tag.
type platformEngine interface {
	// resolveImage reports whether header is a real, already-loaded image
	// (the dladdr gate described in the loader integration: an add-image
	// callback can fire before the image is fully resolvable).
	resolveImage(header uintptr) bool

	// queryProtection reads the VM protection currently covering addr.
	queryProtection(addr uintptr) (types.VmProtection, error)

	// setProtection changes the VM protection of the page(s) covering
	// [addr, addr+length).
	setProtection(addr uintptr, length uintptr, prot types.VmProtection) error

	// images returns every image currently loaded into the process.
	images() []loadedImage

	// registerAddImageCallback arranges for cb to be invoked, synchronously
	// on the loader's thread, once for every image already loaded and once
	// more for every image loaded afterward. Only ever called once, for the
	// registry's first batch.
	registerAddImageCallback(cb func(header uintptr, slide int64))
}

// stubEngine is the platform engine used whenever real dyld/mach access
// isn't available: a non-darwin build, a darwin build without cgo, or an
// explicit opt-out via GO_REBIND_DISABLE_CGO. Every method is a no-op or
// returns ErrUnsupportedPlatform.
type stubEngine struct{}

func (stubEngine) resolveImage(uintptr) bool { return false }

func (stubEngine) queryProtection(uintptr) (types.VmProtection, error) {
	return 0, ErrUnsupportedPlatform
}

func (stubEngine) setProtection(uintptr, uintptr, types.VmProtection) error {
	return ErrUnsupportedPlatform
}

func (stubEngine) images() []loadedImage { return nil }

func (stubEngine) registerAddImageCallback(func(header uintptr, slide int64)) {}

var (
	active      platformEngine
	backendMode string
)

func init() {
	if os.Getenv(envDisableCgo) != "" {
		active, backendMode = stubEngine{}, "stub"
		trace("%s set, forcing stub backend", envDisableCgo)
		return
	}
	active, backendMode = newPlatformEngine()
	trace("backend selected: %s", backendMode)
}
