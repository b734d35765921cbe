//go:build !(darwin && cgo)

package rebind

// newPlatformEngine is the non-darwin/non-cgo selector: there is no dyld or
// mach API to bind to, so the stub engine is selected and RegisterGlobal and
// RegisterLocal report ErrUnsupportedPlatform.
func newPlatformEngine() (platformEngine, string) {
	return stubEngine{}, "stub"
}
