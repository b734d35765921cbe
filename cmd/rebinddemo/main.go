//go:build darwin && cgo

// rebinddemo hooks libc's close(2) and reports every call made after the
// hook is installed. It's a minimal end-to-end exercise of RegisterGlobal,
// not a general-purpose rebinding tool.
package main

/*
#include <unistd.h>

extern int goCloseReplacement(int fd);

static int rebinddemoCloseTrampoline(int fd) {
	return goCloseReplacement(fd);
}

static void *rebinddemoCloseTrampolineAddr(void) {
	return (void *)rebinddemoCloseTrampoline;
}

static int rebinddemoCallOriginalClose(void *origFn, int fd) {
	int (*orig)(int) = (int (*)(int))origFn;
	return orig(fd);
}
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"

	rebind "github.com/appsworld/go-rebind"
)

var originalClose uintptr

//export goCloseReplacement
func goCloseReplacement(fd C.int) C.int {
	fmt.Fprintf(os.Stderr, "rebinddemo: intercepted close(%d)\n", int(fd))
	if originalClose == 0 {
		return -1
	}
	return C.rebinddemoCallOriginalClose(unsafe.Pointer(originalClose), fd)
}

func main() {
	fmt.Println("rebind backend:", rebind.Backend())

	err := rebind.RegisterGlobal([]rebind.Rebinding{
		{
			Name:         "close",
			Replacement:  uintptr(C.rebinddemoCloseTrampolineAddr()),
			OriginalSlot: &originalClose,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rebinddemo: register failed:", err)
		os.Exit(1)
	}

	f, err := os.CreateTemp("", "rebinddemo")
	if err != nil {
		fmt.Fprintln(os.Stderr, "rebinddemo: tempfile:", err)
		os.Exit(1)
	}
	name := f.Name()
	defer os.Remove(name)

	fmt.Println("closing", name)
	f.Close()
}
