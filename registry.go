package rebind

import "sync/atomic"

// rebindingBatch is one call to RegisterGlobal's worth of Rebindings,
// prepended to a singly-linked, append-only list. The registry is never
// mutated in place: a new registration is a new node pointing at the old
// head, so any walk already in flight against the previous head sees a
// consistent, unchanged list.
type rebindingBatch struct {
	entries []Rebinding
	next    *rebindingBatch
}

var registryHead atomic.Pointer[rebindingBatch]

// RegisterGlobal copies rebindings into a new batch and links it at the
// head of the process-wide registry. On the very first call, it installs
// the loader's add-image callback, which dyld immediately invokes once for
// every image already loaded — so the first registration alone is enough to
// patch everything currently mapped. Every later call instead walks the
// loader's current image list directly, since the add-image callback only
// ever fires for images loaded from this point on.
func RegisterGlobal(rebindings []Rebinding) error {
	if backendMode == "stub" {
		return ErrUnsupportedPlatform
	}

	batch, err := newBatch(rebindings)
	if err != nil {
		return err
	}

	first := registryHead.Load() == nil
	batch.next = registryHead.Load()
	registryHead.Store(batch)

	if first {
		trace("installing add-image callback for first registry batch (%d rebindings)", len(batch.entries))
		active.registerAddImageCallback(onImageAdded)
		return nil
	}

	images := active.images()
	trace("re-walking %d loaded images for new batch (%d rebindings)", len(images), len(batch.entries))
	head := registryHead.Load()
	for _, img := range images {
		walkImage(head, img.header, img.slide)
	}
	return nil
}

// RegisterLocal runs the walker and rewriter against exactly one image,
// using a registry built only from rebindings. The batch is never linked
// into the global registry and is never seen by the add-image callback:
// this is a one-shot patch of a single, already-known image.
func RegisterLocal(header uintptr, slide int64, rebindings []Rebinding) error {
	if backendMode == "stub" {
		return ErrUnsupportedPlatform
	}

	batch, err := newBatch(rebindings)
	if err != nil {
		return err
	}
	walkImage(batch, header, slide)
	return nil
}

func onImageAdded(header uintptr, slide int64) {
	walkImage(registryHead.Load(), header, slide)
}

func newBatch(rebindings []Rebinding) (*rebindingBatch, error) {
	if len(rebindings) == 0 {
		return &rebindingBatch{}, nil
	}
	entries := make([]Rebinding, len(rebindings))
	copy(entries, rebindings)
	return &rebindingBatch{entries: entries}, nil
}
