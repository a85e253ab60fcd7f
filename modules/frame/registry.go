package frame

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// ErrHandleInvalidated is returned when a handle was released or neutered
// before the caller got to decode it.
var ErrHandleInvalidated = errors.New("frame: handle invalidated")

// HandleID identifies a bitmap inside a Registry. Zero is never issued.
type HandleID uint64

// Registry is the host-managed decode state referenced by ExternalHandle
// frames. Producer and processing sides only exchange HandleIDs; the bitmap
// itself never crosses the message boundary.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	next    HandleID
	bitmaps map[HandleID]image.Image
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bitmaps: make(map[HandleID]image.Image)}
}

// Register stores img and returns its handle.
func (r *Registry) Register(img image.Image) HandleID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.bitmaps[r.next] = img
	return r.next
}

// Bounds returns the bitmap bounds of id.
func (r *Registry) Bounds(id HandleID) (image.Rectangle, error) {
	img, err := r.lookup(id)
	if err != nil {
		return image.Rectangle{}, err
	}
	return img.Bounds(), nil
}

// Decode draws the bitmap into dst, converting to RGBA when needed.
// The handle stays valid; the caller still owns the release.
func (r *Registry) Decode(id HandleID, dst *image.RGBA) error {
	img, err := r.lookup(id)
	if err != nil {
		return err
	}
	if img.Bounds().Size() != dst.Bounds().Size() {
		return fmt.Errorf("frame: decode size mismatch: bitmap %v, destination %v",
			img.Bounds().Size(), dst.Bounds().Size())
	}
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return nil
}

// Neuter invalidates the handle and hands its pixel storage to the caller.
//
// Bitmaps already stored as tightly packed RGBA are returned as-is (no copy);
// anything else is converted into a fresh buffer.
func (r *Registry) Neuter(id HandleID) (*image.RGBA, error) {
	r.mu.Lock()
	img, ok := r.bitmaps[id]
	delete(r.bitmaps, id)
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("handle %d: %w", id, ErrHandleInvalidated)
	}

	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*b.Dx() {
		return rgba, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// Release drops the bitmap. Releasing an unknown handle returns ErrHandleInvalidated.
func (r *Registry) Release(id HandleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bitmaps[id]; !ok {
		return fmt.Errorf("handle %d: %w", id, ErrHandleInvalidated)
	}
	delete(r.bitmaps, id)
	return nil
}

// Len returns the number of live bitmaps (leak checks in tests and stats).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bitmaps)
}

func (r *Registry) lookup(id HandleID) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.bitmaps[id]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", id, ErrHandleInvalidated)
	}
	return img, nil
}
