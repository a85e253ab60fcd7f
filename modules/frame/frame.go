// Package frame defines the captured-image handle that flows through the
// benchmark pipeline and the ownership rules attached to it.
//
// A Frame is owned by exactly one party at a time:
//
//	device → stream-capture → framesupplier → dispatch → worker
//	                               ↓ (evicted)
//	                            Release()
//
// Ownership moves with Transfer(); the frame is consumed exactly once with
// Release(). Both operations are one-shot: a second call returns ErrReleased.
package frame

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrReleased is returned when a frame is used after Release or Transfer.
var ErrReleased = errors.New("frame: already released")

// Kind tells how the pixel data of a Frame is held.
type Kind int

const (
	// OwnedBytes frames carry a self-contained RGBA buffer in Pix.
	OwnedBytes Kind = iota
	// ExternalHandle frames reference host-managed decode state in a Registry.
	ExternalHandle
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case OwnedBytes:
		return "owned-bytes"
	case ExternalHandle:
		return "external-handle"
	default:
		return "unknown"
	}
}

const (
	stateLive int32 = iota
	stateTransferred
	stateReleased
)

// Frame is an opaque handle to one captured image.
//
// Frames must be passed by pointer; the ownership state is atomic and a copied
// Frame would fork it.
type Frame struct {
	// Seq is the capture sequence number assigned by the device.
	Seq uint64
	// Timestamp is when the device produced the frame.
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Kind selects Pix or Handle as the payload.
	Kind Kind
	// Pix holds Width*Height*4 RGBA bytes for OwnedBytes frames.
	Pix []byte
	// Handle references the bitmap for ExternalHandle frames.
	Handle HandleID
	// TraceID follows the frame through every log line.
	TraceID string

	registry *Registry
	state    atomic.Int32
}

// NewOwned wraps an RGBA buffer. The frame takes ownership of pix.
func NewOwned(seq uint64, width, height int, pix []byte) *Frame {
	return &Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Kind:      OwnedBytes,
		Pix:       pix,
		TraceID:   uuid.New().String(),
	}
}

// NewHandle wraps a bitmap previously registered in reg.
func NewHandle(reg *Registry, seq uint64, width, height int, id HandleID) *Frame {
	return &Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Kind:      ExternalHandle,
		Handle:    id,
		TraceID:   uuid.New().String(),
		registry:  reg,
	}
}

// Registry returns the host registry backing an ExternalHandle frame.
func (f *Frame) Registry() *Registry {
	return f.registry
}

// Live reports whether the frame can still be used by its holder.
func (f *Frame) Live() bool {
	return f.state.Load() == stateLive
}

// Release consumes the frame. Handle frames give their bitmap back to the host.
func (f *Frame) Release() error {
	if !f.state.CompareAndSwap(stateLive, stateReleased) {
		return ErrReleased
	}
	f.Pix = nil
	if f.Kind == ExternalHandle && f.registry != nil {
		// The handle may already be gone (neutered by a decode); that is fine here.
		_ = f.registry.Release(f.Handle)
	}
	return nil
}

// Transfer moves the payload into a new Frame and neuters f.
//
// After Transfer the sender's Pix is nil and its Handle is zero; the returned
// frame is the only usable reference.
func (f *Frame) Transfer() (*Frame, error) {
	if !f.state.CompareAndSwap(stateLive, stateTransferred) {
		return nil, ErrReleased
	}
	moved := &Frame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Kind:      f.Kind,
		Pix:       f.Pix,
		Handle:    f.Handle,
		TraceID:   f.TraceID,
		registry:  f.registry,
	}
	f.Pix = nil
	f.Handle = 0
	return moved, nil
}
