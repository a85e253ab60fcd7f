package dispatch

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/e7canasta/framebench/modules/dispatch/wire"
	"github.com/e7canasta/framebench/modules/frame"
)

// Encoding selects how a frame crosses to the processing context.
type Encoding string

const (
	// EncodingRaw decodes on the producer side and transfers the pixel buffer.
	EncodingRaw Encoding = "raw"
	// EncodingHandle transfers an undecoded handle; the processing context
	// decodes it. Options.ReuseBuffer and Options.Neuter apply here.
	EncodingHandle Encoding = "handle"
	// EncodingNoOp transfers the frame and gets a zero result back.
	EncodingNoOp Encoding = "noop"
)

// ParseEncoding accepts raw, handle or noop.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case EncodingRaw, EncodingHandle, EncodingNoOp:
		return e, nil
	}
	return "", fmt.Errorf("dispatch: unknown encoding %q (want raw, handle or noop)", s)
}

// encode moves f into a request. f is neutered on success and on any
// failure after the transfer; the caller must not touch it again.
func encode(id uint64, f *frame.Frame, reg *frame.Registry, enc Encoding, opts wire.Options) (wire.Request, error) {
	moved, err := f.Transfer()
	if err != nil {
		return wire.Request{}, fmt.Errorf("%w: seq %d: %v", ErrTransferInvalidated, f.Seq, err)
	}

	req := wire.Request{
		ID:      id,
		Width:   uint32(moved.Width),
		Height:  uint32(moved.Height),
		Seq:     moved.Seq,
		TraceID: moved.TraceID,
	}

	switch enc {
	case EncodingNoOp:
		req.Kind = wire.KindNoOp
		if moved.Kind == frame.ExternalHandle {
			req.Handle = uint64(moved.Handle)
		} else {
			req.Pixels = moved.Pix
		}

	case EncodingRaw:
		req.Kind = wire.KindRawPixels
		pix, err := rawPixels(moved)
		if err != nil {
			return wire.Request{}, err
		}
		req.Pixels = pix

	case EncodingHandle:
		req.Kind = wire.KindOpaqueHandle
		req.Options = opts
		if req.Options.Method == "" {
			req.Options.Method = wire.MethodBitmap
		}
		h, err := handleOf(moved, reg)
		if err != nil {
			return wire.Request{}, err
		}
		req.Handle = uint64(h)

	default:
		_ = moved.Release()
		return wire.Request{}, fmt.Errorf("dispatch: unknown encoding %q", enc)
	}
	return req, nil
}

// rawPixels returns the frame's RGBA bytes, decoding handle frames on the
// producer side and releasing the handle afterwards.
func rawPixels(f *frame.Frame) ([]byte, error) {
	if f.Kind == frame.OwnedBytes {
		return f.Pix, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	err := f.Registry().Decode(f.Handle, img)
	_ = f.Release() // a failed decode below already reports the invalidation
	if err != nil {
		if errors.Is(err, frame.ErrHandleInvalidated) {
			return nil, fmt.Errorf("%w: %v", ErrTransferInvalidated, err)
		}
		return nil, fmt.Errorf("dispatch: producer-side decode: %w", err)
	}
	return img.Pix, nil
}

// handleOf returns a handle for f, wrapping owned pixels into a new bitmap
// when needed.
func handleOf(f *frame.Frame, reg *frame.Registry) (frame.HandleID, error) {
	if f.Kind == frame.ExternalHandle {
		return f.Handle, nil
	}
	if reg == nil {
		return 0, errors.New("dispatch: handle encoding of owned frames needs a registry")
	}
	img := &image.RGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: image.Rect(0, 0, f.Width, f.Height)}
	return reg.Register(img), nil
}
