// Package wire defines the request/response envelopes exchanged between a
// producer and a processing context, and the length-prefixed msgpack
// framing that carries them.
package wire

import "fmt"

// Kind is the request encoding.
type Kind uint8

const (
	// KindRawPixels carries a flat RGBA buffer in Pixels.
	KindRawPixels Kind = iota + 1
	// KindOpaqueHandle carries an undecoded host handle; the processing
	// side decodes it.
	KindOpaqueHandle
	// KindNoOp is answered immediately with a zero colour.
	KindNoOp
)

func (k Kind) String() string {
	switch k {
	case KindRawPixels:
		return "raw"
	case KindOpaqueHandle:
		return "handle"
	case KindNoOp:
		return "noop"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Method selects how an opaque handle is decoded on the processing side.
type Method string

const (
	// MethodOffscreen draws into a persistent canvas allocated once and
	// releases the handle after the draw.
	MethodOffscreen Method = "offscreen"
	// MethodBitmap decodes into a fresh or reused buffer, optionally
	// neutering the handle instead of copying.
	MethodBitmap Method = "bitmap"
)

// Options tune processing-side decoding.
type Options struct {
	Method      Method `msgpack:"method,omitempty"`
	ReuseBuffer bool   `msgpack:"reuse_buffer"`
	Neuter      bool   `msgpack:"neuter"`
}

// Request is one unit of work for the processing context.
type Request struct {
	ID      uint64  `msgpack:"id"`
	Kind    Kind    `msgpack:"kind"`
	Width   uint32  `msgpack:"width"`
	Height  uint32  `msgpack:"height"`
	Pixels  []byte  `msgpack:"pixels,omitempty"`
	Handle  uint64  `msgpack:"handle,omitempty"`
	Options Options `msgpack:"options"`
	Seq     uint64  `msgpack:"seq"`
	TraceID string  `msgpack:"trace_id,omitempty"`
}

// Code classifies a processing failure.
type Code uint8

const (
	CodeOK Code = iota
	// CodeInvalidated means the transferred handle no longer existed.
	CodeInvalidated
	// CodeBadRequest means the envelope was malformed.
	CodeBadRequest
)

// Response answers exactly one Request.
type Response struct {
	ID    uint64  `msgpack:"id"`
	R     float64 `msgpack:"r"`
	G     float64 `msgpack:"g"`
	B     float64 `msgpack:"b"`
	Code  Code    `msgpack:"code,omitempty"`
	Error string  `msgpack:"error,omitempty"`
}
