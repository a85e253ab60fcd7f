package gstdevice

import "strings"

// ErrorCategory classifies GStreamer bus errors for telemetry and for
// deciding whether an open failure means access was denied.
type ErrorCategory int

const (
	ErrCategoryDevice ErrorCategory = iota // missing or busy capture device
	ErrCategoryFormat                      // caps negotiation, unsupported format
	ErrCategoryAuth                        // permission denied
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Denied reports whether the category means the device cannot be acquired.
func (e ErrorCategory) Denied() bool {
	return e == ErrCategoryAuth || e == ErrCategoryDevice
}

// Classify maps an error message and its debug string to a category.
// go-gst does not expose the GError domain, so this is keyword based.
func Classify(msg, debug string) ErrorCategory {
	text := strings.ToLower(msg + " " + debug)
	switch {
	case containsAny(text, "permission denied", "not authorized", "eacces", "access denied"):
		return ErrCategoryAuth
	case containsAny(text, "not-negotiated", "not negotiated", "caps", "format", "unsupported"):
		return ErrCategoryFormat
	case containsAny(text, "no such file", "cannot identify device", "device busy", "resource busy", "could not open", "not found"):
		return ErrCategoryDevice
	}
	return ErrCategoryUnknown
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
