package runloop

import (
	"fmt"
	"strings"
)

// Policy decides what a per-iteration capture or processing error does to
// the loop.
type Policy int

const (
	// Lenient logs and counts the error, then keeps measuring.
	Lenient Policy = iota
	// Strict returns the first error.
	Strict
)

// String returns a human-readable name for the policy
func (p Policy) String() string {
	switch p {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts "lenient" (also "") and "strict".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	}
	return Lenient, fmt.Errorf("runloop: unknown policy %q (want lenient or strict)", s)
}
