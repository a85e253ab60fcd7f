package streamcapture

import (
	"fmt"
	"strings"
	"time"

	"github.com/e7canasta/framebench/modules/framesupplier"
)

// Resolution is a requested capture size.
type Resolution int

const (
	Res480p  Resolution = iota // 640x480
	Res720p                    // 1280x720
	Res1080p                   // 1920x1080
)

// Dimensions returns width and height in pixels.
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Res480p:
		return 640, 480
	case Res1080p:
		return 1920, 1080
	default:
		return 1280, 720
	}
}

func (r Resolution) String() string {
	switch r {
	case Res480p:
		return "480p"
	case Res720p:
		return "720p"
	case Res1080p:
		return "1080p"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// ParseResolution accepts "480p", "720p" or "1080p".
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "480p":
		return Res480p, nil
	case "720p", "":
		return Res720p, nil
	case "1080p":
		return Res1080p, nil
	}
	return 0, fmt.Errorf("streamcapture: unknown resolution %q (want 480p, 720p or 1080p)", s)
}

// Discipline is how frames flow from the device to the consumer.
type Discipline int

const (
	// PullDirect captures the device's current state synchronously on every
	// Next. Consecutive calls may return the same device frame.
	PullDirect Discipline = iota

	// PushBuffered receives device notifications and routes them through a
	// bounded framesupplier. Never returns the same device frame twice.
	PushBuffered
)

func (d Discipline) String() string {
	if d == PushBuffered {
		return "push-buffered"
	}
	return "pull-direct"
}

// Method selects a capture strategy.
type Method string

const (
	MethodVideoElement Method = "video-element" // draw the live element on demand
	MethodGrabFrame    Method = "grab-frame"    // grab the current track frame
	MethodTakePhoto    Method = "take-photo"    // one-shot still per call
	MethodOnFrame      Method = "on-frame"      // per-frame device notifications
)

// Methods lists every supported capture method.
func Methods() []Method {
	return []Method{MethodVideoElement, MethodGrabFrame, MethodTakePhoto, MethodOnFrame}
}

// Discipline reports how the method moves frames.
func (m Method) Discipline() Discipline {
	if m == MethodOnFrame {
		return PushBuffered
	}
	return PullDirect
}

// Validate rejects unknown methods.
func (m Method) Validate() error {
	for _, known := range Methods() {
		if m == known {
			return nil
		}
	}
	return fmt.Errorf("streamcapture: unknown capture method %q", string(m))
}

// Config describes how a source is opened over a device.
type Config struct {
	Method     Method
	Resolution Resolution
	FrameRate  float64 // device frame rate in Hz

	// BufferCapacity applies to push-buffered methods. Zero uses
	// framesupplier.DefaultCapacity.
	BufferCapacity int
}

// SourceStats is a point-in-time view of a source's counters.
type SourceStats struct {
	Method     Method
	Discipline Discipline

	Delivered  uint64 // frames returned by Next
	Discarded  uint64 // arrivals whose commit failed
	Duplicates uint64 // pull-direct frames repeating the previous device sequence

	// Buffer is populated for push-buffered sources only.
	Buffer framesupplier.SupplierStats
}

// WarmupStats contains statistics collected during a warm-up phase.
type WarmupStats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	IsStable       bool    // stddev < 15% of mean and jitter < 20% of the expected interval
	JitterMean     float64 // seconds
	JitterStdDev   float64 // seconds
	JitterMax      float64 // seconds
}
