// Package streamcapture acquires frames from a camera-like Device and hands
// them to a single consumer through a Source.
//
// # Disciplines
//
// Four capture methods map onto two disciplines:
//
//   - pull-direct (video-element, grab-frame, take-photo): every Next
//     captures the device's current state. Two calls faster than the device
//     frame rate may return the same device frame; SourceStats.Duplicates
//     counts them.
//   - push-buffered (on-frame): the device notifies every new frame, the
//     notification is committed on the device goroutine and published into a
//     framesupplier with capacity 2 and drop-oldest overflow. Next never
//     returns the same device frame twice.
//
// A notification can lose the race against the device recycling its buffer.
// Such arrivals fail to Commit with ErrRecycled, are counted as discarded
// and never reach the consumer.
//
// # Quick Start
//
//	dev := streamcapture.NewSyntheticDevice(streamcapture.SyntheticConfig{
//	    Width: 1280, Height: 720, FrameRate: 30,
//	})
//	src, err := streamcapture.Open(ctx, dev, streamcapture.Config{
//	    Method:     streamcapture.MethodOnFrame,
//	    Resolution: streamcapture.Res720p,
//	}, logger)
//	if err != nil {
//	    return err // wraps ErrAcquisitionDenied
//	}
//	defer src.Close()
//
//	stats, _ := streamcapture.Warmup(ctx, src, 2*time.Second)
//	log.Printf("stable=%v fps=%.1f", stats.IsStable, stats.FPSMean)
//
//	f, err := src.Next(ctx)
//	...
//	f.Release()
//
// Real cameras live in the gstdevice subpackage, which needs the GStreamer
// runtime. Device implementations build on FrameRing and Notifier.
//
// # Ownership
//
// Every frame returned by Next belongs to the caller, who must Release or
// Transfer it exactly once. Sources release whatever they still buffer on
// Close.
package streamcapture
