package gstdevice

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

type elements struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
}

// buildPipeline assembles
//
//	<source> -> videoconvert -> videoscale -> videorate -> capsfilter(RGBA) -> appsink
func buildPipeline(cfg Config) (*elements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := newSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", uint(0))

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	caps := rgbaCaps(cfg.Width, cfg.Height, cfg.FrameRate)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", uint(1))
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, converter, scaler, videorate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gstdevice: pipeline created", "source", cfg.Source, "caps", caps)
	return &elements{pipeline: pipeline, sink: sink}, nil
}

// newSource maps "test" (or empty) to a live videotestsrc and anything else
// to a V4L2 device path.
func newSource(source string) (*gst.Element, error) {
	if source == "" || source == "test" {
		src, err := gst.NewElement("videotestsrc")
		if err != nil {
			return nil, fmt.Errorf("failed to create videotestsrc: %w", err)
		}
		src.SetProperty("is-live", true)
		return src, nil
	}
	if !strings.HasPrefix(source, "/dev/") {
		return nil, fmt.Errorf("unsupported capture source %q (want \"test\" or /dev/videoN)", source)
	}
	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", source)
	return src, nil
}

// rgbaCaps builds the final caps. Fractional rates are expressed as N/1000.
func rgbaCaps(width, height int, fps float64) string {
	num, den := int(math.Round(fps)), 1
	if math.Abs(fps-math.Round(fps)) > 1e-6 {
		num, den = int(math.Round(fps*1000)), 1000
	}
	return fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/%d", width, height, num, den)
}
