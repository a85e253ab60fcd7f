package streamcapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/framebench/modules/framesupplier"
)

// Open acquires dev and wraps it in the source matching cfg.Method.
// Acquisition failures are reported as ErrAcquisitionDenied.
func Open(ctx context.Context, dev Device, cfg Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Method.Validate(); err != nil {
		return nil, err
	}
	if err := dev.Open(ctx); err != nil {
		if errors.Is(err, ErrAcquisitionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAcquisitionDenied, err)
	}

	logger.Info("stream-capture: source opened",
		"method", cfg.Method,
		"discipline", cfg.Method.Discipline(),
		"resolution", cfg.Resolution,
	)

	if cfg.Method.Discipline() == PushBuffered {
		capacity := cfg.BufferCapacity
		if capacity <= 0 {
			capacity = framesupplier.DefaultCapacity
		}
		sup := framesupplier.New(
			framesupplier.WithCapacity(capacity),
			framesupplier.WithLogger(logger),
		)
		return NewPushSource(dev, sup, logger), nil
	}
	return NewPullSource(dev, cfg.Method, logger), nil
}
