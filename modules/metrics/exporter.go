package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters are the cumulative event counts of a run, one per error kind
// plus completed iterations.
type Counters struct {
	Iterations       uint64
	Dropped          uint64 // buffer overflow evictions
	Discarded        uint64 // notifications lost before commit
	CaptureErrors    uint64
	ProcessingErrors uint64
	Invalidated      uint64 // transfers whose handle was gone before decode
}

// Exporter publishes a run's metrics to a Prometheus registry. Counters
// are read on scrape from the supplied function; gauges follow the latest
// snapshot.
type Exporter struct {
	registry *prometheus.Registry

	fps           prometheus.Gauge
	processingFPS prometheus.Gauge
	roundTrip     prometheus.Histogram
}

// NewExporter registers the framebench collectors on reg. counters is
// called on every gather.
func NewExporter(reg *prometheus.Registry, labels prometheus.Labels, counters func() Counters) (*Exporter, error) {
	e := &Exporter{
		registry: reg,
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "framebench",
			Name:        "throughput_fps",
			Help:        "Completed iterations per second over the rolling window",
			ConstLabels: labels,
		}),
		processingFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "framebench",
			Name:        "processing_fps",
			Help:        "Processing-stage frames per second (1000 / mean round trip ms)",
			ConstLabels: labels,
		}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "framebench",
			Name:        "round_trip_seconds",
			Help:        "Dispatch to response latency",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 14),
			ConstLabels: labels,
		}),
	}

	counter := func(name, help string, pick func(Counters) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "framebench",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(pick(counters())) })
	}

	collectors := []prometheus.Collector{
		e.fps,
		e.processingFPS,
		e.roundTrip,
		counter("iterations_total", "Completed pipeline iterations",
			func(c Counters) uint64 { return c.Iterations }),
		counter("frames_dropped_total", "Frames evicted by buffer overflow",
			func(c Counters) uint64 { return c.Dropped }),
		counter("frames_discarded_total", "Device notifications lost before commit",
			func(c Counters) uint64 { return c.Discarded }),
		counter("capture_errors_total", "Failed capture requests",
			func(c Counters) uint64 { return c.CaptureErrors }),
		counter("processing_errors_total", "Failed processing requests",
			func(c Counters) uint64 { return c.ProcessingErrors }),
		counter("transfers_invalidated_total", "Transfers whose handle was invalidated before decode",
			func(c Counters) uint64 { return c.Invalidated }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register collector: %w", err)
		}
	}
	return e, nil
}

// Observe updates the gauges from a snapshot and records one round trip.
func (e *Exporter) Observe(s Snapshot, roundTrip time.Duration) {
	e.fps.Set(s.FPS)
	e.processingFPS.Set(s.ProcessingFPS)
	e.roundTrip.Observe(roundTrip.Seconds())
}

// WriteTextfile writes the registry in text exposition format, suitable
// for the node_exporter textfile collector.
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("metrics: write textfile %s: %w", path, err)
	}
	return nil
}
