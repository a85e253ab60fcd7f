package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/e7canasta/framebench/internal/config"
	"github.com/e7canasta/framebench/modules/dispatch"
	"github.com/e7canasta/framebench/modules/dispatch/wire"
	"github.com/e7canasta/framebench/modules/display"
	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/metrics"
	"github.com/e7canasta/framebench/modules/runloop"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
	"github.com/e7canasta/framebench/modules/worker"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		method, encoding, policy, device string
		snapshotDir, textfile            string
		maxIterations                    uint64
		reuse, neuter, handles, quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark loop until interrupted",
		Example: "  framebench run\n" +
			"  framebench run --method grab-frame --encoding handle --reuse-buffer\n" +
			"  framebench run --device gstreamer --encoding noop --max-iterations 500",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			f := cmd.Flags()
			if f.Changed("method") {
				cfg.Capture.Method = method
			}
			if f.Changed("device") {
				cfg.Capture.Device = device
			}
			if f.Changed("handles") {
				cfg.Capture.Handles = handles
			}
			if f.Changed("encoding") {
				cfg.Processing.Encoding = encoding
			}
			if f.Changed("reuse-buffer") {
				cfg.Processing.ReuseBuffer = reuse
			}
			if f.Changed("neuter") {
				cfg.Processing.Neuter = neuter
			}
			if f.Changed("policy") {
				cfg.Run.Policy = policy
			}
			if f.Changed("max-iterations") {
				cfg.Run.MaxIterations = maxIterations
			}
			if f.Changed("snapshot-dir") {
				cfg.Display.SnapshotDir = snapshotDir
			}
			if f.Changed("textfile") {
				cfg.Metrics.Textfile = textfile
			}
			if quiet {
				cfg.Display.Terminal = false
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printBanner(cfg)
			err := runBench(ctx, cfg, c.logger)
			if errors.Is(err, context.Canceled) {
				c.logger.Info("Benchmark stopped gracefully")
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&method, "method", "", "Capture method: video-element|grab-frame|take-photo|on-frame")
	f.StringVar(&device, "device", "", "Capture device: synthetic|gstreamer")
	f.BoolVar(&handles, "handles", false, "Emit external-handle frames from the device")
	f.StringVar(&encoding, "encoding", "", "Processing encoding: raw|handle|noop")
	f.BoolVar(&reuse, "reuse-buffer", false, "Reuse the processing-side decode buffer")
	f.BoolVar(&neuter, "neuter", false, "Neuter the handle on decode (bitmap method only)")
	f.StringVar(&policy, "policy", "", "Error policy: lenient|strict")
	f.Uint64Var(&maxIterations, "max-iterations", 0, "Stop after N iterations (0 = unlimited)")
	f.StringVar(&snapshotDir, "snapshot-dir", "", "Write periodic result snapshots to this directory")
	f.StringVar(&textfile, "textfile", "", "Write Prometheus metrics to this textfile on every stats report")
	f.BoolVar(&quiet, "quiet", false, "Disable the terminal status line")
	return cmd
}

// pipeline is everything runBench assembles, so it can be torn down in
// reverse order.
type pipeline struct {
	registry *frame.Registry
	source   streamcapture.Source
	worker   *worker.Worker
	disp     *dispatch.Dispatcher
	done     <-chan error
	cancel   context.CancelFunc

	terminal *display.Terminal
	snapshot *display.Snapshot
	exporter *metrics.Exporter
	session  *runloop.Session

	// last is written by the loop goroutine and read by the stats reporter.
	last atomic.Pointer[metrics.Snapshot]
}

func runBench(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.close(logger)

	if cfg.Run.WarmupS > 0 {
		logger.Info("Warming up source", "duration_s", cfg.Run.WarmupS)
		ws, err := streamcapture.Warmup(ctx, p.source, time.Duration(cfg.Run.WarmupS)*time.Second)
		if err != nil {
			return fmt.Errorf("warmup failed: %w", err)
		}
		printWarmup(ws, cfg.Capture.FrameRate)
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	reporter := newStatsReporter(cfg, p, logger)
	go reporter.run(statsCtx, time.Duration(cfg.Run.StatsIntervalS)*time.Second)

	err = p.session.Run(ctx)

	stopStats()
	if p.terminal != nil {
		p.terminal.Halt()
	}
	reporter.printFinal()
	if cfg.Metrics.Textfile != "" {
		if werr := p.exporter.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			logger.Error("Failed to write metrics textfile", "error", werr)
		}
	}
	return err
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{registry: frame.NewRegistry()}

	src, err := openSource(ctx, cfg, p.registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	p.source = src

	workerCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.worker = worker.New(p.registry, logger)
	conn, done := dispatch.StartWorker(workerCtx, p.worker)
	p.done = done

	enc, _ := dispatch.ParseEncoding(cfg.Processing.Encoding)
	p.disp = dispatch.New(conn, p.registry, dispatch.Options{
		Encoding:    enc,
		Method:      wire.Method(cfg.Processing.Method),
		ReuseBuffer: cfg.Processing.ReuseBuffer,
		Neuter:      cfg.Processing.Neuter,
		Logger:      logger,
	})

	agg, err := metrics.NewAggregator(
		time.Duration(cfg.Metrics.WindowMS)*time.Millisecond,
		cfg.Metrics.LatencySamples,
	)
	if err != nil {
		p.close(logger)
		return nil, err
	}

	sinks := display.Multi{display.NewLog(logger, cfg.Display.LogEvery)}
	if cfg.Display.Terminal {
		p.terminal = display.NewTerminal(display.TerminalOptions{})
		sinks = append(sinks, p.terminal)
	}
	if cfg.Display.SnapshotDir != "" {
		p.snapshot, err = display.NewSnapshot(display.SnapshotOptions{
			Dir:    cfg.Display.SnapshotDir,
			Format: cfg.Display.SnapshotFormat,
			Every:  cfg.Display.SnapshotEvery,
		})
		if err != nil {
			p.close(logger)
			return nil, fmt.Errorf("failed to create snapshot sink: %w", err)
		}
		sinks = append(sinks, p.snapshot)
	}

	// The exporter reads the session's counters on every gather.
	p.exporter, err = metrics.NewExporter(prometheus.NewRegistry(), prometheus.Labels{
		"method":   cfg.Capture.Method,
		"encoding": cfg.Processing.Encoding,
	}, func() metrics.Counters {
		if p.session == nil {
			return metrics.Counters{}
		}
		return p.session.Stats()
	})
	if err != nil {
		p.close(logger)
		return nil, err
	}

	policy, _ := runloop.ParsePolicy(cfg.Run.Policy)
	p.session, err = runloop.NewSession(src, p.disp, agg, sinks,
		runloop.WithPolicy(policy),
		runloop.WithExporter(p.exporter),
		runloop.WithLogger(logger),
		runloop.WithMaxIterations(cfg.Run.MaxIterations),
		runloop.WithObserver(func(s metrics.Snapshot, _ dispatch.Result) { p.last.Store(&s) }),
	)
	if err != nil {
		p.close(logger)
		return nil, err
	}
	return p, nil
}

func (p *pipeline) close(logger *slog.Logger) {
	if p.disp != nil {
		p.disp.Close()
	}
	if p.cancel != nil {
		p.cancel()
		if err := <-p.done; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Processing context failed", "error", err)
		}
	}
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			logger.Error("Failed to close source", "error", err)
		}
	}
	if n := p.registry.Len(); n > 0 {
		logger.Debug("Registry still holds bitmaps at shutdown", "count", n)
	}
}

func printBanner(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        framebench - capture → processing benchmark           ║")
	fmt.Printf("║                    Version %-30s ║\n", version)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Device:          %s (%s)\n", cfg.Capture.Device, cfg.Capture.Source)
	fmt.Printf("  Capture Method:  %s (%s)\n", cfg.Capture.Method,
		streamcapture.Method(cfg.Capture.Method).Discipline())
	fmt.Printf("  Resolution:      %s @ %.2f fps\n", cfg.Capture.Resolution, cfg.Capture.FrameRate)
	fmt.Printf("  Encoding:        %s", cfg.Processing.Encoding)
	if cfg.Processing.Encoding == string(dispatch.EncodingHandle) {
		fmt.Printf(" (method=%s reuse=%v neuter=%v)", cfg.Processing.Method,
			cfg.Processing.ReuseBuffer, cfg.Processing.Neuter)
	}
	fmt.Println()
	fmt.Printf("  Buffer Capacity: %d\n", cfg.Buffer.Capacity)
	fmt.Printf("  Metrics:         %dms window, %d latency samples\n",
		cfg.Metrics.WindowMS, cfg.Metrics.LatencySamples)
	fmt.Printf("  Error Policy:    %s\n", cfg.Run.Policy)
	fmt.Println()
	fmt.Println("Pipeline:")
	fmt.Println("  stream-capture → dispatch → worker → metrics → display")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
