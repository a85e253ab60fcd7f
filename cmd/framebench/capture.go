package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/framebench/modules/frame"
)

func newCaptureCmd(c *cli) *cobra.Command {
	var (
		outputDir, format string
		jpegQuality       int
		maxFrames         int
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Pull frames from the configured source and optionally save them",
		Example: "  framebench capture --max-frames 20\n" +
			"  framebench capture --output ./frames --format jpeg",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "png" && format != "jpeg" {
				return fmt.Errorf("invalid output format: %s (must be png or jpeg)", format)
			}
			if jpegQuality < 1 || jpegQuality > 100 {
				return fmt.Errorf("invalid JPEG quality %d (must be 1-100)", jpegQuality)
			}
			if outputDir != "" {
				if err := os.MkdirAll(outputDir, 0755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return captureFrames(ctx, c, outputDir, format, jpegQuality, maxFrames)
		},
	}
	f := cmd.Flags()
	f.StringVar(&outputDir, "output", "", "Directory to save captured frames (optional)")
	f.StringVar(&format, "format", "png", "Output format: png, jpeg")
	f.IntVar(&jpegQuality, "jpeg-quality", 90, "JPEG quality (1-100, only for jpeg format)")
	f.IntVar(&maxFrames, "max-frames", 10, "Maximum frames to capture (0 = until interrupted)")
	return cmd
}

func captureFrames(ctx context.Context, c *cli, outputDir, format string, quality, maxFrames int) error {
	reg := frame.NewRegistry()
	src, err := openSource(ctx, c.cfg, reg, c.logger)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	start := time.Now()
	saved, failed := 0, 0
	for n := 1; maxFrames == 0 || n <= maxFrames; n++ {
		f, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return err
		}

		fmt.Printf("[%s] Frame #%-6d | Seq: %-8d | %s %dx%d | Timestamp: %s\n",
			time.Now().Format("15:04:05"),
			n, f.Seq, f.Kind, f.Width, f.Height,
			f.Timestamp.Format("15:04:05.000"),
		)

		if outputDir != "" {
			if err := saveFrame(outputDir, f, format, quality); err != nil {
				slog.Error("Failed to save frame", "error", err, "seq", f.Seq)
				failed++
			} else {
				saved++
			}
		}
		_ = f.Release()
	}

	st := src.Stats()
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Frames Delivered:   %d frames\n", st.Delivered)
	fmt.Printf("  Duplicates:         %d frames\n", st.Duplicates)
	fmt.Printf("  Discarded:          %d frames\n", st.Discarded)
	if outputDir != "" {
		fmt.Printf("  Frames Saved:       %d frames\n", saved)
		fmt.Printf("  Save Failures:      %d frames\n", failed)
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
	return nil
}

// frameImage returns f's pixels as an RGBA image, decoding handle frames
// from their registry. The frame stays owned by the caller.
func frameImage(f *frame.Frame) (*image.RGBA, error) {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Kind == frame.OwnedBytes {
		if len(f.Pix) != f.Width*f.Height*4 {
			return nil, fmt.Errorf("invalid RGBA data size: got %d, expected %d", len(f.Pix), f.Width*f.Height*4)
		}
		return &image.RGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: rect}, nil
	}
	img := image.NewRGBA(rect)
	if err := f.Registry().Decode(f.Handle, img); err != nil {
		return nil, err
	}
	return img, nil
}

// saveFrame saves a frame to disk as PNG or JPEG
func saveFrame(outputDir string, f *frame.Frame, format string, jpegQuality int) error {
	img, err := frameImage(f)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("frame_%06d_%s.%s", f.Seq, f.Timestamp.Format("20060102_150405.000"), format)
	file, err := os.Create(filepath.Join(outputDir, name))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch format {
	case "png":
		if err := png.Encode(file, img); err != nil {
			return fmt.Errorf("failed to encode PNG: %w", err)
		}
	case "jpeg":
		if err := jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return fmt.Errorf("failed to encode JPEG: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	return nil
}
