package display

import (
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// SnapshotOptions configure a Snapshot sink.
type SnapshotOptions struct {
	Dir         string
	Format      string // "png" or "jpeg"
	JPEGQuality int    // 1-100, jpeg only
	Every       int    // render one image every N iterations
	Width       int
	Height      int
	FontSize    float64
}

// Snapshot periodically renders the current background and label into an
// image file: snapshot_{iteration:06d}.{png|jpeg}.
type Snapshot struct {
	opts SnapshotOptions
	face font.Face

	mu    sync.Mutex
	n     uint64
	rgb   [3]float64
	label string

	saved  atomic.Uint64
	failed atomic.Uint64
}

// NewSnapshot creates the output directory and prepares the font face.
func NewSnapshot(opts SnapshotOptions) (*Snapshot, error) {
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Format != "png" && opts.Format != "jpeg" {
		return nil, fmt.Errorf("unsupported format: %s (must be png or jpeg)", opts.Format)
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}
	if opts.Every <= 0 {
		opts.Every = 100
	}
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 360
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 28
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &Snapshot{
		opts: opts,
		face: truetype.NewFace(f, &truetype.Options{Size: opts.FontSize}),
	}, nil
}

// SetBackground sets the fill of the next saved image.
func (s *Snapshot) SetBackground(r, g, b float64) {
	s.mu.Lock()
	s.rgb = [3]float64{r, g, b}
	s.mu.Unlock()
}

// SetLabel closes one iteration; every Nth iteration is written to disk.
// Write failures are counted, never returned to the run loop.
func (s *Snapshot) SetLabel(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = text
	s.n++
	if s.n%uint64(s.opts.Every) != 0 {
		return
	}
	if err := s.saveLocked(); err != nil {
		s.failed.Add(1)
		return
	}
	s.saved.Add(1)
}

func (s *Snapshot) render() *gg.Context {
	w, h := float64(s.opts.Width), float64(s.opts.Height)
	dc := gg.NewContext(s.opts.Width, s.opts.Height)
	r, g, b := s.rgb[0]/255, s.rgb[1]/255, s.rgb[2]/255
	dc.SetRGB(r, g, b)
	dc.Clear()

	// Dark text on light backgrounds.
	if 0.299*r+0.587*g+0.114*b > 0.5 {
		dc.SetRGB(0, 0, 0)
	} else {
		dc.SetRGB(1, 1, 1)
	}
	dc.SetFontFace(s.face)
	dc.DrawStringAnchored(s.label, w/2, h/2, 0.5, 0.5)
	return dc
}

func (s *Snapshot) saveLocked() error {
	dc := s.render()
	path := filepath.Join(s.opts.Dir, fmt.Sprintf("snapshot_%06d.%s", s.n, s.opts.Format))

	if s.opts.Format == "png" {
		if err := dc.SavePNG(path); err != nil {
			return fmt.Errorf("PNG encode failed: %w", err)
		}
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	if err := jpeg.Encode(file, dc.Image(), &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		return fmt.Errorf("JPEG encode failed: %w", err)
	}
	return nil
}

// Stats returns how many snapshots were written and how many failed.
func (s *Snapshot) Stats() (saved, failed uint64) {
	return s.saved.Load(), s.failed.Load()
}
