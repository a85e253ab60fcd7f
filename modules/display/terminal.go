package display

import (
	"bytes"
	"image/color"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// TerminalOptions configure a Terminal sink.
type TerminalOptions struct {
	W          io.Writer        // default colorable stdout
	Palette    *ansi256.Palette // default ansi256.Default
	Swatch     int              // blocks in the colour swatch, default 8
	MaxRefresh int              // redraws per second, default 10
}

// Terminal draws a colour swatch followed by the label on a single,
// continuously rewritten console line.
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	palette  ansi256.Palette
	swatch   int
	interval time.Duration
	now      func() time.Time

	bg      color.NRGBA
	label   string
	last    time.Time
	lastLen int
	buf     bytes.Buffer
}

// NewTerminal returns a terminal sink.
func NewTerminal(opts TerminalOptions) *Terminal {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	if opts.Swatch <= 0 {
		opts.Swatch = 8
	}
	if opts.MaxRefresh <= 0 {
		opts.MaxRefresh = 10
	}
	return &Terminal{
		w:        w,
		palette:  *p,
		swatch:   opts.Swatch,
		interval: time.Second / time.Duration(opts.MaxRefresh),
		now:      time.Now,
		bg:       color.NRGBA{A: 255},
	}
}

// SetBackground sets the swatch colour drawn on the next redraw. Channels
// are 0..255 and rounded.
func (t *Terminal) SetBackground(r, g, b float64) {
	t.mu.Lock()
	t.bg = color.NRGBA{clamp(r), clamp(g), clamp(b), 255}
	t.mu.Unlock()
}

// SetLabel stores the label and redraws unless the last redraw was less
// than 1/MaxRefresh ago.
func (t *Terminal) SetLabel(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.label = text
	if now := t.now(); now.Sub(t.last) >= t.interval {
		t.last = now
		t.refreshLocked()
	}
}

func (t *Terminal) refreshLocked() {
	t.buf.Reset()
	t.buf.WriteString("\r\033[0m")
	block := t.palette.Block(t.bg)
	for i := 0; i < t.swatch; i++ {
		t.buf.WriteString(block)
	}
	t.buf.WriteString("\033[0m ")
	t.buf.WriteString(t.label)
	if pad := t.lastLen - len(t.label); pad > 0 {
		t.buf.WriteString(strings.Repeat(" ", pad))
	}
	t.lastLen = len(t.label)
	_, _ = t.buf.WriteTo(t.w)
}

// Halt ends the status line and resets attributes.
func (t *Terminal) Halt() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.w.Write([]byte("\n\033[0m"))
	return err
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
