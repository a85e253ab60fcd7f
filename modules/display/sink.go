// Package display renders per-iteration results: a background colour (the
// average colour of the last frame) and a text label with the current
// frame rates.
package display

import (
	"context"
	"fmt"
	"log/slog"
)

// Sink receives one SetBackground and one SetLabel per completed iteration,
// in that order. Implementations are called from the run loop goroutine.
type Sink interface {
	SetBackground(r, g, b float64)
	SetLabel(text string)
}

// Multi fans out to every sink in order.
type Multi []Sink

// SetBackground forwards to every sink.
func (m Multi) SetBackground(r, g, b float64) {
	for _, s := range m {
		s.SetBackground(r, g, b)
	}
}

// SetLabel forwards to every sink.
func (m Multi) SetLabel(text string) {
	for _, s := range m {
		s.SetLabel(text)
	}
}

// Discard ignores everything.
type Discard struct{}

func (Discard) SetBackground(r, g, b float64) {}
func (Discard) SetLabel(string)               {}

// Log writes the label and colour through slog. Every Nth label is logged
// at info, the rest at debug.
type Log struct {
	logger *slog.Logger
	every  uint64
	n      uint64
	bg     [3]float64
}

// NewLog returns a sink logging at info every n iterations (n <= 0 means
// every iteration).
func NewLog(logger *slog.Logger, n int) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	if n <= 0 {
		n = 1
	}
	return &Log{logger: logger, every: uint64(n)}
}

// SetBackground keeps the colour for the next log line.
func (l *Log) SetBackground(r, g, b float64) { l.bg = [3]float64{r, g, b} }

// SetLabel logs text with the current iteration and colour.
func (l *Log) SetLabel(text string) {
	l.n++
	level := slog.LevelDebug
	if l.n%l.every == 0 {
		level = slog.LevelInfo
	}
	l.logger.Log(context.Background(), level, "display: "+text,
		"iteration", l.n,
		"rgb", fmt.Sprintf("%.2f,%.2f,%.2f", l.bg[0], l.bg[1], l.bg[2]),
	)
}
