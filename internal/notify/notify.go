// Package notify defines the one-shot notification surface the sync
// controller talks to, plus two stock sinks: a coloured console sink for the
// daemon's terminal and a slog-backed sink for headless runs.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
)

// Kind classifies a notification.
type Kind int

const (
	Info Kind = iota
	Success
	Warning
	Error
)

// String returns the lower-case label for the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Sink receives human-readable one-shot notifications. Implementations must
// be cheap; the controller calls Notify from its event loop.
type Sink interface {
	Notify(kind Kind, message string)
}

// Console writes one line per notification, colour-coded by kind.
type Console struct {
	out io.Writer
}

// NewConsole creates a Console sink. A nil writer defaults to stdout.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

var kindColors = map[Kind]*color.Color{
	Info:    color.New(color.FgCyan),
	Success: color.New(color.FgGreen),
	Warning: color.New(color.FgYellow),
	Error:   color.New(color.FgRed, color.Bold),
}

func (c *Console) Notify(kind Kind, message string) {
	label := kindColors[kind].Sprintf("[%s]", kind)
	fmt.Fprintf(c.out, "%s %s\n", label, message)
}

// Logger adapts a *slog.Logger into a Sink.
type Logger struct {
	log *slog.Logger
}

// NewLogger creates a Logger sink.
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

func (l *Logger) Notify(kind Kind, message string) {
	switch kind {
	case Warning:
		l.log.Warn(message)
	case Error:
		l.log.Error(message)
	default:
		l.log.Info(message)
	}
}

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Notify(kind Kind, message string) {
	for _, s := range m {
		s.Notify(kind, message)
	}
}
