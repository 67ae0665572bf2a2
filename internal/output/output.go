// Package output provides consistent CLI output formatting with optional
// terminal colors.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ANSI color sequences used when the destination is a terminal.
const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorDim    = "\x1b[2m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
	colorCyan   = "\x1b[36m"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer. Color is enabled when out is a terminal and
// NO_COLOR is not set.
func New(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		useColor: isTTY(out) && !noColor(),
	}
}

// NewPlain creates a Writer with color disabled regardless of terminal.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func noColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

func (w *Writer) paint(color, s string) string {
	if !w.useColor {
		return s
	}
	return color + s + colorReset
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.paint(colorGreen, "✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.paint(colorYellow, "!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.paint(colorRed, "✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Heading prints a bold section heading.
func (w *Writer) Heading(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.paint(colorBold, msg))
}

// Detail prints dimmed secondary text, indented under the previous line.
func (w *Writer) Detail(msg string) {
	_, _ = fmt.Fprintf(w.out, "   %s\n", w.paint(colorDim, msg))
}

// Result prints a ranked search result line.
func (w *Writer) Result(rank int, id, title string, score float64) {
	_, _ = fmt.Fprintf(w.out, "%2d. %s %s %s\n",
		rank,
		w.paint(colorCyan, id),
		title,
		w.paint(colorDim, fmt.Sprintf("(%.4f)", score)))
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
