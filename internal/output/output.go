// Package output writes the runner's human and machine readable output.
//
// Human output goes through status lines (✓ ✗ ⚠ ℹ), spinners and tables;
// with JSON set, commands emit one JSON document on stdout instead. Colors
// and spinners switch off automatically when stdout is not a terminal.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

type contextKey struct{}

// Status symbols.
const (
	CheckMark   = "\u2713" // ✓
	XMark       = "\u2717" // ✗
	WarningMark = "\u26A0" // ⚠
	InfoMark    = "\u2139" // ℹ
)

// Writer handles CLI output in human, quiet and JSON modes.
type Writer struct {
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	Quiet   bool
	Verbose bool

	terminal *Terminal

	successColor *color.Color
	errorColor   *color.Color
	warningColor *color.Color
	infoColor    *color.Color
	mutedColor   *color.Color
}

// Default returns a Writer for stdout and stderr.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, DetectTerminal())
}

// NewWriter creates a Writer with explicit streams and terminal info.
func NewWriter(out, errOut io.Writer, term *Terminal) *Writer {
	if term == nil {
		term = &Terminal{Width: 80, Height: 24}
	}

	w := &Writer{
		Out:          out,
		Err:          errOut,
		terminal:     term,
		successColor: color.New(color.FgGreen),
		errorColor:   color.New(color.FgRed),
		warningColor: color.New(color.FgYellow),
		infoColor:    color.New(color.FgCyan),
		mutedColor:   color.New(color.FgHiBlack),
	}

	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return w
}

// WithContext stores the Writer in ctx.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext returns the Writer stored in ctx, or Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal info.
func (w *Writer) Terminal() *Terminal {
	return w.terminal
}

// SetNoColor disables colored output.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceNoColor = disabled
	if disabled {
		color.NoColor = true
	}
}

// human reports whether human-oriented output should be written to Out.
func (w *Writer) human() bool {
	return !w.Quiet && !w.JSON
}

// Print writes to stdout unless quiet or in JSON mode.
func (w *Writer) Print(format string, args ...any) {
	if w.human() {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to stdout unless quiet or in JSON mode.
func (w *Writer) Println(args ...any) {
	if w.human() {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON writes v as indented JSON. It is not silenced by Quiet.
func (w *Writer) PrintJSON(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// Error writes to stderr.
func (w *Writer) Error(format string, args ...any) {
	fmt.Fprintf(w.Err, format, args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(args ...any) {
	fmt.Fprintln(w.Err, args...)
}

// Write implements io.Writer on Out, honoring quiet and JSON modes.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.human() {
		return len(p), nil
	}

	return w.Out.Write(p)
}

// Debug writes to stderr in verbose mode.
func (w *Writer) Debug(format string, args ...any) {
	if w.Verbose {
		w.mutedColor.Fprintf(w.Err, "[debug] "+format+"\n", args...)
	}
}

func (w *Writer) writeStatus(out io.Writer, tone *color.Color, prefix, message string) {
	if w.terminal.ColorEnabled() {
		tone.Fprint(out, prefix+" ")
		fmt.Fprintln(out, message)

		return
	}

	fmt.Fprintln(out, prefix+" "+message)
}

// Success writes a line with a check mark.
func (w *Writer) Success(format string, args ...any) {
	if w.human() {
		w.writeStatus(w.Out, w.successColor, CheckMark, fmt.Sprintf(format, args...))
	}
}

// Failure writes a line with an X mark to stderr. It is never silenced.
func (w *Writer) Failure(format string, args ...any) {
	w.writeStatus(w.Err, w.errorColor, XMark, fmt.Sprintf(format, args...))
}

// Warning writes a line with a warning sign.
func (w *Writer) Warning(format string, args ...any) {
	if w.human() {
		w.writeStatus(w.Out, w.warningColor, WarningMark, fmt.Sprintf(format, args...))
	}
}

// Info writes a line with an info sign.
func (w *Writer) Info(format string, args ...any) {
	if w.human() {
		w.writeStatus(w.Out, w.infoColor, InfoMark, fmt.Sprintf(format, args...))
	}
}

// Muted writes gray text.
func (w *Writer) Muted(format string, args ...any) {
	if !w.human() {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if w.terminal.ColorEnabled() {
		w.mutedColor.Fprintln(w.Out, msg)

		return
	}

	fmt.Fprintln(w.Out, msg)
}

// Spinner returns a spinner for a long wait. Without a terminal it degrades
// to a "message... done" line.
func (w *Writer) Spinner(message string) *Spinner {
	if !w.human() || !w.terminal.SpinnersEnabled() {
		return &Spinner{disabled: true, message: message, writer: w}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = w.Out
	s.Suffix = " " + message

	return &Spinner{spinner: s, message: message, writer: w}
}

// Spinner wraps briandowns/spinner with a plain-text fallback.
type Spinner struct {
	spinner  *spinner.Spinner
	message  string
	writer   *Writer
	disabled bool
}

// Start begins the animation.
func (s *Spinner) Start() {
	if s.disabled {
		s.writer.Print("%s... ", s.message)
		return
	}

	s.spinner.Start()
}

// Stop ends the animation without a message.
func (s *Spinner) Stop() {
	if !s.disabled {
		s.spinner.Stop()
	}
}

// StopWithSuccess ends the animation with a success line.
func (s *Spinner) StopWithSuccess(message string) {
	s.finish("done", message, s.writer.Success)
}

// StopWithFailure ends the animation with a failure line.
func (s *Spinner) StopWithFailure(message string) {
	s.finish("failed", message, s.writer.Failure)
}

// StopWithWarning ends the animation with a warning line.
func (s *Spinner) StopWithWarning(message string) {
	s.finish("warning", message, s.writer.Warning)
}

func (s *Spinner) finish(word, message string, status func(string, ...any)) {
	if s.disabled {
		s.writer.Println(word)
	} else {
		s.spinner.Stop()
	}

	if message != "" {
		status("%s", message)
	}
}

// UpdateMessage changes the spinner text.
func (s *Spinner) UpdateMessage(message string) {
	s.message = message
	if !s.disabled {
		s.spinner.Lock()
		s.spinner.Suffix = " " + message
		s.spinner.Unlock()
	}
}
