package output

import (
	"os"

	"golang.org/x/term"
)

// Terminal describes what the attached stdout can display.
type Terminal struct {
	IsTTY   bool
	NoColor bool
	Width   int
	Height  int
	// ForceNoColor is set by --no-color.
	ForceNoColor bool
}

// DetectTerminal inspects stdout and the environment.
func DetectTerminal() *Terminal {
	fd := int(os.Stdout.Fd()) //nolint:gosec // fd fits in int
	isTTY := term.IsTerminal(fd)

	width, height := 80, 24

	if isTTY {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}

	// https://no-color.org/
	_, noColor := os.LookupEnv("NO_COLOR")
	if os.Getenv("TERM") == "dumb" {
		noColor = true
	}

	return &Terminal{
		IsTTY:   isTTY,
		NoColor: noColor,
		Width:   width,
		Height:  height,
	}
}

// ColorEnabled reports whether ANSI colors may be written.
func (t *Terminal) ColorEnabled() bool {
	if t.ForceNoColor {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// SpinnersEnabled reports whether animated spinners may be drawn. CI
// runners are treated as non-interactive even when they allocate a TTY.
func (t *Terminal) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor && os.Getenv("CI") == ""
}
