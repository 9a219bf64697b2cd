package harness

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/hinshun/vt10x"
)

func stripANSI(s string) string {
	return ansi.Strip(s)
}

// renderScreen replays raw terminal output through a VT emulator and returns
// the visible screen, one line per row with trailing blanks removed.
func renderScreen(raw []byte, cols, rows int) string {
	vt := vt10x.New(vt10x.WithSize(cols, rows))
	_, _ = vt.Write(raw)

	vt.Lock()
	defer vt.Unlock()

	w, hgt := vt.Size()
	lines := make([]string, 0, hgt)

	var b strings.Builder
	for y := range hgt {
		b.Reset()

		for x := range w {
			ch := vt.Cell(x, y).Char
			if ch == 0 {
				ch = ' '
			}

			b.WriteRune(ch)
		}

		lines = append(lines, strings.TrimRight(b.String(), " "))
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
