package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	columnGap = "  "
	ellipsis  = "…"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

// Table is a column-aligned listing.
type Table struct {
	Headers []string
	Rows    [][]string
	// MaxWidth caps the last column so rows fit the terminal. Zero means no cap.
	MaxWidth int
}

// Table writes t to stdout unless quiet or in JSON mode.
func (w *Writer) Table(t Table) {
	if !w.human() {
		return
	}

	if t.MaxWidth == 0 && w.terminal.IsTTY {
		t.MaxWidth = w.terminal.Width
	}

	w.Print("%s", t.Render(w.terminal.ColorEnabled()))
}

// Render lays the table out. Widths are measured in terminal cells so wide
// characters line up.
func (t Table) Render(styled bool) string {
	cols := len(t.Headers)
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}

	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	measure(t.Headers)

	for _, row := range t.Rows {
		measure(row)
	}

	if t.MaxWidth > 0 {
		used := 0
		for _, width := range widths[:cols-1] {
			used += width + len(columnGap)
		}

		if last := t.MaxWidth - used; last > 0 && widths[cols-1] > last {
			widths[cols-1] = last
		}
	}

	var b strings.Builder

	if len(t.Headers) > 0 {
		line := t.line(t.Headers, widths)
		if styled {
			line = headerStyle.Render(line)
		}

		b.WriteString(line)
		b.WriteByte('\n')
	}

	for _, row := range t.Rows {
		b.WriteString(t.line(row, widths))
		b.WriteByte('\n')
	}

	return b.String()
}

func (t Table) line(row []string, widths []int) string {
	cells := make([]string, len(widths))

	for i := range widths {
		var cell string
		if i < len(row) {
			cell = Truncate(row[i], widths[i])
		}

		if i < len(widths)-1 {
			cell = runewidth.FillRight(cell, widths[i])
		}

		cells[i] = cell
	}

	return strings.TrimRight(strings.Join(cells, columnGap), " ")
}

// Truncate shortens s to at most width terminal cells, marking the cut
// with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	if runewidth.StringWidth(s) <= width {
		return s
	}

	return runewidth.Truncate(s, width, ellipsis)
}
