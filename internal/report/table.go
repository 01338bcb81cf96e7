package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column.
type Column struct {
	Title string
	Width int
	Align lipgloss.Position
}

// Table renders fixed-width rows. A row may carry a style that overrides
// the default row styles.
type Table struct {
	columns []Column
	rows    [][]string
	styles  []*lipgloss.Style

	headerStyle lipgloss.Style
	rowStyle    lipgloss.Style
	rowAltStyle lipgloss.Style
	borderStyle lipgloss.Style
}

// NewTable creates a table with the given columns.
func NewTable(columns []Column) *Table {
	return &Table{
		columns:     columns,
		headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#66FF66")),
		rowStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		rowAltStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00")),
		borderStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00")),
	}
}

// AddRow appends a row rendered with the default styles.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
	t.styles = append(t.styles, nil)
}

// AddStyledRow appends a row rendered with style.
func (t *Table) AddStyledRow(style lipgloss.Style, cells ...string) {
	t.rows = append(t.rows, cells)
	t.styles = append(t.styles, &style)
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	return len(t.rows)
}

// Render renders the header, a separator and every row.
func (t *Table) Render() string {
	var b strings.Builder

	totalWidth := 0
	for _, col := range t.columns {
		totalWidth += col.Width + 3
	}

	headers := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = col.Title
	}
	b.WriteString(t.renderRow(headers, t.headerStyle))
	b.WriteString("\n")
	b.WriteString(t.borderStyle.Render(strings.Repeat("-", totalWidth)))
	b.WriteString("\n")

	for i, row := range t.rows {
		style := t.rowStyle
		if i%2 == 1 {
			style = t.rowAltStyle
		}
		if t.styles[i] != nil {
			style = *t.styles[i]
		}
		b.WriteString(t.renderRow(row, style))
		b.WriteString("\n")
	}

	return b.String()
}

func (t *Table) renderRow(cells []string, style lipgloss.Style) string {
	parts := make([]string, len(t.columns))
	for i, col := range t.columns {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = style.Render(fit(cell, col.Width, col.Align))
	}
	return " " + strings.Join(parts, " | ") + " "
}

// fit truncates or pads cell to exactly width display columns.
func fit(cell string, width int, align lipgloss.Position) string {
	if lipgloss.Width(cell) > width {
		runes := []rune(cell)
		for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
			runes = runes[:len(runes)-1]
		}
		cell = string(runes) + "…"
	}

	pad := width - lipgloss.Width(cell)
	if pad <= 0 {
		return cell
	}
	switch align {
	case lipgloss.Right:
		return strings.Repeat(" ", pad) + cell
	case lipgloss.Center:
		left := pad / 2
		return strings.Repeat(" ", left) + cell + strings.Repeat(" ", pad-left)
	default:
		return cell + strings.Repeat(" ", pad)
	}
}
