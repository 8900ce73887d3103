package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/layerdeck/internal/deck"
	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/order"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	bodyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dropStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0B0B0B")).Background(lipgloss.Color("#5B8DEF"))
	draggingStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#F2C94C"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2994A"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

// View renders the whole screen.
func (a *App) View() string {
	leftWidth, rightWidth := a.paneWidths()
	left := paneStyle.Width(leftWidth).Render(a.renderLayerPane(leftWidth - 2))
	body := left
	if rightWidth > 0 {
		right := paneStyle.Width(rightWidth).Render(a.renderPaintPane(rightWidth - 2))
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	}
	sections := []string{headerStyle.Render("▤ " + strings.ToUpper(a.title)), body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	sections = append(sections, a.renderFooter(), a.help.View(a.keys))
	return strings.Join(sections, "\n")
}

// paneWidths splits the screen between the layer list and the paint pane,
// dropping the paint pane on narrow terminals.
func (a *App) paneWidths() (int, int) {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(30, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 36 {
		return max(20, width-2), 0
	}
	return leftWidth, rightWidth
}

func (a *App) renderLayerPane(width int) string {
	snapshot := a.status.Snapshot
	title := titleStyle.Render(fmt.Sprintf("Layers (%d)", len(snapshot)))
	if !a.loaded {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("Loading..."))
	}
	if len(snapshot) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("No layers. Add images or annotations to begin."))
	}
	lines := make([]string, 0, len(snapshot)+1)
	lines = append(lines, title)
	for i, entry := range snapshot {
		lines = append(lines, a.renderLayerRow(entry, i, width))
	}
	lines = append(lines, "", a.renderReport())
	return strings.Join(lines, "\n")
}

func (a *App) renderLayerRow(entry order.Entry, index, width int) string {
	marker := "  "
	if index == a.cursor {
		marker = "› "
	}
	flags := ""
	if entry.Hidden {
		flags += " (hidden)"
	}
	if entry.Placeholder() {
		flags += " (missing)"
	}
	line := fmt.Sprintf("%s%s %-*s z=%d%s", marker, kindGlyph(entry.Kind), max(8, width-20), entry.Name, entry.ZIndex, flags)
	line = truncate(line, width)
	switch {
	case entry.ID == a.status.Dragging:
		return draggingStyle.Render(line)
	case entry.ID == a.status.Highlight:
		return dropStyle.Render(line)
	case entry.Placeholder():
		return warnStyle.Render(line)
	case index == a.cursor:
		return cursorStyle.Render(line)
	default:
		return line
	}
}

func (a *App) renderReport() string {
	st := a.status
	var parts []string
	seq := fmt.Sprintf("seq %d", st.Seq)
	if a.lastMode != "" {
		seq += fmt.Sprintf(" (%s)", a.lastMode)
	}
	parts = append(parts, seq)
	if st.DragState != order.DragIdle {
		parts = append(parts, fmt.Sprintf("drag %s %s", st.DragState, st.Dragging))
	}
	if st.RebuildPending {
		parts = append(parts, "rebuild pending")
	}
	line := mutedStyle.Render(strings.Join(parts, " · "))
	if st.Report.OK() {
		return line
	}
	issues := make([]string, 0, len(st.Report.Issues))
	for _, issue := range st.Report.Issues {
		issues = append(issues, fmt.Sprintf("⚠ %s %s", issue.Kind, issue.ID))
	}
	return lipgloss.JoinVertical(lipgloss.Left, line, warnStyle.Render(strings.Join(issues, "\n")))
}

func (a *App) renderPaintPane(width int) string {
	title := titleStyle.Render(fmt.Sprintf("Paint order (base %d)", a.status.Base))
	if len(a.status.Paint) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("Nothing painted."))
	}
	lines := []string{title}
	for _, p := range a.status.Paint {
		lines = append(lines, truncate(describePainted(p), width))
	}
	return strings.Join(lines, "\n")
}

func describePainted(p deck.Painted) string {
	z := "auto"
	if p.HasZ {
		z = fmt.Sprintf("%d", p.ZIndex)
	}
	return fmt.Sprintf("%-6s %-8s %s", z, p.Kind, p.ID)
}

func (a *App) renderLogPanel() string {
	if a.logTail == nil {
		return ""
	}
	content := strings.TrimSpace(a.logView.View())
	if content == "" {
		return ""
	}
	fileName := filepath.Base(a.logTail.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := titleStyle.Render(fmt.Sprintf("LOG · %s", fileName))
	return paneStyle.Render(fmt.Sprintf("%s\n%s", head, bodyStyle.Render(content)))
}

func (a *App) renderFooter() string {
	if a.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", a.err))
	}
	return mutedStyle.Render(a.statusMsg)
}

func kindGlyph(kind layer.Kind) string {
	if kind == layer.KindAnnotation {
		return "✎"
	}
	return "▣"
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
