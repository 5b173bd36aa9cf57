package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/shelf/pkg/cache"
	"github.com/matzehuels/shelf/pkg/declare"
	"github.com/matzehuels/shelf/pkg/include"
	"github.com/matzehuels/shelf/pkg/resolve"
)

var (
	confirmPromptStyle = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	confirmKeyStyle    = lipgloss.NewStyle().Foreground(colorCyan)
	tableHeaderStyle   = lipgloss.NewStyle().Foreground(colorGray).Bold(true).Padding(0, 1)
	tableCellStyle     = lipgloss.NewStyle().Padding(0, 1)
)

// =============================================================================
// ConfirmModel - yes/no prompt
// =============================================================================

// ConfirmModel is the bubbletea model for a yes/no question. Only an
// explicit "y" confirms.
type ConfirmModel struct {
	Question  string
	Detail    string
	Confirmed bool
	done      bool
}

// NewConfirmModel creates a confirmation prompt.
func NewConfirmModel(question, detail string) ConfirmModel {
	return ConfirmModel{Question: question, Detail: detail}
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.Confirmed, m.done = true, true
		return m, tea.Quit
	case "n", "q", "esc", "enter", "ctrl+c":
		m.Confirmed, m.done = false, true
		return m, tea.Quit
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(confirmPromptStyle.Render(m.Question))
	b.WriteString(" ")
	b.WriteString(StyleDim.Render("[" + confirmKeyStyle.Render("y") + "/" + confirmKeyStyle.Render("N") + "]"))
	b.WriteString("\n")
	if m.Detail != "" {
		b.WriteString(StyleDim.Render("  " + m.Detail))
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// Tables
// =============================================================================

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
}

// sitesTable renders the declarations found in a script.
func sitesTable(sites []declare.Site) string {
	t := newTable("Line", "Package", "Version", "Variable")
	for _, s := range sites {
		version := s.Constraint()
		if !s.HasVersion {
			version = StyleDim.Render(version)
		}
		variable := s.Variable
		if variable == "" {
			variable = "—"
		}
		t.Row(fmt.Sprintf("%d:%d", s.Line, s.Column), s.Name, version, variable)
	}
	return t.Render()
}

// dependencyTable renders resolved dependencies keyed the way scripts look
// them up.
func dependencyTable(deps []resolve.Dependency) string {
	t := newTable("Include", "Version", "Status", "Path")
	for _, d := range deps {
		status := styleComputed.Render(iconFresh)
		if d.Cached {
			status = styleCached.Render(iconCached)
		}
		t.Row(include.Key(d.Name, d.Constraint), d.Version, status, StyleDim.Render(d.Path))
	}
	return t.Render()
}

// slotTable renders installed cache slots.
func slotTable(slots []cache.Slot, now time.Time) string {
	t := newTable("Package", "Version", "Installed")
	for _, s := range slots {
		t.Row(s.Name, s.Version, formatRelativeTime(s.InstalledAt, now))
	}
	return t.Render()
}

// =============================================================================
// Helpers
// =============================================================================

func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
