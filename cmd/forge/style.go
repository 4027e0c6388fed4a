package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/forge/pkg/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	completeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	detailStyle   = lipgloss.NewStyle().PaddingLeft(4).Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().PaddingLeft(4).Foreground(lipgloss.Color("9"))
)

func statusMark(s domain.StepStatus) string {
	switch s {
	case domain.StepRunning:
		return runningStyle.Render("▶")
	case domain.StepComplete:
		return completeStyle.Render("✓")
	case domain.StepFailed:
		return failedStyle.Render("✗")
	default:
		return pendingStyle.Render("·")
	}
}

// renderSteps renders a step list, one line per step plus its error.
func renderSteps(title string, steps []domain.Step) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "%s %d. %s\n", statusMark(s.Status), i+1, s.Title)
		if s.Description != "" {
			b.WriteString(detailStyle.Render(s.Description))
			b.WriteString("\n")
		}
		if s.Error != "" {
			b.WriteString(errorStyle.Render(s.Error))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// progressPrinter prints a line whenever a step changes status.
type progressPrinter struct {
	seen map[string]domain.StepStatus
	out  func(string)
}

func newProgressPrinter(out func(string)) *progressPrinter {
	return &progressPrinter{seen: map[string]domain.StepStatus{}, out: out}
}

func (p *progressPrinter) observe(steps []domain.Step) {
	for i, s := range steps {
		if p.seen[s.ID] == s.Status {
			continue
		}
		p.seen[s.ID] = s.Status
		if s.Status == domain.StepPending {
			continue
		}
		p.out(fmt.Sprintf("%s %d. %s", statusMark(s.Status), i+1, s.Title))
	}
}
