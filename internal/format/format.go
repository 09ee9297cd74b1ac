// Package format renders planning reports for the terminal.
package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"studyplanner/internal/model"
	"studyplanner/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229"))
	dayStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))
	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
	pinnedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Report writes the full report: summary, schedule, overflow, sync plan and
// warnings.
func Report(w io.Writer, rep *pipeline.Report) error {
	var b strings.Builder
	b.WriteString(Summary(rep))
	b.WriteString("\n\n")
	b.WriteString(Schedule(rep.Scheduled))
	if len(rep.Overflow) > 0 {
		b.WriteString("\n")
		b.WriteString(Overflow(rep.Overflow))
	}
	b.WriteString("\n")
	b.WriteString(Plan(rep.Plan, rep.Applied != nil))
	if len(rep.Warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Warnings"))
		b.WriteString("\n")
		for _, msg := range rep.Warnings {
			b.WriteString("  ")
			b.WriteString(warnStyle.Render("! " + msg))
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Summary is a boxed one-glance overview.
func Summary(rep *pipeline.Report) string {
	lines := []string{
		headerStyle.Render("Study plan"),
		fmt.Sprintf("%s to %s", rep.Window.Start.Format("Mon Jan 2 15:04"), rep.Window.End.Format("Mon Jan 2 15:04")),
		fmt.Sprintf("%d work items, %d sessions, %d scheduled, %d overflow",
			rep.WorkItems, rep.Sessions, len(rep.Scheduled), len(rep.Overflow)),
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Schedule lists scheduled sessions grouped by day.
func Schedule(scheduled []model.ScheduledSession) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Schedule"))
	b.WriteString("\n")
	if len(scheduled) == 0 {
		b.WriteString("  ")
		b.WriteString(mutedStyle.Render("Nothing scheduled"))
		b.WriteString("\n")
		return b.String()
	}

	day := ""
	for _, s := range scheduled {
		if d := s.Start.Format("2006-01-02"); d != day {
			day = d
			b.WriteString(dayStyle.Render(s.Start.Format("Monday, Jan 2")))
			b.WriteString("\n")
		}
		b.WriteString("  ")
		b.WriteString(timeStyle.Render(span(s.Start, s.End)))
		b.WriteString("  ")
		b.WriteString(s.Session.Title)
		if s.Pinned {
			b.WriteString(" ")
			b.WriteString(pinnedStyle.Render("(pinned)"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Overflow lists sessions that found no slot.
func Overflow(sessions []model.Session) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Overflow (%d)", len(sessions))))
	b.WriteString("\n")
	for _, s := range sessions {
		b.WriteString("  ")
		b.WriteString(warnStyle.Render(fmt.Sprintf("%s, %d min, due %s",
			s.Title, s.EstimatedMinutes, s.Due.Format("Mon Jan 2 15:04"))))
		b.WriteString("\n")
	}
	return b.String()
}

// Plan describes the calendar changes. applied selects past or future tense.
func Plan(plan model.SyncPlan, applied bool) string {
	var b strings.Builder
	title := "Calendar changes"
	if !applied {
		title += " (dry run)"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	if plan.Empty() {
		b.WriteString("  ")
		b.WriteString(mutedStyle.Render("Calendar is up to date"))
		b.WriteString("\n")
	}

	for _, u := range plan.Upserts {
		verb := "create"
		if u.ExistingIdentifier != "" {
			verb = "update"
		}
		fmt.Fprintf(&b, "  %-7s %s  %s\n", verb, timeStyle.Render(dayAndSpan(u.Block.Start, u.Block.End)), u.Block.Title)
	}
	for _, id := range plan.Deletions {
		fmt.Fprintf(&b, "  %-7s %s\n", "delete", mutedStyle.Render(id))
	}
	for _, id := range plan.Preserved {
		fmt.Fprintf(&b, "  %-7s %s\n", "keep", pinnedStyle.Render(id+" (edited by you)"))
	}
	return b.String()
}

func span(start, end time.Time) string {
	return start.Format("15:04") + "-" + end.Format("15:04")
}

func dayAndSpan(start, end time.Time) string {
	return start.Format("Mon Jan 2 ") + span(start, end)
}
