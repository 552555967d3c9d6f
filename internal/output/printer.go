// Package output renders reconciliation progress for humans.
package output

import (
	"fmt"
	"io"

	"autoshard/internal/models"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes styled progress lines. Colors are chosen for the writer it
// was created with, so buffers and pipes get plain text.
type Printer struct {
	w       io.Writer
	heading lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	}
}

func (p *Printer) Heading(msg string) {
	fmt.Fprintln(p.w, p.heading.Render(msg))
}

func (p *Printer) NoConstraints(table string) {
	p.Heading(fmt.Sprintf("No constraints defined for %s.", table))
}

func (p *Printer) Listing(entry models.PlanEntry) {
	p.Heading(entry.DropStatement)
}

func (p *Printer) Executing(entry models.PlanEntry) {
	p.Heading("Executing " + entry.DropStatement)
}

func (p *Printer) Done(models.PlanEntry) {
	fmt.Fprintln(p.w, p.success.Render("Done."))
	fmt.Fprintln(p.w)
}

func (p *Printer) Failed(_ models.PlanEntry, err error) {
	fmt.Fprintln(p.w, p.failure.Render(fmt.Sprintf("Failed [%v].", err)))
	fmt.Fprintln(p.w)
}

func (p *Printer) IntrospectionFailed(table string, err error) {
	fmt.Fprintln(p.w, p.failure.Render(fmt.Sprintf("Could not read constraints for %s [%v].", table, err)))
}

// Summary prints one line per report.
func (p *Printer) Summary(reports []models.ExecutionReport) {
	for i := range reports {
		s := reports[i].Summary()
		line := fmt.Sprintf("%s: %d dropped, %d failed, %d listed, %d tables without constraints",
			reports[i].Database, s.Succeeded, s.Failed, s.Planned, s.EmptyTables)
		if s.IntrospectionFailures > 0 {
			line += fmt.Sprintf(", %d tables unreadable", s.IntrospectionFailures)
		}
		if reports[i].Failed() {
			fmt.Fprintln(p.w, p.failure.Render(line))
		} else {
			fmt.Fprintln(p.w, p.heading.Render(line))
		}
	}
}
