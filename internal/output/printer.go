// Package output renders ctf results for the terminal.
//
// All rendering goes through a [Printer] so that commands can be tested
// against a buffer. Styling uses lipgloss with a renderer bound to the
// destination writer; a non-terminal writer gets plain text.
//
// Key types:
//   - [Printer] - Writes event lists, story details, the event catalog and
//     sprint reports
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"cycletrack/internal/event"
	"cycletrack/internal/sprint"
	"cycletrack/internal/story"
)

const (
	eventTimeLayout  = "Mon Jan _2, 15:04"
	reportTimeLayout = "2006-01-02 15:04"
)

// Printer writes formatted output.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	st     styles
	errSt  styles
}

// NewPrinter creates a Printer writing results to stdout and problems to
// stderr.
func NewPrinter() *Printer {
	return &Printer{
		out:    os.Stdout,
		errOut: os.Stderr,
		st:     newStyles(os.Stdout),
		errSt:  newStyles(os.Stderr),
	}
}

// NewPrinterWithWriter creates a Printer writing everything to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	st := newStyles(w)
	return &Printer{out: w, errOut: w, st: st, errSt: st}
}

func (p *Printer) println(a ...interface{}) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) printf(format string, a ...interface{}) {
	fmt.Fprintf(p.out, format, a...)
}

func (p *Printer) rule() {
	p.println(p.st.muted.Render(strings.Repeat("-", ruleWidth)))
}

// Success prints a confirmation.
func (p *Printer) Success(msg string) {
	p.println(p.st.pass.Render(iconPass) + " " + msg)
}

// Warning prints a non-fatal problem to the error stream.
func (p *Printer) Warning(msg string) {
	fmt.Fprintln(p.errOut, p.errSt.warn.Render(iconWarn)+" "+msg)
}

// Error prints err to the error stream.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.errOut, p.errSt.fail.Render(iconFail+" Error:")+" "+err.Error())
}

// Events prints one line per event under title. An empty list prints
// "No events found." instead of the title.
func (p *Printer) Events(title string, events []event.Event) {
	p.println()
	if len(events) == 0 {
		p.println(p.st.muted.Render("No events found."))
		p.println()
		return
	}
	if title != "" {
		p.println(p.st.title.Render(title))
		p.println()
	}
	for _, e := range events {
		p.println(p.eventLine(e))
	}
	p.println()
}

func (p *Printer) eventLine(e event.Event) string {
	points := ""
	if e.Points.Valid {
		points = "points: " + e.Points.Decimal.String()
	}
	parts := []string{
		e.CreatedAt.Local().Format(eventTimeLayout),
		fmt.Sprintf("%-11s", e.Kind),
		p.st.accent.Render(fmt.Sprintf("#%-11s", e.TrackerID)),
		fmt.Sprintf("%-11s", points),
		e.Developer,
	}
	line := strings.Join(parts, " | ")
	if r := e.FullReason(); r != "" {
		line += p.st.muted.Render(" (" + r + ")")
	}
	return line
}

// Story prints a work item detail box.
func (p *Printer) Story(d story.Detail) {
	points := "-"
	if d.Points.Valid {
		points = d.Points.Decimal.String()
	}
	tags := story.JoinTags(d.Tags)
	if tags == "" {
		tags = "-"
	}

	lines := []string{
		p.st.label.Render(orDash(d.Type)),
		fmt.Sprintf("[%s] %s", d.ID, d.Title),
		"",
		fmt.Sprintf("State: %s | Column: %s | Points: %s", orDash(d.State), orDash(d.Column), points),
		fmt.Sprintf("Area: %s | Iteration: %s", orDash(d.Area), orDash(d.Iteration)),
		"Tags: " + tags,
	}
	if d.URL != "" {
		lines = append(lines, p.st.muted.Render(d.URL))
	}

	p.println()
	p.println(p.st.box.Render(strings.Join(lines, "\n")))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Catalog prints every kind with its reason requirement and successors.
func (p *Printer) Catalog(c *event.Catalog) {
	p.println()
	p.println(p.st.title.Render("Events:"))
	p.println()
	for _, k := range c.Kinds() {
		marker := "  "
		if c.RequiresReason(k) {
			marker = p.st.warn.Render("* ")
		}
		next := kindList(c.AllowedSuccessors(k))
		if next == "" {
			next = p.st.muted.Render("(final)")
		}
		p.printf("%s%-12s -> %s\n", marker, k, next)
	}
	p.println()
	p.println(p.st.muted.Render("* requires a reason"))
}

// Reasons prints the numbered reason codes.
func (p *Printer) Reasons() {
	p.println()
	p.println(p.st.title.Render("Reasons:"))
	for i, r := range event.Reasons {
		p.printf("  %d. %s\n", i+1, r)
	}
	p.println()
}

// NextKinds prints what may be recorded next for a story.
func (p *Printer) NextKinds(trackerID string, last *event.Event, kinds []event.Kind) {
	p.println()
	if last == nil {
		p.printf("#%s has no events.\n", trackerID)
	} else {
		p.printf("#%s last: %s by %s at %s\n", trackerID, last.Kind, last.Developer,
			last.CreatedAt.Local().Format(eventTimeLayout))
	}
	if len(kinds) == 0 {
		p.println(p.st.muted.Render("No further events allowed."))
		return
	}
	p.println("Next: " + p.st.accent.Render(kindList(kinds)))
}

func kindList(kinds []event.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Recorded confirms a stored event.
func (p *Printer) Recorded(e event.Event) {
	p.Success(fmt.Sprintf("Recorded %s for #%s", e.Kind, e.TrackerID))
	p.println(p.eventLine(e))
}

// Report prints the finished stories and metrics of a sprint report,
// optionally preceded by every event in the window.
func (p *Printer) Report(r *sprint.Report, withEvents bool) {
	name := "sprint"
	if r.MultiSprint() {
		name = "period"
	}
	end := r.Window.End.Local().Format(reportTimeLayout)

	if withEvents {
		p.Events(fmt.Sprintf("Events for %s ending %s:", name, end), r.Events)
	}

	p.println()
	p.println(p.st.title.Render(fmt.Sprintf("Finished stories for %s ending %s:", name, end)))
	for _, s := range r.Stories {
		p.rule()
		p.printf("#%-9s | %s\n", s.TrackerID(), truncate(s.Title(), 64))
		p.printf("%-10s | %-9s | %-11s | %-16s | %s\n",
			s.Type(), s.Area(), s.Iteration(), s.Developer(), s.Points().StringFixed(2))
	}
	p.rule()

	p.println()
	p.println(p.st.title.Render(fmt.Sprintf("Metrics for %s ending %s:", name, end)))
	p.rule()
	if !r.Filter.IsEmpty() {
		label := "Exclusions:"
		if r.Filter.Mode == sprint.Include {
			label = "Inclusions:"
		}
		p.metricLine(label, r.Filter.String())
	}
	p.metricLine("Finished Points:", r.FinishedPoints().StringFixed(2))
	if r.MultiSprint() {
		p.metricLine("Number of Sprints:", fmt.Sprint(r.Window.Sprints))
		p.metricLine("Avg Team Velocity:", metric(r.AverageTeamVelocity()))
	}
	p.metricLine("Contributing Devs:", fmt.Sprint(r.DevCount()))
	p.metricLine("Avg Points Per Dev:", metric(r.AveragePointsPerDeveloper()))

	hours := metric(r.AverageCycleHours())
	if days, err := r.AverageCycleDays(); err == nil {
		hours += fmt.Sprintf(" (%s days)", days.StringFixed(2))
	}
	p.metricLine("Avg Cycle Hours:", hours)
	p.metricLine("Rejection %:", metric(r.RejectionPercent()))
	p.println()
}

func (p *Printer) metricLine(label, value string) {
	p.printf("%s %s\n", p.st.label.Render(fmt.Sprintf("%-23s", label)), value)
}

// metric formats a report metric, showing "n/a" when it is undefined.
func metric(v decimal.Decimal, err error) string {
	if errors.Is(err, sprint.ErrDivisionUndefined) {
		return "n/a"
	}
	if err != nil {
		return "error"
	}
	return v.StringFixed(2)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
