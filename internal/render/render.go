// Package render draws the agenda as text for terminals.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/schedule"
)

const (
	maxNameWidth = 18
	// MonthColumnWidth is the width of one weekday column in the monthly view.
	MonthColumnWidth = 9
	labelWidth       = 9
	columnGap        = 2
)

// Weekdays is the monthly header; the month grid starts on Sunday.
var Weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

type styles struct {
	plain   lipgloss.Style
	title   lipgloss.Style
	muted   lipgloss.Style
	header  lipgloss.Style
	today   lipgloss.Style
	booked  lipgloss.Style
	open    lipgloss.Style
	closed  lipgloss.Style
	warning lipgloss.Style
}

// newStyles binds styles to w so colors are only emitted to a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		plain:   r.NewStyle(),
		title:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Faint(true),
		header:  r.NewStyle().Bold(true),
		today:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		booked:  r.NewStyle().Foreground(lipgloss.Color("3")),
		open:    r.NewStyle().Foreground(lipgloss.Color("2")),
		closed:  r.NewStyle().Faint(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Grid writes g as aligned columns: one row per slot for the daily and weekly
// views, one row per week for the monthly view.
func Grid(w io.Writer, g agenda.Grid) error {
	st := newStyles(w)

	var b strings.Builder
	b.WriteString(st.title.Render(g.Header))
	if g.PrevDisabled {
		b.WriteString(st.muted.Render("  (earliest period)"))
	}
	b.WriteString("\n\n")

	if g.View == schedule.Monthly {
		writeMonth(&b, st, g.Month)
	} else {
		writeSlots(&b, st, g)
	}

	if len(g.Conflicts) > 0 {
		ids := make([]string, len(g.Conflicts))
		for i, id := range g.Conflicts {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		b.WriteString("\n")
		b.WriteString(st.warning.Render("Hidden by a slot conflict: " + strings.Join(ids, ", ")))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type styledText struct {
	text  string
	style lipgloss.Style
}

func writeSlots(b *strings.Builder, st styles, g agenda.Grid) {
	header := []styledText{{"Time", st.header}}
	for _, d := range g.Dates {
		label, style := d.In(nil).Format("Mon 02/01"), st.header
		if d == g.Today {
			label += " *"
			style = st.today
		}
		header = append(header, styledText{label, style})
	}

	rows := [][]styledText{header}
	for i, slot := range g.Slots {
		cols := []styledText{{slot.String(), st.muted}}
		if i < len(g.Rows) {
			for _, cell := range g.Rows[i] {
				cols = append(cols, cellText(st, cell))
			}
		}
		rows = append(rows, cols)
	}

	widths := columnWidths(rows)
	for _, cols := range rows {
		writeRow(b, cols, widths)
	}
}

// columnWidths sizes every column to its widest cell plus the gap.
func columnWidths(rows [][]styledText) []int {
	var widths []int
	for _, cols := range rows {
		for i, c := range cols {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(c.text)+columnGap)
		}
	}
	return widths
}

func writeRow(b *strings.Builder, cols []styledText, widths []int) {
	var line strings.Builder
	for i, c := range cols {
		if i == len(cols)-1 {
			line.WriteString(c.style.Render(c.text))
			continue
		}
		line.WriteString(c.style.Width(widths[i]).Render(c.text))
	}
	b.WriteString(strings.TrimRight(line.String(), " "))
	b.WriteString("\n")
}

func cellText(st styles, c agenda.CellView) styledText {
	switch c.State {
	case schedule.Booked:
		text := truncate(c.Patient, maxNameWidth)
		if c.Appointment != nil && c.Appointment.Status != appointments.StatusPending {
			text += " [" + c.Appointment.Status.Label() + "]"
		}
		return styledText{text, st.booked}
	case schedule.Closed:
		return styledText{"closed", st.closed}
	case schedule.Past:
		return styledText{"-", st.muted}
	default:
		return styledText{"free", st.open}
	}
}

func writeMonth(b *strings.Builder, st styles, days []schedule.MonthDay) {
	header := make([]styledText, len(Weekdays))
	for i, name := range Weekdays {
		header[i] = styledText{name, st.header}
	}
	widths := make([]int, len(Weekdays))
	for i := range widths {
		widths[i] = MonthColumnWidth
	}
	writeRow(b, header, widths)

	for start := 0; start < len(days); start += 7 {
		end := min(start+7, len(days))
		cols := make([]styledText, 0, 7)
		for _, day := range days[start:end] {
			cols = append(cols, monthDayText(st, day))
		}
		writeRow(b, cols, widths)
	}
}

func monthDayText(st styles, d schedule.MonthDay) styledText {
	if !d.InMonth {
		return styledText{".", st.muted}
	}
	text, style := fmt.Sprintf("%2d", d.Date.Day), st.open
	if d.Today {
		text += "*"
		style = st.today
	}
	switch {
	case d.Count > 0:
		text += fmt.Sprintf(" (%d)", d.Count)
		if !d.Today {
			style = st.booked
		}
	case d.Closed:
		text += " x"
		style = st.closed
	}
	return styledText{text, style}
}

// Patients writes the patient lookup list.
func Patients(w io.Writer, patients []appointments.Patient) error {
	st := newStyles(w)
	rows := [][]styledText{{{"ID", st.header}, {"Name", st.header}}}
	for _, p := range patients {
		rows = append(rows, []styledText{{fmt.Sprintf("%d", p.ID), st.muted}, {p.Name, st.plain}})
	}
	var b strings.Builder
	widths := columnWidths(rows)
	for _, cols := range rows {
		writeRow(&b, cols, widths)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Appointment writes one appointment as label/value lines.
func Appointment(w io.Writer, appt appointments.Appointment, patient string) error {
	st := newStyles(w)
	label := st.muted.Width(labelWidth)

	fields := [][2]string{
		{"ID", fmt.Sprintf("%d", appt.ID)},
		{"Patient", patient},
		{"Date", appt.Date.String()},
		{"Time", appt.Time.String()},
		{"Status", appt.Status.Label()},
	}
	if appt.Notes != "" {
		fields = append(fields, [2]string{"Notes", appt.Notes})
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(label.Render(f[0]))
		b.WriteString(f[1])
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
