// Package report renders lockers, metrics and alerts for the terminal and
// exports locker lists as CSV or YAML.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"droplock/internal/droplock"
)

const none = "-"

// Renderer styles output for one writer. Colors are dropped
// automatically when the writer is not a terminal.
type Renderer struct {
	w        io.Writer
	loc      *time.Location
	header   lipgloss.Style
	label    lipgloss.Style
	states   map[droplock.LockerState]lipgloss.Style
	offline  lipgloss.Style
	tamper   lipgloss.Style
	severity map[droplock.Severity]lipgloss.Style
	faint    lipgloss.Style
}

// NewRenderer returns a Renderer writing to w. Timestamps are shown in
// loc, or UTC when loc is nil.
func NewRenderer(w io.Writer, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	lr := lipgloss.NewRenderer(w)
	fg := func(c string) lipgloss.Style { return lr.NewStyle().Foreground(lipgloss.Color(c)) }

	return &Renderer{
		w:      w,
		loc:    loc,
		header: lr.NewStyle().Bold(true).Underline(true),
		label:  lr.NewStyle().Bold(true),
		states: map[droplock.LockerState]lipgloss.Style{
			droplock.StateAvailable:   fg("10"),
			droplock.StateOccupied:    fg("12"),
			droplock.StateReserved:    fg("214"),
			droplock.StateMaintenance: fg("9"),
		},
		offline: fg("8").Bold(true),
		tamper:  fg("11").Bold(true),
		severity: map[droplock.Severity]lipgloss.Style{
			droplock.SeverityHigh:   fg("9").Bold(true),
			droplock.SeverityMedium: fg("214"),
		},
		faint: lr.NewStyle().Faint(true),
	}
}

// StateBadge shows OFFLINE in place of the state for silent lockers.
func (r *Renderer) StateBadge(v *droplock.LockerView) string {
	if v.IsOffline {
		return r.offline.Render("OFFLINE")
	}
	if style, ok := r.states[v.State]; ok {
		return style.Render(string(v.State))
	}
	return string(v.State)
}

// TamperBadge marks lockers whose tamper flag is raised.
func (r *Renderer) TamperBadge(v *droplock.LockerView) string {
	if v.TamperFlag {
		return r.tamper.Render("TAMPER")
	}
	return r.faint.Render(none)
}

// FormatTS renders a timestamp to the second, or "-" when absent.
func (r *Renderer) FormatTS(t *time.Time) string {
	if t == nil || t.IsZero() {
		return none
	}
	return t.In(r.loc).Format("2006-01-02T15:04:05")
}

// Metrics writes the sector counters and the online summary line.
func (r *Renderer) Metrics(m droplock.SectorMetrics) {
	cells := []struct {
		name  string
		value int
	}{
		{"Total Lockers", m.Total},
		{"Available", m.Available},
		{"Occupied", m.Occupied},
		{"Maintenance", m.Maintenance},
		{"Offline", m.Offline},
	}
	parts := make([]string, 0, len(cells))
	for _, c := range cells {
		parts = append(parts, fmt.Sprintf("%s %d", r.label.Render(c.name+":"), c.value))
	}
	fmt.Fprintln(r.w, strings.Join(parts, "   "))
	fmt.Fprintf(r.w, "System status: %.1f%% online | %d tampered lockers\n", m.OnlinePercent(), m.Tampered)
}

// Lockers writes one row per view.
func (r *Renderer) Lockers(views []*droplock.LockerView) {
	if len(views) == 0 {
		fmt.Fprintln(r.w, "No lockers match filters")
		return
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		booking := v.ActiveBookingID
		if booking == "" {
			booking = none
		}
		rows = append(rows, []string{v.LockerID, r.StateBadge(v), booking, r.TamperBadge(v), r.FormatTS(v.LastHeartbeatAt)})
	}
	r.Table([]string{"LOCKER", "STATE", "BOOKING", "TAMPER", "LAST HEARTBEAT"}, rows)
}

// Alerts writes one row per alert, newest first as given.
func (r *Renderer) Alerts(alerts []*droplock.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(r.w, "No alerts")
		return
	}
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		sev := string(a.Severity)
		if style, ok := r.severity[a.Severity]; ok {
			sev = style.Render(sev)
		}
		acked := a.AckedByUID
		if acked == "" {
			acked = none
		}
		rows = append(rows, []string{
			a.ID, string(a.Type), a.SectorID + "/" + a.LockerID, sev, string(a.Status),
			r.FormatTS(&a.CreatedAt), acked,
		})
	}
	r.Table([]string{"ID", "TYPE", "LOCKER", "SEVERITY", "STATUS", "CREATED", "ACKED BY"}, rows)
}

// Table aligns cells by their printed width, so styled cells line up
// with plain ones.
func (r *Renderer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = r.header.Render(h)
	}
	r.writeRow(styled, widths)
	for _, row := range rows {
		r.writeRow(row, widths)
	}
}

func (r *Renderer) writeRow(cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		b.WriteString(cell)
		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
		}
	}
	fmt.Fprintln(r.w, b.String())
}
