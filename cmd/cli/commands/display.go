package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/estimator"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

const displayLayout = "Mon 2006-01-02 15:04"

// formatWindow renders w in loc, collapsing the end to a time when both
// bounds fall on the same day
func formatWindow(w window.Window, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	start, end := w.Start.In(loc), w.End.In(loc)
	if start.Year() == end.Year() && start.YearDay() == end.YearDay() {
		return fmt.Sprintf("%s-%s", start.Format(displayLayout), end.Format("15:04"))
	}
	return fmt.Sprintf("%s - %s", start.Format(displayLayout), end.Format(displayLayout))
}

func formatRehearsal(r model.Rehearsal, loc *time.Location) string {
	return fmt.Sprintf("%s [%s] group=%s venue=%s %s", r.ID, r.Status, r.GroupID, r.VenueID, formatWindow(r.Window, loc))
}

func statusColor(s estimator.MemberStatus) string {
	switch s {
	case estimator.StatusAvailable:
		return colorGreen
	case estimator.StatusUnavailable:
		return colorRed
	default:
		return colorYellow
	}
}

// printReport writes a conflict report, grouping hard conflicts before warnings
func printReport(w io.Writer, report conflict.Report, loc *time.Location) {
	if report.IsEmpty() {
		fmt.Fprintf(w, "%s✓ No conflicts%s\n", colorGreen, colorReset)
		return
	}

	if len(report.VenueConflicts) > 0 {
		fmt.Fprintf(w, "%s✗ Venue double-booked:%s\n", colorRed, colorReset)
		for _, r := range report.VenueConflicts {
			fmt.Fprintf(w, "    %s\n", formatRehearsal(r, loc))
		}
	}
	if len(report.GroupConflicts) > 0 {
		fmt.Fprintf(w, "%s✗ Group already rehearsing:%s\n", colorRed, colorReset)
		for _, r := range report.GroupConflicts {
			fmt.Fprintf(w, "    %s\n", formatRehearsal(r, loc))
		}
	}
	for _, mc := range report.MemberConflicts {
		color, mark := colorYellow, "⚠️ "
		if mc.Severity == conflict.SeverityHard {
			color, mark = colorRed, "✗"
		}
		fmt.Fprintf(w, "%s%s %s (%s, %s) is committed to:%s\n", color, mark, mc.UserID, mc.Role, mc.Severity, colorReset)
		for _, r := range mc.Rehearsals {
			fmt.Fprintf(w, "    %s\n", formatRehearsal(r, loc))
		}
	}
}

// printEstimate writes the per-member breakdown of an attendance estimate
func printEstimate(w io.Writer, est estimator.AttendanceEstimate) {
	if !est.Evaluable() {
		fmt.Fprintln(w, "Score:       n/a (no members)")
		return
	}
	fmt.Fprintf(w, "Score:       %.2f\n", est.Score)
	fmt.Fprintf(w, "Available:   %d\n", est.Counts.Available)
	fmt.Fprintf(w, "Unavailable: %d\n", est.Counts.Unavailable)
	fmt.Fprintf(w, "Unknown:     %d\n\n", est.Counts.Unknown)

	for _, id := range sortedKeys(est.PerMember) {
		status := est.PerMember[id]
		fmt.Fprintf(w, "  %-20s %s%s%s\n", id, statusColor(status), status, colorReset)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// memberSummary renders "3 available, 1 unavailable, 0 unknown"
func memberSummary(c estimator.Counts) string {
	parts := []string{
		fmt.Sprintf("%d available", c.Available),
		fmt.Sprintf("%d unavailable", c.Unavailable),
		fmt.Sprintf("%d unknown", c.Unknown),
	}
	return strings.Join(parts, ", ")
}
