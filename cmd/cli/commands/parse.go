package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// Accepted time layouts, tried in order. Layouts without a zone are read in
// the configured timezone.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime reads a CLI time argument
func parseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q (use RFC3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD)", model.ErrInvalidWindow, value)
}

// parseWindow reads a start/end pair of CLI arguments
func parseWindow(start, end string, loc *time.Location) (window.Window, error) {
	s, err := parseTime(start, loc)
	if err != nil {
		return window.Window{}, err
	}
	e, err := parseTime(end, loc)
	if err != nil {
		return window.Window{}, err
	}
	return window.New(s, e)
}

// splitList splits a comma separated flag value, dropping empty entries
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
