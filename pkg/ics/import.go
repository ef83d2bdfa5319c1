package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// maxOccurrencesPerEvent caps recurrence expansion of a single VEVENT
const maxOccurrencesPerEvent = 5000

// importNamespace seeds deterministic IDs so re-importing a calendar is idempotent
var importNamespace = uuid.MustParse("6f1c1f2e-5d3a-4c8e-9a57-2f0e0c9b7a41")

// UnavailabilityID derives a stable ID for an imported busy window from the
// user, the source key (an event UID or calendar ID) and the window start
func UnavailabilityID(userID, key string, start time.Time) string {
	return uuid.NewSHA1(importNamespace, []byte(userID+"|"+key+"|"+start.UTC().Format(time.RFC3339))).String()
}

// ImportOptions controls how a busy calendar is turned into unavailability
type ImportOptions struct {
	UserID string
	// Span bounds recurrence expansion; events outside it are dropped
	Span window.Window
	// Location interprets floating (zone-less) times, UTC when nil
	Location *time.Location
}

// ParseBusy reads an iCalendar feed and returns every busy event overlapping
// opts.Span as a SpecialUnavailability for opts.UserID. Transparent and
// cancelled events are skipped. Recurring events are expanded with their
// EXDATEs applied.
func ParseBusy(r io.Reader, opts ImportOptions, logger *zap.Logger) ([]model.SpecialUnavailability, error) {
	if err := opts.Span.Validate(); err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var result []model.SpecialUnavailability
	for _, ev := range cal.Events() {
		items, err := busyFromEvent(ev, opts)
		if err != nil {
			logger.Warn("Skipping calendar event", zap.String("uid", ev.Id()), zap.Error(err))
			continue
		}
		result = append(result, items...)
	}

	logger.Debug("Parsed busy calendar",
		zap.String("user_id", opts.UserID),
		zap.Int("events", len(cal.Events())),
		zap.Int("busy_windows", len(result)))

	return result, nil
}

func busyFromEvent(ev *ical.VEvent, opts ImportOptions) ([]model.SpecialUnavailability, error) {
	if p := ev.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return nil, nil
	}
	if p := ev.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, string(ical.ObjectStatusCancelled)) {
		return nil, nil
	}

	start, end, err := eventBounds(ev, opts.Location)
	if err != nil {
		return nil, err
	}
	duration := end.Sub(start)
	if duration <= 0 {
		return nil, fmt.Errorf("event has non-positive duration")
	}

	reason := ""
	if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
		reason = p.Value
	}

	starts := []time.Time{start}
	if p := ev.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		starts, err = expand(ev, p.Value, start, duration, opts)
		if err != nil {
			return nil, err
		}
	}

	var out []model.SpecialUnavailability
	for _, s := range starts {
		w := window.Window{Start: s.UTC(), End: s.Add(duration).UTC()}
		if !window.Overlaps(w, opts.Span) {
			continue
		}
		out = append(out, model.SpecialUnavailability{
			ID:     UnavailabilityID(opts.UserID, ev.Id(), w.Start),
			UserID: opts.UserID,
			Window: w,
			Reason: reason,
		})
	}
	return out, nil
}

// eventBounds reads DTSTART/DTEND, treating date-only values as whole days and
// floating times as wall-clock times in loc
func eventBounds(ev *ical.VEvent, loc *time.Location) (time.Time, time.Time, error) {
	dtStart := ev.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("missing DTSTART")
	}

	if isAllDay(dtStart) {
		start, err := ev.GetAllDayStartAt()
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("failed to read all-day start: %w", err)
		}
		start = inLocation(start, loc)
		end := start.AddDate(0, 0, 1)
		if ev.GetProperty(ical.ComponentPropertyDtEnd) != nil {
			if e, err := ev.GetAllDayEndAt(); err == nil {
				end = inLocation(e, loc)
			}
		}
		return start, end, nil
	}

	start, err := ev.GetStartAt()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to read start: %w", err)
	}
	if isFloating(dtStart) {
		start = inLocation(start, loc)
	}

	dtEnd := ev.GetProperty(ical.ComponentPropertyDtEnd)
	if dtEnd == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("missing DTEND")
	}
	end, err := ev.GetEndAt()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to read end: %w", err)
	}
	if isFloating(dtEnd) {
		end = inLocation(end, loc)
	}
	return start, end, nil
}

func expand(ev *ical.VEvent, raw string, start time.Time, duration time.Duration, opts ImportOptions) ([]time.Time, error) {
	ropt, err := rrule.StrToROptionInLocation(raw, start.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE %q: %w", raw, err)
	}
	ropt.Dtstart = start
	r, err := rrule.NewRRule(*ropt)
	if err != nil {
		return nil, fmt.Errorf("failed to build RRULE %q: %w", raw, err)
	}

	var set rrule.Set
	set.RRule(r)
	for _, p := range ev.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseExDate(strings.TrimSpace(part), start.Location()); err == nil {
				set.ExDate(t)
			}
		}
	}

	from := opts.Span.Start.Add(-duration).In(start.Location())
	occurrences := set.Between(from, opts.Span.End.In(start.Location()), true)
	if len(occurrences) > maxOccurrencesPerEvent {
		occurrences = occurrences[:maxOccurrencesPerEvent]
	}
	return occurrences, nil
}

func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func isFloating(p *ical.IANAProperty) bool {
	if _, ok := p.ICalParameters["TZID"]; ok {
		return false
	}
	return !strings.HasSuffix(p.Value, "Z")
}

// inLocation keeps the wall-clock fields of t and reinterprets them in loc
func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

func parseExDate(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, fmt.Errorf("empty EXDATE")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
