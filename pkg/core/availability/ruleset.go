package availability

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// Status classifies a fragment of a free/busy breakdown
type Status string

const (
	StatusFree Status = "FREE"
	StatusBusy Status = "BUSY"
)

// Fragment is one contiguous piece of a free/busy breakdown
type Fragment struct {
	Window window.Window
	Status Status
}

// RuleSet holds one user's recurring availability rules and one-off exceptions.
//
// Rules are interpreted in the set's location (the group's or venue's timezone,
// UTC when unset). Absence of any rule covering an instant means BUSY;
// exceptions always override rule-derived free time.
type RuleSet struct {
	userID     string
	rules      []model.AvailabilityRule
	exceptions []model.SpecialUnavailability
	location   *time.Location
}

// NewRuleSet builds a rule set. A nil location falls back to UTC.
func NewRuleSet(userID string, rules []model.AvailabilityRule, exceptions []model.SpecialUnavailability, loc *time.Location) *RuleSet {
	if loc == nil {
		loc = time.UTC
	}
	return &RuleSet{
		userID:     userID,
		rules:      rules,
		exceptions: exceptions,
		location:   loc,
	}
}

// UserID returns the owner of the rule set
func (rs *RuleSet) UserID() string {
	return rs.userID
}

// HasRules reports whether the user has ever recorded any availability rule,
// regardless of effective range. Users without rules are UNKNOWN, not BUSY.
func (rs *RuleSet) HasRules() bool {
	return rs != nil && len(rs.rules) > 0
}

// FreeBusy partitions w into ordered, contiguous FREE and BUSY fragments.
// Adjacent fragments always differ in status.
func (rs *RuleSet) FreeBusy(w window.Window) ([]Fragment, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	free, err := rs.FreeWindows(w)
	if err != nil {
		return nil, err
	}

	fragments := make([]Fragment, 0, 2*len(free)+1)
	cursor := w.Start
	for _, f := range free {
		if f.Start.After(cursor) {
			fragments = append(fragments, Fragment{Window: window.Window{Start: cursor, End: f.Start}, Status: StatusBusy})
		}
		fragments = append(fragments, Fragment{Window: f, Status: StatusFree})
		cursor = f.End
	}
	if cursor.Before(w.End) {
		fragments = append(fragments, Fragment{Window: window.Window{Start: cursor, End: w.End}, Status: StatusBusy})
	}

	return fragments, nil
}

// FreeWindows returns the FREE mask of w: the union of rule occurrences
// clipped to w, minus every exception.
func (rs *RuleSet) FreeWindows(w window.Window) ([]window.Window, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, nil
	}

	var occurrences []window.Window
	for _, rule := range rs.rules {
		expanded, err := expandRule(rule, w, rs.location)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, expanded...)
	}
	free := window.Clip(occurrences, w)

	var busy []window.Window
	for _, ex := range rs.exceptions {
		if window.Overlaps(ex.Window, w) {
			busy = append(busy, ex.Window)
		}
	}

	return window.SubtractAll(free, busy), nil
}

// IsFree reports whether w is entirely FREE
func (rs *RuleSet) IsFree(w window.Window) (bool, error) {
	free, err := rs.FreeWindows(w)
	if err != nil {
		return false, err
	}
	return window.TotalDuration(free) == w.Duration(), nil
}

// ValidateRule checks a recurring rule for structural errors
func ValidateRule(rule model.AvailabilityRule) error {
	if rule.Weekday < time.Sunday || rule.Weekday > time.Saturday {
		return fmt.Errorf("%w: rule %s has weekday %d out of range", model.ErrInvalidWindow, rule.ID, rule.Weekday)
	}
	if !rule.Start.IsValid() || !rule.End.IsValid() {
		return fmt.Errorf("%w: rule %s has time of day out of range", model.ErrInvalidWindow, rule.ID)
	}
	if rule.End <= rule.Start {
		return fmt.Errorf("%w: rule %s ends at %s, not after start %s", model.ErrInvalidWindow, rule.ID, rule.End, rule.Start)
	}
	if rule.EffectiveUntil != nil && !rule.EffectiveFrom.IsZero() && rule.EffectiveUntil.Before(rule.EffectiveFrom) {
		return fmt.Errorf("%w: rule %s effective range is inverted", model.ErrInvalidWindow, rule.ID)
	}
	return nil
}

// expandRule turns one weekly rule into concrete UTC windows touching w.
// Occurrences are generated per local calendar date so DST shifts keep the
// declared wall-clock times.
func expandRule(rule model.AvailabilityRule, w window.Window, loc *time.Location) ([]window.Window, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	first := localDate(w.Start.In(loc)).AddDate(0, 0, -1)
	last := localDate(w.End.In(loc))

	if !rule.EffectiveFrom.IsZero() {
		from := calendarDate(rule.EffectiveFrom, loc)
		if from.After(first) {
			first = from
		}
	}
	if rule.EffectiveUntil != nil {
		until := calendarDate(*rule.EffectiveUntil, loc)
		if until.Before(last) {
			last = until
		}
	}
	if last.Before(first) {
		return nil, nil
	}

	y, m, d := first.Date()
	dtstart := rule.Start.On(y, m, d, loc)
	y, m, d = last.Date()
	until := rule.Start.On(y, m, d, loc)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{toRRuleWeekday(rule.Weekday)},
		Dtstart:   dtstart,
		Until:     until,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", model.ErrInvalidWindow, rule.ID, err)
	}

	var out []window.Window
	for _, occ := range r.All() {
		y, m, d := occ.In(loc).Date()
		start := rule.Start.On(y, m, d, loc).UTC()
		end := rule.End.On(y, m, d, loc).UTC()
		if !end.After(start) {
			continue
		}
		occWindow := window.Window{Start: start, End: end}
		if window.Overlaps(occWindow, w) {
			out = append(out, occWindow)
		}
	}
	return out, nil
}

func localDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// calendarDate reads only the date fields of t and places them in loc
func calendarDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func toRRuleWeekday(day time.Weekday) rrule.Weekday {
	switch day {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	}
	return rrule.SU
}
