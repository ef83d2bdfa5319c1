package suggest

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// Blackout is a recurring period in which no rehearsal may be suggested,
// e.g. "FREQ=WEEKLY;BYDAY=SU" for 24 hours
type Blackout struct {
	RRule    string
	Duration time.Duration
	Reason   string
}

// ParseBlackoutRule parses an RRULE string in loc. Rules without DTSTART are
// anchored at anchor.
func ParseBlackoutRule(raw string, anchor time.Time, loc *time.Location) (*rrule.RRule, error) {
	if loc == nil {
		loc = time.UTC
	}
	opt, err := rrule.StrToROptionInLocation(raw, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: blackout rule %q: %v", model.ErrInvalidWindow, raw, err)
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = anchor.In(loc)
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: blackout rule %q: %v", model.ErrInvalidWindow, raw, err)
	}
	return r, nil
}

// ExpandBlackouts returns the merged blackout windows touching span
func ExpandBlackouts(blackouts []Blackout, span window.Window, loc *time.Location) ([]window.Window, error) {
	if len(blackouts) == 0 {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	var out []window.Window
	for _, b := range blackouts {
		if b.Duration <= 0 {
			return nil, fmt.Errorf("%w: blackout %q has non-positive duration", model.ErrInvalidWindow, b.RRule)
		}

		// Anchor at local midnight early enough to catch an occurrence that
		// started before the span but is still running.
		from := span.Start.Add(-b.Duration).In(loc)
		anchor := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

		r, err := ParseBlackoutRule(b.RRule, anchor, loc)
		if err != nil {
			return nil, err
		}

		var set rrule.Set
		set.RRule(r)
		for _, occ := range set.Between(from, span.End.In(loc), true) {
			w := window.Window{Start: occ.UTC(), End: occ.Add(b.Duration).UTC()}
			if window.Overlaps(w, span) {
				out = append(out, w)
			}
		}
	}

	return window.Union(out), nil
}
