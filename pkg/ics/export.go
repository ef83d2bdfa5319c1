package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
)

const productID = "-//bandstand//rehearsal-scheduler//EN"

// ExportRehearsals renders a group's rehearsals as an iCalendar feed.
// Cancelled rehearsals are left out; proposed ones are marked TENTATIVE.
func ExportRehearsals(group model.Group, venues map[string]model.Venue, rehearsals []model.Rehearsal, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(group.Name + " rehearsals")
	if group.Timezone != "" {
		cal.SetTimezoneId(group.Timezone)
	}

	for _, r := range rehearsals {
		if !r.IsActive() {
			continue
		}

		event := cal.AddEvent(r.ID + "@rehearsal-scheduler")
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(r.Window.Start.UTC())
		event.SetEndAt(r.Window.End.UTC())
		event.SetSummary(group.Name + " rehearsal")
		if v, ok := venues[r.VenueID]; ok {
			event.SetLocation(v.Name)
		}
		if r.Status == model.RehearsalConfirmed {
			event.SetStatus(ical.ObjectStatusConfirmed)
		} else {
			event.SetStatus(ical.ObjectStatusTentative)
		}
	}

	return cal.Serialize()
}
