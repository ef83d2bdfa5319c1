package db

import (
	"sort"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// SnapshotQuery selects what LoadSnapshot reads. VenueID may be empty.
// ParticipantIDs names people outside the group whose commitments must be
// loaded as well, usually the candidate's explicit participant list.
type SnapshotQuery struct {
	GroupID        string
	VenueID        string
	Span           window.Window
	ParticipantIDs []string
}

// Snapshot is a read-only view of everything needed to evaluate rehearsals
// for one group over one span.
//
// Rehearsals holds every non-cancelled rehearsal overlapping the span that is
// at the venue, belongs to the group, or involves any group member or
// queried participant.
// Memberships holds the memberships of every group owning one of those
// rehearsals, so their participants can be resolved.
type Snapshot struct {
	Group       model.Group
	Venue       *model.Venue
	Members     []model.Membership
	Users       map[string]model.User
	Rules       map[string][]model.AvailabilityRule
	Exceptions  map[string][]model.SpecialUnavailability
	Rehearsals  []model.Rehearsal
	Memberships map[string][]model.Membership
}

// UserAvailability is one user's raw availability data
type UserAvailability struct {
	User       model.User
	Rules      []model.AvailabilityRule
	Exceptions []model.SpecialUnavailability
}

// NewSnapshot returns an empty snapshot with initialized maps
func NewSnapshot(group model.Group) *Snapshot {
	return &Snapshot{
		Group:       group,
		Users:       make(map[string]model.User),
		Rules:       make(map[string][]model.AvailabilityRule),
		Exceptions:  make(map[string][]model.SpecialUnavailability),
		Memberships: make(map[string][]model.Membership),
	}
}

// MembershipsOf returns the memberships of groupID known to the snapshot
func (s *Snapshot) MembershipsOf(groupID string) []model.Membership {
	if groupID == s.Group.ID {
		return s.Members
	}
	return s.Memberships[groupID]
}

// Membership returns the member's membership of the snapshot group
func (s *Snapshot) Membership(userID string) (model.Membership, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return model.Membership{}, false
}

// SortRehearsals orders rehearsals by (start, ID)
func SortRehearsals(rehearsals []model.Rehearsal) {
	sort.SliceStable(rehearsals, func(i, j int) bool {
		if rehearsals[i].Window.Start.Equal(rehearsals[j].Window.Start) {
			return rehearsals[i].ID < rehearsals[j].ID
		}
		return rehearsals[i].Window.Start.Before(rehearsals[j].Window.Start)
	})
}

// Involves reports whether the rehearsal is relevant to a snapshot of
// groupID at venueID. people holds the group members and the queried
// participants.
func Involves(r model.Rehearsal, groupID, venueID string, people map[string]bool, groupMembers []model.Membership) bool {
	if r.GroupID == groupID || (venueID != "" && r.VenueID == venueID) {
		return true
	}
	if r.HasParticipantOverride() {
		for _, id := range r.ParticipantIDs {
			if people[id] {
				return true
			}
		}
		return false
	}
	for _, m := range groupMembers {
		if people[m.UserID] {
			return true
		}
	}
	return false
}
