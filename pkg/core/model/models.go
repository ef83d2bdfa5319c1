package model

import (
	"time"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleMember
}

type RehearsalStatus string

const (
	RehearsalProposed  RehearsalStatus = "proposed"
	RehearsalConfirmed RehearsalStatus = "confirmed"
	RehearsalCancelled RehearsalStatus = "cancelled"
)

func (s RehearsalStatus) IsValid() bool {
	return s == RehearsalProposed || s == RehearsalConfirmed || s == RehearsalCancelled
}

type AttendanceStatus string

const (
	AttendancePresent    AttendanceStatus = "present"
	AttendanceAbsent     AttendanceStatus = "absent"
	AttendanceExcused    AttendanceStatus = "excused"
	AttendanceUnrecorded AttendanceStatus = "unrecorded"
)

func (s AttendanceStatus) IsValid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceExcused, AttendanceUnrecorded:
		return true
	}
	return false
}

// User represents a group member or organizer
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Group represents a band, choir or ensemble
type Group struct {
	ID       string
	Name     string
	Timezone string // IANA name, empty means UTC
}

// Membership ties a user to a group with a per-group role
type Membership struct {
	GroupID string
	UserID  string
	Role    Role
}

// IsAdmin reports whether the membership grants organizer rights
func (m Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// AvailabilityRule is a recurring weekly free interval in the group's local time
type AvailabilityRule struct {
	ID             string
	UserID         string
	Weekday        time.Weekday
	Start          TimeOfDay
	End            TimeOfDay
	// EffectiveFrom and EffectiveUntil are calendar dates; only the date
	// fields are read. Both bounds are inclusive.
	EffectiveFrom  time.Time  // zero means no lower bound
	EffectiveUntil *time.Time // nil means the rule applies indefinitely
}

// SpecialUnavailability is a one-off busy window that overrides recurring rules
type SpecialUnavailability struct {
	ID     string
	UserID string
	Window window.Window
	Reason string
}

// Venue is a bookable rehearsal space
type Venue struct {
	ID        string
	Name      string
	Capacity  *int // nullable
	Timezone  string
	CreatedBy string
}

// Rehearsal is a single rehearsal slot for a group at a venue
type Rehearsal struct {
	ID        string
	GroupID   string
	VenueID   string
	Window    window.Window
	Status    RehearsalStatus
	CreatedBy string
	// ParticipantIDs overrides the group membership when non-empty
	ParticipantIDs []string
}

// IsActive reports whether the rehearsal still occupies its venue and members
func (r Rehearsal) IsActive() bool {
	return r.Status != RehearsalCancelled
}

// HasParticipantOverride reports whether an explicit participant list is attached
func (r Rehearsal) HasParticipantOverride() bool {
	return len(r.ParticipantIDs) > 0
}

// Attendance is the realized status of one participant at one rehearsal
type Attendance struct {
	RehearsalID string
	UserID      string
	Status      AttendanceStatus
	RecordedAt  *time.Time // nullable
	RecordedBy  string     // nullable
}

// Participant is a resolved rehearsal participant with their role in the group
type Participant struct {
	UserID string
	Role   Role
}

// ResolveParticipants returns the participant set of a rehearsal.
// The explicit override list wins over group membership; override entries
// that are not group members are treated as plain members.
func ResolveParticipants(rehearsal Rehearsal, members []Membership) []Participant {
	roles := make(map[string]Role, len(members))
	for _, m := range members {
		if m.GroupID == rehearsal.GroupID || m.GroupID == "" {
			roles[m.UserID] = m.Role
		}
	}

	if !rehearsal.HasParticipantOverride() {
		participants := make([]Participant, 0, len(members))
		seen := make(map[string]bool, len(members))
		for _, m := range members {
			if m.GroupID != "" && m.GroupID != rehearsal.GroupID {
				continue
			}
			if seen[m.UserID] {
				continue
			}
			seen[m.UserID] = true
			participants = append(participants, Participant{UserID: m.UserID, Role: m.Role})
		}
		return participants
	}

	participants := make([]Participant, 0, len(rehearsal.ParticipantIDs))
	seen := make(map[string]bool, len(rehearsal.ParticipantIDs))
	for _, id := range rehearsal.ParticipantIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		role, ok := roles[id]
		if !ok {
			role = RoleMember
		}
		participants = append(participants, Participant{UserID: id, Role: role})
	}
	return participants
}

// Location loads the group's IANA timezone, UTC when unset
func (g Group) Location() (*time.Location, error) {
	return loadLocation(g.Timezone)
}

// Location loads the venue's IANA timezone, UTC when unset
func (v Venue) Location() (*time.Location, error) {
	return loadLocation(v.Timezone)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
