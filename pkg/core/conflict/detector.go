package conflict

import (
	"sort"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// Severity describes whether a conflict blocks confirmation
type Severity string

const (
	// SeverityHard blocks confirmation and discards suggestion candidates
	SeverityHard Severity = "HARD"
	// SeveritySoft is surfaced as a warning only
	SeveritySoft Severity = "SOFT"
)

// Policy tunes how member conflicts are classified
type Policy struct {
	// EscalateMemberConflicts makes plain-member collisions HARD as well
	EscalateMemberConflicts bool
}

// MemberConflict lists the rehearsals a participant is already committed to
// during the candidate window
type MemberConflict struct {
	UserID     string
	Role       model.Role
	Severity   Severity
	Rehearsals []model.Rehearsal
}

// Report is the full conflict picture for one candidate rehearsal
type Report struct {
	VenueConflicts  []model.Rehearsal
	GroupConflicts  []model.Rehearsal
	MemberConflicts []MemberConflict
}

// HasHard reports whether anything in the report blocks confirmation
func (r Report) HasHard() bool {
	if len(r.VenueConflicts) > 0 || len(r.GroupConflicts) > 0 {
		return true
	}
	for _, mc := range r.MemberConflicts {
		if mc.Severity == SeverityHard {
			return true
		}
	}
	return false
}

// IsEmpty reports whether no conflict of any kind was found
func (r Report) IsEmpty() bool {
	return len(r.VenueConflicts) == 0 && len(r.GroupConflicts) == 0 && len(r.MemberConflicts) == 0
}

// SoftConflicts returns the member conflicts that only warn
func (r Report) SoftConflicts() []MemberConflict {
	var soft []MemberConflict
	for _, mc := range r.MemberConflicts {
		if mc.Severity == SeveritySoft {
			soft = append(soft, mc)
		}
	}
	return soft
}

// HardMemberConflicts returns the member conflicts that block confirmation
func (r Report) HardMemberConflicts() []MemberConflict {
	var hard []MemberConflict
	for _, mc := range r.MemberConflicts {
		if mc.Severity == SeverityHard {
			hard = append(hard, mc)
		}
	}
	return hard
}

// Detector runs conflict checks over a caller-supplied rehearsal snapshot.
// It holds no state besides its policy and is safe for concurrent use.
type Detector struct {
	policy Policy
}

// NewDetector creates a detector with the given policy
func NewDetector(policy Policy) *Detector {
	return &Detector{policy: policy}
}

// CheckVenueConflict returns every active rehearsal at the candidate's venue
// whose window overlaps the candidate's. The candidate's own ID is skipped.
func (d *Detector) CheckVenueConflict(candidate model.Rehearsal, existingAtVenue []model.Rehearsal) []model.Rehearsal {
	var conflicts []model.Rehearsal
	for _, existing := range existingAtVenue {
		if !collides(candidate, existing) {
			continue
		}
		if existing.VenueID != candidate.VenueID {
			continue
		}
		conflicts = append(conflicts, existing)
	}
	sortRehearsals(conflicts)
	return conflicts
}

// CheckGroupConflict returns active rehearsals of the same group that overlap the candidate
func (d *Detector) CheckGroupConflict(candidate model.Rehearsal, existing []model.Rehearsal) []model.Rehearsal {
	var conflicts []model.Rehearsal
	for _, other := range existing {
		if other.GroupID != candidate.GroupID || !collides(candidate, other) {
			continue
		}
		conflicts = append(conflicts, other)
	}
	sortRehearsals(conflicts)
	return conflicts
}

// CheckMemberConflict maps each participant to the other active rehearsals
// (in any group) they are committed to during the candidate window.
// commitments is keyed by user ID. Participants without conflicts are omitted.
func (d *Detector) CheckMemberConflict(candidate model.Rehearsal, participants []model.Participant, commitments map[string][]model.Rehearsal) map[string][]model.Rehearsal {
	result := make(map[string][]model.Rehearsal)
	for _, p := range participants {
		var conflicts []model.Rehearsal
		for _, other := range commitments[p.UserID] {
			if collides(candidate, other) {
				conflicts = append(conflicts, other)
			}
		}
		if len(conflicts) > 0 {
			sortRehearsals(conflicts)
			result[p.UserID] = conflicts
		}
	}
	return result
}

// Classify assigns a severity to a member conflict for the given role
func (d *Detector) Classify(role model.Role) Severity {
	if role == model.RoleAdmin || d.policy.EscalateMemberConflicts {
		return SeverityHard
	}
	return SeveritySoft
}

// Detect runs every check for the candidate. members resolves the
// participants of every rehearsal in the snapshot that has no explicit
// participant list.
func (d *Detector) Detect(candidate model.Rehearsal, participants []model.Participant, rehearsals []model.Rehearsal, members MembershipIndex) Report {
	return d.DetectIndexed(candidate, participants, rehearsals, Commitments(rehearsals, members))
}

// DetectIndexed is Detect with commitments already indexed by Commitments,
// for callers evaluating many candidates against one snapshot.
func (d *Detector) DetectIndexed(candidate model.Rehearsal, participants []model.Participant, rehearsals []model.Rehearsal, commitments map[string][]model.Rehearsal) Report {
	report := Report{
		VenueConflicts: d.CheckVenueConflict(candidate, rehearsals),
		GroupConflicts: d.CheckGroupConflict(candidate, rehearsals),
	}

	byUser := d.CheckMemberConflict(candidate, participants, commitments)

	for _, p := range participants {
		conflicts, ok := byUser[p.UserID]
		if !ok {
			continue
		}
		report.MemberConflicts = append(report.MemberConflicts, MemberConflict{
			UserID:     p.UserID,
			Role:       p.Role,
			Severity:   d.Classify(p.Role),
			Rehearsals: conflicts,
		})
	}
	sort.SliceStable(report.MemberConflicts, func(i, j int) bool {
		return report.MemberConflicts[i].UserID < report.MemberConflicts[j].UserID
	})

	return report
}

// MembershipIndex returns the memberships of a group
type MembershipIndex func(groupID string) []model.Membership

// Commitments indexes active rehearsals by participant
func Commitments(rehearsals []model.Rehearsal, members MembershipIndex) map[string][]model.Rehearsal {
	byUser := make(map[string][]model.Rehearsal)
	for _, r := range rehearsals {
		if !r.IsActive() {
			continue
		}
		var groupMembers []model.Membership
		if members != nil && !r.HasParticipantOverride() {
			groupMembers = members(r.GroupID)
		}
		for _, p := range model.ResolveParticipants(r, groupMembers) {
			byUser[p.UserID] = append(byUser[p.UserID], r)
		}
	}
	return byUser
}

// collides is true when other is an active, different rehearsal overlapping candidate
func collides(candidate, other model.Rehearsal) bool {
	if !other.IsActive() {
		return false
	}
	if candidate.ID != "" && other.ID == candidate.ID {
		return false
	}
	return window.Overlaps(candidate.Window, other.Window)
}

func sortRehearsals(rs []model.Rehearsal) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Window.Start.Equal(rs[j].Window.Start) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].Window.Start.Before(rs[j].Window.Start)
	})
}
