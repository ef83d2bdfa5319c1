package estimator

import (
	"fmt"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// MemberStatus is a member's predicted availability for a window
type MemberStatus string

const (
	StatusAvailable   MemberStatus = "AVAILABLE"
	StatusUnavailable MemberStatus = "UNAVAILABLE"
	StatusUnknown     MemberStatus = "UNKNOWN"
)

// Counts tallies members per status
type Counts struct {
	Available   int
	Unavailable int
	Unknown     int
}

// AttendanceEstimate is the predicted attendance for one window
type AttendanceEstimate struct {
	PerMember map[string]MemberStatus
	Score     float64
	Counts    Counts
}

// Evaluable reports whether the estimate covers at least one member
func (e AttendanceEstimate) Evaluable() bool {
	return len(e.PerMember) > 0
}

// Estimate classifies each member for w and computes the attendance score.
//
// Members without any recorded rule are UNKNOWN and excluded from the score.
// ruleSets is keyed by user ID; a missing entry counts as no rules.
func Estimate(members []model.Membership, ruleSets map[string]*availability.RuleSet, w window.Window) (AttendanceEstimate, error) {
	if err := w.Validate(); err != nil {
		return AttendanceEstimate{}, err
	}

	estimate := AttendanceEstimate{PerMember: make(map[string]MemberStatus, len(members))}

	for _, m := range members {
		if _, done := estimate.PerMember[m.UserID]; done {
			continue
		}

		status, err := classify(ruleSets[m.UserID], w)
		if err != nil {
			return AttendanceEstimate{}, fmt.Errorf("failed to estimate availability for %s: %w", m.UserID, err)
		}

		estimate.PerMember[m.UserID] = status
		switch status {
		case StatusAvailable:
			estimate.Counts.Available++
		case StatusUnavailable:
			estimate.Counts.Unavailable++
		default:
			estimate.Counts.Unknown++
		}
	}

	estimate.Score = Score(estimate.Counts)
	return estimate, nil
}

// Score is available / (available + unavailable), 0 when nobody is classified
func Score(c Counts) float64 {
	classified := c.Available + c.Unavailable
	if classified == 0 {
		return 0
	}
	return float64(c.Available) / float64(classified)
}

func classify(rs *availability.RuleSet, w window.Window) (MemberStatus, error) {
	if !rs.HasRules() {
		return StatusUnknown, nil
	}
	free, err := rs.IsFree(w)
	if err != nil {
		return "", err
	}
	if free {
		return StatusAvailable, nil
	}
	return StatusUnavailable, nil
}
